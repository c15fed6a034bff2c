package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	encodingConsole = "console"
	encodingJSON    = "json"
)

// NewZap builds the process logger. Console output uses ISO8601 times and JSON
// output uses RFC3339 times with nanoseconds.
func NewZap(cfg *Config) (*zap.Logger, error) {

	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	encoding := encodingConsole
	timeEncoder := zapcore.ISO8601TimeEncoder

	if cfg.JSON != nil && *cfg.JSON {
		encoding = encodingJSON
		timeEncoder = zapcore.RFC3339NanoTimeEncoder
	}

	output := cfg.Output
	if output == "" {
		output = OutputStderr
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = lvl
	zapCfg.Encoding = encoding
	zapCfg.OutputPaths = []string{output}
	zapCfg.ErrorOutputPaths = []string{OutputStderr}
	zapCfg.DisableStacktrace = cfg.EnableStacktrace == nil || !*cfg.EnableStacktrace
	zapCfg.DisableCaller = cfg.IncludeLine == nil || !*cfg.IncludeLine
	zapCfg.EncoderConfig.NameKey = "component"
	zapCfg.EncoderConfig.TimeKey = "timestamp"
	zapCfg.EncoderConfig.EncodeTime = timeEncoder

	if encoding == encodingConsole {
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	l, err := zapCfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return l, nil
}
