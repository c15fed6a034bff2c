package logger

import (
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/hashicorp-forge/build-trigger/internal/helper"
)

// Log outputs understood besides a file path.
const (
	OutputStderr = "stderr"
	OutputStdout = "stdout"
)

type Config struct {
	Level            string `hcl:"level,optional"`
	JSON             *bool  `hcl:"json,optional"`
	IncludeLine      *bool  `hcl:"include_line,optional"`
	EnableStacktrace *bool  `hcl:"enable_stacktrace,optional"`

	// Output is stderr, stdout or a file path the logs are appended to.
	Output string `hcl:"output,optional"`
}

// DefaultServerConfig is used by the long running agent.
func DefaultServerConfig() *Config {
	return &Config{
		Level:            zap.InfoLevel.String(),
		JSON:             helper.PointerOf(false),
		IncludeLine:      helper.PointerOf(false),
		EnableStacktrace: helper.PointerOf(false),
		Output:           OutputStderr,
	}
}

// DefaultCLIConfig keeps one-shot commands quiet unless asked otherwise.
func DefaultCLIConfig() *Config {
	return &Config{
		Level:            zap.WarnLevel.String(),
		JSON:             helper.PointerOf(false),
		IncludeLine:      helper.PointerOf(false),
		EnableStacktrace: helper.PointerOf(false),
		Output:           OutputStderr,
	}
}

func (c *Config) Merge(other *Config) *Config {

	if c == nil {
		return other
	}
	if other == nil {
		return c
	}

	result := *c

	if other.Level != "" {
		result.Level = other.Level
	}
	if other.JSON != nil {
		result.JSON = other.JSON
	}
	if other.IncludeLine != nil {
		result.IncludeLine = other.IncludeLine
	}
	if other.EnableStacktrace != nil {
		result.EnableStacktrace = other.EnableStacktrace
	}
	if other.Output != "" {
		result.Output = other.Output
	}

	return &result
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "The threshold level for logging (debug, info, warn, error)",
			Sources: cli.EnvVars("BUILD_TRIGGER_LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-output",
			Usage:   "Where logs are written: stderr, stdout or a file path",
			Sources: cli.EnvVars("BUILD_TRIGGER_LOG_OUTPUT"),
		},
		&cli.BoolFlag{
			Name:  "log-json",
			Usage: "If the output should be in JSON format",
		},
		&cli.BoolFlag{
			Name:  "log-include-line",
			Usage: "Include file and line information in each log line",
		},
		&cli.BoolFlag{
			Name:  "log-enable-stacktrace",
			Usage: "Enable stacktrace capturing for error level logs",
		},
	}
}

func ConfigFromCLI(cmd *cli.Command) *Config {
	return &Config{
		Level:  cmd.String("log-level"),
		Output: cmd.String("log-output"),
		JSON: func() *bool {
			if cmd.IsSet("log-json") {
				val := cmd.Bool("log-json")
				return &val
			}
			return nil
		}(),
		IncludeLine: func() *bool {
			if cmd.IsSet("log-include-line") {
				val := cmd.Bool("log-include-line")
				return &val
			}
			return nil
		}(),
		EnableStacktrace: func() *bool {
			if cmd.IsSet("log-enable-stacktrace") {
				val := cmd.Bool("log-enable-stacktrace")
				return &val
			}
			return nil
		}(),
	}
}
