package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hashicorp-forge/build-trigger/internal/helper"
)

func TestConfig_Merge(t *testing.T) {
	merged := DefaultServerConfig().Merge(&Config{
		Level: "debug",
		JSON:  helper.PointerOf(true),
	})

	assert.Equal(t, "debug", merged.Level)
	assert.True(t, *merged.JSON)
	assert.False(t, *merged.IncludeLine)

	assert.Equal(t, DefaultCLIConfig(), DefaultCLIConfig().Merge(nil))
}

func TestNewZap(t *testing.T) {
	l, err := NewZap(DefaultServerConfig())
	require.NoError(t, err)
	require.NotNil(t, l)

	_, err = NewZap(DefaultServerConfig().Merge(&Config{Level: "loud"}))
	require.Error(t, err)
}

func TestNewZap_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.log")

	cfg := DefaultServerConfig().Merge(&Config{
		JSON:   helper.PointerOf(true),
		Output: path,
	})
	assert.Equal(t, path, cfg.Output)

	l, err := NewZap(cfg)
	require.NoError(t, err)

	l.Named(ComponentNameServer).Info("agent started")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"component":"server"`)
	assert.Contains(t, string(data), `"msg":"agent started"`)
}

func TestWatermillAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	adapter := NewWatermillAdapter(zap.New(core)).With(watermill.LogFields{"topic": "alert_message"})
	adapter.Info("subscribed", watermill.LogFields{"subscriber": 1})
	adapter.Trace("message sent", nil)
	adapter.Error("publish failed", errors.New("closed"), nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, "subscribed", entries[0].Message)
	assert.Equal(t, "alert_message", entries[0].ContextMap()["topic"])
	assert.Equal(t, zap.DebugLevel, entries[1].Level)
	assert.Equal(t, "closed", entries[2].ContextMap()["error"])
}
