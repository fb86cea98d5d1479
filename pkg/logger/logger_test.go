package logger

import (
	"path/filepath"
	"testing"

	"github.com/example/takeout/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	out := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "debug", Encoding: "console", OutputPaths: []string{out}})
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))
}

func TestNew_Defaults(t *testing.T) {
	log, err := New(config.LogConfig{})
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestNew_BadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
