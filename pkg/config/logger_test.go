package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		opts      LoggerOptions
		env       string
		wantDebug bool
		wantErr   bool
	}{
		{name: "default-info", opts: LoggerOptions{}},
		{name: "explicit-debug", opts: LoggerOptions{Level: "debug"}, wantDebug: true},
		{name: "env-fallback", env: "debug", wantDebug: true},
		{name: "option-wins-over-env", opts: LoggerOptions{Level: "warn"}, env: "debug"},
		{name: "console-output", opts: LoggerOptions{Level: "debug", Console: true, Component: "keeper"}, wantDebug: true},
		{name: "invalid", opts: LoggerOptions{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", tt.env)

			logger, err := NewLogger(tt.opts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDebug, logger.Core().Enabled(zap.DebugLevel))
			assert.True(t, logger.Core().Enabled(zap.ErrorLevel))
		})
	}
}

func TestConfig_LoggerOptions(t *testing.T) {
	cfg := &Config{LogLevel: "debug", Environment: "development"}
	opts := cfg.LoggerOptions("service")
	assert.Equal(t, LoggerOptions{Level: "debug", Console: true, Component: "service"}, opts)

	cfg.Environment = "production"
	assert.False(t, cfg.LoggerOptions("service").Console)
}
