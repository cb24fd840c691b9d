package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerOptions selects how process logs are written.
type LoggerOptions struct {
	// Level is debug, info, warn or error. Empty falls back to LOG_LEVEL,
	// then info.
	Level string
	// Console switches from JSON to colored console output for local runs.
	Console bool
	// Component is attached to every entry when set, e.g. "keeper".
	Component string
}

// NewLogger builds the process logger.
func NewLogger(opts LoggerOptions) (*zap.Logger, error) {
	levelStr := opts.Level
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}

	var level zapcore.Level
	err := level.UnmarshalText([]byte(levelStr))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelStr, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if opts.Console {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		cfg.Sampling = nil
	}
	if opts.Component != "" {
		cfg.InitialFields = map[string]interface{}{"component": opts.Component}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	return logger, nil
}

// LoggerOptions derives logger settings for the service from the config.
func (c *Config) LoggerOptions(component string) LoggerOptions {
	return LoggerOptions{
		Level:     c.LogLevel,
		Console:   c.IsDevelopment(),
		Component: component,
	}
}
