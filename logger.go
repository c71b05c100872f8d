package quarry

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a structured logger - the dispatcher logs plan selection decisions at debug level
type Logger interface {
	// Error logs an error level message
	Error(ctx context.Context, msg string, err error, tags map[string]any)
	// Warn logs a warn level message
	Warn(ctx context.Context, msg string, tags map[string]any)
	// Info logs an info level message
	Info(ctx context.Context, msg string, tags map[string]any)
	// Debug logs a debug level message
	Debug(ctx context.Context, msg string, tags map[string]any)
}

type defaultLogger struct {
	logger *zap.Logger
}

// NewLogger returns a structured json logger with the given level and default fields
func NewLogger(level string, defaultFields map[string]any) (Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	logger, err := cfg.Build(zap.WithCaller(true), zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	if len(defaultFields) > 0 {
		logger = logger.With(tagFields(nil, defaultFields)...)
	}
	return &defaultLogger{logger: logger}, nil
}

// log is the single write path - every level method funnels through it
func (d defaultLogger) log(level zapcore.Level, msg string, fields []zap.Field) {
	if entry := d.logger.Check(level, msg); entry != nil {
		entry.Write(fields...)
	}
}

func (d defaultLogger) Error(ctx context.Context, msg string, err error, tags map[string]any) {
	d.log(zap.ErrorLevel, msg, tagFields([]zap.Field{zap.Error(err)}, tags))
}

func (d defaultLogger) Warn(ctx context.Context, msg string, tags map[string]any) {
	d.log(zap.WarnLevel, msg, tagFields(nil, tags))
}

func (d defaultLogger) Info(ctx context.Context, msg string, tags map[string]any) {
	d.log(zap.InfoLevel, msg, tagFields(nil, tags))
}

func (d defaultLogger) Debug(ctx context.Context, msg string, tags map[string]any) {
	d.log(zap.DebugLevel, msg, tagFields(nil, tags))
}

func tagFields(base []zap.Field, tags map[string]any) []zap.Field {
	for k, v := range tags {
		base = append(base, zap.Any(k, v))
	}
	return base
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
