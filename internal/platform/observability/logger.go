package observability

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/strideline/storefront/internal/platform/requestctx"
)

const serviceName = "storefront"

// NewLogger builds the JSON process logger. Unknown or empty level names mean info. Every entry is
// tagged with the service name and the given fields (environment, build version).
func NewLogger(levelName string, fields ...zap.Field) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if name := strings.ToLower(strings.TrimSpace(levelName)); name != "" {
		if parsed, err := zapcore.ParseLevel(name); err == nil {
			level.SetLevel(parsed)
		}
	}

	cfg := zap.Config{
		Level:    level,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:     "message",
			TimeKey:        "timestamp",
			LevelKey:       "severity",
			NameKey:        "logger",
			CallerKey:      "caller",
			StacktraceKey:  "stacktrace",
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
		InitialFields:     map[string]any{"service": serviceName},
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(fields...), nil
}

// FromContext returns the request logger, tagged with whatever the request has resolved so far.
func FromContext(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx)
}
