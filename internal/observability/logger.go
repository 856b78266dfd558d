package observability

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "request_id"
	ctxKeyLogger    ctxKey = "logger"
)

// NewLogger builds the process-wide logger. JSON to stdout in production,
// console encoding when debug is set.
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// WithLogger stores a logger in the context so request-scoped fields travel
// with the call chain.
func WithLogger(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKeyLogger, log)
}

// WithRequestID stores a request_id in the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, requestID)
}

// FromContext returns the request-scoped logger, enriched with the
// request_id when present. Falls back to a no-op logger so callers never
// need a nil check.
func FromContext(ctx context.Context) *zap.Logger {
	log, _ := ctx.Value(ctxKeyLogger).(*zap.Logger)
	if log == nil {
		return zap.NewNop()
	}
	if reqID, _ := ctx.Value(ctxKeyRequestID).(string); reqID != "" {
		return log.With(zap.String("request_id", reqID))
	}
	return log
}
