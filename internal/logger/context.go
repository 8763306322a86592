package logger

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// ContextWithLogger stores a request-scoped logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the request-scoped logger, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}

// WithAppID returns ctx with its logger annotated with the application id
// a request resolves content for.
func WithAppID(ctx context.Context, appID string) context.Context {
	if appID == "" {
		return ctx
	}
	return ContextWithLogger(ctx, FromContext(ctx).With(zap.String("app_id", appID)))
}
