package mlog

import (
	"context"

	"github.com/sing3demons/oryfm/pkg/logger"
)

// L returns the request-scoped logger, or a detached default logger when ctx carries none.
func L(ctx context.Context) *logger.Logger {
	if ctx == nil {
		return logger.NewLogger("", "")
	}
	l, ok := ctx.Value(logger.LoggerKey).(*logger.Logger)
	if !ok || l == nil {
		return logger.NewLogger("", "")
	}
	return l
}

// With stores l in ctx so downstream calls can find it through L.
func With(ctx context.Context, l *logger.Logger) context.Context {
	return context.WithValue(ctx, logger.LoggerKey, l)
}
