package xport

import (
	"context"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// ctxKey is the base for all context keys in xport (prevents collisions).
type ctxKey string

const (
	loggerCtxKey ctxKey = "xport:logger"
	clockCtxKey  ctxKey = "xport:clock"
	depthCtxKey  ctxKey = "xport:depth"
)

func injectLogger(ctx context.Context, l *xlog.Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerCtxKey, l)
}

// LoggerFromContext returns the bus logger inside a handler.
func LoggerFromContext(ctx context.Context) (*xlog.Logger, bool) {
	if v := ctx.Value(loggerCtxKey); v != nil {
		if l, ok := v.(*xlog.Logger); ok && l != nil {
			return l, true
		}
	}
	return nil, false
}

func injectClock(ctx context.Context, c xclock.Clock) context.Context {
	if c == nil {
		return ctx
	}
	return context.WithValue(ctx, clockCtxKey, c)
}

// ClockFromContext returns the bus clock inside a handler.
func ClockFromContext(ctx context.Context) (xclock.Clock, bool) {
	if v := ctx.Value(clockCtxKey); v != nil {
		if c, ok := v.(xclock.Clock); ok && c != nil {
			return c, true
		}
	}
	return nil, false
}

func injectDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthCtxKey, depth)
}

// DispatchDepth is 0 outside the bus, 1 inside a handler, 2 inside a handler dispatched
// from a handler, and so on.
func DispatchDepth(ctx context.Context) int {
	if v, ok := ctx.Value(depthCtxKey).(int); ok {
		return v
	}
	return 0
}
