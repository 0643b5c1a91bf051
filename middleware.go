package xport

import (
	"context"
	"fmt"
	"time"

	"github.com/trickstertwo/xclock"
	"github.com/trickstertwo/xlog"
)

// TimeoutMiddleware gives the handler a context with deadline d. The handler still runs
// on the caller's goroutine and its own outcome is returned: a handler that finishes its
// work after the deadline reports success, one that stops on ctx reports ctx.Err().
// Transports normally set their deadline before calling Handle instead.
func TimeoutMiddleware(d time.Duration) Middleware {
	if d <= 0 {
		return func(next Handler) Handler { return next }
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (any, error) {
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(tctx, msg)
		}
	}
}

// RecoveryMiddleware converts handler panics into errors.
func RecoveryMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (res any, err error) {
			defer func() {
				if r := recover(); r != nil {
					res = nil
					err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, MessageName(msg), r)
				}
			}()
			return next(ctx, msg)
		}
	}
}

// LoggingMiddleware logs every handler invocation at debug level. Durations come from the
// bus clock.
func LoggingMiddleware(l *xlog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, msg Message) (any, error) {
			clock, ok := ClockFromContext(ctx)
			if !ok {
				clock = xclock.Default()
			}
			start := clock.Now()
			l.Debug().
				Str("message", MessageName(msg)).
				Msg("handler start")

			res, err := next(ctx, msg)

			l.Debug().
				Str("message", MessageName(msg)).
				Dur("dur", clock.Since(start)).
				Err(err).
				Msg("handler done")
			return res, err
		}
	}
}

// Chain composes middlewares around a handler in order.
func Chain(h Handler, mws ...Middleware) Handler {
	if len(mws) == 0 {
		return h
	}
	wrapped := h
	// Apply in reverse so that first middleware wraps last.
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		wrapped = mws[i](wrapped)
	}
	return wrapped
}
