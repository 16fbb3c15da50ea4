// Package groutine launches named goroutines. Names surface in pprof
// goroutine profiles and in panic reports, which makes the background pumps
// around a hosted sketch (signal guard, PTY loops, output drainer)
// attributable when something goes wrong.
package groutine

import (
	"context"
	"runtime/debug"
	"runtime/pprof"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const goroutineNameKey ctxKey = "goroutine_name"

// Go starts fn on a goroutine labeled with name. A panic escaping fn is
// logged with its stack instead of tearing the process down, since a dying
// background pump must never take the terminal with it. If parentCtx is
// nil, context.Background() is used.
func Go(parentCtx context.Context, name string, fn func(ctx context.Context)) {
	if parentCtx == nil {
		parentCtx = context.Background()
	}

	labels := pprof.Labels("goroutine_name", name)

	go pprof.Do(parentCtx, labels, func(ctx context.Context) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("goroutine", name).
					Errorf("panic (recovered): %v\n%s", r, debug.Stack())
			}
		}()
		ctx = context.WithValue(ctx, goroutineNameKey, name)
		fn(ctx)
	})
}

// GetName retrieves the goroutine name from a context created by Go.
func GetName(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v := ctx.Value(goroutineNameKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
