package middleware

import (
	"context"
	"errors"
	"fmt"
	"time"

	"p4rpc/message"
)

var ErrTimedOut = errors.New("request timed out")

// TimeOutMiddleware gives each handler a context deadline. Dispatch stays on
// the caller's goroutine, so the handler has to watch ctx for the deadline to
// cut it short; an overrun is reported even if the handler ignored it.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, p *message.Packet) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err := next(ctx, p)
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				if err == nil || errors.Is(err, context.DeadlineExceeded) {
					return fmt.Errorf("%w: %s after %s", ErrTimedOut, p.Func, timeout)
				}
			}
			return err
		}
	}
}
