package middleware

import (
	"context"
	"fmt"

	"p4rpc/message"
)

// RecoverMiddleware turns a handler panic into an error for that packet so
// one bad handler cannot take the channel down.
func RecoverMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, p *message.Packet) (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("panic in %s: %v", p.Func, r)
				}
			}()
			return next(ctx, p)
		}
	}
}
