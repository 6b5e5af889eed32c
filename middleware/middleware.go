// Package middleware wraps inbound packet dispatch.
//
// A Middleware sees every packet a Dispatcher is about to hand to its
// handler, including packets for which no handler exists, so logging and
// rate limiting cover the whole inbound stream of a channel.
package middleware

import (
	"context"

	"p4rpc/message"
)

// HandlerFunc handles one inbound packet. Errors are local to that packet.
type HandlerFunc func(ctx context.Context, p *message.Packet) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain 将多个中间件组合成一个中间件
//
//	Chain(A, B, C)(h) → A(B(C(h)))
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
