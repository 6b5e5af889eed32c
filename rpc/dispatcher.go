// Package rpc layers the p4rpc call convention on top of packets.
//
// An inbound packet's function name is transliterated ('-' becomes "__") and
// looked up in a Router; the handler receives the packet's args and kwargs.
// Outbound, a Remote turns Call("some__method", ...) into a packet whose
// function is "some-method".
//
// Two ways to drive a channel:
//
//	Conn      blocking: RunOnce reads exactly one packet and dispatches it
//	Protocol  buffered: DataReceived dispatches every packet in a chunk
package rpc

import (
	"context"
	"fmt"

	"p4rpc/message"
	"p4rpc/middleware"
)

// PacketHandler consumes packets recovered from a channel.
type PacketHandler interface {
	HandlePacket(ctx context.Context, p *message.Packet) error
}

type PacketHandlerFunc func(ctx context.Context, p *message.Packet) error

func (f PacketHandlerFunc) HandlePacket(ctx context.Context, p *message.Packet) error {
	return f(ctx, p)
}

// Dispatcher routes the inbound packets of one channel to the handlers of a
// Router. remote is handed to every handler so it can answer the peer.
type Dispatcher struct {
	router  *Router
	remote  *Remote
	handler middleware.HandlerFunc // middleware(middleware(...(d.call)))
}

// NewDispatcher builds the middleware chain once, not per packet.
func NewDispatcher(router *Router, remote *Remote) *Dispatcher {
	d := &Dispatcher{router: router, remote: remote}
	d.handler = router.chain()(d.call)
	return d
}

// Dispatch invokes the handler for p. Any failure comes back as a
// *DispatchError carrying p.Func.
func (d *Dispatcher) Dispatch(ctx context.Context, p *message.Packet) error {
	if err := d.handler(ctx, p); err != nil {
		return &DispatchError{Func: p.Func, Err: err}
	}
	return nil
}

func (d *Dispatcher) HandlePacket(ctx context.Context, p *message.Packet) error {
	return d.Dispatch(ctx, p)
}

func (d *Dispatcher) Remote() *Remote {
	return d.remote
}

func (d *Dispatcher) call(ctx context.Context, p *message.Packet) error {
	name, err := LocalName(p.Func)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnknownMethod, err)
	}
	h, ok := d.router.Lookup(name)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownMethod, name)
	}
	return h(ctx, d.remote, p.Args, p.Kwargs)
}
