package rpc

import (
	"context"
	"io"
	"sync"

	"go.uber.org/multierr"

	"p4rpc/message"
	"p4rpc/protocol"
	"p4rpc/stream"
)

// Protocol drives one channel in buffered mode: the owner of the connection
// pushes every chunk it reads into DataReceived, which hands each complete
// packet to the handler before returning. It never blocks on input.
type Protocol struct {
	w       io.Writer
	writeMu sync.Mutex
	asm     *stream.Assembler
	handler PacketHandler
	remote  *Remote
}

// NewProtocol forwards every packet to handler.
func NewProtocol(w io.Writer, handler PacketHandler, config stream.Config) *Protocol {
	p := &Protocol{w: w, asm: stream.NewAssembler(config), handler: handler}
	p.remote = NewRemote(p.SendPacket)
	return p
}

// NewRPCProtocol dispatches every packet through router.
func NewRPCProtocol(w io.Writer, router *Router, config stream.Config) *Protocol {
	p := NewProtocol(w, nil, config)
	p.handler = NewDispatcher(router, p.remote)
	return p
}

// DataReceived feeds chunk to the assembler and handles every packet it
// completes. Handler errors are combined and returned after all packets ran;
// a framing error (see protocol.IsFatal) means the connection must be closed.
func (p *Protocol) DataReceived(ctx context.Context, chunk []byte) error {
	packets, ferr := p.asm.Feed(chunk)

	var errs error
	for _, pk := range packets {
		errs = multierr.Append(errs, p.handler.HandlePacket(ctx, pk))
	}
	return multierr.Combine(ferr, errs)
}

// ConnectionLost ends the channel; a partial packet left in the buffer is
// reported as protocol.ErrTruncatedStream.
func (p *Protocol) ConnectionLost() error {
	return p.asm.Close()
}

// SendPacket writes pk to the peer.
func (p *Protocol) SendPacket(pk *message.Packet) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return protocol.Write(p.w, pk)
}

func (p *Protocol) Remote() *Remote {
	return p.remote
}
