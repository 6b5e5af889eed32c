package rpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/message"
	"p4rpc/protocol"
	"p4rpc/stream"
)

type Config struct {
	Stream stream.Config
	Logger *zap.Logger // logger.L() if nil
}

// Conn drives one channel in blocking mode. Reads and dispatch happen on the
// goroutine calling RunOnce/RunForever; Send may be called from any goroutine.
type Conn struct {
	rw      io.ReadWriter
	reader  *stream.Reader
	writeMu sync.Mutex
	disp    *Dispatcher
	running atomic.Bool
	log     *zap.Logger
}

func NewConn(rw io.ReadWriter, router *Router, config Config) *Conn {
	c := &Conn{
		rw:     rw,
		reader: stream.NewReader(rw, config.Stream),
		log:    config.Logger,
	}
	if c.log == nil {
		c.log = logger.L()
	}
	c.disp = NewDispatcher(router, NewRemote(c.Send))
	return c
}

// Send writes p to the peer. Writes are serialized so packets from different
// goroutines never interleave.
func (c *Conn) Send(p *message.Packet) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return protocol.Write(c.rw, p)
}

func (c *Conn) Remote() *Remote {
	return c.disp.Remote()
}

// ReadPacket blocks until one packet arrives, without dispatching it.
func (c *Conn) ReadPacket() (*message.Packet, error) {
	return c.reader.ReadPacket()
}

// RunOnce blocks until one packet arrives and dispatches it. The packet is
// returned even when dispatch fails with a *DispatchError.
func (c *Conn) RunOnce(ctx context.Context) (*message.Packet, error) {
	p, err := c.reader.ReadPacket()
	if err != nil {
		return nil, err
	}
	return p, c.disp.Dispatch(ctx, p)
}

// RunForever dispatches packets until Stop is called, ctx is done, the peer
// closes the stream or a framing error occurs. Dispatch errors are logged and
// do not end the loop. A clean end of stream returns nil.
//
// ctx is checked between packets; to interrupt a blocked read, close the
// underlying connection.
func (c *Conn) RunForever(ctx context.Context) error {
	c.running.Store(true)
	for c.running.Load() {
		if err := ctx.Err(); err != nil {
			return err
		}

		_, err := c.RunOnce(ctx)
		if err == nil {
			continue
		}

		var de *DispatchError
		if errors.As(err, &de) {
			c.log.Warn("p4rpc: dispatch error", zap.String("func", de.Func), zap.Error(de.Err))
			continue
		}
		if err == io.EOF {
			return nil
		}
		if protocol.IsFatal(err) {
			c.log.Error("p4rpc: framing error, closing channel", zap.Error(err))
		}
		return err
	}
	return nil
}

// Stop makes RunForever return after the current packet. It is meant to be
// called from a handler.
func (c *Conn) Stop() {
	c.running.Store(false)
}

// Close closes the underlying stream if it is an io.Closer.
func (c *Conn) Close() error {
	if closer, ok := c.rw.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
