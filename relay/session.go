package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/zhiqiangxu/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"p4rpc/logger"
	"p4rpc/message"
	"p4rpc/protocol"
	"p4rpc/rpc"
	"p4rpc/stream"
	"p4rpc/trace"
)

// session pairs one downstream connection with its upstream connection.
type session struct {
	relay *Relay
	id    string
	log   *zap.Logger

	down      net.Conn
	downProto *rpc.Protocol

	// sendMu orders upstream writes: the queue flush goes out before any
	// packet passed up later. Writes never hold mu, so close can always run.
	sendMu sync.Mutex

	mu      sync.Mutex // guards everything below
	up      net.Conn
	upProto *rpc.Protocol
	queued  []*message.Packet
	closed  bool
}

func newSession(r *Relay, down net.Conn) *session {
	s := &session{relay: r, id: uuid.NewString(), down: down}
	s.log = logger.L().With(zap.String("session", s.id), zap.Stringer("remote", down.RemoteAddr()))
	s.downProto = rpc.NewProtocol(down, rpc.PacketHandlerFunc(s.passUp), r.config.Stream)
	return s
}

func (s *session) run() {
	if !s.relay.track(s) {
		s.down.Close()
		return
	}
	defer s.relay.untrack(s)

	s.log.Info("relay: session opened")
	util.GoFunc(&s.relay.wg, s.connectUp)

	s.pump("downstream", s.down, s.downProto)
	s.close()
	s.log.Info("relay: session closed")
}

func (s *session) connectUp() {
	ctx, cancel := context.WithTimeout(s.relay.ctx, s.relay.config.DialTimeout)
	conn, err := s.relay.config.Dial(ctx, s.relay.config.Upstream)
	cancel()
	if err != nil {
		s.log.Error("relay: upstream dial failed", zap.String("upstream", s.relay.config.Upstream), zap.Error(err))
		s.close()
		return
	}

	upProto := rpc.NewProtocol(conn, rpc.PacketHandlerFunc(s.passDown), s.relay.config.Stream)

	s.sendMu.Lock()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.sendMu.Unlock()
		conn.Close()
		return
	}
	s.up = conn
	s.upProto = upProto
	queued := s.queued
	s.queued = nil
	s.mu.Unlock()

	// Flush queue
	var errs error
	for _, p := range queued {
		errs = multierr.Append(errs, s.forward(trace.Up, upProto, p))
	}
	s.sendMu.Unlock()
	if errs != nil {
		s.log.Warn("relay: flushing queued packets failed", zap.Error(errs))
	}

	s.pump("upstream", conn, upProto)
	// Upstream went away: close downstream.
	s.close()
}

// passUp runs on the downstream read goroutine.
func (s *session) passUp(ctx context.Context, p *message.Packet) error {
	s.mu.Lock()
	upProto := s.upProto
	if upProto == nil {
		s.queued = append(s.queued, p)
	}
	s.mu.Unlock()
	if upProto == nil {
		return nil
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.forward(trace.Up, upProto, p)
}

// passDown runs on the upstream read goroutine.
func (s *session) passDown(ctx context.Context, p *message.Packet) error {
	return s.forward(trace.Down, s.downProto, p)
}

func (s *session) forward(dir trace.Direction, to *rpc.Protocol, p *message.Packet) error {
	arrow := ">>>"
	if dir == trace.Down {
		arrow = "<<<"
	}
	s.log.Info("relay: packet", zap.String("dir", arrow), zap.String("func", p.Func),
		zap.ByteStrings("args", p.Args), zap.Object("kwargs", kwargs(p.Kwargs)))

	if rec := s.relay.config.Recorder; rec != nil {
		if err := rec.Record(s.id, dir, p); err != nil {
			s.log.Warn("relay: trace record failed", zap.Error(err))
		}
	}
	return to.SendPacket(p)
}

// pump feeds everything read from conn to proto until conn fails or a framing
// error makes the stream unusable.
func (s *session) pump(side string, conn net.Conn, proto *rpc.Protocol) {
	readSize := s.relay.config.Stream.ReadSize
	if readSize <= 0 {
		readSize = stream.DefaultReadSize
	}
	buf := make([]byte, readSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if derr := proto.DataReceived(s.relay.ctx, buf[:n]); derr != nil {
				if protocol.IsFatal(derr) {
					s.log.Error("relay: framing error", zap.String("side", side), zap.Error(derr))
					return
				}
				s.log.Warn("relay: forward failed", zap.String("side", side), zap.Error(derr))
			}
		}
		if err != nil {
			if lerr := proto.ConnectionLost(); lerr != nil {
				s.log.Warn("relay: connection lost", zap.String("side", side), zap.Error(lerr))
			} else if err != io.EOF && !errors.Is(err, net.ErrClosed) {
				s.log.Warn("relay: read failed", zap.String("side", side), zap.Error(err))
			}
			return
		}
	}
}

// close unblocks any write in progress on either side.
func (s *session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	up, dropped := s.up, len(s.queued)
	s.queued = nil
	s.mu.Unlock()

	if dropped > 0 {
		s.log.Warn("relay: dropping queued packets", zap.Int("count", dropped))
	}
	err := s.down.Close()
	if up != nil {
		err = multierr.Append(err, up.Close())
	}
	return err
}

// kwargs logs keyword arguments in key order.
type kwargs map[string][]byte

func (kw kwargs) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	p := message.Packet{Kwargs: kw}
	for _, k := range p.SortedKeys() {
		enc.AddByteString(k, kw[k])
	}
	return nil
}
