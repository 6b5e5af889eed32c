// Package relay is a logging proxy for p4rpc: every downstream connection gets
// its own upstream connection and packets are forwarded both ways unchanged.
//
//	downstream ──passUp──►  queue until connected ──► upstream
//	downstream ◄──passDown───────────────────────────  upstream
//
// Packets arriving before the upstream connection is up are queued and flushed
// in order once it is. When either side goes away the other is closed too.
package relay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zhiqiangxu/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/stream"
	"p4rpc/trace"
)

const DefaultDialTimeout = 5 * time.Second

// DialFunc opens the upstream connection for one session.
type DialFunc func(ctx context.Context, addr string) (net.Conn, error)

type Config struct {
	Upstream    string        // address every session is relayed to
	DialTimeout time.Duration // DefaultDialTimeout if 0
	Dial        DialFunc      // TCP if nil
	Stream      stream.Config
	Recorder    *trace.Recorder // optional, records every relayed packet
}

type Relay struct {
	config   Config
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	shutdown atomic.Bool
	mu       sync.Mutex
	listener net.Listener
	sessions map[*session]struct{}
}

func New(config Config) *Relay {
	if config.DialTimeout == 0 {
		config.DialTimeout = DefaultDialTimeout
	}
	if config.Dial == nil {
		d := net.Dialer{Timeout: config.DialTimeout}
		config.Dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return d.DialContext(ctx, "tcp", addr)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[*session]struct{}),
	}
}

// ListenAndServe listens on address and relays until Close.
func (r *Relay) ListenAndServe(address string) error {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	return r.Serve(ln)
}

// Serve accepts downstream connections on ln until Close.
func (r *Relay) Serve(ln net.Listener) error {
	r.mu.Lock()
	if r.shutdown.Load() {
		r.mu.Unlock()
		ln.Close()
		return fmt.Errorf("relay: closed")
	}
	r.listener = ln
	r.mu.Unlock()

	logger.L().Info("relay: serving", zap.Stringer("addr", ln.Addr()), zap.String("upstream", r.config.Upstream))

	var tempDelay time.Duration
	for {
		conn, err := ln.Accept()
		if err == nil {
			tempDelay = 0
			s := newSession(r, conn)
			util.GoFunc(&r.wg, s.run)
			continue
		}

		if r.shutdown.Load() {
			return nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			if tempDelay == 0 {
				tempDelay = 5 * time.Millisecond
			} else {
				tempDelay *= 2
			}
			if max := 1 * time.Second; tempDelay > max {
				tempDelay = max
			}
			logger.L().Error("relay: Accept", zap.Duration("retrying in", tempDelay), zap.Error(err))
			time.Sleep(tempDelay)
			continue
		}
		return err
	}
}

func (r *Relay) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

func (r *Relay) track(s *session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.shutdown.Load() {
		return false
	}
	r.sessions[s] = struct{}{}
	return true
}

func (r *Relay) untrack(s *session) {
	r.mu.Lock()
	delete(r.sessions, s)
	r.mu.Unlock()
}

// Close stops accepting, closes every session and waits for them to end.
// The recorder, if any, belongs to the caller and stays open.
func (r *Relay) Close() error {
	var errs error

	r.mu.Lock()
	r.shutdown.Store(true)
	r.cancel()
	if r.listener != nil {
		errs = multierr.Append(errs, r.listener.Close())
	}
	for s := range r.sessions {
		errs = multierr.Append(errs, s.close())
	}
	r.mu.Unlock()

	r.wg.Wait()
	return errs
}
