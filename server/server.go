// Package server accepts p4rpc connections and serves each one in blocking
// mode with a shared Router.
//
// Connection pipeline:
//
//	Accept conn → handleConn (one goroutine per connection)
//	  → rpc.Conn.RunForever: read one packet → middleware chain → handler → next packet
//
// Packets of one connection are dispatched strictly in order; connections are
// independent of each other.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/zhiqiangxu/util"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/middleware"
	"p4rpc/registry"
	"p4rpc/rpc"
)

const (
	DefaultServiceName = "p4rpc"
	DefaultTTL         = 10 // seconds, KeepAlive renews the lease automatically
)

type Config struct {
	Conn        rpc.Config // per-connection stream settings; Logger is set per session
	ServiceName string     // name registered in the registry, DefaultServiceName if empty
	TTL         int64      // registry lease in seconds, DefaultTTL if 0
}

// Server is the RPC server that owns the Router shared by all connections.
type Server struct {
	router        *rpc.Router
	config        Config
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup // tracks connection goroutines for graceful shutdown
	shutdown      atomic.Bool    // set during shutdown to suppress Accept errors
	mu            sync.Mutex
	listener      net.Listener
	conns         map[*rpc.Conn]struct{} // live connections, closed on shutdown
	registry      registry.Registry      // nil if not using discovery
	advertiseAddr string                 // address registered in the registry, routable unlike ":1666"
}

func NewServer(config Config) *Server {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}
	if config.TTL == 0 {
		config.TTL = DefaultTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		router: rpc.NewRouter(),
		config: config,
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[*rpc.Conn]struct{}),
	}
}

func (svr *Server) Router() *rpc.Router {
	return svr.router
}

// Register exposes every handler method of rcvr, see rpc.Router.Register.
func (svr *Server) Register(rcvr any) error {
	return svr.router.Register(rcvr)
}

func (svr *Server) HandleFunc(name string, h rpc.HandlerFunc) error {
	return svr.router.HandleFunc(name, h)
}

// Use registers a middleware. Must be called before Serve.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.router.Use(mw)
}

// Serve listens on the given address and serves until Shutdown.
//
// Parameters:
//   - advertiseAddr: the address to register, e.g. "127.0.0.1:1666".
//   - reg: the registry implementation. Pass nil to skip service discovery.
func (svr *Server) Serve(network, address string, advertiseAddr string, reg registry.Registry) error {
	ln, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(ln, advertiseAddr, reg)
}

// ServeListener is Serve on an existing listener.
func (svr *Server) ServeListener(ln net.Listener, advertiseAddr string, reg registry.Registry) error {
	svr.mu.Lock()
	if svr.shutdown.Load() {
		svr.mu.Unlock()
		ln.Close()
		return fmt.Errorf("p4rpc: server is shut down")
	}
	svr.listener = ln
	svr.registry = reg
	svr.advertiseAddr = advertiseAddr
	svr.mu.Unlock()

	if reg != nil {
		instance := registry.ServiceInstance{Addr: advertiseAddr}
		if err := reg.Register(svr.config.ServiceName, instance, svr.config.TTL); err != nil {
			return fmt.Errorf("p4rpc: register %s: %w", svr.config.ServiceName, err)
		}
	}
	logger.L().Info("p4rpc: serving", zap.Stringer("addr", ln.Addr()), zap.Strings("handlers", svr.router.Names()))

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := ln.Accept()
		if err == nil {
			tempDelay = 0
			util.GoFunc(&svr.wg, func() {
				svr.handleConn(conn)
			})
			continue
		}

		// During shutdown, listener.Close() causes Accept to return an error.
		if svr.shutdown.Load() {
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
			logger.L().Error("p4rpc: Accept", zap.Duration("retrying in", tempDelay), zap.Error(err))
			time.Sleep(tempDelay)
			continue
		}
		return err
	}
}

// Addr returns the listener address, nil before Serve.
func (svr *Server) Addr() net.Addr {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.listener == nil {
		return nil
	}
	return svr.listener.Addr()
}

// handleConn serves one connection until the peer leaves, a framing error
// occurs or the server shuts down.
func (svr *Server) handleConn(conn net.Conn) {
	session := uuid.NewString()
	log := logger.L().With(zap.String("session", session), zap.Stringer("remote", conn.RemoteAddr()))

	config := svr.config.Conn
	config.Logger = log
	c := rpc.NewConn(conn, svr.router, config)

	if !svr.track(c) {
		conn.Close()
		return
	}
	defer func() {
		svr.untrack(c)
		conn.Close()
	}()

	log.Info("p4rpc: connection opened")
	err := c.RunForever(svr.ctx)
	if err != nil && !svr.shutdown.Load() {
		log.Warn("p4rpc: connection failed", zap.Error(err))
		return
	}
	log.Info("p4rpc: connection closed")
}

func (svr *Server) track(c *rpc.Conn) bool {
	svr.mu.Lock()
	defer svr.mu.Unlock()
	if svr.shutdown.Load() {
		return false
	}
	svr.conns[c] = struct{}{}
	return true
}

func (svr *Server) untrack(c *rpc.Conn) {
	svr.mu.Lock()
	delete(svr.conns, c)
	svr.mu.Unlock()
}

// Shutdown performs graceful shutdown:
//  1. Deregister from the registry (clients stop dialing this server)
//  2. Set shutdown flag (so Accept error is recognized as intentional)
//  3. Close the listener and every live connection, unblocking their reads
//  4. Wait for connection goroutines to finish (with timeout)
func (svr *Server) Shutdown(timeout time.Duration) error {
	var errs error

	svr.mu.Lock()
	if svr.registry != nil {
		errs = multierr.Append(errs, svr.registry.Deregister(svr.config.ServiceName, svr.advertiseAddr))
	}

	// Set the flag BEFORE closing the listener, otherwise Serve may see the
	// Accept error first and report it.
	svr.shutdown.Store(true)
	svr.cancel()
	if svr.listener != nil {
		errs = multierr.Append(errs, svr.listener.Close())
	}
	for c := range svr.conns {
		errs = multierr.Append(errs, c.Close())
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return errs
	case <-time.After(timeout):
		return multierr.Append(errs, fmt.Errorf("timeout waiting for connections to finish"))
	}
}
