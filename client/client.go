// Package client opens p4rpc connections to servers found through a registry.
//
//	Dial(service) → registry.Discover → balancer.Pick → net.Dial → *rpc.Conn
//
// Transient dial failures (refused, timed out) are retried with exponential
// backoff, discovering again on every attempt so a dead server can be skipped.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"p4rpc/loadbalance"
	"p4rpc/logger"
	"p4rpc/registry"
	"p4rpc/rpc"
)

const (
	DefaultDialTimeout = 5 * time.Second
	DefaultMaxRetries  = 3
	DefaultBaseDelay   = 100 * time.Millisecond
)

type Config struct {
	Conn        rpc.Config
	Balancer    string        // loadbalance strategy name, used when NewClient gets no Balancer
	HashKey     string        // client key for the ConsistentHash strategy
	DialTimeout time.Duration // per attempt, DefaultDialTimeout if 0
	MaxRetries  int           // retries after the first attempt, DefaultMaxRetries if 0, none if negative
	BaseDelay   time.Duration // first backoff, doubled on each retry, DefaultBaseDelay if 0
}

func (c *Config) setDefaults() {
	if c.DialTimeout == 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	} else if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay == 0 {
		c.BaseDelay = DefaultBaseDelay
	}
}

type Client struct {
	registry registry.Registry // find service instance from registry
	balancer loadbalance.Balancer
	config   Config
}

// NewClient picks the strategy named by config.Balancer if bal is nil,
// round robin when that is empty too.
func NewClient(reg registry.Registry, bal loadbalance.Balancer, config Config) (*Client, error) {
	if bal == nil {
		var err error
		if bal, err = loadbalance.New(config.Balancer, config.HashKey); err != nil {
			return nil, err
		}
	}
	config.setDefaults()
	return &Client{
		registry: reg,
		balancer: bal,
		config:   config,
	}, nil
}

// Dial connects to one instance of serviceName. Packets arriving on the
// returned connection are dispatched to router once the caller runs it.
func (c *Client) Dial(ctx context.Context, serviceName string, router *rpc.Router) (*rpc.Conn, error) {
	return retry(ctx, c.config, func(ctx context.Context) (*rpc.Conn, error) {
		instances, err := c.registry.Discover(serviceName)
		if err != nil {
			return nil, err
		}
		instance, err := c.balancer.Pick(instances)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", serviceName, err)
		}
		return dial(ctx, instance.Addr, router, c.config)
	})
}

// DialAddr connects to a known address, skipping discovery.
func DialAddr(ctx context.Context, addr string, router *rpc.Router, config Config) (*rpc.Conn, error) {
	config.setDefaults()
	return retry(ctx, config, func(ctx context.Context) (*rpc.Conn, error) {
		return dial(ctx, addr, router, config)
	})
}

func dial(ctx context.Context, addr string, router *rpc.Router, config Config) (*rpc.Conn, error) {
	d := net.Dialer{Timeout: config.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if config.Conn.Logger == nil {
		config.Conn.Logger = logger.L().With(zap.String("server", addr))
	}
	return rpc.NewConn(conn, router, config.Conn), nil
}

// retry runs attempt until it succeeds, fails with a permanent error or the
// retries run out. The error of every attempt is kept.
func retry(ctx context.Context, config Config, attempt func(context.Context) (*rpc.Conn, error)) (*rpc.Conn, error) {
	var errs error
	for i := 0; ; i++ {
		conn, err := attempt(ctx)
		if err == nil {
			return conn, nil
		}
		errs = multierr.Append(errs, err)
		if !retryable(err) || i >= config.MaxRetries {
			return nil, errs
		}

		delay := config.BaseDelay * time.Duration(1<<i) // Exponential backoff
		logger.L().Warn("p4rpc: dial failed, retrying", zap.Int("attempt", i+1), zap.Duration("delay", delay), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, multierr.Append(errs, ctx.Err())
		case <-time.After(delay):
		}
	}
}

func retryable(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
