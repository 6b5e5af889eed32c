package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"p4rpc/logger"
	"p4rpc/message"
)

// 模拟一个简单的 handler：直接返回成功
func echoHandler(ctx context.Context, p *message.Packet) error {
	return nil
}

// 模拟一个慢 handler：等到 ctx 结束或 200ms
func slowHandler(ctx context.Context, p *message.Packet) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(200 * time.Millisecond):
		return nil
	}
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger.Set(zap.New(core))
	defer logger.Set(nil)

	boom := errors.New("boom")
	handler := LoggingMiddleware()(func(ctx context.Context, p *message.Packet) error {
		if p.Func == "bad" {
			return boom
		}
		return nil
	})

	if err := handler(context.Background(), message.New("protocol", nil, nil)); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if err := handler(context.Background(), message.New("bad", nil, nil)); !errors.Is(err, boom) {
		t.Fatalf("expect handler error to pass through, got %v", err)
	}

	if logs.FilterMessage("p4rpc: dispatched").Len() != 1 {
		t.Fatalf("expect 1 debug entry, got %v", logs.All())
	}
	failed := logs.FilterMessage("p4rpc: dispatch failed").All()
	if len(failed) != 1 || failed[0].ContextMap()["func"] != "bad" {
		t.Fatalf("expect 1 warn entry for bad, got %v", failed)
	}
}

func TestTimeoutPass(t *testing.T) {
	// 超时 500ms，handler 很快，应该正常返回
	handler := TimeOutMiddleware(500 * time.Millisecond)(echoHandler)

	if err := handler(context.Background(), message.New("protocol", nil, nil)); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	// 超时 50ms，handler 需要 200ms，应该超时
	handler := TimeOutMiddleware(50 * time.Millisecond)(slowHandler)

	start := time.Now()
	err := handler(context.Background(), message.New("protocol", nil, nil))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expect ErrTimedOut, got %v", err)
	}
	if time.Since(start) >= 200*time.Millisecond {
		t.Fatal("handler should have been cut short by the deadline")
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1 per second, burst=2 → 前 2 个立刻放行，第 3 个被拒
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	p := message.New("protocol", nil, nil)

	for i := 0; i < 2; i++ {
		if err := handler(context.Background(), p); err != nil {
			t.Fatalf("request %d should pass, got error: %v", i, err)
		}
	}

	if err := handler(context.Background(), p); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("request 3 should be rate limited, got: %v", err)
	}
}

func TestRecover(t *testing.T) {
	handler := RecoverMiddleware()(func(ctx context.Context, p *message.Packet) error {
		panic("bad handler")
	})

	err := handler(context.Background(), message.New("explode", nil, nil))
	if err == nil {
		t.Fatal("expect panic to become an error")
	}
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, p *message.Packet) error {
				order = append(order, name)
				return next(ctx, p)
			}
		}
	}

	handler := Chain(mark("A"), mark("B"), LoggingMiddleware(), TimeOutMiddleware(500*time.Millisecond))(echoHandler)
	if err := handler(context.Background(), message.New("protocol", nil, nil)); err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if len(order) != 2 || order[0] != "A" || order[1] != "B" {
		t.Fatalf("expect A then B, got %v", order)
	}
}
