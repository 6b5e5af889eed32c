// Command server answers protocol with protocol2 on 127.0.0.1:1668.
// Run example/proxy in front of it and point example/client at the proxy.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/message"
	"p4rpc/middleware"
	"p4rpc/rpc"
	"p4rpc/server"
)

type RPC struct{}

func (s *RPC) Protocol(ctx context.Context, remote *rpc.Remote, args [][]byte, kwargs map[string][]byte) error {
	fmt.Println("PROTOCOL", message.New("protocol", args, kwargs))
	return remote.Call("protocol2", message.Strings("hello there"), map[string][]byte{"foo": []byte("456")})
}

func main() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	logger.Set(l)
	defer l.Sync()

	svr := server.NewServer(server.Config{})
	svr.Use(middleware.RecoverMiddleware())
	svr.Use(middleware.LoggingMiddleware())
	if err := svr.Register(&RPC{}); err != nil {
		l.Fatal("register", zap.Error(err))
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := svr.Shutdown(3 * time.Second); err != nil {
			l.Error("shutdown", zap.Error(err))
		}
	}()

	if err := svr.Serve("tcp", "127.0.0.1:1668", "127.0.0.1:1668", nil); err != nil {
		l.Fatal("serve", zap.Error(err))
	}
}
