// Command proxy listens on 127.0.0.1:1667, relays every connection to the
// server on 127.0.0.1:1668 and logs each packet in both directions. The
// packets are also recorded to p4rpc.trace.
package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/relay"
	"p4rpc/trace"
)

func main() {
	l, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	logger.Set(l)
	defer l.Sync()

	f, err := os.Create("p4rpc.trace")
	if err != nil {
		l.Fatal("create trace", zap.Error(err))
	}
	rec := trace.NewRecorder(f)
	defer rec.Close()

	r := relay.New(relay.Config{
		Upstream: "127.0.0.1:1668",
		Recorder: rec,
	})

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		if err := r.Close(); err != nil {
			l.Error("close", zap.Error(err))
		}
	}()

	if err := r.ListenAndServe("127.0.0.1:1667"); err != nil {
		l.Error("serve", zap.Error(err))
	}
}
