package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"p4rpc/message"
	"p4rpc/registry"
	"p4rpc/rpc"
)

type Perforce struct{}

func (p *Perforce) Protocol(ctx context.Context, remote *rpc.Remote, args [][]byte, kwargs map[string][]byte) error {
	return remote.Call("protocol2", message.Strings("hello there"), map[string][]byte{"foo": []byte("456")})
}

type mockRegistry struct {
	mu        sync.Mutex
	instances map[string][]registry.ServiceInstance
}

func (m *mockRegistry) Register(serviceName string, inst registry.ServiceInstance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.instances[serviceName] = append(m.instances[serviceName], inst)
	return nil
}

func (m *mockRegistry) Deregister(serviceName string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	insts := m.instances[serviceName]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[serviceName] = append(insts[:i], insts[i+1:]...)
			break
		}
	}
	return nil
}

func (m *mockRegistry) Discover(serviceName string) ([]registry.ServiceInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]registry.ServiceInstance(nil), m.instances[serviceName]...), nil
}

func (m *mockRegistry) Watch(serviceName string) <-chan []registry.ServiceInstance {
	return nil
}

func startServer(t *testing.T, reg registry.Registry) (*Server, string) {
	t.Helper()
	svr := NewServer(Config{})
	if err := svr.Register(&Perforce{}); err != nil {
		t.Fatalf("Failed to register handlers: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	go svr.ServeListener(ln, addr, reg)
	return svr, addr
}

func TestServer(t *testing.T) {
	svr, addr := startServer(t, nil)
	defer svr.Shutdown(3 * time.Second)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	c := rpc.NewConn(conn, rpc.NewRouter(), rpc.Config{})

	// An unknown function must not kill the connection.
	if err := c.Remote().Call("no__such", nil, nil); err != nil {
		t.Fatal(err)
	}
	if err := c.Remote().Call("protocol", nil, nil); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	reply, err := c.ReadPacket()
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	if reply.Func != "protocol2" || string(reply.Kwargs["foo"]) != "456" {
		t.Fatalf("Expect protocol2 reply, get %s", reply)
	}
}

func TestServerRegistry(t *testing.T) {
	reg := &mockRegistry{instances: make(map[string][]registry.ServiceInstance)}
	svr, addr := startServer(t, reg)

	deadline := time.Now().Add(3 * time.Second)
	for {
		instances, _ := reg.Discover(DefaultServiceName)
		if len(instances) == 1 && instances[0].Addr == addr {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never registered, got %v", instances)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := svr.Shutdown(3 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if instances, _ := reg.Discover(DefaultServiceName); len(instances) != 0 {
		t.Fatalf("expect deregistration on shutdown, got %v", instances)
	}
}

func TestShutdownClosesConnections(t *testing.T) {
	svr, addr := startServer(t, nil)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Make sure the connection is being served before shutting down.
	c := rpc.NewConn(conn, rpc.NewRouter(), rpc.Config{})
	c.Remote().Call("protocol", nil, nil)
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, err := c.ReadPacket(); err != nil {
		t.Fatal(err)
	}

	if err := svr.Shutdown(3 * time.Second); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if _, err := c.ReadPacket(); err == nil {
		t.Fatal("expect the server to have closed the connection")
	}
}
