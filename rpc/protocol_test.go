package rpc

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"p4rpc/message"
	"p4rpc/protocol"
	"p4rpc/stream"
)

func TestDataReceivedChunks(t *testing.T) {
	data := encode(t,
		message.New("protocol", message.Strings("1"), nil),
		message.New("missing", nil, nil),
		message.New("protocol", message.Strings("2"), nil),
	)

	for size := 1; size <= len(data); size++ {
		var out bytes.Buffer
		proto := NewRPCProtocol(&out, echoRouter(t), stream.Config{})

		unknown := 0
		for off := 0; off < len(data); off += size {
			end := min(off+size, len(data))
			err := proto.DataReceived(context.Background(), data[off:end])
			if protocol.IsFatal(err) {
				t.Fatalf("chunk size %d: fatal error %v", size, err)
			}
			if errors.Is(err, ErrUnknownMethod) {
				unknown++
			}
		}

		if unknown != 1 {
			t.Fatalf("chunk size %d: expect 1 unknown method, got %d", size, unknown)
		}
		sent := decodeAll(t, out.Bytes())
		if len(sent) != 2 || string(sent[0].Args[0]) != "1" || string(sent[1].Args[0]) != "2" {
			t.Fatalf("chunk size %d: unexpected replies %v", size, sent)
		}
		if err := proto.ConnectionLost(); err != nil {
			t.Fatalf("chunk size %d: ConnectionLost failed: %v", size, err)
		}
	}
}

func TestDataReceivedFatal(t *testing.T) {
	good := encode(t, message.New("protocol", nil, nil))
	bad := append([]byte(nil), good...)
	bad[1] ^= 0x01

	var out bytes.Buffer
	proto := NewRPCProtocol(&out, echoRouter(t), stream.Config{})
	err := proto.DataReceived(context.Background(), append(append([]byte(nil), good...), bad...))
	if !errors.Is(err, protocol.ErrInvalidChecksum) {
		t.Fatalf("expect ErrInvalidChecksum, got %v", err)
	}
	// The packet ahead of the corruption was still dispatched.
	if sent := decodeAll(t, out.Bytes()); len(sent) != 1 {
		t.Fatalf("expect 1 reply, got %d", len(sent))
	}
}

func TestConnectionLostTruncated(t *testing.T) {
	data := encode(t, message.New("protocol", nil, nil))
	var out bytes.Buffer
	proto := NewRPCProtocol(&out, echoRouter(t), stream.Config{})
	if err := proto.DataReceived(context.Background(), data[:3]); err != nil {
		t.Fatal(err)
	}
	if err := proto.ConnectionLost(); !errors.Is(err, protocol.ErrTruncatedStream) {
		t.Fatalf("expect ErrTruncatedStream, got %v", err)
	}
}

func TestProtocolHandler(t *testing.T) {
	var got []*message.Packet
	var out bytes.Buffer
	proto := NewProtocol(&out, PacketHandlerFunc(func(ctx context.Context, p *message.Packet) error {
		got = append(got, p)
		return nil
	}), stream.Config{})

	if err := proto.DataReceived(context.Background(), encode(t, message.New("a-b", nil, nil))); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Func != "a-b" {
		t.Fatalf("expect raw packet a-b, got %v", got)
	}

	if err := proto.Remote().Call("x__y", nil, nil); err != nil {
		t.Fatal(err)
	}
	if sent := decodeAll(t, out.Bytes()); len(sent) != 1 || sent[0].Func != "x-y" {
		t.Fatalf("expect x-y sent, got %v", sent)
	}
}
