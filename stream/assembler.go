// Package stream recovers discrete packets from a byte stream delivered in
// arbitrary chunk sizes.
//
// Assembler is the non-blocking form: callers push bytes as they arrive and
// collect every packet that became complete. Reader is the blocking form: it
// pulls from an io.Reader until exactly one packet is available.
//
// Neither type is safe for concurrent use; each channel owns its own.
package stream

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"p4rpc/message"
	"p4rpc/protocol"
)

// DefaultReadSize is the minimum number of bytes requested per Read.
var DefaultReadSize = 4096

const (
	// maxRetain caps the capacity kept by an empty buffer after a large packet.
	maxRetain = 1 << 20
	// maxReadAhead caps how far a single read grows the buffer past the bytes
	// already received, whatever length the peer announced.
	maxReadAhead = 64 << 10
)

var errClosed = errors.New("stream: assembler closed")

type Config struct {
	ReadSize      int // minimum Read size for Reader, DefaultReadSize if 0
	MaxPacketSize int // header + body limit, 0 means unlimited
}

// Assembler keeps the receive buffer of one channel.
type Assembler struct {
	buf  []byte
	need int // total bytes required before the next decode attempt
	max  int
	err  error // sticky framing error
}

func NewAssembler(config Config) *Assembler {
	return &Assembler{max: config.MaxPacketSize}
}

// Write appends data to the receive buffer. It fails only once the assembler
// hit a framing error or was closed.
func (a *Assembler) Write(data []byte) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	a.buf = append(a.buf, data...)
	return len(data), nil
}

// Buffered returns the number of bytes waiting in the receive buffer.
func (a *Assembler) Buffered() int {
	return len(a.buf)
}

// Next removes one complete packet from the front of the buffer. It returns
// nil, nil when more data is needed.
func (a *Assembler) Next() (*message.Packet, error) {
	if a.err != nil {
		return nil, a.err
	}
	if len(a.buf) < a.need {
		return nil, nil
	}

	res, err := protocol.DecodePacket(a.buf)
	if err != nil {
		a.err = err
		return nil, err
	}

	size := res.Need
	if res.Complete() {
		size = len(a.buf) - len(res.Tail)
	}
	if a.max > 0 && size > a.max {
		a.err = fmt.Errorf("%w: %d bytes, limit %d", protocol.ErrPacketTooLarge, size, a.max)
		return nil, a.err
	}

	if !res.Complete() {
		a.need = res.Need
		return nil, nil
	}

	// Tail aliases buf; copy handles the overlap.
	n := copy(a.buf, res.Tail)
	a.buf = a.buf[:n]
	if n == 0 && cap(a.buf) > maxRetain {
		a.buf = nil
	}
	a.need = 0
	return res.Packet, nil
}

// Feed appends data and returns every packet that is now complete. On a
// framing error the packets decoded before it are returned with the error.
func (a *Assembler) Feed(data []byte) ([]*message.Packet, error) {
	if _, err := a.Write(data); err != nil {
		return nil, err
	}

	var packets []*message.Packet
	for {
		p, err := a.Next()
		if err != nil {
			return packets, err
		}
		if p == nil {
			return packets, nil
		}
		packets = append(packets, p)
	}
}

// Close ends the assembler's life. Bytes still buffered belong to a packet
// that will never complete and are reported as ErrTruncatedStream.
func (a *Assembler) Close() error {
	if a.err == errClosed {
		return nil
	}
	n := len(a.buf)
	a.buf = nil
	a.err = errClosed
	if n > 0 {
		return fmt.Errorf("%w: %d bytes buffered", protocol.ErrTruncatedStream, n)
	}
	return nil
}

// readFrom reads once from r straight into the spare capacity of the buffer.
// The buffer grows with the bytes actually received, never by the whole
// announced length up front.
func (a *Assembler) readFrom(r io.Reader, readSize int) (int, error) {
	if a.err != nil {
		return 0, a.err
	}
	want := readSize
	if missing := a.need - len(a.buf); missing > want {
		want = min(missing, max(readSize, maxReadAhead))
	}
	a.buf = slices.Grow(a.buf, want)
	n, err := r.Read(a.buf[len(a.buf):cap(a.buf)])
	a.buf = a.buf[:len(a.buf)+n]
	return n, err
}
