package stream

import (
	"fmt"
	"io"

	"p4rpc/message"
	"p4rpc/protocol"
)

// Reader is the blocking variant of Assembler. Bytes read past the end of a
// packet stay buffered for the next ReadPacket.
type Reader struct {
	r        io.Reader
	asm      *Assembler
	readSize int
	err      error // sticky read error
}

func NewReader(r io.Reader, config Config) *Reader {
	readSize := config.ReadSize
	if readSize <= 0 {
		readSize = DefaultReadSize
	}
	return &Reader{r: r, asm: NewAssembler(config), readSize: readSize}
}

// ReadPacket blocks until one packet is complete. When the underlying reader
// fails with an empty buffer its error (io.EOF on a clean close) is returned
// unchanged; with a partial packet buffered the error is ErrTruncatedStream
// wrapping the read error.
func (r *Reader) ReadPacket() (*message.Packet, error) {
	for {
		p, err := r.asm.Next()
		if err != nil || p != nil {
			return p, err
		}
		if r.err != nil {
			return nil, r.fail()
		}
		_, r.err = r.asm.readFrom(r.r, r.readSize)
	}
}

func (r *Reader) fail() error {
	if n := r.asm.Buffered(); n > 0 {
		r.asm.Close()
		return fmt.Errorf("%w: %d bytes buffered: %w", protocol.ErrTruncatedStream, n, r.err)
	}
	return r.err
}
