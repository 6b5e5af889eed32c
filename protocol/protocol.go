// Package protocol implements the packet framing of p4rpc.
//
// Every packet is a fixed 5-byte header followed by a variable-length body.
// The receiver decodes the header first to learn the body length, then waits
// until that many body bytes are buffered. The checksum byte is the XOR of the
// four length bytes and catches a stream that has lost sync.
//
// Frame format:
//
//	0     1                 5
//	┌─────┬─────────────────┬───────────────────────┐
//	│ xor │   body length   │        body ...       │
//	│ u8  │ uint32 (LE)     │ body length bytes     │
//	└─────┴─────────────────┴───────────────────────┘
package protocol

import (
	"errors"

	"p4rpc/codec"
)

const HeaderSize = 5 // 1 (checksum) + 4 (body length)

var (
	// ErrInvalidChecksum means the header checksum does not match its length
	// bytes. Not retried: the channel has to be closed.
	ErrInvalidChecksum = errors.New("protocol: invalid header checksum")

	// ErrMalformedPayload is the payload codec's error, re-exported so callers
	// can classify framing errors from one package.
	ErrMalformedPayload = codec.ErrMalformedPayload

	// ErrPacketTooLarge means a packet is above the configured limit or does
	// not fit the 32-bit length field.
	ErrPacketTooLarge = errors.New("protocol: packet too large")

	// ErrTruncatedStream means the channel ended with part of a packet still
	// buffered.
	ErrTruncatedStream = errors.New("protocol: stream truncated mid-packet")
)

// IsFatal reports whether err is a framing error after which the channel
// can no longer be read.
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidChecksum) ||
		errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrPacketTooLarge) ||
		errors.Is(err, ErrTruncatedStream)
}
