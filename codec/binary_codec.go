package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"p4rpc/message"
)

// ErrMalformedPayload means a payload ended in the middle of an entry. The
// payload length is known up front, so this is never a partial read: the
// stream is out of sync and the channel has to be closed.
var ErrMalformedPayload = errors.New("codec: malformed payload")

// BinaryCodec encodes the packet body as a sequence of entries:
//
//	key (NUL terminated) | value length (uint32, little-endian) | value | NUL
//
// Keyword arguments come first in sorted key order, then every positional
// argument under the empty key, then the function name under "func".
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(p *message.Packet) ([]byte, error) {
	return EncodePayload(p)
}

func (c *BinaryCodec) Decode(data []byte) (*message.Packet, error) {
	return DecodePayload(data)
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

// entrySize is the encoded size of one key/value entry.
func entrySize(key string, value []byte) int {
	return len(key) + 1 + 4 + len(value) + 1
}

func appendEntry(buf []byte, key string, value []byte) []byte {
	buf = append(buf, key...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(value)))
	buf = append(buf, value...)
	return append(buf, 0)
}

// EncodePayload serializes p into a packet body.
func EncodePayload(p *message.Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	keys := p.SortedKeys()

	// Calculate the length of the body
	total := entrySize(message.FuncKey, []byte(p.Func))
	for _, k := range keys {
		total += entrySize(k, p.Kwargs[k])
	}
	for _, a := range p.Args {
		total += entrySize("", a)
	}

	buf := make([]byte, 0, total)
	for _, k := range keys {
		buf = appendEntry(buf, k, p.Kwargs[k])
	}
	for _, a := range p.Args {
		buf = appendEntry(buf, "", a)
	}
	buf = appendEntry(buf, message.FuncKey, []byte(p.Func))
	return buf, nil
}

// DecodePayload parses a complete packet body. Repeated "func" or keyword
// entries keep the last occurrence; repeated empty keys become successive
// positional arguments. Values are copied out of data.
func DecodePayload(data []byte) (*message.Packet, error) {
	p := message.New("", nil, nil)
	seenFunc := false
	offset := 0

	for offset < len(data) {
		// Key -- NUL terminated
		end := bytes.IndexByte(data[offset:], 0)
		if end < 0 {
			return nil, fmt.Errorf("%w: unterminated key at offset %d", ErrMalformedPayload, offset)
		}
		key := string(data[offset : offset+end])
		offset += end + 1

		// Value length -- 4 bytes
		if len(data)-offset < 4 {
			return nil, fmt.Errorf("%w: truncated length of %q at offset %d", ErrMalformedPayload, key, offset)
		}
		n := uint64(binary.LittleEndian.Uint32(data[offset:]))
		offset += 4

		// Value -- n bytes, then the trailing NUL
		if uint64(len(data)-offset) < n+1 {
			return nil, fmt.Errorf("%w: truncated value of %q at offset %d", ErrMalformedPayload, key, offset)
		}
		value := make([]byte, n)
		copy(value, data[offset:])
		offset += int(n)
		if data[offset] != 0 {
			return nil, fmt.Errorf("%w: missing terminator after %q at offset %d", ErrMalformedPayload, key, offset)
		}
		offset++

		switch key {
		case message.FuncKey:
			p.Func = string(value)
			seenFunc = true
		case "":
			p.Args = append(p.Args, value)
		default:
			p.Kwargs[key] = value
		}
	}

	if !seenFunc {
		return nil, fmt.Errorf("%w: no %q entry", ErrMalformedPayload, message.FuncKey)
	}
	return p, nil
}
