package protocol

import "encoding/binary"

// EncodeHeader builds the header for a body of the given length.
func EncodeHeader(length uint32) [HeaderSize]byte {
	var h [HeaderSize]byte
	binary.LittleEndian.PutUint32(h[1:], length)
	h[0] = h[1] ^ h[2] ^ h[3] ^ h[4]
	return h
}

// DecodeHeader reads the body length from the start of buf. ok is false when
// fewer than HeaderSize bytes are available.
func DecodeHeader(buf []byte) (length uint32, ok bool, err error) {
	if len(buf) < HeaderSize {
		return 0, false, nil
	}
	if buf[0] != buf[1]^buf[2]^buf[3]^buf[4] {
		return 0, false, ErrInvalidChecksum
	}
	return binary.LittleEndian.Uint32(buf[1:HeaderSize]), true, nil
}
