package protocol

import (
	"fmt"
	"io"
	"math"

	"p4rpc/codec"
	"p4rpc/message"
)

// Result is the outcome of DecodePacket: either a complete Packet with the
// bytes that follow it, or Need, the total number of buffered bytes required
// before decoding is worth retrying.
type Result struct {
	Packet *message.Packet
	Tail   []byte
	Need   int
}

// Complete reports whether r carries a packet.
func (r Result) Complete() bool {
	return r.Packet != nil
}

// EncodePacket returns header + body for p.
func EncodePacket(p *message.Packet) ([]byte, error) {
	body, err := codec.EncodePayload(p)
	if err != nil {
		return nil, err
	}
	length, err := bodyLength(uint64(len(body)))
	if err != nil {
		return nil, err
	}
	h := EncodeHeader(length)
	buf := make([]byte, 0, HeaderSize+len(body))
	buf = append(buf, h[:]...)
	return append(buf, body...), nil
}

// bodyLength checks n fits the header's 32-bit length field.
func bodyLength(n uint64) (uint32, error) {
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d byte body", ErrPacketTooLarge, n)
	}
	return uint32(n), nil
}

// DecodePacket decodes one packet from the beginning of buf. An incomplete
// packet is not an error: the returned Result has Need set instead. Tail
// aliases buf.
func DecodePacket(buf []byte) (Result, error) {
	length, ok, err := DecodeHeader(buf)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Need: HeaderSize}, nil
	}

	total64 := uint64(HeaderSize) + uint64(length)
	if total64 > math.MaxInt {
		return Result{}, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, total64)
	}
	total := int(total64)
	if len(buf) < total {
		return Result{Need: total}, nil
	}

	p, err := codec.DecodePayload(buf[HeaderSize:total])
	if err != nil {
		return Result{}, err
	}
	return Result{Packet: p, Tail: buf[total:]}, nil
}

// Write encodes p and writes it to w in a single Write call. The caller must
// serialize concurrent writers, otherwise packets interleave on the stream.
func Write(w io.Writer, p *message.Packet) error {
	buf, err := EncodePacket(p)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
