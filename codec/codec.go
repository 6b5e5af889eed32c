// Package codec converts a Packet to and from a packet body.
//
// BinaryCodec is the wire payload format; JSONCodec is a human-readable form
// used for packet traces and debugging, never sent to a peer.
package codec

import "p4rpc/message"

type CodecType byte

const (
	CodecTypeBinary CodecType = 0
	CodecTypeJSON   CodecType = 1
)

type Codec interface {
	Encode(p *message.Packet) ([]byte, error)
	Decode(data []byte) (*message.Packet, error)
	Type() CodecType // 0=Binary, 1=JSON
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}
