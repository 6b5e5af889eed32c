package codec

import (
	"encoding/json"

	"p4rpc/message"
)

// JSONCodec uses encoding/json; byte-string values come out base64 encoded,
// so arbitrary binary arguments survive a round trip.
type JSONCodec struct{}

func (c *JSONCodec) Encode(p *message.Packet) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

func (c *JSONCodec) Decode(data []byte) (*message.Packet, error) {
	var p message.Packet
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Kwargs == nil {
		p.Kwargs = make(map[string][]byte)
	}
	return &p, p.Validate()
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}
