package rpc

import "p4rpc/message"

// SendFunc writes one packet to the peer.
type SendFunc func(p *message.Packet) error

// Remote is the outbound proxy of a channel.
type Remote struct {
	send SendFunc
}

func NewRemote(send SendFunc) *Remote {
	return &Remote{send: send}
}

// Call sends a packet invoking the peer's handler for the local name, e.g.
// Call("protocol2", ...) or Call("client__Message", ...) which goes out as
// "client-Message". It returns once the packet is written.
func (r *Remote) Call(name string, args [][]byte, kwargs map[string][]byte) error {
	wire, err := WireName(name)
	if err != nil {
		return err
	}
	return r.send(message.New(wire, args, kwargs))
}
