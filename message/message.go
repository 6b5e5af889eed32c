// Package message defines the Packet exchanged between two p4rpc peers.
//
// A Packet is one logical RPC message: the name of the remote function, its
// positional arguments and its keyword arguments. Every value is an opaque
// byte string; this layer never interprets it (no UTF-8 or numeric decoding).
package message

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// FuncKey is the payload key reserved for the function name.
const FuncKey = "func"

var (
	ErrEmptyFunc   = errors.New("message: empty function name")
	ErrReservedKey = errors.New("message: reserved keyword argument key")
)

// Packet carries the data for a single RPC invocation.
//
//   - Func:   wire name of the remote operation, e.g. "client-Message".
//   - Args:   positional values, order is significant.
//   - Kwargs: keyword values; serialized in sorted key order.
type Packet struct {
	Func   string            `json:"func"`
	Args   [][]byte          `json:"args"`
	Kwargs map[string][]byte `json:"kwargs"`
}

// New builds a packet. A nil kwargs map is replaced by an empty one.
func New(fn string, args [][]byte, kwargs map[string][]byte) *Packet {
	if kwargs == nil {
		kwargs = make(map[string][]byte)
	}
	return &Packet{Func: fn, Args: args, Kwargs: kwargs}
}

// Strings converts string values into the byte-string form used by Args.
func Strings(values ...string) [][]byte {
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out
}

// Validate reports whether p can be put on the wire.
func (p *Packet) Validate() error {
	if p.Func == "" {
		return ErrEmptyFunc
	}
	for k := range p.Kwargs {
		if k == "" || k == FuncKey {
			return fmt.Errorf("%w: %q", ErrReservedKey, k)
		}
	}
	return nil
}

// SortedKeys returns the kwargs keys in serialization order.
func (p *Packet) SortedKeys() []string {
	keys := make([]string, 0, len(p.Kwargs))
	for k := range p.Kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Equal compares function name, args in order and kwargs as a set.
// A nil and an empty value compare equal.
func (p *Packet) Equal(o *Packet) bool {
	if p == nil || o == nil {
		return p == o
	}
	if p.Func != o.Func || len(p.Args) != len(o.Args) || len(p.Kwargs) != len(o.Kwargs) {
		return false
	}
	for i := range p.Args {
		if !bytes.Equal(p.Args[i], o.Args[i]) {
			return false
		}
	}
	for k, v := range p.Kwargs {
		ov, ok := o.Kwargs[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}
	return true
}

// String renders the packet for diagnostics: func(arg, ...) {k=v ...}.
func (p *Packet) String() string {
	var sb strings.Builder
	sb.WriteString(p.Func)
	sb.WriteByte('(')
	for i, a := range p.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%q", a)
	}
	sb.WriteByte(')')
	if len(p.Kwargs) > 0 {
		sb.WriteString(" {")
		for i, k := range p.SortedKeys() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(&sb, "%s=%q", k, p.Kwargs[k])
		}
		sb.WriteByte('}')
	}
	return sb.String()
}
