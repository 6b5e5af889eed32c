package rpc

import (
	"errors"
	"fmt"
)

var ErrUnknownMethod = errors.New("unknown method")

// DispatchError tags an error raised while dispatching one inbound packet
// with the packet's wire function name. It never affects the channel: the
// next packet is dispatched as usual.
type DispatchError struct {
	Func string // wire function name
	Err  error  // ErrUnknownMethod or whatever the handler returned
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("rpc: %s: %v", e.Func, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}
