package rpc

import (
	"context"
	"fmt"
	"reflect"
	"unicode"
	"unicode/utf8"
)

type handlerMethod = func(ctx context.Context, remote *Remote, args [][]byte, kwargs map[string][]byte) error

// Register scans rcvr for exported methods with the HandlerFunc signature
// and registers each one. The local name is the method name with its first
// letter lower-cased, so method Client__Message serves "client-Message".
// Wire names starting with an upper-case letter can not be reached this way;
// register those with HandleFunc.
func (r *Router) Register(rcvr any) error {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return fmt.Errorf("rpc: rcvr must be a pointer, got %T", rcvr)
	}
	val := reflect.ValueOf(rcvr)

	registered := 0
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		fn, ok := val.Method(i).Interface().(handlerMethod)
		if !ok {
			continue
		}
		if err := r.HandleFunc(localMethodName(method.Name), fn); err != nil {
			return err
		}
		registered++
	}

	if registered == 0 {
		return fmt.Errorf("rpc: %T has no methods to expose", rcvr)
	}
	return nil
}

func localMethodName(name string) string {
	first, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(first)) + name[size:]
}
