package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// Separator stands in for '-' in local handler names, since wire function
// names such as "client-Message" are not valid identifiers.
const Separator = "__"

var (
	ErrEmptyName     = errors.New("rpc: empty function name")
	ErrNameCollision = errors.New("rpc: function name does not transliterate uniquely")
)

// LocalName maps a wire function name to its local handler name. A wire name
// that does not map back to itself, such as "a__b" or "a_-b", is rejected:
// it would share a local name with another wire name.
func LocalName(wire string) (string, error) {
	if wire == "" {
		return "", ErrEmptyName
	}
	local := strings.ReplaceAll(wire, "-", Separator)
	if strings.ReplaceAll(local, Separator, "-") != wire {
		return "", fmt.Errorf("%w: %q", ErrNameCollision, wire)
	}
	return local, nil
}

// WireName is the inverse of LocalName.
func WireName(local string) (string, error) {
	if local == "" {
		return "", ErrEmptyName
	}
	wire := strings.ReplaceAll(local, Separator, "-")
	if strings.ReplaceAll(wire, "-", Separator) != local {
		return "", fmt.Errorf("%w: %q", ErrNameCollision, local)
	}
	return wire, nil
}
