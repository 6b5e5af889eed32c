// Package logger holds the process-wide zap logger used by every p4rpc
// package. It discards everything until the application installs one.
package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var l atomic.Pointer[zap.Logger]

func init() {
	l.Store(zap.NewNop())
}

// L returns the current logger.
func L() *zap.Logger {
	return l.Load()
}

// Set installs logger; nil restores the no-op logger.
func Set(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	l.Store(logger)
}
