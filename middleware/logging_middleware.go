package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"p4rpc/logger"
	"p4rpc/message"
)

func LoggingMiddleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, p *message.Packet) error {
			start := time.Now()
			err := next(ctx, p)
			fields := []zap.Field{
				zap.String("func", p.Func),
				zap.Int("args", len(p.Args)),
				zap.Int("kwargs", len(p.Kwargs)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.L().Warn("p4rpc: dispatch failed", append(fields, zap.Error(err))...)
				return err
			}
			logger.L().Debug("p4rpc: dispatched", fields...)
			return nil
		}
	}
}
