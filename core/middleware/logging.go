package middleware

import (
	"time"

	"go.uber.org/zap"

	"github.com/miladsoleymani/mqshim/core"
)

// Logging returns middleware that logs delivery processing duration and errors.
func Logging(log *zap.Logger) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)

			fields := []zap.Field{
				zap.String("destination", c.Destination()),
				zap.Uint64("delivery_tag", c.DeliveryTag()),
				zap.Int("size", len(c.Body())),
				zap.Duration("elapsed", time.Since(start)),
			}
			if err != nil {
				log.Error("delivery failed", append(fields, zap.Error(err))...)
			} else {
				log.Debug("delivery handled", fields...)
			}
			return err
		}
	}
}
