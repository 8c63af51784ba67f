// Package mqshim provides the top-level API for the lazy broker channel
// wrapper. It re-exports core types for convenience, so users can write:
//
//	d, _ := broker.Create("rabbitmq", cfg)
//	svc := mqshim.New(d)
//	defer svc.Close()
//	svc.PublishText(ctx, "testqueue", "hello")
package mqshim

import (
	"context"

	"github.com/miladsoleymani/mqshim/core"
)

// Re-export core types at the package level for ergonomic usage.
type (
	Service        = core.Service
	Option         = core.Option
	Dialer         = core.Dialer
	Message        = core.Message
	Context        = core.Context
	HandlerFunc    = core.HandlerFunc
	MiddlewareFunc = core.MiddlewareFunc
	Error          = core.Error
	State          = core.State
)

// New creates a Service bound to the given Dialer.
func New(d Dialer, opts ...Option) *Service {
	return core.New(d, opts...)
}

// WithService runs fn with a Service that is closed on every exit path.
func WithService(ctx context.Context, d Dialer, fn func(ctx context.Context, s *Service) error, opts ...Option) error {
	return core.WithService(ctx, d, fn, opts...)
}
