package core

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger           *zap.Logger
	tracerProvider   trace.TracerProvider
	propagator       propagation.TextMapPropagator
	requeueOnFailure bool
	contentType      string
}

func defaults() options {
	return options{
		logger:           zap.NewNop(),
		requeueOnFailure: true,
		contentType:      ContentTypeText,
	}
}

// WithLogger sets the logger used for lifecycle and failure events.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracerProvider sets the provider for publish spans.
// Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// WithPropagator sets the propagator that injects trace context into
// published headers. Defaults to the global propagator.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(o *options) { o.propagator = p }
}

// WithRequeueOnFailure controls whether a delivery whose handler failed
// is returned to the queue. Only applies when autoAck is off.
func WithRequeueOnFailure(requeue bool) Option {
	return func(o *options) { o.requeueOnFailure = requeue }
}

// WithContentType overrides the content type stamped on publishings.
func WithContentType(ct string) Option {
	return func(o *options) { o.contentType = ct }
}

func (o *options) tracer() trace.Tracer {
	tp := o.tracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func (o *options) textPropagator() propagation.TextMapPropagator {
	if o.propagator != nil {
		return o.propagator
	}
	return otel.GetTextMapPropagator()
}
