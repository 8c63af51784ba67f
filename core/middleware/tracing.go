package middleware

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/miladsoleymani/mqshim/core"
)

const tracerName = "github.com/miladsoleymani/mqshim/core/middleware"

// Tracing returns middleware that continues the trace carried in the
// delivery headers and wraps the handler in a consumer span.
// A nil provider or propagator falls back to the otel globals.
func Tracing(tp trace.TracerProvider, prop propagation.TextMapPropagator) core.MiddlewareFunc {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if prop == nil {
		prop = otel.GetTextMapPropagator()
	}
	tracer := tp.Tracer(tracerName)

	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			ctx := prop.Extract(c.Context(), propagation.MapCarrier(c.Headers()))
			ctx, span := tracer.Start(ctx, "receive "+c.Destination(),
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("messaging.operation", "receive"),
					attribute.String("messaging.destination.name", c.Destination()),
					attribute.Int64("messaging.delivery_tag", int64(c.DeliveryTag())),
					attribute.Int("messaging.message.body.size", len(c.Body())),
				),
			)
			defer span.End()

			c.SetContext(ctx)
			err := next(c)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			return err
		}
	}
}
