package middleware_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/miladsoleymani/mqshim/core"
	"github.com/miladsoleymani/mqshim/core/middleware"
	"github.com/miladsoleymani/mqshim/internal/mock"
)

func newContext(msg *mock.Message) core.Context {
	return core.NewContext(context.Background(), msg, nil)
}

func TestLogging(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)

	handler := middleware.Logging(zap.New(obs))(func(core.Context) error {
		return nil
	})

	msg := &mock.Message{Dest: "testqueue", Tag: 4, B: []byte("val")}
	require.NoError(t, handler(newContext(msg)))

	entries := logs.FilterMessage("delivery handled").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "testqueue", fields["destination"])
	assert.Equal(t, uint64(4), fields["delivery_tag"])
}

func TestLogging_Error(t *testing.T) {
	obs, logs := observer.New(zapcore.DebugLevel)

	handler := middleware.Logging(zap.New(obs))(func(core.Context) error {
		return errors.New("boom")
	})

	msg := &mock.Message{Dest: "k", B: []byte("v")}
	assert.Error(t, handler(newContext(msg)))

	entries := logs.FilterMessage("delivery failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "boom", entries[0].ContextMap()["error"])
}

func TestRecovery(t *testing.T) {
	obs, logs := observer.New(zapcore.ErrorLevel)

	handler := middleware.Recovery(zap.New(obs))(func(core.Context) error {
		panic("test panic")
	})

	msg := &mock.Message{Dest: "k", B: []byte("v")}
	err := handler(newContext(msg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic recovered")
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := middleware.Recovery(zap.NewNop())(func(core.Context) error {
		return nil
	})

	msg := &mock.Message{Dest: "k", B: []byte("v")}
	assert.NoError(t, handler(newContext(msg)))
}

func TestRecovery_SkipsAck(t *testing.T) {
	mb := mock.NewBroker()
	s := core.New(mb)
	s.Use(middleware.Recovery(zap.NewNop()))

	require.NoError(t, s.Consume(context.Background(), "q", false, func(core.Context) error {
		panic("handler bug")
	}))

	msg := &mock.Message{Tag: 7, B: []byte("ping")}
	assert.Error(t, mb.Deliver("q", msg))
	assert.Empty(t, msg.Acks())
}

type collector struct {
	destination string
	duration    time.Duration
	err         error
	calls       int
}

func (c *collector) MessageProcessed(destination string, d time.Duration, err error) {
	c.destination = destination
	c.duration = d
	c.err = err
	c.calls++
}

func TestMetrics(t *testing.T) {
	col := &collector{}
	boom := errors.New("boom")

	handler := middleware.Metrics(col)(func(core.Context) error {
		return boom
	})

	msg := &mock.Message{Dest: "orders", B: []byte("v")}
	assert.ErrorIs(t, handler(newContext(msg)), boom)
	assert.Equal(t, 1, col.calls)
	assert.Equal(t, "orders", col.destination)
	assert.ErrorIs(t, col.err, boom)
}

func TestTracing_ContinuesPublisherTrace(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prop := propagation.TraceContext{}

	// Produce headers the way the publishing side would.
	parentCtx, parent := tp.Tracer("test").Start(context.Background(), "publish")
	headers := map[string]string{}
	prop.Inject(parentCtx, propagation.MapCarrier(headers))
	parent.End()

	var handlerSpan trace.SpanContext
	handler := middleware.Tracing(tp, prop)(func(c core.Context) error {
		handlerSpan = trace.SpanContextFromContext(c.Context())
		return nil
	})

	msg := &mock.Message{Dest: "orders", Tag: 2, H: headers}
	require.NoError(t, handler(newContext(msg)))

	assert.Equal(t, parent.SpanContext().TraceID(), handlerSpan.TraceID())

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "receive orders")
}
