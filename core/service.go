package core

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	// ContentTypeText is stamped on every publishing by default.
	ContentTypeText = "text/plain; charset=utf-8"

	instrumentationName = "github.com/miladsoleymani/mqshim"
)

// State is the lifecycle position of a Service. Transitions only move
// forward; there is no way back from StateFailed or StateDisposed.
type State int

const (
	StateUnconnected State = iota
	StateConnected
	StateChannelOpen
	StateConsuming
	StateDisposed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconnected:
		return "unconnected"
	case StateConnected:
		return "connected"
	case StateChannelOpen:
		return "channel-open"
	case StateConsuming:
		return "consuming"
	case StateDisposed:
		return "disposed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Registration is the single consumer a Service may hold.
type Registration struct {
	Destination string
	AutoAck     bool
	Handler     HandlerFunc
}

// Service lazily opens one connection and one channel to a broker and
// exposes publish and consume on top of them.
//
// Design decisions:
//   - Connection and channel are created on first use, under a mutex, and
//     never recreated. Concurrent first callers dial exactly once.
//   - Fail-fast: any broker failure is returned immediately and leaves
//     the Service in StateFailed. There is no retry and no reconnect.
//   - One consumer per Service. With autoAck off, a delivery is acked only
//     after its handler returns nil; a failed handler nacks it instead.
//   - Deliveries run on the backend's goroutine, not one owned here.
//   - Close releases the channel, then the connection, and is idempotent.
type Service struct {
	dialer Dialer
	opts   options
	tracer trace.Tracer

	mu           sync.Mutex
	conn         Connection
	ch           Channel
	state        State
	failure      *Error
	failed       chan struct{}
	action       HandlerFunc
	registration *Registration
	middlewares  []MiddlewareFunc
}

// New creates a Service bound to the given Dialer. No connection is made
// until the first Publish or Consume.
func New(d Dialer, fns ...Option) *Service {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Service{
		dialer: d,
		opts:   opts,
		tracer: opts.tracer(),
		failed: make(chan struct{}),
	}
}

// WithService creates a Service, passes it to fn and closes it on every
// exit path. A close failure is joined with fn's error.
func WithService(ctx context.Context, d Dialer, fn func(ctx context.Context, s *Service) error, opts ...Option) (err error) {
	s := New(d, opts...)
	defer func() {
		if cerr := s.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	return fn(ctx, s)
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Failed returns a channel that is closed when the Service enters
// StateFailed, including when a running consumer is lost.
func (s *Service) Failed() <-chan struct{} {
	return s.failed
}

// Err returns the failure that moved the Service to StateFailed, or nil.
func (s *Service) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failure == nil {
		return nil
	}
	return s.failure
}

// Registration returns the active consumer registration, if any.
func (s *Service) Registration() (Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registration == nil {
		return Registration{}, false
	}
	return *s.registration, true
}

// Use registers delivery middleware. It applies to consumers registered
// afterwards; the first registered wraps outermost.
func (s *Service) Use(mws ...MiddlewareFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middlewares = append(s.middlewares, mws...)
}

// Publish sends payload to destination, connecting first if needed.
func (s *Service) Publish(ctx context.Context, destination string, payload []byte) error {
	if destination == "" {
		return ErrEmptyDestination
	}

	ctx, span := s.tracer.Start(ctx, "publish "+destination,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.operation", "publish"),
			attribute.String("messaging.destination.name", destination),
			attribute.Int("messaging.message.body.size", len(payload)),
		),
	)
	defer span.End()

	ch, err := s.channel(ctx, "publish", destination)
	if err != nil {
		recordError(span, err)
		return err
	}

	headers := make(map[string]string)
	s.opts.textPropagator().Inject(ctx, propagation.MapCarrier(headers))

	p := Publishing{
		Body:        payload,
		ContentType: s.opts.contentType,
		MessageID:   uuid.NewString(),
		Headers:     headers,
	}
	span.SetAttributes(attribute.String("messaging.message.id", p.MessageID))

	if err := ch.Publish(ctx, destination, p); err != nil {
		e := &Error{Op: "publish", Kind: KindPublish, Destination: destination, Err: err}
		if ctx.Err() == nil {
			s.fail(e)
		}
		recordError(span, e)
		return e
	}
	return nil
}

// PublishText UTF-8 encodes text and publishes it.
func (s *Service) PublishText(ctx context.Context, destination, text string) error {
	return s.Publish(ctx, destination, EncodeText(text))
}

// SetReceivedAction stores the callback used by BasicConsume.
func (s *Service) SetReceivedAction(h HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.action = h
}

// BasicConsume registers the action set by SetReceivedAction.
func (s *Service) BasicConsume(ctx context.Context, destination string, autoAck bool) error {
	s.mu.Lock()
	h := s.action
	s.mu.Unlock()
	return s.Consume(ctx, destination, autoAck, h)
}

// Consume registers onMessage for every delivery from destination and
// returns once the broker accepted the registration. Deliveries keep
// arriving until ctx is cancelled or the Service is closed. If the broker
// ends the consumer first, the Service moves to StateFailed and Failed
// is closed.
func (s *Service) Consume(ctx context.Context, destination string, autoAck bool, onMessage HandlerFunc) error {
	if destination == "" {
		return ErrEmptyDestination
	}
	if onMessage == nil {
		return ErrNoHandler
	}

	reg := &Registration{Destination: destination, AutoAck: autoAck, Handler: onMessage}

	s.mu.Lock()
	if s.state == StateDisposed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.registration != nil {
		s.mu.Unlock()
		return ErrAlreadyConsuming
	}
	s.registration = reg
	mws := make([]MiddlewareFunc, len(s.middlewares))
	copy(mws, s.middlewares)
	s.mu.Unlock()

	ch, err := s.channel(ctx, "consume", destination)
	if err != nil {
		s.clearRegistration(reg)
		return err
	}

	handler := s.bridge(autoAck, applyMiddleware(onMessage, mws))
	lost := func(err error) {
		if ctx.Err() != nil {
			return
		}
		s.clearRegistration(reg)
		s.fail(&Error{Op: "consume", Kind: KindConsume, Destination: destination, Err: err})
	}
	if err := ch.Consume(ctx, destination, autoAck, handler, lost); err != nil {
		s.clearRegistration(reg)
		return s.fail(&Error{Op: "consume", Kind: KindConsume, Destination: destination, Err: err})
	}

	s.mu.Lock()
	if s.state == StateChannelOpen {
		s.state = StateConsuming
	}
	s.mu.Unlock()

	s.opts.logger.Info("consumer registered",
		zap.String("destination", destination),
		zap.Bool("auto_ack", autoAck),
	)
	return nil
}

// Close releases the channel and the connection, in that order. It is
// safe to call more than once and when nothing was ever opened.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateDisposed {
		return nil
	}
	s.state = StateDisposed
	s.registration = nil

	var errs []error
	if s.ch != nil {
		if err := s.ch.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mqshim: close channel: %w", err))
		}
		s.ch = nil
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mqshim: close connection: %w", err))
		}
		s.conn = nil
	}
	s.opts.logger.Debug("service closed", zap.Int("close_errors", len(errs)))
	return errors.Join(errs...)
}

// channel returns the lazily created channel, dialing first if needed.
func (s *Service) channel(ctx context.Context, op, destination string) (Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateDisposed:
		return nil, ErrClosed
	case StateFailed:
		return nil, &Error{
			Op:          op,
			Kind:        s.failure.Kind,
			Destination: destination,
			Err:         fmt.Errorf("%w: %w", ErrUnusable, s.failure.Err),
		}
	}
	if s.ch != nil {
		return s.ch, nil
	}
	if s.dialer == nil {
		return nil, ErrNoDialer
	}

	if s.conn == nil {
		s.opts.logger.Debug("connecting to broker")
		conn, err := s.dialer.Dial(ctx)
		if err != nil {
			return nil, s.failLocked(&Error{Op: op, Kind: KindConnection, Destination: destination, Err: err})
		}
		s.conn = conn
		s.state = StateConnected
		s.opts.logger.Info("connected to broker")
	}

	ch, err := s.conn.Channel(ctx)
	if err != nil {
		cerr := s.conn.Close()
		s.conn = nil
		return nil, s.failLocked(&Error{
			Op:          op,
			Kind:        KindChannel,
			Destination: destination,
			Err:         errors.Join(err, cerr),
		})
	}
	s.ch = ch
	s.state = StateChannelOpen
	s.opts.logger.Debug("channel opened")
	return ch, nil
}

func (s *Service) fail(e *Error) *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(e)
}

// failLocked records the first failure only; later ones are returned
// but do not replace it.
func (s *Service) failLocked(e *Error) *Error {
	if s.state == StateDisposed || s.state == StateFailed {
		return e
	}
	s.state = StateFailed
	s.failure = e
	close(s.failed)
	s.opts.logger.Error("broker operation failed",
		zap.String("op", e.Op),
		zap.Stringer("kind", e.Kind),
		zap.String("destination", e.Destination),
		zap.Error(e.Err),
	)
	return e
}

func (s *Service) clearRegistration(reg *Registration) {
	s.mu.Lock()
	if s.registration == reg {
		s.registration = nil
	}
	s.mu.Unlock()
}

// bridge adapts a HandlerFunc to the low-level Handler the backends call
// and applies the acknowledgment policy.
func (s *Service) bridge(autoAck bool, h HandlerFunc) Handler {
	return func(ctx context.Context, msg Message) error {
		c := &deliveryContext{
			ctx:   ctx,
			msg:   msg,
			pub:   s,
			store: make(map[string]any),
			acked: autoAck,
		}

		if err := h(c); err != nil {
			if !c.Acknowledged() {
				if nerr := c.Nack(s.opts.requeueOnFailure); nerr != nil {
					err = errors.Join(err, nerr)
				}
			}
			s.opts.logger.Warn("delivery handler failed",
				zap.String("destination", msg.Destination()),
				zap.Uint64("delivery_tag", msg.DeliveryTag()),
				zap.Error(err),
			)
			return err
		}
		return c.Ack()
	}
}

// applyMiddleware wraps a handler with middleware in reverse order.
// Given middleware [A, B, C], the call order is A -> B -> C -> handler.
func applyMiddleware(h HandlerFunc, mws []MiddlewareFunc) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
