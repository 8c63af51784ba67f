package core

import (
	"context"
	"fmt"
	"sync"
)

// Context is the handler context for a single delivery.
// It wraps the incoming message, decodes its text payload,
// and exposes response methods (Ack, Nack, Republish).
type Context interface {
	// Context returns the underlying context.Context.
	Context() context.Context

	// SetContext replaces the underlying context.Context.
	// Useful for middleware that enriches the context with values or deadlines.
	SetContext(ctx context.Context)

	// Message returns the raw underlying Message.
	Message() Message

	// Destination returns the destination this message was consumed from.
	Destination() string

	// DeliveryTag returns the broker-assigned delivery identifier.
	DeliveryTag() uint64

	// Body returns the raw message payload.
	Body() []byte

	// Text returns the payload decoded as UTF-8 text.
	Text() string

	// Header returns a single header value by key.
	Header(key string) string

	// Headers returns all message headers.
	Headers() map[string]string

	// Ack acknowledges the message. The service acks on its own after a
	// successful handler when autoAck is off; a second Ack is skipped.
	Ack() error

	// Nack negatively acknowledges the message.
	Nack(requeue bool) error

	// Acknowledged reports whether Ack or Nack was already called.
	Acknowledged() bool

	// Republish sends the current payload to a different destination.
	Republish(destination string) error

	// Set stores a key-value pair in the context store.
	// Used by middleware to pass data to downstream handlers.
	Set(key string, val any)

	// Get retrieves a value from the context store.
	Get(key string) (any, bool)
}

// HandlerFunc is the function signature for delivery callbacks.
//
//	svc.Consume(ctx, "testqueue", false, func(c mqshim.Context) error {
//	    fmt.Println(c.Text())
//	    return nil
//	})
type HandlerFunc func(c Context) error

// MiddlewareFunc wraps a HandlerFunc to add cross-cutting behavior.
//
//	func MyMiddleware() mqshim.MiddlewareFunc {
//	    return func(next mqshim.HandlerFunc) mqshim.HandlerFunc {
//	        return func(c mqshim.Context) error {
//	            // before
//	            err := next(c)
//	            // after
//	            return err
//	        }
//	    }
//	}
type MiddlewareFunc func(HandlerFunc) HandlerFunc

// Publisher is the subset of Service used by Republish.
type Publisher interface {
	Publish(ctx context.Context, destination string, payload []byte) error
}

type deliveryContext struct {
	ctx   context.Context
	msg   Message
	pub   Publisher
	store map[string]any
	acked bool
	mu    sync.RWMutex
}

// NewContext creates a Context for the given message.
// This is called internally by the Service for each delivery.
func NewContext(ctx context.Context, msg Message, pub Publisher) Context {
	return &deliveryContext{
		ctx:   ctx,
		msg:   msg,
		pub:   pub,
		store: make(map[string]any),
	}
}

func (c *deliveryContext) Context() context.Context { return c.ctx }

func (c *deliveryContext) SetContext(ctx context.Context) { c.ctx = ctx }

func (c *deliveryContext) Message() Message { return c.msg }

func (c *deliveryContext) Destination() string { return c.msg.Destination() }

func (c *deliveryContext) DeliveryTag() uint64 { return c.msg.DeliveryTag() }

func (c *deliveryContext) Body() []byte { return c.msg.Body() }

func (c *deliveryContext) Text() string { return DecodeText(c.msg.Body()) }

func (c *deliveryContext) Header(key string) string {
	return c.msg.Headers()[key]
}

func (c *deliveryContext) Headers() map[string]string {
	return c.msg.Headers()
}

func (c *deliveryContext) Ack() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acked {
		return nil
	}
	if err := c.msg.Ack(); err != nil {
		return fmt.Errorf("mqshim: ack delivery %d: %w", c.msg.DeliveryTag(), err)
	}
	c.acked = true
	return nil
}

func (c *deliveryContext) Nack(requeue bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.acked {
		return nil
	}
	if err := c.msg.Nack(requeue); err != nil {
		return fmt.Errorf("mqshim: nack delivery %d: %w", c.msg.DeliveryTag(), err)
	}
	c.acked = true
	return nil
}

func (c *deliveryContext) Acknowledged() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acked
}

func (c *deliveryContext) Republish(destination string) error {
	if c.pub == nil {
		return fmt.Errorf("mqshim: republish to %q: no publisher", destination)
	}
	if err := c.pub.Publish(c.ctx, destination, c.msg.Body()); err != nil {
		return fmt.Errorf("mqshim: republish to %q: %w", destination, err)
	}
	return nil
}

func (c *deliveryContext) Set(key string, val any) {
	c.mu.Lock()
	c.store[key] = val
	c.mu.Unlock()
}

func (c *deliveryContext) Get(key string) (any, bool) {
	c.mu.RLock()
	val, ok := c.store[key]
	c.mu.RUnlock()
	return val, ok
}
