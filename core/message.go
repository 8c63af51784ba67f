package core

import "context"

// Message is the broker-agnostic delivery abstraction.
// Implementations are provided by broker plugins.
type Message interface {
	Destination() string
	Body() []byte
	Headers() map[string]string
	// DeliveryTag identifies this delivery for acknowledgment.
	DeliveryTag() uint64
	Ack() error
	Nack(requeue bool) error
}

// Publishing is an outgoing message.
type Publishing struct {
	Body        []byte
	ContentType string
	MessageID   string
	Headers     map[string]string
}

// Handler is the low-level handler used by backend subscriptions.
// Users should prefer HandlerFunc which receives a Context.
type Handler func(ctx context.Context, msg Message) error
