package core

import "context"

// Dialer opens a connection to a message broker. Each backend plugin
// provides one; the Service calls it at most once.
type Dialer interface {
	Dial(ctx context.Context) (Connection, error)
}

// DialerFunc adapts an ordinary function to the Dialer interface.
type DialerFunc func(ctx context.Context) (Connection, error)

func (f DialerFunc) Dial(ctx context.Context) (Connection, error) { return f(ctx) }

// Connection is an open network session to the broker.
type Connection interface {
	// Channel opens a logical sub-connection used for publish and consume.
	Channel(ctx context.Context) (Channel, error)
	Close() error
}

// Channel publishes to and consumes from destinations. Deliveries are
// handed to the handler on a goroutine owned by the backend.
//
// Consume returns once the broker accepted the registration. If deliveries
// later stop because of the broker (channel closed, consumer cancelled,
// fetch or commit failure) the backend calls onError once. It is not
// called when ctx is cancelled or the Channel is closed.
type Channel interface {
	Publish(ctx context.Context, destination string, p Publishing) error
	Consume(ctx context.Context, destination string, autoAck bool, handler Handler, onError func(error)) error
	Close() error
}
