package rabbitmq

import "time"

// Option configures the RabbitMQ dialer.
type Option func(*options)

type options struct {
	// Connection settings
	timeout   time.Duration
	heartbeat time.Duration

	// Exchange settings
	exchange  string
	mandatory bool

	// Queue settings
	declareQueue bool
	durable      bool
	autoDelete   bool
	exclusive    bool

	// Channel settings
	prefetchCount int
	confirms      bool
}

func defaults() options {
	return options{
		timeout:      3 * time.Second,
		heartbeat:    10 * time.Second,
		exchange:     "", // default exchange, routing key is the queue name
		declareQueue: true,
		durable:      true,
	}
}

// WithConnectionTimeout bounds the TCP dial and AMQP handshake.
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithHeartbeat sets the AMQP heartbeat interval.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithExchange publishes to the named exchange instead of the default one.
// Queues are not declared when an exchange is set.
func WithExchange(name string) Option {
	return func(o *options) { o.exchange = name }
}

// WithMandatory sets the mandatory flag on publishings.
func WithMandatory(m bool) Option {
	return func(o *options) { o.mandatory = m }
}

// WithQueueDeclare controls whether destinations are declared as queues
// before first use. Declaring is idempotent on the broker side.
func WithQueueDeclare(declare bool) Option {
	return func(o *options) { o.declareQueue = declare }
}

// WithDurable controls whether declared queues survive broker restart.
func WithDurable(d bool) Option {
	return func(o *options) { o.durable = d }
}

// WithAutoDelete causes the queue to be deleted when the last consumer disconnects.
func WithAutoDelete(d bool) Option {
	return func(o *options) { o.autoDelete = d }
}

// WithExclusive declares queues and consumers as exclusive to this connection.
func WithExclusive(e bool) Option {
	return func(o *options) { o.exclusive = e }
}

// WithPrefetchCount sets how many messages are delivered before requiring ack.
func WithPrefetchCount(n int) Option {
	return func(o *options) { o.prefetchCount = n }
}

// WithConfirms puts the channel in confirm mode; Publish then waits for
// the broker's ack and fails on a nack.
func WithConfirms(c bool) Option {
	return func(o *options) { o.confirms = c }
}
