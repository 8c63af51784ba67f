package kafka

import (
	"crypto/tls"
	"time"

	"github.com/segmentio/kafka-go"
)

// Option configures the Kafka dialer.
type Option func(*options)

type options struct {
	// Connection
	timeout  time.Duration
	clientID string
	username string
	password string
	tls      *tls.Config

	// Writer
	balancer   kafka.Balancer
	batchSize  int
	autoCreate bool

	// Reader
	group       string
	minBytes    int
	maxBytes    int
	maxWait     time.Duration
	startOffset int64
}

func defaults() options {
	return options{
		timeout:     3 * time.Second,
		clientID:    "mqshim",
		balancer:    &kafka.LeastBytes{},
		batchSize:   1,
		autoCreate:  true,
		group:       "mqshim",
		minBytes:    1,
		maxBytes:    10e6, // 10 MB
		maxWait:     500 * time.Millisecond,
		startOffset: kafka.FirstOffset,
	}
}

// WithConnectionTimeout bounds the initial dial.
func WithConnectionTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithClientID sets the client id reported to the brokers.
func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

// WithPlainAuth enables SASL/PLAIN with the given credentials.
func WithPlainAuth(user, password string) Option {
	return func(o *options) {
		o.username = user
		o.password = password
	}
}

// WithTLS enables TLS for both reader and writer.
func WithTLS(cfg *tls.Config) Option {
	return func(o *options) { o.tls = cfg }
}

// WithBalancer sets the partition balancer for the writer.
func WithBalancer(b kafka.Balancer) Option {
	return func(o *options) { o.balancer = b }
}

// WithBatchSize sets the maximum batch size for writes. Defaults to 1 so
// each publish is flushed immediately.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithTopicAutoCreate lets the writer create missing topics.
func WithTopicAutoCreate(enabled bool) Option {
	return func(o *options) { o.autoCreate = enabled }
}

// WithGroup sets the consumer group id.
func WithGroup(group string) Option {
	return func(o *options) {
		if group != "" {
			o.group = group
		}
	}
}

// WithMaxBytes sets the maximum bytes per fetch.
func WithMaxBytes(n int) Option {
	return func(o *options) { o.maxBytes = n }
}

// WithMaxWait sets the maximum wait time for fetches.
func WithMaxWait(d time.Duration) Option {
	return func(o *options) { o.maxWait = d }
}

// WithStartOffset sets where a new group starts (kafka.FirstOffset or kafka.LastOffset).
func WithStartOffset(offset int64) Option {
	return func(o *options) { o.startOffset = offset }
}
