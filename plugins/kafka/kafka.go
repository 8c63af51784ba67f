package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/miladsoleymani/mqshim/broker"
	"github.com/miladsoleymani/mqshim/core"
)

func init() {
	broker.Register("kafka", func(cfg broker.Config) (core.Dialer, error) {
		opts := []Option{WithConnectionTimeout(cfg.Timeout()), WithGroup(cfg.Group)}
		if cfg.Username != "" {
			opts = append(opts, WithPlainAuth(cfg.Username, cfg.Password))
		}
		opts = append(opts, optsFromConfig(cfg)...)
		return New(cfg.Brokers, opts...)
	})
}

// Dialer implements core.Dialer for Apache Kafka using segmentio/kafka-go.
//
// Design decisions:
//   - Dial opens a bootstrap connection to the first reachable broker so an
//     unreachable cluster fails at connect time, not on first write.
//   - The channel is one kafka.Writer shared across Publish calls.
//   - One kafka.Reader per Consume call, each running in its own goroutine.
//   - Manual offset commit via Ack(); not committing (Nack) causes redelivery.
type Dialer struct {
	brokers []string
	opts    options
}

// New creates a Kafka Dialer.
func New(brokers []string, fns ...Option) (*Dialer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("mqshim/kafka: at least one broker address is required")
	}

	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Dialer{brokers: brokers, opts: opts}, nil
}

func (d *Dialer) mechanism() sasl.Mechanism {
	if d.opts.username == "" {
		return nil
	}
	return plain.Mechanism{Username: d.opts.username, Password: d.opts.password}
}

func (d *Dialer) dialer() *kafka.Dialer {
	return &kafka.Dialer{
		ClientID:      d.opts.clientID,
		Timeout:       d.opts.timeout,
		DualStack:     true,
		TLS:           d.opts.tls,
		SASLMechanism: d.mechanism(),
	}
}

// Dial tries each broker in order and keeps the first connection.
func (d *Dialer) Dial(ctx context.Context) (core.Connection, error) {
	kd := d.dialer()

	var errs []error
	for _, addr := range d.brokers {
		conn, err := kd.DialContext(ctx, "tcp", addr)
		if err == nil {
			return &connection{conn: conn, dialer: d, kd: kd}, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("mqshim/kafka: dial %v: %w", d.brokers, errors.Join(errs...))
}

type connection struct {
	conn   *kafka.Conn
	dialer *Dialer
	kd     *kafka.Dialer
}

func (c *connection) Channel(context.Context) (core.Channel, error) {
	o := c.dialer.opts
	w := &kafka.Writer{
		Addr:                   kafka.TCP(c.dialer.brokers...),
		Balancer:               o.balancer,
		BatchSize:              o.batchSize,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: o.autoCreate,
		Transport: &kafka.Transport{
			ClientID:    o.clientID,
			DialTimeout: o.timeout,
			TLS:         o.tls,
			SASL:        c.dialer.mechanism(),
		},
	}

	newReader := func(topic string) kafkaReader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:     c.dialer.brokers,
			Topic:       topic,
			GroupID:     o.group,
			Dialer:      c.kd,
			MinBytes:    o.minBytes,
			MaxBytes:    o.maxBytes,
			MaxWait:     o.maxWait,
			StartOffset: o.startOffset,
		})
	}
	return newChannel(w, newReader), nil
}

func (c *connection) Close() error {
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("mqshim/kafka: close connection: %w", err)
	}
	return nil
}

// kafkaWriter is the part of *kafka.Writer the adapter uses.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaReader is the part of *kafka.Reader the adapter uses.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type channel struct {
	writer    kafkaWriter
	newReader func(topic string) kafkaReader

	mu      sync.Mutex
	readers []kafkaReader
	closed  bool
}

func newChannel(w kafkaWriter, newReader func(string) kafkaReader) *channel {
	return &channel{writer: w, newReader: newReader}
}

// Publish sends a message to the destination topic. The message id is
// used as the record key.
func (c *channel) Publish(ctx context.Context, topic string, p core.Publishing) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return core.ErrClosed
	}

	headers := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		headers[k] = v
	}
	if p.ContentType != "" {
		headers["content-type"] = p.ContentType
	}

	km := kafka.Message{
		Topic:   topic,
		Value:   p.Body,
		Headers: toHeaders(headers),
	}
	if p.MessageID != "" {
		km.Key = []byte(p.MessageID)
	}
	if err := c.writer.WriteMessages(ctx, km); err != nil {
		return fmt.Errorf("mqshim/kafka: publish to %q: %w", topic, err)
	}
	return nil
}

// Consume starts a group reader on topic and returns. With autoAck the
// offset is committed before the handler runs. Fetch and commit failures
// other than cancellation stop the reader and go to onError.
func (c *channel) Consume(ctx context.Context, topic string, autoAck bool, handler core.Handler, onError func(error)) error {
	r := c.newReader(topic)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		r.Close()
		return core.ErrClosed
	}
	c.readers = append(c.readers, r)
	c.mu.Unlock()

	go c.consumeLoop(ctx, topic, r, autoAck, handler, onError)
	return nil
}

// consumeLoop fetches messages and dispatches them to the handler until
// the context is cancelled, the reader is closed or the broker fails.
func (c *channel) consumeLoop(ctx context.Context, topic string, r kafkaReader, autoAck bool, handler core.Handler, onError func(error)) {
	for {
		raw, err := r.FetchMessage(ctx)
		if err != nil {
			c.lost(ctx, onError, fmt.Errorf("mqshim/kafka: fetch from %q: %w", topic, err))
			return
		}

		if autoAck {
			if err := r.CommitMessages(ctx, raw); err != nil {
				c.lost(ctx, onError, fmt.Errorf("mqshim/kafka: commit offset %d on %q: %w", raw.Offset, topic, err))
				return
			}
		}
		_ = handler(ctx, &message{raw: raw, reader: r, ctx: ctx})
	}
}

// lost reports err unless the loop ended because of ctx or Close.
func (c *channel) lost(ctx context.Context, onError func(error), err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		onError(err)
	}
}

// Close flushes the writer and closes all readers.
func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	var errs []error
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, fmt.Errorf("mqshim/kafka: close reader: %w", err))
		}
	}
	if err := c.writer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mqshim/kafka: close writer: %w", err))
	}
	c.readers = nil
	return errors.Join(errs...)
}

// toHeaders converts a string map to Kafka headers.
func toHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	headers := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

// optsFromConfig extracts options from the broker.Config.Extra map.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["batch_size"].(int); ok {
		opts = append(opts, WithBatchSize(v))
	}
	if v, ok := cfg.Extra["max_bytes"].(int); ok {
		opts = append(opts, WithMaxBytes(v))
	}
	if v, ok := cfg.Extra["client_id"].(string); ok && v != "" {
		opts = append(opts, WithClientID(v))
	}
	if v, ok := cfg.Extra["start_offset"].(string); ok && v == "last" {
		opts = append(opts, WithStartOffset(kafka.LastOffset))
	}
	return opts
}
