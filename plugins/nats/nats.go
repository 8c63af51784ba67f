package nats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/miladsoleymani/mqshim/broker"
	"github.com/miladsoleymani/mqshim/core"
)

func init() {
	broker.Register("nats", func(cfg broker.Config) (core.Dialer, error) {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("mqshim/nats: at least one broker URL is required")
		}
		opts := []Option{WithConnectionTimeout(cfg.Timeout())}
		if cfg.Username != "" {
			opts = append(opts, WithUserInfo(cfg.Username, cfg.Password))
		}
		if cfg.Group != "" {
			opts = append(opts, WithDurable(cfg.Group))
		}
		opts = append(opts, optsFromConfig(cfg)...)
		return New(serverURL(cfg.Brokers), opts...), nil
	})
}

// Dialer implements core.Dialer for NATS JetStream.
//
// Design decisions:
//   - One NATS connection per Service; the JetStream context is the channel.
//   - Destinations are subjects. A stream named after the subject is
//     created or updated on first use so publishes have somewhere to land.
//   - autoAck maps to AckNonePolicy; otherwise the consumer acks explicitly.
//   - Close stops consumers and closes the connection. No drain.
type Dialer struct {
	url  string
	opts options
}

// New creates a NATS JetStream Dialer. url is a standard NATS URL (nats://host:port).
func New(url string, fns ...Option) *Dialer {
	opts := defaults()
	for _, fn := range fns {
		fn(&opts)
	}
	return &Dialer{url: url, opts: opts}
}

func (d *Dialer) Dial(ctx context.Context) (core.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("mqshim/nats: connect: %w", err)
	}
	natsOpts := []nats.Option{
		nats.Name(d.opts.name),
		nats.Timeout(d.opts.timeout),
		nats.NoReconnect(),
	}
	if d.opts.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(d.opts.username, d.opts.password))
	}

	nc, err := nats.Connect(d.url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("mqshim/nats: connect to %q: %w", d.url, err)
	}
	return &connection{conn: nc, opts: d.opts}, nil
}

type connection struct {
	conn *nats.Conn
	opts options
}

func (c *connection) Channel(context.Context) (core.Channel, error) {
	js, err := jetstream.New(c.conn)
	if err != nil {
		return nil, fmt.Errorf("mqshim/nats: init jetstream: %w", err)
	}
	return newChannel(jetStream{js: js}, c.opts), nil
}

func (c *connection) Close() error {
	c.conn.Close()
	return nil
}

// errConsumeStopped is reported when the library ends a pull consumer
// that neither ctx nor Close stopped.
var errConsumeStopped = errors.New("consume stopped by server")

type channel struct {
	js   streamAPI
	opts options

	mu      sync.Mutex
	streams map[string]string
	subs    []consumeContext
	closed  bool
}

func newChannel(js streamAPI, opts options) *channel {
	return &channel{
		js:      js,
		opts:    opts,
		streams: make(map[string]string),
	}
}

// stream creates or updates the stream backing destination, once per
// channel, and returns its name.
func (c *channel) stream(ctx context.Context, destination string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if name, ok := c.streams[destination]; ok {
		return name, nil
	}

	name := sanitizeStreamName(destination)
	err := c.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      name,
		Subjects:  []string{destination},
		MaxMsgs:   c.opts.maxMsgs,
		MaxBytes:  c.opts.maxBytes,
		MaxAge:    c.opts.maxAge,
		Replicas:  c.opts.replicas,
		Retention: c.opts.retention,
		Storage:   c.opts.storage,
	})
	if err != nil {
		return "", fmt.Errorf("mqshim/nats: create stream %q: %w", name, err)
	}
	c.streams[destination] = name
	return name, nil
}

// Publish sends a message to the destination subject via JetStream. The
// message id goes into Nats-Msg-Id so the server can deduplicate.
func (c *channel) Publish(ctx context.Context, destination string, p core.Publishing) error {
	if _, err := c.stream(ctx, destination); err != nil {
		return err
	}

	headers := nats.Header{}
	for k, v := range p.Headers {
		headers.Set(k, v)
	}
	if p.ContentType != "" {
		headers.Set("Content-Type", p.ContentType)
	}
	if p.MessageID != "" {
		headers.Set(nats.MsgIdHdr, p.MessageID)
	}

	nm := &nats.Msg{
		Subject: destination,
		Data:    p.Body,
		Header:  headers,
	}
	if err := c.js.PublishMsg(ctx, nm); err != nil {
		return fmt.Errorf("mqshim/nats: publish to %q: %w", destination, err)
	}
	return nil
}

// Consume creates or updates a durable consumer on the destination's
// stream and returns. Messages are delivered on the library's goroutine
// until ctx is cancelled or the channel is closed. Losing the consumer
// on the server side is reported to onError.
func (c *channel) Consume(ctx context.Context, destination string, autoAck bool, handler core.Handler, onError func(error)) error {
	stream, err := c.stream(ctx, destination)
	if err != nil {
		return err
	}

	consumerName := c.opts.durable
	if consumerName == "" {
		consumerName = "mqshim-" + sanitizeStreamName(destination)
	}

	cfg := jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: destination,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.ackWait,
		MaxDeliver:    c.opts.maxDeliver,
	}
	if autoAck {
		cfg.AckPolicy = jetstream.AckNonePolicy
	}

	cons, err := c.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return fmt.Errorf("mqshim/nats: create consumer %q: %w", consumerName, err)
	}

	var once sync.Once
	lost := func(err error) {
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		once.Do(func() {
			onError(fmt.Errorf("mqshim/nats: consumer %q on %q: %w", consumerName, destination, err))
		})
	}

	cc, err := cons.Consume(
		func(m jsMsg) {
			_ = handler(ctx, &message{msg: m, destination: destination})
		},
		func(err error) {
			if terminal(err) {
				lost(err)
			}
		},
	)
	if err != nil {
		return fmt.Errorf("mqshim/nats: start consume on %q: %w", consumerName, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cc.Stop()
		return core.ErrClosed
	}
	c.subs = append(c.subs, cc)
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			cc.Stop()
		case <-cc.Closed():
			lost(errConsumeStopped)
		}
	}()
	return nil
}

// terminal reports whether a pull loop error means no more deliveries
// will arrive. Missed heartbeats and leadership changes are retried by
// the library.
func terminal(err error) bool {
	return errors.Is(err, jetstream.ErrConsumerDeleted) ||
		errors.Is(err, jetstream.ErrConsumerNotFound) ||
		errors.Is(err, nats.ErrConnectionClosed)
}

func (c *channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close stops all consumers. The connection is closed separately.
func (c *channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	for _, s := range c.subs {
		s.Stop()
	}
	c.subs = nil
	return nil
}

// sanitizeStreamName converts a subject to a valid stream name
// by replacing special characters.
func sanitizeStreamName(topic string) string {
	buf := make([]byte, len(topic))
	for i := range len(topic) {
		c := topic[i]
		if c == '.' || c == '*' || c == '>' || c == ' ' {
			buf[i] = '-'
		} else {
			buf[i] = c
		}
	}
	return string(buf)
}

// serverURL joins broker addresses into a NATS server list, adding the
// nats:// scheme to bare host:port entries.
func serverURL(brokers []string) string {
	urls := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if !strings.Contains(b, "://") {
			b = "nats://" + b
		}
		urls = append(urls, b)
	}
	return strings.Join(urls, ",")
}

// optsFromConfig extracts options from broker.Config.Extra.
func optsFromConfig(cfg broker.Config) []Option {
	if cfg.Extra == nil {
		return nil
	}
	var opts []Option
	if v, ok := cfg.Extra["max_deliver"].(int); ok {
		opts = append(opts, WithMaxDeliver(v))
	}
	if v, ok := cfg.Extra["replicas"].(int); ok {
		opts = append(opts, WithReplicas(v))
	}
	if v, ok := cfg.Extra["storage"].(string); ok && v == "memory" {
		opts = append(opts, WithStorage(jetstream.MemoryStorage))
	}
	return opts
}
