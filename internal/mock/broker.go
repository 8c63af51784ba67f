package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/miladsoleymani/mqshim/core"
)

// Broker is an in-memory test double implementing core.Dialer,
// core.Connection and core.Channel at once.
type Broker struct {
	mu         sync.Mutex
	published  []PublishedMessage
	consumers  map[string]consumer
	dials      int
	channels   int
	connClosed int
	chanClosed int
	closeOrder []string

	DialErr      error
	ChannelErr   error
	PublishErr   error
	ConsumeErr   error
	CloseErr     error
	ChanCloseErr error
}

type consumer struct {
	ctx     context.Context
	autoAck bool
	handler core.Handler
	onError func(error)
}

// PublishedMessage records a message sent through Publish.
type PublishedMessage struct {
	Destination string
	Publishing  core.Publishing
}

func NewBroker() *Broker {
	return &Broker{
		consumers: make(map[string]consumer),
	}
}

func (b *Broker) Dial(context.Context) (core.Connection, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dials++
	if b.DialErr != nil {
		return nil, b.DialErr
	}
	return (*connection)(b), nil
}

// connection and channel are views of the same Broker so that close
// counts can be tracked separately.
type connection Broker

func (c *connection) Channel(context.Context) (core.Channel, error) {
	b := (*Broker)(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels++
	if b.ChannelErr != nil {
		return nil, b.ChannelErr
	}
	return (*channel)(b), nil
}

func (c *connection) Close() error {
	b := (*Broker)(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connClosed++
	b.closeOrder = append(b.closeOrder, "connection")
	return b.CloseErr
}

type channel Broker

func (c *channel) Publish(_ context.Context, destination string, p core.Publishing) error {
	b := (*Broker)(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PublishErr != nil {
		return b.PublishErr
	}
	b.published = append(b.published, PublishedMessage{Destination: destination, Publishing: p})
	return nil
}

func (c *channel) Consume(ctx context.Context, destination string, autoAck bool, handler core.Handler, onError func(error)) error {
	b := (*Broker)(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ConsumeErr != nil {
		return b.ConsumeErr
	}
	b.consumers[destination] = consumer{ctx: ctx, autoAck: autoAck, handler: handler, onError: onError}
	return nil
}

func (c *channel) Close() error {
	b := (*Broker)(c)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chanClosed++
	b.closeOrder = append(b.closeOrder, "channel")
	return b.ChanCloseErr
}

// Deliver simulates an incoming message to the consumer registered for
// destination and returns the handler's error.
func (b *Broker) Deliver(destination string, msg *Message) error {
	b.mu.Lock()
	c, ok := b.consumers[destination]
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("mock: no consumer for %q", destination)
	}
	if msg.Dest == "" {
		msg.Dest = destination
	}
	return c.handler(c.ctx, msg)
}

// LoseConsumer simulates the broker ending the consumer on destination,
// as a closed channel or a cancelled subscription would.
func (b *Broker) LoseConsumer(destination string, cause error) error {
	b.mu.Lock()
	c, ok := b.consumers[destination]
	delete(b.consumers, destination)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("mock: no consumer for %q", destination)
	}
	c.onError(cause)
	return nil
}

// AutoAck reports the autoAck flag the consumer on destination registered with.
func (b *Broker) AutoAck(destination string) (bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.consumers[destination]
	return c.autoAck, ok
}

// Published returns all messages sent via Publish.
func (b *Broker) Published() []PublishedMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedMessage, len(b.published))
	copy(out, b.published)
	return out
}

// Dials reports how many times Dial was called.
func (b *Broker) Dials() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dials
}

// Channels reports how many times a channel was requested.
func (b *Broker) Channels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

// ConnectionCloses reports how many times the connection was closed.
func (b *Broker) ConnectionCloses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connClosed
}

// ChannelCloses reports how many times the channel was closed.
func (b *Broker) ChannelCloses() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.chanClosed
}

// CloseOrder returns "channel" and "connection" in the order they were closed.
func (b *Broker) CloseOrder() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.closeOrder...)
}
