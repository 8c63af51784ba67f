package nats

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// streamAPI is the part of JetStream the channel uses.
type streamAPI interface {
	CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) error
	CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (pullConsumer, error)
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

type pullConsumer interface {
	// Consume delivers messages to handler; onError receives the
	// asynchronous errors of the pull loop.
	Consume(handler func(jsMsg), onError func(error)) (consumeContext, error)
}

type consumeContext interface {
	Stop()
	Closed() <-chan struct{}
}

// jsMsg is the part of jetstream.Msg a delivery needs.
type jsMsg interface {
	Data() []byte
	Headers() nats.Header
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	Nak() error
	Term() error
}

// jetStream adapts jetstream.JetStream to streamAPI.
type jetStream struct {
	js jetstream.JetStream
}

func (j jetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	_, err := j.js.CreateOrUpdateStream(ctx, cfg)
	return err
}

func (j jetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (pullConsumer, error) {
	cons, err := j.js.CreateOrUpdateConsumer(ctx, stream, cfg)
	if err != nil {
		return nil, err
	}
	return pull{cons: cons}, nil
}

func (j jetStream) PublishMsg(ctx context.Context, msg *nats.Msg) error {
	_, err := j.js.PublishMsg(ctx, msg)
	return err
}

type pull struct {
	cons jetstream.Consumer
}

func (p pull) Consume(handler func(jsMsg), onError func(error)) (consumeContext, error) {
	return p.cons.Consume(
		func(m jetstream.Msg) { handler(m) },
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) { onError(err) }),
	)
}
