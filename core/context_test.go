package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMessage struct {
	body  []byte
	acked int
	err   error
}

func (m *stubMessage) Destination() string        { return "testqueue" }
func (m *stubMessage) Body() []byte               { return m.body }
func (m *stubMessage) Headers() map[string]string { return map[string]string{"k": "v"} }
func (m *stubMessage) DeliveryTag() uint64        { return 11 }
func (m *stubMessage) Ack() error                 { m.acked++; return m.err }
func (m *stubMessage) Nack(bool) error            { return m.err }

type stubPublisher struct {
	destination string
	payload     []byte
}

func (p *stubPublisher) Publish(_ context.Context, destination string, payload []byte) error {
	p.destination = destination
	p.payload = payload
	return nil
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, "收到消息", DecodeText(EncodeText("收到消息")))
	assert.Equal(t, "a�b", DecodeText([]byte{'a', 0xff, 'b'}))
	assert.Equal(t, "", DecodeText(nil))
}

func TestContext_Accessors(t *testing.T) {
	msg := &stubMessage{body: []byte("ping")}
	c := NewContext(context.Background(), msg, nil)

	assert.Equal(t, "testqueue", c.Destination())
	assert.Equal(t, uint64(11), c.DeliveryTag())
	assert.Equal(t, "ping", c.Text())
	assert.Equal(t, "v", c.Header("k"))

	c.Set("attempt", 1)
	v, ok := c.Get("attempt")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestContext_AckOnce(t *testing.T) {
	msg := &stubMessage{}
	c := NewContext(context.Background(), msg, nil)

	require.NoError(t, c.Ack())
	require.NoError(t, c.Ack())
	require.NoError(t, c.Nack(true))
	assert.Equal(t, 1, msg.acked)
	assert.True(t, c.Acknowledged())
}

func TestContext_AckError(t *testing.T) {
	msg := &stubMessage{err: errors.New("channel closed")}
	c := NewContext(context.Background(), msg, nil)

	err := c.Ack()
	assert.ErrorIs(t, err, msg.err)
	assert.False(t, c.Acknowledged())
}

func TestContext_Republish(t *testing.T) {
	pub := &stubPublisher{}
	c := NewContext(context.Background(), &stubMessage{body: []byte("x")}, pub)

	require.NoError(t, c.Republish("dead-letters"))
	assert.Equal(t, "dead-letters", pub.destination)
	assert.Equal(t, []byte("x"), pub.payload)

	orphan := NewContext(context.Background(), &stubMessage{}, nil)
	assert.Error(t, orphan.Republish("dead-letters"))
}
