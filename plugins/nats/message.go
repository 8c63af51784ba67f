package nats

import "fmt"

// message adapts a JetStream message to core.Message.
type message struct {
	msg         jsMsg
	destination string
}

func (m *message) Destination() string { return m.destination }
func (m *message) Body() []byte        { return m.msg.Data() }

func (m *message) Headers() map[string]string {
	raw := m.msg.Headers()
	h := make(map[string]string, len(raw))
	for k, v := range raw {
		if len(v) > 0 {
			h[k] = v[0]
		}
	}
	return h
}

// DeliveryTag is the stream sequence of the message.
func (m *message) DeliveryTag() uint64 {
	md, err := m.msg.Metadata()
	if err != nil {
		return 0
	}
	return md.Sequence.Stream
}

// Ack acknowledges the message, marking it as processed.
func (m *message) Ack() error {
	if err := m.msg.Ack(); err != nil {
		return fmt.Errorf("mqshim/nats: ack: %w", err)
	}
	return nil
}

// Nack asks for redelivery when requeue is set, otherwise terminates
// the message so the server stops delivering it.
func (m *message) Nack(requeue bool) error {
	var err error
	if requeue {
		err = m.msg.Nak()
	} else {
		err = m.msg.Term()
	}
	if err != nil {
		return fmt.Errorf("mqshim/nats: nack: %w", err)
	}
	return nil
}
