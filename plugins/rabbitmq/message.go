package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// message adapts an amqp.Delivery to core.Message.
type message struct {
	delivery    amqp.Delivery
	destination string
}

func (m *message) Destination() string { return m.destination }
func (m *message) Body() []byte        { return m.delivery.Body }
func (m *message) DeliveryTag() uint64 { return m.delivery.DeliveryTag }

func (m *message) Headers() map[string]string {
	h := make(map[string]string, len(m.delivery.Headers)+2)
	for k, v := range m.delivery.Headers {
		if s, ok := v.(string); ok {
			h[k] = s
		} else {
			h[k] = fmt.Sprintf("%v", v)
		}
	}
	if m.delivery.ContentType != "" {
		h["content-type"] = m.delivery.ContentType
	}
	if m.delivery.MessageId != "" {
		h["message-id"] = m.delivery.MessageId
	}
	return h
}

// Ack acknowledges this single delivery, removing it from the queue.
func (m *message) Ack() error {
	if err := m.delivery.Ack(false); err != nil {
		return fmt.Errorf("mqshim/rabbitmq: ack %d: %w", m.delivery.DeliveryTag, err)
	}
	return nil
}

// Nack negatively acknowledges the delivery. If requeue is set,
// the message is returned to the queue for redelivery.
func (m *message) Nack(requeue bool) error {
	if err := m.delivery.Nack(false, requeue); err != nil {
		return fmt.Errorf("mqshim/rabbitmq: nack %d: %w", m.delivery.DeliveryTag, err)
	}
	return nil
}
