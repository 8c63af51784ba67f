package mock

import "sync"

// Message is a simple core.Message implementation for testing.
type Message struct {
	Dest    string
	Tag     uint64
	B       []byte
	H       map[string]string
	AckErr  error
	NackErr error

	mu       sync.Mutex
	acks     []uint64
	nacked   bool
	requeued bool
}

func (m *Message) Destination() string        { return m.Dest }
func (m *Message) Body() []byte               { return m.B }
func (m *Message) Headers() map[string]string { return m.H }
func (m *Message) DeliveryTag() uint64        { return m.Tag }

func (m *Message) Ack() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.acks = append(m.acks, m.Tag)
	return nil
}

func (m *Message) Nack(requeue bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NackErr != nil {
		return m.NackErr
	}
	m.nacked = true
	m.requeued = requeue
	return nil
}

// Acks returns the delivery tags acknowledged so far.
func (m *Message) Acks() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uint64(nil), m.acks...)
}

// Nacked reports whether Nack was called and with which requeue flag.
func (m *Message) Nacked() (nacked, requeued bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nacked, m.requeued
}
