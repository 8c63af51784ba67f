package broker

import "time"

// DefaultConnectionTimeout bounds the initial connection attempt.
const DefaultConnectionTimeout = 3 * time.Second

// Config holds broker-agnostic connection parameters.
// Broker plugins extract the fields they need.
type Config struct {
	// Brokers is a list of broker addresses (e.g., "localhost:5672").
	Brokers []string

	// Username and Password authenticate the session.
	Username string
	Password string

	// ConnectionTimeout bounds the initial connection attempt.
	// Zero means DefaultConnectionTimeout.
	ConnectionTimeout time.Duration

	// Group is the consumer group or durable consumer name.
	Group string

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}

// Timeout returns the configured connection timeout or the default.
func (c Config) Timeout() time.Duration {
	if c.ConnectionTimeout <= 0 {
		return DefaultConnectionTimeout
	}
	return c.ConnectionTimeout
}
