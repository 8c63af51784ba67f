package core

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when operations are attempted on a closed service.
	ErrClosed = errors.New("mqshim: service is closed")

	// ErrUnusable is wrapped into every error returned after an earlier
	// broker failure. A new Service is required to recover.
	ErrUnusable = errors.New("mqshim: service unusable after earlier failure")

	// ErrEmptyDestination is returned when a destination name is empty.
	ErrEmptyDestination = errors.New("mqshim: destination is empty")

	// ErrNoHandler is returned when consuming without a received action.
	ErrNoHandler = errors.New("mqshim: no handler set")

	// ErrAlreadyConsuming is returned when a second consumer is registered.
	ErrAlreadyConsuming = errors.New("mqshim: consumer already registered")

	// ErrNoDialer is returned when a service is created without a dialer.
	ErrNoDialer = errors.New("mqshim: dialer is nil")
)

// Kind classifies broker failures.
type Kind int

const (
	KindConnection Kind = iota + 1
	KindChannel
	KindPublish
	KindConsume
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindChannel:
		return "channel"
	case KindPublish:
		return "publish"
	case KindConsume:
		return "consume"
	default:
		return "unknown"
	}
}

// Error is returned by Service operations for broker-side failures.
type Error struct {
	Op          string
	Kind        Kind
	Destination string
	Err         error
}

func (e *Error) Error() string {
	if e.Destination != "" {
		return fmt.Sprintf("mqshim: %s %q: %s error: %v", e.Op, e.Destination, e.Kind, e.Err)
	}
	return fmt.Sprintf("mqshim: %s: %s error: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf reports the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsConnectionError reports whether err stems from establishing the session.
func IsConnectionError(err error) bool { return KindOf(err) == KindConnection }
