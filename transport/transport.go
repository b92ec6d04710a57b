package transport

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrTransportFault marks an unexpected bus failure. It is not recoverable
	// locally and is meant to reach process supervision.
	ErrTransportFault = errors.New("transport fault")

	ErrClosed = errors.New("transport closed")
)

// Message is one payload received on a subscribed channel. Received is
// stamped when the bus hands the message over, before it waits in the inbox.
type Message struct {
	Channel  string
	Payload  []byte
	Received time.Time
}

// Handler is invoked by Receive, on the receiving goroutine, for each
// message dispatched from a subscribed channel. A returned error is
// returned from Receive.
type Handler func(ctx context.Context, msg Message) error

type Transport interface {
	Publisher

	// Subscribe registers handler for channel. One handler per channel.
	Subscribe(channel string, handler Handler) error

	// Receive waits up to timeout for one subscribed message and dispatches it.
	// It reports received=false with a nil error when the timeout elapses,
	// ctx.Err() on cancellation and an ErrTransportFault on bus failure. A
	// timeout <= 0 returns at once when nothing is queued.
	Receive(ctx context.Context, timeout time.Duration) (received bool, err error)

	// Close releases the bus handle.
	Close() error
}

type Publisher interface {
	// Publish hands payload to the bus. Failures are ErrTransportFault.
	Publish(ctx context.Context, channel string, payload []byte) error
}

type faultError struct {
	cause error
}

func (e *faultError) Error() string {
	return "transport fault: " + e.cause.Error()
}

func (e *faultError) Unwrap() error {
	return e.cause
}

func (e *faultError) Is(target error) bool {
	return target == ErrTransportFault
}

// NewFault wraps cause so that errors.Is(err, ErrTransportFault) holds while
// the cause stays reachable.
func NewFault(cause error) error {
	if cause == nil {
		return nil
	}
	if errors.Is(cause, ErrTransportFault) {
		return cause
	}
	return &faultError{cause: cause}
}

// IsFault reports whether err is a transport fault.
func IsFault(err error) bool {
	return errors.Is(err, ErrTransportFault)
}
