package transport

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const DefaultInboxSize = 256

// Dispatcher buffers messages delivered from a bus goroutine and hands them
// to their channel handler on the goroutine calling Receive.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	inbox     chan Message
	faults    chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func NewDispatcher(inboxSize int) *Dispatcher {
	if inboxSize <= 0 {
		inboxSize = DefaultInboxSize
	}
	return &Dispatcher{
		handlers: make(map[string]Handler),
		inbox:    make(chan Message, inboxSize),
		faults:   make(chan error, 1),
		closed:   make(chan struct{}),
	}
}

func (d *Dispatcher) Register(channel string, handler Handler) error {
	if channel == "" {
		return errors.New("channel is empty")
	}
	if handler == nil {
		return errors.Errorf("handler for %s is nil", channel)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, has := d.handlers[channel]; has {
		return errors.Errorf("channel %s already subscribed", channel)
	}
	d.handlers[channel] = handler
	return nil
}

// Unregister drops the handler of channel, if any.
func (d *Dispatcher) Unregister(channel string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, channel)
}

func (d *Dispatcher) Handles(channel string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, has := d.handlers[channel]
	return has
}

// Deliver queues msg without blocking. It returns false when the inbox is
// full or the dispatcher is closed and the message was dropped.
func (d *Dispatcher) Deliver(msg Message) bool {
	if msg.Received.IsZero() {
		msg.Received = time.Now()
	}
	select {
	case <-d.closed:
		return false
	default:
	}
	select {
	case d.inbox <- msg:
		return true
	default:
		return false
	}
}

// Fault records a bus failure for the next Receive. Only the first pending
// fault is kept.
func (d *Dispatcher) Fault(err error) {
	if err == nil {
		return
	}
	select {
	case d.faults <- err:
	default:
	}
}

// Receive dispatches one queued message, waiting up to timeout for it. A
// timeout <= 0 only looks at what is already queued.
func (d *Dispatcher) Receive(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		return d.poll(ctx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case err := <-d.faults:
		return false, NewFault(err)
	case <-d.closed:
		return false, NewFault(ErrClosed)
	case msg := <-d.inbox:
		return true, d.dispatch(ctx, msg)
	case <-timer.C:
		return false, nil
	}
}

func (d *Dispatcher) poll(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	select {
	case err := <-d.faults:
		return false, NewFault(err)
	case <-d.closed:
		return false, NewFault(ErrClosed)
	default:
	}
	select {
	case msg := <-d.inbox:
		return true, d.dispatch(ctx, msg)
	default:
		return false, nil
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, msg Message) error {
	d.mu.RLock()
	handler := d.handlers[msg.Channel]
	d.mu.RUnlock()
	if handler == nil {
		return nil
	}
	return handler(ctx, msg)
}

func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closed)
	})
}
