package transport

import (
	"context"
	"sync"
	"time"
)

var _ Transport = &MemoryTransport{}

// MemoryBus is an in-process bus. Every transport connected to it receives
// the messages published on the channels it subscribed, its own included.
type MemoryBus struct {
	mu         sync.RWMutex
	transports map[*MemoryTransport]struct{}
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		transports: make(map[*MemoryTransport]struct{}),
	}
}

// Connect attaches a new transport to the bus.
func (b *MemoryBus) Connect(name string) *MemoryTransport {
	t := &MemoryTransport{
		name:       name,
		bus:        b,
		dispatcher: NewDispatcher(DefaultInboxSize),
	}
	b.mu.Lock()
	b.transports[t] = struct{}{}
	b.mu.Unlock()
	return t
}

func (b *MemoryBus) deliver(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for t := range b.transports {
		if t.LinkDown() || !t.dispatcher.Handles(msg.Channel) {
			continue
		}
		t.dispatcher.Deliver(Message{Channel: msg.Channel, Payload: append([]byte(nil), msg.Payload...)})
	}
}

func (b *MemoryBus) disconnect(t *MemoryTransport) {
	b.mu.Lock()
	delete(b.transports, t)
	b.mu.Unlock()
}

// MemoryTransport is a Transport on a MemoryBus. It records what it
// publishes and can simulate link loss and publish failures.
type MemoryTransport struct {
	sync.Mutex

	name       string
	bus        *MemoryBus
	dispatcher *Dispatcher

	published  []Message
	publishErr error
	linkDown   bool
	closed     bool
}

func (t *MemoryTransport) Name() string {
	return t.name
}

func (t *MemoryTransport) Publish(_ context.Context, channel string, payload []byte) error {
	t.Lock()
	if t.closed {
		t.Unlock()
		return NewFault(ErrClosed)
	}
	if t.publishErr != nil {
		err := t.publishErr
		t.Unlock()
		return NewFault(err)
	}
	msg := Message{Channel: channel, Payload: append([]byte(nil), payload...)}
	t.published = append(t.published, msg)
	linkDown := t.linkDown
	t.Unlock()

	if !linkDown {
		t.bus.deliver(msg)
	}
	return nil
}

func (t *MemoryTransport) Subscribe(channel string, handler Handler) error {
	return t.dispatcher.Register(channel, handler)
}

func (t *MemoryTransport) Receive(ctx context.Context, timeout time.Duration) (bool, error) {
	return t.dispatcher.Receive(ctx, timeout)
}

func (t *MemoryTransport) Close() error {
	t.Lock()
	if t.closed {
		t.Unlock()
		return nil
	}
	t.closed = true
	t.Unlock()

	t.bus.disconnect(t)
	t.dispatcher.Close()
	return nil
}

// SetLinkDown drops everything this transport sends or would receive while
// down. Publishes still succeed locally and are recorded.
func (t *MemoryTransport) SetLinkDown(down bool) {
	t.Lock()
	defer t.Unlock()
	t.linkDown = down
}

func (t *MemoryTransport) LinkDown() bool {
	t.Lock()
	defer t.Unlock()
	return t.linkDown
}

// SetPublishError makes every following Publish fail with err until cleared with nil.
func (t *MemoryTransport) SetPublishError(err error) {
	t.Lock()
	defer t.Unlock()
	t.publishErr = err
}

// InjectFault makes the next Receive report err as a transport fault.
func (t *MemoryTransport) InjectFault(err error) {
	t.dispatcher.Fault(err)
}

// Published returns a copy of everything published so far.
func (t *MemoryTransport) Published() []Message {
	t.Lock()
	defer t.Unlock()
	return append([]Message(nil), t.published...)
}

// PublishedOn returns the messages published on channel.
func (t *MemoryTransport) PublishedOn(channel string) []Message {
	t.Lock()
	defer t.Unlock()
	ret := make([]Message, 0)
	for _, msg := range t.published {
		if msg.Channel == channel {
			ret = append(ret, msg)
		}
	}
	return ret
}

func (t *MemoryTransport) ResetPublished() {
	t.Lock()
	defer t.Unlock()
	t.published = nil
}
