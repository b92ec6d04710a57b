// Package heartbeat implements the bidirectional keepalive between the
// onboard unit and the operator station.
//
// Each side publishes on its own channel and listens on the peer's. Any
// well-formed message proves the peer alive; silence for Timeout means the
// link is lost. A connected endpoint only replies, a disconnected one also
// pings on every tick until the peer answers. Worst-case detection latency is
// Timeout + PollInterval.
package heartbeat

import (
	"context"
	"crypto/rand"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/common/tracker"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport"
)

// ConnectionChangeFunc is called from the endpoint loop on every connectivity
// transition. A returned error stops the loop.
type ConnectionChangeFunc func(ctx context.Context, connected bool) error

type Endpoint struct {
	config    Config
	transport transport.Transport
	onChange  ConnectionChangeFunc

	// connected is written only by the loop goroutine.
	connected  atomic.Bool
	lastSeen   time.Time
	subscribed bool
}

func NewEndpoint(config Config, t transport.Transport, onChange ConnectionChangeFunc) (*Endpoint, error) {
	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if t == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "transport is nil")
	}
	if onChange == nil {
		onChange = func(context.Context, bool) error { return nil }
	}
	return &Endpoint{
		config:    config,
		transport: t,
		onChange:  onChange,
	}, nil
}

func (e *Endpoint) Config() Config {
	return e.config
}

func (e *Endpoint) Connected() bool {
	return e.connected.Load()
}

// Subscribe registers the heartbeat handler on the remote channel. Run calls
// it when it has not been called yet.
func (e *Endpoint) Subscribe() error {
	if e.subscribed {
		return nil
	}
	if err := e.transport.Subscribe(e.config.RemoteChannel, e.handleHeartbeat); err != nil {
		return errors.Wrap(err, "subscribe heartbeat")
	}
	e.subscribed = true
	return nil
}

// Run drives the endpoint until ctx is cancelled, which returns nil, or until
// a transport fault or callback error, which is returned. Leaving on an error
// while connected reports the disconnect first, so the callback always sees
// the link go down before the loop ends.
func (e *Endpoint) Run(ctx context.Context) error {
	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"publish":   e.config.LocalChannel,
		"subscribe": e.config.RemoteChannel,
	}))

	if err := e.Subscribe(); err != nil {
		return err
	}
	prometheus.HeartbeatConnected.WithLabelValues(e.config.LocalChannel).Set(prometheus.BoolToGauge(e.connected.Load()))
	log.G(ctx).Info("Heartbeat started")

	for {
		if err := e.tick(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			return e.stop(ctx, err)
		}

		if !sleep(ctx, e.config.PollInterval) {
			break
		}
	}

	log.G(ctx).Info("Heartbeat shut down")
	return nil
}

func (e *Endpoint) stop(ctx context.Context, err error) error {
	wasConnected := e.connected.Load()
	log.G(ctx).WithError(err).Error("Heartbeat stopped")
	tracker.G().ErrorReport(uuid.New().String(), tracker.SceneHeartbeat, tracker.EventLoopStopped, err.Error(), map[string]string{
		"channel":   e.config.LocalChannel,
		"connected": strconv.FormatBool(wasConnected),
	})

	if wasConnected {
		if cbErr := e.setConnected(ctx, false); cbErr != nil {
			log.G(ctx).WithError(cbErr).Error("Disconnect callback failed on stop")
		}
	}
	return err
}

func (e *Endpoint) tick(ctx context.Context) error {
	received, err := e.transport.Receive(ctx, e.config.Timeout)
	if err != nil {
		return err
	}
	// Drain the backlog so a queue of old heartbeats cannot outlive the peer.
	for more, n := received, 0; more && n < transport.DefaultInboxSize; n++ {
		if more, err = e.transport.Receive(ctx, 0); err != nil {
			return err
		}
	}

	if e.connected.Load() && (!received || time.Since(e.lastSeen) >= e.config.Timeout) {
		if err = e.setConnected(ctx, false); err != nil {
			return err
		}
	}

	if !e.connected.Load() {
		return e.sendNew(ctx)
	}
	return nil
}

func (e *Endpoint) handleHeartbeat(ctx context.Context, msg transport.Message) error {
	in, err := model.Decode[model.HeartbeatMessage](msg.Payload)
	if err != nil {
		prometheus.MalformedMessages.WithLabelValues(msg.Channel).Inc()
		log.G(ctx).WithError(err).Warn("Dropping heartbeat")
		return nil
	}

	received := msg.Received
	if received.IsZero() {
		received = time.Now()
	}
	// A heartbeat that waited in the inbox past Timeout proves nothing.
	if time.Since(received) >= e.config.Timeout {
		prometheus.StaleMessages.WithLabelValues(msg.Channel).Inc()
		log.G(ctx).Debug("Dropping stale heartbeat")
		return nil
	}

	e.lastSeen = received
	if !e.connected.Load() {
		if err = e.setConnected(ctx, true); err != nil {
			return err
		}
	}

	return e.reply(ctx, in.NewAckID)
}

func (e *Endpoint) setConnected(ctx context.Context, connected bool) error {
	e.connected.Store(connected)

	state := "disconnected"
	if connected {
		state = "connected"
	}
	prometheus.HeartbeatConnected.WithLabelValues(e.config.LocalChannel).Set(prometheus.BoolToGauge(connected))
	prometheus.HeartbeatTransitions.WithLabelValues(e.config.LocalChannel, state).Inc()
	if connected {
		log.G(ctx).Info("Connection established")
	} else {
		log.G(ctx).Warn("Connection lost")
	}

	return e.onChange(ctx, connected)
}

// sendNew publishes a self-initiated ping.
func (e *Endpoint) sendNew(ctx context.Context) error {
	ackID, err := NewAckID()
	if err != nil {
		return err
	}
	if err = e.publish(ctx, model.HeartbeatMessage{NewAckID: ackID}); err != nil {
		return err
	}
	prometheus.HeartbeatsSent.WithLabelValues(e.config.LocalChannel, "ping").Inc()
	return nil
}

func (e *Endpoint) reply(ctx context.Context, recvAckID model.AckID) error {
	ackID, err := NewAckID()
	if err != nil {
		return err
	}
	if err = e.publish(ctx, model.HeartbeatMessage{NewAckID: ackID, RecvAckID: &recvAckID}); err != nil {
		return err
	}
	prometheus.HeartbeatsSent.WithLabelValues(e.config.LocalChannel, "reply").Inc()
	return nil
}

func (e *Endpoint) publish(ctx context.Context, msg model.HeartbeatMessage) error {
	payload, err := model.Encode(msg)
	if err != nil {
		return err
	}
	return e.transport.Publish(ctx, e.config.LocalChannel, payload)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// NewAckID draws a fresh 24-bit token.
func NewAckID() (model.AckID, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, errors.Wrap(err, "generate ack id")
	}
	return model.AckID(b[0])<<16 | model.AckID(b[1])<<8 | model.AckID(b[2]), nil
}
