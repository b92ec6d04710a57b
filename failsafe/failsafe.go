// Package failsafe owns the kill decision of the onboard unit and gates every
// outbound actuator command on it.
package failsafe

import (
	"context"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/roverlink/teleop/actuator"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/common/tracker"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport"
	"github.com/virtual-kubelet/virtual-kubelet/trace"
)

// State is a snapshot of the controller. While Connected is false, Killed is
// always true.
type State struct {
	Killed         bool
	PreviousKilled bool
	Connected      bool
}

// Controller starts disconnected and killed. The first connection releases
// it unless an operator kill was recorded in the meantime.
type Controller struct {
	sync.Mutex

	publisher   transport.Publisher
	broadcaster *actuator.KillBroadcaster
	state       State
}

func NewController(publisher transport.Publisher, broadcaster *actuator.KillBroadcaster) (*Controller, error) {
	if publisher == nil || broadcaster == nil {
		return nil, errors.New("failsafe controller needs a publisher and a kill broadcaster")
	}
	prometheus.Killed.Set(1)
	return &Controller{
		publisher:   publisher,
		broadcaster: broadcaster,
		state:       State{Killed: true},
	}, nil
}

func (c *Controller) State() State {
	c.Lock()
	defer c.Unlock()
	return c.state
}

// OnConnectionChange is the heartbeat transition callback. A disconnect always
// neutralizes every actuator before it returns; a broadcast failure is
// returned so the heartbeat loop stops.
func (c *Controller) OnConnectionChange(ctx context.Context, connected bool) error {
	c.Lock()
	defer c.Unlock()

	if connected {
		if c.state.Connected {
			return nil
		}
		c.state.Connected = true
		c.setKilled(c.state.PreviousKilled)
		log.G(ctx).WithField("killed", c.state.Killed).Info("Operator connected, kill state restored")
		return c.track(tracker.EventKillRestored, nil)
	}

	if c.state.Connected {
		c.state.PreviousKilled = c.state.Killed
	}
	c.state.Connected = false
	c.setKilled(true)
	log.G(ctx).WithField("previousKilled", c.state.PreviousKilled).Warn("Operator disconnected, killing actuators")
	return c.killBroadcast(ctx, tracker.EventKillBroadcast)
}

// Start neutralizes every actuator once, before the first connection. The
// controller is already killed; this makes the outputs agree with it.
func (c *Controller) Start(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	log.G(ctx).Info("Neutralizing actuators at startup")
	return c.killBroadcast(ctx, tracker.EventStartupKill)
}

func (c *Controller) killBroadcast(ctx context.Context, event string) error {
	ctx, span := trace.StartSpan(ctx, "failsafe.KillBroadcast")
	defer span.End()
	ctx = span.WithField(ctx, "event", event)

	err := c.track(event, func() error {
		return c.broadcaster.Broadcast(ctx)
	})
	span.SetStatus(err)
	return err
}

// OperatorKill holds the actuators at neutral until OperatorRestart. While
// disconnected the request is recorded and applied on reconnect.
func (c *Controller) OperatorKill(ctx context.Context) {
	c.operatorSet(ctx, true)
}

func (c *Controller) OperatorRestart(ctx context.Context) {
	c.operatorSet(ctx, false)
}

func (c *Controller) operatorSet(ctx context.Context, killed bool) {
	c.Lock()
	defer c.Unlock()

	event := tracker.EventOperatorRestart
	if killed {
		event = tracker.EventOperatorKill
	}
	ctx, span := trace.StartSpan(ctx, "failsafe.OperatorRequest")
	defer span.End()
	ctx = span.WithFields(ctx, log.Fields{
		"event":     event,
		"connected": c.state.Connected,
	})

	if !c.state.Connected {
		c.state.PreviousKilled = killed
	} else {
		if c.state.Killed != killed {
			log.G(ctx).WithField("killed", killed).Info("Operator changed kill state")
		}
		c.setKilled(killed)
	}
	span.SetStatus(c.track(event, nil))
}

// HandleActuatorCommand publishes cmd on channel if the unit is live, the
// channel's neutral payload if it is killed, and nothing while disconnected.
func (c *Controller) HandleActuatorCommand(ctx context.Context, channel string, cmd interface{}) error {
	c.Lock()
	defer c.Unlock()

	if !c.state.Connected {
		prometheus.ActuatorCommands.WithLabelValues(channel, prometheus.OutcomeDropped).Inc()
		return nil
	}

	if c.state.Killed {
		neutral, ok := c.broadcaster.Neutral(channel)
		if !ok {
			prometheus.ActuatorCommands.WithLabelValues(channel, prometheus.OutcomeDropped).Inc()
			log.G(ctx).WithField("channel", channel).Debug("Dropping command without neutral payload while killed")
			return nil
		}
		if err := c.publisher.Publish(ctx, channel, neutral); err != nil {
			return err
		}
		prometheus.ActuatorCommands.WithLabelValues(channel, prometheus.OutcomeNeutralized).Inc()
		return nil
	}

	payload, err := model.Encode(cmd)
	if err != nil {
		return err
	}
	if err = c.publisher.Publish(ctx, channel, payload); err != nil {
		return err
	}
	prometheus.ActuatorCommands.WithLabelValues(channel, prometheus.OutcomeForwarded).Inc()
	return nil
}

// PublishStatus reports the current kill state on the kill switch channel.
func (c *Controller) PublishStatus(ctx context.Context) error {
	c.Lock()
	defer c.Unlock()

	payload, err := model.Encode(model.KillSwitch{Killed: c.state.Killed})
	if err != nil {
		return err
	}
	return c.publisher.Publish(ctx, model.KillSwitchChannel, payload)
}

// PublishTelemetry publishes a non-actuator message under the controller guard.
func (c *Controller) PublishTelemetry(ctx context.Context, channel string, msg interface{}) error {
	payload, err := model.Encode(msg)
	if err != nil {
		return err
	}

	c.Lock()
	defer c.Unlock()
	return c.publisher.Publish(ctx, channel, payload)
}

// track records event with the state it left behind. Callers hold the guard.
func (c *Controller) track(event string, f func() error) error {
	if f == nil {
		f = func() error { return nil }
	}
	labels := map[string]string{
		"killed":         strconv.FormatBool(c.state.Killed),
		"previousKilled": strconv.FormatBool(c.state.PreviousKilled),
		"connected":      strconv.FormatBool(c.state.Connected),
	}
	return tracker.G().FuncTrack(uuid.New().String(), tracker.SceneFailsafe, event, labels, f)
}

func (c *Controller) setKilled(killed bool) {
	c.state.Killed = killed
	prometheus.Killed.Set(prometheus.BoolToGauge(killed))
}
