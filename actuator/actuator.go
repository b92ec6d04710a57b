// Package actuator declares the outbound actuator channels and their neutral
// payloads, and broadcasts the neutral state to all of them at once.
package actuator

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport"
	"github.com/virtual-kubelet/virtual-kubelet/trace"
)

// Channel is one actuator output together with the payload that commands it
// to stop.
type Channel struct {
	Name    string
	Neutral interface{}
}

// DefaultChannels returns every actuator output of the onboard unit.
func DefaultChannels() []Channel {
	return []Channel{
		{Name: model.DriveMotorChannel, Neutral: model.DriveCommand{}},
		{Name: model.ArmOpenLoopChannel, Neutral: model.ArmOpenLoopCommand{Throttle: make([]float64, model.ArmJointCount)}},
		{Name: model.ScienceArmOpenLoopChannel, Neutral: model.ScienceArmOpenLoopCommand{Throttle: make([]float64, model.ScienceArmJointCount)}},
		{Name: model.HandOpenLoopChannel, Neutral: model.HandCommand{}},
		{Name: model.GimbalOpenLoopChannel, Neutral: model.GimbalCommand{
			Pitch: make([]float64, model.GimbalAxisCount),
			Yaw:   make([]float64, model.GimbalAxisCount),
		}},
	}
}

type KillBroadcaster struct {
	publisher transport.Publisher
	channels  []Channel
	// neutral holds the encoded neutral payload of every channel.
	neutral map[string][]byte
}

// NewKillBroadcaster encodes every neutral payload up front, so Broadcast can
// only fail on the transport.
func NewKillBroadcaster(publisher transport.Publisher, channels []Channel) (*KillBroadcaster, error) {
	if publisher == nil {
		return nil, errors.New("publisher is nil")
	}
	if len(channels) == 0 {
		return nil, errors.New("no actuator channels")
	}

	neutral := make(map[string][]byte, len(channels))
	for _, c := range channels {
		if c.Name == "" {
			return nil, errors.New("actuator channel without name")
		}
		if _, ok := neutral[c.Name]; ok {
			return nil, errors.Errorf("actuator channel %s declared twice", c.Name)
		}
		payload, err := model.Encode(c.Neutral)
		if err != nil {
			return nil, errors.Wrapf(err, "neutral payload of %s", c.Name)
		}
		neutral[c.Name] = payload
	}

	return &KillBroadcaster{
		publisher: publisher,
		channels:  append([]Channel(nil), channels...),
		neutral:   neutral,
	}, nil
}

func (b *KillBroadcaster) Channels() []Channel {
	return append([]Channel(nil), b.channels...)
}

// Neutral returns the encoded neutral payload declared for channel.
func (b *KillBroadcaster) Neutral(channel string) ([]byte, bool) {
	payload, ok := b.neutral[channel]
	return payload, ok
}

// Broadcast publishes every channel's neutral payload. It keeps going past a
// failed channel and returns all publish errors joined.
func (b *KillBroadcaster) Broadcast(ctx context.Context) error {
	var errs []error
	for _, c := range b.channels {
		if err := b.neutralize(ctx, c.Name); err != nil {
			errs = append(errs, err)
		}
	}
	prometheus.KillBroadcasts.Inc()
	log.G(ctx).WithField("channels", len(b.channels)).Warn("Kill broadcast sent")
	return stderrors.Join(errs...)
}

func (b *KillBroadcaster) neutralize(ctx context.Context, channel string) error {
	ctx, span := trace.StartSpan(ctx, "actuator.Neutralize")
	defer span.End()
	ctx = span.WithField(ctx, "channel", channel)

	if err := b.publisher.Publish(ctx, channel, b.neutral[channel]); err != nil {
		log.G(ctx).WithError(err).Error("Failed to neutralize actuator")
		err = errors.Wrapf(err, "neutralize %s", channel)
		span.SetStatus(err)
		return err
	}
	prometheus.ActuatorCommands.WithLabelValues(channel, prometheus.OutcomeNeutralized).Inc()
	span.SetStatus(nil)
	return nil
}
