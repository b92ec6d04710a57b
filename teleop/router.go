// Package teleop routes operator control input on the onboard unit to the
// actuators through the fail-safe controller, and publishes the unit's
// periodic status.
package teleop

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/common/tracker"
	"github.com/roverlink/teleop/failsafe"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport"
	"golang.org/x/time/rate"
)

// Router consumes the control channels. Every actuator command it derives
// goes through the controller.
type Router struct {
	transport      transport.Transport
	controller     *failsafe.Controller
	receiveTimeout time.Duration
	subscribed     bool

	// warnLimiter bounds the log lines written for malformed input.
	warnLimiter *rate.Limiter
}

func NewRouter(t transport.Transport, controller *failsafe.Controller) (*Router, error) {
	if t == nil || controller == nil {
		return nil, errors.New("router needs a transport and a controller")
	}
	return &Router{
		transport:      t,
		controller:     controller,
		receiveTimeout: model.DefaultControlReceiveTimeout,
		warnLimiter:    rate.NewLimiter(rate.Every(time.Second), 5),
	}, nil
}

// Subscribe registers the handlers of every control channel. Run calls it
// when it has not been called yet.
func (r *Router) Subscribe() error {
	if r.subscribed {
		return nil
	}
	handlers := map[string]transport.Handler{
		model.DriveControlChannel:      r.handleDriveControl,
		model.AutonomousChannel:        r.handleAutonomous,
		model.ArmControlChannel:        r.handleArmControl,
		model.ScienceArmControlChannel: r.handleScienceArmControl,
		model.GimbalControlChannel:     r.handleGimbalControl,
	}
	for channel, handler := range handlers {
		if err := r.transport.Subscribe(channel, handler); err != nil {
			return errors.Wrapf(err, "subscribe %s", channel)
		}
	}
	r.subscribed = true
	return nil
}

// Run dispatches control input until ctx is cancelled, which
// returns nil, or until a transport fault, which is returned.
func (r *Router) Run(ctx context.Context) error {
	if err := r.Subscribe(); err != nil {
		return err
	}
	log.G(ctx).Info("Control router started")

	for {
		if _, err := r.transport.Receive(ctx, r.receiveTimeout); err != nil {
			if ctx.Err() != nil {
				log.G(ctx).Info("Control router shut down")
				return nil
			}
			log.G(ctx).WithError(err).Error("Control router stopped")
			tracker.G().ErrorReport(uuid.New().String(), tracker.SceneControl, tracker.EventLoopStopped, err.Error(), map[string]string{
				"killed": strconv.FormatBool(r.controller.State().Killed),
			})
			return err
		}
	}
}

func (r *Router) handleDriveControl(ctx context.Context, msg transport.Message) error {
	in, ok := decode[model.DriveControl](ctx, r.warnLimiter, msg)
	if !ok {
		return nil
	}
	// Without an operator link the joystick is ignored, kill and restart included.
	if !r.controller.State().Connected {
		return nil
	}

	if in.Kill {
		r.controller.OperatorKill(ctx)
	} else if in.Restart {
		r.controller.OperatorRestart(ctx)
	}
	return r.controller.HandleActuatorCommand(ctx, model.DriveMotorChannel, model.DriveCommand{Left: in.Left, Right: in.Right})
}

func (r *Router) handleAutonomous(ctx context.Context, msg transport.Message) error {
	in, ok := decode[model.DriveControl](ctx, r.warnLimiter, msg)
	if !ok {
		return nil
	}
	return r.controller.HandleActuatorCommand(ctx, model.DriveMotorChannel, model.DriveCommand{Left: in.Left, Right: in.Right})
}

func (r *Router) handleArmControl(ctx context.Context, msg transport.Message) error {
	in, ok := decode[model.ArmControl](ctx, r.warnLimiter, msg)
	if !ok {
		return nil
	}
	if err := r.controller.HandleActuatorCommand(ctx, model.ArmOpenLoopChannel, model.ArmOpenLoopCommand{Throttle: in.Throttle}); err != nil {
		return err
	}
	return r.controller.HandleActuatorCommand(ctx, model.HandOpenLoopChannel, model.HandCommand{Finger: in.Finger, Grip: in.Grip})
}

func (r *Router) handleScienceArmControl(ctx context.Context, msg transport.Message) error {
	in, ok := decode[model.ScienceArmControl](ctx, r.warnLimiter, msg)
	if !ok {
		return nil
	}
	return r.controller.HandleActuatorCommand(ctx, model.ScienceArmOpenLoopChannel, model.ScienceArmOpenLoopCommand{Throttle: in.Throttle})
}

func (r *Router) handleGimbalControl(ctx context.Context, msg transport.Message) error {
	in, ok := decode[model.GimbalControl](ctx, r.warnLimiter, msg)
	if !ok {
		return nil
	}
	return r.controller.HandleActuatorCommand(ctx, model.GimbalOpenLoopChannel, model.GimbalCommand{Pitch: in.Pitch, Yaw: in.Yaw})
}

func decode[T any](ctx context.Context, limiter *rate.Limiter, msg transport.Message) (T, bool) {
	in, err := model.Decode[T](msg.Payload)
	if err != nil {
		prometheus.MalformedMessages.WithLabelValues(msg.Channel).Inc()
		if limiter.Allow() {
			log.G(ctx).WithError(err).WithField("channel", msg.Channel).Warn("Dropping control input")
		}
		return in, false
	}
	return in, true
}
