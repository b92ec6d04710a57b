package failsafe

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/actuator"
	"github.com/roverlink/teleop/common/tracker"
	"github.com/roverlink/teleop/heartbeat"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vktrace "github.com/virtual-kubelet/virtual-kubelet/trace"
	"github.com/virtual-kubelet/virtual-kubelet/trace/opentelemetry"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

func newTestController(t *testing.T) (*Controller, *transport.MemoryTransport) {
	pub := transport.NewMemoryBus().Connect("rover")
	b, err := actuator.NewKillBroadcaster(pub, actuator.DefaultChannels())
	require.NoError(t, err)
	c, err := NewController(pub, b)
	require.NoError(t, err)
	return c, pub
}

func drive(left, right float64) model.DriveCommand {
	return model.DriveCommand{Left: left, Right: right}
}

func TestNewController_Rejects(t *testing.T) {
	_, err := NewController(nil, nil)
	assert.Error(t, err)
}

func TestController_StartsKilledAndDropsCommands(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	assert.Equal(t, State{Killed: true}, c.State())
	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))
	assert.Empty(t, pub.Published())
}

func TestController_ForwardsWhenLive(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	assert.Equal(t, State{Connected: true}, c.State())

	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(0.5, -0.5)))
	msgs := pub.PublishedOn(model.DriveMotorChannel)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"left":0.5,"right":-0.5}`, string(msgs[0].Payload))
}

func TestController_DisconnectBroadcastsOnce(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	require.NoError(t, c.OnConnectionChange(ctx, false))

	assert.Len(t, pub.Published(), len(actuator.DefaultChannels()))
	for _, ch := range actuator.DefaultChannels() {
		assert.Len(t, pub.PublishedOn(ch.Name), 1, ch.Name)
	}
	assert.Equal(t, State{Killed: true, PreviousKilled: false, Connected: false}, c.State())

	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))
	assert.Len(t, pub.PublishedOn(model.DriveMotorChannel), 1)
}

func TestController_RestoresKillStateOnReconnect(t *testing.T) {
	for _, killed := range []bool{false, true} {
		c, _ := newTestController(t)
		ctx := context.Background()

		require.NoError(t, c.OnConnectionChange(ctx, true))
		if killed {
			c.OperatorKill(ctx)
		}
		require.NoError(t, c.OnConnectionChange(ctx, false))
		require.NoError(t, c.OnConnectionChange(ctx, true))
		assert.Equal(t, killed, c.State().Killed)
	}
}

func TestController_OperatorKillPersistsUntilRestart(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	c.OperatorKill(ctx)
	require.NoError(t, c.OnConnectionChange(ctx, false))
	require.NoError(t, c.OnConnectionChange(ctx, true))
	pub.ResetPublished()

	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))
	msgs := pub.PublishedOn(model.DriveMotorChannel)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"left":0,"right":0}`, string(msgs[0].Payload))

	c.OperatorRestart(ctx)
	pub.ResetPublished()
	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))
	msgs = pub.PublishedOn(model.DriveMotorChannel)
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"left":1,"right":1}`, string(msgs[0].Payload))
}

func TestController_OperatorRequestWhileDisconnected(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()

	c.OperatorKill(ctx)
	assert.Equal(t, State{Killed: true, PreviousKilled: true}, c.State())
	require.NoError(t, c.OnConnectionChange(ctx, true))
	assert.True(t, c.State().Killed)

	require.NoError(t, c.OnConnectionChange(ctx, false))
	c.OperatorRestart(ctx)
	assert.True(t, c.State().Killed)
	require.NoError(t, c.OnConnectionChange(ctx, true))
	assert.False(t, c.State().Killed)
}

func TestController_KilledDropsChannelWithoutNeutral(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	c.OperatorKill(ctx)
	require.NoError(t, c.HandleActuatorCommand(ctx, "/camera_pan", drive(1, 1)))
	assert.Empty(t, pub.Published())
}

func TestController_BroadcastFailureReturned(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	pub.SetPublishError(errors.New("bus down"))
	err := c.OnConnectionChange(ctx, false)
	assert.True(t, transport.IsFault(err))
	assert.True(t, c.State().Killed)
}

func TestController_PublishStatus(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.PublishStatus(ctx))
	require.NoError(t, c.OnConnectionChange(ctx, true))
	require.NoError(t, c.PublishStatus(ctx))

	msgs := pub.PublishedOn(model.KillSwitchChannel)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"killed":true}`, string(msgs[0].Payload))
	assert.JSONEq(t, `{"killed":false}`, string(msgs[1].Payload))

	require.NoError(t, c.PublishTelemetry(ctx, model.TemperatureChannel, model.Temperature{GPUTemp: 41000}))
	assert.Len(t, pub.PublishedOn(model.TemperatureChannel), 1)
}

func TestController_SafetyInvariantUnderRandomOperations(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))

	for i := 0; i < 2000; i++ {
		before := c.State()
		pub.ResetPublished()

		switch r.Intn(5) {
		case 0:
			require.NoError(t, c.OnConnectionChange(ctx, true))
		case 1:
			require.NoError(t, c.OnConnectionChange(ctx, false))
			assert.Len(t, pub.Published(), len(actuator.DefaultChannels()))
		case 2:
			c.OperatorKill(ctx)
		case 3:
			c.OperatorRestart(ctx)
		case 4:
			require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))
			msgs := pub.PublishedOn(model.DriveMotorChannel)
			switch {
			case !before.Connected:
				assert.Empty(t, msgs)
			case before.Killed:
				require.Len(t, msgs, 1)
				assert.JSONEq(t, `{"left":0,"right":0}`, string(msgs[0].Payload))
			default:
				require.Len(t, msgs, 1)
				assert.JSONEq(t, `{"left":1,"right":1}`, string(msgs[0].Payload))
			}
		}

		s := c.State()
		if !s.Connected {
			require.True(t, s.Killed, "disconnected but not killed after step %d", i)
		}
	}
}

type recordingTracker struct {
	events []string
	labels []map[string]string
}

func (r *recordingTracker) Init() {}

func (r *recordingTracker) FuncTrack(_, _, event string, labels map[string]string, f func() error) error {
	err := f()
	if err != nil {
		event += ":" + err.Error()
	}
	r.events = append(r.events, event)
	r.labels = append(r.labels, labels)
	return err
}

func (r *recordingTracker) ErrorReport(_, _, event, _ string, _ map[string]string) {
	r.events = append(r.events, event)
}

func TestController_TracksSafetyEvents(t *testing.T) {
	rec := &recordingTracker{}
	previous := tracker.T
	tracker.SetTracker(rec)
	defer func() { tracker.T = previous }()

	c, _ := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.OnConnectionChange(ctx, true))
	c.OperatorKill(ctx)
	require.NoError(t, c.OnConnectionChange(ctx, false))
	c.OperatorRestart(ctx)

	assert.Equal(t, []string{
		tracker.EventKillRestored,
		tracker.EventOperatorKill,
		tracker.EventKillBroadcast,
		tracker.EventOperatorRestart,
	}, rec.events)
	assert.Equal(t, "true", rec.labels[2]["previousKilled"])
	assert.Equal(t, "false", rec.labels[3]["previousKilled"])
	assert.Equal(t, "true", rec.labels[3]["killed"])
}

func TestController_StartNeutralizesEveryChannelOnce(t *testing.T) {
	c, pub := newTestController(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx))
	for _, ch := range actuator.DefaultChannels() {
		msgs := pub.PublishedOn(ch.Name)
		require.Len(t, msgs, 1, ch.Name)
		neutral, ok := c.broadcaster.Neutral(ch.Name)
		require.True(t, ok)
		assert.Equal(t, neutral, msgs[0].Payload, ch.Name)
	}
	assert.Equal(t, State{Killed: true}, c.State())
}

func TestController_StartBroadcastFailure(t *testing.T) {
	c, pub := newTestController(t)
	pub.SetPublishError(errors.New("bus unreachable"))
	err := c.Start(context.Background())
	assert.True(t, transport.IsFault(err))
}

func TestController_HeartbeatFaultWhileLiveNeutralizes(t *testing.T) {
	bus := transport.NewMemoryBus()
	roverHeartbeat := bus.Connect("rover-heartbeat")
	station := bus.Connect("station")
	control := bus.Connect("rover-control")

	b, err := actuator.NewKillBroadcaster(control, actuator.DefaultChannels())
	require.NoError(t, err)
	c, err := NewController(control, b)
	require.NoError(t, err)

	cfg := heartbeat.ConfigForRole(heartbeat.RoleLocal)
	cfg.Timeout = time.Second
	cfg.PollInterval = 10 * time.Millisecond
	e, err := heartbeat.NewEndpoint(cfg, roverHeartbeat, c.OnConnectionChange)
	require.NoError(t, err)
	require.NoError(t, e.Subscribe())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Run(ctx)
	}()

	payload, err := model.Encode(model.HeartbeatMessage{NewAckID: 1})
	require.NoError(t, err)
	require.NoError(t, station.Publish(ctx, model.HeartbeatBaseStationChannel, payload))
	assert.Eventually(t, func() bool {
		return c.State().Connected
	}, time.Second, 10*time.Millisecond)
	require.NoError(t, c.HandleActuatorCommand(ctx, model.DriveMotorChannel, drive(1, 1)))

	roverHeartbeat.InjectFault(errors.New("connection lost"))
	select {
	case err = <-errCh:
		assert.True(t, transport.IsFault(err))
	case <-time.After(time.Second):
		t.Fatal("heartbeat kept running after a transport fault")
	}

	assert.Equal(t, State{Killed: true, PreviousKilled: false, Connected: false}, c.State())
	motor := control.PublishedOn(model.DriveMotorChannel)
	require.Len(t, motor, 2)
	assert.JSONEq(t, `{"left":0,"right":0}`, string(motor[1].Payload))
	for _, ch := range actuator.DefaultChannels() {
		if ch.Name == model.DriveMotorChannel {
			continue
		}
		assert.Len(t, control.PublishedOn(ch.Name), 1, ch.Name)
	}
}

func TestController_TracesKillBroadcast(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	previous := vktrace.T
	vktrace.T = opentelemetry.Adapter{}
	defer func() {
		vktrace.T = previous
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	}()

	c, _ := newTestController(t)
	ctx := context.Background()
	require.NoError(t, c.OnConnectionChange(ctx, true))
	c.OperatorKill(ctx)
	require.NoError(t, c.OnConnectionChange(ctx, false))

	var broadcast sdktrace.ReadOnlySpan
	operatorRequests := 0
	for _, span := range rec.Ended() {
		switch span.Name() {
		case "failsafe.KillBroadcast":
			broadcast = span
		case "failsafe.OperatorRequest":
			operatorRequests++
		}
	}
	require.NotNil(t, broadcast)
	assert.Equal(t, 1, operatorRequests)

	children := 0
	for _, span := range rec.Ended() {
		if span.Name() == "actuator.Neutralize" {
			assert.Equal(t, broadcast.SpanContext().SpanID(), span.Parent().SpanID())
			children++
		}
	}
	assert.Equal(t, len(actuator.DefaultChannels()), children)
}
