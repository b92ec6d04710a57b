package suite

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/roverlink/teleop/actuator"
	"github.com/roverlink/teleop/failsafe"
	"github.com/roverlink/teleop/heartbeat"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport/mqtt_transport"
)

const neutralDrive = `{"left":0,"right":0}`

var _ = Describe("Two peer heartbeat over MQTT", Ordered, func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc

		roverHeartbeat   *mqtt_transport.MqttTransport
		roverControl     *mqtt_transport.MqttTransport
		stationHeartbeat *mqtt_transport.MqttTransport

		recorder    *recordingPublisher
		controller  *failsafe.Controller
		transitions *transitionLog
		rover       *heartbeat.Endpoint
		station     *heartbeat.Endpoint

		stationCancel context.CancelFunc
		stationDone   chan error
	)

	startStation := func() {
		var stationCtx context.Context
		stationCtx, stationCancel = context.WithCancel(ctx)
		stationDone = make(chan error, 1)
		go func() {
			stationDone <- station.Run(stationCtx)
		}()
	}

	silenceStation := func() {
		stationCancel()
		Eventually(stationDone, time.Second).Should(Receive(BeNil()))
	}

	BeforeAll(func() {
		ctx, cancel = context.WithCancel(context.Background())

		roverHeartbeat = newHeartbeatTransport(ctx, "suite-rover-heartbeat")
		roverControl = newControlTransport(ctx, "suite-rover-control")
		stationHeartbeat = newHeartbeatTransport(ctx, "suite-station-heartbeat")

		recorder = &recordingPublisher{Publisher: roverControl}
		broadcaster, err := actuator.NewKillBroadcaster(recorder, actuator.DefaultChannels())
		Expect(err).NotTo(HaveOccurred())
		controller, err = failsafe.NewController(recorder, broadcaster)
		Expect(err).NotTo(HaveOccurred())

		transitions = &transitionLog{}
		roverConfig := heartbeat.ConfigForRole(heartbeat.RoleLocal)
		roverConfig.Timeout = timeout
		roverConfig.PollInterval = pollInterval
		rover, err = heartbeat.NewEndpoint(roverConfig, roverHeartbeat, func(ctx context.Context, connected bool) error {
			transitions.add(connected)
			return controller.OnConnectionChange(ctx, connected)
		})
		Expect(err).NotTo(HaveOccurred())

		stationConfig := heartbeat.ConfigForRole(heartbeat.RoleRemote)
		stationConfig.Timeout = timeout
		stationConfig.PollInterval = pollInterval
		station, err = heartbeat.NewEndpoint(stationConfig, stationHeartbeat, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(rover.Subscribe()).To(Succeed())
		Expect(station.Subscribe()).To(Succeed())
		go rover.Run(ctx) //nolint:errcheck
		startStation()
	})

	AfterAll(func() {
		cancel()
		roverHeartbeat.Close()
		roverControl.Close()
		stationHeartbeat.Close()
	})

	It("both peers should report connected after the handshake", func() {
		Eventually(func() bool {
			return rover.Connected() && station.Connected()
		}, 5*time.Second, pollInterval).Should(BeTrue())
		Expect(transitions.get()).To(Equal([]bool{true}))
		Expect(controller.State()).To(Equal(failsafe.State{Connected: true}))
	})

	It("should forward operator commands while connected", func() {
		Expect(controller.HandleActuatorCommand(ctx, model.DriveMotorChannel, model.DriveCommand{Left: 0.5, Right: 0.5})).To(Succeed())
		Expect(recorder.on(model.DriveMotorChannel)).To(ConsistOf(`{"left":0.5,"right":0.5}`))
	})

	It("should kill every actuator exactly once when the station goes silent", func() {
		recorder.reset()
		silenceStation()

		Eventually(rover.Connected, timeout+pollInterval+time.Second, pollInterval).Should(BeFalse())
		Consistently(func() int {
			return len(recorder.on(model.DriveMotorChannel))
		}, 3*timeout, pollInterval).Should(Equal(1))

		Expect(recorder.on(model.DriveMotorChannel)).To(ConsistOf(neutralDrive))
		for _, channel := range actuator.DefaultChannels() {
			Expect(recorder.on(channel.Name)).To(HaveLen(1), channel.Name)
		}
		Expect(transitions.get()).To(Equal([]bool{true, false}))
		Expect(controller.State().Killed).To(BeTrue())
	})

	It("should drop commands while disconnected", func() {
		recorder.reset()
		Expect(controller.HandleActuatorCommand(ctx, model.DriveMotorChannel, model.DriveCommand{Left: 1, Right: 1})).To(Succeed())
		Expect(recorder.on(model.DriveMotorChannel)).To(BeEmpty())
	})

	It("should restore the previous kill state on reconnect", func() {
		startStation()
		Eventually(rover.Connected, 5*time.Second, pollInterval).Should(BeTrue())
		Expect(controller.State().Killed).To(BeFalse())
	})

	It("should keep an operator kill across a disconnect until restart", func() {
		controller.OperatorKill(ctx)
		silenceStation()
		Eventually(rover.Connected, timeout+pollInterval+time.Second, pollInterval).Should(BeFalse())

		startStation()
		Eventually(rover.Connected, 5*time.Second, pollInterval).Should(BeTrue())
		Expect(controller.State().Killed).To(BeTrue())

		recorder.reset()
		Expect(controller.HandleActuatorCommand(ctx, model.DriveMotorChannel, model.DriveCommand{Left: 1, Right: 1})).To(Succeed())
		Expect(recorder.on(model.DriveMotorChannel)).To(ConsistOf(neutralDrive))

		controller.OperatorRestart(ctx)
		Expect(controller.State().Killed).To(BeFalse())
		Expect(transitions.get()).To(Equal([]bool{true, false, true, false, true}))
	})
})
