// Copyright © 2017 The virtual-kubelet authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package root

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/actuator"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/common/testutil/mqtt_broker"
	"github.com/roverlink/teleop/common/tracker"
	"github.com/roverlink/teleop/failsafe"
	"github.com/roverlink/teleop/heartbeat"
	"github.com/roverlink/teleop/teleop"
	"github.com/roverlink/teleop/transport"
	"github.com/roverlink/teleop/transport/mqtt_transport"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewCommand creates a new top-level command.
// This command is used to start the teleop daemon of either role.
func NewCommand(ctx context.Context, c Opts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "teleopd",
		Short: "teleopd keeps the operator link alive and stops the actuators when it is lost.",
		Long: `teleopd runs the heartbeat protocol between the onboard unit and the
operator base station. On the onboard unit it also gates every actuator
command on the link state and publishes kill switch and temperature status.`,
		Version: c.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRootCommand(ctx, c)
		},
	}

	installFlags(cmd.Flags(), &c)
	return cmd
}

func runRootCommand(ctx context.Context, c Opts) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := log.Init(c.LogLevel, nil); err != nil {
		return err
	}

	role, err := heartbeat.ParseRole(c.Role)
	if err != nil {
		return err
	}

	ctx = log.WithLogger(ctx, log.G(ctx).WithFields(log.Fields{
		"role":    role.String(),
		"version": c.Version,
	}))

	if c.EnableTracker {
		tracker.SetTracker(&tracker.DefaultTracker{})
	}

	shutdownTracing, err := setupTracing(ctx, c)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.G(ctx).WithError(err).Warn("failed to shut down tracing")
		}
	}()

	if c.EnablePrometheus {
		go func() {
			if err := prometheus.StartPrometheusListen(c.PrometheusPort); err != nil {
				log.G(ctx).WithError(err).Error("failed to start prometheus server")
			}
		}()
		log.G(ctx).Infof("Prometheus listening on port %d", c.PrometheusPort)
	}

	if c.EmbeddedBroker {
		if role != heartbeat.RoleRemote {
			return errors.New("the embedded broker is only served by the basestation")
		}
		address := fmt.Sprintf("%s:%d", c.HeartbeatMqttBroker, c.HeartbeatMqttPort)
		server, err := mqtt_broker.NewBroker(address)
		if err != nil {
			return err
		}
		defer server.Close()
		log.G(ctx).Infof("Embedded mqtt broker listening on %s", address)
	}

	hb, err := mqtt_transport.NewHeartbeatTransport(ctx, role.String()+"-heartbeat", c.heartbeatMqttConfig())
	if err != nil {
		return err
	}
	defer hb.Close()

	if role == heartbeat.RoleRemote {
		return runBaseStation(ctx, c, hb)
	}

	control, err := mqtt_transport.NewControlTransport(ctx, role.String()+"-control", c.Mqtt)
	if err != nil {
		return err
	}
	defer control.Close()

	return runOnboard(ctx, c, hb, control)
}

func heartbeatConfig(role heartbeat.PeerRole, c Opts) heartbeat.Config {
	config := heartbeat.ConfigForRole(role)
	config.Timeout = c.HeartbeatTimeout
	config.PollInterval = c.HeartbeatPollInterval
	return config
}

// runOnboard wires the fail-safe chain: heartbeat transitions drive the
// controller, which gates everything the control router forwards.
func runOnboard(ctx context.Context, c Opts, hb, control transport.Transport) error {
	broadcaster, err := actuator.NewKillBroadcaster(control, actuator.DefaultChannels())
	if err != nil {
		return err
	}
	controller, err := failsafe.NewController(control, broadcaster)
	if err != nil {
		return err
	}
	endpoint, err := heartbeat.NewEndpoint(heartbeatConfig(heartbeat.RoleLocal, c), hb, controller.OnConnectionChange)
	if err != nil {
		return err
	}
	router, err := teleop.NewRouter(control, controller)
	if err != nil {
		return err
	}

	temperatures := teleop.TemperatureSource{
		BCPUPath:   c.BCPUTempPath,
		GPUPath:    c.GPUTempPath,
		TBoardPath: c.TBoardTempPath,
	}

	if err = controller.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return endpoint.Run(gctx)
	})
	g.Go(func() error {
		return router.Run(gctx)
	})
	g.Go(func() error {
		teleop.RunStatusTask(gctx, controller, c.StatusInterval)
		return nil
	})
	g.Go(func() error {
		teleop.RunTemperatureTask(gctx, controller, temperatures, c.StatusInterval)
		return nil
	})

	log.G(ctx).Info("Onboard teleop running")
	return g.Wait()
}

func runBaseStation(ctx context.Context, c Opts, hb transport.Transport) error {
	endpoint, err := heartbeat.NewEndpoint(heartbeatConfig(heartbeat.RoleRemote, c), hb, func(ctx context.Context, connected bool) error {
		if connected {
			log.G(ctx).Info("Rover is reachable")
		} else {
			log.G(ctx).Warn("Rover is unreachable, it is stopping its actuators")
		}
		return nil
	})
	if err != nil {
		return err
	}

	log.G(ctx).Info("Base station heartbeat running")
	return endpoint.Run(ctx)
}
