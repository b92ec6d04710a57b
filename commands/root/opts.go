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
	"time"

	"github.com/roverlink/teleop/common/utils"
	"github.com/roverlink/teleop/model"
	"github.com/roverlink/teleop/transport/mqtt_transport"
)

// Defaults for root command options
const (
	DefaultRole            = model.RoleNameOnboard
	DefaultLogLevel        = "info"
	DefaultPrometheusPort  = 9090
	DefaultTraceSampleRate = 1.0
)

// Opts stores all the options for configuring the root teleop command.
// It is used for setting flag values.
//
// You can set the default options by creating a new `Opts` struct and passing
// it into `SetDefaultOpts`
type Opts struct {
	// Role is onboard or basestation.
	Role     string
	LogLevel string

	// Control bus, carrying operator input, actuator commands and telemetry.
	Mqtt mqtt_transport.MqttConfig
	// Heartbeat bus. Credentials are taken from the control bus settings.
	HeartbeatMqttBroker string
	HeartbeatMqttPort   int

	HeartbeatTimeout      time.Duration
	HeartbeatPollInterval time.Duration
	StatusInterval        time.Duration

	// Temperature sources, onboard only.
	BCPUTempPath   string
	GPUTempPath    string
	TBoardTempPath string

	// EmbeddedBroker serves MQTT in-process on the heartbeat bus address.
	EmbeddedBroker bool

	EnablePrometheus bool
	PrometheusPort   int

	// EnableTracker records failsafe events as configured by TRACKER_CONFIG_PATH.
	EnableTracker bool

	// EnableTracing traces kill broadcasts and operator requests.
	EnableTracing   bool
	TraceSampleRate float64

	Version string
}

// SetDefaultOpts sets default options for unset values on the passed in option struct.
// Fields tht are already set will not be modified.
func SetDefaultOpts(c *Opts) error {
	if c.Role == "" {
		c.Role = utils.GetEnv(model.EnvKeyOfRole, DefaultRole)
	}

	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}

	if c.Mqtt.MqttBroker == "" {
		c.Mqtt.MqttBroker = utils.GetEnv(model.EnvKeyOfMqttBroker, model.DefaultMqttBroker)
	}

	if c.Mqtt.MqttPort == 0 {
		c.Mqtt.MqttPort = utils.GetEnvInt(model.EnvKeyOfMqttPort, model.DefaultMqttPort)
	}

	if c.HeartbeatMqttBroker == "" {
		c.HeartbeatMqttBroker = utils.GetEnv(model.EnvKeyOfHeartbeatMqttBroker, model.DefaultMqttBroker)
	}

	if c.HeartbeatMqttPort == 0 {
		c.HeartbeatMqttPort = utils.GetEnvInt(model.EnvKeyOfHeartbeatMqttPort, model.DefaultMqttPort)
	}

	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = model.DefaultHeartbeatTimeout
	}

	if c.HeartbeatPollInterval == 0 {
		c.HeartbeatPollInterval = model.DefaultHeartbeatPollInterval
	}

	if c.StatusInterval == 0 {
		c.StatusInterval = model.DefaultStatusInterval
	}

	if c.BCPUTempPath == "" {
		c.BCPUTempPath = model.DefaultBCPUTempPath
	}

	if c.GPUTempPath == "" {
		c.GPUTempPath = model.DefaultGPUTempPath
	}

	if c.TBoardTempPath == "" {
		c.TBoardTempPath = model.DefaultTBoardTempPath
	}

	if c.PrometheusPort == 0 {
		c.PrometheusPort = DefaultPrometheusPort
	}

	if c.TraceSampleRate == 0 {
		c.TraceSampleRate = DefaultTraceSampleRate
	}

	return nil
}

// heartbeatMqttConfig is the control bus config pointed at the heartbeat bus.
func (c *Opts) heartbeatMqttConfig() mqtt_transport.MqttConfig {
	ret := c.Mqtt
	ret.MqttBroker = c.HeartbeatMqttBroker
	ret.MqttPort = c.HeartbeatMqttPort
	return ret
}
