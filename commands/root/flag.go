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
	"github.com/spf13/pflag"
)

func installFlags(flags *pflag.FlagSet, c *Opts) {
	flags.StringVar(&c.Role, "role", c.Role, "role of this process (onboard/basestation)")
	flags.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error)")

	flags.StringVar(&c.Mqtt.MqttBroker, "mqtt-broker", c.Mqtt.MqttBroker, "set mqtt broker")
	flags.IntVar(&c.Mqtt.MqttPort, "mqtt-port", c.Mqtt.MqttPort, "set mqtt port")
	flags.StringVar(&c.Mqtt.MqttUsername, "mqtt-username", c.Mqtt.MqttUsername, "set mqtt username")
	flags.StringVar(&c.Mqtt.MqttPassword, "mqtt-password", c.Mqtt.MqttPassword, "set mqtt password")
	flags.StringVar(&c.Mqtt.MqttClientPrefix, "mqtt-client-prefix", c.Mqtt.MqttClientPrefix, "set mqtt client prefix")
	flags.StringVar(&c.Mqtt.MqttCAPath, "mqtt-ca", c.Mqtt.MqttCAPath, "set mqtt ca path")
	flags.StringVar(&c.Mqtt.MqttClientCrtPath, "mqtt-client-crt", c.Mqtt.MqttClientCrtPath, "set mqtt client crt path")
	flags.StringVar(&c.Mqtt.MqttClientKeyPath, "mqtt-client-key", c.Mqtt.MqttClientKeyPath, "set mqtt client key path")

	flags.StringVar(&c.HeartbeatMqttBroker, "heartbeat-mqtt-broker", c.HeartbeatMqttBroker, "set mqtt broker of the heartbeat bus")
	flags.IntVar(&c.HeartbeatMqttPort, "heartbeat-mqtt-port", c.HeartbeatMqttPort, "set mqtt port of the heartbeat bus")
	flags.DurationVar(&c.HeartbeatTimeout, "heartbeat-timeout", c.HeartbeatTimeout, "silence after which the peer is considered lost")
	flags.DurationVar(&c.HeartbeatPollInterval, "heartbeat-poll-interval", c.HeartbeatPollInterval, "pause between two heartbeat receive attempts")
	flags.DurationVar(&c.StatusInterval, "status-interval", c.StatusInterval, "how often kill switch and temperature status is published")

	flags.StringVar(&c.BCPUTempPath, "bcpu-temp-path", c.BCPUTempPath, "hwmon file of the cpu temperature")
	flags.StringVar(&c.GPUTempPath, "gpu-temp-path", c.GPUTempPath, "hwmon file of the gpu temperature")
	flags.StringVar(&c.TBoardTempPath, "tboard-temp-path", c.TBoardTempPath, "hwmon file of the board temperature")

	flags.BoolVar(&c.EmbeddedBroker, "embedded-broker", c.EmbeddedBroker, "serve mqtt in-process on the heartbeat bus address (basestation only)")

	flags.BoolVar(&c.EnablePrometheus, "enable-prometheus", c.EnablePrometheus, "serve prometheus metrics")
	flags.IntVar(&c.PrometheusPort, "prometheus-port", c.PrometheusPort, "port of the prometheus metrics listener")
	flags.BoolVar(&c.EnableTracker, "enable-tracker", c.EnableTracker, "record failsafe events to the tracker event log")
	flags.BoolVar(&c.EnableTracing, "enable-tracing", c.EnableTracing, "trace kill broadcasts and operator requests")
	flags.Float64Var(&c.TraceSampleRate, "trace-sample-rate", c.TraceSampleRate, "fraction of traces to sample, within [0, 1]")
}
