/**
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *      http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package model

import "time"

// Heartbeat channels. The onboard unit publishes on HeartbeatOnboardChannel and
// listens on HeartbeatBaseStationChannel, the base station does the reverse.
const (
	HeartbeatOnboardChannel     = "/heartbeat/rover"
	HeartbeatBaseStationChannel = "/heartbeat/bs"
)

// Operator control inputs consumed by the onboard router.
const (
	DriveControlChannel      = "/drive_control"
	AutonomousChannel        = "/autonomous"
	ArmControlChannel        = "/ra_control"
	ScienceArmControlChannel = "/sa_control"
	GimbalControlChannel     = "/gimbal_control"
)

// Actuator command outputs.
const (
	DriveMotorChannel         = "/motor"
	ArmOpenLoopChannel        = "/ra_openloop_cmd"
	ScienceArmOpenLoopChannel = "/sa_openloop_cmd"
	HandOpenLoopChannel       = "/hand_openloop_cmd"
	GimbalOpenLoopChannel     = "/gimbal_openloop_cmd"
)

// Telemetry outputs.
const (
	KillSwitchChannel  = "/kill_switch"
	TemperatureChannel = "/temperature"
)

const (
	ArmJointCount        = 6
	ScienceArmJointCount = 3
	GimbalAxisCount      = 2
)

const (
	DefaultHeartbeatTimeout      = 2 * time.Second
	DefaultHeartbeatPollInterval = 100 * time.Millisecond
	DefaultStatusInterval        = time.Second
	DefaultControlReceiveTimeout = time.Second
)

// Bus defaults, overridable through the env keys below.
const (
	DefaultMqttBroker = "127.0.0.1"
	DefaultMqttPort   = 1883
)

const (
	EnvKeyOfRole                = "TELEOP_ROLE"
	EnvKeyOfHeartbeatMqttBroker = "HEARTBEAT_MQTT_BROKER"
	EnvKeyOfHeartbeatMqttPort   = "HEARTBEAT_MQTT_PORT"
	EnvKeyOfMqttBroker          = "MQTT_BROKER"
	EnvKeyOfMqttPort            = "MQTT_PORT"
	EnvKeyOfMqttUsername        = "MQTT_USERNAME"
	EnvKeyOfMqttPassword        = "MQTT_PASSWORD"
	EnvKeyOfMqttClientPrefix    = "MQTT_CLIENT_PREFIX"
	EnvKeyOfMqttCAPath          = "MQTT_CA_PATH"
	EnvKeyOfMqttClientCrtPath   = "MQTT_CLIENT_CRT_PATH"
	EnvKeyOfMqttClientKeyPath   = "MQTT_CLIENT_KEY_PATH"
	EnvKeyOfTrackerConfigPath   = "TRACKER_CONFIG_PATH"
)

// Role names accepted on the command line.
const (
	RoleNameOnboard     = "onboard"
	RoleNameBaseStation = "basestation"
)

// Temperature sources on the onboard computer.
const (
	DefaultBCPUTempPath   = "/sys/class/hwmon/hwmon0/temp1_input"
	DefaultGPUTempPath    = "/sys/class/hwmon/hwmon2/temp1_input"
	DefaultTBoardTempPath = "/sys/class/hwmon/hwmon4/temp1_input"
)
