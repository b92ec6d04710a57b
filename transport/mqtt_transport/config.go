package mqtt_transport

import (
	"github.com/roverlink/teleop/common/utils"
	"github.com/roverlink/teleop/model"
)

type MqttConfig struct {
	MqttBroker        string
	MqttPort          int
	MqttUsername      string
	MqttPassword      string
	MqttClientPrefix  string
	MqttCAPath        string
	MqttClientCrtPath string
	MqttClientKeyPath string
}

// init fills unset fields from the control bus environment.
func (c *MqttConfig) init() {
	c.initAddress(model.EnvKeyOfMqttBroker, model.EnvKeyOfMqttPort)
	c.initCredentials()
}

// initHeartbeat fills unset fields for the heartbeat bus. Its address has its
// own env override; credentials are shared with the control bus.
func (c *MqttConfig) initHeartbeat() {
	c.initAddress(model.EnvKeyOfHeartbeatMqttBroker, model.EnvKeyOfHeartbeatMqttPort)
	c.initCredentials()
}

func (c *MqttConfig) initAddress(brokerKey, portKey string) {
	if c.MqttBroker == "" {
		c.MqttBroker = utils.GetEnv(brokerKey, model.DefaultMqttBroker)
	}

	if c.MqttPort == 0 {
		c.MqttPort = utils.GetEnvInt(portKey, model.DefaultMqttPort)
	}
}

func (c *MqttConfig) initCredentials() {
	if c.MqttUsername == "" {
		c.MqttUsername = utils.GetEnv(model.EnvKeyOfMqttUsername, "")
	}

	if c.MqttPassword == "" {
		c.MqttPassword = utils.GetEnv(model.EnvKeyOfMqttPassword, "")
	}

	if c.MqttClientPrefix == "" {
		c.MqttClientPrefix = utils.GetEnv(model.EnvKeyOfMqttClientPrefix, "teleop")
	}

	if c.MqttCAPath == "" {
		c.MqttCAPath = utils.GetEnv(model.EnvKeyOfMqttCAPath, "")
	}

	if c.MqttClientCrtPath == "" {
		c.MqttClientCrtPath = utils.GetEnv(model.EnvKeyOfMqttClientCrtPath, "")
	}

	if c.MqttClientKeyPath == "" {
		c.MqttClientKeyPath = utils.GetEnv(model.EnvKeyOfMqttClientKeyPath, "")
	}
}
