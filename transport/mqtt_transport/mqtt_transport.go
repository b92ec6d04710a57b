package mqtt_transport

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/roverlink/teleop/common/log"
	"github.com/roverlink/teleop/common/mqtt"
	"github.com/roverlink/teleop/common/prometheus"
	"github.com/roverlink/teleop/common/utils"
	"github.com/roverlink/teleop/transport"
	"golang.org/x/time/rate"
)

var _ transport.Transport = &MqttTransport{}

// MqttTransport binds the Transport contract to an MQTT broker. paho
// callbacks only queue messages; handlers run inside Receive.
type MqttTransport struct {
	name       string
	mqttClient *mqtt.Client
	dispatcher *transport.Dispatcher
	qos        byte
	logger     log.Logger

	// dropLimiter bounds the warnings logged for a full inbox.
	dropLimiter *rate.Limiter
}

// NewControlTransport connects to the control bus.
func NewControlTransport(ctx context.Context, name string, c MqttConfig) (*MqttTransport, error) {
	c.init()
	return newMqttTransport(ctx, name, c)
}

// NewHeartbeatTransport connects to the heartbeat bus.
func NewHeartbeatTransport(ctx context.Context, name string, c MqttConfig) (*MqttTransport, error) {
	c.initHeartbeat()
	return newMqttTransport(ctx, name, c)
}

func newMqttTransport(ctx context.Context, name string, c MqttConfig) (*MqttTransport, error) {
	m := &MqttTransport{
		name:        name,
		dispatcher:  transport.NewDispatcher(transport.DefaultInboxSize),
		qos:         mqtt.Qos0,
		dropLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger: log.G(ctx).WithFields(log.Fields{
			"transport": name,
			"broker":    c.MqttBroker,
			"port":      c.MqttPort,
		}),
	}

	var err error
	m.mqttClient, err = mqtt.NewMqttClient(&mqtt.ClientConfig{
		Broker:        c.MqttBroker,
		Port:          c.MqttPort,
		ClientID:      utils.FormatClientID(c.MqttClientPrefix, name),
		Username:      c.MqttUsername,
		Password:      c.MqttPassword,
		CAPath:        c.MqttCAPath,
		ClientCrtPath: c.MqttClientCrtPath,
		ClientKeyPath: c.MqttClientKeyPath,
		CleanSession:  true,
		OnConnectHandler: func(client paho.Client) {
			reader := client.OptionsReader()
			m.logger.Info("Connected, client id: ", reader.ClientID())
		},
		ConnectionLostHandler: func(_ paho.Client, err error) {
			m.logger.WithError(err).Error("Connection lost")
			m.dispatcher.Fault(errors.Wrap(err, "mqtt connection lost"))
		},
	})
	if err != nil {
		return nil, transport.NewFault(err)
	}
	if m.mqttClient == nil {
		return nil, errors.New("mqtt client is nil")
	}

	return m, nil
}

func (m *MqttTransport) Name() string {
	return m.name
}

func (m *MqttTransport) Publish(_ context.Context, channel string, payload []byte) error {
	if err := m.mqttClient.Pub(channel, m.qos, payload); err != nil {
		return transport.NewFault(err)
	}
	return nil
}

func (m *MqttTransport) Subscribe(channel string, handler transport.Handler) error {
	if err := m.dispatcher.Register(channel, handler); err != nil {
		return err
	}
	if err := m.mqttClient.Sub(channel, m.qos, m.msgCallback); err != nil {
		m.dispatcher.Unregister(channel)
		return transport.NewFault(err)
	}
	return nil
}

func (m *MqttTransport) msgCallback(_ paho.Client, msg paho.Message) {
	if !m.dispatcher.Deliver(transport.Message{Channel: msg.Topic(), Payload: msg.Payload()}) {
		prometheus.DroppedMessages.WithLabelValues(msg.Topic()).Inc()
		if m.dropLimiter.Allow() {
			m.logger.WithField("channel", msg.Topic()).Warn("Inbox full, message dropped")
		}
	}
}

func (m *MqttTransport) Receive(ctx context.Context, timeout time.Duration) (bool, error) {
	return m.dispatcher.Receive(ctx, timeout)
}

func (m *MqttTransport) Close() error {
	m.dispatcher.Close()
	m.mqttClient.Disconnect()
	m.logger.Info("Disconnected")
	return nil
}
