package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

const (
	Qos0 byte = iota
	Qos1
	Qos2
)

const defaultOperationTimeout = 5 * time.Second

// ClientConfig describes one broker connection.
type ClientConfig struct {
	Broker        string
	Port          int
	ClientID      string
	Username      string
	Password      string
	CAPath        string
	ClientCrtPath string
	ClientKeyPath string
	CleanSession  bool
	// AutoReconnect is off by default: a dropped connection is reported
	// through ConnectionLostHandler and left to the owner.
	AutoReconnect bool

	ConnectTimeout        time.Duration
	OnConnectHandler      paho.OnConnectHandler
	ConnectionLostHandler paho.ConnectionLostHandler
}

type Client struct {
	client paho.Client
}

// NewMqttClient connects to the configured broker and blocks until the
// connection is established or ConnectTimeout elapses.
func NewMqttClient(config *ClientConfig) (*Client, error) {
	if config.Broker == "" {
		return nil, errors.New("mqtt broker is empty")
	}

	opts := paho.NewClientOptions()
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetCleanSession(config.CleanSession)
	opts.SetAutoReconnect(config.AutoReconnect)
	opts.SetOrderMatters(false)
	if config.OnConnectHandler != nil {
		opts.SetOnConnectHandler(config.OnConnectHandler)
	}
	if config.ConnectionLostHandler != nil {
		opts.SetConnectionLostHandler(config.ConnectionLostHandler)
	}

	if config.CAPath != "" {
		tlsConfig, err := newTlsConfig(config.CAPath, config.ClientCrtPath, config.ClientKeyPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
		opts.AddBroker(fmt.Sprintf("ssl://%s:%d", config.Broker, config.Port))
	} else {
		opts.AddBroker(fmt.Sprintf("tcp://%s:%d", config.Broker, config.Port))
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, errors.Errorf("connect to %s:%d timed out", config.Broker, config.Port)
	}
	if token.Error() != nil {
		return nil, errors.Wrapf(token.Error(), "connect to %s:%d", config.Broker, config.Port)
	}

	return &Client{client: client}, nil
}

func newTlsConfig(caPath, clientCrtPath, clientKeyPath string) (*tls.Config, error) {
	certPool := x509.NewCertPool()
	ca, err := os.ReadFile(caPath)
	if err != nil {
		return nil, errors.Wrap(err, "read mqtt ca")
	}
	certPool.AppendCertsFromPEM(ca)

	tlsConfig := &tls.Config{
		RootCAs: certPool,
	}

	if clientCrtPath != "" && clientKeyPath != "" {
		clientKeyPair, err := tls.LoadX509KeyPair(clientCrtPath, clientKeyPath)
		if err != nil {
			return nil, errors.Wrap(err, "load mqtt client key pair")
		}
		tlsConfig.ClientAuth = tls.NoClientCert
		tlsConfig.Certificates = []tls.Certificate{clientKeyPair}
	}
	return tlsConfig, nil
}

// Pub publishes a message and waits for the broker handoff.
func (c *Client) Pub(topic string, qos byte, msg []byte) error {
	return c.PubWithTimeout(topic, qos, msg, defaultOperationTimeout)
}

func (c *Client) PubWithTimeout(topic string, qos byte, msg []byte, timeout time.Duration) error {
	token := c.client.Publish(topic, qos, false, msg)
	if !token.WaitTimeout(timeout) {
		return errors.Errorf("publish to %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "publish to %s", topic)
}

func (c *Client) Sub(topic string, qos byte, callBack paho.MessageHandler) error {
	return c.SubWithTimeout(topic, qos, defaultOperationTimeout, callBack)
}

func (c *Client) SubWithTimeout(topic string, qos byte, timeout time.Duration, callBack paho.MessageHandler) error {
	token := c.client.Subscribe(topic, qos, callBack)
	if !token.WaitTimeout(timeout) {
		return errors.Errorf("subscribe to %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "subscribe to %s", topic)
}

func (c *Client) UnSub(topic string) error {
	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(defaultOperationTimeout) {
		return errors.Errorf("unsubscribe from %s timed out", topic)
	}
	return errors.Wrapf(token.Error(), "unsubscribe from %s", topic)
}

func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect waits up to 250ms for in-flight work before closing.
func (c *Client) Disconnect() {
	c.client.Disconnect(250)
}
