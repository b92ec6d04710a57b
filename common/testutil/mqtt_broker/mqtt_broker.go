package mqtt_broker

import (
	"fmt"
	"sync"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/pkg/errors"
)

var lock sync.Mutex

var started = map[int]*mqtt.Server{}

// StartLocalMqttBroker starts one shared broker on 127.0.0.1:port for the
// test binary. Later calls with the same port return the running broker.
// Test packages run in parallel processes, so each one uses its own port.
func StartLocalMqttBroker(port int) (*mqtt.Server, error) {
	lock.Lock()
	defer lock.Unlock()
	if server, ok := started[port]; ok {
		return server, nil
	}
	server, err := NewBroker(fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, err
	}
	started[port] = server
	return server, nil
}

// NewBroker starts an MQTT broker accepting every client on address.
// Serve does not block, callers own Close.
func NewBroker(address string) (*mqtt.Server, error) {
	server := mqtt.New(nil)

	// Allow all connections.
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, errors.Wrap(err, "add auth hook")
	}

	tcp := listeners.NewTCP(listeners.Config{ID: "teleop-tcp", Address: address})
	if err := server.AddListener(tcp); err != nil {
		return nil, errors.Wrapf(err, "listen on %s", address)
	}

	if err := server.Serve(); err != nil {
		return nil, errors.Wrap(err, "serve mqtt")
	}
	return server, nil
}
