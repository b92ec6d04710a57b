package prometheus

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "teleop"

// Actuator command outcomes.
const (
	OutcomeForwarded   = "forwarded"
	OutcomeNeutralized = "neutralized"
	OutcomeDropped     = "dropped"
)

var (
	HeartbeatConnected = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "connected",
		Help:      "1 while the heartbeat peer is considered connected.",
	}, []string{"channel"})

	HeartbeatTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "transitions_total",
		Help:      "Connectivity transitions by resulting state.",
	}, []string{"channel", "state"})

	HeartbeatsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "heartbeat",
		Name:      "sent_total",
		Help:      "Heartbeats sent, by kind (ping or reply).",
	}, []string{"channel", "kind"})

	MalformedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "malformed_messages_total",
		Help:      "Inbound payloads dropped because they could not be decoded.",
	}, []string{"channel"})

	DroppedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_messages_total",
		Help:      "Inbound messages dropped because the receive inbox was full.",
	}, []string{"channel"})

	StaleMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_messages_total",
		Help:      "Heartbeats dropped because they waited in the inbox past the timeout.",
	}, []string{"channel"})

	KillBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "failsafe",
		Name:      "kill_broadcasts_total",
		Help:      "Neutral command broadcasts to every actuator channel.",
	})

	Killed = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "failsafe",
		Name:      "killed",
		Help:      "1 while actuators are held at neutral.",
	})

	ActuatorCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "failsafe",
		Name:      "actuator_commands_total",
		Help:      "Actuator commands by outcome.",
	}, []string{"channel", "outcome"})
)

// BoolToGauge maps a state flag onto a gauge value.
func BoolToGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func StartPrometheusListen(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(fmt.Sprintf(":%d", port), mux)
}
