package prometheus

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestStartPrometheusListen(t *testing.T) {
	go StartPrometheusListen(10080)
	KillBroadcasts.Inc()

	var resp *http.Response
	assert.Eventually(t, func() bool {
		var err error
		resp, err = http.Get("http://localhost:10080/metrics")
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "teleop_failsafe_kill_broadcasts_total")
}

func TestActuatorCommandsCounter(t *testing.T) {
	before := testutil.ToFloat64(ActuatorCommands.WithLabelValues("/motor", OutcomeDropped))
	ActuatorCommands.WithLabelValues("/motor", OutcomeDropped).Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(ActuatorCommands.WithLabelValues("/motor", OutcomeDropped)))
}

func TestBoolToGauge(t *testing.T) {
	assert.Equal(t, 1.0, BoolToGauge(true))
	assert.Equal(t, 0.0, BoolToGauge(false))
}
