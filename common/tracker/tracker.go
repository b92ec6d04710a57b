package tracker

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Scenes and events tracked by the onboard unit.
const (
	SceneFailsafe  = "failsafe"
	SceneHeartbeat = "heartbeat"
	SceneControl   = "control"

	EventStartupKill     = "startup_kill"
	EventKillBroadcast   = "kill_broadcast"
	EventKillRestored    = "kill_restored"
	EventOperatorKill    = "operator_kill"
	EventOperatorRestart = "operator_restart"
	EventLoopStopped     = "loop_stopped"
)

var (
	G = GetTracker

	// T discards events until SetTracker installs a real tracker.
	T Tracker = &DefaultTracker{
		logWriter: io.Discard,
	}
)

// Tracker records safety relevant events, outside of the process log, for
// after-the-fact review of a run.
type Tracker interface {
	Init()

	FuncTrack(traceID, scene, event string, labels map[string]string, f func() error) error

	ErrorReport(traceID, scene, event, message string, labels map[string]string)
}

func SetTracker(t Tracker) {
	if t == nil {
		logrus.Info("custom tracker is nil")
		return
	}
	T = t
	T.Init()
}

func GetTracker() Tracker {
	return T
}
