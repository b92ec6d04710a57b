package tracker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"sync"
	"time"

	"github.com/roverlink/teleop/common/utils"
	"github.com/roverlink/teleop/model"
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/yaml"
)

// Constants for default configuration path and event results
const (
	DefaultConfigPath = "config/tracker_config.yaml"
	EventSuccess      = "success"
	EventFail         = "fail"
)

var _ Tracker = &DefaultTracker{}

type defaultTrackerConfig struct {
	LogDir      string   `json:"logDir"`      // Directory of events.log, stdout when unset
	ReportLevel string   `json:"reportLevel"` // "debug" reports every event, "error" only failures
	ReportLinks []string `json:"reportLinks"` // URLs events are POSTed to
}

func (c defaultTrackerConfig) isDebug() bool {
	return c.ReportLevel == "debug"
}

type logData struct {
	TraceID  string            `json:"traceID"`
	Scene    string            `json:"scene"`
	Event    string            `json:"event"`
	TimeUsed int64             `json:"timeUsed,omitempty"` // milliseconds
	Result   string            `json:"result"`
	Message  string            `json:"message"`
	Labels   map[string]string `json:"labels"`
}

func (d logData) formatText() string {
	labelBytes, _ := json.Marshal(d.Labels)
	return fmt.Sprintf("[%s], [%s], [%s], [%s], [%d], [%s], [%s], [%s]\n",
		time.Now().Format("2006-01-02 15:04:05.000"),
		d.TraceID,
		d.Scene,
		d.Event,
		d.TimeUsed,
		d.Result,
		d.Message,
		string(labelBytes),
	)
}

func (d logData) formatJson() string {
	jsonBytes, _ := json.Marshal(d)
	return string(jsonBytes)
}

// DefaultTracker appends events to a local log and POSTs them to the
// configured links.
type DefaultTracker struct {
	sync.Mutex

	config    defaultTrackerConfig
	logWriter io.Writer
}

// Init loads the yaml config named by TRACKER_CONFIG_PATH. Without a config
// file events go to stdout and nothing is reported.
func (t *DefaultTracker) Init() {
	t.Lock()
	defer t.Unlock()

	configPath := utils.GetEnv(model.EnvKeyOfTrackerConfigPath, DefaultConfigPath)
	t.config = defaultTrackerConfig{ReportLevel: "error"}
	t.logWriter = os.Stdout

	configContent, err := os.ReadFile(configPath)
	if err != nil {
		logrus.WithError(err).Warn("tracker config not loaded, events go to stdout")
		return
	}
	if err = yaml.Unmarshal(configContent, &t.config); err != nil {
		logrus.WithError(err).Error("invalid tracker config, events go to stdout")
		return
	}
	if t.config.LogDir == "" {
		return
	}
	logFile, err := os.OpenFile(path.Join(t.config.LogDir, "events.log"), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		logrus.WithError(err).Error("failed to open tracker events log")
		return
	}
	t.logWriter = logFile
}

// ErrorReport records a failed event and reports it to every link.
func (t *DefaultTracker) ErrorReport(traceID, scene, event, message string, labels map[string]string) {
	data := logData{
		TraceID: traceID,
		Scene:   scene,
		Event:   event,
		Result:  EventFail,
		Message: message,
		Labels:  labels,
	}
	go t.reportEvent(data)
	t.recordEvent(data)
}

// FuncTrack runs f and records its duration and outcome. Failures are always
// reported, successes only at debug report level.
func (t *DefaultTracker) FuncTrack(traceID, scene, event string, labels map[string]string, f func() error) error {
	startTime := time.Now()
	err := f()
	data := logData{
		TraceID:  traceID,
		Scene:    scene,
		Event:    event,
		Result:   EventSuccess,
		TimeUsed: time.Since(startTime).Milliseconds(),
		Labels:   labels,
	}
	if err != nil {
		data.Result = EventFail
		data.Message = err.Error()
		go t.reportEvent(data)
	} else if t.isDebug() {
		go t.reportEvent(data)
	}
	t.recordEvent(data)
	return err
}

func (t *DefaultTracker) isDebug() bool {
	t.Lock()
	defer t.Unlock()
	return t.config.isDebug()
}

func (t *DefaultTracker) recordEvent(data logData) {
	t.Lock()
	defer t.Unlock()
	if t.logWriter == nil {
		return
	}
	if _, err := t.logWriter.Write([]byte(data.formatText())); err != nil {
		logrus.WithError(err).Error("failed to record event")
	}
}

func (t *DefaultTracker) reportEvent(data logData) {
	t.Lock()
	links := t.config.ReportLinks
	t.Unlock()

	for _, link := range links {
		resp, err := http.Post(link, "application/json", bytes.NewBufferString(data.formatJson()))
		if err != nil {
			logrus.WithError(err).Error("failed to report event")
			continue
		}
		resp.Body.Close()
	}
}
