package model

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ErrMalformedMessage marks an inbound payload that could not be decoded into
// the message type declared for its channel.
var ErrMalformedMessage = errors.New("malformed message")

// MaxAckID is the largest value an AckID can carry on the wire (24 bits).
const MaxAckID AckID = 1<<24 - 1

// AckID is the randomized correlation token attached to every heartbeat.
type AckID uint32

// HeartbeatMessage is exchanged on the heartbeat channels. RecvAckID is nil on
// self-initiated pings and echoes the peer's NewAckID on replies.
type HeartbeatMessage struct {
	NewAckID  AckID  `json:"new_ack_id"`
	RecvAckID *AckID `json:"recv_ack_id,omitempty"`
}

func (m HeartbeatMessage) Validate() error {
	if m.NewAckID > MaxAckID {
		return errors.Errorf("new_ack_id %d exceeds 24 bits", m.NewAckID)
	}
	if m.RecvAckID != nil && *m.RecvAckID > MaxAckID {
		return errors.Errorf("recv_ack_id %d exceeds 24 bits", *m.RecvAckID)
	}
	return nil
}

// DriveControl is the already-shaped drive input from the operator station
// (or the autonomy stack on /autonomous), plus the kill switch buttons.
type DriveControl struct {
	Left    float64 `json:"left"`
	Right   float64 `json:"right"`
	Kill    bool    `json:"kill"`
	Restart bool    `json:"restart"`
}

// ArmControl carries the primary manipulator joint throttles and hand input.
type ArmControl struct {
	Throttle []float64 `json:"throttle"`
	Finger   float64   `json:"finger"`
	Grip     float64   `json:"grip"`
}

func (c ArmControl) Validate() error {
	return checkArity("throttle", c.Throttle, ArmJointCount)
}

// ScienceArmControl carries the secondary manipulator joint throttles.
type ScienceArmControl struct {
	Throttle []float64 `json:"throttle"`
}

func (c ScienceArmControl) Validate() error {
	return checkArity("throttle", c.Throttle, ScienceArmJointCount)
}

// GimbalControl carries per-camera pitch and yaw rates.
type GimbalControl struct {
	Pitch []float64 `json:"pitch"`
	Yaw   []float64 `json:"yaw"`
}

func (c GimbalControl) Validate() error {
	if err := checkArity("pitch", c.Pitch, GimbalAxisCount); err != nil {
		return err
	}
	return checkArity("yaw", c.Yaw, GimbalAxisCount)
}

type DriveCommand struct {
	Left  float64 `json:"left"`
	Right float64 `json:"right"`
}

type ArmOpenLoopCommand struct {
	Throttle []float64 `json:"throttle"`
}

type ScienceArmOpenLoopCommand struct {
	Throttle []float64 `json:"throttle"`
}

type HandCommand struct {
	Finger float64 `json:"finger"`
	Grip   float64 `json:"grip"`
}

type GimbalCommand struct {
	Pitch []float64 `json:"pitch"`
	Yaw   []float64 `json:"yaw"`
}

// KillSwitch is the periodic kill state report.
type KillSwitch struct {
	Killed bool `json:"killed"`
}

// Temperature readings in millidegrees Celsius.
type Temperature struct {
	BCPUTemp   int `json:"bcpu_temp"`
	GPUTemp    int `json:"gpu_temp"`
	TBoardTemp int `json:"tboard_temp"`
}

type validator interface {
	Validate() error
}

// Decode unmarshals payload into T. Any failure, including a failed Validate
// on types that declare one, is reported as ErrMalformedMessage.
func Decode[T any](payload []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, errors.Wrapf(ErrMalformedMessage, "decode %T: %v", msg, err)
	}
	if v, ok := any(msg).(validator); ok {
		if err := v.Validate(); err != nil {
			return msg, errors.Wrapf(ErrMalformedMessage, "validate %T: %v", msg, err)
		}
	}
	return msg, nil
}

// Encode marshals an outbound message.
func Encode(msg interface{}) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %T", msg)
	}
	return payload, nil
}

func checkArity(field string, values []float64, want int) error {
	if len(values) != want {
		return errors.Errorf("%s has %d entries, want %d", field, len(values), want)
	}
	return nil
}
