package heartbeat

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/roverlink/teleop/model"
)

var ErrInvalidConfig = errors.New("invalid heartbeat configuration")

// PeerRole selects which side of the fixed heartbeat channel pair an
// endpoint plays.
type PeerRole int

const (
	// RoleLocal is the onboard unit.
	RoleLocal PeerRole = iota
	// RoleRemote is the operator base station.
	RoleRemote
)

func (r PeerRole) String() string {
	switch r {
	case RoleLocal:
		return model.RoleNameOnboard
	case RoleRemote:
		return model.RoleNameBaseStation
	}
	return "unknown"
}

// ParseRole accepts the role names used on the command line.
func ParseRole(name string) (PeerRole, error) {
	switch strings.ToLower(name) {
	case model.RoleNameOnboard, "local", "rover":
		return RoleLocal, nil
	case model.RoleNameBaseStation, "remote", "bs":
		return RoleRemote, nil
	}
	return 0, errors.Errorf("unknown role %q", name)
}

type Config struct {
	// LocalChannel is where this endpoint publishes.
	LocalChannel string
	// RemoteChannel is where the peer publishes and this endpoint listens.
	RemoteChannel string
	// Timeout is the silence after which the peer is considered lost.
	Timeout time.Duration
	// PollInterval is the pause between two receive attempts.
	PollInterval time.Duration
}

// ConfigForRole returns the default configuration for role. Both roles use
// the same channel pair with publish and subscribe swapped.
func ConfigForRole(role PeerRole) Config {
	c := Config{
		LocalChannel:  model.HeartbeatOnboardChannel,
		RemoteChannel: model.HeartbeatBaseStationChannel,
		Timeout:       model.DefaultHeartbeatTimeout,
		PollInterval:  model.DefaultHeartbeatPollInterval,
	}
	if role == RoleRemote {
		c.LocalChannel, c.RemoteChannel = c.RemoteChannel, c.LocalChannel
	}
	return c
}

func (c *Config) setDefaults() {
	if c.Timeout == 0 {
		c.Timeout = model.DefaultHeartbeatTimeout
	}
	if c.PollInterval == 0 {
		c.PollInterval = model.DefaultHeartbeatPollInterval
	}
}

func (c Config) Validate() error {
	if c.LocalChannel == "" || c.RemoteChannel == "" {
		return errors.Wrap(ErrInvalidConfig, "channels must be set")
	}
	if c.LocalChannel == c.RemoteChannel {
		return errors.Wrapf(ErrInvalidConfig, "local and remote channel are both %s", c.LocalChannel)
	}
	if c.Timeout <= 0 || c.PollInterval <= 0 {
		return errors.Wrap(ErrInvalidConfig, "timeout and poll interval must be positive")
	}
	return nil
}
