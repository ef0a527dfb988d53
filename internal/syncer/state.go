package syncer

import (
	"fmt"
	"time"

	"github.com/dukerupert/quickcart/internal/identity"
)

// State is the authentication and loading state of the controller.
type State int

const (
	Unauthenticated State = iota
	AuthPending
	Loading
	Ready
)

var stateNames = map[State]string{
	Unauthenticated: "unauthenticated",
	AuthPending:     "auth_pending",
	Loading:         "loading",
	Ready:           "ready",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st, name := range stateNames {
		if name == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Mode selects the persistence adapter in use.
type Mode int

const (
	ModeNone Mode = iota
	ModeRemote
	ModeLocal
)

func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "remote"
	case ModeLocal:
		return "local"
	default:
		return "none"
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "none":
		*m = ModeNone
	case "remote":
		*m = ModeRemote
	case "local":
		*m = ModeLocal
	default:
		return fmt.Errorf("unknown mode %q", text)
	}
	return nil
}

// Status is a point-in-time view of the controller for display.
type Status struct {
	State       State              `json:"state"`
	Mode        Mode               `json:"mode"`
	Identity    *identity.Identity `json:"identity,omitempty"`
	Loaded      bool               `json:"loaded"`
	PendingSave bool               `json:"pending_save"`
	LastSaved   *time.Time         `json:"last_saved,omitempty"`
	LastError   string             `json:"last_error,omitempty"`
	// LocalOnly is set while lists live only on this device.
	LocalOnly bool `json:"local_only"`
}
