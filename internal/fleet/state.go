package fleet

import "fmt"

// State is the lifecycle position of a device within one run.
type State uint8

const (
	StatePending State = iota
	StateOnline
	StateProvisioned
	StateActive
	StateCollected
	StateReleased
	// StateOffline is terminal: the device failed Discovery.
	StateOffline
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOnline:
		return "online"
	case StateProvisioned:
		return "provisioned"
	case StateActive:
		return "active"
	case StateCollected:
		return "collected"
	case StateReleased:
		return "released"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in reports.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for c := StatePending; c <= StateOffline; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown device state %q", text)
}

// Terminal reports whether no further transitions are allowed.
func (s State) Terminal() bool {
	return s == StateOffline
}

// canAdvance reports whether from -> to moves the device forward.
func canAdvance(from, to State) bool {
	if from.Terminal() {
		return false
	}
	if to == StateOffline {
		return from == StatePending
	}
	return to > from
}
