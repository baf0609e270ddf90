package collabclient

import "fmt"

// State is where a session is in its connection lifecycle.
//
//	Disconnected ──► Connecting ──► Reconciling ──► Synced
//	      ▲              │               │  ▲          │
//	      └──────────────┴───────────────┘  └──────────┘ row change
//
// Every state can move to Closed, and Closed is final.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReconciling
	StateSynced
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReconciling:
		return "reconciling"
	case StateSynced:
		return "synced"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Connected reports whether a live channel exists in this state.
func (s State) Connected() bool {
	switch s {
	case StateReconciling, StateSynced:
		return true
	case StateDisconnected, StateConnecting, StateClosed:
		return false
	default:
		return false
	}
}

// InvalidTransitionError is returned for a move the lifecycle does not allow.
type InvalidTransitionError struct {
	From, To State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("collabclient: invalid state transition from %s to %s", e.From, e.To)
}

func (s State) validateTransitionTo(next State) error {
	if next == StateClosed && s != StateClosed {
		return nil
	}
	ok := false
	switch s {
	case StateDisconnected:
		ok = next == StateConnecting
	case StateConnecting:
		ok = next == StateReconciling || next == StateDisconnected
	case StateReconciling:
		ok = next == StateSynced || next == StateDisconnected
	case StateSynced:
		ok = next == StateReconciling || next == StateDisconnected
	case StateClosed:
		ok = false
	}
	if !ok {
		return &InvalidTransitionError{From: s, To: next}
	}
	return nil
}
