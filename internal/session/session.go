// Package session implements the trading session lifecycle: the state
// machine, the session store, the manager that applies transitions and
// per-bar steps, and the monitor that drives active sessions forward.
package session

import (
	"fmt"

	"github.com/vectorquant/strategy-engine/pkg/types"
)

// StateTransitionError reports an attempted transition the lifecycle
// does not permit.
type StateTransitionError struct {
	SessionID string
	From      types.SessionStatus
	To        types.SessionStatus
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("session %s: invalid transition %s -> %s", e.SessionID, e.From, e.To)
}

// SessionError represents a session management error.
type SessionError struct {
	Message string
}

func (e *SessionError) Error() string { return e.Message }

var (
	ErrSessionNotFound     = &SessionError{Message: "session not found"}
	ErrActiveSessionExists = &SessionError{Message: "owner already has an active session"}
	ErrNotOwner            = &SessionError{Message: "session belongs to a different owner"}
	ErrSessionNotSteppable = &SessionError{Message: "session is not active"}
)

// allowed maps each status to the statuses it may move to. Terminal
// statuses have no outgoing edges.
var allowed = map[types.SessionStatus][]types.SessionStatus{
	types.SessionActive: {types.SessionPaused, types.SessionStopped, types.SessionCompleted},
	types.SessionPaused: {types.SessionActive, types.SessionStopped, types.SessionCompleted},
}

// transition moves the session to the target status or returns a
// *StateTransitionError. Callers must hold the session's lock.
func transition(s *types.TradingSession, to types.SessionStatus) error {
	for _, t := range allowed[s.Status] {
		if t == to {
			s.Status = to
			return nil
		}
	}
	return &StateTransitionError{SessionID: s.ID, From: s.Status, To: to}
}
