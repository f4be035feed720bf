package studio

import (
	"fmt"
	"time"

	"github.com/onnwee/studiocast/internal/broadcast"
)

// State is a studio session's lifecycle state.
type State string

const (
	StateIdle               State = "idle"
	StateInitializing       State = "initializing"
	StatePendingUserGesture State = "pending_user_gesture"
	StateReady              State = "ready"
	StateLive               State = "live"
	StateEnding             State = "ending"
	StateEnded              State = "ended"
	StateError              State = "error"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateError
}

// transitions lists the legal moves. Error is reachable from every
// non-terminal state and is handled separately.
var transitions = map[State][]State{
	StateIdle:               {StateInitializing},
	StateInitializing:       {StateReady, StatePendingUserGesture},
	StatePendingUserGesture: {StateReady},
	StateReady:              {StateLive},
	StateLive:               {StateEnding},
	StateEnding:             {StateEnded},
}

func canTransition(from, to State) bool {
	if to == StateError {
		return !from.Terminal()
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func invalidState(op string, current State) error {
	return fmt.Errorf("%w: %s in state %s", ErrInvalidState, op, current)
}

// BroadcastSession is the broadcast a studio session drives.
type BroadcastSession struct {
	ID                string           `json:"id"`
	Title             string           `json:"title"`
	Status            broadcast.Status `json:"status"`
	StartedAt         *time.Time       `json:"started_at,omitempty"`
	HostParticipantID string           `json:"host_participant_id,omitempty"`
}
