package protocol

import (
	"time"

	"github.com/roach88/storebridge/internal/ir"
)

// PerformActionType tags a user action wrapped in a history entry.
const PerformActionType = "PERFORM_ACTION"

// PerformAction is a history entry: the user action plus when it ran.
type PerformAction struct {
	Type      string    `json:"type"`
	Action    ir.Object `json:"action"`
	Timestamp int64     `json:"timestamp"`
	Stack     string    `json:"stack,omitempty"`
}

// NewPerformAction wraps action with a millisecond timestamp.
func NewPerformAction(action ir.Object, at time.Time) PerformAction {
	return PerformAction{
		Type:      PerformActionType,
		Action:    action,
		Timestamp: at.UnixMilli(),
	}
}

// ComputedState is one state in the history together with the reducer
// error that produced it, if any.
type ComputedState struct {
	State ir.Value `json:"state"`
	Error string   `json:"error,omitempty"`
}

// LiftedState is the store's history representation. It is produced by the
// store's instrumentation, not by the bridge; the bridge only serializes it.
type LiftedState struct {
	ActionsByID       map[int]PerformAction
	ComputedStates    []ComputedState
	StagedActionIDs   []int
	SkippedActionIDs  []int
	CurrentStateIndex int
	NextActionID      int
	CommittedState    ir.Value
	IsLocked          bool
	IsPaused          bool
}

// CurrentState returns the state at CurrentStateIndex, or nil when the
// index is out of range.
func (l *LiftedState) CurrentState() ir.Value {
	if l == nil || l.CurrentStateIndex < 0 || l.CurrentStateIndex >= len(l.ComputedStates) {
		return nil
	}
	return l.ComputedStates[l.CurrentStateIndex].State
}

// StagedActions returns the history entries in staged order, skipping ids
// with no entry.
func (l *LiftedState) StagedActions() []PerformAction {
	if l == nil {
		return nil
	}
	out := make([]PerformAction, 0, len(l.StagedActionIDs))
	for _, id := range l.StagedActionIDs {
		if a, ok := l.ActionsByID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

// SerializedLiftedState is the STATE payload: the bulky tables are strings.
type SerializedLiftedState struct {
	ActionsByID       string `json:"actionsById"`
	ComputedStates    string `json:"computedStates"`
	CommittedState    string `json:"committedState,omitempty"`
	StagedActionIDs   []int  `json:"stagedActionIds"`
	SkippedActionIDs  []int  `json:"skippedActionIds"`
	CurrentStateIndex int    `json:"currentStateIndex"`
	NextActionID      int    `json:"nextActionId"`
	IsLocked          bool   `json:"isLocked,omitempty"`
	IsPaused          bool   `json:"isPaused,omitempty"`
}

// PartialPayload is the PARTIAL_STATE payload.
type PartialPayload struct {
	ActionsByID       string `json:"actionsById"`
	ComputedStates    string `json:"computedStates"`
	CommittedState    string `json:"committedState,omitempty"`
	StagedActionIDs   []int  `json:"stagedActionIds"`
	CurrentStateIndex int    `json:"currentStateIndex"`
	NextActionID      int    `json:"nextActionId"`
}
