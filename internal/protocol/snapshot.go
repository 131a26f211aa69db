package protocol

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/roach88/storebridge/internal/ir"
)

// Snapshot is a lifted state whose bulky tables have been serialized once.
// STATE, PARTIAL_STATE and EXPORT envelopes built from the same Snapshot
// share its strings.
type Snapshot struct {
	lifted         LiftedState
	actionsByID    string
	computedStates string
	committedState string

	exportOnce sync.Once
	exported   string
	exportErr  error
	serializer *Serializer
}

// PrepareSnapshot serializes the action table, the computed states and the
// committed state of lifted.
func PrepareSnapshot(lifted LiftedState, s *Serializer) (*Snapshot, error) {
	actions := make(ir.Object, len(lifted.ActionsByID))
	for id, a := range lifted.ActionsByID {
		v, err := toValue(a)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", id, err)
		}
		actions[strconv.Itoa(id)] = v
	}
	actionsByID, err := s.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("prepare snapshot: actions: %w", err)
	}

	computed := lifted.ComputedStates
	if computed == nil {
		computed = []ComputedState{}
	}
	computedStates, err := s.Marshal(computed)
	if err != nil {
		return nil, fmt.Errorf("prepare snapshot: computed states: %w", err)
	}

	var committed string
	if lifted.CommittedState != nil {
		committed, err = s.Marshal(lifted.CommittedState)
		if err != nil {
			return nil, fmt.Errorf("prepare snapshot: committed state: %w", err)
		}
	}

	return &Snapshot{
		lifted:         lifted,
		actionsByID:    actionsByID,
		computedStates: computedStates,
		committedState: committed,
		serializer:     s,
	}, nil
}

// NextActionID returns the lifted state's next action id.
func (s *Snapshot) NextActionID() int {
	return s.lifted.NextActionID
}

// Full returns the STATE payload.
func (s *Snapshot) Full() SerializedLiftedState {
	return SerializedLiftedState{
		ActionsByID:       s.actionsByID,
		ComputedStates:    s.computedStates,
		CommittedState:    s.committedState,
		StagedActionIDs:   nonNilInts(s.lifted.StagedActionIDs),
		SkippedActionIDs:  nonNilInts(s.lifted.SkippedActionIDs),
		CurrentStateIndex: s.lifted.CurrentStateIndex,
		NextActionID:      s.lifted.NextActionID,
		IsLocked:          s.lifted.IsLocked,
		IsPaused:          s.lifted.IsPaused,
	}
}

// Partial returns the PARTIAL_STATE payload.
func (s *Snapshot) Partial() PartialPayload {
	return PartialPayload{
		ActionsByID:       s.actionsByID,
		ComputedStates:    s.computedStates,
		CommittedState:    s.committedState,
		StagedActionIDs:   nonNilInts(s.lifted.StagedActionIDs),
		CurrentStateIndex: s.lifted.CurrentStateIndex,
		NextActionID:      s.lifted.NextActionID,
	}
}

// Exported returns the staged actions serialized in staged order. It is
// computed on first use and cached.
func (s *Snapshot) Exported() (string, error) {
	s.exportOnce.Do(func() {
		s.exported, s.exportErr = s.serializer.Marshal(s.lifted.StagedActions())
	})
	return s.exported, s.exportErr
}

func nonNilInts(ids []int) []int {
	if ids == nil {
		return []int{}
	}
	return ids
}
