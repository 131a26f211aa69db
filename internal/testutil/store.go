package testutil

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/protocol"
)

// ErrRejected is returned by reducers for actions they refuse.
var ErrRejected = errors.New("action rejected by reducer")

// Reducer computes the next state.
type Reducer func(state ir.Value, action ir.Object) (ir.Value, error)

// ReducerStore is a minimal store: a reducer, the current state, and a
// lifted history of every dispatch.
//
// Dispatch returns the dispatched action on success, the way a plain store
// does, and (nil, err) when the reducer fails. A failed dispatch leaves the
// state and history unchanged.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ReducerStore struct {
	mu      sync.Mutex
	reducer Reducer
	state   ir.Value
	now     func() time.Time
	lifted  protocol.LiftedState
}

// InitActionType is recorded as the first history entry.
const InitActionType = "@@INIT"

// NewReducerStore creates a store. A nil now uses time.Now.
func NewReducerStore(reducer Reducer, initial ir.Value, now func() time.Time) *ReducerStore {
	if now == nil {
		now = time.Now
	}
	if initial == nil {
		initial = ir.Null{}
	}
	s := &ReducerStore{reducer: reducer, state: initial, now: now}
	s.lifted = protocol.LiftedState{
		ActionsByID: map[int]protocol.PerformAction{
			0: protocol.NewPerformAction(ir.NewAction(InitActionType), now()),
		},
		ComputedStates:  []protocol.ComputedState{{State: initial}},
		StagedActionIDs: []int{0},
		NextActionID:    1,
		CommittedState:  initial,
	}
	return s
}

// Dispatch runs the reducer.
func (s *ReducerStore) Dispatch(action ir.Object) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.reducer(s.state, action)
	if err != nil {
		return nil, err
	}
	s.state = next

	id := s.lifted.NextActionID
	s.lifted.ActionsByID[id] = protocol.NewPerformAction(action, s.now())
	s.lifted.ComputedStates = append(s.lifted.ComputedStates, protocol.ComputedState{State: next})
	s.lifted.StagedActionIDs = append(s.lifted.StagedActionIDs, id)
	s.lifted.CurrentStateIndex = len(s.lifted.ComputedStates) - 1
	s.lifted.NextActionID = id + 1
	return action, nil
}

// State returns the current state.
func (s *ReducerStore) State() ir.Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LiftedState returns a copy of the history.
func (s *ReducerStore) LiftedState() protocol.LiftedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.lifted
	out.ActionsByID = maps.Clone(s.lifted.ActionsByID)
	out.ComputedStates = slices.Clone(s.lifted.ComputedStates)
	out.StagedActionIDs = slices.Clone(s.lifted.StagedActionIDs)
	out.SkippedActionIDs = slices.Clone(s.lifted.SkippedActionIDs)
	return out
}

// CounterReducer handles INCREMENT and DECREMENT on {"count": n}, with an
// optional integer "by". Other actions leave the state unchanged.
func CounterReducer(state ir.Value, action ir.Object) (ir.Value, error) {
	obj, _ := state.(ir.Object)
	count, _ := obj["count"].(ir.Int)
	by := ir.Int(1)
	if v, ok := action["by"].(ir.Int); ok {
		by = v
	}

	actionType, _ := ir.ActionType(action)
	switch actionType {
	case "INCREMENT":
		count += by
	case "DECREMENT":
		count -= by
	default:
		return state, nil
	}
	next := obj.Clone()
	if next == nil {
		next = ir.Object{}
	}
	next["count"] = count
	return next, nil
}

// MergeReducer merges an action's object "payload" into an object state.
// Actions whose type is listed in reject fail with ErrRejected.
func MergeReducer(reject ...string) Reducer {
	return func(state ir.Value, action ir.Object) (ir.Value, error) {
		actionType, _ := ir.ActionType(action)
		if slices.Contains(reject, actionType) {
			return nil, fmt.Errorf("%s: %w", actionType, ErrRejected)
		}
		payload, ok := action["payload"].(ir.Object)
		if !ok {
			return state, nil
		}
		next, _ := state.(ir.Object)
		next = next.Clone()
		if next == nil {
			next = ir.Object{}
		}
		for k, v := range payload {
			next[k] = v
		}
		return next, nil
	}
}
