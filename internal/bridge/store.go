package bridge

import (
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/protocol"
)

// Reducer computes the next state from the current state and an action.
type Reducer func(state ir.Value, action ir.Object) (ir.Value, error)

// Store is the part of an application store the bridge needs: dispatch and
// read the current state.
type Store interface {
	Dispatch(action ir.Object) (any, error)
	State() ir.Value
}

// LiftedStore is a Store that also keeps its own action history. The
// bridge serializes that history for STATE and EXPORT envelopes.
type LiftedStore interface {
	Store
	LiftedState() protocol.LiftedState
}

// StoreCreator builds a store from a reducer and an initial state.
type StoreCreator func(reducer Reducer, initial ir.Value) (Store, error)

// Enhancer wraps a StoreCreator.
type Enhancer func(next StoreCreator) StoreCreator

// instrumented is the wrapped store handed back to the application. Only
// Dispatch is intercepted.
type instrumented struct {
	Store
	bridge *Bridge
	inst   *instance
}

// Dispatch calls the original dispatch and records the observation when it
// succeeds. The original result is always returned unchanged.
func (s *instrumented) Dispatch(action ir.Object) (any, error) {
	result, err := s.Store.Dispatch(action)
	if err != nil {
		return result, err
	}
	s.bridge.observe(s.inst, action, s.Store.State())
	return result, nil
}

// InstanceID returns the id the store was registered under.
func (s *instrumented) InstanceID() int {
	return s.inst.id
}

// Unwrap returns the original store.
func (s *instrumented) Unwrap() Store {
	return s.Store
}

// InstanceOf returns the instance id of a store returned by the bridge.
// ok is false for stores the bridge did not wrap, including stores returned
// unchanged on a disallowed page.
func InstanceOf(s Store) (id int, ok bool) {
	w, ok := s.(*instrumented)
	if !ok {
		return 0, false
	}
	return w.inst.id, true
}

// Unwrap returns the original store behind a wrapped one, or s itself.
func Unwrap(s Store) Store {
	if w, ok := s.(*instrumented); ok {
		return w.Store
	}
	return s
}
