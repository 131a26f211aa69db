package config

import (
	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ir"
)

// Extracted is the minimal configuration the dispatch wrapper closes over.
// Every optional callable is applied through the methods below, so callers
// never check for absence themselves.
type Extracted struct {
	InstanceID      int
	StateSanitizer  StateSanitizer
	ActionSanitizer ActionSanitizer
	Predicate       Predicate
	LocalFilter     *filter.LocalFilter
	IsFiltered      filter.Func
}

// SanitizeState applies the state sanitizer when one is configured.
func (x *Extracted) SanitizeState(state ir.Value, index int) ir.Value {
	if x == nil || x.StateSanitizer == nil {
		return state
	}
	return x.StateSanitizer(state, index)
}

// SanitizeAction applies the action sanitizer when one is configured.
func (x *Extracted) SanitizeAction(action ir.Object, id int) ir.Object {
	if x == nil || x.ActionSanitizer == nil {
		return action
	}
	return x.ActionSanitizer(action, id)
}

// Allows applies the predicate. No predicate allows everything.
func (x *Extracted) Allows(state ir.Value, action ir.Object) bool {
	if x == nil || x.Predicate == nil {
		return true
	}
	return x.Predicate(state, action)
}

// Filtered applies the filter function against the local filter.
func (x *Extracted) Filtered(action ir.Object) bool {
	if x == nil || x.IsFiltered == nil {
		return false
	}
	return x.IsFiltered(action, x.LocalFilter)
}

// Observable reports whether action should be relayed: not filtered and
// allowed by the predicate.
func (x *Extracted) Observable(state ir.Value, action ir.Object) bool {
	return !x.Filtered(action) && x.Allows(state, action)
}
