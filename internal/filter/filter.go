package filter

import (
	"log/slog"

	"github.com/roach88/storebridge/internal/ir"
)

// State selects which ambient list applies when no LocalFilter is given.
type State string

const (
	// DoNotFilter disables the ambient policy.
	DoNotFilter State = "DO_NOT_FILTER"

	// DenylistSpecific applies only the ambient denylist.
	DenylistSpecific State = "DENYLIST_SPECIFIC"

	// AllowlistSpecific applies only the ambient allowlist.
	AllowlistSpecific State = "ALLOWLIST_SPECIFIC"
)

// ValidStates lists the accepted State values.
var ValidStates = []State{DoNotFilter, DenylistSpecific, AllowlistSpecific}

// LocalFilter is the per-instance pattern pair, fragments already joined.
// A nil *LocalFilter means no per-instance filtering was configured.
type LocalFilter struct {
	Allowlist string `json:"allowlist,omitempty" yaml:"allowlist,omitempty"`
	Denylist  string `json:"denylist,omitempty" yaml:"denylist,omitempty"`
}

// Global is the ambient filter policy shared by every instance that has no
// LocalFilter.
type Global struct {
	State     State
	Allowlist string
	Denylist  string
}

// Active reports whether the ambient policy filters anything at all.
func (g Global) Active() bool {
	return g.State != "" && g.State != DoNotFilter
}

// lists returns the effective ambient pattern pair for the configured State.
func (g Global) lists() (allowlist, denylist string) {
	switch g.State {
	case DenylistSpecific:
		return "", g.Denylist
	case AllowlistSpecific:
		return g.Allowlist, ""
	default:
		return g.Allowlist, g.Denylist
	}
}

// Func is the signature of Engine.IsFiltered, carried by the hot-path
// config so the dispatch wrapper needs no reference to the Engine itself.
type Func func(action ir.Object, local *LocalFilter) bool

// Reason explains a filter decision.
type Reason string

const (
	ReasonNoFilter      Reason = "no-filter"
	ReasonNotStringLike Reason = "type-not-string"
	ReasonAllowlistMiss Reason = "allowlist-miss"
	ReasonDenylistMatch Reason = "denylist-match"
	ReasonObservable    Reason = "observable"
)

// Decision is the outcome of Explain.
type Decision struct {
	Filtered bool   `json:"filtered"`
	Reason   Reason `json:"reason"`
}

// Engine evaluates filters. The zero value and a nil *Engine are usable and
// have no ambient policy.
//
// Thread-safety: all methods are safe for concurrent use.
type Engine struct {
	global   Global
	patterns *patternCache
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used to report patterns that fail to compile.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.patterns.logger = logger
		}
	}
}

// NewEngine creates an Engine with the given ambient policy.
func NewEngine(global Global, opts ...Option) *Engine {
	e := &Engine{
		global:   global,
		patterns: newPatternCache(slog.Default()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Global returns the ambient policy.
func (e *Engine) Global() Global {
	if e == nil {
		return Global{}
	}
	return e.global
}

// NoFiltersApplied reports whether neither local nor an ambient policy is
// configured. Callers use it to skip filtering work on the common path.
func (e *Engine) NoFiltersApplied(local *LocalFilter) bool {
	return local == nil && !e.Global().Active()
}

// IsFiltered reports whether action should be suppressed.
func (e *Engine) IsFiltered(action ir.Object, local *LocalFilter) bool {
	return e.Explain(action, local).Filtered
}

// IsTypeFiltered is IsFiltered for an action reported as a bare type string.
func (e *Engine) IsTypeFiltered(actionType string, local *LocalFilter) bool {
	return e.IsFiltered(ir.NewAction(actionType), local)
}

// Explain returns the decision for action together with its reason.
func (e *Engine) Explain(action ir.Object, local *LocalFilter) Decision {
	if e.NoFiltersApplied(local) {
		return Decision{Reason: ReasonNoFilter}
	}
	actionType, ok := ir.ActionType(action)
	if !ok {
		return Decision{Reason: ReasonNotStringLike}
	}

	var allowlist, denylist string
	if local != nil {
		allowlist, denylist = local.Allowlist, local.Denylist
	} else {
		allowlist, denylist = e.Global().lists()
	}

	if allowlist != "" && !e.match(allowlist, actionType, true) {
		return Decision{Filtered: true, Reason: ReasonAllowlistMiss}
	}
	if denylist != "" && e.match(denylist, actionType, false) {
		return Decision{Filtered: true, Reason: ReasonDenylistMatch}
	}
	return Decision{Reason: ReasonObservable}
}

// match reports whether pattern matches s. onInvalid is returned when the
// pattern cannot be evaluated, so a broken pattern never suppresses: an
// unusable allowlist lets everything through, an unusable denylist matches
// nothing.
func (e *Engine) match(pattern, s string, onInvalid bool) bool {
	var cache *patternCache
	if e != nil {
		cache = e.patterns
	}
	if cache == nil {
		cache = defaultPatterns
	}
	matched, ok := cache.match(pattern, s)
	if !ok {
		return onInvalid
	}
	return matched
}
