package config

import (
	"maps"
	"strings"

	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/protocol"
)

// DefaultMaxAge bounds the history a monitor keeps when neither the store
// config nor the options set one.
const DefaultMaxAge = 50

// StateSanitizer rewrites a state before it leaves the process. index is the
// position of the state in the history.
type StateSanitizer func(state ir.Value, index int) ir.Value

// ActionSanitizer rewrites an action before it leaves the process.
type ActionSanitizer func(action ir.Object, id int) ir.Object

// Predicate gates relaying on the resulting state and the action.
type Predicate func(state ir.Value, action ir.Object) bool

// Config is the per-store configuration.
//
// The callable fields can only be set from Go. Files carry their sources in
// PredicateExpr, StateSanitizerScript and ActionSanitizerScript instead; a
// callable set in Go wins over a source.
type Config struct {
	InstanceID int    `yaml:"instanceId,omitempty" json:"instanceId,omitempty"`
	Name       string `yaml:"name,omitempty" json:"name,omitempty"`

	ActionsDenylist  Pattern `yaml:"actionsDenylist,omitempty" json:"actionsDenylist,omitempty"`
	ActionsAllowlist Pattern `yaml:"actionsAllowlist,omitempty" json:"actionsAllowlist,omitempty"`

	// Deprecated: use ActionsDenylist.
	ActionsBlacklist Pattern `yaml:"actionsBlacklist,omitempty" json:"actionsBlacklist,omitempty"`
	// Deprecated: use ActionsAllowlist.
	ActionsWhitelist Pattern `yaml:"actionsWhitelist,omitempty" json:"actionsWhitelist,omitempty"`

	StateSanitizer  StateSanitizer  `yaml:"-" json:"-"`
	ActionSanitizer ActionSanitizer `yaml:"-" json:"-"`
	Predicate       Predicate       `yaml:"-" json:"-"`

	PredicateExpr         string `yaml:"predicate,omitempty" json:"predicate,omitempty"`
	StateSanitizerScript  string `yaml:"stateSanitizer,omitempty" json:"stateSanitizer,omitempty"`
	ActionSanitizerScript string `yaml:"actionSanitizer,omitempty" json:"actionSanitizer,omitempty"`

	MaxAge              int             `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
	Latency             int             `yaml:"latency,omitempty" json:"latency,omitempty"`
	Trace               bool            `yaml:"trace,omitempty" json:"trace,omitempty"`
	TraceLimit          int             `yaml:"traceLimit,omitempty" json:"traceLimit,omitempty"`
	ShouldCatchErrors   bool            `yaml:"shouldCatchErrors,omitempty" json:"shouldCatchErrors,omitempty"`
	ShouldHotReload     *bool           `yaml:"shouldHotReload,omitempty" json:"shouldHotReload,omitempty"`
	ShouldRecordChanges *bool           `yaml:"shouldRecordChanges,omitempty" json:"shouldRecordChanges,omitempty"`
	ShouldStartLocked   bool            `yaml:"shouldStartLocked,omitempty" json:"shouldStartLocked,omitempty"`
	PauseActionType     string          `yaml:"pauseActionType,omitempty" json:"pauseActionType,omitempty"`
	AutoPause           bool            `yaml:"autoPause,omitempty" json:"autoPause,omitempty"`
	Features            map[string]bool `yaml:"features,omitempty" json:"features,omitempty"`
	Type                string          `yaml:"type,omitempty" json:"type,omitempty"`

	// Serialize turns on the replacer/reviver pair for payload strings.
	Serialize bool                  `yaml:"serialize,omitempty" json:"serialize,omitempty"`
	Replacer  protocol.ReplacerFunc `yaml:"-" json:"-"`
	Reviver   protocol.ReplacerFunc `yaml:"-" json:"-"`
}

// Clone returns a copy of c that can be modified without touching c.
// Patterns are shared; they are never mutated in place.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	out := *c
	out.Features = maps.Clone(c.Features)
	if c.ShouldHotReload != nil {
		v := *c.ShouldHotReload
		out.ShouldHotReload = &v
	}
	if c.ShouldRecordChanges != nil {
		v := *c.ShouldRecordChanges
		out.ShouldRecordChanges = &v
	}
	return &out
}

// Denylist resolves the effective denylist: the canonical field wins over
// the deprecated alias.
func (c *Config) Denylist() Pattern {
	return c.ActionsDenylist.Or(c.ActionsBlacklist)
}

// Allowlist resolves the effective allowlist.
func (c *Config) Allowlist() Pattern {
	return c.ActionsAllowlist.Or(c.ActionsWhitelist)
}

// UsesDeprecatedAliases reports whether either deprecated list field is set.
func (c *Config) UsesDeprecatedAliases() bool {
	return c.ActionsBlacklist.Present() || c.ActionsWhitelist.Present()
}

// LocalFilter derives the per-instance filter. It is nil iff both resolved
// sources are empty.
func (c *Config) LocalFilter() *filter.LocalFilter {
	allow := c.Allowlist().Source()
	deny := c.Denylist().Source()
	if allow == "" && deny == "" {
		return nil
	}
	return &filter.LocalFilter{Allowlist: allow, Denylist: deny}
}

// Serializer returns the payload serializer for this store. Without
// Serialize it encodes plain JSON.
func (c *Config) Serializer() *protocol.Serializer {
	if c == nil || !c.Serialize {
		return nil
	}
	return &protocol.Serializer{Replacer: c.Replacer, Reviver: c.Reviver}
}

// LibConfig describes the store to a monitor.
func (c *Config) LibConfig() *protocol.LibConfig {
	return &protocol.LibConfig{
		Name:      c.Name,
		Features:  maps.Clone(c.Features),
		Serialize: c.Serialize,
		Type:      c.Type,
	}
}

// Options are the global devtools options shared by every store on a page.
type Options struct {
	Filter    filter.State `yaml:"filter,omitempty" json:"filter,omitempty"`
	Allowlist string       `yaml:"allowlist,omitempty" json:"allowlist,omitempty"`
	Denylist  string       `yaml:"denylist,omitempty" json:"denylist,omitempty"`

	// URLs holds newline separated page URL patterns. When empty every page
	// is allowed.
	URLs   string `yaml:"urls,omitempty" json:"urls,omitempty"`
	Inject bool   `yaml:"inject,omitempty" json:"inject,omitempty"`
	MaxAge int    `yaml:"maxAge,omitempty" json:"maxAge,omitempty"`
}

// FilterGlobal returns the ambient filter policy.
func (o Options) FilterGlobal() filter.Global {
	return filter.Global{
		State:     o.Filter,
		Allowlist: o.Allowlist,
		Denylist:  o.Denylist,
	}
}

// URLPatterns returns the non-empty lines of URLs.
func (o Options) URLPatterns() []string {
	var out []string
	for _, line := range strings.Split(o.URLs, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ResolveMaxAge picks the store setting, then the options, then the default.
func ResolveMaxAge(cfg *Config, opts Options) int {
	if cfg != nil && cfg.MaxAge > 0 {
		return cfg.MaxAge
	}
	if opts.MaxAge > 0 {
		return opts.MaxAge
	}
	return DefaultMaxAge
}
