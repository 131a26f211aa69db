package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/storebridge/internal/bridge"
	"github.com/roach88/storebridge/internal/config"
)

// Scenario describes one bridge run: the stores to create, the steps to
// perform on them and the assertions over what was reported.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is annotate (default) or relay.
	Mode bridge.Mode `yaml:"mode,omitempty"`

	// Title is the page title naming the first instance.
	Title string `yaml:"title,omitempty"`

	// PageURL is checked against options.urls when set.
	PageURL string `yaml:"page_url,omitempty"`

	// Options are the global devtools options.
	Options config.Options `yaml:"options,omitempty"`

	// Stores are created in order before the first step.
	Stores []StoreDef `yaml:"stores"`

	// Steps are performed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the trace, the annotation log and final states.
	Assertions []Assertion `yaml:"assertions"`
}

// StoreDef declares a store or a generic connection.
type StoreDef struct {
	// Name is how steps and store_state assertions refer to the store.
	Name string `yaml:"name"`

	// Kind is store (default) or connection.
	Kind string `yaml:"kind,omitempty"`

	// Reducer is counter or merge. Stores only.
	Reducer string `yaml:"reducer,omitempty"`

	// Reject lists action types the merge reducer refuses.
	Reject []string `yaml:"reject,omitempty"`

	// Initial is the initial state.
	Initial any `yaml:"initial,omitempty"`

	// Via is how the store is instrumented: enhancer (default), instrument
	// or compose.
	Via string `yaml:"via,omitempty"`

	// Config is the store's raw configuration.
	Config *config.Config `yaml:"config,omitempty"`
}

// Step is one operation on the bridge.
type Step struct {
	// Op is dispatch, send, report, command, init or unsubscribe.
	Op string `yaml:"op"`

	// Target names the store or connection. Unused by report.
	Target string `yaml:"target,omitempty"`

	// Action is the dispatched or reported action (dispatch, send, report)
	// or the action text of an ACTION command.
	Action any `yaml:"action,omitempty"`

	// State is the reported state (send, report, init).
	State any `yaml:"state,omitempty"`

	// Config is the configuration of an ad hoc report.
	Config *config.Config `yaml:"config,omitempty"`

	// Command is the monitor command type (command).
	Command string `yaml:"command,omitempty"`

	// Failed marks a STOP command sent after a monitor failure.
	Failed bool `yaml:"failed,omitempty"`

	// ExpectError makes a dispatch that fails count as passing and a
	// dispatch that succeeds count as failing.
	ExpectError bool `yaml:"expect_error,omitempty"`
}

// Assertion validates trace, annotation log or store state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event is the trace event type (trace_contains).
	Event string `yaml:"event,omitempty"`

	// Match is a subset of the event body (trace_contains).
	Match map[string]any `yaml:"match,omitempty"`

	// Labels is the expected label order (trace_order).
	Labels []string `yaml:"labels,omitempty"`

	// Label is the counted label (trace_count).
	Label string `yaml:"label,omitempty"`

	// Count is the expected number of occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Table is the annotation log table (final_state).
	Table string `yaml:"table,omitempty"`

	// Where selects exactly one row (final_state).
	Where map[string]any `yaml:"where,omitempty"`

	// Store names the store (store_state).
	Store string `yaml:"store,omitempty"`

	// Expect contains expected column values (final_state) or a subset of
	// the final state (store_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertStoreState    = "store_state"
)

// Step ops.
const (
	OpDispatch    = "dispatch"
	OpSend        = "send"
	OpReport      = "report"
	OpCommand     = "command"
	OpInit        = "init"
	OpUnsubscribe = "unsubscribe"
)

// Store kinds and instrumentation paths.
const (
	KindStore      = "store"
	KindConnection = "connection"

	ViaEnhancer   = "enhancer"
	ViaInstrument = "instrument"
	ViaCompose    = "compose"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	switch s.Mode {
	case "", bridge.ModeAnnotate, bridge.ModeRelay:
	default:
		return fmt.Errorf("unknown mode %q", s.Mode)
	}
	if len(s.Stores) == 0 {
		return fmt.Errorf("stores list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	kinds := make(map[string]string, len(s.Stores))
	for i := range s.Stores {
		def := &s.Stores[i]
		if err := validateStore(i, def); err != nil {
			return err
		}
		if _, dup := kinds[def.Name]; dup {
			return fmt.Errorf("stores[%d]: duplicate name %q", i, def.Name)
		}
		kinds[def.Name] = def.kind()
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step, kinds); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, kinds); err != nil {
			return err
		}
	}
	return nil
}

func (d *StoreDef) kind() string {
	if d.Kind == "" {
		return KindStore
	}
	return d.Kind
}

func (d *StoreDef) via() string {
	if d.Via == "" {
		return ViaEnhancer
	}
	return d.Via
}

func validateStore(index int, d *StoreDef) error {
	if d.Name == "" {
		return fmt.Errorf("stores[%d]: name is required", index)
	}
	switch d.kind() {
	case KindConnection:
		if d.Reducer != "" || d.Via != "" {
			return fmt.Errorf("stores[%d]: connections take no reducer or via", index)
		}
		return nil
	case KindStore:
	default:
		return fmt.Errorf("stores[%d]: unknown kind %q", index, d.Kind)
	}
	if !slices.Contains([]string{"counter", "merge"}, d.Reducer) {
		return fmt.Errorf("stores[%d]: reducer must be counter or merge, got %q", index, d.Reducer)
	}
	if !slices.Contains([]string{ViaEnhancer, ViaInstrument, ViaCompose}, d.via()) {
		return fmt.Errorf("stores[%d]: unknown via %q", index, d.Via)
	}
	return nil
}

func validateStep(index int, step Step, kinds map[string]string) error {
	needs := func(kind string) error {
		got, ok := kinds[step.Target]
		if !ok {
			return fmt.Errorf("steps[%d]: unknown target %q", index, step.Target)
		}
		if kind != "" && got != kind {
			return fmt.Errorf("steps[%d]: %s needs a %s target, %q is a %s", index, step.Op, kind, step.Target, got)
		}
		return nil
	}

	switch step.Op {
	case OpDispatch:
		if step.Action == nil {
			return fmt.Errorf("steps[%d]: action is required for dispatch", index)
		}
		return needs(KindStore)
	case OpSend, OpInit:
		return needs(KindConnection)
	case OpCommand:
		if step.Command == "" {
			return fmt.Errorf("steps[%d]: command is required", index)
		}
		return needs("")
	case OpUnsubscribe:
		return needs("")
	case OpReport:
		return nil
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, step.Op)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, kinds map[string]string) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertTraceContains:
		if !slices.Contains([]string{EventStep, EventAnnotation, EventEnvelope}, a.Event) {
			return fmt.Errorf("assertions[%d]: event must be step, annotation or envelope for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Labels) == 0 {
			return fmt.Errorf("assertions[%d]: labels list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Label == "" {
			return fmt.Errorf("assertions[%d]: label is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStoreState:
		if kinds[a.Store] != KindStore {
			return fmt.Errorf("assertions[%d]: store_state needs a store, got %q", index, a.Store)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for store_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
