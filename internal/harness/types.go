package harness

import "github.com/roach88/storebridge/internal/ir"

// Trace event types.
const (
	EventStep       = "step"
	EventAnnotation = "annotation"
	EventEnvelope   = "envelope"
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Type       string   `json:"type"`
	Label      string   `json:"label"`
	Seq        int64    `json:"seq"`
	InstanceID int      `json:"instance_id,omitempty"`
	Body       ir.Value `json:"body,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace contains steps, annotations and envelopes in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State maps store names to their final state.
	State map[string]ir.Value `json:"state,omitempty"`

	// Instances maps store and connection names to instance ids.
	Instances map[string]int `json:"instances,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:      true,
		Trace:     []TraceEvent{},
		Errors:    []string{},
		State:     make(map[string]ir.Value),
		Instances: make(map[string]int),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// add appends an event with the next sequence number.
func (r *Result) add(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Labels returns the label of every event in order.
func (r *Result) Labels() []string {
	out := make([]string, len(r.Trace))
	for i, ev := range r.Trace {
		out[i] = ev.Label
	}
	return out
}
