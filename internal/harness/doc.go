// Package harness runs bridge scenarios described in YAML and checks what
// they report.
//
// # Scenario Format
//
//	name: counter_relay
//	description: "What this scenario validates"
//	mode: relay
//	options:
//	  maxAge: 30
//	stores:
//	  - name: counter
//	    reducer: counter
//	    initial: { count: 0 }
//	    config: { name: counter, actionsDenylist: [RESET] }
//	steps:
//	  - op: dispatch
//	    target: counter
//	    action: { type: INCREMENT }
//	  - op: command
//	    target: counter
//	    command: START
//	assertions:
//	  - type: trace_contains
//	    event: annotation
//	    match: { type: action, actionType: INCREMENT }
//	  - type: trace_order
//	    labels: [envelope:INIT_INSTANCE, envelope:ACTION]
//	  - type: final_state
//	    table: last_observations
//	    where: { instance_id: 1 }
//	    expect: { state: '{"count":1}' }
//
// # Trace
//
// The trace interleaves three event types in the order they happened:
// "step" (one per scenario step), "annotation" (one per annotation sink
// event) and "envelope" (one per envelope posted in relay mode). Each event
// carries a label such as dispatch:INCREMENT, annotation:init or
// envelope:ACTION that trace_order and trace_count match against.
//
// # Assertion Types
//
//   - trace_contains: an event of the given type whose body contains match
//   - trace_order: labels appear in the given order
//   - trace_count: a label appears exactly count times
//   - final_state: a row of the annotation log has the expected columns
//   - store_state: a store's final state contains expect
//
// # Deterministic Testing
//
// Every scenario runs against a fresh in-memory SQLite annotation log, a
// step clock starting at testutil.DefaultEpoch and a discard logger, so
// traces are identical across runs and can be compared to golden files.
package harness
