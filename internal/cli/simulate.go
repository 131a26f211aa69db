package cli

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/harness"
	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/store"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions
	Database  string // annotation log to persist into
	Envelopes string // file receiving relayed envelopes as JSON lines
}

// SimulateResult is the outcome of one simulated scenario.
type SimulateResult struct {
	Scenario  string               `json:"scenario"`
	Pass      bool                 `json:"pass"`
	Errors    []string             `json:"errors,omitempty"`
	Instances map[string]int       `json:"instances"`
	State     map[string]ir.Value  `json:"state,omitempty"`
	Trace     []harness.TraceEvent `json:"trace"`
}

// String renders the text output.
func (r SimulateResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario: %s\n", r.Scenario)
	for _, ev := range r.Trace {
		fmt.Fprintf(&b, "  [%d] %s", ev.Seq, ev.Label)
		if ev.Error != "" {
			fmt.Fprintf(&b, " ! %s", ev.Error)
		}
		b.WriteByte('\n')
	}

	names := make([]string, 0, len(r.State))
	for name := range r.State {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		state, err := ir.MarshalValue(r.State[name])
		if err != nil {
			state = []byte(err.Error())
		}
		fmt.Fprintf(&b, "State %s (instance %d): %s\n", name, r.Instances[name], state)
	}

	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	if r.Pass {
		b.WriteString("✓ Scenario passed")
	} else {
		b.WriteString("✗ Scenario failed")
	}
	return b.String()
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <scenario-file>",
		Short: "Run one dispatch scenario through a bridge",
		Long: `Run a scenario file through a bridge and print its trace: every step,
every annotation and, in relay mode, every envelope posted to the monitor.

With --db the annotations and last observations are persisted to a
SQLite annotation log, and instance ids continue after the ones already
recorded there.

Examples:
  storebridge simulate ./scenarios/cart.yaml
  storebridge simulate ./scenarios/relay.yaml --envelopes ./relay.jsonl
  storebridge simulate ./scenarios/cart.yaml --db ./bridge.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "persist annotations to this SQLite database")
	cmd.Flags().StringVar(&opts.Envelopes, "envelopes", "", "write relayed envelopes to this file as JSON lines")

	return cmd
}

func runSimulate(opts *SimulateOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fail(f, ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario file not found: %s", path), nil)
	}
	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return fail(f, ExitFailure, ErrCodeScenario, err.Error(), nil)
	}

	runOpts := []harness.Option{harness.WithLogger(opts.Logger(cmd.ErrOrStderr()))}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return fail(f, ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err), nil)
		}
		defer st.Close()
		runOpts = append(runOpts, harness.WithStore(st))
		f.VerboseLog("Persisting annotations to %s", opts.Database)
	}
	if opts.Envelopes != "" {
		out, err := os.Create(opts.Envelopes)
		if err != nil {
			return fail(f, ExitCommandError, ErrCodeGeneric, fmt.Sprintf("failed to create envelope file: %v", err), nil)
		}
		defer out.Close()
		runOpts = append(runOpts, harness.WithEnvelopeWriter(out))
	}

	result, err := harness.RunContext(cmd.Context(), scenario, runOpts...)
	if err != nil {
		return fail(f, ExitFailure, ErrCodeScenario, err.Error(), nil)
	}

	sr := SimulateResult{
		Scenario:  scenario.Name,
		Pass:      result.Pass,
		Errors:    result.Errors,
		Instances: result.Instances,
		State:     result.State,
		Trace:     result.Trace,
	}
	if !sr.Pass && f.Format == "json" {
		if err := f.Error(ErrCodeScenario, "scenario failed", sr); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "scenario failed")
	}
	if err := f.Success(sr); err != nil {
		return err
	}
	if !sr.Pass {
		return NewExitError(ExitFailure, "scenario failed")
	}
	return nil
}
