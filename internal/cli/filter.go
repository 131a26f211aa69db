package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/bridge"
	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ir"
)

// FilterOptions holds flags for the filter command.
type FilterOptions struct {
	*RootOptions
	Config string // configuration file
	State  string // JSON state passed to the predicate
}

// FilterDecision explains what the bridge does with one action.
type FilterDecision struct {
	ActionType string        `json:"action_type"`
	Filtered   bool          `json:"filtered"`
	Reason     filter.Reason `json:"reason"`
	Predicate  bool          `json:"predicate"`
	Relayed    bool          `json:"relayed"`
}

// FilterResult holds every decision of one filter run.
type FilterResult struct {
	InstanceID int              `json:"instance_id"`
	Decisions  []FilterDecision `json:"decisions"`
}

// String renders the text output.
func (r FilterResult) String() string {
	var b strings.Builder
	for i, d := range r.Decisions {
		if i > 0 {
			b.WriteByte('\n')
		}
		mark := "✓"
		if !d.Relayed {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s (%s", mark, d.ActionType, d.Reason)
		if !d.Predicate {
			b.WriteString(", rejected by predicate")
		}
		b.WriteByte(')')
	}
	return b.String()
}

// NewFilterCommand creates the filter command.
func NewFilterCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &FilterOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "filter <action>...",
		Short: "Explain which actions are relayed",
		Long: `Explain the filter decision for each action.

An action is a bare type or a JSON object. Each one is checked against
the local allowlist/denylist of the configuration (or the global filter
options when it has none) and then against its predicate.

Filtered actions are still annotated; they are only kept from the monitor.

Examples:
  storebridge filter --config ./devtools.yaml INCREMENT '@@INIT'
  storebridge filter --config ./devtools.yaml '{"type":"SET","id":3}' --state '{"user":null}'`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFilter(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration file")
	cmd.Flags().StringVar(&opts.State, "state", "null", "state passed to the predicate (JSON)")

	return cmd
}

func runFilter(opts *FilterOptions, args []string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	state, err := ir.UnmarshalValue([]byte(opts.State))
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeBadInput, fmt.Sprintf("invalid --state: %v", err), nil)
	}
	actions := make([]ir.Object, len(args))
	for i, arg := range args {
		if actions[i], err = parseAction(arg); err != nil {
			return fail(f, ExitCommandError, ErrCodeBadInput, err.Error(), nil)
		}
	}

	doc, err := loadConfig(opts.Config)
	if err != nil {
		return configFailure(f, err)
	}
	b, err := bridge.New(
		bridge.WithOptions(doc.Options),
		bridge.WithLogger(opts.Logger(cmd.ErrOrStderr())),
	)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	cfg, x := b.Normalize(&doc.Config)

	result := FilterResult{InstanceID: cfg.InstanceID, Decisions: make([]FilterDecision, 0, len(actions))}
	for _, action := range actions {
		decision := b.Filters().Explain(action, x.LocalFilter)
		allowed := x.Allows(state, action)
		actionType, _ := ir.ActionType(action)
		f.VerboseLog("%s: %s", actionType, decision.Reason)
		result.Decisions = append(result.Decisions, FilterDecision{
			ActionType: actionType,
			Filtered:   decision.Filtered,
			Reason:     decision.Reason,
			Predicate:  allowed,
			Relayed:    !decision.Filtered && allowed,
		})
	}
	return f.Success(result)
}

// parseAction reads a JSON object action or a bare action type.
func parseAction(arg string) (ir.Object, error) {
	if !strings.HasPrefix(strings.TrimSpace(arg), "{") {
		return ir.NewAction(arg), nil
	}
	var obj ir.Object
	if err := obj.UnmarshalJSON([]byte(arg)); err != nil {
		return nil, fmt.Errorf("invalid action %q: %w", arg, err)
	}
	return obj, nil
}
