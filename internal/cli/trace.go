package cli

import (
	"context"
	"fmt"
	"io"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/ir"
	"github.com/roach88/storebridge/internal/observe"
	"github.com/roach88/storebridge/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string // optional - defaults to the latest session
	Instance int    // optional - one instance across sessions
}

// TraceEntry is one annotation in the timeline.
type TraceEntry struct {
	Session        string `json:"session"`
	Seq            int64  `json:"seq"`
	Kind           string `json:"kind"`
	EventType      string `json:"event_type"`
	InstanceID     int    `json:"instance_id"`
	ActionType     string `json:"action_type,omitempty"`
	ConnectionType string `json:"connection_type,omitempty"`
	Contents       string `json:"-"`
}

// ObservationSummary is the persisted last observation of an instance.
type ObservationSummary struct {
	Session string    `json:"session"`
	Action  ir.Object `json:"action"`
	State   ir.Value  `json:"state"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEvents int `json:"total_events"`
	Inits       int `json:"inits"`
	Actions     int `json:"actions"`
	Instances   int `json:"instances"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session     string              `json:"session,omitempty"`
	Title       string              `json:"title,omitempty"`
	Instance    int                 `json:"instance,omitempty"`
	Timeline    []TraceEntry        `json:"timeline"`
	Observation *ObservationSummary `json:"last_observation,omitempty"`
	Stats       TraceStats          `json:"stats"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Read the annotation log",
		Long: `Read the annotations a bridge persisted to its SQLite log.

By default the latest session is shown. With --instance the annotations
of one instance are shown across every session, together with its last
observation.

Examples:
  storebridge trace --db ./bridge.db
  storebridge trace --db ./bridge.db --session 0d6c...
  storebridge trace --db ./bridge.db --instance 2 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().IntVar(&opts.Instance, "instance", 0, "show one instance across sessions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	f := newFormatter(opts.RootOptions, cmd)

	st, err := openDatabase(opts.Database)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeDatabase, fmt.Sprintf("failed to open database: %v", err), nil)
	}
	defer st.Close()

	result, err := buildTrace(ctx, st, opts)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeDatabase, err.Error(), nil)
	}

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func buildTrace(ctx context.Context, st *store.Store, opts *TraceOptions) (TraceResult, error) {
	result := TraceResult{Timeline: []TraceEntry{}}

	var rows []store.Annotation
	if opts.Instance > 0 {
		result.Instance = opts.Instance
		var err error
		if rows, err = st.ReadInstance(ctx, opts.Instance); err != nil {
			return result, err
		}
		obs, ok, err := st.ReadObservation(ctx, opts.Instance)
		if err != nil {
			return result, err
		}
		if ok {
			result.Observation = &ObservationSummary{Session: obs.SessionID, Action: obs.Action, State: obs.State}
		}
	} else {
		sessions, err := st.Sessions(ctx)
		if err != nil {
			return result, err
		}
		if len(sessions) == 0 {
			return result, nil
		}
		session := sessions[len(sessions)-1]
		if opts.Session != "" {
			found := false
			for _, s := range sessions {
				if s.ID == opts.Session {
					session, found = s, true
					break
				}
			}
			if !found {
				return result, fmt.Errorf("session not found: %s", opts.Session)
			}
		}
		result.Session, result.Title = session.ID, session.Title
		if rows, err = st.ReadAnnotations(ctx, session.ID); err != nil {
			return result, err
		}
	}

	instances := make(map[int]bool)
	for _, row := range rows {
		entry := TraceEntry{
			Session:    row.SessionID,
			Seq:        row.Seq,
			Kind:       row.Kind,
			EventType:  row.EventType,
			InstanceID: row.InstanceID,
			Contents:   row.Contents,
		}
		var body observe.Annotation
		if err := json.Unmarshal([]byte(row.Contents), &body); err == nil {
			entry.ActionType = body.ActionType
			entry.ConnectionType = string(body.ConnectionType)
		}
		result.Timeline = append(result.Timeline, entry)

		instances[row.InstanceID] = true
		switch row.EventType {
		case observe.EventInit:
			result.Stats.Inits++
		case observe.EventAction:
			result.Stats.Actions++
		}
	}
	result.Stats.TotalEvents = len(result.Timeline)
	result.Stats.Instances = len(instances)
	return result, nil
}

// outputTraceJSON outputs the trace result as JSON.
func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(response)
}

// outputTraceText outputs the trace result as text.
func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	switch {
	case result.Instance > 0:
		fmt.Fprintf(w, "Trace for instance: %d\n", result.Instance)
	case result.Session != "":
		fmt.Fprintf(w, "Trace for session: %s (%s)\n", result.Session, result.Title)
	default:
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no annotations)")
	}
	for _, e := range result.Timeline {
		fmt.Fprintf(w, "  [%d] %s", e.Seq, e.EventType)
		if e.ActionType != "" {
			fmt.Fprintf(w, " %s", e.ActionType)
		}
		fmt.Fprintf(w, " instance=%d %s\n", e.InstanceID, e.ConnectionType)
		if verbose {
			fmt.Fprintf(w, "       %s %s\n", e.Kind, e.Contents)
		}
	}
	fmt.Fprintln(w)

	if obs := result.Observation; obs != nil {
		fmt.Fprintln(w, "=== Last observation ===")
		action, _ := ir.MarshalValue(obs.Action)
		state, _ := ir.MarshalValue(obs.State)
		fmt.Fprintf(w, "  Action: %s\n", action)
		fmt.Fprintf(w, "  State:  %s\n", state)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events: %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Inits:        %d\n", result.Stats.Inits)
	fmt.Fprintf(w, "  Actions:      %d\n", result.Stats.Actions)
	fmt.Fprintf(w, "  Instances:    %d\n", result.Stats.Instances)
}
