package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/bridge"
	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ident"
)

// NormalizeOptions holds flags for the normalize command.
type NormalizeOptions struct {
	*RootOptions
	InstanceID int    // explicit instance id
	After      int    // last id already in use
	Title      string // page title naming instance 1
}

// NormalizeResult is the canonical form of one configuration.
type NormalizeResult struct {
	InstanceID        int                 `json:"instance_id"`
	Name              string              `json:"name"`
	MaxAge            int                 `json:"max_age"`
	LocalFilter       *filter.LocalFilter `json:"local_filter,omitempty"`
	GlobalFilter      filter.State        `json:"global_filter,omitempty"`
	DeprecatedAliases bool                `json:"deprecated_aliases,omitempty"`
	Predicate         bool                `json:"predicate"`
	StateSanitizer    bool                `json:"state_sanitizer"`
	ActionSanitizer   bool                `json:"action_sanitizer"`
	Serialize         bool                `json:"serialize"`
	URLPatterns       []string            `json:"url_patterns,omitempty"`
	Config            *config.Config      `json:"config"`
}

// String renders the text output.
func (r NormalizeResult) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Instance %d: %s\n", r.InstanceID, r.Name)
	fmt.Fprintf(&b, "  maxAge: %d\n", r.MaxAge)
	if r.LocalFilter != nil {
		fmt.Fprintf(&b, "  local filter: allowlist=%q denylist=%q\n", r.LocalFilter.Allowlist, r.LocalFilter.Denylist)
	} else if r.GlobalFilter != "" {
		fmt.Fprintf(&b, "  global filter: %s\n", r.GlobalFilter)
	} else {
		b.WriteString("  no filters\n")
	}
	if r.DeprecatedAliases {
		b.WriteString("  uses deprecated actionsBlacklist/actionsWhitelist\n")
	}
	fmt.Fprintf(&b, "  predicate: %s\n", yesNo(r.Predicate))
	fmt.Fprintf(&b, "  sanitizers: state=%s action=%s\n", yesNo(r.StateSanitizer), yesNo(r.ActionSanitizer))
	fmt.Fprintf(&b, "  serialize: %s", yesNo(r.Serialize))
	for _, p := range r.URLPatterns {
		fmt.Fprintf(&b, "\n  page url: %s", p)
	}
	return b.String()
}

// NewNormalizeCommand creates the normalize command.
func NewNormalizeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &NormalizeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "normalize [config-file]",
		Short: "Show the canonical form of a configuration",
		Long: `Normalize a configuration file the way the bridge does when a store
is instrumented: allocate the instance id, resolve the name, merge the
deprecated filter aliases and compile predicates and sanitizers.

Without a file an empty configuration is normalized.

Examples:
  storebridge normalize ./devtools.yaml
  storebridge normalize ./devtools.yaml --title "Shop" --after 3
  storebridge normalize ./devtools.yaml --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			return runNormalize(opts, path, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.InstanceID, "id", 0, "explicit instance id")
	cmd.Flags().IntVar(&opts.After, "after", 0, "allocate ids after this one")
	cmd.Flags().StringVar(&opts.Title, "title", "", "page title used to name instance 1")

	return cmd
}

func runNormalize(opts *NormalizeOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	if opts.After < 0 {
		return fail(f, ExitCommandError, ErrCodeBadInput, fmt.Sprintf("--after must be non-negative, got %d", opts.After), nil)
	}

	doc, err := loadConfig(path)
	if err != nil {
		return configFailure(f, err)
	}

	b, err := bridge.New(
		bridge.WithRegistry(bridge.NewRegistryWith(ident.NewAllocatorAt(int64(opts.After)))),
		bridge.WithOptions(doc.Options),
		bridge.WithTitle(opts.Title),
		bridge.WithLogger(opts.Logger(cmd.ErrOrStderr())),
	)
	if err != nil {
		return fail(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}

	raw := doc.Config.Clone()
	if opts.InstanceID > 0 {
		raw.InstanceID = opts.InstanceID
	}
	cfg, x := b.Normalize(raw)
	f.VerboseLog("Normalized %s as instance %d", describePath(path), cfg.InstanceID)

	result := NormalizeResult{
		InstanceID:        cfg.InstanceID,
		Name:              cfg.Name,
		MaxAge:            config.ResolveMaxAge(cfg, doc.Options),
		LocalFilter:       x.LocalFilter,
		DeprecatedAliases: cfg.UsesDeprecatedAliases(),
		Predicate:         x.Predicate != nil,
		StateSanitizer:    x.StateSanitizer != nil,
		ActionSanitizer:   x.ActionSanitizer != nil,
		Serialize:         cfg.Serialize,
		URLPatterns:       doc.Options.URLPatterns(),
		Config:            cfg,
	}
	if g := b.Filters().Global(); g.Active() {
		result.GlobalFilter = g.State
	}
	return f.Success(result)
}

func describePath(path string) string {
	if path == "" {
		return "empty configuration"
	}
	return path
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
