package config

import (
	"fmt"
	"log/slog"

	"github.com/roach88/storebridge/internal/filter"
	"github.com/roach88/storebridge/internal/ident"
)

// Normalizer turns raw configurations into canonical ones.
//
// IDs is required. Filters may be nil, in which case only local filters
// apply. Title is the page title used to name the first instance.
type Normalizer struct {
	IDs     *ident.Allocator
	Filters *filter.Engine
	Title   string
	Logger  *slog.Logger
}

// Normalize returns the canonical configuration and the extracted hot-path
// configuration. raw is not modified; a nil raw behaves as an empty config.
//
// The canonical configuration carries the allocated instance id and the
// resolved name, so normalizing it again yields the same id and name.
// Normalize never fails: file-sourced callables that do not compile are
// logged and left unset.
func (n *Normalizer) Normalize(raw *Config) (*Config, *Extracted) {
	cfg := raw.Clone()
	logger := n.logger()

	cfg.InstanceID = n.IDs.Allocate(cfg.InstanceID)
	if cfg.Name == "" {
		cfg.Name = n.defaultName(cfg.InstanceID)
	}

	if cfg.UsesDeprecatedAliases() {
		logger.Warn("deprecated filter fields in use",
			"instance_id", cfg.InstanceID,
			"actionsBlacklist", cfg.ActionsBlacklist.Present(),
			"actionsWhitelist", cfg.ActionsWhitelist.Present(),
			"hint", "use actionsDenylist and actionsAllowlist",
		)
	}

	if err := cfg.CompileScripts(); err != nil {
		logger.Error("config scripts did not compile, ignoring them",
			"instance_id", cfg.InstanceID,
			"error", err,
		)
	}

	return cfg, &Extracted{
		InstanceID:      cfg.InstanceID,
		StateSanitizer:  cfg.StateSanitizer,
		ActionSanitizer: cfg.ActionSanitizer,
		Predicate:       cfg.Predicate,
		LocalFilter:     cfg.LocalFilter(),
		IsFiltered:      n.Filters.IsFiltered,
	}
}

func (n *Normalizer) defaultName(id int) string {
	if id == 1 && n.Title != "" {
		return n.Title
	}
	return fmt.Sprintf("Instance %d", id)
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
