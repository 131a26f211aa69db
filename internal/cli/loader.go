package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/store"
)

// newFormatter builds the formatter every command writes through.
// Verbose logs go to stderr to avoid corrupting JSON.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// fail reports an error through the formatter and returns the matching
// ExitError.
func fail(f *OutputFormatter, exitCode int, code, message string, details any) error {
	if err := f.Error(code, message, details); err != nil {
		return err
	}
	return NewExitError(exitCode, fmt.Sprintf("%s: %s", code, message))
}

// loadConfig reads a configuration file. An empty path yields an empty
// document, so commands work without a file.
func loadConfig(path string) (*config.Document, error) {
	if path == "" {
		return &config.Document{}, nil
	}
	return config.LoadFile(path)
}

// configFailure reports a configuration loading error. Missing files are
// command errors; invalid ones are validation failures.
func configFailure(f *OutputFormatter, err error) error {
	var le *config.LoadError
	if !errors.As(err, &le) {
		return fail(f, ExitCommandError, ErrCodeGeneric, err.Error(), nil)
	}
	if le.Code == config.ErrCodeRead {
		return fail(f, ExitCommandError, ErrCodeNotFound, le.Error(), nil)
	}
	return fail(f, ExitFailure, le.Code, le.Error(), loadErrorDetails(le))
}

// LoadErrorDetails is the JSON detail of a configuration error.
type LoadErrorDetails struct {
	File string `json:"file,omitempty"`
	Path string `json:"path,omitempty"`
	Line int    `json:"line,omitempty"`
}

func loadErrorDetails(le *config.LoadError) *LoadErrorDetails {
	if le.File == "" && le.Path == "" && le.Line == 0 {
		return nil
	}
	return &LoadErrorDetails{File: le.File, Path: le.Path, Line: le.Line}
}

// openDatabase opens an existing annotation log. Unlike store.Open it
// refuses to create a missing file.
func openDatabase(path string) (*store.Store, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return store.Open(path)
}
