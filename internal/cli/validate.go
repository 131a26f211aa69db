package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/storebridge/internal/config"
	"github.com/roach88/storebridge/internal/filter"
)

// PatternProblem is a filter or page URL pattern that does not compile.
type PatternProblem struct {
	Field   string `json:"field"`
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// FileValidation is the result for one configuration file.
type FileValidation struct {
	File     string           `json:"file"`
	Valid    bool             `json:"valid"`
	Error    *CLIError        `json:"error,omitempty"`
	Patterns []PatternProblem `json:"patterns,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid bool             `json:"valid"`
	Files []FileValidation `json:"files"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <config-file>...",
		Short: "Validate configuration files",
		Long: `Validate devtools configuration files without instrumenting anything.

Checks YAML syntax and unknown fields, the configuration schema,
predicate expressions and sanitizer scripts, and that every filter and
page URL pattern compiles as an ECMAScript regular expression.

Exit codes:
  0 - All files valid
  1 - One or more files invalid
  2 - Command error (missing file, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	result := ValidationResult{Valid: true, Files: make([]FileValidation, 0, len(paths))}
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)

		fv, err := validateFile(path)
		if err != nil {
			return configFailure(formatter, err)
		}
		result.Files = append(result.Files, fv)
		result.Valid = result.Valid && fv.Valid
	}

	if formatter.Format == "json" {
		if result.Valid {
			return formatter.Success(result)
		}
		if err := formatter.Error(ErrCodeGeneric, "validation failed", result); err != nil {
			return err
		}
		return NewExitError(ExitFailure, "validation failed")
	}

	outputValidationText(formatter, result)
	if !result.Valid {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}

// validateFile checks one file. Only read failures are returned as errors;
// everything else is reported in the FileValidation.
func validateFile(path string) (FileValidation, error) {
	fv := FileValidation{File: path}

	doc, err := config.LoadFile(path)
	if err != nil {
		var le *config.LoadError
		if !errors.As(err, &le) || le.Code == config.ErrCodeRead {
			return fv, err
		}
		fv.Error = &CLIError{Code: le.Code, Message: le.Error(), Details: loadErrorDetails(le)}
		return fv, nil
	}

	fv.Patterns = checkPatterns(doc)
	fv.Valid = len(fv.Patterns) == 0
	return fv, nil
}

// checkPatterns compiles every pattern the bridge would evaluate.
func checkPatterns(doc *config.Document) []PatternProblem {
	var problems []PatternProblem
	check := func(field, source string) {
		if source == "" {
			return
		}
		if _, err := filter.Compile(source); err != nil {
			problems = append(problems, PatternProblem{Field: field, Pattern: source, Message: err.Error()})
		}
	}

	check("config.actionsAllowlist", doc.Config.Allowlist().Source())
	check("config.actionsDenylist", doc.Config.Denylist().Source())
	check("options.allowlist", doc.Options.Allowlist)
	check("options.denylist", doc.Options.Denylist)
	for i, p := range doc.Options.URLPatterns() {
		check(fmt.Sprintf("options.urls[%d]", i), p)
	}
	return problems
}

func outputValidationText(f *OutputFormatter, result ValidationResult) {
	var b strings.Builder
	for _, fv := range result.Files {
		if fv.Valid {
			fmt.Fprintf(&b, "✓ %s\n", fv.File)
			continue
		}
		fmt.Fprintf(&b, "✗ %s\n", fv.File)
		if fv.Error != nil {
			fmt.Fprintf(&b, "  [%s] %s\n", fv.Error.Code, fv.Error.Message)
		}
		for _, p := range fv.Patterns {
			fmt.Fprintf(&b, "  %s: %q: %s\n", p.Field, p.Pattern, p.Message)
		}
	}
	if result.Valid {
		b.WriteString("✓ All configurations valid")
	} else {
		b.WriteString("✗ Validation failed")
	}
	fmt.Fprintln(f.Writer, b.String())
}
