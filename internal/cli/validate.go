package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/x3drouter/internal/compiler"
	"github.com/roach88/x3drouter/internal/nodes"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
	Warnings []compiler.CycleWarning    `json:"warnings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scene>",
		Short: "Validate a scene without running it",
		Long: `Validate a CUE scene against the node catalog without running it.

Checks node types, initial field values, Script interfaces and routes,
and reports every error found. Route cycles are reported as warnings:
they are legal, and the engine bounds them at run time.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, scenePath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loaded, err := LoadScene(scenePath)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	formatter.VerboseLog("Loaded %d CUE file(s) from %s", loaded.FileCount, scenePath)

	errs := compiler.Validate(loaded.Spec, nodes.Default())
	warnings := compiler.AnalyzeCycles(loaded.Spec)
	for _, w := range warnings {
		formatter.VerboseLog("cycle: %s", w.Message)
	}

	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs, warnings)
	}
	return outputValidateSuccess(formatter, warnings)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, warnings []compiler.CycleWarning) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Warnings: warnings})
	}

	fmt.Fprintln(formatter.Writer, "✓ Scene valid")
	printCycleWarnings(formatter, warnings)
	return nil
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError, warnings []compiler.CycleWarning) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.Failure(errs[0].Code, errs[0].Message, ValidationResult{
			Valid:    false,
			Errors:   errs,
			Warnings: warnings,
		})
		if err != nil {
			return err
		}
		return failure
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	printCycleWarnings(formatter, warnings)

	// Validation failures = exit code 1 (test/validation failure)
	return failure
}

func printCycleWarnings(formatter *OutputFormatter, warnings []compiler.CycleWarning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintf(formatter.Writer, "\n%d route cycle(s):\n", len(warnings))
	for _, w := range warnings {
		fmt.Fprintf(formatter.Writer, "  ⚠ %s\n", w.Message)
		for _, r := range w.Routes {
			fmt.Fprintf(formatter.Writer, "      %s\n", r)
		}
	}
}
