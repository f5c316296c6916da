package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/pipeline"
)

// ModelValidation holds the findings for one model.
type ModelValidation struct {
	Model  string                     `json:"model"`
	Ref    string                     `json:"ref"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Models []ModelValidation `json:"models"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <model>...",
		Short: "Compile and lint models without generating code",
		Long: `Compile models and report every lint finding.

Compilation errors (unresolved dependencies, unknown units, malformed
equations) and lint findings such as unused parameters or non-finite
initial values are listed per model. Faster than translate for
development feedback.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, refs []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	result := ValidationResult{Valid: true, Models: []ModelValidation{}}
	findings := 0
	for _, ref := range refs {
		ms, err := pipeline.LoadModels(ref)
		if err != nil {
			if !isCompileFailure(err) {
				return formatter.Fail(err)
			}
			// The model exists but does not compile: a finding, not a
			// command error.
			result.Models = append(result.Models, ModelValidation{
				Model: ref,
				Ref:   ref,
				Errors: []compiler.ValidationError{{
					Field:   "model",
					Message: err.Error(),
					Code:    ErrorCode(err),
				}},
			})
			findings++
			continue
		}
		for _, m := range ms {
			formatter.VerboseLog("Validating model: %s", m.Name())
			errs := compiler.Validate(m)
			result.Models = append(result.Models, ModelValidation{Model: m.Name(), Ref: ref, Errors: errs})
			findings += len(errs)
		}
	}
	result.Valid = findings == 0

	var failure *CLIError
	if !result.Valid {
		first := firstFinding(result)
		failure = &CLIError{Code: first.Code, Message: first.Message}
	}
	if err := formatter.Render(result, failure, func(w io.Writer) { writeValidationText(w, result) }); err != nil {
		return err
	}
	if !result.Valid {
		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", findings))
	}
	return nil
}

// isCompileFailure reports whether a load error comes from the model
// text rather than from finding it.
func isCompileFailure(err error) bool {
	var ce *compiler.CompileError
	return errors.As(err, &ce) || compiler.IsUnresolvedDependency(err) || compiler.IsUnknownUnit(err) ||
		errors.Is(err, pipeline.ErrNoModels)
}

func firstFinding(r ValidationResult) compiler.ValidationError {
	for _, m := range r.Models {
		if len(m.Errors) > 0 {
			return m.Errors[0]
		}
	}
	return compiler.ValidationError{}
}

func writeValidationText(w io.Writer, r ValidationResult) {
	for _, m := range r.Models {
		if len(m.Errors) == 0 {
			fmt.Fprintf(w, "✓ %s\n", m.Model)
			continue
		}
		fmt.Fprintf(w, "✗ %s\n", m.Model)
		for _, e := range m.Errors {
			fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
		}
	}
	if r.Valid {
		fmt.Fprintln(w, "✓ All models valid")
	}
}
