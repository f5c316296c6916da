package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Filter string // scenario filter (glob pattern)
	Golden string // directory of <scenario>.golden reports
	Update bool   // regenerate golden reports
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Model  string   `json:"model,omitempty"`
	Pass   bool     `json:"pass"`
	Checks int      `json:"checks"`
	Errors []string `json:"errors,omitempty"`
}

// CheckResult holds the overall conformance result.
type CheckResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check [scenario|file|dir]...",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against generated classes and the
reference runtime: index consistency, ionic current agreement across
variants, optimised vs plain derivatives, Rush-Larsen fixed points,
backward Euler closed forms and lookup-table patching limits.

With no arguments every bundled scenario runs. Arguments name bundled
scenarios, scenario files or directories of them.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (unknown scenario, unreadable file, etc.)

Examples:
  cellc check
  cellc check --filter "hodgkin_huxley_*"
  cellc check ./scenarios --golden ./scenarios/golden --update`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "compare reports with <dir>/<scenario>.golden")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden reports (requires --golden)")

	return cmd
}

func runCheck(opts *CheckOptions, refs []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	w := cmd.OutOrStdout()

	if opts.Update && opts.Golden == "" {
		return formatter.Fail(withCode(ErrCodeUsage, errors.New("--update requires --golden")))
	}
	if opts.Filter != "" {
		if _, err := filepath.Match(opts.Filter, ""); err != nil {
			return formatter.Fail(withCode(ErrCodeUsage, fmt.Errorf("invalid filter pattern: %w", err)))
		}
	}

	scenarios, err := harness.Resolve(refs)
	if err != nil {
		return formatter.Fail(err)
	}

	hopts := harness.DefaultOptions()
	hopts.Logger = opts.logger()
	h := harness.New(hopts)

	result := CheckResult{Scenarios: []ScenarioResult{}}
	for _, s := range scenarios {
		if opts.Filter != "" {
			if ok, _ := filepath.Match(opts.Filter, s.Name); !ok {
				continue
			}
		}
		sr := runCheckScenario(cmd, h, s, opts)
		if !formatter.JSON() {
			writeScenarioText(w, sr)
		}
		result.Scenarios = append(result.Scenarios, sr)
		result.Total++
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if formatter.JSON() {
		var failure *CLIError
		if result.Failed > 0 {
			failure = &CLIError{Code: ErrCodeGeneric, Message: fmt.Sprintf("%d of %d scenarios failed", result.Failed, result.Total)}
		}
		if err := formatter.Render(result, failure, nil); err != nil {
			return err
		}
	} else if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
	} else {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Check Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// runCheckScenario runs one scenario and, when a golden directory is
// set, compares or rewrites its report.
func runCheckScenario(cmd *cobra.Command, h *harness.Harness, s *harness.Scenario, opts *CheckOptions) ScenarioResult {
	sr := ScenarioResult{Name: s.Name, Model: s.Model}

	res, err := h.Run(cmd.Context(), s)
	if err != nil {
		sr.Errors = []string{fmt.Sprintf("execution failed: %v", err)}
		return sr
	}
	sr.Checks = len(res.Checks)
	for _, c := range res.Failures() {
		label := c.Check
		if c.Variant != "" {
			label += " " + c.Variant
		}
		sr.Errors = append(sr.Errors, fmt.Sprintf("%s: %s", label, c.Message))
	}

	if opts.Golden != "" {
		if msg := compareGolden(res, opts); msg != "" {
			sr.Errors = append(sr.Errors, msg)
		}
	}
	sr.Pass = len(sr.Errors) == 0
	return sr
}

// compareGolden checks the report against <golden>/<scenario>.golden,
// or writes it under --update. A missing file is not a failure.
func compareGolden(res *harness.Result, opts *CheckOptions) string {
	report, err := harness.Report(res)
	if err != nil {
		return fmt.Sprintf("report: %v", err)
	}
	path := filepath.Join(opts.Golden, res.Scenario+".golden")
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return fmt.Sprintf("golden update: %v", err)
		}
		if err := os.WriteFile(path, report, 0o644); err != nil {
			return fmt.Sprintf("golden update: %v", err)
		}
		return ""
	}
	want, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ""
	}
	if err != nil {
		return fmt.Sprintf("golden comparison: %v", err)
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(report)) {
		return "report does not match golden file (run with --update to regenerate)"
	}
	return ""
}

func writeScenarioText(w io.Writer, sr ScenarioResult) {
	if sr.Pass {
		fmt.Fprintf(w, "✓ %s\n", sr.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", sr.Name)
	for _, e := range sr.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}
