package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/cell"
	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

// SimulateOptions holds flags for the simulate command.
type SimulateOptions struct {
	*RootOptions

	Variant      string
	Level        string
	Start        float64
	End          float64
	Sampling     float64
	Dt           float64
	Stimulus     bool
	FixedVoltage bool
	Derived      bool
	Params       map[string]string
	States       map[string]string

	ClampTrace       string  // CSV of time,voltage
	ClampConductance float64 // data clamp conductance once a trace is set
}

// SimulateResult is the output of the simulate command.
type SimulateResult struct {
	Model        string      `json:"model"`
	Variant      string      `json:"variant"`
	Names        []string    `json:"names"`
	Times        []float64   `json:"times"`
	States       [][]float64 `json:"states"`
	DerivedNames []string    `json:"derived_names,omitempty"`
	Derived      [][]float64 `json:"derived,omitempty"`
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SimulateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "simulate <model>",
		Short: "Run a model variant in the reference runtime",
		Long: `Solve a model variant with the same scheme and lookup tables the
generated class uses, and print the sampled states as CSV (or JSON
with --format json).

Exit codes:
  0 - Simulation completed
  1 - Runtime error (lookup out of range, NaN current, Newton failure);
      the trajectory up to the failure is still printed
  2 - Command error

Examples:
  cellc simulate hodgkin_huxley_1952 --end 20 --stimulus
  cellc simulate beeler_reuter_1977 --variant BackwardEulerOpt --dt 0.1 --param membrane.C=1.2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulate(opts, args[0], cmd)
		},
	}

	defaults := cell.DefaultOptions()
	cmd.Flags().StringVar(&opts.Variant, "variant", "Normal", "variant to run")
	cmd.Flags().StringVar(&opts.Level, "level", "basic", "lookup-table level of Opt variants (basic|aggressive)")
	cmd.Flags().Float64Var(&opts.Start, "start", 0, "start time")
	cmd.Flags().Float64Var(&opts.End, "end", 10, "end time")
	cmd.Flags().Float64Var(&opts.Sampling, "sampling", 1, "sampling interval")
	cmd.Flags().Float64Var(&opts.Dt, "dt", defaults.Dt, "time step (maximum step for Cvode variants)")
	cmd.Flags().BoolVar(&opts.Stimulus, "stimulus", false, "apply the model's default stimulus")
	cmd.Flags().BoolVar(&opts.FixedVoltage, "fixed-voltage", false, "hold the voltage at its initial value")
	cmd.Flags().BoolVar(&opts.Derived, "derived", false, "also print derived quantities")
	cmd.Flags().StringToStringVar(&opts.Params, "param", nil, "parameter overrides (name=value)")
	cmd.Flags().StringToStringVar(&opts.States, "state", nil, "initial state overrides (name=value)")
	cmd.Flags().StringVar(&opts.ClampTrace, "clamp-trace", "", "experimental voltage trace for DataClamp variants (CSV time,voltage)")
	cmd.Flags().Float64Var(&opts.ClampConductance, "clamp-conductance", 0, "data clamp conductance")

	return cmd
}

func runSimulate(opts *SimulateOptions, ref string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	v, err := scheme.ParseVariant(opts.Variant)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}
	level, err := lut.ParseLevel(opts.Level)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}
	if opts.End <= opts.Start {
		return formatter.Fail(withCode(ErrCodeUsage, fmt.Errorf("--end %g must be after --start %g", opts.End, opts.Start)))
	}

	m, err := pipeline.LoadModel(ref)
	if err != nil {
		return formatter.Fail(err)
	}
	plan, err := scheme.Select(classify.Classify(m), v, scheme.DefaultOptions())
	if err != nil {
		return formatter.Fail(err)
	}

	copts := cell.DefaultOptions()
	copts.Dt = opts.Dt
	copts.Level = level
	copts.Logger = opts.logger()
	c, err := cell.New(plan, copts)
	if err != nil {
		return formatter.Fail(err)
	}
	if err := configureCell(c, opts); err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}

	tr, solveErr := c.Solve(opts.Start, opts.End, opts.Sampling)
	if solveErr != nil && !isRuntimeError(solveErr) {
		return formatter.Fail(withCode(ErrCodeUsage, solveErr))
	}

	out := SimulateResult{Model: m.Name(), Variant: v.String(), Names: tr.Names, Times: tr.Times, States: tr.States}
	if opts.Derived {
		for _, d := range m.Derived() {
			out.DerivedNames = append(out.DerivedNames, d.Name)
		}
		for i, t := range tr.Times {
			dq, err := c.ComputeDerivedQuantities(t, tr.States[i])
			if err != nil {
				solveErr = errors.Join(solveErr, err)
				break
			}
			out.Derived = append(out.Derived, dq)
		}
	}

	var failure *CLIError
	if solveErr != nil {
		failure = &CLIError{Code: ErrCodeRuntime, Message: solveErr.Error(), Details: runtimeCode(solveErr)}
	}
	if err := formatter.Render(out, failure, func(w io.Writer) { writeTrajectoryCSV(w, out) }); err != nil {
		return err
	}
	if solveErr != nil {
		if !formatter.JSON() {
			fmt.Fprintf(formatter.GetErrWriter(), "Error [%s]: %v\n", ErrCodeRuntime, solveErr)
		}
		return WrapExitError(ExitFailure, "simulation failed", solveErr)
	}
	return nil
}

// configureCell applies overrides in name order so the result does not
// depend on flag order.
func configureCell(c *cell.Cell, opts *SimulateOptions) error {
	params, err := parseAssignments("--param", opts.Params)
	if err != nil {
		return err
	}
	for _, name := range sortedNames(params) {
		if err := c.SetParameter(name, params[name]); err != nil {
			return err
		}
	}
	states, err := parseAssignments("--state", opts.States)
	if err != nil {
		return err
	}
	for _, name := range sortedNames(states) {
		if err := c.SetStateVariable(name, states[name]); err != nil {
			return err
		}
	}
	c.SetFixedVoltage(opts.FixedVoltage)
	if opts.Stimulus {
		if err := c.UseCellMLDefaultStimulus(); err != nil {
			return err
		}
	}
	if opts.ClampTrace != "" {
		times, values, err := readTrace(opts.ClampTrace)
		if err != nil {
			return err
		}
		if err := c.SetExperimentalVoltage(times, values); err != nil {
			return err
		}
		if err := c.TurnOnDataClamp(opts.ClampConductance); err != nil {
			return err
		}
	}
	return nil
}

func parseAssignments(flag string, raw map[string]string) (map[string]float64, error) {
	out := make(map[string]float64, len(raw))
	for name, s := range raw {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %q is not a number", flag, name, s)
		}
		out[name] = v
	}
	return out, nil
}

func sortedNames(m map[string]float64) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// readTrace loads a time,voltage CSV. A header row is allowed.
func readTrace(path string) ([]float64, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("clamp trace: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 2
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("clamp trace: %w", err)
	}
	var times, values []float64
	for i, rec := range records {
		t, errT := strconv.ParseFloat(rec[0], 64)
		v, errV := strconv.ParseFloat(rec[1], 64)
		if errT != nil || errV != nil {
			if i == 0 {
				continue
			}
			return nil, nil, fmt.Errorf("clamp trace line %d: expected two numbers", i+1)
		}
		times = append(times, t)
		values = append(values, v)
	}
	return times, values, nil
}

func isRuntimeError(err error) bool {
	var re *cell.RuntimeError
	return errors.As(err, &re)
}

func runtimeCode(err error) string {
	var re *cell.RuntimeError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

func writeTrajectoryCSV(w io.Writer, r SimulateResult) {
	cw := csv.NewWriter(w)
	header := append([]string{"time"}, r.Names...)
	header = append(header, r.DerivedNames...)
	_ = cw.Write(header)
	for i, t := range r.Times {
		row := []string{ir.FormatNum(t)}
		for _, v := range r.States[i] {
			row = append(row, ir.FormatNum(v))
		}
		if i < len(r.Derived) {
			for _, v := range r.Derived[i] {
				row = append(row, ir.FormatNum(v))
			}
		}
		_ = cw.Write(row)
	}
	cw.Flush()
}
