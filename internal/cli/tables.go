package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Variant string
	Level   string
	Sample  bool
}

// TableColumn is one planned column in command output.
type TableColumn struct {
	Name   string `json:"name"`
	Target string `json:"target,omitempty"`
	Expr   string `json:"expr"`
	Unsafe bool   `json:"unsafe,omitempty"`
}

// TableSummary is one planned table in command output.
type TableSummary struct {
	Index   int           `json:"index"`
	Key     string        `json:"key"`
	Min     float64       `json:"min"`
	Max     float64       `json:"max"`
	Step    float64       `json:"step"`
	Rows    int           `json:"rows"`
	Columns []TableColumn `json:"columns"`
}

// TablesResult is the output of the tables command.
type TablesResult struct {
	Model   string         `json:"model"`
	Variant string         `json:"variant"`
	Level   string         `json:"level"`
	Tables  []TableSummary `json:"tables"`
	Sampled bool           `json:"sampled"`
	Patched int            `json:"patched"`
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables <model>",
		Short: "Show the lookup tables planned for an optimised variant",
		Long: `Plan the lookup tables of a model variant and list each table with
its key, domain and columns. Unsafe columns may hold removable
singularities and are patched by neighbour averaging when sampled.

With --sample every table is filled with the default parameters, so a
column that cannot be tabulated is reported now rather than at the
first simulation step.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTables(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Variant, "variant", "NormalOpt", "optimised variant to plan")
	cmd.Flags().StringVar(&opts.Level, "level", "basic", "lookup-table level (basic|aggressive)")
	cmd.Flags().BoolVar(&opts.Sample, "sample", false, "sample every table with the default parameters")

	return cmd
}

func runTables(opts *TablesOptions, ref string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	v, err := scheme.ParseVariant(opts.Variant)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}
	if !v.Opt {
		return formatter.Fail(withCode(ErrCodeUsage, fmt.Errorf("variant %s has no lookup tables", v)))
	}
	level, err := lut.ParseLevel(opts.Level)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}

	m, err := pipeline.LoadModel(ref)
	if err != nil {
		return formatter.Fail(err)
	}
	sp, err := scheme.Select(classify.Classify(m), v, scheme.DefaultOptions())
	if err != nil {
		return formatter.Fail(err)
	}
	plan := lut.Build(sp, level)

	out := TablesResult{Model: m.Name(), Variant: v.String(), Level: level.String(), Tables: []TableSummary{}}
	for _, tp := range plan.Tables {
		ts := TableSummary{Index: tp.Index, Key: tp.Key, Min: tp.Min, Max: tp.Max, Step: tp.Step, Rows: tp.Rows()}
		for _, c := range tp.Columns {
			ts.Columns = append(ts.Columns, TableColumn{Name: c.Name, Target: c.Target, Expr: c.Expr.String(), Unsafe: c.Unsafe})
		}
		out.Tables = append(out.Tables, ts)
	}

	if opts.Sample {
		params := make(map[string]float64)
		for _, p := range m.Parameters() {
			params[p.Name] = p.Initial
		}
		set, err := lut.Generate(cmd.Context(), plan, params)
		if err != nil {
			return formatter.Fail(err)
		}
		out.Sampled = true
		out.Patched = set.Patched
	}

	return formatter.Render(out, nil, func(w io.Writer) { writeTablesText(w, out) })
}

func writeTablesText(w io.Writer, r TablesResult) {
	fmt.Fprintf(w, "model %s variant %s (%s)\n", r.Model, r.Variant, r.Level)
	for _, t := range r.Tables {
		fmt.Fprintf(w, "table %d: %s in [%s, %s] step %s, %d rows\n",
			t.Index, t.Key, ir.FormatNum(t.Min), ir.FormatNum(t.Max), ir.FormatNum(t.Step), t.Rows)
		for _, c := range t.Columns {
			mark := ""
			if c.Unsafe {
				mark = " (unsafe)"
			}
			fmt.Fprintf(w, "  %s%s = %s\n", c.Name, mark, c.Expr)
		}
	}
	if len(r.Tables) == 0 {
		fmt.Fprintln(w, "no tables")
	}
	if r.Sampled {
		fmt.Fprintf(w, "sampled: %d patched sample(s)\n", r.Patched)
	}
}
