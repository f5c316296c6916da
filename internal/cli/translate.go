package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	sinkOptions

	Variants     []string
	Tables       string
	SampleTables bool
	Workers      int
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <model>...",
		Short: "Generate C++ cell classes from models",
		Long: `Generate a header and source file per model and variant.

A model is the name of a bundled model, a .cue file or a directory
holding one CUE package. Every model is rendered in every requested
variant; a failure in one does not stop the others.

Examples:
  cellc translate hodgkin_huxley_1952 -o out
  cellc translate models/ --variant BackwardEulerOpt --variant Cvode -o out
  cellc translate model.cue --variant all -o s3://bucket/cells --ledger ledger.db`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args, cmd)
		},
	}

	cmd.Flags().StringSliceVar(&opts.Variants, "variant", []string{"Normal"}, "variants to generate (repeatable, or \"all\")")
	cmd.Flags().StringVar(&opts.Tables, "tables", "basic", "lookup-table level of Opt variants (basic|aggressive)")
	cmd.Flags().BoolVar(&opts.SampleTables, "sample-tables", false, "sample every lookup table at generation time")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent generations (0 = GOMAXPROCS)")
	opts.sinkOptions.register(cmd)

	return cmd
}

func runTranslate(opts *TranslateOptions, refs []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	if opts.Output == "" {
		return formatter.Fail(withCode(ErrCodeUsage, errNoOutput))
	}
	variants, err := parseVariants(opts.Variants)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}
	level, err := lut.ParseLevel(opts.Tables)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeUsage, err))
	}

	var tasks []pipeline.Task
	for _, ref := range refs {
		ms, err := pipeline.LoadModels(ref)
		if err != nil {
			return formatter.Fail(err)
		}
		formatter.VerboseLog("Loaded %d model(s) from %s", len(ms), ref)
		tasks = append(tasks, pipeline.Tasks(ms, variants)...)
	}

	popts := pipeline.DefaultOptions()
	popts.Tables = level
	popts.SampleTables = opts.SampleTables
	popts.Workers = opts.Workers

	g := &generation{
		root:     opts.RootOptions,
		sink:     opts.sinkOptions,
		pipeline: popts,
		tasks:    tasks,
	}
	return g.run(cmd.Context(), cmd)
}

// parseVariants resolves variant flags. "all" expands to every variant;
// duplicates are dropped.
func parseVariants(names []string) ([]scheme.Variant, error) {
	var out []scheme.Variant
	for _, name := range names {
		if name == pipeline.VariantAll {
			for _, v := range scheme.AllVariants() {
				if !slices.Contains(out, v) {
					out = append(out, v)
				}
			}
			continue
		}
		v, err := scheme.ParseVariant(name)
		if err != nil {
			return nil, fmt.Errorf("--variant: %w", err)
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("--variant: at least one variant is required")
	}
	return out, nil
}
