package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/pipeline"
)

var errNoOutputManifest = errors.New("no output target: pass --output or set output in the manifest")

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	sinkOptions

	SampleTables bool
	Workers      int
}

// NewBatchCommand creates the batch command.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <manifest>",
		Short: "Generate every model and variant listed in a manifest",
		Long: `Generate the classes listed in a YAML manifest.

The manifest names the output, lookup-table level, worker count,
Newton limits and the variants of each model. Flags given on the
command line override the manifest. Models that fail to load are
reported as failures; the rest of the batch still runs.

Exit codes:
  0 - Every class generated
  1 - One or more generations failed
  2 - Command error (unreadable manifest, unreachable sink or ledger)

Example manifest:
  output: out
  tables: aggressive
  models:
    - model: hodgkin_huxley_1952
      variants: [Normal, BackwardEulerOpt, Cvode]
    - model: models/
      variants: [all]`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.SampleTables, "sample-tables", false, "sample every lookup table at generation time")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent generations (0 = manifest or GOMAXPROCS)")
	opts.sinkOptions.register(cmd)

	return cmd
}

func runBatch(opts *BatchOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	m, err := pipeline.LoadManifest(path)
	if err != nil {
		return formatter.Fail(err)
	}

	sink := opts.sinkOptions
	if sink.Output == "" {
		sink.Output = m.Output
	}
	if sink.Output == "" {
		return formatter.Fail(withCode(ErrCodeUsage, errNoOutputManifest))
	}

	base := pipeline.DefaultOptions()
	base.SampleTables = opts.SampleTables
	popts := m.Options(base)
	if opts.Workers > 0 {
		popts.Workers = opts.Workers
	}

	tasks, failed := m.Tasks()
	formatter.VerboseLog("Manifest %s lists %d class(es), %d model(s) failed to load", path, len(tasks), len(failed))

	g := &generation{
		root:     opts.RootOptions,
		sink:     sink,
		pipeline: popts,
		tasks:    tasks,
		failed:   failed,
	}
	return g.run(cmd.Context(), cmd)
}
