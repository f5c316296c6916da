package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Ledger  string
	Limit   int
	Run     string
	Model   string
	Variant string
	Latest  bool
	Tags    bool
}

// HistoryResult is the output of the history command. Exactly one of
// the fields is set, depending on the query.
type HistoryResult struct {
	Runs        []store.Run        `json:"runs,omitempty"`
	Run         *store.Run         `json:"run,omitempty"`
	Generations []store.Generation `json:"generations,omitempty"`
	Tags        []store.ExportTag  `json:"export_tags,omitempty"`
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query the generation ledger",
		Long: `Query the ledger written by translate and batch.

With no query flags the most recent runs are listed. --run shows one
run with its generations, --model the generations of one model across
runs (optionally one --variant, or only the --latest successful one),
and --tags the owner of every export tag.

Examples:
  cellc history --ledger ledger.db
  cellc history --ledger ledger.db --model beeler_reuter_model_1977 --variant BackwardEulerOpt
  cellc history --ledger postgres://cellc@db/cellc --tags`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Ledger, "ledger", "", "generation ledger: SQLite path or postgres:// DSN (default $"+LedgerEnv+")")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "number of runs to list (0 = all)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show one run")
	cmd.Flags().StringVar(&opts.Model, "model", "", "show the generations of a model")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "restrict --model to one variant")
	cmd.Flags().BoolVar(&opts.Latest, "latest", false, "show only the latest successful generation of --model and --variant")
	cmd.Flags().BoolVar(&opts.Tags, "tags", false, "list export tag owners")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	ctx := cmd.Context()

	dsn := opts.Ledger
	if dsn == "" {
		dsn = os.Getenv(LedgerEnv)
	}
	if dsn == "" {
		return formatter.Fail(withCode(ErrCodeUsage, fmt.Errorf("no ledger: pass --ledger or set %s", LedgerEnv)))
	}
	if opts.Latest && (opts.Model == "" || opts.Variant == "") {
		return formatter.Fail(withCode(ErrCodeUsage, fmt.Errorf("--latest needs --model and --variant")))
	}
	if !store.IsPostgresDSN(dsn) {
		// Opening a SQLite path would create an empty ledger.
		if _, err := os.Stat(dsn); err != nil {
			return formatter.Fail(fmt.Errorf("ledger %s: %w", dsn, err))
		}
	}

	st, err := store.OpenDSN(ctx, dsn)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeLedger, err))
	}
	defer st.Close()

	var out HistoryResult
	switch {
	case opts.Run != "":
		run, gens, err := st.ReadRun(ctx, opts.Run)
		if err != nil {
			return formatter.Fail(err)
		}
		out.Run = &run
		out.Generations = gens
	case opts.Latest:
		g, ok, err := st.Latest(ctx, opts.Model, opts.Variant)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeLedger, err))
		}
		if ok {
			out.Generations = []store.Generation{g}
		}
	case opts.Model != "":
		out.Generations, err = st.History(ctx, opts.Model, opts.Variant)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeLedger, err))
		}
	case opts.Tags:
		out.Tags, err = st.ExportTags(ctx)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeLedger, err))
		}
	default:
		out.Runs, err = st.Runs(ctx, opts.Limit)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeLedger, err))
		}
	}

	return formatter.Render(out, nil, func(w io.Writer) { writeHistoryText(w, out) })
}

func writeHistoryText(w io.Writer, h HistoryResult) {
	for _, r := range h.Runs {
		writeRunLine(w, r)
	}
	if h.Run != nil {
		writeRunLine(w, *h.Run)
	}
	for _, g := range h.Generations {
		if g.Status == store.StatusOK {
			fmt.Fprintf(w, "✓ %s %s %s %s %s\n", g.RunID, g.Model, g.Variant, g.ExportTag, shortHash(g.Hash))
			continue
		}
		fmt.Fprintf(w, "✗ %s %s %s [%s] %s\n", g.RunID, g.Model, g.Variant, g.Stage, g.Error)
	}
	for _, t := range h.Tags {
		fmt.Fprintf(w, "%s %s %s (first run %s)\n", t.Tag, t.Model, t.Variant, t.FirstRun)
	}
	if len(h.Runs) == 0 && h.Run == nil && len(h.Generations) == 0 && len(h.Tags) == 0 {
		fmt.Fprintln(w, "No entries.")
	}
}

func writeRunLine(w io.Writer, r store.Run) {
	fmt.Fprintf(w, "%s #%d %s %s %s: %d succeeded, %d failed\n",
		r.ID, r.Seq, r.StartedAt.UTC().Format(time.RFC3339), r.Translator, r.Version, r.Succeeded, r.Failed)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
