package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/cellc/internal/artifact"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/metrics"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/store"
)

// LedgerEnv names the ledger DSN used when --ledger is not given.
const LedgerEnv = "CELLC_LEDGER_DSN"

var errNoOutput = errors.New("no output target: pass --output")

// sinkOptions are the output flags shared by translate and batch.
type sinkOptions struct {
	Output  string // directory, memory: or s3://bucket/prefix
	Ledger  string // SQLite path or postgres:// DSN
	Metrics string // prometheus text file
}

func (o *sinkOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Output, "output", "o", "", "output directory, memory: or s3://bucket/prefix")
	cmd.Flags().StringVar(&o.Ledger, "ledger", "", "generation ledger: SQLite path or postgres:// DSN (default $"+LedgerEnv+")")
	cmd.Flags().StringVar(&o.Metrics, "metrics", "", "write prometheus metrics to this file")
}

func (o *sinkOptions) ledgerDSN() string {
	if o.Ledger != "" {
		return o.Ledger
	}
	return os.Getenv(LedgerEnv)
}

// FailureSummary is one failed generation in command output.
type FailureSummary struct {
	Model   string `json:"model"`
	Variant string `json:"variant,omitempty"`
	Stage   string `json:"stage"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// GenerateSummary is the output of translate and batch.
type GenerateSummary struct {
	RunID     string                 `json:"run_id,omitempty"`
	Output    string                 `json:"output"`
	Artifacts []*pipeline.Artifact   `json:"artifacts"`
	Files     []artifact.Info        `json:"files"`
	Failures  []FailureSummary       `json:"failures,omitempty"`
	Issues    []store.StabilityIssue `json:"issues,omitempty"`
}

// generation is one invocation of the pipeline with its outputs.
type generation struct {
	root     *RootOptions
	sink     sinkOptions
	pipeline pipeline.Options
	tasks    []pipeline.Task
	// failed holds failures found before the pipeline ran, such as
	// manifest models that did not load.
	failed []*pipeline.GenerationError
}

// run generates every task, stores the artifacts and records the run.
// Failed generations do not stop the others; they turn the exit code
// into ExitFailure once everything that succeeded has been written.
func (g *generation) run(ctx context.Context, cmd *cobra.Command) error {
	formatter := g.root.formatter(cmd)
	log := g.root.logger()

	sink, prefix, err := artifact.Open(ctx, g.sink.Output)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeWrite, err))
	}

	rec := metrics.New()
	opts := g.pipeline
	opts.Logger = log
	opts.Observer = rec

	formatter.VerboseLog("Generating %d class(es) with %d worker(s)", len(g.tasks), opts.Workers)
	res := pipeline.Run(ctx, g.tasks, opts)
	res.Failures = append(g.failed, res.Failures...)

	summary := GenerateSummary{
		Output:    g.sink.Output,
		Artifacts: res.Artifacts,
		Files:     []artifact.Info{},
	}
	if summary.Artifacts == nil {
		summary.Artifacts = []*pipeline.Artifact{}
	}
	for _, a := range res.Artifacts {
		infos, err := artifact.Write(ctx, sink, prefix, a)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeWrite, err))
		}
		summary.Files = append(summary.Files, infos...)
	}
	if len(res.Artifacts) > 0 {
		info, err := artifact.WriteIndex(ctx, sink, prefix, res.Artifacts)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeWrite, err))
		}
		summary.Files = append(summary.Files, info)
	}
	for _, f := range res.Failures {
		summary.Failures = append(summary.Failures, FailureSummary{
			Model:   f.Model,
			Variant: f.Variant,
			Stage:   f.Stage,
			Code:    ErrorCode(f),
			Message: f.Err.Error(),
		})
	}

	if dsn := g.sink.ledgerDSN(); dsn != "" {
		run, issues, err := g.record(ctx, dsn, res)
		if err != nil {
			return formatter.Fail(withCode(ErrCodeLedger, err))
		}
		summary.RunID = run.ID
		summary.Issues = issues
		for _, issue := range issues {
			rec.ObserveIssue(issue.Kind)
			log.Warn("export tag stability", "model", issue.Model, "variant", issue.Variant, "kind", issue.Kind, "previous", issue.Previous)
		}
	}

	if g.sink.Metrics != "" {
		if err := rec.WriteFile(g.sink.Metrics); err != nil {
			return formatter.Fail(withCode(ErrCodeWrite, err))
		}
	}

	var failure *CLIError
	if !res.OK() {
		failure = &CLIError{Code: summary.Failures[0].Code, Message: res.Err().Error()}
	}
	if err := formatter.Render(summary, failure, func(w io.Writer) { writeGenerateText(w, summary) }); err != nil {
		return err
	}
	if !res.OK() {
		return WrapExitError(ExitFailure, "generation failed", res.Err())
	}
	return nil
}

// record writes the run to the ledger.
func (g *generation) record(ctx context.Context, dsn string, res *pipeline.Result) (store.Run, []store.StabilityIssue, error) {
	st, err := store.OpenDSN(ctx, dsn)
	if err != nil {
		return store.Run{}, nil, err
	}
	defer st.Close()

	opts := g.pipeline
	run := store.Run{
		Translator: ir.TranslatorName,
		Version:    ir.TranslatorVersion,
		IRVersion:  ir.IRVersion,
		Options: map[string]any{
			"output":                g.sink.Output,
			"tables":                opts.Tables.String(),
			"sample_tables":         opts.SampleTables,
			"workers":               opts.Workers,
			"newton_tolerance":      ir.FormatNum(opts.Scheme.Newton.Tolerance),
			"newton_max_iterations": opts.Scheme.Newton.MaxIterations,
		},
	}
	gens := make([]store.Generation, 0, len(res.Artifacts)+len(res.Failures))
	for _, a := range res.Artifacts {
		gens = append(gens, store.Generation{
			Model:       a.Model,
			Variant:     a.Variant,
			Status:      store.StatusOK,
			ClassName:   a.ClassName,
			ExportTag:   a.ExportTag,
			Fingerprint: a.Fingerprint,
			Hash:        a.Hash,
			Tables:      a.Tables,
			Columns:     a.Columns,
		})
	}
	for _, f := range res.Failures {
		gens = append(gens, store.Generation{
			Model:   f.Model,
			Variant: f.Variant,
			Status:  store.StatusFailed,
			Stage:   f.Stage,
			Error:   f.Err.Error(),
		})
	}
	return st.RecordRun(ctx, run, gens)
}

func writeGenerateText(w io.Writer, s GenerateSummary) {
	for _, a := range s.Artifacts {
		fmt.Fprintf(w, "✓ %s %s -> %s\n", a.Model, a.Variant, a.ClassName)
	}
	for _, f := range s.Failures {
		if f.Variant == "" {
			fmt.Fprintf(w, "✗ %s [%s]\n", f.Model, f.Stage)
		} else {
			fmt.Fprintf(w, "✗ %s %s [%s]\n", f.Model, f.Variant, f.Stage)
		}
		fmt.Fprintf(w, "  %s: %s\n", f.Code, f.Message)
	}
	for _, issue := range s.Issues {
		fmt.Fprintf(w, "! %s\n", issue.String())
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Generation Summary: %d generated, %d failed, %d files written to %s\n",
		len(s.Artifacts), len(s.Failures), len(s.Files), s.Output)
	if s.RunID != "" {
		fmt.Fprintf(w, "Run: %s\n", s.RunID)
	}
}
