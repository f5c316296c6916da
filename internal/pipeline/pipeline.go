package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/emit"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// Observer receives stage timings and task outcomes.
type Observer interface {
	ObserveStage(stage string, d time.Duration)
	ObserveGeneration(variant string, err error)
	ObserveTables(tables, columns int)
}

type nopObserver struct{}

func (nopObserver) ObserveStage(string, time.Duration) {}
func (nopObserver) ObserveGeneration(string, error)   {}
func (nopObserver) ObserveTables(int, int)            {}

// Options configures a run.
type Options struct {
	Scheme scheme.Options
	// Tables is the lookup-table level of optimised variants.
	Tables lut.Level
	// SampleTables fills every planned table once with the default
	// parameters, so a singular column fails generation instead of the
	// first simulation.
	SampleTables bool
	Emit         emit.Options
	// Workers bounds the tasks running at once. Zero means GOMAXPROCS.
	Workers  int
	Logger   *slog.Logger
	Observer Observer
}

// DefaultOptions returns the settings used unless overridden.
func DefaultOptions() Options {
	return Options{
		Scheme: scheme.DefaultOptions(),
		Tables: lut.LevelBasic,
		Emit:   emit.DefaultOptions(),
	}
}

func (o Options) withDefaults() Options {
	if o.Scheme.Newton.MaxIterations == 0 {
		o.Scheme = scheme.DefaultOptions()
	}
	if o.Tables == 0 {
		o.Tables = lut.LevelBasic
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	return o
}

// Task is one model to render in one variant.
type Task struct {
	Model   *ir.Model
	Variant scheme.Variant
}

// Tasks pairs every model with every variant, models first.
func Tasks(ms []*ir.Model, vs []scheme.Variant) []Task {
	out := make([]Task, 0, len(ms)*len(vs))
	for _, m := range ms {
		for _, v := range vs {
			out = append(out, Task{Model: m, Variant: v})
		}
	}
	return out
}

// Artifact is one generated class with its provenance.
type Artifact struct {
	Model       string `json:"model"`
	Variant     string `json:"variant"`
	ClassName   string `json:"class_name"`
	ExportTag   string `json:"export_tag"`
	FileStem    string `json:"file_stem"`
	Fingerprint string `json:"fingerprint"`
	// Hash covers the class name and both files.
	Hash         string `json:"hash"`
	Tables       int    `json:"tables,omitempty"`
	Columns      int    `json:"columns,omitempty"`
	NewtonStates int    `json:"newton_states,omitempty"`
	Header       string `json:"-"`
	Source       string `json:"-"`
}

// HeaderName is the file name of the header.
func (a *Artifact) HeaderName() string { return a.FileStem + ".hpp" }

// SourceName is the file name of the implementation.
func (a *Artifact) SourceName() string { return a.FileStem + ".cpp" }

// Generate renders one task.
func Generate(ctx context.Context, t Task, opts Options) (*Artifact, error) {
	opts = opts.withDefaults()
	return generate(ctx, t, opts)
}

func generate(ctx context.Context, t Task, opts Options) (*Artifact, error) {
	m, v := t.Model, t.Variant
	fail := func(stage string, err error) error {
		return &GenerationError{Model: m.Name(), Variant: v.String(), Stage: stage, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, fail(StageLoad, err)
	}
	if err := v.Validate(); err != nil {
		return nil, fail(StageSelect, err)
	}

	start := time.Now()
	classes := classify.Classify(m)
	opts.Observer.ObserveStage(StageClassify, time.Since(start))

	start = time.Now()
	sp, err := scheme.Select(classes, v, opts.Scheme)
	opts.Observer.ObserveStage(StageSelect, time.Since(start))
	if err != nil {
		return nil, fail(StageSelect, err)
	}

	var tables *lut.Plan
	if v.Opt {
		start = time.Now()
		tables = lut.Build(sp, opts.Tables)
		if opts.SampleTables {
			if _, err := lut.Generate(ctx, tables, defaultParameters(m)); err != nil {
				opts.Observer.ObserveStage(StageTables, time.Since(start))
				return nil, fail(StageTables, err)
			}
		}
		opts.Observer.ObserveStage(StageTables, time.Since(start))
	}

	start = time.Now()
	out, err := emit.Generate(sp, tables, opts.Emit)
	opts.Observer.ObserveStage(StageEmit, time.Since(start))
	if err != nil {
		return nil, fail(StageEmit, err)
	}

	a := &Artifact{
		Model:       m.Name(),
		Variant:     v.String(),
		ClassName:   out.ClassName,
		ExportTag:   out.ExportTag,
		FileStem:    out.FileStem,
		Fingerprint: m.Fingerprint(),
		Hash:        ir.ArtifactHash(out.ClassName, out.Header, out.Source),
		Header:      out.Header,
		Source:      out.Source,
	}
	for _, b := range sp.Blocks {
		a.NewtonStates += len(b.States)
	}
	if tables != nil {
		a.Tables = len(tables.Tables)
		for _, tp := range tables.Tables {
			a.Columns += len(tp.Columns)
		}
		opts.Observer.ObserveTables(a.Tables, a.Columns)
	}
	return a, nil
}

func defaultParameters(m *ir.Model) map[string]float64 {
	ps := m.Parameters()
	out := make(map[string]float64, len(ps))
	for _, p := range ps {
		out[p.Name] = p.Initial
	}
	return out
}

// Result holds the outcome of a run. Artifacts keep task order.
type Result struct {
	Artifacts []*Artifact
	Failures  []*GenerationError
}

// OK reports whether every task succeeded.
func (r *Result) OK() bool { return len(r.Failures) == 0 }

// Err returns the failures joined, or nil.
func (r *Result) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%d of %d generations failed: %w", len(r.Failures), len(r.Failures)+len(r.Artifacts), r.Failures[0])
}

// Run executes the tasks concurrently. Every task runs to completion
// regardless of the others; only cancellation of ctx stops tasks that
// have not started.
func Run(ctx context.Context, tasks []Task, opts Options) *Result {
	opts = opts.withDefaults()
	log := opts.Logger

	artifacts := make([]*Artifact, len(tasks))
	failures := make([]*GenerationError, len(tasks))

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for i, t := range tasks {
		g.Go(func() error {
			log.Debug("generating", "model", t.Model.Name(), "variant", t.Variant.String())
			a, err := generate(ctx, t, opts)
			opts.Observer.ObserveGeneration(t.Variant.String(), err)
			if err != nil {
				var ge *GenerationError
				if !errors.As(err, &ge) {
					ge = &GenerationError{Model: t.Model.Name(), Variant: t.Variant.String(), Stage: StageEmit, Err: err}
				}
				log.Warn("generation failed", "model", ge.Model, "variant", ge.Variant, "stage", ge.Stage, "error", ge.Err)
				failures[i] = ge
				return nil
			}
			log.Info("generated", "model", a.Model, "variant", a.Variant, "class", a.ClassName)
			artifacts[i] = a
			return nil
		})
	}
	_ = g.Wait()

	res := &Result{}
	seen := make(map[string]*Artifact)
	for i := range tasks {
		if ge := failures[i]; ge != nil {
			res.Failures = append(res.Failures, ge)
			continue
		}
		a := artifacts[i]
		if first, ok := seen[a.ExportTag]; ok {
			ge := &GenerationError{
				Model:   a.Model,
				Variant: a.Variant,
				Stage:   StageExport,
				Err:     &DuplicateExportTagError{Tag: a.ExportTag, First: first.Model + " " + first.Variant},
			}
			log.Warn("generation failed", "model", ge.Model, "variant", ge.Variant, "stage", ge.Stage, "error", ge.Err)
			res.Failures = append(res.Failures, ge)
			continue
		}
		seen[a.ExportTag] = a
		res.Artifacts = append(res.Artifacts, a)
	}
	return res
}
