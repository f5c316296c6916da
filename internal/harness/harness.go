package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/cellc/internal/cell"
	"github.com/roach88/cellc/internal/classify"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
)

// Options configures a Harness.
type Options struct {
	// Scheme configures scheme selection for every cell.
	Scheme scheme.Options

	// Tables is shared by the cells of one run. A fresh registry is used
	// per scenario when nil.
	Tables *lut.Registry

	Logger *slog.Logger
}

// DefaultOptions returns the settings used by the check command.
func DefaultOptions() Options {
	return Options{Scheme: scheme.DefaultOptions()}
}

// Harness runs conformance scenarios against the pipeline and the
// reference runtime.
type Harness struct {
	opts   Options
	logger *slog.Logger
}

// New creates a harness.
func New(opts Options) *Harness {
	if opts.Scheme.Newton.MaxIterations == 0 {
		opts.Scheme = scheme.DefaultOptions()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Harness{opts: opts, logger: logger}
}

// Run executes a scenario. Failed checks are recorded in the result; an
// error means the scenario could not run at all.
func (h *Harness) Run(ctx context.Context, s *Scenario) (*Result, error) {
	m, err := pipeline.LoadModel(s.Model)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	env := &runEnv{
		h:      h,
		model:  m,
		class:  classify.Classify(m),
		tables: h.opts.Tables,
	}
	if env.tables == nil {
		env.tables = lut.NewRegistry()
	}
	log := h.logger.With("scenario", s.Name, "model", m.Name())

	result := NewResult(s.Name, m.Name())
	for i, c := range s.Checks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, cr := range env.run(ctx, c) {
			if cr.Pass {
				log.Debug("check passed", "check", cr.Check, "variant", cr.Variant, "index", i)
			} else {
				log.Warn("check failed", "check", cr.Check, "variant", cr.Variant, "index", i, "error", cr.Message)
			}
			result.Add(cr)
		}
	}
	log.Info("scenario finished", "pass", result.Pass, "checks", len(result.Checks))
	return result, nil
}

// Run executes a scenario with default options.
func Run(ctx context.Context, s *Scenario) (*Result, error) {
	return New(DefaultOptions()).Run(ctx, s)
}

// runEnv is the state shared by the checks of one scenario.
type runEnv struct {
	h      *Harness
	model  *ir.Model
	class  *classify.Result
	tables *lut.Registry
}

func (e *runEnv) plan(variant string) (*scheme.Plan, error) {
	v, err := scheme.ParseVariant(variant)
	if err != nil {
		return nil, err
	}
	return scheme.Select(e.class, v, e.h.opts.Scheme)
}

// cell builds a cell of the variant at its initial conditions, with the
// state overrides applied.
func (e *runEnv) cell(variant string, dt float64, state map[string]float64) (*cell.Cell, error) {
	p, err := e.plan(variant)
	if err != nil {
		return nil, err
	}
	c, err := cell.New(p, cell.Options{Dt: dt, Tables: e.tables, Logger: e.h.logger})
	if err != nil {
		return nil, err
	}
	for _, name := range sortedKeys(state) {
		if err := c.SetStateVariable(name, state[name]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (e *runEnv) run(ctx context.Context, c Check) []CheckResult {
	switch c.Type {
	case CheckIndexConsistency:
		return e.eachVariant(c, func(v string) CheckResult { return e.indexConsistency(ctx, v) })
	case CheckIIonic:
		return e.iionic(c)
	case CheckDerivatives:
		return e.derivatives(c)
	case CheckFixedPoint:
		return e.eachVariant(c, func(v string) CheckResult { return e.fixedPoint(c, v) })
	case CheckClosedForm:
		return e.eachVariant(c, func(v string) CheckResult { return e.closedForm(c, v) })
	case CheckTableMisses:
		return []CheckResult{e.tableMisses(ctx, c)}
	}
	return []CheckResult{{Check: c.Type, Message: "unknown check type"}}
}

func (e *runEnv) eachVariant(c Check, fn func(variant string) CheckResult) []CheckResult {
	out := make([]CheckResult, 0, len(c.Variants))
	for _, v := range c.Variants {
		cr := fn(v)
		cr.Check = c.Type
		cr.Variant = variantName(v)
		out = append(out, cr)
	}
	return out
}

// variantName normalises a variant name to its canonical spelling.
func variantName(s string) string {
	v, err := scheme.ParseVariant(s)
	if err != nil {
		return s
	}
	return v.String()
}
