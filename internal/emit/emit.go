package emit

import (
	"fmt"
	"strings"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// Options controls rendering.
type Options struct {
	// Translator and Version are recorded in the header comment.
	Translator string
	Version    string
}

// DefaultOptions stamps output with this translator's name and version.
func DefaultOptions() Options {
	return Options{Translator: ir.TranslatorName, Version: ir.TranslatorVersion}
}

// Output is one generated class.
type Output struct {
	ClassName string
	// ExportTag is the serialization key, unique across a batch.
	ExportTag string
	FileStem  string
	Header    string
	Source    string
}

// Generate renders sp as a C++ class. tables is the lookup-table plan of
// Opt variants and is ignored for the others.
func Generate(sp *scheme.Plan, tables *lut.Plan, opts Options) (*Output, error) {
	if opts.Translator == "" {
		opts = DefaultOptions()
	}
	m := sp.Model
	v := sp.Variant
	if !v.Opt {
		tables = nil
	} else if tables == nil {
		return nil, &EmitError{Model: m.Name(), Variant: v.String(), Reason: "optimised variant without a lookup-table plan"}
	}
	g := &generator{
		plan:   sp,
		model:  m,
		tables: tables,
		opts:   opts,
		class:  ClassName(m, v),
		time:   varName(m.Free()),
	}
	if err := g.check(); err != nil {
		return nil, err
	}
	g.voltage, _ = m.Var(m.Voltage())
	for _, b := range sp.Blocks {
		for k, s := range b.States {
			g.newton = append(g.newton, newtonState{name: s, index: b.Indices[k], block: b.ID, row: k})
		}
	}

	out := &Output{
		ClassName: g.class,
		ExportTag: g.class,
		FileStem:  FileStem(m, v),
		Header:    g.header(),
		Source:    g.source(),
	}
	if g.err != nil {
		return nil, g.err
	}
	return out, nil
}

// newtonState is one unknown of the joint backward Euler Newton system.
type newtonState struct {
	name  string
	index int // state vector index
	block int
	row   int // position within its block
}

type generator struct {
	plan    *scheme.Plan
	model   *ir.Model
	tables  *lut.Plan
	opts    Options
	class   string
	time    string
	voltage ir.Variable
	newton  []newtonState
	err     error
}

func (g *generator) fail(name, format string, args ...any) {
	if g.err != nil {
		return
	}
	g.err = &EmitError{
		Model:   g.model.Name(),
		Variant: g.plan.Variant.String(),
		Name:    name,
		Reason:  fmt.Sprintf(format, args...),
	}
}

// check rejects models whose names or indices cannot be rendered.
func (g *generator) check() error {
	for _, v := range g.model.Variables() {
		if !validIdent(v.Name) {
			g.fail(v.Name, "not a valid C++ identifier")
		}
	}
	for i, s := range g.model.States() {
		if s.Index != i {
			g.fail(s.Name, "state index %d out of order (want %d)", s.Index, i)
		}
	}
	for i, p := range g.plan.Parameters {
		if p.Index != i {
			g.fail(p.Name, "parameter index %d out of order (want %d)", p.Index, i)
		}
	}
	n := len(g.model.Derived())
	for _, d := range g.model.Derived() {
		if d.DerivedIndex < 0 || d.DerivedIndex >= n {
			g.fail(d.Name, "derived quantity index %d out of range", d.DerivedIndex)
		}
	}
	if len(g.plan.States) != len(g.model.States()) {
		g.fail("", "plan covers %d of %d states", len(g.plan.States), len(g.model.States()))
	}
	return g.err
}

// rewrite replaces tabulated sub-expressions by their columns.
func (g *generator) rewrite(e ir.Expr) ir.Expr {
	if g.tables == nil || e == nil {
		return e
	}
	return g.tables.Rewrite(e)
}

func (g *generator) tablesClass() string { return g.class + "LookupTables" }

// writer accumulates indented lines of C++.
type writer struct {
	sb    strings.Builder
	depth int
}

func (w *writer) line(format string, args ...any) {
	if format == "" {
		w.sb.WriteByte('\n')
		return
	}
	w.sb.WriteString(strings.Repeat("    ", w.depth))
	if len(args) > 0 {
		fmt.Fprintf(&w.sb, format, args...)
	} else {
		w.sb.WriteString(format)
	}
	w.sb.WriteByte('\n')
}

// open writes a line followed by an opening brace.
func (w *writer) open(format string, args ...any) {
	w.line(format, args...)
	w.line("{")
	w.depth++
}

// begin opens a bare block.
func (w *writer) begin() {
	w.line("{")
	w.depth++
}

func (w *writer) close(suffix string) {
	w.depth--
	w.line("}" + suffix)
}

func (w *writer) String() string { return w.sb.String() }
