package cell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// Options configures a cell.
type Options struct {
	// Dt is the fixed time step of non-adaptive schemes, and the maximum
	// step of the adaptive integrator.
	Dt float64
	// Level selects the lookup-table planning level of Opt variants.
	Level lut.Level
	// Tables shares lookup tables between cells. A private registry is
	// used when nil.
	Tables *lut.Registry
	// RelTol and AbsTol control the adaptive integrator.
	RelTol float64
	AbsTol float64
	// MaxSteps bounds adaptive steps per call.
	MaxSteps int
	Logger   *slog.Logger
}

// DefaultOptions returns the settings used by the simulate command.
func DefaultOptions() Options {
	return Options{
		Dt:       0.01,
		Level:    lut.LevelBasic,
		RelTol:   1e-5,
		AbsTol:   1e-7,
		MaxSteps: 1_000_000,
	}
}

type equation struct {
	slot int
	fn   evalFn
}

type column struct {
	slot  int
	table int
	col   int
}

type current struct {
	slot   int
	factor float64
}

// Cell runs one model variant.
type Cell struct {
	plan   *scheme.Plan
	model  *ir.Model
	tables *lut.Plan
	reg    *lut.Registry
	entry  *lut.Entry
	opts   Options
	log    *slog.Logger

	lay   *layout
	slots []float64

	y      []float64
	params []float64
	time   float64

	stateSlots []int
	paramSlots []int
	timeSlot   int
	expSlot    int
	stimSlot   int
	keySlots   []int

	eqs          []equation
	columns      []column
	derivs       []evalFn
	currents     []current
	derivedSlots []int
	steps        []stateStep
	blocks       []*newtonBlock
	jac          [][]evalFn

	// tableParams lists the parameters the tables are sampled with.
	tableParams []int

	voltage      int
	fixedVoltage bool
	stimulus     func(t float64) float64
	trace        *trace
	stats        IntegrationStats
}

// New compiles a scheme plan into a runnable cell at its initial
// conditions.
func New(p *scheme.Plan, opts Options) (*Cell, error) {
	def := DefaultOptions()
	if opts.Dt <= 0 {
		opts.Dt = def.Dt
	}
	if opts.Level == 0 {
		opts.Level = def.Level
	}
	if opts.RelTol <= 0 {
		opts.RelTol = def.RelTol
	}
	if opts.AbsTol <= 0 {
		opts.AbsTol = def.AbsTol
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = def.MaxSteps
	}
	if opts.Tables == nil {
		opts.Tables = lut.NewRegistry()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	m := p.Model
	c := &Cell{
		plan:     p,
		model:    m,
		reg:      opts.Tables,
		opts:     opts,
		log:      log.With("model", m.Name(), "variant", p.Variant.String()),
		lay:      newLayout(),
		expSlot:  -1,
		stimSlot: -1,
	}
	if p.Variant.Opt {
		c.tables = lut.Build(p, opts.Level)
	}
	if err := c.build(); err != nil {
		return nil, fmt.Errorf("model %s variant %s: %w", m.Name(), p.Variant, err)
	}
	c.ResetToInitialConditions()
	if err := c.bindTables(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cell) build() error {
	m, p := c.model, c.plan

	for i, s := range m.States() {
		c.stateSlots = append(c.stateSlots, c.lay.add(s.Name))
		if s.Name == m.Voltage() {
			c.voltage = i
		}
	}
	for _, v := range p.Parameters {
		c.paramSlots = append(c.paramSlots, c.lay.add(v.Name))
		c.params = append(c.params, v.Initial)
	}
	c.timeSlot = c.lay.add(m.Free())
	if p.ClampTerm != nil {
		c.expSlot = c.lay.add(scheme.ExperimentalVoltage)
	}

	eqs := m.Equations()
	for _, eq := range eqs {
		c.lay.add(eq.Target)
	}
	if c.tables != nil {
		for ti, t := range c.tables.Tables {
			c.keySlots = append(c.keySlots, c.lay.slots[t.Key])
			for ci, col := range t.Columns {
				c.columns = append(c.columns, column{slot: c.lay.add(col.Name), table: ti, col: ci})
			}
		}
		used := make(map[string]bool)
		for _, t := range c.tables.Tables {
			for _, col := range t.Columns {
				for _, name := range ir.FreeVars(col.Expr) {
					used[name] = true
				}
			}
		}
		for i, v := range p.Parameters {
			if used[v.Name] {
				c.tableParams = append(c.tableParams, i)
			}
		}
	}
	if s, ok := m.Stimulus(); ok {
		c.stimSlot = c.lay.slots[s.Variable]
	}

	for _, eq := range eqs {
		slot := c.lay.slots[eq.Target]
		if slot == c.stimSlot || (c.tables != nil && c.tables.IsColumn(eq.Target)) {
			continue
		}
		fn, err := c.compile(eq.RHS)
		if err != nil {
			return fmt.Errorf("%s: %w", eq.Target, err)
		}
		c.eqs = append(c.eqs, equation{slot: slot, fn: fn})
	}

	for _, s := range m.States() {
		fn, err := c.compile(p.Derivative(s.Name))
		if err != nil {
			return fmt.Errorf("d%s/dt: %w", s.Name, err)
		}
		c.derivs = append(c.derivs, fn)
	}
	for _, ic := range m.IonicCurrents() {
		c.currents = append(c.currents, current{slot: c.lay.slots[ic.Name], factor: ic.Factor})
	}
	for _, d := range m.Derived() {
		c.derivedSlots = append(c.derivedSlots, c.lay.slots[d.Name])
	}

	if err := c.buildSteps(); err != nil {
		return err
	}
	for _, b := range p.Blocks {
		nb, err := c.newNewtonBlock(b)
		if err != nil {
			return err
		}
		c.blocks = append(c.blocks, nb)
	}
	if p.Jacobian != nil {
		c.jac = make([][]evalFn, len(p.Jacobian))
		for i, row := range p.Jacobian {
			c.jac[i] = make([]evalFn, len(row))
			for j, e := range row {
				if e == nil {
					continue
				}
				fn, err := c.compile(e)
				if err != nil {
					return fmt.Errorf("jacobian[%d][%d]: %w", i, j, err)
				}
				c.jac[i][j] = fn
			}
		}
	}

	c.slots = make([]float64, c.lay.size())
	for i, s := range c.paramSlots {
		c.slots[s] = c.params[i]
	}
	return nil
}

// compile rewrites e onto table columns, when the variant has tables,
// and compiles it.
func (c *Cell) compile(e ir.Expr) (evalFn, error) {
	if c.tables != nil {
		e = c.tables.Rewrite(e)
	}
	return c.lay.compile(e)
}

// bindTables selects the registry entry matching the current table
// parameters. Cells with equal parameters share one entry.
func (c *Cell) bindTables() error {
	if c.tables == nil || len(c.tables.Tables) == 0 {
		return nil
	}
	vals := make(map[string]float64, len(c.tableParams))
	var sb strings.Builder
	sb.WriteString(c.model.Fingerprint())
	sb.WriteString("/")
	sb.WriteString(c.plan.Variant.Suffix())
	sb.WriteString("/")
	sb.WriteString(c.opts.Level.String())
	for _, i := range c.tableParams {
		name := c.plan.Parameters[i].Name
		vals[name] = c.params[i]
		fmt.Fprintf(&sb, "/%s=%s", name, ir.FormatNum(c.params[i]))
	}
	id := sb.String()
	e := c.reg.Entry(id, c.tables, func() map[string]float64 { return vals })
	if _, err := e.Load(context.Background()); err != nil {
		return err
	}
	c.entry = e
	c.log.Debug("lookup tables bound", "tables", len(c.tables.Tables), "builds", c.entry.Builds())
	return nil
}

// refresh loads y and t into the slots and evaluates every algebraic
// quantity.
func (c *Cell) refresh(t float64, y []float64) error {
	s := c.slots
	for i, slot := range c.stateSlots {
		s[slot] = y[i]
	}
	s[c.timeSlot] = t
	if c.expSlot >= 0 {
		v := y[c.voltage]
		if c.trace != nil {
			v = c.trace.at(t)
		}
		s[c.expSlot] = v
	}
	if c.stimSlot >= 0 {
		v := 0.0
		if c.stimulus != nil {
			v = c.stimulus(t)
		}
		s[c.stimSlot] = v
	}
	if c.entry != nil {
		set, err := c.entry.Load(context.Background())
		if err != nil {
			return err
		}
		for ti := range c.keySlots {
			if err := c.lookup(set, ti); err != nil {
				return c.fail(CodeLookupOutOfRange, t, y, "lookup table key out of range", err)
			}
		}
	}
	for _, eq := range c.eqs {
		s[eq.slot] = eq.fn(s)
	}
	return nil
}

// lookup interpolates every column of table ti at the value in its key
// slot.
func (c *Cell) lookup(set *lut.Set, ti int) error {
	tbl := set.Table(ti)
	cu, err := tbl.Lookup(c.slots[c.keySlots[ti]])
	if err != nil {
		return err
	}
	for _, col := range c.columns {
		if col.table == ti {
			c.slots[col.slot] = tbl.Value(cu, col.col)
		}
	}
	return nil
}

func (c *Cell) fail(code string, t float64, y []float64, msg string, err error) *RuntimeError {
	return &RuntimeError{
		Code:    code,
		Model:   c.model.Name(),
		Time:    t,
		Message: msg,
		States:  c.dump(y),
		Err:     err,
	}
}

func (c *Cell) dump(y []float64) []StateValue {
	states := c.model.States()
	out := make([]StateValue, len(states))
	for i, s := range states {
		out[i] = StateValue{Name: s.Name, Value: y[i]}
	}
	return out
}

// Plan returns the plan the cell executes.
func (c *Cell) Plan() *scheme.Plan { return c.plan }

// Tables returns the lookup-table plan, nil for non-Opt variants.
func (c *Cell) Tables() *lut.Plan { return c.tables }

// TableEntry returns the registry entry the cell reads tables from.
func (c *Cell) TableEntry() *lut.Entry { return c.entry }

// Time returns the time the state vector corresponds to.
func (c *Cell) Time() float64 { return c.time }

// StateVariables returns a copy of the state vector.
func (c *Cell) StateVariables() []float64 { return append([]float64(nil), c.y...) }

// SetStateVariables replaces the state vector.
func (c *Cell) SetStateVariables(y []float64) error {
	if len(y) != len(c.y) {
		return fmt.Errorf("state vector has %d entries, want %d", len(y), len(c.y))
	}
	copy(c.y, y)
	return nil
}

// StateVariable returns one state by name.
func (c *Cell) StateVariable(name string) (float64, error) {
	v, ok := c.model.Var(name)
	if !ok || v.Kind != ir.KindState {
		return 0, fmt.Errorf("no state variable %s", name)
	}
	return c.y[v.Index], nil
}

// SetStateVariable sets one state by name.
func (c *Cell) SetStateVariable(name string, value float64) error {
	v, ok := c.model.Var(name)
	if !ok || v.Kind != ir.KindState {
		return fmt.Errorf("no state variable %s", name)
	}
	c.y[v.Index] = value
	return nil
}

// Voltage returns the transmembrane potential.
func (c *Cell) Voltage() float64 { return c.y[c.voltage] }

// SetVoltage sets the transmembrane potential.
func (c *Cell) SetVoltage(v float64) { c.y[c.voltage] = v }

// ResetToInitialConditions restores the model's initial state and time
// zero.
func (c *Cell) ResetToInitialConditions() {
	states := c.model.States()
	c.y = make([]float64, len(states))
	for i, s := range states {
		c.y[i] = s.Initial
	}
	c.time = 0
}

// Parameter returns a parameter value by name.
func (c *Cell) Parameter(name string) (float64, error) {
	i, err := c.paramIndex(name)
	if err != nil {
		return 0, err
	}
	return c.params[i], nil
}

// SetParameter sets a parameter. When the parameter feeds a lookup
// table the cell moves to tables sampled with the new value; if they
// cannot be sampled the old value is kept.
func (c *Cell) SetParameter(name string, value float64) error {
	i, err := c.paramIndex(name)
	if err != nil {
		return err
	}
	old := c.params[i]
	c.params[i] = value
	c.slots[c.paramSlots[i]] = value
	for _, tp := range c.tableParams {
		if tp != i {
			continue
		}
		if err := c.bindTables(); err != nil {
			c.params[i] = old
			c.slots[c.paramSlots[i]] = old
			return err
		}
		return nil
	}
	return nil
}

func (c *Cell) paramIndex(name string) (int, error) {
	for i, v := range c.plan.Parameters {
		if v.Name == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no parameter %s", name)
}

// SetFixedVoltage holds the voltage constant while other states evolve.
func (c *Cell) SetFixedVoltage(fixed bool) { c.fixedVoltage = fixed }

// SetStimulus installs a stimulus function of time for the model's
// stimulus variable. nil removes it.
func (c *Cell) SetStimulus(fn func(t float64) float64) { c.stimulus = fn }

// UseCellMLDefaultStimulus installs the regular stimulus described by
// the model.
func (c *Cell) UseCellMLDefaultStimulus() error {
	s, ok := c.model.Stimulus()
	if !ok {
		return fmt.Errorf("model %s has no default stimulus", c.model.Name())
	}
	c.stimulus = func(t float64) float64 {
		if s.Active(t) {
			return s.Amplitude
		}
		return 0
	}
	return nil
}

// SetExperimentalVoltage installs the voltage trace data clamp compares
// against. times must be increasing.
func (c *Cell) SetExperimentalVoltage(times, values []float64) error {
	if c.expSlot < 0 {
		return errors.New("variant has no data clamp")
	}
	if len(times) == 0 || len(times) != len(values) {
		return errors.New("experimental trace needs equal, non-zero numbers of times and values")
	}
	if !sort.Float64sAreSorted(times) {
		return errors.New("experimental trace times must be increasing")
	}
	c.trace = &trace{times: append([]float64(nil), times...), values: append([]float64(nil), values...)}
	return nil
}

// TurnOnDataClamp sets the clamp conductance.
func (c *Cell) TurnOnDataClamp(conductance float64) error {
	if c.expSlot < 0 {
		return errors.New("variant has no data clamp")
	}
	return c.SetParameter(scheme.DataClampParameter, conductance)
}

// TurnOffDataClamp sets the clamp conductance to zero.
func (c *Cell) TurnOffDataClamp() error { return c.TurnOnDataClamp(0) }

// GetIIonic returns the total ionic current in uA_per_cm2 for y, or for
// the cell's own state when y is nil. The stimulus is not included.
func (c *Cell) GetIIonic(y []float64) (float64, error) {
	if y == nil {
		y = c.y
	}
	if err := c.refresh(c.time, y); err != nil {
		return math.NaN(), err
	}
	total := 0.0
	for _, ic := range c.currents {
		total += ic.factor * c.slots[ic.slot]
	}
	if math.IsNaN(total) {
		return total, c.fail(CodeIIonicNaN, c.time, y, "ionic current is not a number", nil)
	}
	return total, nil
}

// EvaluateYDerivatives computes dy/dt at (t, y) into dy.
func (c *Cell) EvaluateYDerivatives(t float64, y, dy []float64) error {
	if err := c.refresh(t, y); err != nil {
		return err
	}
	c.derivatives(dy)
	return nil
}

// derivatives reads the derivatives from freshly refreshed slots.
func (c *Cell) derivatives(dy []float64) {
	for i, f := range c.derivs {
		dy[i] = f(c.slots)
	}
	if c.fixedVoltage {
		dy[c.voltage] = 0
	}
}

// ComputeDerivedQuantities returns the derived quantities at (t, y) in
// derived-index order.
func (c *Cell) ComputeDerivedQuantities(t float64, y []float64) ([]float64, error) {
	if y == nil {
		y = c.y
	}
	if err := c.refresh(t, y); err != nil {
		return nil, err
	}
	out := make([]float64, len(c.derivedSlots))
	for i, slot := range c.derivedSlots {
		out[i] = c.slots[slot]
	}
	return out, nil
}

// trace is a piecewise linear experimental voltage, held constant
// beyond its ends.
type trace struct {
	times  []float64
	values []float64
}

func (tr *trace) at(t float64) float64 {
	n := len(tr.times)
	if t <= tr.times[0] {
		return tr.values[0]
	}
	if t >= tr.times[n-1] {
		return tr.values[n-1]
	}
	i := sort.SearchFloat64s(tr.times, t)
	t0, t1 := tr.times[i-1], tr.times[i]
	v0, v1 := tr.values[i-1], tr.values[i]
	return v0 + (v1-v0)*(t-t0)/(t1-t0)
}
