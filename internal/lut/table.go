package lut

import "math"

// Table is an immutable sampled table. Row i holds every column at
// key = Min + i*Step.
type Table struct {
	Key     string
	Min     float64
	Max     float64
	Step    float64
	Columns []string

	rows  int
	width int
	data  []float64 // row-major
}

// NewTable wraps generated samples. data must hold rows*len(columns)
// values.
func NewTable(tp TablePlan, data []float64) *Table {
	names := make([]string, len(tp.Columns))
	for i, c := range tp.Columns {
		names[i] = c.Name
	}
	return &Table{
		Key:     tp.Key,
		Min:     tp.Min,
		Max:     tp.Upper(),
		Step:    tp.Step,
		Columns: names,
		rows:    tp.Rows(),
		width:   len(names),
		data:    data,
	}
}

// Rows returns the number of samples per column.
func (t *Table) Rows() int { return t.rows }

// Sample returns the stored value of a column at a row.
func (t *Table) Sample(row, col int) float64 { return t.data[row*t.width+col] }

// Cursor is the row and interpolation fraction of one key value. It is
// computed once per step and reused for every column.
type Cursor struct {
	Row  int
	Frac float64
}

// Lookup locates v. Values outside [Min, Max] are an error; Max is the
// last sampled key.
func (t *Table) Lookup(v float64) (Cursor, error) {
	if !(v >= t.Min && v <= t.Max) {
		return Cursor{}, &OutOfRangeError{Key: t.Key, Value: v, Min: t.Min, Max: t.Max}
	}
	offset := (v - t.Min) / t.Step
	row := int(offset)
	if row > t.rows-2 {
		row = t.rows - 2
	}
	if row < 0 {
		row = 0
	}
	return Cursor{Row: row, Frac: offset - float64(row)}, nil
}

// Value interpolates a column linearly at the cursor.
func (t *Table) Value(c Cursor, col int) float64 {
	i := c.Row*t.width + col
	y1 := t.data[i]
	if t.rows < 2 {
		return y1
	}
	y2 := t.data[i+t.width]
	return y1 + (y2-y1)*c.Frac
}

// At is Lookup followed by Value.
func (t *Table) At(v float64, col int) (float64, error) {
	c, err := t.Lookup(v)
	if err != nil {
		return math.NaN(), err
	}
	return t.Value(c, col), nil
}

// Set holds the tables of one plan.
type Set struct {
	Plan   *Plan
	Tables []*Table
	// Patched counts the samples filled in by neighbour averaging.
	Patched int
}

// Table returns the table at index i.
func (s *Set) Table(i int) *Table { return s.Tables[i] }
