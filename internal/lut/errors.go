package lut

import (
	"fmt"

	"github.com/roach88/cellc/internal/ir"
)

// OutOfRangeError reports a key value outside a table's domain.
type OutOfRangeError struct {
	Key   string
	Value float64
	Min   float64
	Max   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("%s outside lookup table range: %s not in [%s, %s]",
		e.Key, ir.FormatNum(e.Value), ir.FormatNum(e.Min), ir.FormatNum(e.Max))
}

// TableGenerationError reports a column that could not be sampled.
type TableGenerationError struct {
	Key    string
	Column string
	At     float64 // key value of the offending sample
	Misses int
	Reason string
}

func (e *TableGenerationError) Error() string {
	return fmt.Sprintf("lookup table on %s: column %s at %s: %s",
		e.Key, e.Column, ir.FormatNum(e.At), e.Reason)
}
