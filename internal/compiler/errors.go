package compiler

import (
	"errors"
	"fmt"
	"strings"

	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError represents a structural problem in a model file with its
// source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// UnresolvedDependencyError reports a reference to an undefined variable
// or a cycle among algebraic assignments.
type UnresolvedDependencyError struct {
	Model    string
	Variable string
	From     string   // equation holding the dangling reference
	Cycle    []string // closed path, first element repeated at the end
}

func (e *UnresolvedDependencyError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("model %s: circular definition of %s: %s",
			e.Model, e.Variable, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("model %s: %s references undefined variable %s", e.Model, e.From, e.Variable)
}

// UnknownUnitError reports a unit that is undefined or cannot be
// converted to the unit it is connected to.
type UnknownUnitError struct {
	Model    string
	Variable string
	Unit     string
	Target   string // conversion target, empty for plain lookups
	Reason   string
}

func (e *UnknownUnitError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("model %s: %s: cannot convert %s to %s: %s",
			e.Model, e.Variable, e.Unit, e.Target, e.Reason)
	}
	return fmt.Sprintf("model %s: %s: unit %s: %s", e.Model, e.Variable, e.Unit, e.Reason)
}

// IsUnresolvedDependency reports whether err is an UnresolvedDependencyError.
func IsUnresolvedDependency(err error) bool {
	var target *UnresolvedDependencyError
	return errors.As(err, &target)
}

// IsUnknownUnit reports whether err is an UnknownUnitError.
func IsUnknownUnit(err error) bool {
	var target *UnknownUnitError
	return errors.As(err, &target)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
