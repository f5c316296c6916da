package pipeline

import (
	"errors"
	"fmt"
)

// Stage names, recorded on failures and in logs.
const (
	StageLoad     = "load"
	StageClassify = "classify"
	StageSelect   = "select"
	StageTables   = "tables"
	StageEmit     = "emit"
	StageExport   = "export"
)

// GenerationError is the failure of one task.
type GenerationError struct {
	Model   string
	Variant string
	Stage   string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Variant == "" {
		return fmt.Sprintf("%s [%s]: %v", e.Model, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s %s [%s]: %v", e.Model, e.Variant, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// LoadError reports a model reference that could not be read or
// compiled.
type LoadError struct {
	Ref string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Ref, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DuplicateExportTagError reports two artifacts of one run sharing a
// serialization key.
type DuplicateExportTagError struct {
	Tag   string
	First string // model and variant holding the tag first
}

func (e *DuplicateExportTagError) Error() string {
	return fmt.Sprintf("export tag %s already used by %s", e.Tag, e.First)
}

// FailedStage returns the stage of the first GenerationError in err's
// chain, or "" when there is none.
func FailedStage(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Stage
	}
	return ""
}
