package cli

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/cellc/internal/cell"
	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/emit"
	"github.com/roach88/cellc/internal/harness"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/pipeline"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/internal/store"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Validation or check failure, failed generations
	ExitCommandError = 2 // Command error (bad flags, missing models, unreachable ledger)
)

// Error codes reported in CLIError.Code.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeParse       = "E002" // model source does not compile
	ErrCodeNoModels    = "E003"
	ErrCodeLoad        = "E004"
	ErrCodeNotFound    = "E005"
	ErrCodeSelection   = "E006" // variant cannot be applied to the model
	ErrCodeWrite       = "E007" // artifact sink write failed
	ErrCodeLedger      = "E008"
	ErrCodeTables      = "E009"
	ErrCodeEmit        = "E010"
	ErrCodeExportTag   = "E011"
	ErrCodeRuntime     = "E012"
	ErrCodeUnresolved  = "E013"
	ErrCodeUnknownUnit = "E014"
	ErrCodeUsage       = "E015"
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether a command already wrote err to its output.
// Commands return an ExitError after reporting; anything else comes from
// flag parsing or argument checks and has not been shown yet.
func Reported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr)
}

// codedError pins an error code on failures whose type carries none,
// such as sink and ledger I/O.
type codedError struct {
	code string
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

// ErrorCode maps an error to its stable code. The most specific error
// in the chain wins, so a compile error inside a load error reports
// the compile code.
func ErrorCode(err error) string {
	var (
		coded      *codedError
		unresolved *compiler.UnresolvedDependencyError
		unit       *compiler.UnknownUnitError
		compile    *compiler.CompileError
		selection  *scheme.SelectionError
		table      *lut.TableGenerationError
		emitErr    *emit.EmitError
		dup        *pipeline.DuplicateExportTagError
		runtime    *cell.RuntimeError
		scenario   *harness.ScenarioNotFoundError
		load       *pipeline.LoadError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &coded):
		return coded.code
	case errors.As(err, &unresolved):
		return ErrCodeUnresolved
	case errors.As(err, &unit):
		return ErrCodeUnknownUnit
	case errors.As(err, &compile):
		return ErrCodeParse
	case errors.Is(err, pipeline.ErrNoModels):
		return ErrCodeNoModels
	case errors.As(err, &selection):
		return ErrCodeSelection
	case errors.As(err, &table):
		return ErrCodeTables
	case errors.As(err, &emitErr):
		return ErrCodeEmit
	case errors.As(err, &dup):
		return ErrCodeExportTag
	case errors.As(err, &runtime):
		return ErrCodeRuntime
	case errors.As(err, &scenario),
		errors.Is(err, store.ErrRunNotFound),
		errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case errors.As(err, &load):
		return ErrCodeLoad
	default:
		return ErrCodeGeneric
	}
}
