package cli

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/models"
)

func TestValidateBundledModels(t *testing.T) {
	args := append([]string{"validate"}, models.Names()...)
	out, _, err := execute(t, args...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ hodgkin_huxley_squid_axon_model_1952_modified\n")
	assert.Contains(t, out, "✓ linear_decay\n")
	assert.Contains(t, out, "✓ All models valid\n")
}

func TestValidateJSON(t *testing.T) {
	out, _, err := execute(t, "validate", "linear_decay", "--format", "json")
	require.NoError(t, err)

	var result ValidationResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, result.Valid)
	require.Len(t, result.Models, 1)
	assert.Equal(t, "linear_decay", result.Models[0].Ref)
	assert.Empty(t, result.Models[0].Errors)
}

func TestValidateFindings(t *testing.T) {
	tests := []struct {
		name   string
		extra  string
		code   string
		field  string
		errors int
	}{
		{
			name:   "lint",
			extra:  `parameters: [{name: "mem.p", units: "mV", value: 1}]`,
			code:   compiler.ErrUnusedParameter,
			field:  "mem.p",
			errors: 2, // the unused parameter and the missing ionic currents
		},
		{
			name:   "unresolved dependency",
			extra:  `equations: [{name: "mem.a", units: "mV", rhs: "b + 1"}]`,
			code:   ErrCodeUnresolved,
			field:  "model",
			errors: 1,
		},
		{
			name:   "unknown unit",
			extra:  `parameters: [{name: "mem.p", units: "furlong", value: 1}]`,
			code:   ErrCodeUnknownUnit,
			field:  "model",
			errors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, t.TempDir(), "m.cue", minimalModel(tt.extra))

			out, _, err := execute(t, "validate", path, "--format", "json")
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var result ValidationResult
			resp := decode(t, out, &result)
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
			assert.False(t, result.Valid)
			require.Len(t, result.Models, 1)
			require.Len(t, result.Models[0].Errors, tt.errors)
			assert.Equal(t, tt.field, result.Models[0].Errors[0].Field)
		})
	}
}

func TestValidateTextFindings(t *testing.T) {
	path := writeFile(t, t.TempDir(), "m.cue", minimalModel(`parameters: [{name: "mem.p", units: "mV", value: 1}]`))

	out, _, err := execute(t, "validate", "linear_decay", path)
	require.Error(t, err)
	assert.Equal(t, "validation failed with 2 error(s)", err.Error())
	assert.Contains(t, out, "✓ linear_decay\n")
	assert.Contains(t, out, "✗ m\n")
	assert.Contains(t, out, "  E102: mem.p: parameter is not used by any equation\n")
	assert.NotContains(t, out, "All models valid")
}

func TestValidateMissingModel(t *testing.T) {
	out, _, err := execute(t, "validate", filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+ErrCodeNotFound+"]")
}
