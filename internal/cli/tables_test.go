package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesHodgkinHuxley(t *testing.T) {
	out, _, err := execute(t, "tables", "hodgkin_huxley_1952")
	require.NoError(t, err)
	assert.Contains(t, out, "model hodgkin_huxley_squid_axon_model_1952_modified variant NormalOpt (basic)\n")
	assert.Contains(t, out, "table 0: membrane.V in [-250.0001, 549.9999] step 0.01, 80001 rows\n")
	assert.Contains(t, out, "  sodium_channel_m_gate.alpha_m")
	assert.NotContains(t, out, "sampled:")
}

func TestTablesJSON(t *testing.T) {
	out, _, err := execute(t, "tables", "hodgkin_huxley_1952", "--variant", "BackwardEulerOpt", "--sample", "--format", "json")
	require.NoError(t, err)

	var result TablesResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "BackwardEulerOpt", result.Variant)
	assert.Equal(t, "basic", result.Level)
	require.Len(t, result.Tables, 1)
	tbl := result.Tables[0]
	assert.Equal(t, "membrane.V", tbl.Key)
	assert.Equal(t, 80001, tbl.Rows)
	assert.Len(t, tbl.Columns, 6)
	assert.True(t, result.Sampled)
}

func TestTablesNoTables(t *testing.T) {
	out, _, err := execute(t, "tables", "linear_decay")
	require.NoError(t, err)
	assert.Contains(t, out, "no tables\n", "the leak current has no transcendental function")
}

func TestTablesErrors(t *testing.T) {
	overflow := writeFile(t, t.TempDir(), "overflow.cue", overflowModel)

	tests := []struct {
		name string
		args []string
		code string
	}{
		{"plain variant", []string{"tables", "hodgkin_huxley_1952", "--variant", "BackwardEuler"}, ErrCodeUsage},
		{"bad level", []string{"tables", "hodgkin_huxley_1952", "--level", "extreme"}, ErrCodeUsage},
		{"sampling overflow", []string{"tables", overflow, "--sample"}, ErrCodeTables},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
