package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateCSV(t *testing.T) {
	out, _, err := execute(t, "simulate", "linear_decay", "--end", "1", "--sampling", "0.5")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "time,membrane.V,decay.y", lines[0])
	assert.Equal(t, "0,-60,1", lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "0.5,"), lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "1,"), lines[3])
}

func TestSimulateDerivedJSON(t *testing.T) {
	out, _, err := execute(t, "simulate", "linear_decay", "--variant", "BackwardEuler", "--end", "2", "--derived", "--format", "json")
	require.NoError(t, err)

	var result SimulateResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "BackwardEuler", result.Variant)
	assert.Equal(t, []string{"membrane.V", "decay.y"}, result.Names)
	assert.Equal(t, []float64{0, 1, 2}, result.Times)
	assert.Equal(t, []string{"membrane.i_leak"}, result.DerivedNames)
	require.Len(t, result.Derived, 3)
	assert.InDelta(t, 2.0, result.Derived[0][0], 1e-12, "g_leak * (V - E_leak) at the initial state")

	// The leak drives V towards E_leak and y decays.
	assert.Greater(t, result.States[0][0], result.States[2][0])
	assert.Less(t, result.States[2][1], 1.0)
}

func TestSimulateOverrides(t *testing.T) {
	out, _, err := execute(t, "simulate", "linear_decay", "--end", "1", "--param", "decay.k=0", "--state", "membrane.V=-80", "--format", "json")
	require.NoError(t, err)

	var result SimulateResult
	decode(t, out, &result)
	last := result.States[len(result.States)-1]
	assert.Equal(t, -80.0, last[0], "V starts at the reversal potential")
	assert.Equal(t, 1.0, last[1], "y does not decay with k = 0")
}

func TestSimulateFixedVoltage(t *testing.T) {
	out, _, err := execute(t, "simulate", "linear_decay", "--end", "1", "--fixed-voltage", "--format", "json")
	require.NoError(t, err)

	var result SimulateResult
	decode(t, out, &result)
	for _, y := range result.States {
		assert.Equal(t, -60.0, y[0])
	}
}

func TestSimulateClampTrace(t *testing.T) {
	trace := writeFile(t, t.TempDir(), "trace.csv", "time,voltage\n0,-60\n10,-60\n")
	out, _, err := execute(t, "simulate", "linear_decay", "--variant", "CvodeDataClamp", "--end", "1",
		"--clamp-trace", trace, "--clamp-conductance", "0")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "time,membrane.V,decay.y\n"))
}

func TestSimulateRuntimeError(t *testing.T) {
	out, _, err := execute(t, "simulate", "hodgkin_huxley_1952", "--variant", "NormalOpt", "--state", "membrane.V=600", "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result SimulateResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRuntime, resp.Error.Code)
	assert.Equal(t, "LOOKUP_OUT_OF_RANGE", resp.Error.Details)
	assert.Len(t, result.Times, 1, "only the initial state was recorded")
}

func TestSimulateRuntimeErrorText(t *testing.T) {
	out, errOut, err := execute(t, "simulate", "hodgkin_huxley_1952", "--variant", "NormalOpt", "--state", "membrane.V=600")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "time,membrane.V,")
	assert.Contains(t, errOut, "Error [E012]: ")
}

func TestSimulateUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"end before start", []string{"--start", "5", "--end", "1"}},
		{"unknown parameter", []string{"--param", "membrane.nope=1"}},
		{"parameter not a number", []string{"--param", "decay.k=fast"}},
		{"unknown state", []string{"--state", "decay.nope=1"}},
		{"bad variant", []string{"--variant", "Sideways"}},
		{"bad sampling", []string{"--sampling", "0"}},
		{"missing trace", []string{"--variant", "CvodeDataClamp", "--clamp-trace", "/nonexistent/trace.csv"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"simulate", "linear_decay"}, tt.args...)
			out, _, err := execute(t, args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+ErrCodeUsage+"]")
		})
	}
}
