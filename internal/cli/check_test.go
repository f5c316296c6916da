package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wrongCurrentScenario = `
name: linear_decay_wrong_current
description: Expects the wrong initial leak current.
model: linear_decay
checks:
  - type: iionic
    variants: [Normal]
    expect: 3
    tolerance: 1e-9
`

func TestCheckBundledScenarios(t *testing.T) {
	out, _, err := execute(t, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ hodgkin_huxley_iionic\n")
	assert.Contains(t, out, "✓ piecewise_misses\n")
	assert.Contains(t, out, "Check Summary: 8 passed, 0 failed, 8 total\n")
}

func TestCheckFilter(t *testing.T) {
	out, _, err := execute(t, "check", "--filter", "hodgkin_huxley_*")
	require.NoError(t, err)
	assert.Contains(t, out, "Check Summary: 5 passed, 0 failed, 5 total\n")
	assert.NotContains(t, out, "linear_decay")

	out, _, err = execute(t, "check", "--filter", "nothing_*")
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestCheckJSON(t *testing.T) {
	out, _, err := execute(t, "check", "linear_decay_backward_euler", "hodgkin_huxley_iionic", "--format", "json")
	require.NoError(t, err)

	var result CheckResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Passed)
	require.Len(t, result.Scenarios, 2)
	assert.Equal(t, "linear_decay_backward_euler", result.Scenarios[0].Name)
	assert.Positive(t, result.Scenarios[0].Checks)
}

func TestCheckFailingScenario(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "wrong.yaml", wrongCurrentScenario)

	out, _, err := execute(t, "check", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 scenario(s) failed", err.Error())
	assert.Contains(t, out, "✗ linear_decay_wrong_current\n")
	assert.Contains(t, out, "  iionic Normal: ")
	assert.Contains(t, out, "Check Summary: 0 passed, 1 failed, 1 total\n")

	out, _, err = execute(t, "check", filepath.Join(dir, "wrong.yaml"), "--format", "json")
	require.Error(t, err)
	var result CheckResult
	resp := decode(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 1, result.Failed)
}

func TestCheckGolden(t *testing.T) {
	golden := filepath.Join(t.TempDir(), "golden")
	const scenario = "linear_decay_backward_euler"

	_, _, err := execute(t, "check", scenario, "--golden", golden)
	require.NoError(t, err, "a missing golden file is not a failure")

	_, _, err = execute(t, "check", scenario, "--golden", golden, "--update")
	require.NoError(t, err)
	path := filepath.Join(golden, scenario+".golden")
	require.FileExists(t, path)

	_, _, err = execute(t, "check", scenario, "--golden", golden)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"pass":false}`), 0o644))
	out, _, err := execute(t, "check", scenario, "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "report does not match golden file")
}

func TestCheckCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"unknown scenario", []string{"check", "no_such_scenario"}, ErrCodeNotFound},
		{"update without golden", []string{"check", "--update"}, ErrCodeUsage},
		{"bad filter", []string{"check", "--filter", "["}, ErrCodeUsage},
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
