package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRunsManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "batch.yaml", `
output: out
tables: aggressive
models:
  - model: hodgkin_huxley_1952
    variants: [Normal, RushLarsenOpt]
  - model: missing.cue
    variants: [Normal]
`)

	out, _, err := execute(t, "batch", manifest)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err), "a model that fails to load fails the batch")
	assert.Contains(t, out, "✓ hodgkin_huxley_squid_axon_model_1952_modified RushLarsenOpt -> ")
	assert.Contains(t, out, "✗ "+filepath.Join(dir, "missing.cue")+" [load]")
	assert.Contains(t, out, ErrCodeNotFound)
	assert.Contains(t, out, "Generation Summary: 2 generated, 1 failed, 5 files written to "+filepath.Join(dir, "out"))

	entries, err := os.ReadDir(filepath.Join(dir, "out"))
	require.NoError(t, err)
	assert.Len(t, entries, 5, "the output is relative to the manifest")
}

func TestBatchOutputFlagOverridesManifest(t *testing.T) {
	dir := t.TempDir()
	manifest := writeFile(t, dir, "batch.yaml", `
output: out
models:
  - model: linear_decay
    variants: [all]
`)

	out, _, err := execute(t, "batch", manifest, "-o", "memory:", "--workers", "2", "--format", "json")
	require.NoError(t, err)

	var summary GenerateSummary
	resp := decode(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory:", summary.Output)
	assert.Len(t, summary.Artifacts, 20)
	assert.NoDirExists(t, filepath.Join(dir, "out"))
}

func TestBatchCommandErrors(t *testing.T) {
	dir := t.TempDir()
	noOutput := writeFile(t, dir, "no-output.yaml", "models:\n  - model: linear_decay\n    variants: [Normal]\n")
	invalid := writeFile(t, dir, "invalid.yaml", "models:\n  - model: linear_decay\n    variants: [Sideways]\n")

	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing manifest", filepath.Join(dir, "absent.yaml"), ErrCodeNotFound},
		{"no output", noOutput, ErrCodeUsage},
		{"invalid manifest", invalid, ErrCodeGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, _, err := execute(t, "batch", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, out, "Error ["+tt.code+"]")
		})
	}
}
