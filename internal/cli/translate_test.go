package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/artifact"
	"github.com/roach88/cellc/internal/store"
)

func TestTranslateToDirectory(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "translate", "linear_decay", "--variant", "Normal", "--variant", "BackwardEuler", "-o", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ linear_decay Normal -> ")
	assert.Contains(t, out, "✓ linear_decay BackwardEuler -> ")
	assert.Contains(t, out, "Generation Summary: 2 generated, 0 failed, 5 files written to "+dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "two header/source pairs and the index")

	sink, err := artifact.NewFilesystem(dir)
	require.NoError(t, err)
	index, err := artifact.ReadIndex(context.Background(), sink, "")
	require.NoError(t, err)
	require.Len(t, index, 2)
	assert.Equal(t, "Normal", index[0].Variant)
	assert.Equal(t, "BackwardEuler", index[1].Variant)
	for _, e := range index {
		assert.FileExists(t, filepath.Join(dir, e.HeaderFile))
		assert.FileExists(t, filepath.Join(dir, e.SourceFile))
	}
}

func TestTranslateJSON(t *testing.T) {
	out, _, err := execute(t, "translate", "hodgkin_huxley_1952", "--variant", "RushLarsenOpt", "-o", "memory:", "--format", "json")
	require.NoError(t, err)

	var summary GenerateSummary
	resp := decode(t, out, &summary)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "memory:", summary.Output)
	require.Len(t, summary.Artifacts, 1)
	a := summary.Artifacts[0]
	assert.Equal(t, "hodgkin_huxley_squid_axon_model_1952_modified", a.Model)
	assert.Equal(t, "RushLarsenOpt", a.Variant)
	assert.Equal(t, 1, a.Tables)
	assert.NotEmpty(t, a.Hash)
	assert.Len(t, summary.Files, 3)
	assert.Empty(t, summary.Failures)
}

func TestTranslateAllVariants(t *testing.T) {
	out, _, err := execute(t, "translate", "linear_decay", "--variant", "all", "--variant", "Normal", "-o", "memory:", "--format", "json")
	require.NoError(t, err)

	var summary GenerateSummary
	decode(t, out, &summary)
	assert.Len(t, summary.Artifacts, 20, "duplicates of all are dropped")
}

func TestTranslateReportsFailures(t *testing.T) {
	t.Run("duplicate export tag", func(t *testing.T) {
		out, _, err := execute(t, "translate", "linear_decay", "linear_decay", "-o", "memory:")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "✗ linear_decay Normal [export]")
		assert.Contains(t, out, ErrCodeExportTag)
		assert.Contains(t, out, "1 generated, 1 failed")
	})

	t.Run("table sampling", func(t *testing.T) {
		model := writeFile(t, t.TempDir(), "overflow.cue", overflowModel)
		out, _, err := execute(t, "translate", model, "--variant", "Normal", "--variant", "NormalOpt", "--sample-tables", "-o", "memory:", "--format", "json")
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))

		var summary GenerateSummary
		resp := decode(t, out, &summary)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeTables, resp.Error.Code)
		require.Len(t, summary.Artifacts, 1)
		assert.Equal(t, "Normal", summary.Artifacts[0].Variant)
		require.Len(t, summary.Failures, 1)
		assert.Equal(t, "tables", summary.Failures[0].Stage)
	})
}

func TestTranslateCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no output", []string{"translate", "linear_decay"}, ErrCodeUsage},
		{"bad variant", []string{"translate", "linear_decay", "--variant", "Sideways", "-o", "memory:"}, ErrCodeUsage},
		{"bad level", []string{"translate", "linear_decay", "--tables", "extreme", "-o", "memory:"}, ErrCodeUsage},
		{"missing model", []string{"translate", "/nonexistent/model.cue", "-o", "memory:"}, ErrCodeNotFound},
		{"s3 without bucket", []string{"translate", "linear_decay", "-o", "s3://"}, ErrCodeWrite},
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

func TestTranslateRecordsLedgerAndMetrics(t *testing.T) {
	dir := t.TempDir()
	ledger := filepath.Join(dir, "ledger.db")
	metricsFile := filepath.Join(dir, "cellc.prom")

	for range 2 {
		out, _, err := execute(t, "translate", "linear_decay", "--variant", "BackwardEulerOpt",
			"-o", filepath.Join(dir, "out"), "--ledger", ledger, "--metrics", metricsFile)
		require.NoError(t, err)
		assert.Contains(t, out, "Run: ")
		assert.NotContains(t, out, "! ", "regenerating unchanged input raises no stability issue")
	}

	st, err := store.Open(ledger)
	require.NoError(t, err)
	defer st.Close()
	runs, err := st.Runs(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].Succeeded)
	assert.Equal(t, "basic", runs[0].Options["tables"])

	metrics, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), `cellc_generations_total{outcome="ok",variant="BackwardEulerOpt"} 1`)
}

func TestTranslateLedgerFromEnvironment(t *testing.T) {
	ledger := filepath.Join(t.TempDir(), "ledger.db")
	t.Setenv(LedgerEnv, ledger)

	out, _, err := execute(t, "translate", "linear_decay", "-o", "memory:", "--format", "json")
	require.NoError(t, err)

	var summary GenerateSummary
	decode(t, out, &summary)
	assert.NotEmpty(t, summary.RunID)
	assert.FileExists(t, ledger)
}
