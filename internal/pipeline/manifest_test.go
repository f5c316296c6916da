package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "overflow.cue"), []byte(overflowModel), 0o644))
	manifest := `
output: out
tables: aggressive
workers: 3
newton:
  tolerance: 1e-10
models:
  - model: hodgkin_huxley_1952
    variants: [Normal, RushLarsenOpt]
  - model: overflow.cue
    variants: [BackwardEuler]
`
	path := filepath.Join(dir, "batch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "out"), m.Output)
	assert.Equal(t, models.HodgkinHuxley, m.Models[0].Model, "bundled names are not paths")
	assert.Equal(t, filepath.Join(dir, "overflow.cue"), m.Models[1].Model)

	opts := m.Options(DefaultOptions())
	assert.Equal(t, lut.LevelAggressive, opts.Tables)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, 1e-10, opts.Scheme.Newton.Tolerance)
	assert.Equal(t, scheme.DefaultOptions().Newton.MaxIterations, opts.Scheme.Newton.MaxIterations)

	tasks, failures := m.Tasks()
	assert.Empty(t, failures)
	require.Len(t, tasks, 3)
	assert.Equal(t, "RushLarsenOpt", tasks[1].Variant.String())
	assert.Equal(t, "overflow", tasks[2].Model.Name())

	res := Run(context.Background(), tasks, opts)
	require.NoError(t, res.Err())
	assert.Len(t, res.Artifacts, 3)
}

func TestLoadManifestRemoteOutput(t *testing.T) {
	dir := t.TempDir()
	for _, target := range []string{"s3://cells/build", "memory:"} {
		path := filepath.Join(dir, "batch.yaml")
		manifest := "output: \"" + target + "\"\nmodels:\n  - model: linear_decay\n    variants: [Normal]\n"
		require.NoError(t, os.WriteFile(path, []byte(manifest), 0o644))

		m, err := LoadManifest(path)
		require.NoError(t, err)
		assert.Equal(t, target, m.Output)
	}
}

func TestManifestAllVariants(t *testing.T) {
	m, err := ParseManifest([]byte("models:\n  - model: linear_decay\n    variants: [all]\n"))
	require.NoError(t, err)
	tasks, failures := m.Tasks()
	assert.Empty(t, failures)
	assert.Len(t, tasks, len(scheme.AllVariants()))
}

func TestManifestMissingModelIsLoadFailure(t *testing.T) {
	m, err := ParseManifest([]byte(`
models:
  - model: /nonexistent/model.cue
    variants: [Normal]
  - model: linear_decay
    variants: [Normal]
`))
	require.NoError(t, err)
	tasks, failures := m.Tasks()
	assert.Len(t, tasks, 1)
	require.Len(t, failures, 1)
	assert.Equal(t, StageLoad, failures[0].Stage)
	assert.ErrorIs(t, failures[0], os.ErrNotExist)
}

func TestParseManifestErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "modles: []\n", "field modles not found"},
		{"no models", "tables: basic\n", "models list is required"},
		{"no variants", "models:\n  - model: linear_decay\n", "variants list is required"},
		{"bad variant", "models:\n  - model: linear_decay\n    variants: [Sideways]\n", `unknown variant "Sideways"`},
		{"bad level", "tables: extreme\nmodels:\n  - model: linear_decay\n    variants: [Normal]\n", "unknown lookup table level"},
		{"empty model", "models:\n  - variants: [Normal]\n", "models[0]: model is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadModel(t *testing.T) {
	m, err := LoadModel(models.LinearDecay)
	require.NoError(t, err)
	assert.Equal(t, "linear_decay", m.Name())

	path := writeModel(t, overflowModel)
	m, err = LoadModel(path + "#overflow")
	require.NoError(t, err)
	assert.Equal(t, "overflow", m.Name())

	_, err = LoadModel(path + "#missing")
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Contains(t, err.Error(), `model "missing" not found`)

	_, err = LoadModel(filepath.Join(t.TempDir(), "absent.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadModelsDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.cue"), []byte("package m\n"+overflowModel), 0o644))
	ms, err := LoadModels(dir)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, "overflow", ms[0].Name())
}
