package pipeline

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
	"github.com/roach88/cellc/models"
)

// Manifest describes a batch translation.
type Manifest struct {
	// Output is the directory artifacts are written to. Relative paths
	// are taken from the manifest location.
	Output string `yaml:"output,omitempty"`

	// Tables is the lookup-table level: basic or aggressive.
	Tables string `yaml:"tables,omitempty"`

	// SampleTables fills every table once at generation time.
	SampleTables bool `yaml:"sample_tables,omitempty"`

	// Workers bounds concurrent generations.
	Workers int `yaml:"workers,omitempty"`

	// Newton overrides the backward Euler iteration limits.
	Newton *ManifestNewton `yaml:"newton,omitempty"`

	Models []ManifestModel `yaml:"models"`
}

// ManifestNewton holds Newton overrides.
type ManifestNewton struct {
	Tolerance     float64 `yaml:"tolerance,omitempty"`
	MaxIterations int     `yaml:"max_iterations,omitempty"`
}

// ManifestModel is one model and the variants to render it in.
type ManifestModel struct {
	// Model is a bundled model name, a .cue file or a directory.
	Model string `yaml:"model"`

	// Variants are variant names such as Normal, BackwardEulerOpt or
	// AnalyticCvodeDataClamp. "all" expands to every variant.
	Variants []string `yaml:"variants"`
}

// VariantAll selects every variant.
const VariantAll = "all"

// LoadManifest reads a manifest file and resolves relative paths
// against its directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := ParseManifest(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	bundled := models.Names()
	for i, mm := range m.Models {
		if slices.Contains(bundled, mm.Model) || filepath.IsAbs(mm.Model) {
			continue
		}
		m.Models[i].Model = filepath.Join(base, mm.Model)
	}
	if localOutput(m.Output) && !filepath.IsAbs(m.Output) {
		m.Output = filepath.Join(base, m.Output)
	}
	return m, nil
}

// localOutput reports whether an output target is a directory rather
// than memory: or a URL.
func localOutput(target string) bool {
	return target != "" && target != "memory:" && !strings.Contains(target, "://")
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return &m, nil
}

func (m *Manifest) validate() error {
	if len(m.Models) == 0 {
		return fmt.Errorf("models list is required and must be non-empty")
	}
	if _, err := lut.ParseLevel(m.Tables); err != nil {
		return err
	}
	if m.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	for i, mm := range m.Models {
		if mm.Model == "" {
			return fmt.Errorf("models[%d]: model is required", i)
		}
		if len(mm.Variants) == 0 {
			return fmt.Errorf("models[%d]: variants list is required and must be non-empty", i)
		}
		if _, err := parseVariants(mm.Variants); err != nil {
			return fmt.Errorf("models[%d]: %w", i, err)
		}
	}
	return nil
}

func parseVariants(names []string) ([]scheme.Variant, error) {
	var out []scheme.Variant
	for _, n := range names {
		if n == VariantAll {
			out = append(out, scheme.AllVariants()...)
			continue
		}
		v, err := scheme.ParseVariant(n)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Options applies the manifest settings on top of base.
func (m *Manifest) Options(base Options) Options {
	level, _ := lut.ParseLevel(m.Tables)
	base.Tables = level
	base.SampleTables = base.SampleTables || m.SampleTables
	if m.Workers > 0 {
		base.Workers = m.Workers
	}
	if m.Newton != nil {
		if base.Scheme.Newton.MaxIterations == 0 {
			base.Scheme = scheme.DefaultOptions()
		}
		if m.Newton.Tolerance > 0 {
			base.Scheme.Newton.Tolerance = m.Newton.Tolerance
		}
		if m.Newton.MaxIterations > 0 {
			base.Scheme.Newton.MaxIterations = m.Newton.MaxIterations
		}
	}
	return base
}

// Tasks loads every model of the manifest and expands its variants.
// Models that fail to load are returned as load-stage failures so the
// rest of the batch can still run.
func (m *Manifest) Tasks() ([]Task, []*GenerationError) {
	var tasks []Task
	var failures []*GenerationError
	for _, mm := range m.Models {
		vs, _ := parseVariants(mm.Variants)
		ms, err := LoadModels(mm.Model)
		if err != nil {
			failures = append(failures, &GenerationError{Model: mm.Model, Stage: StageLoad, Err: err})
			continue
		}
		tasks = append(tasks, Tasks(ms, vs)...)
	}
	return tasks, failures
}
