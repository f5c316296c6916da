// Package models bundles the reference cell models shipped with cellc.
package models

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/ir"
)

//go:embed *.cue
var files embed.FS

// Names lists the bundled models by file name without extension.
func Names() []string {
	entries, _ := fs.Glob(files, "*.cue")
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = strings.TrimSuffix(e, ".cue")
	}
	sort.Strings(out)
	return out
}

// Source returns the CUE text of a bundled model.
func Source(name string) ([]byte, error) {
	data, err := files.ReadFile(name + ".cue")
	if err != nil {
		return nil, fmt.Errorf("unknown bundled model %q", name)
	}
	return data, nil
}

// Load compiles a bundled model.
func Load(name string) (*ir.Model, error) {
	data, err := Source(name)
	if err != nil {
		return nil, err
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(name+".cue"))
	ms, err := compiler.CompileModels(v)
	if err != nil {
		return nil, err
	}
	if len(ms) != 1 {
		return nil, fmt.Errorf("bundled model %s: want one model, got %d", name, len(ms))
	}
	return ms[0], nil
}

// MustLoad is like Load but panics on error. It is meant for tests.
func MustLoad(name string) *ir.Model {
	m, err := Load(name)
	if err != nil {
		panic(err)
	}
	return m
}

// Bundled model names.
const (
	HodgkinHuxley   = "hodgkin_huxley_1952"
	BeelerReuter    = "beeler_reuter_1977"
	LinearDecay     = "linear_decay"
	PiecewiseStress = "test_piecewise_be"
	Relaxation      = "test_relaxation"
)
