package pipeline

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/cellc/internal/compiler"
	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/models"
)

// ErrNoModels is returned for a file or directory declaring no model.
var ErrNoModels = errors.New("no models found")

// LoadModels resolves a model reference. A reference is the name of a
// bundled model, a .cue file, or a directory holding one CUE package.
func LoadModels(ref string) ([]*ir.Model, error) {
	if slices.Contains(models.Names(), ref) {
		m, err := models.Load(ref)
		if err != nil {
			return nil, &LoadError{Ref: ref, Err: err}
		}
		return []*ir.Model{m}, nil
	}

	info, err := os.Stat(ref)
	if err != nil {
		return nil, &LoadError{Ref: ref, Err: err}
	}
	var v cue.Value
	if info.IsDir() {
		v, err = buildDir(ref)
	} else {
		v, err = buildFile(ref)
	}
	if err != nil {
		return nil, &LoadError{Ref: ref, Err: err}
	}
	ms, err := compiler.CompileModels(v)
	if err != nil {
		return nil, &LoadError{Ref: ref, Err: err}
	}
	if len(ms) == 0 {
		return nil, &LoadError{Ref: ref, Err: ErrNoModels}
	}
	return ms, nil
}

// LoadModel resolves a reference that must name exactly one model. A
// reference of the form path#name picks one model out of a file.
func LoadModel(ref string) (*ir.Model, error) {
	path, name := ref, ""
	if i := lastHash(ref); i >= 0 {
		path, name = ref[:i], ref[i+1:]
	}
	ms, err := LoadModels(path)
	if err != nil {
		return nil, err
	}
	if name == "" {
		if len(ms) != 1 {
			return nil, &LoadError{Ref: ref, Err: fmt.Errorf("%d models found, pick one with %s#<name>", len(ms), path)}
		}
		return ms[0], nil
	}
	for _, m := range ms {
		if m.Name() == name {
			return m, nil
		}
	}
	return nil, &LoadError{Ref: ref, Err: fmt.Errorf("model %q not found", name)}
}

func lastHash(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch {
		case s[i] == '#':
			return i
		case s[i] == '/' || s[i] == filepath.Separator:
			return -1
		}
	}
	return -1
}

func buildFile(path string) (cue.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, err
	}
	v := cuecontext.New().CompileBytes(data, cue.Filename(path))
	return v, v.Err()
}

func buildDir(dir string) (cue.Value, error) {
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return cue.Value{}, errors.New("no CUE instances loaded")
	}
	inst := instances[0]
	if inst.Err != nil {
		return cue.Value{}, fmt.Errorf("loading CUE files: %w", inst.Err)
	}
	v := cuecontext.New().BuildInstance(inst)
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("building CUE value: %w", err)
	}
	return v, nil
}
