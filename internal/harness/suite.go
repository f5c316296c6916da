package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/roach88/cellc/conformance"
)

// ScenarioNotFoundError is returned for a scenario reference that is
// neither a bundled scenario nor an existing path.
type ScenarioNotFoundError struct {
	Ref string
}

func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q is not bundled and does not exist", e.Ref)
}

// Bundled parses every scenario shipped with cellc.
func Bundled() ([]*Scenario, error) {
	names := conformance.Names()
	out := make([]*Scenario, 0, len(names))
	for _, name := range names {
		s, err := bundled(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func bundled(name string) (*Scenario, error) {
	data, err := conformance.Source(name)
	if err != nil {
		return nil, err
	}
	s, err := ParseScenario(data, "")
	if err != nil {
		return nil, fmt.Errorf("bundled scenario %s: %w", name, err)
	}
	return s, nil
}

// Resolve loads the scenarios named by refs. A reference is a bundled
// scenario name, a YAML file, or a directory whose *.yaml and *.yml
// files are loaded in name order. No references means every bundled
// scenario.
func Resolve(refs []string) ([]*Scenario, error) {
	if len(refs) == 0 {
		return Bundled()
	}
	var out []*Scenario
	for _, ref := range refs {
		ss, err := resolve(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, ss...)
	}
	return out, nil
}

func resolve(ref string) ([]*Scenario, error) {
	info, err := os.Stat(ref)
	if os.IsNotExist(err) {
		for _, name := range conformance.Names() {
			if name == ref {
				s, err := bundled(name)
				if err != nil {
					return nil, err
				}
				return []*Scenario{s}, nil
			}
		}
		return nil, &ScenarioNotFoundError{Ref: ref}
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		s, err := LoadScenario(ref)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ref, err)
		}
		return []*Scenario{s}, nil
	}

	entries, err := os.ReadDir(ref)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(ref, e.Name()))
	}
	sort.Strings(paths)
	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		out = append(out, s)
	}
	return out, nil
}
