// Package conformance bundles the conformance scenarios shipped with
// cellc. Each scenario is a YAML file run by the check command.
package conformance

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.yaml
var files embed.FS

// Names lists the bundled scenarios by file name without extension.
func Names() []string {
	entries, _ := fs.Glob(files, "*.yaml")
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = strings.TrimSuffix(e, ".yaml")
	}
	sort.Strings(out)
	return out
}

// Source returns the YAML text of a bundled scenario.
func Source(name string) ([]byte, error) {
	data, err := files.ReadFile(name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("unknown bundled scenario %q", name)
	}
	return data, nil
}
