package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it wrote to
// stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// decode parses a JSON envelope and re-decodes its data into v.
func decode(t *testing.T, out string, v any) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	if v != nil && resp.Data != nil {
		data, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, v))
	}
	return resp
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// minimalModel wraps extra fields in a one-state model.
func minimalModel(extra string) string {
	return `
model: m: {
	time: {name: "env.time", units: "ms"}
	voltage: "mem.V"
	state: [{name: "mem.V", units: "mV", initial: 0, ode: "0"}]
	` + extra + `
}
`
}

// overflowModel tabulates a column that overflows inside its domain.
const overflowModel = `
model: overflow: {
	time: {name: "env.time", units: "ms"}
	voltage:     "mem.V"
	capacitance: "mem.Cm"
	units: {
		mS_per_cm2: [{units: "siemens", prefix: "milli"}, {units: "metre", prefix: "centi", exponent: -2}]
	}
	state: [
		{name: "mem.V", units: "mV", initial: -80, ode: "-i_ion / Cm"},
		{name: "g.y", units: "dimensionless", initial: 0.5, ode: "-big * y"},
	]
	parameters: [
		{name: "mem.Cm", units: "uF_per_cm2", value: 1},
		{name: "mem.g", units: "mS_per_cm2", value: 0.1},
	]
	equations: [
		{name: "mem.i_ion", units: "uA_per_cm2", rhs: "g * (V + 70) * g.y"},
		{name: "g.big", units: "dimensionless", rhs: "exp(mem.V * mem.V)"},
	]
	ionic_currents: ["mem.i_ion"]
	lookup_tables: [{key: "mem.V", min: -100, max: 100, step: 1}]
}
`
