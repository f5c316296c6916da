package classify

import (
	"fmt"
	"strings"
)

// Report renders the classification as plain text: one line per state
// in index order, then one line per nonlinear block.
func Report(r *Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "model %s\n", r.Model.Name())
	for _, c := range r.States {
		fmt.Fprintf(&sb, "%d %s %s\n", c.Index, c.State, c)
	}
	for _, b := range r.Blocks {
		fmt.Fprintf(&sb, "block %d: %s\n", b.ID, strings.Join(b.States, ", "))
	}
	return sb.String()
}
