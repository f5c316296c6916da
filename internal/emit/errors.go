package emit

import "fmt"

// EmitError reports a plan that cannot be rendered.
type EmitError struct {
	Model   string
	Variant string
	Name    string // offending variable or method, if any
	Reason  string
}

func (e *EmitError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("emit %s (%s): %s: %s", e.Model, e.Variant, e.Name, e.Reason)
	}
	return fmt.Sprintf("emit %s (%s): %s", e.Model, e.Variant, e.Reason)
}
