package scheme

import "fmt"

// SelectionError reports a variant that cannot be planned for a model.
type SelectionError struct {
	Model   string
	Variant string
	State   string // empty when the whole variant is rejected
	Reason  string
}

func (e *SelectionError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("model %s variant %s: state %s: %s", e.Model, e.Variant, e.State, e.Reason)
	}
	return fmt.Sprintf("model %s variant %s: %s", e.Model, e.Variant, e.Reason)
}
