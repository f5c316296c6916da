package cell

import "math"

// AnalyticJacobian reports whether the variant carries analytic
// Jacobian entries.
func (c *Cell) AnalyticJacobian() bool { return c.jac != nil }

// EvaluateJacobian returns df_i/dy_j at (t, y). Analytic entries are
// used where the variant has them; the rest are differenced.
func (c *Cell) EvaluateJacobian(t float64, y []float64) ([][]float64, error) {
	n := len(y)
	f0 := make([]float64, n)
	if err := c.EvaluateYDerivatives(t, y, f0); err != nil {
		return nil, err
	}
	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, n)
	}
	numeric := make([]bool, n) // columns needing a difference
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if c.jac != nil && c.jac[i][j] != nil {
				out[i][j] = c.jac[i][j](c.slots)
			} else {
				numeric[j] = true
			}
		}
	}
	if c.fixedVoltage {
		for j := range out[c.voltage] {
			out[c.voltage][j] = 0
		}
	}

	bumped := append([]float64(nil), y...)
	f1 := make([]float64, n)
	for j := 0; j < n; j++ {
		if !numeric[j] {
			continue
		}
		h := c.plan.Options.Delta * math.Max(1, math.Abs(y[j]))
		bumped[j] = y[j] + h
		if err := c.EvaluateYDerivatives(t, bumped, f1); err != nil {
			return nil, err
		}
		bumped[j] = y[j]
		for i := 0; i < n; i++ {
			if c.jac == nil || c.jac[i][j] == nil {
				out[i][j] = (f1[i] - f0[i]) / h
			}
		}
	}
	return out, nil
}
