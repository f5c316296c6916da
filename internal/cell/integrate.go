package cell

import (
	"fmt"
	"math"
)

// Dormand–Prince 5(4) coefficients.
var (
	dpC = [7]float64{0, 1.0 / 5, 3.0 / 10, 4.0 / 5, 8.0 / 9, 1, 1}
	dpA = [7][6]float64{
		{},
		{1.0 / 5},
		{3.0 / 40, 9.0 / 40},
		{44.0 / 45, -56.0 / 15, 32.0 / 9},
		{19372.0 / 6561, -25360.0 / 2187, 64448.0 / 6561, -212.0 / 729},
		{9017.0 / 3168, -355.0 / 33, 46732.0 / 5247, 49.0 / 176, -5103.0 / 18656},
		{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84},
	}
	dpB = [7]float64{35.0 / 384, 0, 500.0 / 1113, 125.0 / 192, -2187.0 / 6784, 11.0 / 84, 0}
	// dpE is the difference between the 5th and 4th order weights.
	dpE = [7]float64{
		35.0/384 - 5179.0/57600, 0, 500.0/1113 - 7571.0/16695, 125.0/192 - 393.0/640,
		-2187.0/6784 + 92097.0/339200, 11.0/84 - 187.0/2100, -1.0 / 40,
	}
)

const dpOrder = 5

// IntegrationStats describes the last adaptive integration.
type IntegrationStats struct {
	Steps       int
	Rejected    int
	Evaluations int
	LastStep    float64
}

// LastIntegration returns statistics of the most recent adaptive call.
func (c *Cell) LastIntegration() IntegrationStats { return c.stats }

// integrate advances y from t to tEnd with an embedded Runge–Kutta
// method under error control. It stands in for CVODE.
func (c *Cell) integrate(t, tEnd float64, y []float64) error {
	n := len(y)
	var k [7][]float64
	for i := range k {
		k[i] = make([]float64, n)
	}
	tmp := make([]float64, n)
	stats := IntegrationStats{}
	defer func() { c.stats = stats }()

	eval := func(t float64, y, dy []float64) error {
		stats.Evaluations++
		return c.EvaluateYDerivatives(t, y, dy)
	}

	maxStep := math.Min(c.opts.Dt, tEnd-t)
	if maxStep <= 0 {
		return nil
	}
	if err := eval(t, y, k[0]); err != nil {
		return err
	}
	h := c.initialStep(y, k[0], maxStep)

	for t < tEnd {
		if stats.Steps >= c.opts.MaxSteps {
			return c.fail(CodeIntegrationFailed, t, y, "maximum step count exceeded", nil)
		}
		if t+h > tEnd {
			h = tEnd - t
		}
		stats.Steps++

		for s := 1; s < 7; s++ {
			for i := 0; i < n; i++ {
				acc := y[i]
				for j := 0; j < s; j++ {
					acc += h * dpA[s][j] * k[j][i]
				}
				tmp[i] = acc
			}
			if err := eval(t+dpC[s]*h, tmp, k[s]); err != nil {
				return err
			}
		}
		// Stage 7 is evaluated at the 5th order solution, held in tmp.

		errNorm := 0.0
		for i := 0; i < n; i++ {
			e := 0.0
			for s := 0; s < 7; s++ {
				e += h * dpE[s] * k[s][i]
			}
			sc := c.opts.AbsTol + c.opts.RelTol*math.Max(math.Abs(y[i]), math.Abs(tmp[i]))
			errNorm += (e / sc) * (e / sc)
		}
		errNorm = math.Sqrt(errNorm / float64(n))
		if math.IsNaN(errNorm) {
			return c.fail(CodeIntegrationFailed, t, y, "non-finite error estimate", nil)
		}

		factor := 0.9 * math.Pow(1e-10+errNorm, -1.0/dpOrder)
		next := h * math.Max(0.2, math.Min(factor, 5))

		if errNorm > 1 {
			stats.Rejected++
			if next < 1e-12 {
				return c.fail(CodeIntegrationFailed, t, y,
					fmt.Sprintf("step size %g too small", next), nil)
			}
			h = next
			continue
		}

		t += h
		copy(y, tmp)
		copy(k[0], k[6])
		stats.LastStep = h
		h = math.Min(next, maxStep)
	}
	return nil
}

// initialStep estimates a first step from the scale of y and dy.
func (c *Cell) initialStep(y, dy []float64, maxStep float64) float64 {
	d0, d1 := 0.0, 0.0
	for i := range y {
		sc := c.opts.AbsTol + c.opts.RelTol*math.Abs(y[i])
		d0 += (y[i] / sc) * (y[i] / sc)
		d1 += (dy[i] / sc) * (dy[i] / sc)
	}
	h := 1e-6
	if d0 > 1e-10 && d1 > 1e-10 {
		h = 0.01 * math.Sqrt(d0/d1)
	}
	return math.Min(h, maxStep)
}
