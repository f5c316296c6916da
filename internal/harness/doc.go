// Package harness runs conformance scenarios against the translator
// and the reference runtime.
//
// A scenario names one model and a list of checks, each run against one
// or more variants:
//
//	name: hodgkin_huxley_iionic
//	description: GetIIonic agrees across numerical shapes
//	model: hodgkin_huxley_1952
//	checks:
//	  - type: iionic
//	    variants: [Normal, Opt, RushLarsen, GRL2Opt, Cvode]
//	    expect: 0.60076875
//	    tolerance: 1e-9
//
// # Check Types
//
//   - index_consistency: generates the variant through the pipeline and
//     checks every literal index of the source against the model and the
//     metadata arrays against index order
//   - iionic: evaluates GetIIonic, against an expected value or an
//     expected runtime error code
//   - derivative_agreement: compares derivatives with a baseline variant
//   - fixed_point: starts gates at steady state under a held voltage and
//     checks a solve leaves them there
//   - closed_form: one step of dy/dt = -k*y must give y/(1+k*dt)
//   - table_misses: samples an unsafe column and counts patched samples
//
// Each scenario runs with its own lookup-table registry unless one is
// shared through Options. Reports written by Report hold check outcomes
// and exact facts only, so golden files do not depend on the platform's
// floating point.
//
// # Usage
//
//	scenarios, err := harness.Resolve(nil) // every bundled scenario
//	if err != nil {
//	    log.Fatal(err)
//	}
//	h := harness.New(harness.DefaultOptions())
//	for _, s := range scenarios {
//	    result, err := h.Run(ctx, s)
//	    ...
//	}
package harness
