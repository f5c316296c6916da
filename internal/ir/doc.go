// Package ir provides the model intermediate representation for cellc.
//
// This package contains the variable/equation graph of one cardiac cell
// model and the expression tree operations every later stage relies on.
// All other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - A Model is immutable once NewModel returns; later stages attach
//     annotations in their own side tables instead of editing it
//   - Index order of States, Parameters and Derived is fixed at build time
//     and is the single source of truth for every array-indexed access
//   - Expression trees are values: operations return new trees and never
//     modify their inputs
//   - Canonical keys (Expr.String) are deterministic so that planners can
//     use them as map keys across stages
package ir
