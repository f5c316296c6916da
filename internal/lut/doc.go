// Package lut plans, generates and serves interpolated lookup tables.
//
// Planning picks the per-step sub-expressions that depend only on a key
// variable (usually the membrane voltage) and the parameters: whole
// intermediates that contain a transcendental function, plus embedded
// sub-expressions hoisted according to the optimisation level. Each key
// gets one table whose rows sample every column at min + i*step.
//
// Tables are immutable once generated. A Registry holds one snapshot per
// model variant, built lazily on first use and swapped atomically by
// Regenerate; Invalidate drops it so the next reader rebuilds.
package lut
