// Package pipeline runs models through the translator stages and
// collects the generated artifacts.
//
// One task is one (model, variant) pair. Each task classifies its model,
// selects the scheme, plans lookup tables for optimised variants and
// renders the C++ class:
//
//	load -> classify -> select -> tables -> emit
//
// Run executes independent tasks concurrently. A failed task is recorded
// as a GenerationError naming its stage and never cancels its siblings.
// Batch runs are described by a YAML Manifest.
package pipeline
