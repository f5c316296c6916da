// Package cell is the reference runtime for translated cell models.
//
// A Cell executes a scheme plan directly: the same stepping rules, Newton
// blocks, lookup tables and metadata the emitter renders as C++. It is
// used to check generated behaviour without a C++ toolchain and backs
// the simulate command.
//
// Cells are not safe for concurrent use. Lookup tables are shared
// between cells through a lut.Registry, which is.
package cell
