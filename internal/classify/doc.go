// Package classify tags every state derivative of a model as a gate, a
// derivative linear in its own state, or a nonlinear derivative.
//
// A derivative dy/dt = f is examined after inlining exactly those
// intermediates whose value depends on y, so every occurrence of y is
// visible. f is linear when its symbolic partial A = df/dy exists and is
// free of y; then f = A*y + B with B = f|y=0. Gates are linear
// derivatives written as alpha*(1-y) - beta*y or (inf-y)/tau. The
// voltage is never a gate, whatever its shape.
//
// Anything ambiguous is nonlinear: a branch condition on y, floor or ceil
// of y, a coefficient that still mentions y, or a failed numeric
// affinity check. Nonlinear states other than the voltage are grouped
// into blocks, the strongly connected components of their coupling
// graph, numbered with dependencies first.
package classify
