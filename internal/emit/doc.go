// Package emit renders a scheme plan, and its lookup-table plan for Opt
// variants, as a C++ cardiac cell class: a header and a source file.
//
// Output is a pure function of the model, the variant and the options;
// it carries no timestamps so that regenerating an unchanged model
// yields byte-identical files.
package emit
