package emit

import (
	"fmt"
	"strings"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/scheme"
)

// base returns the framework class the cell derives from.
func (g *generator) base() string {
	v := g.plan.Variant
	switch v.Scheme {
	case scheme.BackwardEuler:
		return fmt.Sprintf("AbstractBackwardEulerCardiacCell<%d>", len(g.newton))
	case scheme.RushLarsen, scheme.RushLarsen2:
		return "AbstractRushLarsenCardiacCell"
	case scheme.GRL1, scheme.GRL2:
		return "AbstractGeneralizedRushLarsenCardiacCell"
	case scheme.Cvode:
		if v.DataClamp {
			return "AbstractCvodeCellWithDataClamp"
		}
		return "AbstractCvodeCell"
	default:
		return "AbstractCardiacCell"
	}
}

func (g *generator) baseHeader() string {
	b := g.base()
	if i := strings.IndexByte(b, '<'); i >= 0 {
		b = b[:i]
	}
	return b + ".hpp"
}

// provenance writes the comment block at the top of both files. It holds
// no timestamp, so unchanged input regenerates identical output.
func (g *generator) provenance(w *writer) {
	m := g.model
	mode := g.plan.Variant.String()
	if g.tables != nil {
		mode += " (lookup tables: " + g.tables.Level.String() + ")"
	}
	w.line("//! @file")
	w.line("//!")
	w.line("//! This source file was generated by %s %s.", g.opts.Translator, g.opts.Version)
	w.line("//!")
	w.line("//! Model: %s", m.Name())
	if m.Source() != "" {
		w.line("//! Source: %s", m.Source())
	}
	w.line("//! Fingerprint: %s", m.Fingerprint())
	w.line("//! IR version: %s", ir.IRVersion)
	w.line("//!")
	w.line("//! Processed by %s: generation mode %s", g.opts.Translator, mode)
	w.line("//! <autogenerated>")
	w.line("")
}

func (g *generator) header() string {
	w := &writer{}
	cvode := g.plan.Variant.Scheme == scheme.Cvode
	guard := guardName(g.class)
	w.line("#ifndef %s", guard)
	w.line("#define %s", guard)
	w.line("")
	g.provenance(w)
	if cvode {
		w.line("#ifdef CHASTE_CVODE")
	}
	w.line(`#include "ChasteSerialization.hpp"`)
	w.line("#include <boost/serialization/base_object.hpp>")
	w.line(`#include "AbstractStimulusFunction.hpp"`)
	w.line(`#include "RegularStimulus.hpp"`)
	w.line(`#include "%s"`, g.baseHeader())
	w.line("")

	base := g.base()
	w.line("class %s : public %s", g.class, base)
	w.line("{")
	w.depth++
	w.line("friend class boost::serialization::access;")
	w.line("template<class Archive>")
	w.open("void serialize(Archive & archive, const unsigned int version)")
	w.line("archive & boost::serialization::base_object<%s >(*this);", base)
	w.close("")
	w.line("")
	w.depth--
	w.line("public:")
	w.depth++
	w.line("%s(boost::shared_ptr<AbstractIvpOdeSolver> pOdeSolver, boost::shared_ptr<AbstractStimulusFunction> pIntracellularStimulus);", g.class)
	w.line("~%s();", g.class)
	var private []method
	for _, m := range g.methods() {
		if m.private {
			private = append(private, m)
			continue
		}
		w.line("%s", m.declaration())
	}
	if len(private) > 0 {
		w.depth--
		w.line("")
		w.line("private:")
		w.depth++
		for _, m := range private {
			w.line("%s", m.declaration())
		}
	}
	w.depth--
	w.line("};")
	w.line("")

	w.line("// Needs to be included last")
	w.line(`#include "SerializationExportWrapper.hpp"`)
	w.line("CHASTE_CLASS_EXPORT(%s)", g.class)
	w.line("")
	w.line("namespace boost")
	w.line("{")
	w.depth++
	w.line("namespace serialization")
	w.line("{")
	w.depth++
	w.line("template<class Archive>")
	w.open("inline void save_construct_data(Archive & ar, const %s * t, const unsigned int fileVersion)", g.class)
	w.line("const boost::shared_ptr<AbstractIvpOdeSolver> p_solver = t->GetSolver();")
	w.line("const boost::shared_ptr<AbstractStimulusFunction> p_stimulus = t->GetStimulusFunction();")
	w.line("ar << p_solver;")
	w.line("ar << p_stimulus;")
	w.close("")
	w.line("")
	w.line("template<class Archive>")
	w.open("inline void load_construct_data(Archive & ar, %s * t, const unsigned int fileVersion)", g.class)
	w.line("boost::shared_ptr<AbstractIvpOdeSolver> p_solver;")
	w.line("boost::shared_ptr<AbstractStimulusFunction> p_stimulus;")
	w.line("ar >> p_solver;")
	w.line("ar >> p_stimulus;")
	w.line("::new(t)%s(p_solver, p_stimulus);", g.class)
	w.close("")
	w.depth--
	w.line("}")
	w.depth--
	w.line("}")
	w.line("")
	if cvode {
		w.line("#endif // CHASTE_CVODE")
	}
	w.line("#endif // %s", guard)
	return w.String()
}
