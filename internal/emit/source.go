package emit

import (
	"strings"

	"github.com/roach88/cellc/internal/scheme"
)

func (g *generator) source() string {
	w := &writer{}
	cvode := g.plan.Variant.Scheme == scheme.Cvode
	g.provenance(w)
	if cvode {
		w.line("#ifdef CHASTE_CVODE")
	}
	w.line(`#include "%s.hpp"`, FileStem(g.model, g.plan.Variant))
	w.line("#include <cmath>")
	w.line("#include <cassert>")
	w.line("#include <memory>")
	w.line("#include <string>")
	w.line(`#include "Exception.hpp"`)
	w.line(`#include "OdeSystemInformation.hpp"`)
	w.line(`#include "RegularStimulus.hpp"`)
	w.line(`#include "HeartConfig.hpp"`)
	w.line(`#include "IsNan.hpp"`)
	w.line(`#include "MathsCustomFunctions.hpp"`)
	switch g.plan.Variant.Scheme {
	case scheme.RushLarsen2, scheme.GRL1, scheme.GRL2:
		w.line(`#include "TimeStepper.hpp"`)
	}
	w.line("")

	if g.tables != nil {
		g.lookupTablesClass(w)
	}
	if len(g.newton) > 0 {
		w.sb.WriteString(solveDense)
		w.line("")
	}

	g.constructor(w)
	w.line("")
	w.open("%s::~%s()", g.class, g.class)
	w.close("")
	w.line("")

	for _, m := range g.methods() {
		w.open("%s %s::%s(%s)", m.ret, g.class, m.name, m.params)
		m.body(w)
		w.close("")
		w.line("")
	}

	g.systemInformation(w)
	w.line("")
	w.line(`#include "SerializationExportWrapperForCpp.hpp"`)
	w.line("CHASTE_CLASS_EXPORT(%s)", g.class)
	if cvode {
		w.line("#endif // CHASTE_CVODE")
	}
	return w.String()
}

func (g *generator) constructor(w *writer) {
	m := g.model
	v := g.plan.Variant
	w.line("%s::%s(boost::shared_ptr<AbstractIvpOdeSolver> pOdeSolver, boost::shared_ptr<AbstractStimulusFunction> pIntracellularStimulus)", g.class, g.class)
	w.line("    : %s(", g.base())
	switch v.Scheme {
	case scheme.Normal, scheme.Cvode:
		w.line("        pOdeSolver,")
	}
	w.line("        %d,", len(m.States()))
	w.line("        %d,", g.voltage.Index)
	w.line("        pIntracellularStimulus)")
	w.line("{")
	w.depth++
	free, _ := m.Var(m.Free())
	w.line("// Time units: %s", free.Units)
	w.line("//")
	w.line("this->mpSystemInfo = OdeSystemInformation<%s>::Instance();", g.class)
	w.line("Init();")
	w.line("")
	if _, ok := m.Stimulus(); ok {
		w.line("// We have a default stimulus specified in the model metadata")
		w.line("this->mHasDefaultStimulusFromCellML = true;")
	}
	if v.AnalyticJacobian {
		w.line("mUseAnalyticJacobian = true;")
		w.line("mHasAnalyticJacobian = true;")
	}
	for _, p := range g.plan.Parameters {
		w.line("this->mParameters[%d] = %s; // (%s) [%s]", p.Index, cppNum(p.Initial), p.Name, p.Units)
	}
	if g.tables != nil {
		w.line("%s::Instance()->SetTableParameters(this->mParameters);", g.tablesClass())
	}
	w.depth--
	w.line("}")
}

func (g *generator) systemInformation(w *writer) {
	m := g.model
	w.line("template<>")
	w.open("void OdeSystemInformation<%s>::Initialise(void)", g.class)
	w.line(`this->mSystemName = "%s";`, m.Name())
	free, _ := m.Var(m.Free())
	w.line(`this->mFreeVariableName = "%s";`, m.Free())
	w.line(`this->mFreeVariableUnits = "%s";`, free.Units)
	w.line("")
	for _, s := range m.States() {
		w.line("// rY[%d]:", s.Index)
		w.line(`this->mVariableNames.push_back("%s");`, metaName(m, s.Name))
		w.line(`this->mVariableUnits.push_back("%s");`, s.Units)
		w.line("this->mInitialConditions.push_back(%s);", cppNum(s.Initial))
		w.line("")
	}
	for _, p := range g.plan.Parameters {
		w.line("// mParameters[%d]:", p.Index)
		w.line(`this->mParameterNames.push_back("%s");`, metaName(m, p.Name))
		w.line(`this->mParameterUnits.push_back("%s");`, p.Units)
		w.line("")
	}
	for _, d := range m.Derived() {
		w.line("// Derived Quantity index [%d]:", d.DerivedIndex)
		w.line(`this->mDerivedQuantityNames.push_back("%s");`, metaName(m, d.Name))
		w.line(`this->mDerivedQuantityUnits.push_back("%s");`, d.Units)
		w.line("")
	}
	w.line("this->mInitialised = true;")
	w.close("")
}

// solveDense is the linear solve of the backward Euler Newton step.
var solveDense = strings.TrimLeft(`
namespace
{
    // Solves a * x = b by Gaussian elimination with partial pivoting.
    template<unsigned N>
    bool SolveDense(double a[N][N], const double b[N], double x[N])
    {
        double rhs[N];
        for (unsigned i = 0; i < N; i++)
        {
            rhs[i] = b[i];
        }
        for (unsigned col = 0; col < N; col++)
        {
            unsigned pivot = col;
            for (unsigned row = col + 1; row < N; row++)
            {
                if (fabs(a[row][col]) > fabs(a[pivot][col]))
                {
                    pivot = row;
                }
            }
            if (a[pivot][col] == 0.0)
            {
                return false;
            }
            if (pivot != col)
            {
                for (unsigned k = 0; k < N; k++)
                {
                    std::swap(a[col][k], a[pivot][k]);
                }
                std::swap(rhs[col], rhs[pivot]);
            }
            for (unsigned row = col + 1; row < N; row++)
            {
                const double f = a[row][col] / a[col][col];
                for (unsigned k = col; k < N; k++)
                {
                    a[row][k] -= f * a[col][k];
                }
                rhs[row] -= f * rhs[col];
            }
        }
        for (unsigned i = N; i-- > 0;)
        {
            double s = rhs[i];
            for (unsigned k = i + 1; k < N; k++)
            {
                s -= a[i][k] * x[k];
            }
            x[i] = s / a[i][i];
        }
        return true;
    }
}
`, "\n")
