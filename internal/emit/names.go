package emit

import (
	"strings"

	"github.com/roach88/cellc/internal/ir"
	"github.com/roach88/cellc/internal/lut"
	"github.com/roach88/cellc/internal/scheme"
)

// ClassName is the C++ class generated for a model variant.
func ClassName(m *ir.Model, v scheme.Variant) string {
	return "Cell" + m.Name() + "FromCellML" + v.Suffix()
}

// FileStem is the base name of the generated .hpp/.cpp pair.
func FileStem(m *ir.Model, v scheme.Variant) string {
	return m.Name() + v.Suffix()
}

// varName is the C++ identifier of a model variable.
func varName(name string) string {
	return "var_" + strings.ReplaceAll(name, ".", "__")
}

// columnLocal names the local holding a hoisted table sub-expression.
func columnLocal(ref lut.ColumnRef) string {
	return "_lt_" + itoa(ref.Table) + "_" + itoa(ref.Column)
}

// validIdent reports whether a model name maps to a legal C++ name.
func validIdent(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || r == '.':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// metaName is the name registered in OdeSystemInformation.
func metaName(m *ir.Model, name string) string {
	if name == m.Voltage() {
		return "membrane_voltage"
	}
	return strings.ReplaceAll(name, ".", "__")
}

func guardName(class string) string {
	return strings.ToUpper(class) + "_HPP_"
}
