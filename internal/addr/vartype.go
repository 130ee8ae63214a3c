// Package addr implements the engine's variable-type enumeration and the
// `entity:component:type:var` address grammar (spec §4.A), grounded on
// outcome-core's var.rs and machine/cmd address parsing.
package addr

import "outcome.io/sim/internal/apperrors"

// VarType is the fixed enumeration of value kinds a variable can hold.
// "grids" is a name in the engine feature set (spec §4.C, §11/§13), but
// nothing checks it before a grid variant is used: grid types are
// accepted whether or not a module lists that feature.
type VarType uint8

const (
	Str VarType = iota
	Int
	Float
	Bool
	StrList
	IntList
	FloatList
	BoolList
	StrGrid
	IntGrid
	FloatGrid
	BoolGrid
)

// canonical name, alternate alias name.
var names = [...][2]string{
	Str:       {"str", "string"},
	Int:       {"int", "integer"},
	Float:     {"float", "flt"},
	Bool:      {"bool", "boolean"},
	StrList:   {"str_list", "string_list"},
	IntList:   {"int_list", "integer_list"},
	FloatList: {"float_list", "flt_list"},
	BoolList:  {"bool_list", "boolean_list"},
	StrGrid:   {"str_grid", "string_grid"},
	IntGrid:   {"int_grid", "integer_grid"},
	FloatGrid: {"float_grid", "flt_grid"},
	BoolGrid:  {"bool_grid", "boolean_grid"},
}

var byName map[string]VarType

func init() {
	byName = make(map[string]VarType, len(names)*2)
	for vt, pair := range names {
		byName[pair[0]] = VarType(vt)
		byName[pair[1]] = VarType(vt)
	}
}

// ParseVarType resolves a canonical or alias name to a VarType.
func ParseVarType(s string) (VarType, error) {
	vt, ok := byName[s]
	if !ok {
		return 0, apperrors.InvalidVarType(s)
	}
	return vt, nil
}

// String returns the canonical (non-alias) name.
func (t VarType) String() string {
	if int(t) >= len(names) {
		return "unknown"
	}
	return names[t][0]
}

// IsGrid reports whether t is one of the *_grid variants.
func (t VarType) IsGrid() bool {
	return t == StrGrid || t == IntGrid || t == FloatGrid || t == BoolGrid
}

// IsList reports whether t is one of the *_list variants.
func (t VarType) IsList() bool {
	return t == StrList || t == IntList || t == FloatList || t == BoolList
}

// Scalar returns the scalar VarType underlying a list or grid variant
// (or t itself, if t is already scalar).
func (t VarType) Scalar() VarType {
	switch t {
	case StrList, StrGrid:
		return Str
	case IntList, IntGrid:
		return Int
	case FloatList, FloatGrid:
		return Float
	case BoolList, BoolGrid:
		return Bool
	default:
		return t
	}
}
