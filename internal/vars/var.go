// Package vars implements the tagged variable union and per-entity storage
// map described in spec §3/§4.B.
package vars

import (
	"fmt"
	"strconv"

	"outcome.io/sim/internal/addr"
	"outcome.io/sim/internal/apperrors"
)

// Var is a tagged value. Once constructed its Type never changes; Storage
// writes must match the existing tag or fail with TypeMismatch (spec §3).
type Var struct {
	typ addr.VarType

	str   string
	i     int64
	f     float64
	b     bool
	strL  []string
	intL  []int64
	fltL  []float64
	boolL []bool
	// Grids are stored row-major.
	strG  [][]string
	intG  [][]int64
	fltG  [][]float64
	boolG [][]bool
}

// Type returns the variable's type tag.
func (v Var) Type() addr.VarType { return v.typ }

func NewStr(s string) Var      { return Var{typ: addr.Str, str: s} }
func NewInt(i int64) Var       { return Var{typ: addr.Int, i: i} }
func NewFloat(f float64) Var   { return Var{typ: addr.Float, f: f} }
func NewBool(b bool) Var       { return Var{typ: addr.Bool, b: b} }
func NewStrList(v []string) Var  { return Var{typ: addr.StrList, strL: v} }
func NewIntList(v []int64) Var   { return Var{typ: addr.IntList, intL: v} }
func NewFloatList(v []float64) Var { return Var{typ: addr.FloatList, fltL: v} }
func NewBoolList(v []bool) Var   { return Var{typ: addr.BoolList, boolL: v} }
func NewStrGrid(v [][]string) Var  { return Var{typ: addr.StrGrid, strG: v} }
func NewIntGrid(v [][]int64) Var   { return Var{typ: addr.IntGrid, intG: v} }
func NewFloatGrid(v [][]float64) Var { return Var{typ: addr.FloatGrid, fltG: v} }
func NewBoolGrid(v [][]bool) Var   { return Var{typ: addr.BoolGrid, boolG: v} }

// Zero returns the default-valued Var for a type (spec §4.B.VarModel
// default; used when a component is attached without an explicit default).
func Zero(t addr.VarType) Var {
	switch t {
	case addr.Str:
		return NewStr("")
	case addr.Int:
		return NewInt(0)
	case addr.Float:
		return NewFloat(0)
	case addr.Bool:
		return NewBool(false)
	case addr.StrList:
		return NewStrList(nil)
	case addr.IntList:
		return NewIntList(nil)
	case addr.FloatList:
		return NewFloatList(nil)
	case addr.BoolList:
		return NewBoolList(nil)
	case addr.StrGrid:
		return NewStrGrid(nil)
	case addr.IntGrid:
		return NewIntGrid(nil)
	case addr.FloatGrid:
		return NewFloatGrid(nil)
	case addr.BoolGrid:
		return NewBoolGrid(nil)
	default:
		return Var{}
	}
}

// Str, Int, Float, Bool return the scalar payload and whether v actually
// carries that tag.
func (v Var) Str() (string, bool)    { return v.str, v.typ == addr.Str }
func (v Var) Int() (int64, bool)     { return v.i, v.typ == addr.Int }
func (v Var) Float() (float64, bool) { return v.f, v.typ == addr.Float }
func (v Var) Bool() (bool, bool)     { return v.b, v.typ == addr.Bool }

func (v Var) StrList() ([]string, bool)    { return v.strL, v.typ == addr.StrList }
func (v Var) IntList() ([]int64, bool)     { return v.intL, v.typ == addr.IntList }
func (v Var) FloatList() ([]float64, bool) { return v.fltL, v.typ == addr.FloatList }
func (v Var) BoolList() ([]bool, bool)     { return v.boolL, v.typ == addr.BoolList }

func (v Var) StrGrid() ([][]string, bool)    { return v.strG, v.typ == addr.StrGrid }
func (v Var) IntGrid() ([][]int64, bool)     { return v.intG, v.typ == addr.IntGrid }
func (v Var) FloatGrid() ([][]float64, bool) { return v.fltG, v.typ == addr.FloatGrid }
func (v Var) BoolGrid() ([][]bool, bool)     { return v.boolG, v.typ == addr.BoolGrid }

// AsFloat64 coerces Int or Float to a float64, for arithmetic Eval's
// Int<->Float coercion rule (spec §4.D).
func (v Var) AsFloat64() (float64, bool) {
	switch v.typ {
	case addr.Float:
		return v.f, true
	case addr.Int:
		return float64(v.i), true
	default:
		return 0, false
	}
}

// String renders a human-readable form, used by Print commands.
func (v Var) String() string {
	switch v.typ {
	case addr.Str:
		return v.str
	case addr.Int:
		return strconv.FormatInt(v.i, 10)
	case addr.Float:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case addr.Bool:
		return strconv.FormatBool(v.b)
	default:
		return fmt.Sprintf("%v", v.raw())
	}
}

func (v Var) raw() interface{} {
	switch v.typ {
	case addr.StrList:
		return v.strL
	case addr.IntList:
		return v.intL
	case addr.FloatList:
		return v.fltL
	case addr.BoolList:
		return v.boolL
	case addr.StrGrid:
		return v.strG
	case addr.IntGrid:
		return v.intG
	case addr.FloatGrid:
		return v.fltG
	case addr.BoolGrid:
		return v.boolG
	default:
		return nil
	}
}

// SetFromString parses s according to v's existing type tag and returns the
// updated Var (spec §4.B "set_from_string parses the string according to
// the destination's current type").
func (v Var) SetFromString(s string) (Var, error) {
	switch v.typ {
	case addr.Str:
		return NewStr(s), nil
	case addr.Int:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Var{}, apperrors.TypeMismatch(addr.Int.String(), s)
		}
		return NewInt(n), nil
	case addr.Float:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Var{}, apperrors.TypeMismatch(addr.Float.String(), s)
		}
		return NewFloat(f), nil
	case addr.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return Var{}, apperrors.TypeMismatch(addr.Bool.String(), s)
		}
		return NewBool(b), nil
	default:
		return Var{}, apperrors.TypeMismatch(v.typ.String(), s)
	}
}
