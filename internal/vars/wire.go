package vars

import (
	"github.com/fxamacker/cbor/v2"

	"outcome.io/sim/internal/addr"
)

// wireVar is Var's on-the-wire shape: every exported field is populated
// only for the branch wireVar.Type names, the rest left zero. Var's own
// fields are unexported (the type tag must not change once assigned, spec
// §3), so this is the bridge cbor's reflection-based codec needs to cross
// package boundaries — used wherever a Var is CBOR-encoded, such as
// internal/controlproto's messages and signal payloads and simcore's
// snapshot entity partitions.
type wireVar struct {
	Type string

	Str   string      `cbor:",omitempty"`
	Int   int64       `cbor:",omitempty"`
	Float float64     `cbor:",omitempty"`
	Bool  bool        `cbor:",omitempty"`
	StrL  []string    `cbor:",omitempty"`
	IntL  []int64     `cbor:",omitempty"`
	FltL  []float64   `cbor:",omitempty"`
	BoolL []bool      `cbor:",omitempty"`
	StrG  [][]string  `cbor:",omitempty"`
	IntG  [][]int64   `cbor:",omitempty"`
	FltG  [][]float64 `cbor:",omitempty"`
	BoolG [][]bool    `cbor:",omitempty"`
}

// MarshalCBOR implements cbor.Marshaler.
func (v Var) MarshalCBOR() ([]byte, error) {
	w := wireVar{Type: v.typ.String()}
	switch v.typ {
	case addr.Str:
		w.Str = v.str
	case addr.Int:
		w.Int = v.i
	case addr.Float:
		w.Float = v.f
	case addr.Bool:
		w.Bool = v.b
	case addr.StrList:
		w.StrL = v.strL
	case addr.IntList:
		w.IntL = v.intL
	case addr.FloatList:
		w.FltL = v.fltL
	case addr.BoolList:
		w.BoolL = v.boolL
	case addr.StrGrid:
		w.StrG = v.strG
	case addr.IntGrid:
		w.IntG = v.intG
	case addr.FloatGrid:
		w.FltG = v.fltG
	case addr.BoolGrid:
		w.BoolG = v.boolG
	}
	return cbor.Marshal(w)
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (v *Var) UnmarshalCBOR(data []byte) error {
	var w wireVar
	if err := cbor.Unmarshal(data, &w); err != nil {
		return err
	}
	t, err := addr.ParseVarType(w.Type)
	if err != nil {
		return err
	}
	switch t {
	case addr.Str:
		*v = NewStr(w.Str)
	case addr.Int:
		*v = NewInt(w.Int)
	case addr.Float:
		*v = NewFloat(w.Float)
	case addr.Bool:
		*v = NewBool(w.Bool)
	case addr.StrList:
		*v = NewStrList(w.StrL)
	case addr.IntList:
		*v = NewIntList(w.IntL)
	case addr.FloatList:
		*v = NewFloatList(w.FltL)
	case addr.BoolList:
		*v = NewBoolList(w.BoolL)
	case addr.StrGrid:
		*v = NewStrGrid(w.StrG)
	case addr.IntGrid:
		*v = NewIntGrid(w.IntG)
	case addr.FloatGrid:
		*v = NewFloatGrid(w.FltG)
	case addr.BoolGrid:
		*v = NewBoolGrid(w.BoolG)
	}
	return nil
}
