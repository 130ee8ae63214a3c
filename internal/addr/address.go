package addr

import (
	"strings"

	"outcome.io/sim/internal/apperrors"
)

// Address is a fully-qualified reference to a single variable (spec §3):
// `(entity_name, component_name, var_type, var_name)`. A local address
// omits Entity, implicit from the execution context of the component
// currently running.
type Address struct {
	Entity    string // empty for a local address
	Component string
	Type      VarType
	Var       string
}

// Local reports whether a is a local address (no entity segment).
func (a Address) Local() bool {
	return a.Entity == ""
}

// String renders the canonical `entity:component:type:var` form. For a
// local address the entity segment is empty but the separator is kept;
// Parse rejects that empty segment, so a local address round-trips through
// LocalString and ParseLocal instead (spec §8: "Address parse/format").
func (a Address) String() string {
	var b strings.Builder
	b.WriteString(a.Entity)
	b.WriteByte(':')
	b.WriteString(a.Component)
	b.WriteByte(':')
	b.WriteString(a.Type.String())
	b.WriteByte(':')
	b.WriteString(a.Var)
	return b.String()
}

// Parse parses a full address of the form entity:component:type:var.
func Parse(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 {
		return Address{}, apperrors.InvalidAddress(s)
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" || parts[3] == "" {
		return Address{}, apperrors.InvalidAddress(s)
	}
	vt, err := ParseVarType(parts[2])
	if err != nil {
		return Address{}, apperrors.InvalidAddress(s)
	}
	return Address{Entity: parts[0], Component: parts[1], Type: vt, Var: parts[3]}, nil
}

// ParseLocal parses a local address of the form component:type:var (no
// entity segment, three fields instead of four).
func ParseLocal(s string) (Address, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Address{}, apperrors.InvalidAddress(s)
	}
	if parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Address{}, apperrors.InvalidAddress(s)
	}
	vt, err := ParseVarType(parts[1])
	if err != nil {
		return Address{}, apperrors.InvalidAddress(s)
	}
	return Address{Component: parts[0], Type: vt, Var: parts[2]}, nil
}

// LocalString renders the three-segment local form component:type:var.
func (a Address) LocalString() string {
	var b strings.Builder
	b.WriteString(a.Component)
	b.WriteByte(':')
	b.WriteString(a.Type.String())
	b.WriteByte(':')
	b.WriteString(a.Var)
	return b.String()
}

// WithEntity returns a copy of a with Entity set, resolving a local
// address against the entity the owning component is executing for.
func (a Address) WithEntity(entity string) Address {
	a.Entity = entity
	return a
}
