package vars

import (
	"outcome.io/sim/internal/apperrors"
)

// Key identifies one variable within an entity's Storage: a (component,
// var) pair (spec §3 "Storage").
type Key struct {
	Component string
	Var       string
}

// Storage maps (component, var) to Var for a single entity. The mapping is
// insertion-order-independent; callers must not rely on iteration order
// (spec §4.B).
type Storage struct {
	m map[Key]Var
}

// NewStorage returns an empty Storage.
func NewStorage() *Storage {
	return &Storage{m: make(map[Key]Var)}
}

// GetVar returns the raw tagged value at key.
func (s *Storage) GetVar(key Key) (Var, error) {
	v, ok := s.m[key]
	if !ok {
		return Var{}, apperrors.MissingKey(key.Component, key.Var)
	}
	return v, nil
}

// Set writes v at key. If a value already exists at key its type tag must
// match v's, or the write fails with TypeMismatch and storage is left
// unchanged (spec §8 "Set of a value whose type disagrees... leaves
// storage unchanged").
func (s *Storage) Set(key Key, v Var) error {
	if existing, ok := s.m[key]; ok && existing.Type() != v.Type() {
		return apperrors.TypeMismatch(existing.Type().String(), v.Type().String())
	}
	s.m[key] = v
	return nil
}

// SetFromString parses raw according to the existing variable's type and
// writes the result; fails with MissingKey if key does not yet exist.
func (s *Storage) SetFromString(key Key, raw string) error {
	existing, ok := s.m[key]
	if !ok {
		return apperrors.MissingKey(key.Component, key.Var)
	}
	v, err := existing.SetFromString(raw)
	if err != nil {
		return err
	}
	s.m[key] = v
	return nil
}

// Init creates key with v unconditionally, used when attaching a component
// (populating its variable defaults) or loading a snapshot part.
func (s *Storage) Init(key Key, v Var) {
	s.m[key] = v
}

// Delete removes key, used when detaching a component.
func (s *Storage) Delete(key Key) {
	delete(s.m, key)
}

// Has reports whether key is present.
func (s *Storage) Has(key Key) bool {
	_, ok := s.m[key]
	return ok
}

// DeleteComponent removes every key belonging to component, used by Detach.
func (s *Storage) DeleteComponent(component string) {
	for k := range s.m {
		if k.Component == component {
			delete(s.m, k)
		}
	}
}

// ForEachInComponent calls fn for every (var, value) pair belonging to
// component. Iteration order is unspecified.
func (s *Storage) ForEachInComponent(component string, fn func(varName string, v Var)) {
	for k, v := range s.m {
		if k.Component == component {
			fn(k.Var, v)
		}
	}
}

// ForEach calls fn for every entry. Iteration order is unspecified.
func (s *Storage) ForEach(fn func(key Key, v Var)) {
	for k, v := range s.m {
		fn(k, v)
	}
}

// Len returns the number of stored variables.
func (s *Storage) Len() int { return len(s.m) }

// Clone returns a copy of the map: scalar Vars are value types, so the
// copy is independent for them; list/grid payloads are slices and stay
// shared between the copy and the original.
func (s *Storage) Clone() *Storage {
	out := make(map[Key]Var, len(s.m))
	for k, v := range s.m {
		out[k] = v
	}
	return &Storage{m: out}
}
