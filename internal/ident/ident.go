// Package ident interns the short names that appear pervasively through the
// engine: entity, component, variable, event, and state names (spec §3,
// §9 "Interning and identifiers"). An ID is a small comparable value that
// compares in O(1) and is cheap to copy, instead of carrying the string
// itself through every map key and call stack frame.
package ident

import (
	"fmt"
	"sync"
	"unicode/utf8"
)

// MaxLen is the longest name the interner accepts (spec §4.A: "bounded,
// UTF-8, case-preserving").
const MaxLen = 255

// ID is an interned name. The zero value is not a valid ID; it is reserved
// to mean "absent" in the places that already use a local address with no
// entity segment (spec §3 "Address").
type ID uint32

// Table interns strings to small IDs. Safe for concurrent use.
type Table struct {
	mu     sync.RWMutex
	byName map[string]ID
	byID   []string // index 0 unused, so byID[0] == ""
}

// NewTable returns an empty interning table.
func NewTable() *Table {
	return &Table{
		byName: make(map[string]ID),
		byID:   []string{""},
	}
}

// Intern returns the ID for name, assigning a fresh one if name has not
// been seen before. Returns an error if name is empty, too long, or not
// valid UTF-8.
func (t *Table) Intern(name string) (ID, error) {
	if err := validate(name); err != nil {
		return 0, err
	}

	t.mu.RLock()
	if id, ok := t.byName[name]; ok {
		t.mu.RUnlock()
		return id, nil
	}
	t.mu.RUnlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.byName[name]; ok {
		return id, nil
	}
	id := ID(len(t.byID))
	t.byID = append(t.byID, name)
	t.byName[name] = id
	return id, nil
}

// MustIntern is Intern but panics on an invalid name; for use with
// compile-time-constant names (built-in event/state names).
func (t *Table) MustIntern(name string) ID {
	id, err := t.Intern(name)
	if err != nil {
		panic(fmt.Sprintf("ident: %v", err))
	}
	return id
}

// Lookup returns the ID for name without creating one.
func (t *Table) Lookup(name string) (ID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.byName[name]
	return id, ok
}

// String returns the interned name for id, or "" if id is unknown.
func (t *Table) String(id ID) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.byID) {
		return ""
	}
	return t.byID[id]
}

func validate(name string) error {
	if name == "" {
		return fmt.Errorf("ident: empty name")
	}
	if len(name) > MaxLen {
		return fmt.Errorf("ident: name %q exceeds max length %d", name, MaxLen)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("ident: name %q is not valid UTF-8", name)
	}
	for i := 0; i < len(name); i++ {
		if name[i] == 0 {
			return fmt.Errorf("ident: name %q contains NUL byte", name)
		}
	}
	return nil
}
