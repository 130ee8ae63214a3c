package ident

import (
	"strings"
	"testing"
)

func TestInternReusesID(t *testing.T) {
	tbl := NewTable()

	id1, err := tbl.Intern("hp")
	if err != nil {
		t.Fatalf("Intern() error = %v", err)
	}
	id2, err := tbl.Intern("hp")
	if err != nil {
		t.Fatalf("Intern() error = %v", err)
	}
	if id1 != id2 {
		t.Fatalf("Intern(\"hp\") = %v then %v, want same id", id1, id2)
	}

	other, err := tbl.Intern("mana")
	if err != nil {
		t.Fatalf("Intern() error = %v", err)
	}
	if other == id1 {
		t.Fatalf("distinct names interned to the same id")
	}
}

func TestStringRoundTrip(t *testing.T) {
	tbl := NewTable()
	id, err := tbl.Intern("Component_One")
	if err != nil {
		t.Fatalf("Intern() error = %v", err)
	}
	if got := tbl.String(id); got != "Component_One" {
		t.Errorf("String() = %q, want Component_One", got)
	}
}

func TestLookupMissing(t *testing.T) {
	tbl := NewTable()
	if _, ok := tbl.Lookup("nope"); ok {
		t.Error("Lookup() found a name that was never interned")
	}
}

func TestInternRejectsEmpty(t *testing.T) {
	tbl := NewTable()
	if _, err := tbl.Intern(""); err == nil {
		t.Error("Intern(\"\") should fail")
	}
}

func TestInternRejectsTooLong(t *testing.T) {
	tbl := NewTable()
	long := strings.Repeat("a", MaxLen+1)
	if _, err := tbl.Intern(long); err == nil {
		t.Error("Intern() of an over-length name should fail")
	}
}

func TestMustInternPanicsOnInvalid(t *testing.T) {
	tbl := NewTable()
	defer func() {
		if recover() == nil {
			t.Error("MustIntern(\"\") should panic")
		}
	}()
	tbl.MustIntern("")
}
