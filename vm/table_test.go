package vm

import "testing"

func TestIdentTablePositionalArgs(t *testing.T) {
	tab := NewIdentTable()
	if tab.Arg(0) == nil || tab.Arg(0).Name != "arg1" {
		t.Fatalf("Arg(0).Name = %v, want arg1", tab.Arg(0))
	}
	if tab.Arg(24).Name != "arg25" {
		t.Fatalf("Arg(24).Name = %v, want arg25", tab.Arg(24).Name)
	}
	if tab.Arg(25) != nil {
		t.Fatal("Arg(25) should be out of range")
	}
	if tab.Lookup("arg1") != tab.Arg(0) {
		t.Fatal("Lookup(\"arg1\") should return the same Ident as Arg(0)")
	}
}

func TestIdentTableCoreSpecials(t *testing.T) {
	tab := NewIdentTable()
	for _, name := range []string{"if", "and", "or", "do", "doargs", "local", "not", "result", "break", "continue"} {
		id := tab.Lookup(name)
		if id == nil || id.Kind != IdentSpecial {
			t.Errorf("Lookup(%q) = %v, want a registered IdentSpecial", name, id)
		}
	}
}

func TestIdentTableNewAliasIsIdempotent(t *testing.T) {
	tab := NewIdentTable()
	a := tab.NewAlias("foo")
	b := tab.NewAlias("foo")
	if a != b {
		t.Fatal("NewAlias should return the existing Ident for a name already registered")
	}
}

func TestIdentTableCommandRegistrationRejectsBadFormat(t *testing.T) {
	tab := NewIdentTable()
	if _, err := tab.NewCommand("bad", "Cz", nil); err == nil {
		t.Fatal("expected an error registering a command with an invalid format string")
	}
}

func TestIdentTableNewIntVarStoresDefaultAndBounds(t *testing.T) {
	tab := NewIdentTable()
	id := tab.NewIntVar("health", 0, 100, 50, 0, nil)
	if id.IntVar != 50 {
		t.Fatalf("IntVar = %d, want 50", id.IntVar)
	}
	if id.IntMin != 0 || id.IntMax != 100 {
		t.Fatalf("bounds = [%d, %d], want [0, 100]", id.IntMin, id.IntMax)
	}
}
