package vm

import "testing"

func TestStringTableInterning(t *testing.T) {
	st := NewStringTable()
	a := st.AddString("hello")
	b := st.AddString("hello")
	if a != b {
		t.Fatalf("AddString(\"hello\") twice returned different handles: %p vs %p", a, b)
	}
	if a.Refs() != 2 {
		t.Fatalf("Refs() = %d, want 2", a.Refs())
	}
	if st.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", st.Len())
	}
}

func TestStringTableUnrefRemoves(t *testing.T) {
	st := NewStringTable()
	a := st.AddString("gone")
	st.Ref(a)
	if a.Refs() != 2 {
		t.Fatalf("Refs() = %d, want 2", a.Refs())
	}
	st.Unref(a)
	if st.Find([]byte("gone")) == nil {
		t.Fatal("string removed too early")
	}
	st.Unref(a)
	if st.Find([]byte("gone")) != nil {
		t.Fatal("string should have been removed at refcount 0")
	}
}

func TestStringTableDistinctContent(t *testing.T) {
	st := NewStringTable()
	a := st.AddString("foo")
	b := st.AddString("bar")
	if a == b {
		t.Fatal("distinct content interned to the same handle")
	}
	if st.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", st.Len())
	}
}

func TestStringTableSteal(t *testing.T) {
	st := NewStringTable()
	existing := st.AddString("shared")
	stolen := st.Steal([]byte("shared"))
	if stolen != existing {
		t.Fatal("Steal should fold into the existing entry for matching content")
	}
	if stolen.Refs() != 2 {
		t.Fatalf("Refs() = %d, want 2", stolen.Refs())
	}
}
