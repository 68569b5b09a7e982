package entity

import "testing"

func TestRegistry_NeverReusesIDs(t *testing.T) {
	r := NewRegistry()
	a := r.Create()
	b := r.Create()
	if a == 0 || b == 0 || a == b {
		t.Fatalf("bad ids: %d %d", a, b)
	}
	if !r.Destroy(a) {
		t.Fatalf("expected destroy ok")
	}
	if r.Destroy(a) {
		t.Fatalf("double destroy should report false")
	}
	c := r.Create()
	if c == a || c == b {
		t.Fatalf("id reused: %d", c)
	}
	if r.Len() != 2 {
		t.Fatalf("alive=%d want 2", r.Len())
	}
}

func TestTable_EachIsOrdered(t *testing.T) {
	tab := NewTable[string]()
	tab.Set(3, "c")
	tab.Set(1, "a")
	tab.Set(2, "b")
	var got []ID
	tab.Each(func(id ID, _ string) { got = append(got, id) })
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order=%v", got)
	}
	tab.Delete(2)
	if tab.Has(2) || tab.Len() != 2 {
		t.Fatalf("delete failed")
	}
}

func TestSet_SortedAndClone(t *testing.T) {
	s := SetOf(5, 2, 9, 2)
	if s.Len() != 3 {
		t.Fatalf("len=%d", s.Len())
	}
	c := s.Clone()
	c.Remove(5)
	if !s.Has(5) {
		t.Fatalf("clone aliased original")
	}
	got := s.Sorted()
	if got[0] != 2 || got[1] != 5 || got[2] != 9 {
		t.Fatalf("sorted=%v", got)
	}
}
