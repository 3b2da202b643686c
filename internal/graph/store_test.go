package graph

import (
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry()
	item, err := schema.NewType("item",
		schema.Field{Name: "a", Kind: schema.KindValue, Value: schema.String},
		schema.Field{Name: "b", Kind: schema.KindValue, Value: schema.Int},
		schema.Field{Name: "child", Kind: schema.KindSubObject},
		schema.Field{Name: "members", Kind: schema.KindSubObjectSet},
		schema.Field{Name: "data", Kind: schema.KindStream},
	)
	if err != nil {
		t.Fatalf("NewType: %v", err)
	}
	if err := reg.Register(item); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return reg
}

func fieldIndex(t *testing.T, s *Store, id ID, name string) int {
	t.Helper()
	i, ok := s.Read(id).Field(name)
	if !ok {
		t.Fatalf("no field %q", name)
	}
	return i
}

func sortedIDs(ids []ID) []ID {
	out := append([]ID(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func equalIDs(a, b []ID) bool {
	a, b = sortedIDs(a), sortedIDs(b)
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPrototypeFallthrough(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	p := s.CreateObject(item)
	a, b := fieldIndex(t, s, p, "a"), fieldIndex(t, s, p, "b")

	w, _ := s.Write(p)
	if err := w.SetValue(a, "X"); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	if err := w.SetValue(b, int64(111)); err != nil {
		t.Fatalf("SetValue: %v", err)
	}
	w.Commit()

	d, err := s.CreateDerived(p, uuid.Nil)
	if err != nil {
		t.Fatalf("CreateDerived: %v", err)
	}

	t.Run("inherited", func(t *testing.T) {
		v := s.Read(d)
		if got := v.Value(a); got != "X" {
			t.Errorf("a = %v, want X", got)
		}
		if got := v.Value(b); got != int64(111) {
			t.Errorf("b = %v, want 111", got)
		}
		if s.ReadWithoutPrototypes(d).Has(a) {
			t.Error("local view should not report inherited field")
		}
	})

	t.Run("override", func(t *testing.T) {
		w, _ := s.Write(d)
		_ = w.SetValue(a, "Y")
		w.Commit()

		v := s.Read(d)
		if got := v.Value(a); got != "Y" {
			t.Errorf("a = %v, want Y", got)
		}
		if got := v.Value(b); got != int64(111) {
			t.Errorf("b = %v, want 111", got)
		}
		if got := s.Read(p).Value(a); got != "X" {
			t.Errorf("prototype a = %v, want X", got)
		}
	})

	t.Run("clear falls back", func(t *testing.T) {
		w, _ := s.Write(d)
		_ = w.ClearValue(a)
		w.Commit()
		if got := s.Read(d).Value(a); got != "X" {
			t.Errorf("a = %v, want X", got)
		}
	})
}

func TestPrototypeCycle(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	a := s.CreateObject(item)
	b, _ := s.CreateDerived(a, uuid.Nil)
	c, _ := s.CreateDerived(b, uuid.Nil)

	if err := s.SetPrototype(a, c); !errors.Is(err, ErrPrototypeCycle) {
		t.Errorf("SetPrototype cycle err = %v, want ErrPrototypeCycle", err)
	}
	if err := s.SetPrototype(a, a); !errors.Is(err, ErrPrototypeCycle) {
		t.Errorf("self prototype err = %v, want ErrPrototypeCycle", err)
	}

	dir := s.CreateObject(reg.Type(schema.TypeDirectory))
	if err := s.SetPrototype(a, dir); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("cross-type prototype err = %v, want ErrTypeMismatch", err)
	}
}

func TestSetInheritance(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	p := s.CreateObject(item)
	members := fieldIndex(t, s, p, "members")
	s1, s2, s3 := s.CreateObject(item), s.CreateObject(item), s.CreateObject(item)

	w, _ := s.Write(p)
	for _, m := range []ID{s1, s2, s3} {
		_ = w.AddToSet(members, m)
	}
	w.Commit()

	d, _ := s.CreateDerived(p, uuid.Nil)
	s4 := s.CreateObject(item)

	w, _ = s.Write(d)
	_ = w.RemoveFromSet(members, s1)
	_ = w.AddToSet(members, s4)
	w.Commit()

	if got := s.Read(d).Set(members); !equalIDs(got, []ID{s2, s3, s4}) {
		t.Errorf("effective set = %v, want [%d %d %d]", got, s2, s3, s4)
	}
	local := s.ReadWithoutPrototypes(d)
	if got := local.Excluded(members); !equalIDs(got, []ID{s1}) {
		t.Errorf("exclusions = %v, want [%d]", got, s1)
	}
	if got := local.Set(members); !equalIDs(got, []ID{s4}) {
		t.Errorf("local additions = %v, want [%d]", got, s4)
	}
	if s.Owner(s4) != d {
		t.Errorf("Owner(s4) = %d, want %d", s.Owner(s4), d)
	}

	t.Run("removing local member records no exclusion", func(t *testing.T) {
		w, _ := s.Write(d)
		_ = w.RemoveFromSet(members, s4)
		w.Commit()
		if got := s.ReadWithoutPrototypes(d).Excluded(members); !equalIDs(got, []ID{s1}) {
			t.Errorf("exclusions = %v, want only [%d]", got, s1)
		}
		if got := s.Read(d).Set(members); !equalIDs(got, []ID{s2, s3}) {
			t.Errorf("effective set = %v", got)
		}
		if s.Exists(s4) {
			t.Errorf("removed local member %d still exists", s4)
		}
	})

	t.Run("removed member survives re-add before commit", func(t *testing.T) {
		s5 := s.CreateObject(item)
		w, _ := s.Write(d)
		_ = w.AddToSet(members, s5)
		w.Commit()

		w, _ = s.Write(d)
		_ = w.RemoveFromSet(members, s5)
		_ = w.AddToSet(members, s5)
		w.Commit()
		if !s.Exists(s5) || s.Owner(s5) != d {
			t.Errorf("exists=%v owner=%d, want member kept", s.Exists(s5), s.Owner(s5))
		}

		w, _ = s.Write(d)
		_ = w.RemoveFromSet(members, s5)
		w.Commit()
		if s.Exists(s5) {
			t.Error("removed member outlived commit")
		}
	})

	t.Run("re-adding excluded member lifts exclusion", func(t *testing.T) {
		w, _ := s.Write(d)
		_ = w.AddToSet(members, s1)
		w.Commit()
		if got := s.ReadWithoutPrototypes(d).Excluded(members); len(got) != 0 {
			t.Errorf("exclusions = %v, want none", got)
		}
		if got := s.ReadWithoutPrototypes(d).Set(members); len(got) != 0 {
			t.Errorf("local additions = %v, want none", got)
		}
	})
}

func TestVersioning(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	parent := s.CreateObject(item)
	child := s.CreateObject(item)
	if v := s.Version(parent); v != 1 {
		t.Fatalf("new object version = %d, want 1", v)
	}

	w, _ := s.Write(parent)
	_ = w.SetSubObject(fieldIndex(t, s, parent, "child"), child)
	w.Commit()
	before := s.Version(parent)

	cw, _ := s.Write(child)
	_ = cw.SetValue(fieldIndex(t, s, child, "a"), "changed")
	cw.Commit()

	if s.Version(parent) <= before {
		t.Error("committing a sub-object should bump its owner")
	}

	t.Run("touch", func(t *testing.T) {
		v := s.Version(child)
		s.Touch(child)
		if s.Version(child) != v+1 {
			t.Errorf("Touch version = %d, want %d", s.Version(child), v+1)
		}
	})

	t.Run("deactivate", func(t *testing.T) {
		v := s.Version(child)
		s.Deactivate(child)
		if s.IsActive(child) {
			t.Error("expected inactive")
		}
		if !s.Exists(child) {
			t.Error("deactivated object should still exist")
		}
		if s.Version(child) <= v {
			t.Error("deactivate should bump version")
		}
	})
}

func TestSubObjectReplaceAndDestroy(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	parent := s.CreateObject(item)
	first, second := s.CreateObject(item), s.CreateObject(item)
	ci := fieldIndex(t, s, parent, "child")

	w, _ := s.Write(parent)
	_ = w.SetSubObject(ci, first)
	w.Commit()

	w, _ = s.Write(parent)
	_ = w.SetSubObject(ci, second)
	w.Commit()

	if s.Exists(first) {
		t.Error("replaced sub-object should be destroyed on commit")
	}

	u := s.StableID(second)
	s.SetPath(parent, "a/b")
	s.Destroy(parent)
	if s.Exists(parent) || s.Exists(second) {
		t.Error("Destroy should remove owned objects")
	}
	if _, ok := s.Lookup(u); ok {
		t.Error("destroyed stable id should not resolve")
	}
	if _, ok := s.Path(parent); ok {
		t.Error("destroyed object should have no path")
	}
}

func TestSweepDetached(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")
	members, _ := item.Field("members")

	p := s.CreateObject(item)
	kept, dropped, stored := s.CreateObject(item), s.CreateObject(item), s.CreateObject(item)
	w, _ := s.Write(p)
	for _, m := range []ID{kept, dropped, stored} {
		_ = w.AddToSet(members, m)
	}
	w.Commit()
	s.SetPath(stored, "main/stored")

	if err := s.Reset(p, item, Nil); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if s.Owner(kept) != Nil {
		t.Fatalf("Reset should detach members, owner = %d", s.Owner(kept))
	}
	w, _ = s.Write(p)
	_ = w.AddToSet(members, kept)
	w.Commit()

	if got := s.SweepDetached(); !equalIDs(got, []ID{dropped}) {
		t.Errorf("swept = %v, want [%d]", got, dropped)
	}
	if !s.Exists(kept) || s.Owner(kept) != p {
		t.Errorf("re-adopted member lost: exists=%v owner=%d", s.Exists(kept), s.Owner(kept))
	}
	if !s.Exists(stored) {
		t.Error("object with a path was swept")
	}
	if got := s.SweepDetached(); len(got) != 0 {
		t.Errorf("second sweep = %v, want none", got)
	}
}

func TestStableIDs(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	item := reg.Type("item")

	t.Run("lazy assignment", func(t *testing.T) {
		id := s.CreateObject(item)
		if s.HasStableID(id) {
			t.Fatal("stable id should be assigned lazily")
		}
		u := s.StableID(id)
		if u == uuid.Nil {
			t.Fatal("StableID returned nil uuid")
		}
		if got, ok := s.Lookup(u); !ok || got != id {
			t.Errorf("Lookup = %d, %v", got, ok)
		}
		if s.StableID(id) != u {
			t.Error("StableID should be stable")
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		u := uuid.New()
		if _, err := s.CreateObjectWithID(item, u); err != nil {
			t.Fatalf("CreateObjectWithID: %v", err)
		}
		if _, err := s.CreateObjectWithID(item, u); !errors.Is(err, ErrDuplicateID) {
			t.Errorf("err = %v, want ErrDuplicateID", err)
		}
	})

	t.Run("placeholder then reset", func(t *testing.T) {
		u := uuid.New()
		id := s.GetOrCreateByStableID(u, nil)
		if !s.IsPlaceholder(id) {
			t.Fatal("expected placeholder")
		}
		if again := s.GetOrCreateByStableID(u, item); again != id {
			t.Errorf("second lookup = %d, want %d", again, id)
		}
		if err := s.Reset(id, item, Nil); err != nil {
			t.Fatalf("Reset: %v", err)
		}
		if s.IsPlaceholder(id) || s.Type(id) != item {
			t.Error("Reset should materialize the placeholder")
		}
		w, err := s.Write(id)
		if err != nil {
			t.Fatalf("Write: %v", err)
		}
		if err := w.SetValueByName("a", "ok"); err != nil {
			t.Errorf("SetValueByName after reset: %v", err)
		}
	})
}

func TestWriterKindChecks(t *testing.T) {
	reg := testRegistry(t)
	s := NewStore(reg)
	id := s.CreateObject(reg.Type("item"))

	w, _ := s.Write(id)
	if err := w.SetValue(fieldIndex(t, s, id, "child"), "x"); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("SetValue on sub-object field err = %v", err)
	}
	if err := w.SetBuffer(fieldIndex(t, s, id, "a"), 1); !errors.Is(err, ErrTypeMismatch) {
		t.Errorf("SetBuffer on value field err = %v", err)
	}
	if err := w.SetBuffer(fieldIndex(t, s, id, "data"), 0xabc); err != nil {
		t.Fatalf("SetBuffer: %v", err)
	}
	if got := s.Read(id).Buffer(fieldIndex(t, s, id, "data")); got != 0xabc {
		t.Errorf("Buffer = %x", got)
	}
	if _, err := s.Write(999); !errors.Is(err, ErrNotFound) {
		t.Errorf("Write unknown err = %v", err)
	}
}

func TestValueCopies(t *testing.T) {
	reg := schema.NewRegistry()
	s := NewStore(reg)
	root := s.CreateObject(reg.Type(schema.TypeRoot))
	i := fieldIndex(t, s, root, schema.FieldAssets)

	ids := Values([]ID{7, 8})
	w, _ := s.Write(root)
	_ = w.SetValue(i, ids)
	w.Commit()

	ids[0] = ID(99)
	got := IDs(s.Read(root).Value(i))
	if len(got) != 2 || got[0] != 7 {
		t.Errorf("stored value aliased caller slice: %v", got)
	}
}
