package graph

import (
	"fmt"

	"github.com/aidanlsb/kiln/internal/schema"
)

// Writer edits one object's local fields. Edits are visible immediately;
// Commit records them by bumping the version of the object and its owners.
type Writer struct {
	s *Store
	o *object

	// dropped holds owned objects to destroy on Commit: replaced
	// sub-objects and removed local set members.
	dropped []ID
}

// Write opens a writer on id.
func (s *Store) Write(id ID) (*Writer, error) {
	o, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return &Writer{s: s, o: o}, nil
}

// ID returns the handle being written.
func (w *Writer) ID() ID { return w.o.id }

// Field returns the index of the named field.
func (w *Writer) Field(name string) (int, bool) { return w.o.typ.Field(name) }

func (w *Writer) slot(i int, want schema.Kind) (*field, error) {
	if i < 0 || i >= len(w.o.fields) {
		return nil, fmt.Errorf("object %d: field %d out of range", w.o.id, i)
	}
	if got := w.o.typ.Fields[i].Kind; got != want {
		return nil, fmt.Errorf("%w: field %s is %s, not %s", ErrTypeMismatch, w.o.typ.Fields[i].Name, got, want)
	}
	return &w.o.fields[i], nil
}

// SetValue overrides value field i.
func (w *Writer) SetValue(i int, v any) error {
	f, err := w.slot(i, schema.KindValue)
	if err != nil {
		return err
	}
	f.set = true
	f.value = cloneValue(v)
	return nil
}

// SetValueByName overrides the named value field.
func (w *Writer) SetValueByName(name string, v any) error {
	i, ok := w.Field(name)
	if !ok {
		return fmt.Errorf("object %d: no field %q", w.o.id, name)
	}
	return w.SetValue(i, v)
}

// ClearValue drops the local override of value field i, so reads fall back
// to the prototype again.
func (w *Writer) ClearValue(i int) error {
	f, err := w.slot(i, schema.KindValue)
	if err != nil {
		return err
	}
	f.set = false
	f.value = nil
	return nil
}

// SetSubObject makes sub the owned sub-object of field i. A previously owned
// sub-object is destroyed on Commit.
func (w *Writer) SetSubObject(i int, sub ID) error {
	f, err := w.slot(i, schema.KindSubObject)
	if err != nil {
		return err
	}
	if f.set && f.sub != Nil && f.sub != sub && w.s.Owner(f.sub) == w.o.id {
		w.dropped = append(w.dropped, f.sub)
	}
	w.dropped = removeID(w.dropped, sub)
	f.set = true
	f.sub = sub
	if c, ok := w.s.objects[sub]; ok {
		c.owner = w.o.id
	}
	return nil
}

// AddToSet adds m to set field i. Re-adding an excluded inherited member
// lifts the exclusion instead.
func (w *Writer) AddToSet(i int, m ID) error {
	f, err := w.slot(i, schema.KindSubObjectSet)
	if err != nil {
		return err
	}
	if containsID(f.excluded, m) {
		f.excluded = removeID(f.excluded, m)
		if w.inherited(i, m) {
			return nil
		}
	}
	if !containsID(f.added, m) && !w.inherited(i, m) {
		w.dropped = removeID(w.dropped, m)
		f.added = append(f.added, m)
		if c, ok := w.s.objects[m]; ok && c.owner == Nil {
			c.owner = w.o.id
		}
	}
	return nil
}

// RemoveFromSet removes m from set field i. A local member is dropped from
// the additions and, if this object owns it, destroyed on Commit. An
// inherited member is recorded as an exclusion.
func (w *Writer) RemoveFromSet(i int, m ID) error {
	f, err := w.slot(i, schema.KindSubObjectSet)
	if err != nil {
		return err
	}
	if containsID(f.added, m) {
		f.added = removeID(f.added, m)
		if w.s.Owner(m) == w.o.id {
			w.dropped = append(w.dropped, m)
		}
		return nil
	}
	if w.inherited(i, m) && !containsID(f.excluded, m) {
		f.excluded = append(f.excluded, m)
	}
	return nil
}

// Exclude records m as an exclusion of set field i without checking the
// prototype. Used when loading, where the prototype may not be resolved yet.
func (w *Writer) Exclude(i int, m ID) error {
	f, err := w.slot(i, schema.KindSubObjectSet)
	if err != nil {
		return err
	}
	if !containsID(f.excluded, m) {
		f.excluded = append(f.excluded, m)
	}
	return nil
}

func (w *Writer) inherited(i int, m ID) bool {
	p, ok := w.s.objects[w.o.prototype]
	if !ok {
		return false
	}
	return containsID(w.s.effectiveSet(p, i, 0), m)
}

// SetBuffer sets the stream buffer id of field i.
func (w *Writer) SetBuffer(i int, buf uint64) error {
	f, err := w.slot(i, schema.KindStream)
	if err != nil {
		return err
	}
	f.set = true
	f.buffer = buf
	return nil
}

// Commit bumps the version of the object and every owner above it and
// destroys the owned objects the edits dropped.
func (w *Writer) Commit() {
	for _, id := range w.dropped {
		if w.s.Owner(id) == w.o.id {
			w.s.Destroy(id)
		}
	}
	w.dropped = nil
	w.s.bump(w.o)
}
