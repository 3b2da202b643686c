package graph

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/schema"
)

// View is a read-only view of one object's fields. A resolved view falls
// through to the prototype chain for fields that are not set locally; a local
// view reports only the object's own overrides.
type View struct {
	s       *Store
	o       *object
	resolve bool
}

// Read returns a prototype-resolved view, or nil if id is unknown.
func (s *Store) Read(id ID) *View {
	o, ok := s.objects[id]
	if !ok {
		return nil
	}
	return &View{s: s, o: o, resolve: true}
}

// ReadWithoutPrototypes returns a view of local overrides only, or nil if id
// is unknown.
func (s *Store) ReadWithoutPrototypes(id ID) *View {
	o, ok := s.objects[id]
	if !ok {
		return nil
	}
	return &View{s: s, o: o}
}

func (v *View) ID() ID { return v.o.id }
func (v *View) Type() *schema.Type { return v.o.typ }
func (v *View) Prototype() ID { return v.o.prototype }
func (v *View) StableID() uuid.UUID { return v.s.StableID(v.o.id) }
func (v *View) Field(name string) (int, bool) { return v.o.typ.Field(name) }

// lookup returns the field slot that supplies field i, walking the prototype
// chain for resolved views. It panics on a prototype cycle, which the store
// never creates.
func (v *View) lookup(i int) *field {
	if i < 0 || i >= len(v.o.fields) {
		return nil
	}
	if !v.resolve {
		f := &v.o.fields[i]
		if !f.set {
			return nil
		}
		return f
	}
	return v.s.resolve(v.o, i, 0)
}

func (s *Store) resolve(o *object, i int, depth int) *field {
	if depth > len(s.objects) {
		panic(fmt.Sprintf("graph: prototype cycle at object %d", o.id))
	}
	if i < len(o.fields) && o.fields[i].set {
		return &o.fields[i]
	}
	p, ok := s.objects[o.prototype]
	if !ok {
		return nil
	}
	return s.resolve(p, i, depth+1)
}

// Has reports whether field i holds a value in this view.
func (v *View) Has(i int) bool {
	return v.lookup(i) != nil
}

// Value returns a copy of a value field, or nil if unset.
func (v *View) Value(i int) any {
	f := v.lookup(i)
	if f == nil {
		return nil
	}
	return cloneValue(f.value)
}

// SubObject returns the sub-object of field i, or Nil.
func (v *View) SubObject(i int) ID {
	f := v.lookup(i)
	if f == nil {
		return Nil
	}
	return f.sub
}

// Buffer returns the stream buffer id of field i, or 0.
func (v *View) Buffer(i int) uint64 {
	f := v.lookup(i)
	if f == nil {
		return 0
	}
	return f.buffer
}

// Set returns the members of set field i. A resolved view returns the
// effective set; a local view returns only local additions.
func (v *View) Set(i int) []ID {
	if i < 0 || i >= len(v.o.fields) {
		return nil
	}
	if !v.resolve {
		return append([]ID(nil), v.o.fields[i].added...)
	}
	return v.s.effectiveSet(v.o, i, 0)
}

// Excluded returns the local exclusions of set field i.
func (v *View) Excluded(i int) []ID {
	if i < 0 || i >= len(v.o.fields) {
		return nil
	}
	return append([]ID(nil), v.o.fields[i].excluded...)
}

// Contains reports whether m is in the effective set of field i.
func (v *View) Contains(i int, m ID) bool {
	for _, id := range v.s.effectiveSet(v.o, i, 0) {
		if id == m {
			return true
		}
	}
	return false
}

// effectiveSet is the prototype's effective set minus local exclusions plus
// local additions, prototype members first.
func (s *Store) effectiveSet(o *object, i int, depth int) []ID {
	if depth > len(s.objects) {
		panic(fmt.Sprintf("graph: prototype cycle at object %d", o.id))
	}
	var out []ID
	var f field
	if i < len(o.fields) {
		f = o.fields[i]
	}
	if p, ok := s.objects[o.prototype]; ok {
		for _, m := range s.effectiveSet(p, i, depth+1) {
			if !containsID(f.excluded, m) {
				out = append(out, m)
			}
		}
	}
	for _, m := range f.added {
		if !containsID(out, m) {
			out = append(out, m)
		}
	}
	return out
}

func containsID(ids []ID, id ID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func removeID(ids []ID, id ID) []ID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
