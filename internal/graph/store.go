// Package graph is an in-memory object graph: typed objects addressed by a
// process-local handle and a stable uuid, with prototype inheritance,
// owned sub-objects and per-object versions.
//
// Values of uuid-typed fields are stored as handles (ID), not uuids; the codec
// translates between the two.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/schema"
)

// ID is a process-local object handle. The zero value is Nil.
type ID uint64

// Nil is the empty handle.
const Nil ID = 0

var (
	// ErrNotFound is returned for handles that do not name an object.
	ErrNotFound = errors.New("object not found")
	// ErrPrototypeCycle is returned when linking a prototype would make an
	// object inherit from itself.
	ErrPrototypeCycle = errors.New("prototype cycle")
	// ErrTypeMismatch is returned for prototypes of another type and for field
	// operations that do not fit the field's kind.
	ErrTypeMismatch = errors.New("type mismatch")
	// ErrDuplicateID is returned when a stable id is already in use.
	ErrDuplicateID = errors.New("stable id already in use")
)

type field struct {
	// set marks a local override of a value, sub-object or buffer field.
	set    bool
	value  any
	sub    ID
	buffer uint64

	// Sub-object-set deltas against the prototype.
	added    []ID
	excluded []ID
}

type object struct {
	id          ID
	stable      uuid.UUID
	typ         *schema.Type
	prototype   ID
	owner       ID
	fields      []field
	version     uint64
	active      bool
	placeholder bool
}

// Store holds every object. It is not safe for concurrent use.
type Store struct {
	reg      *schema.Registry
	objects  map[ID]*object
	byStable map[uuid.UUID]ID
	paths    map[ID]string
	next     ID

	// detached holds objects Reset released from their owner. A re-parse
	// adopts them again; SweepDetached destroys the rest.
	detached map[ID]bool
}

// NewStore creates an empty store over the given type registry.
func NewStore(reg *schema.Registry) *Store {
	if reg == nil {
		reg = schema.NewRegistry()
	}
	return &Store{
		reg:      reg,
		objects:  make(map[ID]*object),
		byStable: make(map[uuid.UUID]ID),
		paths:    make(map[ID]string),
		detached: make(map[ID]bool),
	}
}

// Registry returns the type registry the store was created with.
func (s *Store) Registry() *schema.Registry {
	return s.reg
}

func (s *Store) alloc(t *schema.Type) *object {
	s.next++
	o := &object{
		id:      s.next,
		typ:     t,
		fields:  make([]field, t.NumFields()),
		version: 1,
		active:  true,
	}
	s.objects[o.id] = o
	return o
}

func (s *Store) get(id ID) (*object, error) {
	o, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return o, nil
}

// CreateObject creates a fresh object of type t. The stable id is assigned
// lazily by StableID.
func (s *Store) CreateObject(t *schema.Type) ID {
	return s.alloc(t).id
}

// CreateObjectWithID creates a fresh object of type t with stable id u.
func (s *Store) CreateObjectWithID(t *schema.Type, u uuid.UUID) (ID, error) {
	if u == uuid.Nil {
		return s.CreateObject(t), nil
	}
	if _, ok := s.byStable[u]; ok {
		return Nil, fmt.Errorf("%w: %s", ErrDuplicateID, u)
	}
	o := s.alloc(t)
	o.stable = u
	s.byStable[u] = o.id
	return o.id, nil
}

// CreateDerived creates an object inheriting from proto. A nil u leaves the
// stable id to be assigned lazily.
func (s *Store) CreateDerived(proto ID, u uuid.UUID) (ID, error) {
	p, err := s.get(proto)
	if err != nil {
		return Nil, err
	}
	if u != uuid.Nil {
		if _, ok := s.byStable[u]; ok {
			return Nil, fmt.Errorf("%w: %s", ErrDuplicateID, u)
		}
	}
	o := s.alloc(p.typ)
	o.prototype = proto
	if u != uuid.Nil {
		o.stable = u
		s.byStable[u] = o.id
	}
	return o.id, nil
}

// GetOrCreateByStableID returns the object with stable id u, creating a
// placeholder of type t (which may be nil) if none exists yet. An untyped
// placeholder takes on t when one is given.
func (s *Store) GetOrCreateByStableID(u uuid.UUID, t *schema.Type) ID {
	if id, ok := s.byStable[u]; ok {
		if o := s.objects[id]; o.placeholder && o.typ == nil && t != nil {
			o.typ = t
			o.fields = make([]field, t.NumFields())
		}
		return id
	}
	o := s.alloc(t)
	o.placeholder = true
	if u == uuid.Nil {
		u = uuid.New()
	}
	o.stable = u
	s.byStable[u] = o.id
	return o.id
}

// Reset re-materializes an existing object as a fresh instance of t derived
// from proto (Nil for none). Local fields are cleared and owned objects are
// detached rather than destroyed, so a re-parse finds them again by stable id.
// The stable id, owner and path are kept. Used when a placeholder is resolved
// and when a resource is reloaded.
func (s *Store) Reset(id ID, t *schema.Type, proto ID) error {
	o, err := s.get(id)
	if err != nil {
		return err
	}
	if proto != Nil {
		if err := s.checkPrototype(o, t, proto); err != nil {
			return err
		}
	}
	s.detachOwned(o)
	o.typ = t
	o.prototype = proto
	o.fields = make([]field, t.NumFields())
	o.placeholder = false
	o.active = true
	s.bump(o)
	return nil
}

// SetPrototype links id to a new prototype, or unlinks it when proto is Nil.
func (s *Store) SetPrototype(id, proto ID) error {
	o, err := s.get(id)
	if err != nil {
		return err
	}
	if proto != Nil {
		if err := s.checkPrototype(o, o.typ, proto); err != nil {
			return err
		}
	}
	o.prototype = proto
	s.bump(o)
	return nil
}

func (s *Store) checkPrototype(o *object, t *schema.Type, proto ID) error {
	p, err := s.get(proto)
	if err != nil {
		return fmt.Errorf("prototype: %w", err)
	}
	if p.typ != t {
		return fmt.Errorf("%w: prototype of %s is %s", ErrTypeMismatch, typeName(t), typeName(p.typ))
	}
	for cur, n := p, 0; cur != nil; n++ {
		if cur.id == o.id || n > len(s.objects) {
			return ErrPrototypeCycle
		}
		cur = s.objects[cur.prototype]
	}
	return nil
}

func typeName(t *schema.Type) string {
	if t == nil {
		return "<untyped>"
	}
	return t.Name
}

// Exists reports whether id names an object (active or not).
func (s *Store) Exists(id ID) bool {
	_, ok := s.objects[id]
	return ok
}

// Type returns the object's type, or nil.
func (s *Store) Type(id ID) *schema.Type {
	if o, ok := s.objects[id]; ok {
		return o.typ
	}
	return nil
}

// Prototype returns the object's prototype, or Nil.
func (s *Store) Prototype(id ID) ID {
	if o, ok := s.objects[id]; ok {
		return o.prototype
	}
	return Nil
}

// Owner returns the object that owns id as a sub-object or set member.
func (s *Store) Owner(id ID) ID {
	if o, ok := s.objects[id]; ok {
		return o.owner
	}
	return Nil
}

// Version returns the object's version, or 0 for unknown handles.
func (s *Store) Version(id ID) uint64 {
	if o, ok := s.objects[id]; ok {
		return o.version
	}
	return 0
}

// IsActive reports whether the object exists and has not been deactivated.
func (s *Store) IsActive(id ID) bool {
	o, ok := s.objects[id]
	return ok && o.active
}

// IsPlaceholder reports whether the object was created only to satisfy a
// reference and has not been materialized yet.
func (s *Store) IsPlaceholder(id ID) bool {
	o, ok := s.objects[id]
	return ok && o.placeholder
}

// StableID returns the object's stable id, assigning one on first use.
// Unknown handles yield uuid.Nil.
func (s *Store) StableID(id ID) uuid.UUID {
	o, ok := s.objects[id]
	if !ok {
		return uuid.Nil
	}
	if o.stable == uuid.Nil {
		o.stable = uuid.New()
		s.byStable[o.stable] = id
	}
	return o.stable
}

// HasStableID reports whether a stable id has been assigned.
func (s *Store) HasStableID(id ID) bool {
	o, ok := s.objects[id]
	return ok && o.stable != uuid.Nil
}

// Lookup returns the object with stable id u.
func (s *Store) Lookup(u uuid.UUID) (ID, bool) {
	id, ok := s.byStable[u]
	return id, ok
}

// Touch records a change without modifying any field.
func (s *Store) Touch(id ID) {
	if o, ok := s.objects[id]; ok {
		s.bump(o)
	}
}

// Deactivate marks the object deleted while keeping it addressable.
func (s *Store) Deactivate(id ID) {
	if o, ok := s.objects[id]; ok && o.active {
		o.active = false
		s.bump(o)
	}
}

// Destroy removes the object and everything it owns.
func (s *Store) Destroy(id ID) {
	o, ok := s.objects[id]
	if !ok {
		return
	}
	s.destroyOwned(o)
	delete(s.objects, id)
	delete(s.paths, id)
	if o.stable != uuid.Nil && s.byStable[o.stable] == id {
		delete(s.byStable, o.stable)
	}
}

func (s *Store) destroyOwned(o *object) {
	for _, f := range o.fields {
		if f.sub != Nil && s.Owner(f.sub) == o.id {
			s.Destroy(f.sub)
		}
		for _, m := range f.added {
			if s.Owner(m) == o.id {
				s.Destroy(m)
			}
		}
	}
}

func (s *Store) detachOwned(o *object) {
	detach := func(id ID) {
		if c, ok := s.objects[id]; ok && c.owner == o.id {
			c.owner = Nil
			s.detached[id] = true
		}
	}
	for _, f := range o.fields {
		detach(f.sub)
		for _, m := range f.added {
			detach(m)
		}
	}
}

// SweepDetached destroys the objects Reset detached that nothing owns
// again, such as sub-objects and set members dropped from a reloaded file.
// Objects with a storage path are kept. It returns the destroyed handles.
func (s *Store) SweepDetached() []ID {
	var out []ID
	for id := range s.detached {
		o, ok := s.objects[id]
		if !ok || o.owner != Nil {
			continue
		}
		if _, stored := s.paths[id]; stored {
			continue
		}
		s.Destroy(id)
		out = append(out, id)
	}
	clear(s.detached)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// bump increments the version of o and of every object owning it.
func (s *Store) bump(o *object) {
	seen := make(map[ID]bool)
	for cur := o; cur != nil && !seen[cur.id]; cur = s.objects[cur.owner] {
		seen[cur.id] = true
		cur.version++
	}
}

// SetPath records where the object is stored.
func (s *Store) SetPath(id ID, path string) {
	if _, ok := s.objects[id]; ok {
		s.paths[id] = path
	}
}

// RemovePath forgets the object's storage path.
func (s *Store) RemovePath(id ID) {
	delete(s.paths, id)
}

// Path returns the object's storage path.
func (s *Store) Path(id ID) (string, bool) {
	p, ok := s.paths[id]
	return p, ok
}

// Objects returns every handle in ascending order.
func (s *Store) Objects() []ID {
	ids := make([]ID, 0, len(s.objects))
	for id := range s.objects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of objects.
func (s *Store) Len() int {
	return len(s.objects)
}

// IDs converts a uuid-array field value into handles, dropping anything that
// is not a handle.
func IDs(v any) []ID {
	arr, _ := v.([]any)
	out := make([]ID, 0, len(arr))
	for _, e := range arr {
		if id, ok := e.(ID); ok && id != Nil {
			out = append(out, id)
		}
	}
	return out
}

// Values converts handles into a uuid-array field value.
func Values(ids []ID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	case schema.Struct:
		out := make(schema.Struct, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
