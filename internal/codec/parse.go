// Package codec reads and writes resources in the kiln text format.
//
// A resource is a brace-delimited object whose first two entries are _uuid
// and _type, optionally followed by _prototype, then the fields that the
// resource overrides locally. Scalars are quoted strings, text fields are
// [[raw]] blocks, stream fields are quoted hex buffer ids, sub-objects are
// nested resources and sub-object sets are {_exclude: [...] _values: [...]}
// deltas against the prototype.
package codec

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
)

const (
	keyUUID      = "_uuid"
	keyType      = "_type"
	keyPrototype = "_prototype"
	keyObject    = "_object"
	keyExclude   = "_exclude"
	keyValues    = "_values"
)

// Options configures parsing.
type Options struct {
	// Logger receives debug records for skipped tokens. Nil means
	// slog.Default().
	Logger *slog.Logger
}

type parser struct {
	sc    *scanner
	store *graph.Store
	ref   refResolver
}

// Parse reads one resource from data into the store and returns its handle.
// An object that already has the resource's stable id is reset and
// repopulated; references to unknown ids become placeholders. Owned objects
// the new text no longer mentions are destroyed.
func Parse(s *graph.Store, data []byte) (graph.ID, error) {
	return ParseWithOptions(s, data, Options{})
}

// ParseWithOptions is Parse with explicit options.
func ParseWithOptions(s *graph.Store, data []byte, opts Options) (graph.ID, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	p := &parser{
		sc:    &scanner{data: data, log: log},
		store: s,
		ref:   storeRef(s),
	}
	pos := 0
	if !p.sc.tryChar(&pos, '{') {
		p.sc.skipSpace(&pos)
		return graph.Nil, newSyntaxError(data, pos, "expected '{' at start of resource")
	}
	id, err := p.parseResource(&pos, true)
	if err != nil {
		return graph.Nil, err
	}
	if swept := s.SweepDetached(); len(swept) > 0 {
		log.Debug("dropped objects missing from reparse", "resource", id, "count", len(swept))
	}
	return id, nil
}

// parseResource reads a resource-info object. The cursor must be just past
// its opening brace. Nested resources of unknown types are skipped and yield
// graph.Nil.
func (p *parser) parseResource(pos *int, top bool) (graph.ID, error) {
	sc := p.sc
	start := *pos - 1

	u, err := p.header(pos, keyUUID)
	if err != nil {
		return graph.Nil, err
	}
	stable, perr := uuid.Parse(u)
	if perr != nil {
		return graph.Nil, newSyntaxError(sc.data, *pos, "invalid %s %q", keyUUID, u)
	}
	typeName, err := p.header(pos, keyType)
	if err != nil {
		return graph.Nil, err
	}

	typ := p.store.Registry().Type(typeName)
	if typ == nil {
		if top {
			return graph.Nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
		}
		sc.log.Debug("skipping resource of unknown type", "type", typeName, "uuid", stable)
		*pos = start
		sc.skipValue(pos)
		return graph.Nil, nil
	}

	proto := graph.Nil
	save := *pos
	if name, ok := sc.tryIdentifier(pos); ok && name == keyPrototype {
		if s, ok := sc.tryString(pos); ok {
			if pu, err := uuid.Parse(s); err == nil {
				proto = p.store.GetOrCreateByStableID(pu, typ)
			} else {
				sc.log.Debug("ignoring invalid prototype", "value", s)
			}
		}
	} else {
		*pos = save
	}

	id, err := p.materialize(stable, typ, proto)
	if err != nil {
		return graph.Nil, err
	}
	w, err := p.store.Write(id)
	if err != nil {
		return graph.Nil, err
	}

	var ferr error
	fields := func(name string, pos *int) bool {
		if ferr != nil {
			return false
		}
		if name == keyObject {
			if !sc.tryChar(pos, '{') {
				return false
			}
			parseEntries(sc, pos, func(name string, pos *int) bool {
				return p.parseField(w, typ, name, pos, &ferr)
			})
			return true
		}
		return p.parseField(w, typ, name, pos, &ferr)
	}
	parseEntries(sc, pos, fields)
	if ferr != nil {
		return graph.Nil, ferr
	}
	w.Commit()
	return id, nil
}

// header reads one mandatory `key: "value"` entry.
func (p *parser) header(pos *int, key string) (string, error) {
	sc := p.sc
	at := *pos
	sc.skipSpace(&at)
	name, ok := sc.tryIdentifier(pos)
	if !ok || name != key {
		return "", newSyntaxError(sc.data, at, "expected %s", key)
	}
	s, ok := sc.tryString(pos)
	if !ok {
		at = *pos
		sc.skipSpace(&at)
		return "", newSyntaxError(sc.data, at, "expected quoted value for %s", key)
	}
	return s, nil
}

func (p *parser) materialize(stable uuid.UUID, typ *schema.Type, proto graph.ID) (graph.ID, error) {
	if id, ok := p.store.Lookup(stable); ok {
		if err := p.store.Reset(id, typ, proto); err != nil {
			return graph.Nil, fmt.Errorf("resource %s: %w", stable, err)
		}
		return id, nil
	}
	if proto != graph.Nil {
		id, err := p.store.CreateDerived(proto, stable)
		if err != nil {
			return graph.Nil, fmt.Errorf("resource %s: %w", stable, err)
		}
		return id, nil
	}
	return p.store.CreateObjectWithID(typ, stable)
}

// parseField reads the value of one named field into w. It reports whether
// the value was consumed. Fatal errors from nested resources land in ferr.
func (p *parser) parseField(w *graph.Writer, typ *schema.Type, name string, pos *int, ferr *error) bool {
	sc := p.sc
	i, ok := typ.Field(name)
	if !ok {
		return false
	}
	f := typ.Fields[i]

	switch f.Kind {
	case schema.KindValue:
		v, ok := parseValue(sc, pos, f.Value, p.ref)
		if !ok {
			return false
		}
		_ = w.SetValue(i, v)
		return true

	case schema.KindStream:
		s, ok := sc.tryScalar(pos)
		if !ok {
			return false
		}
		buf, err := strconv.ParseUint(s, 16, 64)
		if err != nil {
			sc.log.Debug("skipping invalid buffer id", "field", name, "value", s)
			return true
		}
		_ = w.SetBuffer(i, buf)
		return true

	case schema.KindSubObject:
		if !sc.tryChar(pos, '{') {
			return false
		}
		sub, err := p.parseResource(pos, false)
		if err != nil {
			*ferr = err
			return true
		}
		if sub != graph.Nil {
			_ = w.SetSubObject(i, sub)
		}
		return true

	case schema.KindSubObjectSet:
		if !sc.tryChar(pos, '{') {
			return false
		}
		parseEntries(sc, pos, func(key string, pos *int) bool {
			switch key {
			case keyExclude:
				return p.parseExclusions(w, i, f, pos)
			case keyValues:
				return p.parseMembers(w, i, pos, ferr)
			}
			return false
		})
		return true
	}
	return false
}

func (p *parser) parseExclusions(w *graph.Writer, i int, f schema.Field, pos *int) bool {
	sc := p.sc
	if !sc.tryChar(pos, '[') {
		return false
	}
	of := p.store.Registry().Type(f.Of)
	for {
		sc.skipSpace(pos)
		if sc.eof(pos) {
			return true
		}
		if sc.peek(pos) == ']' {
			*pos++
			return true
		}
		s, ok := sc.tryString(pos)
		if !ok {
			sc.skipValue(pos)
			continue
		}
		u, err := uuid.Parse(s)
		if err != nil {
			sc.log.Debug("skipping invalid exclusion", "value", s)
			continue
		}
		_ = w.Exclude(i, p.store.GetOrCreateByStableID(u, of))
	}
}

func (p *parser) parseMembers(w *graph.Writer, i int, pos *int, ferr *error) bool {
	sc := p.sc
	if !sc.tryChar(pos, '[') {
		return false
	}
	for *ferr == nil {
		sc.skipSpace(pos)
		if sc.eof(pos) {
			return true
		}
		if sc.peek(pos) == ']' {
			*pos++
			return true
		}
		if !sc.tryChar(pos, '{') {
			sc.skipValue(pos)
			continue
		}
		m, err := p.parseResource(pos, false)
		if err != nil {
			*ferr = err
			return true
		}
		if m != graph.Nil {
			_ = w.AddToSet(i, m)
		}
	}
	return true
}
