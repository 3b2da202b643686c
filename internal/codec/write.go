package codec

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
)

type writer struct {
	buf    bytes.Buffer
	store  *graph.Store
	stable stableResolver
}

// Write returns the text form of resource id, including everything it owns.
// Only local overrides are written; inherited fields come back through
// _prototype.
func Write(s *graph.Store, id graph.ID) ([]byte, error) {
	w := &writer{store: s, stable: storeStable(s)}
	if err := w.resource(id, 0); err != nil {
		return nil, err
	}
	w.buf.WriteByte('\n')
	return w.buf.Bytes(), nil
}

func (w *writer) resource(id graph.ID, depth int) error {
	local := w.store.ReadWithoutPrototypes(id)
	if local == nil {
		return fmt.Errorf("%w: %d", graph.ErrNotFound, id)
	}
	typ := local.Type()
	if typ == nil {
		return fmt.Errorf("object %d has no type", id)
	}

	b := &w.buf
	b.WriteString("{\n")
	writeIndent(b, depth+1)
	b.WriteString(keyUUID + ": ")
	writeQuoted(b, local.StableID().String())
	b.WriteByte('\n')
	writeIndent(b, depth+1)
	b.WriteString(keyType + ": ")
	writeQuoted(b, typ.Name)
	b.WriteByte('\n')
	if proto := local.Prototype(); proto != graph.Nil {
		writeIndent(b, depth+1)
		b.WriteString(keyPrototype + ": ")
		writeQuoted(b, w.store.StableID(proto).String())
		b.WriteByte('\n')
	}

	if typ.Data {
		writeIndent(b, depth+1)
		b.WriteString(keyObject + ": ")
		var body writer
		body.store, body.stable = w.store, w.stable
		if err := body.fields(local, typ, depth+2); err != nil {
			return err
		}
		if body.buf.Len() == 0 {
			b.WriteString("{}\n")
		} else {
			b.WriteString("{\n")
			b.Write(body.buf.Bytes())
			writeIndent(b, depth+1)
			b.WriteString("}\n")
		}
	} else if err := w.fields(local, typ, depth+1); err != nil {
		return err
	}

	writeIndent(b, depth)
	b.WriteByte('}')
	return nil
}

// fields writes values and streams, then sub-objects, then sub-object sets,
// each group in declaration order.
func (w *writer) fields(local *graph.View, typ *schema.Type, depth int) error {
	b := &w.buf
	for i, f := range typ.Fields {
		if !local.Has(i) {
			continue
		}
		switch f.Kind {
		case schema.KindValue:
			writeIndent(b, depth)
			b.WriteString(f.Name + ": ")
			if err := writeValue(b, local.Value(i), f.Value, depth, w.stable); err != nil {
				return fmt.Errorf("%s.%s: %w", typ.Name, f.Name, err)
			}
			b.WriteByte('\n')
		case schema.KindStream:
			writeIndent(b, depth)
			b.WriteString(f.Name + ": ")
			writeQuoted(b, strconv.FormatUint(local.Buffer(i), 16))
			b.WriteByte('\n')
		}
	}

	for i, f := range typ.Fields {
		if f.Kind != schema.KindSubObject || !local.Has(i) {
			continue
		}
		sub := local.SubObject(i)
		if !w.store.Exists(sub) {
			continue
		}
		writeIndent(b, depth)
		b.WriteString(f.Name + ": ")
		if err := w.resource(sub, depth); err != nil {
			return err
		}
		b.WriteByte('\n')
	}

	for i, f := range typ.Fields {
		if f.Kind != schema.KindSubObjectSet {
			continue
		}
		excluded := w.exclusions(local, i)
		var added []graph.ID
		for _, m := range local.Set(i) {
			if w.store.Exists(m) {
				added = append(added, m)
			}
		}
		if len(excluded) == 0 && len(added) == 0 {
			continue
		}
		writeIndent(b, depth)
		b.WriteString(f.Name + ": {\n")
		if len(excluded) > 0 {
			writeIndent(b, depth+1)
			b.WriteString(keyExclude + ": [\n")
			for _, m := range excluded {
				writeIndent(b, depth+2)
				writeQuoted(b, w.store.StableID(m).String())
				b.WriteByte('\n')
			}
			writeIndent(b, depth+1)
			b.WriteString("]\n")
		}
		if len(added) > 0 {
			writeIndent(b, depth+1)
			b.WriteString(keyValues + ": [\n")
			for _, m := range added {
				writeIndent(b, depth+2)
				if err := w.resource(m, depth+2); err != nil {
					return err
				}
				b.WriteByte('\n')
			}
			writeIndent(b, depth+1)
			b.WriteString("]\n")
		}
		writeIndent(b, depth)
		b.WriteString("}\n")
	}
	return nil
}

// exclusions returns the local exclusions of set field i that still name a
// member of the prototype's effective set. While any prototype up the chain
// is only a placeholder the effective set is incomplete, so every exclusion
// is kept.
func (w *writer) exclusions(local *graph.View, i int) []graph.ID {
	excluded := local.Excluded(i)
	proto := local.Prototype()
	if proto == graph.Nil {
		return nil
	}
	if w.unresolvedChain(proto) {
		return excluded
	}
	pv := w.store.Read(proto)
	var out []graph.ID
	for _, m := range excluded {
		if pv.Contains(i, m) {
			out = append(out, m)
		}
	}
	return out
}

func (w *writer) unresolvedChain(proto graph.ID) bool {
	for steps := w.store.Len(); proto != graph.Nil && steps >= 0; steps-- {
		if w.store.IsPlaceholder(proto) {
			return true
		}
		proto = w.store.Prototype(proto)
	}
	return false
}
