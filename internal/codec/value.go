package codec

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
)

// refResolver turns a parsed reference into the value stored for it.
type refResolver func(u uuid.UUID) any

func plainRef(u uuid.UUID) any { return u }

// ParseValue parses the text form of a single value of type vt. References
// stay uuid.UUID values.
func ParseValue(data []byte, vt *schema.ValueType) (any, error) {
	sc := &scanner{data: data, log: discardLogger}
	pos := 0
	v, ok := parseValue(sc, &pos, vt, plainRef)
	if !ok {
		return nil, fmt.Errorf("no %s value found", vt)
	}
	return v, nil
}

// WriteValue writes the text form of v as type vt. References may be
// uuid.UUID values.
func WriteValue(v any, vt *schema.ValueType) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, vt, 0, plainStable); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// parseValue reads one value of type vt. On failure the cursor is left
// where it was.
func parseValue(sc *scanner, pos *int, vt *schema.ValueType, ref refResolver) (any, bool) {
	if vt == nil {
		return nil, false
	}
	p := *pos
	switch vt.Kind {
	case schema.ValueArray:
		if !sc.tryChar(&p, '[') {
			return nil, false
		}
		out := []any{}
		for {
			sc.skipSpace(&p)
			if sc.eof(&p) {
				break
			}
			if sc.peek(&p) == ']' {
				p++
				break
			}
			if e, ok := parseValue(sc, &p, vt.Elem, ref); ok {
				out = append(out, e)
				continue
			}
			sc.log.Debug("skipping malformed array element", "type", vt.Elem.String(), "offset", p)
			sc.skipValue(&p)
		}
		*pos = p
		return out, true

	case schema.ValueStruct:
		if !sc.tryChar(&p, '{') {
			return nil, false
		}
		out := schema.Struct{}
		parseEntries(sc, &p, func(name string, p *int) bool {
			f, ok := vt.Struct.Field(name)
			if !ok {
				return false
			}
			v, ok := parseValue(sc, p, f.Type, ref)
			if ok {
				out[name] = v
			}
			return ok
		})
		*pos = p
		return out, true

	case schema.ValueText:
		if s, ok := sc.tryRawText(&p); ok {
			*pos = p
			return s, true
		}
		if s, ok := sc.tryString(&p); ok {
			*pos = p
			return s, true
		}
		return nil, false

	case schema.ValueUUID:
		s, ok := sc.tryScalar(&p)
		if !ok {
			return nil, false
		}
		v, err := vt.FromText(s)
		if err != nil {
			sc.log.Debug("skipping invalid reference", "value", s, "error", err)
			return nil, false
		}
		*pos = p
		return ref(v.(uuid.UUID)), true

	default:
		s, ok := sc.tryScalar(&p)
		if !ok {
			return nil, false
		}
		v, err := vt.FromText(s)
		if err != nil {
			sc.log.Debug("skipping invalid value", "type", vt.String(), "value", s, "error", err)
			return nil, false
		}
		*pos = p
		return v, true
	}
}

// parseEntries reads `name: value` entries until the closing '}'. The
// cursor must be just past the opening brace. entry consumes the value and
// reports whether it did; unconsumed values are skipped.
func parseEntries(sc *scanner, pos *int, entry func(name string, pos *int) bool) {
	for {
		sc.skipSpace(pos)
		if sc.eof(pos) {
			return
		}
		if sc.peek(pos) == '}' {
			*pos++
			return
		}
		name, ok := sc.tryIdentifier(pos)
		if !ok {
			sc.log.Debug("skipping malformed entry", "offset", *pos)
			sc.skipValue(pos)
			continue
		}
		if name == "" || !entry(name, pos) {
			if name != "" {
				sc.log.Debug("skipping field", "name", name)
			}
			sc.skipValue(pos)
		}
	}
}

// stableResolver turns a stored reference into the uuid written for it.
type stableResolver func(v any) (uuid.UUID, bool)

func plainStable(v any) (uuid.UUID, bool) {
	u, ok := v.(uuid.UUID)
	return u, ok
}

func writeIndent(buf *bytes.Buffer, depth int) {
	for i := 0; i < depth; i++ {
		buf.WriteByte('\t')
	}
}

func writeQuoted(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			buf.WriteByte('\\')
		}
		buf.WriteByte(c)
	}
	buf.WriteByte('"')
}

// rawSafe reports whether s can be written as a [[ ]] block and read back
// unchanged.
func rawSafe(s string) bool {
	return !strings.Contains(s, "]]") && !strings.HasSuffix(s, "]")
}

func writeValue(buf *bytes.Buffer, v any, vt *schema.ValueType, depth int, stable stableResolver) error {
	switch vt.Kind {
	case schema.ValueArray:
		arr, ok := v.([]any)
		if !ok {
			return fmt.Errorf("%T is not a %s value", v, vt)
		}
		if len(arr) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteString("[\n")
		for _, e := range arr {
			writeIndent(buf, depth+1)
			if err := writeValue(buf, e, vt.Elem, depth+1, stable); err != nil {
				return err
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte(']')
		return nil

	case schema.ValueStruct:
		st, ok := v.(schema.Struct)
		if !ok {
			return fmt.Errorf("%T is not a %s value", v, vt)
		}
		if len(st) == 0 || vt.Struct == nil {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteString("{\n")
		for _, f := range vt.Struct.Fields {
			fv, ok := st[f.Name]
			if !ok {
				continue
			}
			writeIndent(buf, depth+1)
			buf.WriteString(f.Name)
			buf.WriteString(": ")
			if err := writeValue(buf, fv, f.Type, depth+1, stable); err != nil {
				return fmt.Errorf("%s: %w", f.Name, err)
			}
			buf.WriteByte('\n')
		}
		writeIndent(buf, depth)
		buf.WriteByte('}')
		return nil

	case schema.ValueText:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%T is not a %s value", v, vt)
		}
		if rawSafe(s) {
			buf.WriteString("[[")
			buf.WriteString(s)
			buf.WriteString("]]")
		} else {
			writeQuoted(buf, s)
		}
		return nil

	case schema.ValueUUID:
		u, ok := stable(v)
		if !ok {
			return fmt.Errorf("%T is not a %s value", v, vt)
		}
		s, _ := vt.ToText(u)
		writeQuoted(buf, s)
		return nil

	default:
		s, err := vt.ToText(v)
		if err != nil {
			return err
		}
		writeQuoted(buf, s)
		return nil
	}
}

// storeRef resolves parsed references to handles, creating placeholders.
func storeRef(s *graph.Store) refResolver {
	return func(u uuid.UUID) any {
		if u == uuid.Nil {
			return graph.Nil
		}
		return s.GetOrCreateByStableID(u, nil)
	}
}

// storeStable writes handles as the stable id of the object they name.
func storeStable(s *graph.Store) stableResolver {
	return func(v any) (uuid.UUID, bool) {
		switch x := v.(type) {
		case graph.ID:
			if x == graph.Nil {
				return uuid.Nil, true
			}
			return s.StableID(x), true
		case uuid.UUID:
			return x, true
		}
		return uuid.Nil, false
	}
}
