// Package schema describes resource types: their ordered fields, field kinds,
// and the value types used to convert field payloads to and from text.
package schema

import "fmt"

// Kind is the storage kind of a field.
type Kind int

const (
	// KindValue is an inline typed payload with text conversion.
	KindValue Kind = iota
	// KindSubObject owns exactly one other object.
	KindSubObject
	// KindSubObjectSet owns an unordered collection of objects.
	KindSubObjectSet
	// KindStream references an external binary buffer by a 64-bit id.
	KindStream
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindSubObject:
		return "subobject"
	case KindSubObjectSet:
		return "set"
	case KindStream:
		return "stream"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses the kind names used in types.yaml. An empty name is a
// value field.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "", "value":
		return KindValue, nil
	case "subobject", "sub_object":
		return KindSubObject, nil
	case "set", "subobject_set", "sub_object_set":
		return KindSubObjectSet, nil
	case "stream", "buffer":
		return KindStream, nil
	default:
		return 0, fmt.Errorf("unknown field kind %q", s)
	}
}

// Built-in type names. These make up the directory-shaped part of the graph
// that the asset tree projects.
const (
	TypeRoot      = "root"
	TypeDirectory = "directory"
	TypeAsset     = "asset"
)

// Built-in field names.
const (
	FieldName        = "name"
	FieldDirectories = "directories"
	FieldAssets      = "assets"
	FieldDirectory   = "directory"
	FieldExtension   = "extension"
	FieldObject      = "object"
)

// Field is one declared field of a Type.
type Field struct {
	Name string
	Kind Kind

	// Value is the value type of a KindValue field; nil for other kinds.
	Value *ValueType

	// Of names the expected type of owned objects for sub-object and
	// sub-object-set fields. Informational only.
	Of string
}

// Type is a resource type: an ordered list of named fields.
type Type struct {
	Name string

	// Data marks a flat data type. Its fields are serialized as a plain value
	// object under _object instead of inline.
	Data bool

	// Extension is the file extension of assets whose payload has this type.
	Extension string

	Fields []Field

	index map[string]int
}

// NewType creates a type and indexes its fields by name. Later duplicates of
// a field name are rejected.
func NewType(name string, fields ...Field) (*Type, error) {
	t := &Type{Name: name, Fields: fields, index: make(map[string]int, len(fields))}
	for i, f := range fields {
		if f.Name == "" {
			return nil, fmt.Errorf("type %s: field %d has no name", name, i)
		}
		if _, dup := t.index[f.Name]; dup {
			return nil, fmt.Errorf("type %s: duplicate field %q", name, f.Name)
		}
		if f.Kind == KindValue && f.Value == nil {
			return nil, fmt.Errorf("type %s: value field %q has no value type", name, f.Name)
		}
		t.index[f.Name] = i
	}
	return t, nil
}

// Field returns the index of the named field.
func (t *Type) Field(name string) (int, bool) {
	if t == nil {
		return 0, false
	}
	i, ok := t.index[name]
	return i, ok
}

// NumFields returns the number of declared fields.
func (t *Type) NumFields() int {
	if t == nil {
		return 0
	}
	return len(t.Fields)
}
