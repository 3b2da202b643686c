package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aidanlsb/kiln/internal/slugs"
)

// Registry holds every known resource type and struct layout.
type Registry struct {
	types   map[string]*Type
	structs map[string]*StructType
}

// NewRegistry returns a registry containing only the built-in types.
func NewRegistry() *Registry {
	r := &Registry{
		types:   make(map[string]*Type),
		structs: make(map[string]*StructType),
	}
	for _, t := range builtinTypes() {
		r.types[t.Name] = t
	}
	return r
}

func builtinTypes() []*Type {
	root, _ := NewType(TypeRoot,
		Field{Name: FieldName, Kind: KindValue, Value: String},
		Field{Name: FieldDirectories, Kind: KindValue, Value: ArrayOf(UUID)},
		Field{Name: FieldAssets, Kind: KindValue, Value: ArrayOf(UUID)},
	)
	dir, _ := NewType(TypeDirectory,
		Field{Name: FieldName, Kind: KindValue, Value: String},
		Field{Name: FieldDirectory, Kind: KindValue, Value: UUID},
	)
	asset, _ := NewType(TypeAsset,
		Field{Name: FieldName, Kind: KindValue, Value: String},
		Field{Name: FieldDirectory, Kind: KindValue, Value: UUID},
		Field{Name: FieldExtension, Kind: KindValue, Value: String},
		Field{Name: FieldObject, Kind: KindSubObject},
	)
	return []*Type{root, dir, asset}
}

// IsBuiltin reports whether name is one of the built-in tree types.
func IsBuiltin(name string) bool {
	switch name {
	case TypeRoot, TypeDirectory, TypeAsset:
		return true
	}
	return false
}

// Register adds a type. Built-in types cannot be replaced. A type without an
// extension gets the slug of its name.
func (r *Registry) Register(t *Type) error {
	if t == nil || t.Name == "" {
		return fmt.Errorf("type has no name")
	}
	if IsBuiltin(t.Name) {
		return fmt.Errorf("type %s is built-in", t.Name)
	}
	if t.index == nil {
		nt, err := NewType(t.Name, t.Fields...)
		if err != nil {
			return err
		}
		nt.Data = t.Data
		nt.Extension = t.Extension
		t = nt
	}
	if t.Extension == "" {
		t.Extension = slugs.Extension(t.Name)
	}
	r.types[t.Name] = t
	return nil
}

// RegisterStruct adds a named struct layout.
func (r *Registry) RegisterStruct(st *StructType) error {
	if st == nil || st.Name == "" {
		return fmt.Errorf("struct has no name")
	}
	r.structs[st.Name] = st
	return nil
}

// Type returns the named type, or nil.
func (r *Registry) Type(name string) *Type {
	return r.types[name]
}

// Struct returns the named struct layout, or nil.
func (r *Registry) Struct(name string) *StructType {
	return r.structs[name]
}

// Types returns all type names, sorted.
func (r *Registry) Types() []string {
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseValueType parses a type expression such as "int", "string[][]" or the
// name of a registered struct.
func (r *Registry) ParseValueType(expr string) (*ValueType, error) {
	expr = strings.TrimSpace(expr)
	if strings.HasSuffix(expr, "[]") {
		elem, err := r.ParseValueType(strings.TrimSuffix(expr, "[]"))
		if err != nil {
			return nil, err
		}
		return ArrayOf(elem), nil
	}
	switch expr {
	case "string":
		return String, nil
	case "number", "float":
		return Number, nil
	case "int", "integer":
		return Int, nil
	case "bool", "boolean":
		return Bool, nil
	case "uuid", "ref":
		return UUID, nil
	case "text":
		return Text, nil
	case "":
		return nil, fmt.Errorf("empty value type")
	}
	if st, ok := r.structs[expr]; ok {
		return StructOf(st), nil
	}
	return nil, fmt.Errorf("unknown value type %q", expr)
}
