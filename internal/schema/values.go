package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ValueKind is the payload kind of a value type.
type ValueKind int

const (
	ValueString ValueKind = iota
	ValueNumber
	ValueInt
	ValueBool
	// ValueUUID is a reference to another object by stable identifier.
	ValueUUID
	// ValueText is free multi-line text, written as a raw block.
	ValueText
	ValueArray
	ValueStruct
)

// ValueType describes an inline field payload.
//
// Go representations: string (String, Text), float64 (Number), int64 (Int),
// bool (Bool), uuid.UUID (UUID, or a store handle once resolved), []any
// (Array) and Struct (Struct).
type ValueType struct {
	Kind ValueKind

	// Elem is the element type of an array.
	Elem *ValueType

	// Struct is the layout of a struct value.
	Struct *StructType
}

// StructType is a named layout of struct fields.
type StructType struct {
	Name   string
	Fields []StructField
}

// StructField is one field of a StructType.
type StructField struct {
	Name string
	Type *ValueType
}

// Struct is a struct value keyed by field name. Missing keys are unset.
type Struct map[string]any

// Common scalar value types.
var (
	String = &ValueType{Kind: ValueString}
	Number = &ValueType{Kind: ValueNumber}
	Int    = &ValueType{Kind: ValueInt}
	Bool   = &ValueType{Kind: ValueBool}
	UUID   = &ValueType{Kind: ValueUUID}
	Text   = &ValueType{Kind: ValueText}
)

// ArrayOf returns an array type with the given element type.
func ArrayOf(elem *ValueType) *ValueType {
	return &ValueType{Kind: ValueArray, Elem: elem}
}

// StructOf returns a struct value type with the given layout.
func StructOf(st *StructType) *ValueType {
	return &ValueType{Kind: ValueStruct, Struct: st}
}

// Field returns the named struct field.
func (st *StructType) Field(name string) (StructField, bool) {
	if st == nil {
		return StructField{}, false
	}
	for _, f := range st.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return StructField{}, false
}

// IsScalar reports whether the type converts to and from a single token.
func (vt *ValueType) IsScalar() bool {
	return vt != nil && vt.Kind != ValueArray && vt.Kind != ValueStruct
}

// String renders the type the way types.yaml spells it.
func (vt *ValueType) String() string {
	if vt == nil {
		return "<nil>"
	}
	switch vt.Kind {
	case ValueString:
		return "string"
	case ValueNumber:
		return "number"
	case ValueInt:
		return "int"
	case ValueBool:
		return "bool"
	case ValueUUID:
		return "uuid"
	case ValueText:
		return "text"
	case ValueArray:
		return vt.Elem.String() + "[]"
	case ValueStruct:
		if vt.Struct != nil && vt.Struct.Name != "" {
			return vt.Struct.Name
		}
		return "struct"
	}
	return fmt.Sprintf("value(%d)", int(vt.Kind))
}

// FromText converts the text form of a scalar into its Go value.
func (vt *ValueType) FromText(s string) (any, error) {
	if !vt.IsScalar() {
		return nil, fmt.Errorf("%s has no scalar text form", vt)
	}
	switch vt.Kind {
	case ValueString, ValueText:
		return s, nil
	case ValueNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", s, err)
		}
		return f, nil
	case ValueInt:
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid int %q: %w", s, err)
		}
		return n, nil
	case ValueBool:
		b, err := strconv.ParseBool(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q: %w", s, err)
		}
		return b, nil
	case ValueUUID:
		if strings.TrimSpace(s) == "" {
			return uuid.Nil, nil
		}
		u, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid uuid %q: %w", s, err)
		}
		return u, nil
	}
	return nil, fmt.Errorf("unsupported value kind %d", vt.Kind)
}

// ToText converts a scalar Go value into its text form.
func (vt *ValueType) ToText(v any) (string, error) {
	if !vt.IsScalar() {
		return "", fmt.Errorf("%s has no scalar text form", vt)
	}
	switch vt.Kind {
	case ValueString, ValueText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case ValueNumber:
		switch n := v.(type) {
		case float64:
			return strconv.FormatFloat(n, 'g', -1, 64), nil
		case int64:
			return strconv.FormatInt(n, 10), nil
		case int:
			return strconv.Itoa(n), nil
		}
	case ValueInt:
		switch n := v.(type) {
		case int64:
			return strconv.FormatInt(n, 10), nil
		case int:
			return strconv.Itoa(n), nil
		}
	case ValueBool:
		if b, ok := v.(bool); ok {
			return strconv.FormatBool(b), nil
		}
	case ValueUUID:
		if u, ok := v.(uuid.UUID); ok {
			if u == uuid.Nil {
				return "", nil
			}
			return u.String(), nil
		}
	}
	return "", fmt.Errorf("%T is not a %s value", v, vt)
}

// Zero returns the zero value of the type.
func (vt *ValueType) Zero() any {
	if vt == nil {
		return nil
	}
	switch vt.Kind {
	case ValueString, ValueText:
		return ""
	case ValueNumber:
		return float64(0)
	case ValueInt:
		return int64(0)
	case ValueBool:
		return false
	case ValueUUID:
		return uuid.Nil
	case ValueArray:
		return []any{}
	case ValueStruct:
		return Struct{}
	}
	return nil
}
