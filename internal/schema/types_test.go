package schema

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{TypeRoot, TypeDirectory, TypeAsset} {
		if r.Type(name) == nil {
			t.Errorf("expected built-in type %q", name)
		}
	}

	asset := r.Type(TypeAsset)
	i, ok := asset.Field(FieldObject)
	if !ok {
		t.Fatal("asset should have 'object' field")
	}
	if asset.Fields[i].Kind != KindSubObject {
		t.Errorf("asset.object kind = %v, want subobject", asset.Fields[i].Kind)
	}

	root := r.Type(TypeRoot)
	i, ok = root.Field(FieldAssets)
	if !ok {
		t.Fatal("root should have 'assets' field")
	}
	if got := root.Fields[i].Value.String(); got != "uuid[]" {
		t.Errorf("root.assets type = %q, want uuid[]", got)
	}
}

func TestRegister(t *testing.T) {
	t.Run("default extension", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(&Type{Name: "Height Map", Fields: []Field{{Name: "w", Kind: KindValue, Value: Int}}}); err != nil {
			t.Fatalf("Register: %v", err)
		}
		typ := r.Type("Height Map")
		if typ.Extension != "height-map" {
			t.Errorf("Extension = %q, want height-map", typ.Extension)
		}
		if _, ok := typ.Field("w"); !ok {
			t.Error("expected field index to be built")
		}
	})

	t.Run("builtin rejected", func(t *testing.T) {
		r := NewRegistry()
		if err := r.Register(&Type{Name: TypeAsset}); err == nil {
			t.Error("expected error replacing built-in type")
		}
	})

	t.Run("duplicate field rejected", func(t *testing.T) {
		_, err := NewType("x",
			Field{Name: "a", Kind: KindStream},
			Field{Name: "a", Kind: KindStream},
		)
		if err == nil {
			t.Error("expected duplicate field error")
		}
	})
}

func TestParseValueType(t *testing.T) {
	r := NewRegistry()
	_ = r.RegisterStruct(&StructType{Name: "color"})

	tests := []struct {
		expr    string
		want    string
		wantErr bool
	}{
		{"string", "string", false},
		{"int", "int", false},
		{"integer", "int", false},
		{"float", "number", false},
		{"boolean", "bool", false},
		{"ref", "uuid", false},
		{"text", "text", false},
		{"int[]", "int[]", false},
		{"string[][]", "string[][]", false},
		{"color", "color", false},
		{"color[]", "color[]", false},
		{"vec3", "", true},
		{"", "", true},
		{"[]", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			vt, err := r.ParseValueType(tt.expr)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", vt)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := vt.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValueTypeText(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	tests := []struct {
		name string
		vt   *ValueType
		text string
		want any
	}{
		{"string", String, "hello", "hello"},
		{"text", Text, "line1\nline2", "line1\nline2"},
		{"number", Number, "1.5", 1.5},
		{"number integral", Number, "3", float64(3)},
		{"int", Int, "-42", int64(-42)},
		{"bool", Bool, "true", true},
		{"uuid", UUID, id.String(), id},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.vt.FromText(tt.text)
			if err != nil {
				t.Fatalf("FromText: %v", err)
			}
			if got != tt.want {
				t.Errorf("FromText = %#v, want %#v", got, tt.want)
			}
			back, err := tt.vt.ToText(got)
			if err != nil {
				t.Fatalf("ToText: %v", err)
			}
			if back != tt.text {
				t.Errorf("ToText = %q, want %q", back, tt.text)
			}
		})
	}

	t.Run("invalid input", func(t *testing.T) {
		if _, err := Int.FromText("abc"); err == nil {
			t.Error("expected error for invalid int")
		}
		if _, err := UUID.FromText("not-a-uuid"); err == nil {
			t.Error("expected error for invalid uuid")
		}
		if _, err := Bool.ToText("yes"); err == nil {
			t.Error("expected error for string passed as bool")
		}
		if _, err := ArrayOf(Int).FromText("1"); err == nil {
			t.Error("expected error for array FromText")
		}
	})

	t.Run("empty uuid is nil", func(t *testing.T) {
		got, err := UUID.FromText("")
		if err != nil {
			t.Fatalf("FromText: %v", err)
		}
		if got != uuid.Nil {
			t.Errorf("got %v, want nil uuid", got)
		}
	})
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
	}{
		{"", KindValue},
		{"value", KindValue},
		{"subobject", KindSubObject},
		{"set", KindSubObjectSet},
		{"stream", KindStream},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if err != nil {
			t.Errorf("ParseKind(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if _, err := ParseKind("blob"); err == nil {
		t.Error("expected error for unknown kind")
	}
}
