package schema

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	t.Run("builtins when no file", func(t *testing.T) {
		tmpDir := t.TempDir()

		reg, err := Load(tmpDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if reg.Type(TypeRoot) == nil {
			t.Error("expected 'root' type to exist")
		}
		if len(reg.Types()) != 3 {
			t.Errorf("expected 3 built-in types, got %v", reg.Types())
		}
	})

	t.Run("load custom types", func(t *testing.T) {
		tmpDir := t.TempDir()

		content := `
types:
  texture:
    extension: tex
    fields:
      - {name: title, type: string}
      - {name: size, type: int}
      - {name: tags, type: "string[]"}
      - {name: pixels, kind: stream}
      - {name: layers, kind: set, of: layer}
  layer:
    fields:
      - {name: tint, type: color}
structs:
  color:
    - {name: r, type: number}
    - {name: alpha, type: opacity}
  opacity:
    - {name: value, type: number}
`
		if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write types: %v", err)
		}

		reg, err := Load(tmpDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		tex := reg.Type("texture")
		if tex == nil {
			t.Fatal("expected 'texture' type to exist")
		}
		if tex.Extension != "tex" {
			t.Errorf("Extension = %q, want tex", tex.Extension)
		}
		wantOrder := []string{"title", "size", "tags", "pixels", "layers"}
		for i, name := range wantOrder {
			if tex.Fields[i].Name != name {
				t.Errorf("field %d = %q, want %q", i, tex.Fields[i].Name, name)
			}
		}
		if tex.Fields[3].Kind != KindStream {
			t.Errorf("pixels kind = %v, want stream", tex.Fields[3].Kind)
		}

		layer := reg.Type("layer")
		if layer.Extension != "layer" {
			t.Errorf("default Extension = %q, want layer", layer.Extension)
		}
		tint := layer.Fields[0].Value
		if tint.Kind != ValueStruct || tint.Struct.Name != "color" {
			t.Fatalf("tint type = %v, want color", tint)
		}
		alpha, ok := tint.Struct.Field("alpha")
		if !ok {
			t.Fatal("color should have 'alpha' field")
		}
		if alpha.Type.Struct == nil || len(alpha.Type.Struct.Fields) != 1 {
			t.Error("nested struct reference should resolve to the filled layout")
		}
	})

	t.Run("unknown value type", func(t *testing.T) {
		tmpDir := t.TempDir()
		content := "types:\n  bad:\n    fields:\n      - {name: x, type: vec9}\n"
		if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write types: %v", err)
		}
		if _, err := Load(tmpDir); err == nil {
			t.Error("expected error for unknown value type")
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.WriteFile(filepath.Join(tmpDir, FileName), []byte("types: [unclosed"), 0644); err != nil {
			t.Fatalf("failed to write types: %v", err)
		}
		if _, err := Load(tmpDir); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

func TestCreateDefault(t *testing.T) {
	tmpDir := t.TempDir()

	if err := CreateDefault(tmpDir); err != nil {
		t.Fatalf("CreateDefault: %v", err)
	}

	reg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load after CreateDefault: %v", err)
	}
	for _, name := range []string{"note", "texture", "palette"} {
		if reg.Type(name) == nil {
			t.Errorf("expected default type %q", name)
		}
	}
	if !reg.Type("palette").Data {
		t.Error("palette should be a data type")
	}
	if reg.Struct("color") == nil {
		t.Error("expected default struct 'color'")
	}
}
