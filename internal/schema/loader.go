package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// FileName is the name of the type definitions file inside a vault.
const FileName = "types.yaml"

type fileFormat struct {
	Types   map[string]*typeDef         `yaml:"types"`
	Structs map[string][]structFieldDef `yaml:"structs"`
}

type typeDef struct {
	Extension string     `yaml:"extension,omitempty"`
	Data      bool       `yaml:"data,omitempty"`
	Fields    []fieldDef `yaml:"fields"`
}

type fieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type,omitempty"`
	Kind string `yaml:"kind,omitempty"`
	Of   string `yaml:"of,omitempty"`
}

type structFieldDef struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Load loads the registry from a vault's types.yaml file.
// Returns a registry with only the built-in types if the file doesn't exist.
func Load(vaultPath string) (*Registry, error) {
	path := filepath.Join(vaultPath, FileName)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewRegistry(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read types file %s: %w", path, err)
	}

	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse types file %s: %w", path, err)
	}
	return reg, nil
}

// Parse builds a registry from types.yaml content.
func Parse(data []byte) (*Registry, error) {
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, err
	}

	reg := NewRegistry()

	// Structs may refer to each other, so names are registered before any
	// field type is resolved.
	structNames := make([]string, 0, len(ff.Structs))
	for name := range ff.Structs {
		structNames = append(structNames, name)
		if err := reg.RegisterStruct(&StructType{Name: name}); err != nil {
			return nil, err
		}
	}
	sort.Strings(structNames)
	for _, name := range structNames {
		st := reg.Struct(name)
		for _, fd := range ff.Structs[name] {
			vt, err := reg.ParseValueType(fd.Type)
			if err != nil {
				return nil, fmt.Errorf("struct %s field %s: %w", name, fd.Name, err)
			}
			st.Fields = append(st.Fields, StructField{Name: fd.Name, Type: vt})
		}
	}

	typeNames := make([]string, 0, len(ff.Types))
	for name := range ff.Types {
		typeNames = append(typeNames, name)
	}
	sort.Strings(typeNames)
	for _, name := range typeNames {
		def := ff.Types[name]
		if def == nil {
			def = &typeDef{}
		}
		fields := make([]Field, 0, len(def.Fields))
		for _, fd := range def.Fields {
			kind, err := ParseKind(fd.Kind)
			if err != nil {
				return nil, fmt.Errorf("type %s field %s: %w", name, fd.Name, err)
			}
			f := Field{Name: fd.Name, Kind: kind, Of: fd.Of}
			if kind == KindValue {
				vt, err := reg.ParseValueType(fd.Type)
				if err != nil {
					return nil, fmt.Errorf("type %s field %s: %w", name, fd.Name, err)
				}
				f.Value = vt
			}
			fields = append(fields, f)
		}
		t, err := NewType(name, fields...)
		if err != nil {
			return nil, err
		}
		t.Data = def.Data
		t.Extension = def.Extension
		if err := reg.Register(t); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// CreateDefault creates a default types.yaml file in the vault unless one
// already exists.
func CreateDefault(vaultPath string) error {
	path := filepath.Join(vaultPath, FileName)

	if _, err := os.Stat(path); err == nil {
		return nil
	}

	defaultTypes := `# Kiln resource types
#
# Built-in types (always available, cannot be redefined):
#   - root: a top-level tree container
#   - directory: a folder inside a root
#   - asset: a file wrapping one payload object
#
# Field kinds: value (default), subobject, set, stream.
# Value types: string, number, int, bool, uuid, text, T[] and struct names.

types:
  note:
    extension: note
    fields:
      - {name: title, type: string}
      - {name: tags, type: "string[]"}
      - {name: body, type: text}

  texture:
    extension: tex
    fields:
      - {name: title, type: string}
      - {name: size, type: int}
      - {name: tint, type: color}
      - {name: pixels, kind: stream}

  palette:
    data: true
    fields:
      - {name: colors, type: "color[]"}

structs:
  color:
    - {name: r, type: number}
    - {name: g, type: number}
    - {name: b, type: number}
`

	if err := os.WriteFile(path, []byte(defaultTypes), 0644); err != nil {
		return fmt.Errorf("failed to write types file: %w", err)
	}

	return nil
}
