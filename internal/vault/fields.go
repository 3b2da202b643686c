package vault

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/aidanlsb/kiln/internal/codec"
	"github.com/aidanlsb/kiln/internal/graph"
	"github.com/aidanlsb/kiln/internal/schema"
)

// FieldValue is one field of an asset's payload as seen through its
// prototype chain.
type FieldValue struct {
	Name string
	Kind schema.Kind
	Type *schema.ValueType // nil unless Kind is KindValue
	Set  bool

	// Value holds the value of a value field, with references as stable
	// ids, or the buffer id of a stream field.
	Value any
}

// Fields lists the payload fields of an asset in declaration order.
func (v *Vault) Fields(asset graph.ID) ([]FieldValue, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload := v.payload(asset)
	r := v.store.Read(payload)
	if r == nil || r.Type() == nil {
		return nil, fmt.Errorf("asset %d has no payload: %w", asset, ErrNotFound)
	}
	out := make([]FieldValue, 0, len(r.Type().Fields))
	for i, f := range r.Type().Fields {
		fv := FieldValue{Name: f.Name, Kind: f.Kind, Type: f.Value, Set: r.Has(i)}
		if fv.Set {
			switch f.Kind {
			case schema.KindValue:
				fv.Value = v.stableRefs(r.Value(i))
			case schema.KindStream:
				fv.Value = r.Buffer(i)
			}
		}
		out = append(out, fv)
	}
	return out, nil
}

// SetField parses text as the value of the named value field of an asset's
// payload and stores it. References are given as stable ids and resolve to
// placeholders when nothing loaded has that id yet.
func (v *Vault) SetField(asset graph.ID, field, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	payload := v.payload(asset)
	if payload == graph.Nil {
		return fmt.Errorf("asset %d has no payload: %w", asset, ErrNotFound)
	}
	t := v.store.Type(payload)
	i, ok := t.Field(field)
	if !ok {
		return fmt.Errorf("type %s has no field %q", t.Name, field)
	}
	f := t.Fields[i]
	if f.Kind != schema.KindValue {
		return fmt.Errorf("%w: field %s is %s, not a value", graph.ErrTypeMismatch, field, f.Kind)
	}
	val, err := parseFieldText(text, f.Value)
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}

	w, err := v.store.Write(payload)
	if err != nil {
		return err
	}
	if err := w.SetValue(i, v.handleRefs(val)); err != nil {
		return err
	}
	w.Commit()
	return nil
}

// parseFieldText parses text in the resource syntax. Strings and text that
// are not quoted are taken literally.
func parseFieldText(text string, vt *schema.ValueType) (any, error) {
	switch vt.Kind {
	case schema.ValueString:
		if !strings.HasPrefix(text, `"`) {
			return text, nil
		}
	case schema.ValueText:
		if !strings.HasPrefix(text, `"`) && !strings.HasPrefix(text, "[[") {
			return text, nil
		}
	}
	return codec.ParseValue([]byte(text), vt)
}

// handleRefs replaces stable ids in a parsed value with store handles.
func (v *Vault) handleRefs(val any) any {
	switch x := val.(type) {
	case uuid.UUID:
		if x == uuid.Nil {
			return graph.Nil
		}
		return v.store.GetOrCreateByStableID(x, nil)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = v.handleRefs(e)
		}
		return out
	case schema.Struct:
		out := make(schema.Struct, len(x))
		for k, e := range x {
			out[k] = v.handleRefs(e)
		}
		return out
	}
	return val
}

// stableRefs is the inverse of handleRefs.
func (v *Vault) stableRefs(val any) any {
	switch x := val.(type) {
	case graph.ID:
		if x == graph.Nil {
			return uuid.Nil
		}
		return v.store.StableID(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = v.stableRefs(e)
		}
		return out
	case schema.Struct:
		out := make(schema.Struct, len(x))
		for k, e := range x {
			out[k] = v.stableRefs(e)
		}
		return out
	}
	return val
}
