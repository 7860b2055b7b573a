package matdb

import (
	"fmt"
	"sort"
)

// FieldValue is the canonical key under which an entry stores its value.
const FieldValue = "value"

// Reference is one bibliographic entry of a material record. The citation key
// lives on the struct and is never duplicated inside Fields.
type Reference struct {
	Key    string
	Type   string
	Fields map[string]string
}

// NewReference builds a Reference with a defensive copy of fields.
func NewReference(key, entryType string, fields map[string]string) Reference {
	return Reference{
		Key:    key,
		Type:   entryType,
		Fields: copyStringMap(fields),
	}
}

// clone returns a copy of ref detached from the original field map.
func (ref Reference) clone() Reference {
	return Reference{
		Key:    ref.Key,
		Type:   ref.Type,
		Fields: copyStringMap(ref.Fields),
	}
}

// Dump returns the generic map form of the reference, suitable for
// serialization alongside raw record data.
func (ref Reference) Dump() map[string]any {
	out := map[string]any{"type": ref.Type}
	for key, value := range ref.Fields {
		out[key] = value
	}
	return out
}

// Parameter is a named value grouped by reference key. Each entry is a field
// map that carries at least a value and optionally unit, comment, or other
// free-form fields.
type Parameter struct {
	Name    string
	entries map[string]map[string]any
}

// NewParameter constructs a standalone parameter bound to a single reference
// key, mirroring how new values enter a record before being attached.
func NewParameter(name, refKey string, fields map[string]any) (*Parameter, error) {
	if name == "" {
		return nil, fmt.Errorf("matdb: parameter name must not be empty")
	}
	if refKey == "" {
		return nil, fmt.Errorf("matdb: parameter %q requires a reference key", name)
	}
	if _, ok := fields[FieldValue]; !ok {
		return nil, fmt.Errorf("matdb: parameter %q requires a %q field", name, FieldValue)
	}
	return &Parameter{
		Name: name,
		entries: map[string]map[string]any{
			refKey: copyEntry(fields),
		},
	}, nil
}

// References returns the reference keys this parameter has entries for,
// sorted alphabetically.
func (p *Parameter) References() []string {
	if p == nil || len(p.entries) == 0 {
		return nil
	}
	keys := make([]string, 0, len(p.entries))
	for key := range p.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Entry returns the field map recorded under refKey. The map is shared with
// the owning record so that value updates propagate into the reference-keyed
// view.
func (p *Parameter) Entry(refKey string) (map[string]any, error) {
	if p == nil {
		return nil, fmt.Errorf("matdb: parameter is nil: %w", ErrParameterNotFound)
	}
	entry, ok := p.entries[refKey]
	if !ok {
		return nil, fmt.Errorf("matdb: parameter %q has no entry for reference %q: %w", p.Name, refKey, ErrReferenceNotFound)
	}
	return entry, nil
}

// Value returns the value stored under refKey.
func (p *Parameter) Value(refKey string) (any, error) {
	entry, err := p.Entry(refKey)
	if err != nil {
		return nil, err
	}
	return entry[FieldValue], nil
}

// Dump returns the generic map form of the parameter: reference key to a
// detached copy of the field map.
func (p *Parameter) Dump() map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p.entries))
	for refKey, entry := range p.entries {
		out[refKey] = map[string]any(copyEntry(entry))
	}
	return out
}

// clone returns a deep copy detached from the original entry maps.
func (p *Parameter) clone() *Parameter {
	if p == nil {
		return nil
	}
	entries := make(map[string]map[string]any, len(p.entries))
	for refKey, entry := range p.entries {
		entries[refKey] = copyEntry(entry)
	}
	return &Parameter{Name: p.Name, entries: entries}
}

func copyEntry(entry map[string]any) map[string]any {
	if entry == nil {
		return nil
	}
	out := make(map[string]any, len(entry))
	for key, value := range entry {
		out[key] = copyAny(value)
	}
	return out
}

func copyAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, inner := range typed {
			out[key] = copyAny(inner)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, inner := range typed {
			out[i] = copyAny(inner)
		}
		return out
	default:
		return value
	}
}

func copyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return nil
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		out[key] = value
	}
	return out
}
