package matdb

import (
	"fmt"
	"sort"
	"strings"
)

// SchemaDocument encapsulates a generated schema output for a record's data
// section. Document must be JSON-serialisable.
type SchemaDocument struct {
	Material string
	Document any
	Sources  []SchemaSource
}

// SchemaSource describes a single source entry included in a schema document.
type SchemaSource struct {
	Name       string         `json:"name"`
	Label      string         `json:"label,omitempty"`
	Priority   int            `json:"priority"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
}

// SchemaGenerator transforms a record data snapshot into a schema document.
// Implementations must be safe for concurrent use and handle nil inputs by
// returning an empty schema document.
type SchemaGenerator interface {
	Generate(value any) (SchemaDocument, error)
}

// FieldDescriptor describes a data path and the inferred type.
type FieldDescriptor struct {
	Path string
	Type string
}

// Schema generates the schema document for the record's data section,
// including source metadata for stack-merged records.
func (r *Record) Schema() (SchemaDocument, error) {
	doc, err := r.schemaGenerator().Generate(r.Snapshot())
	if err != nil {
		return SchemaDocument{}, err
	}
	doc.Material = r.ID
	for _, layer := range r.layers {
		doc.Sources = append(doc.Sources, SchemaSource{
			Name:       layer.Source.Name,
			Label:      layer.Source.Label,
			Priority:   layer.Source.Priority,
			Metadata:   copyMetadata(layer.Source.Metadata),
			SnapshotID: layer.SnapshotID,
		})
	}
	return doc, nil
}

// DefaultSchemaGenerator returns the built-in descriptor-based schema
// generator.
func DefaultSchemaGenerator() SchemaGenerator {
	return descriptorGenerator{}
}

type descriptorGenerator struct{}

func (descriptorGenerator) Generate(value any) (SchemaDocument, error) {
	descriptors := deriveFieldDescriptors(value, "")
	if descriptors == nil {
		descriptors = []FieldDescriptor{}
	}
	return SchemaDocument{
		Document: descriptors,
	}, nil
}

func deriveFieldDescriptors(value any, prefix string) []FieldDescriptor {
	if value == nil {
		return nil
	}

	switch typed := value.(type) {
	case map[string]any:
		if len(typed) == 0 {
			return []FieldDescriptor{{
				Path: prefix,
				Type: "map[string]any",
			}}
		}
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var fields []FieldDescriptor
		for _, key := range keys {
			nextPrefix := joinPath(prefix, key)
			fields = append(fields, deriveFieldDescriptors(typed[key], nextPrefix)...)
		}
		return fields
	case []any:
		elementType := "any"
		if len(typed) > 0 {
			elementType = typeName(typed[0])
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: "[]" + elementType,
		}}
	default:
		if prefix == "" {
			return nil
		}
		return []FieldDescriptor{{
			Path: prefix,
			Type: typeName(typed),
		}}
	}
}

func typeName(value any) string {
	if value == nil {
		return "nil"
	}
	return fmt.Sprintf("%T", value)
}

func joinPath(prefix, segment string) string {
	if prefix == "" {
		return segment
	}
	return strings.Join([]string{prefix, segment}, ".")
}
