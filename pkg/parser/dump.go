package parser

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nickng/bibtex"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	matdb "github.com/goliatone/go-matdb"
)

// Dump serializes the record back into document form: the meta section first
// with its recorded key order, the references rendered as an indented bibtex
// block, the record ID, and finally the data section. Mapping-valued entry
// values render in flow style, scalars in block style, matching the layout
// the database files are maintained in.
func (p *Parser) Dump(record *matdb.Record) (string, error) {
	if record == nil {
		return "", fmt.Errorf("parser: record must not be nil")
	}

	root := &yaml.Node{Kind: yaml.MappingNode}

	metaNode, err := p.metaNode(record)
	if err != nil {
		return "", err
	}
	appendPair(root, "meta", metaNode)
	appendPair(root, "ID", scalarNode(record.ID))

	dataNode, err := dataNode(record)
	if err != nil {
		return "", err
	}
	appendPair(root, "data", dataNode)

	var buf bytes.Buffer
	encoder := yaml.NewEncoder(&buf)
	encoder.SetIndent(2)
	if err := encoder.Encode(root); err != nil {
		return "", fmt.Errorf("parser: encode record %q: %w", record.ID, err)
	}
	if err := encoder.Close(); err != nil {
		return "", fmt.Errorf("parser: encode record %q: %w", record.ID, err)
	}

	p.logger.Info("serialized record",
		zap.String("material", record.ID),
		zap.Int("parameters", len(record.ListParameters())),
		zap.Int("references", len(record.ListReferences())))
	return buf.String(), nil
}

// DumpToFile serializes the record and writes it to `<basePath>/<ID>.yml`.
func (p *Parser) DumpToFile(record *matdb.Record) error {
	out, err := p.Dump(record)
	if err != nil {
		return err
	}
	fullPath := filepath.Join(p.basePath, record.ID+Ext)
	if err := os.WriteFile(fullPath, []byte(out), 0o644); err != nil {
		return fmt.Errorf("parser: write material %q: %w", record.ID, err)
	}
	p.logger.Info("wrote material file", zap.String("path", fullPath))
	return nil
}

func (p *Parser) metaNode(record *matdb.Record) (*yaml.Node, error) {
	meta := &yaml.Node{Kind: yaml.MappingNode}

	fields := map[string]any{}
	if record.Meta.Name != "" {
		fields["name"] = record.Meta.Name
	}
	if record.Meta.Comment != "" {
		fields["comment"] = record.Meta.Comment
	}
	for key, value := range record.Meta.Extra {
		fields[key] = value
	}

	for _, key := range metaFieldOrder(record, fields) {
		value, ok := fields[key]
		if !ok {
			continue
		}
		node, err := encodeNode(value)
		if err != nil {
			return nil, fmt.Errorf("parser: meta field %q: %w", key, err)
		}
		appendPair(meta, key, node)
	}

	if keys := record.ListReferences(); len(keys) > 0 {
		blob, err := renderReferences(record, keys)
		if err != nil {
			return nil, err
		}
		refs := scalarNode(blob)
		refs.Style = yaml.LiteralStyle
		appendPair(meta, "references", refs)
	}
	return meta, nil
}

// metaFieldOrder replays the key order captured at load time, appending any
// field added since then in sorted order, and falls back to name, comment,
// then sorted extras for records built in memory.
func metaFieldOrder(record *matdb.Record, fields map[string]any) []string {
	if order := record.MetaKeyOrder(); order != nil {
		known := make(map[string]struct{}, len(order))
		for _, key := range order {
			known[key] = struct{}{}
		}
		var added []string
		for key := range fields {
			if _, ok := known[key]; !ok {
				added = append(added, key)
			}
		}
		sort.Strings(added)
		return append(order, added...)
	}
	var order []string
	if _, ok := fields["name"]; ok {
		order = append(order, "name")
	}
	if _, ok := fields["comment"]; ok {
		order = append(order, "comment")
	}
	var rest []string
	for key := range fields {
		if key == "name" || key == "comment" {
			continue
		}
		rest = append(rest, key)
	}
	sort.Strings(rest)
	return append(order, rest...)
}

func dataNode(record *matdb.Record) (*yaml.Node, error) {
	data := &yaml.Node{Kind: yaml.MappingNode}
	for _, paramName := range record.ListParameters() {
		param, err := record.Parameter(paramName)
		if err != nil {
			return nil, err
		}
		paramNode := &yaml.Node{Kind: yaml.MappingNode}
		for _, refKey := range param.References() {
			entry, err := param.Entry(refKey)
			if err != nil {
				return nil, err
			}
			entryNode, err := entryMappingNode(entry)
			if err != nil {
				return nil, fmt.Errorf("parser: parameter %q entry %q: %w", paramName, refKey, err)
			}
			appendPair(paramNode, refKey, entryNode)
		}
		appendPair(data, paramName, paramNode)
	}
	return data, nil
}

// entryMappingNode renders an entry field map with value first and remaining
// fields sorted. A mapping-valued value is emitted in flow style.
func entryMappingNode(entry map[string]any) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}

	keys := make([]string, 0, len(entry))
	for key := range entry {
		if key == matdb.FieldValue {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	if _, ok := entry[matdb.FieldValue]; ok {
		keys = append([]string{matdb.FieldValue}, keys...)
	}

	for _, key := range keys {
		valueNode, err := encodeNode(entry[key])
		if err != nil {
			return nil, err
		}
		if _, isMap := entry[key].(map[string]any); isMap && key == matdb.FieldValue {
			valueNode.Style = yaml.FlowStyle
		}
		appendPair(node, key, valueNode)
	}
	return node, nil
}

func renderReferences(record *matdb.Record, keys []string) (string, error) {
	bib := bibtex.NewBibTex()
	for _, key := range keys {
		ref, err := record.Reference(key)
		if err != nil {
			return "", err
		}
		entry := bibtex.NewBibEntry(ref.Type, ref.Key)
		fieldNames := make([]string, 0, len(ref.Fields))
		for name := range ref.Fields {
			fieldNames = append(fieldNames, name)
		}
		sort.Strings(fieldNames)
		for _, name := range fieldNames {
			entry.AddField(name, bibtex.NewBibConst(ref.Fields[name]))
		}
		bib.AddEntry(entry)
	}
	return strings.TrimRight(bib.String(), "\n"), nil
}

func encodeNode(value any) (*yaml.Node, error) {
	node := &yaml.Node{}
	if err := node.Encode(value); err != nil {
		return nil, err
	}
	return node, nil
}

func scalarNode(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}

func appendPair(mapping *yaml.Node, key string, value *yaml.Node) {
	mapping.Content = append(mapping.Content, scalarNode(key), value)
}
