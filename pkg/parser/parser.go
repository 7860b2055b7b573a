// Package parser reads and writes material database documents: YAML files
// with a meta section, a bibtex reference blob, and a parameter data section
// grouped by reference key.
package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nickng/bibtex"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	matdb "github.com/goliatone/go-matdb"
	"github.com/goliatone/go-matdb/internal/hydrate"
)

// Ext is the file extension material documents are stored under.
const Ext = ".yml"

// Option configures a Parser instance.
type Option func(*Parser)

// WithLogger attaches a structured logger. The parser defaults to a no-op
// logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Parser) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Parser loads and dumps material records against a database directory.
type Parser struct {
	basePath string
	logger   *zap.Logger
	metaDec  *hydrate.Decoder[metaPayload]
}

type metaPayload struct {
	Name    string `yaml:"name"`
	Comment string `yaml:"comment"`
}

// New constructs a Parser rooted at basePath. The path must exist.
func New(basePath string, opts ...Option) (*Parser, error) {
	info, err := os.Stat(basePath)
	if err != nil {
		return nil, fmt.Errorf("parser: base path %q: %w", basePath, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("parser: base path %q is not a directory", basePath)
	}
	p := &Parser{
		basePath: basePath,
		logger:   zap.NewNop(),
		metaDec:  hydrate.NewDecoder[metaPayload](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.logger.Info("parser base path set", zap.String("path", basePath))
	return p, nil
}

// BasePath returns the database directory the parser operates on.
func (p *Parser) BasePath() string {
	return p.basePath
}

// Materials lists the material names available in the database directory,
// sorted.
func (p *Parser) Materials() ([]string, error) {
	entries, err := os.ReadDir(p.basePath)
	if err != nil {
		return nil, fmt.Errorf("parser: list %q: %w", p.basePath, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, Ext) {
			continue
		}
		names = append(names, strings.TrimSuffix(name, Ext))
	}
	sort.Strings(names)
	return names, nil
}

// Load reads `<basePath>/<material>.yml` and converts it into a Record. The
// material name becomes the record ID and the bibtex blob under
// meta.references is parsed into a citation-key-keyed reference map.
func (p *Parser) Load(material string, opts ...matdb.Option) (*matdb.Record, error) {
	fullPath := filepath.Join(p.basePath, material+Ext)
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("parser: read material %q: %w", material, err)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parser: decode material %q: %w", material, err)
	}

	metaRaw, _ := doc["meta"].(map[string]any)
	if metaRaw == nil {
		return nil, fmt.Errorf("parser: material %q carries no meta section", material)
	}

	record := matdb.NewRecord(material, opts...)
	record.SetMetaKeyOrder(metaKeyOrder(raw))

	refsBlob, _ := metaRaw["references"].(string)
	if refsBlob != "" {
		references, err := parseReferences(refsBlob)
		if err != nil {
			return nil, fmt.Errorf("parser: references of material %q: %w", material, err)
		}
		for _, ref := range references {
			if err := record.AddReference(ref); err != nil {
				return nil, fmt.Errorf("parser: material %q: %w", material, err)
			}
		}
		p.logger.Info("parsed bibtex references",
			zap.String("material", material),
			zap.Int("entries", len(references)))
	}

	meta, err := p.metaDec.Decode(hydrate.Context{Material: material, Path: fullPath}, metaRaw)
	if err != nil {
		return nil, fmt.Errorf("parser: material %q: %w", material, err)
	}
	record.Meta.Name = meta.Name
	record.Meta.Comment = meta.Comment
	record.Meta.Extra = metaExtras(metaRaw)

	dataRaw, _ := doc["data"].(map[string]any)
	count, err := attachData(record, dataRaw)
	if err != nil {
		return nil, fmt.Errorf("parser: material %q: %w", material, err)
	}

	p.logger.Info("converted yaml file to record",
		zap.String("path", fullPath),
		zap.Int("parameters", count))
	return record, nil
}

func attachData(record *matdb.Record, dataRaw map[string]any) (int, error) {
	count := 0
	for paramName, byRef := range dataRaw {
		entries, ok := byRef.(map[string]any)
		if !ok {
			return count, fmt.Errorf("parameter %q is not grouped by reference", paramName)
		}
		for refKey, fields := range entries {
			entry, ok := fields.(map[string]any)
			if !ok {
				return count, fmt.Errorf("parameter %q entry %q is not a field map", paramName, refKey)
			}
			param, err := matdb.NewParameter(paramName, refKey, entry)
			if err != nil {
				return count, err
			}
			if err := record.AddParameter(param); err != nil {
				return count, err
			}
		}
		count++
	}
	return count, nil
}

func parseReferences(blob string) (map[string]matdb.Reference, error) {
	parsed, err := bibtex.Parse(strings.NewReader(blob))
	if err != nil {
		return nil, err
	}
	references := make(map[string]matdb.Reference, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		fields := make(map[string]string, len(entry.Fields))
		for name, value := range entry.Fields {
			fields[name] = value.String()
		}
		references[entry.CiteName] = matdb.NewReference(entry.CiteName, entry.Type, fields)
	}
	return references, nil
}

func metaExtras(metaRaw map[string]any) map[string]any {
	var extra map[string]any
	for key, value := range metaRaw {
		switch key {
		case "name", "comment", "references":
			continue
		}
		if extra == nil {
			extra = map[string]any{}
		}
		extra[key] = value
	}
	return extra
}

// metaKeyOrder extracts the order of keys inside the meta mapping as they
// appear in the source document, excluding the references blob.
func metaKeyOrder(raw []byte) []string {
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil || len(doc.Content) == 0 {
		return nil
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value != "meta" {
			continue
		}
		meta := root.Content[i+1]
		if meta.Kind != yaml.MappingNode {
			return nil
		}
		var keys []string
		for j := 0; j+1 < len(meta.Content); j += 2 {
			key := meta.Content[j].Value
			if key == "references" {
				continue
			}
			keys = append(keys, key)
		}
		return keys
	}
	return nil
}
