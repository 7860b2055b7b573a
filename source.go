package matdb

import (
	"errors"
	"fmt"
	"sort"
)

// Source models a named precedence bucket a database layer comes from
// (upstream distribution, project overrides, user overrides, etc.). Higher
// priority values represent stronger layers.
type Source struct {
	Name     string
	Label    string
	Priority int
	Metadata map[string]any
}

// SourceOption configures metadata on Source creation.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	label    string
	metadata map[string]any
}

// WithSourceLabel sets a human-friendly label on the source.
func WithSourceLabel(label string) SourceOption {
	return func(cfg *sourceConfig) {
		cfg.label = label
	}
}

// WithSourceMetadata attaches arbitrary metadata to the source. The map is
// copied so the resulting Source remains immutable even if the caller mutates
// their reference.
func WithSourceMetadata(metadata map[string]any) SourceOption {
	return func(cfg *sourceConfig) {
		if len(metadata) == 0 {
			return
		}
		cfg.metadata = copyMetadata(metadata)
	}
}

// NewSource builds a Source with the supplied configuration. Validation is
// deferred to Stack construction so callers can assemble sources before
// deciding precedence.
func NewSource(name string, priority int, opts ...SourceOption) Source {
	cfg := sourceConfig{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	return Source{
		Name:     name,
		Label:    cfg.label,
		Priority: priority,
		Metadata: copyMetadata(cfg.metadata),
	}
}

// clone returns a copy of s, ensuring Metadata is detached from the original.
func (s Source) clone() Source {
	return Source{
		Name:     s.Name,
		Label:    s.Label,
		Priority: s.Priority,
		Metadata: copyMetadata(s.Metadata),
	}
}

func (s Source) isZero() bool {
	return s.Name == "" && s.Label == "" && s.Priority == 0 && len(s.Metadata) == 0
}

// Layer pairs a source definition with the record snapshot captured for that
// source.
type Layer struct {
	Source     Source
	Record     *Record
	SnapshotID string
}

// LayerOption configures optional metadata for a layer.
type LayerOption func(*Layer)

// WithSnapshotID sets the snapshot identifier used for auditing.
func WithSnapshotID(id string) LayerOption {
	return func(layer *Layer) {
		layer.SnapshotID = id
	}
}

// NewLayer constructs a Layer with immutable copies of both the source
// metadata and record snapshot.
func NewLayer(source Source, record *Record, opts ...LayerOption) Layer {
	layer := Layer{
		Source: source.clone(),
		Record: record.Clone(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&layer)
	}
	return layer
}

var (
	// ErrSourceNameRequired indicates a missing source name.
	ErrSourceNameRequired = errors.New("source: name must be provided")
	// ErrDuplicateSourceName indicates Stack construction received multiple
	// layers with the same source name.
	ErrDuplicateSourceName = errors.New("source: names must be unique")
	// ErrPriorityOrder indicates Stack construction detected duplicate or
	// unsorted priorities.
	ErrPriorityOrder = errors.New("source: priorities must be strictly ordered")
)

// Stack represents an immutable, source-aware layering of record snapshots
// ordered from strongest to weakest precedence.
type Stack struct {
	layers []Layer
}

// NewStack validates and sorts the supplied layers so that the strongest
// source (highest priority) is first. Layers and their records are deep
// copied to guarantee read-only safety after construction.
func NewStack(layers ...Layer) (*Stack, error) {
	if len(layers) == 0 {
		return &Stack{}, nil
	}

	seenNames := make(map[string]struct{}, len(layers))
	copied := make([]Layer, len(layers))
	for i, layer := range layers {
		layer := cloneLayer(layer)
		if layer.Source.Name == "" {
			return nil, ErrSourceNameRequired
		}
		if _, ok := seenNames[layer.Source.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSourceName, layer.Source.Name)
		}
		seenNames[layer.Source.Name] = struct{}{}
		copied[i] = layer
	}

	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Source.Priority == copied[j].Source.Priority {
			return copied[i].Source.Name < copied[j].Source.Name
		}
		return copied[i].Source.Priority > copied[j].Source.Priority
	})

	for i := 1; i < len(copied); i++ {
		if copied[i-1].Source.Priority <= copied[i].Source.Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, copied[i].Source.Priority)
		}
	}

	return &Stack{layers: copied}, nil
}

// Layers returns a defensive copy of the underlying layers to preserve
// immutability guarantees.
func (s *Stack) Layers() []Layer {
	if s == nil || len(s.layers) == 0 {
		return nil
	}
	out := make([]Layer, len(s.layers))
	for i := range s.layers {
		out[i] = cloneLayer(s.layers[i])
	}
	return out
}

// Len returns the number of layers in the stack.
func (s *Stack) Len() int {
	if s == nil {
		return 0
	}
	return len(s.layers)
}

// Merge resolves the stack into an effective record that retains provenance
// metadata for each contributing layer. The provided Option arguments apply
// to the resulting record.
func (s *Stack) Merge(opts ...Option) (*Record, error) {
	if s == nil || len(s.layers) == 0 {
		return nil, fmt.Errorf("source: stack must include at least one layer")
	}
	records := make([]*Record, len(s.layers))
	layerMeta := make([]layerSnapshot, len(s.layers))
	for i := range s.layers {
		records[i] = s.layers[i].Record.Clone()
		layerMeta[i] = layerSnapshot{
			Source:     s.layers[i].Source.clone(),
			Record:     s.layers[i].Record.Clone(),
			SnapshotID: s.layers[i].SnapshotID,
		}
	}
	merged := MergeRecords(records...)
	if merged == nil {
		return nil, fmt.Errorf("source: every layer record is nil")
	}
	merged.cfg = applyOptions(opts)
	merged.attachLayers(layerMeta)
	return merged, nil
}

func cloneLayer(layer Layer) Layer {
	return Layer{
		Source:     layer.Source.clone(),
		Record:     layer.Record.Clone(),
		SnapshotID: layer.SnapshotID,
	}
}

type layerSnapshot struct {
	Source     Source
	Record     *Record
	SnapshotID string
}

func (r *Record) attachLayers(layers []layerSnapshot) {
	r.layers = layers
}

func copyMetadata(origin map[string]any) map[string]any {
	if len(origin) == 0 {
		return nil
	}
	out := make(map[string]any, len(origin))
	for key, value := range origin {
		out[key] = value
	}
	return out
}
