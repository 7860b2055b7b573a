// Package store defines the persistence contract for material records: one
// snapshot per (material, source) reference, with optimistic concurrency and
// layered resolution into an effective record.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	matdb "github.com/goliatone/go-matdb"
)

var ErrNotImplemented = errors.New("store: not implemented")

var ErrETagMismatch = errors.New("store: etag mismatch")

// Ref identifies one persisted snapshot for one material.
type Ref struct {
	Material string
	Source   matdb.Source
}

// Meta is storage-owned metadata used for trace/audit and concurrency
// control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one record snapshot for a single source reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (record *matdb.Record, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, record *matdb.Record, meta Meta) (Meta, error)
}

// Resolver orchestrates source-scoped loads and merges them into a single
// effective record.
type Resolver struct {
	Store Store
}

type Mutator func(*matdb.Record) error

func (r Ref) Identifier() (string, error) {
	switch r.Source.Name {
	case "upstream":
		return fmt.Sprintf("upstream/%s", r.Material), nil
	case "project", "user":
		metadataKey := r.Source.Name + "_path"
		path, ok := r.Source.Metadata[metadataKey]
		if !ok {
			return "", fmt.Errorf("missing metadata key %q for source %q", metadataKey, r.Source.Name)
		}
		pathString, ok := path.(string)
		if !ok || pathString == "" {
			return "", fmt.Errorf("missing metadata key %q for source %q", metadataKey, r.Source.Name)
		}
		return fmt.Sprintf("%s/%s/%s", r.Source.Name, pathString, r.Material), nil
	default:
		return "", fmt.Errorf("unsupported source name %q", r.Source.Name)
	}
}

func (r Resolver) Resolve(ctx context.Context, material string, sources ...matdb.Source) (*matdb.Record, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("store: store is required")
	}
	if material == "" {
		return nil, fmt.Errorf("store: material is required")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("store: at least one source is required")
	}

	layers := make([]matdb.Layer, 0, len(sources))
	for _, source := range sources {
		record, meta, ok, err := r.Store.Load(ctx, Ref{Material: material, Source: source})
		if err != nil {
			return nil, fmt.Errorf("store: load %q for source %q: %w", material, source.Name, err)
		}
		if !ok {
			continue
		}
		layers = append(layers, matdb.NewLayer(source, record, matdb.WithSnapshotID(meta.SnapshotID)))
	}

	if len(layers) == 0 {
		return nil, fmt.Errorf("store: no layers found for material %q", material)
	}

	stack, err := matdb.NewStack(layers...)
	if err != nil {
		return nil, fmt.Errorf("store: stack: %w", err)
	}
	return stack.Merge()
}

// ResolveWithDefaults resolves the layered sources with a fallback record at
// a priority below every supplied source.
func (r Resolver) ResolveWithDefaults(ctx context.Context, material string, defaults *matdb.Record, sources ...matdb.Source) (*matdb.Record, error) {
	if r.Store == nil {
		return nil, fmt.Errorf("store: store is required")
	}
	if material == "" {
		return nil, fmt.Errorf("store: material is required")
	}

	prioritySet := make(map[int]struct{}, len(sources)+1)
	minPriority := 0
	if len(sources) > 0 {
		minPriority = sources[0].Priority
	}
	for _, source := range sources {
		if source.Name == "defaults" {
			return nil, fmt.Errorf("store: source name %q is reserved", "defaults")
		}
		prioritySet[source.Priority] = struct{}{}
		if source.Priority < minPriority {
			minPriority = source.Priority
		}
	}

	defaultsPriority := 0
	if len(sources) > 0 {
		defaultsPriority = minPriority - 1
		for {
			if _, ok := prioritySet[defaultsPriority]; !ok {
				break
			}
			defaultsPriority--
		}
	}

	layers := make([]matdb.Layer, 0, len(sources)+1)
	for _, source := range sources {
		record, meta, ok, err := r.Store.Load(ctx, Ref{Material: material, Source: source})
		if err != nil {
			return nil, fmt.Errorf("store: load %q for source %q: %w", material, source.Name, err)
		}
		if !ok {
			continue
		}
		layers = append(layers, matdb.NewLayer(source, record, matdb.WithSnapshotID(meta.SnapshotID)))
	}

	defaultsSource := matdb.NewSource("defaults", defaultsPriority, matdb.WithSourceLabel("Defaults"))
	layers = append(layers, matdb.NewLayer(defaultsSource, defaults))

	stack, err := matdb.NewStack(layers...)
	if err != nil {
		return nil, fmt.Errorf("store: stack: %w", err)
	}
	return stack.Merge()
}

// Mutate loads one snapshot, applies fn, validates the record, then saves.
func (r Resolver) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (*matdb.Record, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("store: store is required")
	}
	if ref.Material == "" {
		return nil, Meta{}, fmt.Errorf("store: material is required")
	}
	if ref.Source.Name == "" {
		return nil, Meta{}, fmt.Errorf("store: source name is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("store: mutator is required")
	}

	record, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("store: load %q for source %q: %w", ref.Material, ref.Source.Name, err)
	}
	if !ok {
		record = matdb.NewRecord(ref.Material)
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return nil, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(record); err != nil {
		return nil, loadedMeta, err
	}

	if err := record.Validate(); err != nil {
		return nil, loadedMeta, err
	}

	saveMeta := mergeMeta(loadedMeta, meta)
	savedMeta, err := r.Store.Save(ctx, ref, record, saveMeta)
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("store: save %q for source %q: %w", ref.Material, ref.Source.Name, err)
	}
	return record, savedMeta, nil
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
