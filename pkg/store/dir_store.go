package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	matdb "github.com/goliatone/go-matdb"
	"github.com/goliatone/go-matdb/pkg/parser"
)

// DirStore persists material records as YAML documents in one database
// directory, with an in-memory cache keyed by material name. Cached entries
// carry content-hash ETags so mutations can detect concurrent edits on disk.
type DirStore struct {
	parser *parser.Parser
	logger *zap.Logger

	mu    sync.RWMutex
	cache map[string]dirRecord
}

type dirRecord struct {
	record *matdb.Record
	meta   Meta
}

// DirStoreOption configures a DirStore.
type DirStoreOption func(*DirStore)

// DirWithLogger attaches a structured logger. Defaults to a no-op logger.
func DirWithLogger(logger *zap.Logger) DirStoreOption {
	return func(s *DirStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDirStore constructs a DirStore over the given parser.
func NewDirStore(p *parser.Parser, opts ...DirStoreOption) (*DirStore, error) {
	if p == nil {
		return nil, fmt.Errorf("store: parser is required")
	}
	s := &DirStore{
		parser: p,
		logger: zap.NewNop(),
		cache:  map[string]dirRecord{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// BasePath returns the database directory backing the store.
func (s *DirStore) BasePath() string {
	return s.parser.BasePath()
}

// Materials lists the material names available on disk.
func (s *DirStore) Materials() ([]string, error) {
	return s.parser.Materials()
}

// Load returns the record for ref.Material, serving from cache when the file
// has already been read. The source part of the ref is not consulted: one
// DirStore represents exactly one source directory.
func (s *DirStore) Load(_ context.Context, ref Ref) (*matdb.Record, Meta, bool, error) {
	if ref.Material == "" {
		return nil, Meta{}, false, fmt.Errorf("store: material is required")
	}

	s.mu.RLock()
	cached, ok := s.cache[ref.Material]
	s.mu.RUnlock()
	if ok {
		return cached.record.Clone(), cloneMeta(cached.meta), true, nil
	}

	record, err := s.parser.Load(ref.Material)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Meta{}, false, nil
		}
		return nil, Meta{}, false, err
	}

	meta, err := s.fileMeta(ref.Material)
	if err != nil {
		return nil, Meta{}, false, err
	}

	s.mu.Lock()
	s.cache[ref.Material] = dirRecord{record: record.Clone(), meta: cloneMeta(meta)}
	s.mu.Unlock()

	s.logger.Debug("loaded material from disk",
		zap.String("material", ref.Material),
		zap.String("etag", meta.ETag))
	return record, meta, true, nil
}

// Save serializes the record back to disk and refreshes the cache entry.
func (s *DirStore) Save(_ context.Context, ref Ref, record *matdb.Record, meta Meta) (Meta, error) {
	if record == nil {
		return Meta{}, fmt.Errorf("store: record is required")
	}
	if err := s.parser.DumpToFile(record); err != nil {
		return Meta{}, err
	}

	saved, err := s.fileMeta(record.ID)
	if err != nil {
		return Meta{}, err
	}
	if meta.SnapshotID != "" {
		saved.SnapshotID = meta.SnapshotID
	}
	if meta.Extra != nil {
		saved.Extra = meta.Extra
	}

	s.mu.Lock()
	s.cache[record.ID] = dirRecord{record: record.Clone(), meta: cloneMeta(saved)}
	s.mu.Unlock()

	s.logger.Info("saved material",
		zap.String("material", record.ID),
		zap.String("snapshot_id", saved.SnapshotID))
	return saved, nil
}

// Invalidate drops the cached entry for material, forcing the next Load to
// re-read the file.
func (s *DirStore) Invalidate(material string) {
	s.mu.Lock()
	delete(s.cache, material)
	s.mu.Unlock()
}

func (s *DirStore) fileMeta(material string) (Meta, error) {
	fullPath := filepath.Join(s.parser.BasePath(), material+parser.Ext)
	raw, err := os.ReadFile(fullPath)
	if err != nil {
		return Meta{}, fmt.Errorf("store: hash material %q: %w", material, err)
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		return Meta{}, fmt.Errorf("store: stat material %q: %w", material, err)
	}
	sum := sha256.Sum256(raw)
	return Meta{
		SnapshotID: uuid.NewString(),
		ETag:       hex.EncodeToString(sum[:]),
		UpdatedAt:  info.ModTime(),
	}, nil
}

// DirSet dispatches Load/Save calls across one DirStore per source name so a
// Resolver can assemble layered databases from separate directories.
type DirSet struct {
	stores map[string]*DirStore
}

// NewDirSet builds a DirSet from a source-name-to-store mapping.
func NewDirSet(stores map[string]*DirStore) *DirSet {
	copied := make(map[string]*DirStore, len(stores))
	for name, store := range stores {
		if store == nil {
			continue
		}
		copied[name] = store
	}
	return &DirSet{stores: copied}
}

func (s *DirSet) Load(ctx context.Context, ref Ref) (*matdb.Record, Meta, bool, error) {
	store, ok := s.stores[ref.Source.Name]
	if !ok {
		return nil, Meta{}, false, nil
	}
	return store.Load(ctx, ref)
}

func (s *DirSet) Save(ctx context.Context, ref Ref, record *matdb.Record, meta Meta) (Meta, error) {
	store, ok := s.stores[ref.Source.Name]
	if !ok {
		return Meta{}, fmt.Errorf("store: no directory registered for source %q", ref.Source.Name)
	}
	return store.Save(ctx, ref, record, meta)
}
