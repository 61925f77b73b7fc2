// Package vecdb implements a durable filtered vector search database.
//
// The database composes a scalar record store (authoritative JSON documents),
// two vector indexes (exact flat and approximate HNSW), and an inverted
// filter index over integer scalar fields. Durability comes from a write-
// ahead log plus periodic full snapshots: on restart the most recent
// snapshot is loaded and WAL entries past the snapshot cursor are replayed
// through the regular write path.
package vecdb

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdb/filterindex"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/index/flat"
	"github.com/hupe1980/vecdb/index/hnsw"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/scalar"
	"github.com/hupe1980/vecdb/wal"
)

// walVersion is the schema version stamped on every log entry.
const walVersion = "1.0"

// OpUpsert is the only operation kind the log currently carries.
const OpUpsert = "upsert"

// Filter restricts a search to records satisfying a predicate over one
// integer scalar field.
type Filter struct {
	FieldName string
	Op        filterindex.Operation
	Value     int64
}

// SearchRequest describes a k-nearest neighbour search.
type SearchRequest struct {
	Vector []float32
	K      int
	Kind   index.Kind
	Filter *Filter
}

// SearchResult carries parallel identifier and distance slices. Ordering
// follows the index that produced them: ascending distance for flat,
// queue drain order for HNSW. Padding identifiers are already stripped.
type SearchResult struct {
	IDs       []int64
	Distances []float32
}

// DB is the orchestrator. It owns the scalar store and the persistence
// module, and reaches the vector and filter indexes through the registry.
//
// The RWMutex restores the single-writer model under a concurrent RPC front
// end: upserts, snapshots, and recovery are exclusive, queries and searches
// shared.
type DB struct {
	mu       sync.RWMutex
	opts     Options
	logger   *Logger
	registry *Registry
	store    *scalar.Store
	wal      *wal.WAL
}

// New opens the database: scalar store, both vector indexes, filter index,
// and the write-ahead log. It does not recover state; call Recover after
// New to load the latest snapshot and replay the log.
func New(optFns ...func(o *Options)) (*DB, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("vecdb: invalid dimension: %d", opts.Dimension)
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewTextLogger(slog.LevelInfo)
	}

	store, err := scalar.New(func(o *scalar.Options) {
		o.Path = opts.ScalarPath
		o.InMemory = opts.InMemoryScalar
	})
	if err != nil {
		return nil, err
	}

	registry := NewRegistry(logger)

	flatIndex, err := flat.New(func(o *flat.Options) {
		o.Dimension = opts.Dimension
		o.DistanceType = opts.DistanceType
		o.Compression = opts.Compression
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	registry.Register(flatIndex)

	graphIndex, err := hnsw.New(opts.Dimension, func(o *hnsw.Options) {
		o.M = opts.HNSWM
		o.EF = opts.HNSWEF
		o.DistanceType = opts.DistanceType
		o.Compression = opts.Compression
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	registry.Register(graphIndex)

	w, err := wal.New(func(o *wal.Options) {
		o.LogPath = opts.WALPath
		o.CursorPath = opts.CursorPath
		o.SnapshotDir = opts.SnapshotDir
		o.Logger = logger.Logger
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &DB{
		opts:     opts,
		logger:   logger,
		registry: registry,
		store:    store,
		wal:      w,
	}, nil
}

// Registry exposes the index registry, mainly for inspection in tests.
func (db *DB) Registry() *Registry {
	return db.registry
}

// Upsert writes a record across the scalar store, the owning vector index,
// and the filter index. An existing record is overwritten; its old vector is
// removed from the flat index, while the graph index keeps it: HNSW searches
// can still return the record's id for its old vector.
//
// There is no atomicity across the individual steps. Callers append the WAL
// entry only after Upsert returns, so a crash mid-upsert replays nothing.
func (db *DB) Upsert(id uint64, doc model.Document, kind index.Kind) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.upsertLocked(id, doc, kind)
}

func (db *DB) upsertLocked(id uint64, doc model.Document, kind index.Kind) error {
	db.logger.Info("upsert", "id", id, "indexType", kind.String())

	idx := db.registry.Get(kind)
	if idx == nil {
		return fmt.Errorf("vecdb: %w: %s", ErrUnknownIndexKind, kind.String())
	}

	vector, ok := doc.Vector()
	if !ok {
		return ErrMissingVectors
	}

	existing, err := db.store.GetScalar(id)
	if err != nil {
		return err
	}

	if existing.IsObject() {
		switch kind {
		case index.KindFlat:
			if err := idx.Remove(id); err != nil {
				return err
			}
		default:
			// The graph index has no removal path; the stale vector remains
			// in the graph and findable by search.
			db.logger.Debug("skipping vector removal for graph index", "id", id)
		}
	}

	if err := idx.Insert(vector, id); err != nil {
		return err
	}

	filter := db.registry.Filter()
	for field := range doc {
		if field == model.FieldID {
			continue
		}

		value, ok := doc.Int64(field)
		if !ok {
			continue
		}

		var oldValue *int64
		if existing.IsObject() {
			if old, ok := existing.Int64(field); ok {
				oldValue = &old
			}
		}

		filter.Update(field, oldValue, value, id)
	}

	return db.store.InsertScalar(id, doc)
}

// Query returns the record stored under id. A miss returns a nil Document.
func (db *DB) Query(id uint64) (model.Document, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return db.store.GetScalar(id)
}

// Search performs a k-nearest neighbour search, optionally restricted by a
// filter over one integer scalar field. An unknown index kind returns an
// empty result.
func (db *DB) Search(req SearchRequest) (SearchResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	idx := db.registry.Get(req.Kind)
	if idx == nil {
		return SearchResult{}, nil
	}

	var allow *roaring.Bitmap
	if req.Filter != nil {
		allow = roaring.New()
		db.registry.Filter().Select(req.Filter.FieldName, req.Filter.Op, req.Filter.Value, allow)
	}

	ids, distances, err := idx.Search(req.Vector, req.K, allow)
	if err != nil {
		return SearchResult{}, err
	}

	// Strip padding slots before surfacing results.
	result := SearchResult{
		IDs:       make([]int64, 0, len(ids)),
		Distances: make([]float32, 0, len(ids)),
	}
	for i, id := range ids {
		if id == index.PaddingID {
			continue
		}
		result.IDs = append(result.IDs, id)
		result.Distances = append(result.Distances, distances[i])
	}

	return result, nil
}

// WriteWAL appends an operation to the log. The operation is durable once
// WriteWAL returns without error.
func (db *DB) WriteWAL(op string, doc model.Document) error {
	_, err := db.wal.Append(op, doc, walVersion)
	return err
}

// TakeSnapshot serializes every index to the snapshot directory and advances
// the snapshot cursor. Writes are stalled for the duration.
func (db *DB) TakeSnapshot() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	return db.wal.TakeSnapshot(db.registry, db.store)
}

// Recover is the startup entry point: it loads the latest snapshot and
// replays every log entry past the snapshot cursor through the regular
// write path. A malformed entry terminates replay at that point.
func (db *DB) Recover() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.logger.Info("recovering database")

	if err := db.wal.LoadSnapshot(db.registry, db.store); err != nil {
		return err
	}

	replayed := 0
	for {
		entry, ok, err := db.wal.Next()
		if err != nil {
			return fmt.Errorf("vecdb: replay terminated: %w", err)
		}
		if !ok {
			break
		}

		if entry.Op != OpUpsert {
			db.logger.Warn("skipping unknown WAL operation", "op", entry.Op, "seq", entry.SeqNo)
			continue
		}

		id, ok := entry.Document.ID()
		if !ok {
			return fmt.Errorf("vecdb: replay terminated: log entry %d has no id", entry.SeqNo)
		}

		kind := index.KindUnknown
		if tag, ok := entry.Document.IndexType(); ok {
			kind = index.KindFromString(tag)
		}

		if err := db.upsertLocked(id, entry.Document, kind); err != nil {
			return fmt.Errorf("vecdb: replay terminated at seq %d: %w", entry.SeqNo, err)
		}

		replayed++
	}

	db.logger.Info("recovery complete", "replayed", replayed, "cursor", db.wal.Cursor())

	return nil
}

// Close releases the log file and the scalar store.
func (db *DB) Close() error {
	if err := db.wal.Close(); err != nil {
		_ = db.store.Close()
		return err
	}

	return db.store.Close()
}
