package vecdb

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdb/filterindex"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/scalar"
)

// filterStoreKey is the scalar-store key the filter index round-trips its
// serialized postings through, in addition to its snapshot file.
const filterStoreKey = "filterIndex"

// Registry owns one index instance per kind for the process lifetime and
// dispatches snapshot save/load across all of them. It is populated once at
// startup and read-mostly thereafter.
type Registry struct {
	vector map[index.Kind]index.VectorIndex
	filter *filterindex.FilterIndex
	logger *Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *Logger) *Registry {
	if logger == nil {
		logger = NoopLogger()
	}

	return &Registry{
		vector: make(map[index.Kind]index.VectorIndex),
		filter: filterindex.New(),
		logger: logger,
	}
}

// Register stores a vector index under its kind, replacing any previous
// instance.
func (r *Registry) Register(idx index.VectorIndex) {
	r.vector[idx.Kind()] = idx
}

// Get returns the vector index for the kind, or nil when none is registered.
func (r *Registry) Get(kind index.Kind) index.VectorIndex {
	return r.vector[kind]
}

// Filter returns the filter index.
func (r *Registry) Filter() *filterindex.FilterIndex {
	return r.filter
}

// SaveAll serializes every index into folder, one file per kind named by its
// ordinal. The filter index additionally round-trips through the scalar
// store.
func (r *Registry) SaveAll(folder string, store *scalar.Store) error {
	if err := os.MkdirAll(folder, 0750); err != nil {
		return fmt.Errorf("vecdb: failed to create snapshot folder: %w", err)
	}

	var g errgroup.Group

	for kind, idx := range r.vector {
		g.Go(func() error {
			return idx.Save(snapshotPath(folder, kind))
		})
	}

	g.Go(func() error {
		data, err := r.filter.Serialize()
		if err != nil {
			return err
		}

		if err := os.WriteFile(snapshotPath(folder, index.KindFilter), data, 0600); err != nil {
			return fmt.Errorf("vecdb: failed to write filter snapshot: %w", err)
		}

		return store.Put(filterStoreKey, data)
	})

	return g.Wait()
}

// LoadAll restores every index from folder. A missing file is a cold start
// for that index, logged at warn. The filter index falls back to the scalar
// store when its snapshot file is absent.
func (r *Registry) LoadAll(folder string, store *scalar.Store) error {
	var g errgroup.Group

	for kind, idx := range r.vector {
		g.Go(func() error {
			path := snapshotPath(folder, kind)

			if _, err := os.Stat(path); os.IsNotExist(err) {
				r.logger.Warn("snapshot file missing, cold start", "kind", kind.String(), "path", path)
				return nil
			}

			return idx.Load(path)
		})
	}

	g.Go(func() error {
		path := snapshotPath(folder, index.KindFilter)

		data, err := os.ReadFile(path) //nolint:gosec // G304: path is owned by the snapshot directory
		if os.IsNotExist(err) {
			r.logger.Warn("filter snapshot file missing, falling back to scalar store", "path", path)
			return r.filter.Load(store, filterStoreKey)
		}
		if err != nil {
			return fmt.Errorf("vecdb: failed to read filter snapshot: %w", err)
		}

		return r.filter.Deserialize(data)
	})

	return g.Wait()
}

func snapshotPath(folder string, kind index.Kind) string {
	return filepath.Join(folder, fmt.Sprintf("%d.index", int(kind)))
}
