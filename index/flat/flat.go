// Package flat provides the exact exhaustive vector index.
//
// Every query computes the distance to every stored vector, so results are
// exact at O(n) per query. The index supports arbitrary remove-by-id, which
// makes it the only index the orchestrator can fully update in place.
package flat

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/queue"
)

// Compile-time check to ensure Flat satisfies the index contract.
var _ index.VectorIndex = (*Flat)(nil)

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// It must be > 0 and is enforced for all inserts and searches.
	Dimension int

	// DistanceType represents the type of distance function used for
	// calculating distances between vectors.
	DistanceType index.DistanceType

	// Compression selects the snapshot file codec.
	Compression index.Compression
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension:    0,
	DistanceType: index.DistanceTypeSquaredL2,
}

type node struct {
	ID     uint64
	Vector []float32
}

// Flat represents the exact exhaustive index.
type Flat struct {
	mu           sync.RWMutex
	nodes        []node
	distanceFunc index.DistanceFunc
	opts         Options
}

// New creates a new instance of the flat index. Dimension must be set.
func New(optFns ...func(o *Options)) (*Flat, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("flat: invalid dimension: %d", opts.Dimension)
	}

	distanceFunc := index.NewDistanceFunc(opts.DistanceType)
	if distanceFunc == nil {
		return nil, fmt.Errorf("flat: invalid distance type: %d", opts.DistanceType)
	}

	return &Flat{
		distanceFunc: distanceFunc,
		opts:         opts,
	}, nil
}

// Kind identifies the index structure.
func (f *Flat) Kind() index.Kind { return index.KindFlat }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.nodes)
}

// Insert appends a vector under the given record identifier.
func (f *Flat) Insert(vector []float32, id uint64) error {
	if len(vector) != f.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: len(vector)}
	}

	vectorCopy := make([]float32, len(vector))
	copy(vectorCopy, vector)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nodes = append(f.nodes, node{ID: id, Vector: vectorCopy})

	return nil
}

// Remove deletes all entries stored under the given record identifier.
func (f *Flat) Remove(id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	kept := f.nodes[:0]
	for _, n := range f.nodes {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	f.nodes = kept

	return nil
}

// Search performs an exhaustive top-k scan. The query length must be a
// multiple of the index dimension; one block of k result slots is produced
// per query, ordered by ascending distance and padded with PaddingID when
// fewer than k candidates match.
func (f *Flat) Search(query []float32, k int, allow *roaring.Bitmap) ([]int64, []float32, error) {
	if err := index.ValidateSearchArgs(query, k, f.opts.Dimension); err != nil {
		return nil, nil, err
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	numQueries := len(query) / f.opts.Dimension

	ids := make([]int64, 0, numQueries*k)
	distances := make([]float32, 0, numQueries*k)

	for q := 0; q < numQueries; q++ {
		queryVector := query[q*f.opts.Dimension : (q+1)*f.opts.Dimension]

		top := &queue.PriorityQueue{Order: true} // max-heap keeps the k best
		heap.Init(top)

		for _, n := range f.nodes {
			if allow != nil && !allow.Contains(uint32(n.ID)) {
				continue
			}

			d, err := f.distanceFunc(queryVector, n.Vector)
			if err != nil {
				return nil, nil, err
			}

			if top.Len() < k {
				heap.Push(top, &queue.PriorityQueueItem{ID: n.ID, Distance: d})
				continue
			}

			if d < top.Top().Distance {
				heap.Pop(top)
				heap.Push(top, &queue.PriorityQueueItem{ID: n.ID, Distance: d})
			}
		}

		blockIDs := make([]int64, k)
		blockDistances := make([]float32, k)

		for i := range blockIDs {
			blockIDs[i] = index.PaddingID
		}

		// Drain the max-heap back to front for ascending order.
		for i := top.Len() - 1; i >= 0; i-- {
			item, _ := heap.Pop(top).(*queue.PriorityQueueItem)
			blockIDs[i] = int64(item.ID)
			blockDistances[i] = item.Distance
		}

		ids = append(ids, blockIDs...)
		distances = append(distances, blockDistances...)
	}

	return ids, distances, nil
}
