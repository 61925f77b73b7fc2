// Package hnsw implements the Hierarchical Navigable Small World (HNSW)
// graph for approximate nearest neighbor search.
//
// The graph offers sub-linear queries at the cost of exactness and of a
// missing removal path: entries can only be added, never deleted.
// Filtered search applies the allow set as a label predicate on emitted
// candidates while traversal still explores the full graph, so very sparse
// allow sets may return fewer than k hits even though more matching records
// exist further from the query.
package hnsw

import (
	"container/heap"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bitset"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/queue"
)

// Compile-time check to ensure HNSW satisfies the index contract.
var _ index.VectorIndex = (*HNSW)(nil)

// Node represents a node in the HNSW graph.
type Node struct {
	Connections [][]uint32 // Links to other nodes, by internal id, per layer
	Vector      []float32  // Vector (X dimensions)
	Layer       int        // Layer the node exists in the HNSW tree
	Label       uint64     // Record identifier assigned by the caller
}

// Options represents the options for configuring HNSW.
type Options struct {
	// M specifies the number of established connections for every new element
	// during construction. The range M=12-48 is ok for most use cases; higher
	// M works better on datasets with high intrinsic dimensionality and/or
	// high recall requirements.
	M int

	// EF specifies the size of the dynamic candidate list.
	// Larger EF values can improve recall at the cost of increased search time.
	EF int

	// Heuristic indicates whether to use the heuristic neighbour selection
	// (true) or the naive nearest-M selection (false).
	Heuristic bool

	// DistanceType represents the type of distance function used for
	// calculating distances between vectors.
	DistanceType index.DistanceType

	// Compression selects the snapshot file codec.
	Compression index.Compression
}

// DefaultOptions contains the default configuration options for HNSW.
var DefaultOptions = Options{
	M:            8,
	EF:           200,
	Heuristic:    true,
	DistanceType: index.DistanceTypeSquaredL2,
}

// HNSW represents the Hierarchical Navigable Small World graph.
type HNSW struct {
	dimension int
	mmax      int     // Max number of connections per element/per layer
	mmax0     int     // Max for the 0 layer
	ml        float64 // Normalization factor for level generation
	ep        uint32  // Entry point into the top layer
	maxLevel  int     // Current max level in use

	nodes []*Node

	distanceFunc index.DistanceFunc

	opts Options

	mutex sync.Mutex
}

// New creates a new HNSW instance with the given dimension and options.
func New(dimension int, optFns ...func(o *Options)) (*HNSW, error) {
	opts := DefaultOptions

	for _, fn := range optFns {
		fn(&opts)
	}

	if dimension <= 0 {
		return nil, fmt.Errorf("hnsw: invalid dimension: %d", dimension)
	}

	if opts.M < 2 {
		// M == 1 would divide by zero in the level normalization factor.
		opts.M = 2
	}

	distanceFunc := index.NewDistanceFunc(opts.DistanceType)
	if distanceFunc == nil {
		return nil, fmt.Errorf("hnsw: invalid distance type: %d", opts.DistanceType)
	}

	return &HNSW{
		dimension:    dimension,
		mmax:         opts.M,
		mmax0:        2 * opts.M,
		ml:           1 / math.Log(1.0*float64(opts.M)),
		distanceFunc: distanceFunc,
		opts:         opts,
	}, nil
}

// Kind identifies the index structure.
func (h *HNSW) Kind() index.Kind { return index.KindHNSW }

// Len returns the number of stored vectors.
func (h *HNSW) Len() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.nodes)
}

// Remove is not supported by the graph index. Inserting the same label again
// adds a second node; the old node stays in the graph and can still be
// returned by Search.
func (h *HNSW) Remove(_ uint64) error {
	return index.ErrRemoveUnsupported
}

// Insert inserts a new element into the HNSW graph under the given label.
func (h *HNSW) Insert(v []float32, label uint64) error {
	if len(v) != h.dimension {
		return &index.ErrDimensionMismatch{Expected: h.dimension, Actual: len(v)}
	}

	// Copy so changes outside this function don't affect the node.
	vectorCopy := make([]float32, len(v))
	copy(vectorCopy, v)

	h.mutex.Lock()
	defer h.mutex.Unlock()

	id := uint32(len(h.nodes))

	layer := h.randomLayer()

	node := &Node{
		Label:       label,
		Vector:      vectorCopy,
		Layer:       layer,
		Connections: make([][]uint32, max(layer, h.mmax)+1),
	}

	// First element becomes the entry point.
	if len(h.nodes) == 0 {
		h.nodes = append(h.nodes, node)
		h.ep = id
		h.maxLevel = node.Layer
		return nil
	}

	// Find the single shortest path from the layers above our node's layer;
	// that becomes the starting point for linking.
	currObj, currDist, err := h.findShortestPath(node)
	if err != nil {
		return err
	}

	topCandidates := &queue.PriorityQueue{Order: false}

	// For all levels at and below our node, find the closest candidates and link.
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		err = h.searchLayer(vectorCopy, &queue.PriorityQueueItem{Distance: currDist, ID: uint64(currObj)}, topCandidates, h.opts.EF, level, nil)
		if err != nil {
			return err
		}

		if h.opts.Heuristic {
			if err := h.selectNeighboursHeuristic(topCandidates, h.opts.M, false); err != nil {
				return err
			}
		} else {
			h.selectNeighboursSimple(topCandidates, h.opts.M)
		}

		node.Connections[level] = make([]uint32, topCandidates.Len())

		for i := topCandidates.Len() - 1; i >= 0; i-- {
			candidate, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
			node.Connections[level][i] = uint32(candidate.ID)
		}
	}

	h.nodes = append(h.nodes, node)

	// Link the neighbour nodes back to the new node, making it visible.
	for level := min(node.Layer, h.maxLevel); level >= 0; level-- {
		for _, neighbour := range node.Connections[level] {
			if err := h.link(neighbour, id, level); err != nil {
				return err
			}
		}
	}

	if node.Layer > h.maxLevel {
		h.ep = id
		h.maxLevel = node.Layer
	}

	return nil
}

// Search performs a k-nearest neighbour search. Results come back in the
// drain order of the internal priority queue; callers must not assume they
// are sorted by distance.
func (h *HNSW) Search(query []float32, k int, allow *roaring.Bitmap) ([]int64, []float32, error) {
	if err := index.ValidateSearchArgs(query, k, h.dimension); err != nil {
		return nil, nil, err
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	if len(h.nodes) == 0 {
		return nil, nil, nil
	}

	numQueries := len(query) / h.dimension

	var ids []int64
	var distances []float32

	for q := 0; q < numQueries; q++ {
		queryVector := query[q*h.dimension : (q+1)*h.dimension]

		epID, epDist, err := h.findEp(queryVector)
		if err != nil {
			return nil, nil, err
		}

		topCandidates := &queue.PriorityQueue{Order: true}
		heap.Init(topCandidates)

		ef := h.opts.EF
		if k > ef {
			ef = k
		}

		err = h.searchLayer(queryVector, &queue.PriorityQueueItem{Distance: epDist, ID: uint64(epID)}, topCandidates, ef, 0, allow)
		if err != nil {
			return nil, nil, err
		}

		for topCandidates.Len() > k {
			_ = heap.Pop(topCandidates)
		}

		for topCandidates.Len() > 0 {
			item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
			ids = append(ids, int64(h.nodes[item.ID].Label))
			distances = append(distances, item.Distance)
		}
	}

	return ids, distances, nil
}

func (h *HNSW) randomLayer() int {
	u := rand.Float64() // nolint gosec
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	return int(math.Floor(-math.Log(u) * h.ml))
}

// findShortestPath greedily descends from the entry point through the layers
// above the new node's layer.
func (h *HNSW) findShortestPath(node *Node) (uint32, float32, error) {
	currID := h.ep
	currObj := h.nodes[currID]

	currDist, err := h.distanceFunc(currObj.Vector, node.Vector)
	if err != nil {
		return 0, 0, err
	}

	for level := currObj.Layer; level > node.Layer; level-- {
		changed := true
		for changed {
			changed = false

			for _, neighbourID := range h.connections(currID, level) {
				newDist, err := h.distanceFunc(h.nodes[neighbourID].Vector, node.Vector)
				if err != nil {
					return 0, 0, err
				}

				if newDist < currDist {
					currID = neighbourID
					currDist = newDist
					changed = true
				}
			}
		}
	}

	return currID, currDist, nil
}

// findEp greedily descends from the top layer down to layer 1 and returns
// the best entry point for the layer-0 search.
func (h *HNSW) findEp(q []float32) (uint32, float32, error) {
	currID := h.ep

	currDist, err := h.distanceFunc(q, h.nodes[currID].Vector)
	if err != nil {
		return 0, 0, err
	}

	for level := h.maxLevel; level > 0; level-- {
		scan := true

		for scan {
			scan = false

			for _, neighbourID := range h.connections(currID, level) {
				nodeDist, err := h.distanceFunc(h.nodes[neighbourID].Vector, q)
				if err != nil {
					return 0, 0, err
				}

				if nodeDist < currDist {
					currID = neighbourID
					currDist = nodeDist
					scan = true
				}
			}
		}
	}

	return currID, currDist, nil
}

// connections returns the node's neighbour list at the given level, or nil
// when the node does not reach that level.
func (h *HNSW) connections(id uint32, level int) []uint32 {
	node := h.nodes[id]
	if level >= len(node.Connections) {
		return nil
	}
	return node.Connections[level]
}

// searchLayer performs a search in a specified layer of the HNSW graph.
// The allow set restricts which labels may enter topCandidates; traversal
// itself is unrestricted.
func (h *HNSW) searchLayer(q []float32, ep *queue.PriorityQueueItem, topCandidates *queue.PriorityQueue, ef int, level int, allow *roaring.Bitmap) error {
	var visited bitset.BitSet

	visited.Set(uint(ep.ID))

	candidates := &queue.PriorityQueue{Order: false}
	heap.Init(candidates)
	heap.Push(candidates, &queue.PriorityQueueItem{ID: ep.ID, Distance: ep.Distance})

	topCandidates.Order = true // max-heap
	topCandidates.Items = topCandidates.Items[:0]
	heap.Init(topCandidates)

	if h.allowed(allow, uint32(ep.ID)) {
		heap.Push(topCandidates, &queue.PriorityQueueItem{ID: ep.ID, Distance: ep.Distance})
	}

	for candidates.Len() > 0 {
		candidate, _ := heap.Pop(candidates).(*queue.PriorityQueueItem)

		if topCandidates.Len() >= ef && candidate.Distance > topCandidates.Top().Distance {
			break
		}

		for _, n := range h.connections(uint32(candidate.ID), level) {
			if visited.Test(uint(n)) {
				continue
			}
			visited.Set(uint(n))

			distance, err := h.distanceFunc(q, h.nodes[n].Vector)
			if err != nil {
				return err
			}

			if topCandidates.Len() < ef || distance < topCandidates.Top().Distance {
				heap.Push(candidates, &queue.PriorityQueueItem{ID: uint64(n), Distance: distance})

				if h.allowed(allow, n) {
					heap.Push(topCandidates, &queue.PriorityQueueItem{ID: uint64(n), Distance: distance})

					if topCandidates.Len() > ef {
						heap.Pop(topCandidates)
					}
				}
			}
		}
	}

	return nil
}

// allowed reports whether the node may be emitted as a candidate. During
// insertion allow is nil and every node qualifies.
func (h *HNSW) allowed(allow *roaring.Bitmap, id uint32) bool {
	if allow == nil {
		return true
	}
	return allow.Contains(uint32(h.nodes[id].Label))
}

// link adds a connection between nodes and re-selects neighbours when the
// connection list overflows.
func (h *HNSW) link(first uint32, second uint32, level int) error {
	maxConnections := h.mmax
	// The bottom layer allows double the connections.
	if level == 0 {
		maxConnections = h.mmax0
	}

	node := h.nodes[first]

	for level >= len(node.Connections) {
		node.Connections = append(node.Connections, nil)
	}
	node.Connections[level] = append(node.Connections[level], second)

	if len(node.Connections[level]) <= maxConnections {
		return nil
	}

	topCandidates := &queue.PriorityQueue{Order: false}
	heap.Init(topCandidates)

	for _, id := range node.Connections[level] {
		distance, err := h.distanceFunc(node.Vector, h.nodes[id].Vector)
		if err != nil {
			return err
		}

		heap.Push(topCandidates, &queue.PriorityQueueItem{ID: uint64(id), Distance: distance})
	}

	if h.opts.Heuristic {
		if err := h.selectNeighboursHeuristic(topCandidates, maxConnections, true); err != nil {
			return err
		}
	} else {
		h.selectNeighboursSimple(topCandidates, maxConnections)
	}

	// Reorder the connected nodes by the improved distances.
	node.Connections[level] = make([]uint32, topCandidates.Len())

	for i := topCandidates.Len() - 1; i >= 0; i-- {
		item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
		node.Connections[level][i] = uint32(item.ID)
	}

	return nil
}

// selectNeighboursSimple selects the nearest neighbours by distance alone.
func (h *HNSW) selectNeighboursSimple(topCandidates *queue.PriorityQueue, m int) {
	for topCandidates.Len() > m {
		_ = heap.Pop(topCandidates)
	}
}

// selectNeighboursHeuristic prefers candidates that are closer to the new
// node than to any already selected neighbour, which keeps the graph
// navigable in clustered data.
func (h *HNSW) selectNeighboursHeuristic(topCandidates *queue.PriorityQueue, m int, order bool) error {
	if topCandidates.Len() < m {
		return nil
	}

	newCandidates := &queue.PriorityQueue{}

	tmpCandidates := &queue.PriorityQueue{Order: order}
	heap.Init(tmpCandidates)

	items := make([]*queue.PriorityQueueItem, 0, m)

	if !order {
		newCandidates.Order = order
		heap.Init(newCandidates)

		for topCandidates.Len() > 0 {
			item, _ := heap.Pop(topCandidates).(*queue.PriorityQueueItem)
			heap.Push(newCandidates, item)
		}
	} else {
		newCandidates = topCandidates
	}

	for newCandidates.Len() > 0 {
		if len(items) >= m {
			break
		}

		item, _ := heap.Pop(newCandidates).(*queue.PriorityQueueItem)
		hit := true

		// Keep the candidate only if no already selected neighbour is closer
		// to it than the new node is.
		for _, v := range items {
			distance, err := h.distanceFunc(h.nodes[v.ID].Vector, h.nodes[item.ID].Vector)
			if err != nil {
				return err
			}

			if distance < item.Distance {
				hit = false
				break
			}
		}

		if hit {
			items = append(items, item)
		} else {
			heap.Push(tmpCandidates, item)
		}
	}

	for len(items) < m && tmpCandidates.Len() > 0 {
		item, _ := heap.Pop(tmpCandidates).(*queue.PriorityQueueItem)
		items = append(items, item)
	}

	for _, item := range items {
		heap.Push(topCandidates, item)
	}

	return nil
}
