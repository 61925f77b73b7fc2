package hnsw

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/hupe1980/vecdb/index"
)

// graphState is the serialized form of the graph.
type graphState struct {
	Dimension int
	Mmax      int
	Mmax0     int
	ML        float64
	EP        uint32
	MaxLevel  int
	Nodes     []*Node
}

// Save serializes the graph to the given file path.
func (h *HNSW) Save(path string) error {
	h.mutex.Lock()

	state := graphState{
		Dimension: h.dimension,
		Mmax:      h.mmax,
		Mmax0:     h.mmax0,
		ML:        h.ml,
		EP:        h.ep,
		MaxLevel:  h.maxLevel,
		Nodes:     h.nodes,
	}

	h.mutex.Unlock()

	w, err := index.OpenSnapshotWriter(path, h.opts.Compression)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(w).Encode(state); err != nil {
		_ = w.Close()
		return fmt.Errorf("hnsw: failed to encode graph: %w", err)
	}

	return w.Close()
}

// Load restores the graph from the given file path. A missing file is a cold
// start, not an error.
func (h *HNSW) Load(path string) error {
	r, err := index.OpenSnapshotReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer r.Close()

	var state graphState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("hnsw: failed to decode graph: %w", err)
	}

	if state.Dimension != h.dimension {
		return &index.ErrDimensionMismatch{Expected: h.dimension, Actual: state.Dimension}
	}

	h.mutex.Lock()
	h.mmax = state.Mmax
	h.mmax0 = state.Mmax0
	h.ml = state.ML
	h.ep = state.EP
	h.maxLevel = state.MaxLevel
	h.nodes = state.Nodes
	h.mutex.Unlock()

	return nil
}
