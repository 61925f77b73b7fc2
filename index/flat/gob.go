package flat

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/hupe1980/vecdb/index"
)

// flatState is the serialized form of the index.
type flatState struct {
	Dimension    int
	DistanceType index.DistanceType
	IDs          []uint64
	Vectors      [][]float32
}

// Save serializes the index to the given file path.
func (f *Flat) Save(path string) error {
	f.mu.RLock()

	state := flatState{
		Dimension:    f.opts.Dimension,
		DistanceType: f.opts.DistanceType,
		IDs:          make([]uint64, len(f.nodes)),
		Vectors:      make([][]float32, len(f.nodes)),
	}
	for i, n := range f.nodes {
		state.IDs[i] = n.ID
		state.Vectors[i] = n.Vector
	}

	f.mu.RUnlock()

	w, err := index.OpenSnapshotWriter(path, f.opts.Compression)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(w).Encode(state); err != nil {
		_ = w.Close()
		return fmt.Errorf("flat: failed to encode index: %w", err)
	}

	return w.Close()
}

// Load restores the index from the given file path. A missing file is a cold
// start, not an error.
func (f *Flat) Load(path string) error {
	r, err := index.OpenSnapshotReader(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer r.Close()

	var state flatState
	if err := gob.NewDecoder(r).Decode(&state); err != nil {
		return fmt.Errorf("flat: failed to decode index: %w", err)
	}

	if state.Dimension != f.opts.Dimension {
		return &index.ErrDimensionMismatch{Expected: f.opts.Dimension, Actual: state.Dimension}
	}

	nodes := make([]node, len(state.IDs))
	for i := range state.IDs {
		nodes[i] = node{ID: state.IDs[i], Vector: state.Vectors[i]}
	}

	f.mu.Lock()
	f.nodes = nodes
	f.mu.Unlock()

	return nil
}
