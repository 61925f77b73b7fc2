// Package index defines the contract shared by the vector index
// implementations and the snapshot file helpers they use.
package index

import (
	"errors"
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdb/metric"
)

// Kind identifies an index structure. The integer value doubles as the
// ordinal in snapshot file names (<ordinal>.index).
type Kind int

const (
	// KindFlat is the exact exhaustive index.
	KindFlat Kind = 0

	// KindHNSW is the hierarchical navigable small-world graph index.
	KindHNSW Kind = 1

	// KindFilter is the inverted scalar filter index.
	KindFilter Kind = 2

	// KindUnknown is the zero-information kind; search requests carrying it
	// return empty results.
	KindUnknown Kind = -1
)

// KindFromString parses the wire-level index type tag.
func KindFromString(s string) Kind {
	switch s {
	case "FLAT":
		return KindFlat
	case "HNSW":
		return KindHNSW
	default:
		return KindUnknown
	}
}

// String returns the wire-level name of the kind.
func (k Kind) String() string {
	switch k {
	case KindFlat:
		return "FLAT"
	case KindHNSW:
		return "HNSW"
	case KindFilter:
		return "FILTER"
	default:
		return "UNKNOWN"
	}
}

// PaddingID marks an unfilled result slot when fewer than k candidates exist.
const PaddingID int64 = -1

var (
	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")

	// ErrRemoveUnsupported is returned by indexes that cannot remove entries.
	ErrRemoveUnsupported = errors.New("remove is not supported by this index")
)

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// DistanceFunc represents a function for calculating the distance between two vectors.
type DistanceFunc func(v1, v2 []float32) (float32, error)

// DistanceType represents the type of distance function used for calculating
// distances between vectors.
type DistanceType int

// Constants representing different types of distance functions.
const (
	DistanceTypeSquaredL2 DistanceType = iota
	DistanceTypeInnerProduct
)

// NewDistanceFunc returns a distance function based on the specified distance type.
func NewDistanceFunc(distanceType DistanceType) DistanceFunc {
	switch distanceType {
	case DistanceTypeSquaredL2:
		return metric.SquaredL2
	case DistanceTypeInnerProduct:
		return metric.InnerProduct
	default:
		return nil
	}
}

// String returns a string representation of the DistanceType.
func (dt DistanceType) String() string {
	switch dt {
	case DistanceTypeSquaredL2:
		return "SquaredL2"
	case DistanceTypeInnerProduct:
		return "InnerProduct"
	default:
		return "Unknown"
	}
}

// VectorIndex is the contract both vector index implementations satisfy.
//
// Search takes a query whose length must be a multiple of the index
// dimension (one result block of k slots per query), a positive k, and an
// optional allow set restricting the identifiers that may be emitted. Result
// ordering is implementation-defined: the flat index returns ascending
// distances and pads short blocks with PaddingID; the graph index returns
// queue drain order and never pads.
type VectorIndex interface {
	// Kind identifies the index structure.
	Kind() Kind

	// Insert adds a vector under the given record identifier.
	Insert(vector []float32, id uint64) error

	// Remove deletes all entries for the given record identifier.
	// Indexes without a removal path return ErrRemoveUnsupported.
	Remove(id uint64) error

	// Search performs a k-nearest neighbour search.
	Search(query []float32, k int, allow *roaring.Bitmap) ([]int64, []float32, error)

	// Save serializes the index to the given file path.
	Save(path string) error

	// Load restores the index from the given file path. A missing file is a
	// cold start, not an error.
	Load(path string) error
}

// ValidateSearchArgs checks the common search preconditions.
func ValidateSearchArgs(query []float32, k int, dimension int) error {
	if k <= 0 {
		return ErrInvalidK
	}

	if dimension <= 0 || len(query) == 0 || len(query)%dimension != 0 {
		return &ErrDimensionMismatch{Expected: dimension, Actual: len(query)}
	}

	return nil
}
