package vecdb

import (
	"path/filepath"

	"github.com/hupe1980/vecdb/index"
)

// Options contains configuration for the database.
type Options struct {
	// Dimension is the fixed vector dimensionality. Required.
	Dimension int

	// DistanceType selects the distance function for both vector indexes.
	DistanceType index.DistanceType

	// HNSWM is the graph fan-out (bidirectional links per node).
	HNSWM int

	// HNSWEF is the construction and search beam width.
	HNSWEF int

	// ScalarPath is the directory of the scalar store's key-value engine.
	ScalarPath string

	// InMemoryScalar runs the scalar store without touching disk. Used by
	// tests.
	InMemoryScalar bool

	// WALPath is the append-only log file.
	WALPath string

	// CursorPath is the sidecar file holding the snapshot cursor.
	CursorPath string

	// SnapshotDir is the directory snapshot files are written to.
	SnapshotDir string

	// Compression selects the snapshot file codec.
	Compression index.Compression

	// Logger is the structured logger. Defaults to a text logger at info.
	Logger *Logger
}

// DefaultOptions returns default database options matching the service's
// on-disk layout.
var DefaultOptions = Options{
	Dimension:    0,
	DistanceType: index.DistanceTypeSquaredL2,
	HNSWM:        8,
	HNSWEF:       200,
	ScalarPath:   "ScalarStorage",
	WALPath:      filepath.Join("WALLogStorage", "WALLog"),
	CursorPath:   "lastSnapshotID",
	SnapshotDir:  "snapshots",
	Compression:  index.CompressionNone,
}
