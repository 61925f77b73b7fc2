package index

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the codec snapshot files are written with. Reads sniff
// the frame magic, so any codec's files can be loaded regardless of the
// current setting.
type Compression int

const (
	// CompressionNone writes raw snapshot files.
	CompressionNone Compression = iota

	// CompressionZstd compresses snapshot files with zstd.
	CompressionZstd

	// CompressionLZ4 compresses snapshot files with the lz4 frame format.
	CompressionLZ4
)

// String returns a string representation of the Compression codec.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// OpenSnapshotWriter creates path and wraps it with the requested codec.
// Closing the returned WriteCloser flushes the codec and closes the file.
func OpenSnapshotWriter(path string, compression Compression) (io.WriteCloser, error) {
	file, err := os.Create(path) //nolint:gosec // G304: path is owned by the snapshot directory
	if err != nil {
		return nil, fmt.Errorf("index: failed to create snapshot file: %w", err)
	}

	switch compression {
	case CompressionZstd:
		enc, err := zstd.NewWriter(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("index: failed to create zstd writer: %w", err)
		}
		return &snapshotWriter{codec: enc, file: file}, nil
	case CompressionLZ4:
		return &snapshotWriter{codec: lz4.NewWriter(file), file: file}, nil
	default:
		return file, nil
	}
}

// OpenSnapshotReader opens path and unwraps whichever codec it was written
// with, decided by the leading frame magic.
func OpenSnapshotReader(path string) (io.ReadCloser, error) {
	file, err := os.Open(path) //nolint:gosec // G304: path is owned by the snapshot directory
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(file)

	magic, err := br.Peek(4)
	if err != nil && err != io.EOF {
		_ = file.Close()
		return nil, fmt.Errorf("index: failed to read snapshot header: %w", err)
	}

	switch {
	case matchMagic(magic, zstdMagic):
		dec, err := zstd.NewReader(br)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("index: failed to create zstd reader: %w", err)
		}
		return &snapshotReader{reader: dec.IOReadCloser(), file: file}, nil
	case matchMagic(magic, lz4Magic):
		return &snapshotReader{reader: io.NopCloser(lz4.NewReader(br)), file: file}, nil
	default:
		return &snapshotReader{reader: io.NopCloser(br), file: file}, nil
	}
}

func matchMagic(head, magic []byte) bool {
	if len(head) < len(magic) {
		return false
	}
	for i := range magic {
		if head[i] != magic[i] {
			return false
		}
	}
	return true
}

type snapshotWriter struct {
	codec io.WriteCloser
	file  *os.File
}

func (w *snapshotWriter) Write(p []byte) (int, error) {
	return w.codec.Write(p)
}

func (w *snapshotWriter) Close() error {
	if err := w.codec.Close(); err != nil {
		_ = w.file.Close()
		return err
	}
	return w.file.Close()
}

type snapshotReader struct {
	reader io.ReadCloser
	file   *os.File
}

func (r *snapshotReader) Read(p []byte) (int, error) {
	return r.reader.Read(p)
}

func (r *snapshotReader) Close() error {
	_ = r.reader.Close()
	return r.file.Close()
}
