package flat

import (
	"path/filepath"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/index"
)

func newTestIndex(t *testing.T) *Flat {
	t.Helper()

	f, err := New(func(o *Options) {
		o.Dimension = 3
	})
	require.NoError(t, err)

	return f
}

func TestInsertAndSearch(t *testing.T) {
	f := newTestIndex(t)

	require.NoError(t, f.Insert([]float32{0.1, 0.2, 0.3}, 10))
	require.NoError(t, f.Insert([]float32{0.7, 0.8, 0.9}, 11))

	ids, distances, err := f.Search([]float32{0.1, 0.2, 0.3}, 2, nil)
	require.NoError(t, err)

	require.Equal(t, []int64{10, 11}, ids)
	assert.Equal(t, float32(0), distances[0])
	assert.InDelta(t, 1.08, distances[1], 1e-5)
}

func TestSearchPadsShortResults(t *testing.T) {
	f := newTestIndex(t)

	require.NoError(t, f.Insert([]float32{1, 0, 0}, 1))

	ids, _, err := f.Search([]float32{1, 0, 0}, 3, nil)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, index.PaddingID, index.PaddingID}, ids)
}

func TestSearchWithAllowSet(t *testing.T) {
	f := newTestIndex(t)

	require.NoError(t, f.Insert([]float32{1, 0, 0}, 1))
	require.NoError(t, f.Insert([]float32{0.9, 0, 0}, 2))
	require.NoError(t, f.Insert([]float32{0.8, 0, 0}, 3))

	allow := roaring.New()
	allow.Add(1)
	allow.Add(3)

	ids, _, err := f.Search([]float32{1, 0, 0}, 3, allow)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, index.PaddingID}, ids)
}

func TestRemove(t *testing.T) {
	f := newTestIndex(t)

	require.NoError(t, f.Insert([]float32{1, 0, 0}, 1))
	require.NoError(t, f.Insert([]float32{0, 1, 0}, 2))
	require.NoError(t, f.Remove(1))

	assert.Equal(t, 1, f.Len())

	ids, _, err := f.Search([]float32{1, 0, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, ids)
}

func TestDimensionMismatch(t *testing.T) {
	f := newTestIndex(t)

	err := f.Insert([]float32{1, 2}, 1)
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)

	_, _, err = f.Search([]float32{1, 2}, 1, nil)
	require.ErrorAs(t, err, &dm)
}

func TestInvalidK(t *testing.T) {
	f := newTestIndex(t)

	_, _, err := f.Search([]float32{1, 2, 3}, 0, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)
}

func TestMultiQuery(t *testing.T) {
	f := newTestIndex(t)

	require.NoError(t, f.Insert([]float32{1, 0, 0}, 1))
	require.NoError(t, f.Insert([]float32{0, 1, 0}, 2))

	ids, _, err := f.Search([]float32{1, 0, 0, 0, 1, 0}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.index")

	f := newTestIndex(t)
	require.NoError(t, f.Insert([]float32{0.1, 0.2, 0.3}, 10))
	require.NoError(t, f.Insert([]float32{0.7, 0.8, 0.9}, 11))
	require.NoError(t, f.Save(path))

	restored := newTestIndex(t)
	require.NoError(t, restored.Load(path))
	require.Equal(t, 2, restored.Len())

	ids, _, err := restored.Search([]float32{0.1, 0.2, 0.3}, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{10}, ids)
}

func TestLoadMissingFileIsColdStart(t *testing.T) {
	f := newTestIndex(t)
	require.NoError(t, f.Load(filepath.Join(t.TempDir(), "missing.index")))
	assert.Equal(t, 0, f.Len())
}

func TestSaveLoadCompressed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "0.index")

	f, err := New(func(o *Options) {
		o.Dimension = 3
		o.Compression = index.CompressionZstd
	})
	require.NoError(t, err)

	require.NoError(t, f.Insert([]float32{1, 2, 3}, 7))
	require.NoError(t, f.Save(path))

	restored := newTestIndex(t)
	require.NoError(t, restored.Load(path))
	assert.Equal(t, 1, restored.Len())
}
