package scalar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(func(o *Options) {
		o.InMemory = true
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})

	return s
}

func TestInsertGetScalar(t *testing.T) {
	s := newTestStore(t)

	doc, err := model.Parse([]byte(`{"id":10,"vectors":[0.1,0.2,0.3],"name":"A","category":100}`))
	require.NoError(t, err)

	require.NoError(t, s.InsertScalar(10, doc))

	got, err := s.GetScalar(10)
	require.NoError(t, err)
	require.True(t, got.IsObject())
	assert.Equal(t, doc, got)
}

func TestGetScalarMiss(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetScalar(999)
	require.NoError(t, err)
	assert.False(t, got.IsObject())
}

func TestOverwrite(t *testing.T) {
	s := newTestStore(t)

	d1, err := model.Parse([]byte(`{"id":1,"version":1}`))
	require.NoError(t, err)
	d2, err := model.Parse([]byte(`{"id":1,"version":2}`))
	require.NoError(t, err)

	require.NoError(t, s.InsertScalar(1, d1))
	require.NoError(t, s.InsertScalar(1, d2))

	got, err := s.GetScalar(1)
	require.NoError(t, err)
	assert.Equal(t, d2, got)
}

func TestRawPutGet(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put("lastSnapshotID", []byte("42")))

	value, err := s.Get("lastSnapshotID")
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), value)

	missing, err := s.Get("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestOnDiskStore(t *testing.T) {
	dir := t.TempDir()

	s, err := New(func(o *Options) {
		o.Path = dir
	})
	require.NoError(t, err)

	require.NoError(t, s.Put("k", []byte("v")))
	require.NoError(t, s.Close())

	s, err = New(func(o *Options) {
		o.Path = dir
	})
	require.NoError(t, err)
	defer s.Close()

	value, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), value)
}
