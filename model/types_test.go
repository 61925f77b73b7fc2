package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRoundTrip(t *testing.T) {
	data := []byte(`{"id":10,"vectors":[0.1,0.2,0.3],"name":"A","version":1,"category":100}`)

	doc, err := Parse(data)
	require.NoError(t, err)
	require.True(t, doc.IsObject())

	id, ok := doc.ID()
	require.True(t, ok)
	assert.Equal(t, uint64(10), id)

	vector, ok := doc.Vector()
	require.True(t, ok)
	assert.InDeltaSlice(t, []float32{0.1, 0.2, 0.3}, vector, 1e-6)

	category, ok := doc.Int64("category")
	require.True(t, ok)
	assert.Equal(t, int64(100), category)

	out, err := doc.Marshal()
	require.NoError(t, err)

	again, err := Parse(out)
	require.NoError(t, err)
	assert.Equal(t, doc, again)
}

func TestParseRejectsNonObject(t *testing.T) {
	_, err := Parse([]byte(`[1,2,3]`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestInt64SkipsFloats(t *testing.T) {
	doc, err := Parse([]byte(`{"score":1.5,"count":7,"name":"x"}`))
	require.NoError(t, err)

	_, ok := doc.Int64("score")
	assert.False(t, ok, "float field must not be treated as integer")

	count, ok := doc.Int64("count")
	require.True(t, ok)
	assert.Equal(t, int64(7), count)

	_, ok = doc.Int64("name")
	assert.False(t, ok)

	_, ok = doc.Int64("missing")
	assert.False(t, ok)
}

func TestNilDocumentIsMiss(t *testing.T) {
	var doc Document
	assert.False(t, doc.IsObject())
}
