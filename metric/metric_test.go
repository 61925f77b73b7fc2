package metric

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSquaredL2(t *testing.T) {
	d, err := SquaredL2([]float32{0.1, 0.2, 0.3}, []float32{0.7, 0.8, 0.9})
	require.NoError(t, err)
	assert.InDelta(t, 1.08, d, 1e-5)

	d, err = SquaredL2([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, float32(0), d)
}

func TestSquaredL2SizeMismatch(t *testing.T) {
	_, err := SquaredL2([]float32{1, 2}, []float32{1, 2, 3})
	assert.ErrorIs(t, err, ErrSizeMismatch)
}

func TestInnerProduct(t *testing.T) {
	d, err := InnerProduct([]float32{1, 0, 2}, []float32{3, 5, 4})
	require.NoError(t, err)
	assert.Equal(t, float32(-11), d)
}
