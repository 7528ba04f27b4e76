package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashing_Deterministic(t *testing.T) {
	h := NewHashing(64)

	a, err := h.Embed(context.Background(), []string{"Solar panels convert sunlight"})
	require.NoError(t, err)
	b, err := h.Embed(context.Background(), []string{"solar PANELS convert sunlight!"})
	require.NoError(t, err)

	assert.Equal(t, a, b, "case and punctuation should not change the vector")
	assert.Len(t, a[0], 64)
}

func TestHashing_Normalized(t *testing.T) {
	h := NewHashing(0)
	assert.Equal(t, DefaultHashingDimensions, h.Dimensions())

	vecs, err := h.Embed(context.Background(), []string{"one two three two"})
	require.NoError(t, err)

	var sum float64
	for _, x := range vecs[0] {
		sum += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
}

func TestHashing_EmptyText(t *testing.T) {
	h := NewHashing(8)

	vecs, err := h.Embed(context.Background(), []string{"", "   "})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	for _, v := range vecs {
		assert.Equal(t, make([]float32, 8), v)
	}
}

func TestHashing_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHashing(8).Embed(ctx, []string{"text"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHashing_Model(t *testing.T) {
	assert.Equal(t, "hashing-128", NewHashing(128).Model())
}
