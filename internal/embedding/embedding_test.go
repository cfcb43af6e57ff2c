package embedding_test

import (
	"context"
	"testing"

	"github.com/hsn0918/rag/internal/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.EmbedLight(ctx, "random access procedure")
	require.NoError(t, err)
	b, err := e.EmbedLight(ctx, "random access procedure")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestHashEmbedder_DimensionsFixed(t *testing.T) {
	e, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)
	ctx := context.Background()

	short, err := e.EmbedLight(ctx, "x")
	require.NoError(t, err)
	long, err := e.EmbedLight(ctx, "a very long sentence with many more distinct words in it")
	require.NoError(t, err)
	assert.Len(t, short, embedding.LightDim)
	assert.Len(t, long, embedding.LightDim)

	dense, err := e.EmbedDense(ctx, "x")
	require.NoError(t, err)
	assert.Len(t, dense, embedding.DenseDim)
}

func TestHashEmbedder_L2Normalized(t *testing.T) {
	e, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)

	v, err := e.EmbedDense(context.Background(), "carrier aggregation configuration")
	require.NoError(t, err)

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, sumSq, 1e-3)
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	e, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)

	v, err := e.EmbedLight(context.Background(), "")
	require.NoError(t, err)
	for _, x := range v {
		assert.Zero(t, x)
	}
}

func TestHashEmbedder_DistinctTextsDiffer(t *testing.T) {
	e, err := embedding.NewHashEmbedder(16)
	require.NoError(t, err)
	ctx := context.Background()

	a, err := e.EmbedDense(ctx, "5G NR random access procedure")
	require.NoError(t, err)
	b, err := e.EmbedDense(ctx, "gNodeB AAU5613 configuration guide")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, embedding.CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 1e-6)
	assert.InDelta(t, 0.0, embedding.CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.Zero(t, embedding.CosineSimilarity(nil, []float32{1}))
	assert.Zero(t, embedding.CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
