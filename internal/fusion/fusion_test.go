package fusion_test

import (
	"math"
	"testing"

	"github.com/hsn0918/rag/internal/fusion"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlpha_MidpointAtL(t *testing.T) {
	alpha := fusion.Alpha(8, 8, 1)
	assert.InDelta(t, 0.55, alpha, 1e-9)
}

func TestAlpha_BoundedAndMonotone(t *testing.T) {
	short := fusion.Alpha(1, 8, 1)
	long := fusion.Alpha(50, 8, 1)
	assert.GreaterOrEqual(t, short, 0.4)
	assert.LessOrEqual(t, long, 0.7)
	assert.Less(t, short, long)
}

func TestAlpha_BoundedAndMonotoneAcrossRange(t *testing.T) {
	prev := fusion.Alpha(0, 8, 1)
	assert.GreaterOrEqual(t, prev, 0.40)
	assert.Less(t, prev, 0.70)
	for l := 1; l <= 200; l++ {
		a := fusion.Alpha(l, 8, 1)
		assert.GreaterOrEqual(t, a, 0.40)
		assert.Less(t, a, 0.70)
		assert.GreaterOrEqual(t, a, prev, "alpha must be non-decreasing in token length")
		prev = a
	}
}

func TestNormalize_MinMax(t *testing.T) {
	out := fusion.Normalize([]float64{1, 2, 3, 4})
	assert.Equal(t, []float64{0, 1.0 / 3, 2.0 / 3, 1}, out)
}

func TestNormalize_AllEqualReturnsOnes(t *testing.T) {
	out := fusion.Normalize([]float64{5, 5, 5})
	assert.Equal(t, []float64{1, 1, 1}, out)
}

func TestNormalize_AllZeroReturnsOnes(t *testing.T) {
	out := fusion.Normalize([]float64{0, 0, 0})
	assert.Equal(t, []float64{1, 1, 1}, out)
}

func TestNormalize_Empty(t *testing.T) {
	assert.Empty(t, fusion.Normalize(nil))
}

func TestFuse_DedupKeepsMaxScorePerSide(t *testing.T) {
	lex := []fusion.Hit{{ID: "c1", Score: 1}, {ID: "c1", Score: 5}}
	vec := []fusion.Hit{{ID: "c1", Score: 2}}
	fused := fusion.Fuse(lex, vec, 0.5, 10)
	assert.Equal(t, "c1", fused[0].ID)
}

func TestFuse_UnionsBothSidesAndSortsDescending(t *testing.T) {
	lex := []fusion.Hit{{ID: "a", Score: 1}, {ID: "b", Score: 2}}
	vec := []fusion.Hit{{ID: "c", Score: 3}}
	fused := fusion.Fuse(lex, vec, 0.5, 10)

	ids := map[string]bool{}
	for _, h := range fused {
		ids[h.ID] = true
	}
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
	assert.True(t, ids["c"])

	for i := 1; i < len(fused); i++ {
		assert.GreaterOrEqual(t, fused[i-1].Score, fused[i].Score)
	}
}

func TestFuse_TruncatesToTopK(t *testing.T) {
	lex := []fusion.Hit{{ID: "a", Score: 1}, {ID: "b", Score: 2}, {ID: "c", Score: 3}}
	fused := fusion.Fuse(lex, nil, 0.5, 2)
	assert.Len(t, fused, 2)
}

func TestFuse_SwappingAlphaFlipsLexVsVectorFavoredRanking(t *testing.T) {
	lex := []fusion.Hit{{ID: "lex-favored", Score: 10}, {ID: "vec-favored", Score: 1}}
	vec := []fusion.Hit{{ID: "lex-favored", Score: 1}, {ID: "vec-favored", Score: 10}}

	lexHeavy := fusion.Fuse(lex, vec, 0.1, 10)
	require.Equal(t, "lex-favored", lexHeavy[0].ID)

	vecHeavy := fusion.Fuse(lex, vec, 0.9, 10)
	require.Equal(t, "vec-favored", vecHeavy[0].ID)
}

func TestFuse_MissingSideTreatedAsZero(t *testing.T) {
	lex := []fusion.Hit{{ID: "only-lex", Score: 10}}
	fused := fusion.Fuse(lex, nil, 1.0, 10) // alpha=1 => pure vector weight
	assert.Len(t, fused, 1)
	// alpha=1 means vec_norm dominates entirely; only-lex has vec score 0
	// (missing), normalized to 1 (single-element all-equal case), so the
	// combined score is still defined, not NaN.
	assert.False(t, math.IsNaN(fused[0].Score))
}

func TestRerankCutoff_KeepsFirstUnconditionally(t *testing.T) {
	hits := []fusion.Hit{{ID: "a", Score: 0.01}}
	out := fusion.RerankCutoff(hits, 0.8, 10)
	assert.Len(t, out, 1)
}

func TestRerankCutoff_BreaksOnCliffBelowAbsoluteFloor(t *testing.T) {
	hits := []fusion.Hit{
		{ID: "a", Score: 0.95},
		{ID: "b", Score: 0.90},
		{ID: "c", Score: 0.05}, // drop > 0.8 and < 0.3 => cutoff here
		{ID: "d", Score: 0.01},
	}
	out := fusion.RerankCutoff(hits, 0.8, 10)
	assert.Len(t, out, 2)
}

func TestRerankCutoff_NoDropWhenBelowFloorButGapSmall(t *testing.T) {
	hits := []fusion.Hit{
		{ID: "a", Score: 0.35},
		{ID: "b", Score: 0.20}, // gap 0.15, not > 0.8, so kept
	}
	out := fusion.RerankCutoff(hits, 0.8, 10)
	assert.Len(t, out, 2)
}

func TestRerankCutoff_CapsAtMaxOutput(t *testing.T) {
	hits := make([]fusion.Hit, 20)
	for i := range hits {
		hits[i] = fusion.Hit{ID: string(rune('a' + i)), Score: 1.0 - float64(i)*0.01}
	}
	out := fusion.RerankCutoff(hits, 0.8, 10)
	assert.Len(t, out, 10)
}

func TestRerankCutoff_MonotoneNonIncreasing(t *testing.T) {
	hits := []fusion.Hit{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}, {ID: "c", Score: 0.45}}
	out := fusion.RerankCutoff(hits, 0.8, 10)
	for i := 1; i < len(out); i++ {
		assert.LessOrEqual(t, out[i].Score, out[i-1].Score)
	}
}

func TestRerankCutoff_Empty(t *testing.T) {
	assert.Empty(t, fusion.RerankCutoff(nil, 0.8, 10))
}
