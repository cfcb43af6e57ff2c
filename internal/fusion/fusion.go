// Package fusion implements the RSF dynamic-weight score fusion and the
// rerank cliff cutoff (spec.md 4.J).
package fusion

import (
	"math"
	"sort"
)

// Hit is one scored candidate from a single retrieval stream.
type Hit struct {
	ID    string
	Score float64
}

// Alpha computes the RSF dynamic weight: 0.4 + 0.3*sigmoid((tokenLength-k)/s).
// Bounded in [0.4, 0.7): once the sigmoid saturates in float64 the result
// is held at the largest float64 below 0.7. Monotone non-decreasing in
// tokenLength, = 0.55 at tokenLength == k.
func Alpha(tokenLength, k int, s float64) float64 {
	sigmoid := 1.0 / (1.0 + math.Exp(-(float64(tokenLength-k))/s))
	a := 0.4 + 0.3*sigmoid
	if a >= 0.7 {
		a = math.Nextafter(0.7, 0)
	}
	return a
}

// Normalize min-max scales xs into [0, 1]. When max == min (including the
// empty/all-zero case), every element maps to 1.
func Normalize(xs []float64) []float64 {
	if len(xs) == 0 {
		return nil
	}
	min, max := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	out := make([]float64, len(xs))
	if max == min {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	for i, x := range xs {
		out[i] = (x - min) / (max - min)
	}
	return out
}

// dedupMax collapses hits with the same id, keeping the maximum score.
func dedupMax(hits []Hit) map[string]float64 {
	byID := make(map[string]float64, len(hits))
	for _, h := range hits {
		if cur, ok := byID[h.ID]; !ok || h.Score > cur {
			byID[h.ID] = h.Score
		}
	}
	return byID
}

// Fuse combines a lexical hit stream and a vector hit stream via RSF:
// dedup each side by max score, union ids, independently min-max
// normalize each side, combine as alpha*vecNorm + (1-alpha)*lexNorm, sort
// descending, truncate to topK.
func Fuse(lexHits, vecHits []Hit, alpha float64, topK int) []Hit {
	lexByID := dedupMax(lexHits)
	vecByID := dedupMax(vecHits)

	seen := make(map[string]struct{}, len(lexByID)+len(vecByID))
	ids := make([]string, 0, len(lexByID)+len(vecByID))
	for id := range lexByID {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	for id := range vecByID {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	lexRaw := make([]float64, len(ids))
	vecRaw := make([]float64, len(ids))
	for i, id := range ids {
		lexRaw[i] = lexByID[id]
		vecRaw[i] = vecByID[id]
	}

	lexNorm := Normalize(lexRaw)
	vecNorm := Normalize(vecRaw)

	fused := make([]Hit, len(ids))
	for i, id := range ids {
		fused[i] = Hit{ID: id, Score: alpha*vecNorm[i] + (1-alpha)*lexNorm[i]}
	}

	sort.SliceStable(fused, func(i, j int) bool { return fused[i].Score > fused[j].Score })
	if len(fused) > topK {
		fused = fused[:topK]
	}
	return fused
}

// lowScoreCeiling is the fixed absolute-score threshold the cliff rule
// checks alongside diffThreshold; spec.md 4.J fixes it at 0.3 rather than
// exposing it as a tunable.
const lowScoreCeiling = 0.3

// RerankCutoff applies the cliff-detection truncation: keep the first item
// unconditionally; for each subsequent item (in descending-score order),
// stop before it (not skip past it) once the gap to the previous score
// exceeds diffThreshold AND its own score is below lowScoreCeiling. Also
// caps the output length at maxOutput.
func RerankCutoff(sortedDesc []Hit, diffThreshold float64, maxOutput int) []Hit {
	if len(sortedDesc) == 0 {
		return nil
	}
	output := []Hit{sortedDesc[0]}
	for i := 1; i < len(sortedDesc); i++ {
		if len(output) >= maxOutput {
			break
		}
		diff := sortedDesc[i-1].Score - sortedDesc[i].Score
		if diff > diffThreshold && sortedDesc[i].Score < lowScoreCeiling {
			break
		}
		output = append(output, sortedDesc[i])
	}
	return output
}
