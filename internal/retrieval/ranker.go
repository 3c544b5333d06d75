package retrieval

import (
	"math"
	"sort"
)

// ScoredMatch is a candidate with its cosine similarity to the query,
// in [-1, 1]. Produced by TopK, never persisted.
type ScoredMatch struct {
	MovieID int64
	Score   float32
}

// CosineSimilarity returns dot(a,b) / (‖a‖·‖b‖). When either vector has
// zero magnitude the similarity is defined as exactly 0 rather than an
// error, and mismatched lengths also score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq)))
}

// TopK scores the query vector against every candidate and returns the k
// best matches sorted by similarity descending. Ties break on ascending
// movie ID so results are deterministic regardless of scan order. If
// fewer than k candidates exist, all of them are returned.
func TopK(query []float32, candidates []Candidate, k int) []ScoredMatch {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	scored := make([]ScoredMatch, len(candidates))
	for i, c := range candidates {
		scored[i] = ScoredMatch{MovieID: c.MovieID, Score: CosineSimilarity(query, c.Vector)}
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].MovieID < scored[j].MovieID
	})

	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}
