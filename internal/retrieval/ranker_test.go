package retrieval

import (
	"math"
	"testing"
)

func almostEqual(a, b float32) bool {
	return math.Abs(float64(a)-float64(b)) < 1e-6
}

func TestCosineSimilarity_Identical(t *testing.T) {
	v := []float32{0.3, 0.5, 0.2}
	got := CosineSimilarity(v, v)
	if !almostEqual(got, 1) {
		t.Errorf("CosineSimilarity(v, v) = %g, want 1", got)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if got := CosineSimilarity(a, b); !almostEqual(got, 0) {
		t.Errorf("CosineSimilarity = %g, want 0", got)
	}
}

func TestCosineSimilarity_Opposite(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{-1, -2, -3}
	if got := CosineSimilarity(a, b); !almostEqual(got, -1) {
		t.Errorf("CosineSimilarity = %g, want -1", got)
	}
}

func TestCosineSimilarity_Symmetric(t *testing.T) {
	a := []float32{0.1, 0.9, 0.4}
	b := []float32{0.7, 0.2, 0.5}
	if CosineSimilarity(a, b) != CosineSimilarity(b, a) {
		t.Error("CosineSimilarity is not symmetric")
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	a := []float32{0, 0, 0}
	b := []float32{1, 2, 3}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("CosineSimilarity(zero, b) = %g, want 0", got)
	}
	if got := CosineSimilarity(b, a); got != 0 {
		t.Errorf("CosineSimilarity(b, zero) = %g, want 0", got)
	}
}

func TestCosineSimilarity_LengthMismatch(t *testing.T) {
	a := []float32{1, 2}
	b := []float32{1, 2, 3}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("CosineSimilarity with mismatched lengths = %g, want 0", got)
	}
}

func TestTopK_OrdersByScoreDescending(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{MovieID: 1, Vector: []float32{0, 1}},   // score 0
		{MovieID: 2, Vector: []float32{1, 0}},   // score 1
		{MovieID: 3, Vector: []float32{1, 1}},   // score ~0.707
		{MovieID: 4, Vector: []float32{-1, 0}},  // score -1
	}

	got := TopK(query, candidates, 4)
	wantIDs := []int64{2, 3, 1, 4}
	if len(got) != len(wantIDs) {
		t.Fatalf("got %d matches, want %d", len(got), len(wantIDs))
	}
	for i, want := range wantIDs {
		if got[i].MovieID != want {
			t.Errorf("got[%d].MovieID = %d, want %d", i, got[i].MovieID, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Errorf("scores not descending at index %d: %g > %g", i, got[i].Score, got[i-1].Score)
		}
	}
}

func TestTopK_TruncatesToK(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{MovieID: 1, Vector: []float32{1, 0}},
		{MovieID: 2, Vector: []float32{1, 1}},
		{MovieID: 3, Vector: []float32{0, 1}},
	}

	got := TopK(query, candidates, 2)
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].MovieID != 1 || got[1].MovieID != 2 {
		t.Errorf("got IDs (%d, %d), want (1, 2)", got[0].MovieID, got[1].MovieID)
	}
}

func TestTopK_FewerCandidatesThanK(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{MovieID: 7, Vector: []float32{1, 0}},
	}

	got := TopK(query, candidates, 5)
	if len(got) != 1 {
		t.Fatalf("got %d matches, want 1", len(got))
	}
}

func TestTopK_TieBreaksOnAscendingID(t *testing.T) {
	query := []float32{1, 0}
	// Identical vectors, shuffled IDs: ties must resolve to ascending ID.
	candidates := []Candidate{
		{MovieID: 9, Vector: []float32{1, 0}},
		{MovieID: 2, Vector: []float32{1, 0}},
		{MovieID: 5, Vector: []float32{1, 0}},
	}

	got := TopK(query, candidates, 3)
	wantIDs := []int64{2, 5, 9}
	for i, want := range wantIDs {
		if got[i].MovieID != want {
			t.Errorf("got[%d].MovieID = %d, want %d", i, got[i].MovieID, want)
		}
	}
}

func TestTopK_EmptyCandidates(t *testing.T) {
	if got := TopK([]float32{1, 0}, nil, 5); got != nil {
		t.Errorf("TopK with no candidates = %v, want nil", got)
	}
}

func TestTopK_NonPositiveK(t *testing.T) {
	candidates := []Candidate{{MovieID: 1, Vector: []float32{1, 0}}}
	if got := TopK([]float32{1, 0}, candidates, 0); got != nil {
		t.Errorf("TopK with k=0 = %v, want nil", got)
	}
	if got := TopK([]float32{1, 0}, candidates, -1); got != nil {
		t.Errorf("TopK with k=-1 = %v, want nil", got)
	}
}
