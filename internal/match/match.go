// Package match compares face signatures by euclidean distance.
package match

import "math"

// DefaultTolerance is the largest distance still accepted as the same face.
const DefaultTolerance = 0.6

// Result describes the best gallery entry for a candidate.
type Result struct {
	IsMatch    bool
	BestIndex  int
	Confidence float64
	// Distance to the best entry; +Inf when the gallery is empty.
	Distance float64
}

// Compare finds the gallery entry closest to candidate. Ties resolve to the
// lowest index. Confidence is 1 - distance for a match and 0 otherwise; it is
// a ranking aid, not a probability.
func Compare(gallery [][]float32, candidate []float32, tolerance float64) Result {
	if len(gallery) == 0 {
		return Result{BestIndex: -1, Distance: math.Inf(1)}
	}

	best := -1
	bestDist := math.Inf(1)
	for i, known := range gallery {
		d := Distance(known, candidate)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		// every entry had a different dimension
		return Result{BestIndex: -1, Distance: bestDist}
	}

	if bestDist > tolerance {
		return Result{BestIndex: best, Distance: bestDist}
	}
	return Result{
		IsMatch:    true,
		BestIndex:  best,
		Confidence: clamp01(1 - bestDist),
		Distance:   bestDist,
	}
}

// Distance returns the euclidean distance between a and b, or +Inf when the
// vectors have different lengths.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
