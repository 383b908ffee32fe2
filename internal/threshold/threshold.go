// Package threshold implements the threshold adaptor: given the
// effective distances of confirmed positives and negatives, recompute
// the maximum admissible distance after every feedback round.
package threshold

import (
	"sort"

	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is used whenever there are not yet both a confirmed
// positive and a confirmed negative to triangulate from. 0.35 is a
// reasonable cutoff for unit-normalized cosine distance.
const DefaultThreshold = 0.35

// Adapt recomputes tau from the effective distances of confirmed positives
// (posDists) and confirmed negatives (negDists).
//
//   - If either set is empty, tau is DefaultThreshold.
//   - If every positive distance is strictly less than every negative
//     distance, tau is the midpoint of max(posDists) and min(negDists).
//   - Otherwise the sets overlap: tau is chosen by scanning the sorted union
//     of posDists and negDists and picking the value that maximizes
//     |{p <= tau}| - |{n <= tau}|, breaking ties toward the smaller tau
//     (precision over recall).
func Adapt(posDists, negDists []float64) float64 {
	if len(posDists) == 0 || len(negDists) == 0 {
		return DefaultThreshold
	}

	maxPos := floats.Max(posDists)
	minNeg := floats.Min(negDists)
	if maxPos < minNeg {
		return (maxPos + minNeg) / 2
	}

	candidates := make([]float64, 0, len(posDists)+len(negDists))
	candidates = append(candidates, posDists...)
	candidates = append(candidates, negDists...)
	sort.Float64s(candidates)

	bestTau := candidates[0]
	bestScore := -1 << 31
	for _, tau := range candidates {
		score := countLE(posDists, tau) - countLE(negDists, tau)
		if score > bestScore {
			bestScore = score
			bestTau = tau
		}
		// tie: keep the smaller tau already recorded (candidates is sorted
		// ascending, so the first tau to reach a given score wins).
	}
	return bestTau
}

func countLE(dists []float64, tau float64) int {
	n := 0
	for _, d := range dists {
		if d <= tau {
			n++
		}
	}
	return n
}
