package composer

import "math"

// recencyScore implements the episode loader's decay formula (spec §4.2):
// recency_score = exp(-Δdays / τ). ageDays and tau are both expected
// non-negative; a non-positive tau falls back to 1 to avoid division by
// zero without special-casing callers.
func recencyScore(ageDays, tau float64) float64 {
	if tau <= 0 {
		tau = 1
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Exp(-ageDays / tau)
}
