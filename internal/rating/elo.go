// Package rating implements the ELO math used by arena comparative sessions.
// All functions are pure; persistence and vote validation live in the arena
// package.
package rating

import "math"

// Result is the outcome of a match from side A's perspective.
type Result float64

const (
	Win  Result = 1.0
	Tie  Result = 0.5
	Loss Result = 0.0
)

// InitialRating is the rating assigned to a schema on its first vote.
const InitialRating = 1500.0

// ExpectedScore returns the expected score for a player rated ratingA against
// one rated ratingB. ExpectedScore(a,b) + ExpectedScore(b,a) always sums to 1.
func ExpectedScore(ratingA, ratingB float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (ratingB-ratingA)/400.0))
}

// Update applies one match result and returns both new ratings. The sum of the
// two ratings is invariant under the update.
func Update(ratingA, ratingB float64, result Result, k float64) (newA, newB float64) {
	expectedA := ExpectedScore(ratingA, ratingB)
	delta := k * (float64(result) - expectedA)
	return ratingA + delta, ratingB - delta
}

// KFactor returns the update step size for a player with the given number of
// games played. Newer participants move faster toward their true rating.
func KFactor(gamesPlayed int) float64 {
	switch {
	case gamesPlayed < 10:
		return 40
	case gamesPlayed < 30:
		return 32
	default:
		return 24
	}
}
