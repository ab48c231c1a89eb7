package app

import "math"

// Accept is the monotonic save gate: a progress or score value is written only when it
// is strictly greater than the best value already known for the same key.
func Accept(newValue, knownBest int) bool {
	return newValue > knownBest
}

// ScrollPercentage converts a scroll sample into a 0-100 completion percentage.
// ok is false when the content has no scrollable extent.
func ScrollPercentage(scrolled, scrollable float64) (pct int, ok bool) {
	if scrollable <= 0 || math.IsNaN(scrolled) || math.IsNaN(scrollable) {
		return 0, false
	}
	return clampPercentage(int(math.Round(scrolled / scrollable * 100))), true
}

func clampPercentage(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
