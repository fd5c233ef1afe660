package stats

import "math"

// Achievement returns actual as a percentage of plan rounded half up. A zero
// plan yields 0.
func Achievement(plan, actual float64) int {
	if plan == 0 {
		return 0
	}
	pct := math.Floor(actual/plan*100 + 0.5)
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return 0
	}
	return int(pct)
}
