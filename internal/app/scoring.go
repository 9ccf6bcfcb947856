package app

// Score maps an answer outcome to points. Incorrect answers earn 0.
// Correct answers scale linearly from maxPoints at zero latency down to
// minPoints at or beyond the budget; a correct answer never earns less
// than minPoints. The result is truncated to an integer.
func Score(correct bool, latencyMs, minPoints, maxPoints, budgetMs int) int {
	if !correct {
		return 0
	}
	if budgetMs <= 0 || latencyMs >= budgetMs {
		return minPoints
	}
	if latencyMs < 0 {
		latencyMs = 0
	}
	factor := float64(budgetMs-latencyMs) / float64(budgetMs)
	return minPoints + int(float64(maxPoints-minPoints)*factor)
}
