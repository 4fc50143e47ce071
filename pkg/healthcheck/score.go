package healthcheck

import (
	"math"

	"github.com/ayaseen/rhacs-runner/pkg/types"
)

// resultScore weighs a result by how much change it asks for
func resultScore(result Result) float64 {
	switch result.ResultKey {
	case types.ResultKeyNoChange:
		return 1.00
	case types.ResultKeyNotApplicable:
		return 0.90
	case types.ResultKeyAdvisory:
		return 0.80
	case types.ResultKeyRecommended:
		return 0.70
	case types.ResultKeyRequired:
		return 0.00
	}

	switch result.Status {
	case types.StatusOK:
		return 1.00
	case types.StatusNotApplicable:
		return 0.90
	case types.StatusUnknown:
		return 0.80
	case types.StatusWarning:
		return 0.70
	default:
		return 0.00
	}
}

func percent(sum float64, n int) int {
	if n == 0 {
		return 0
	}
	return int(math.Round(sum / float64(n) * 100))
}

// CategoryScores returns a 0-100 score for every category that ran
func (r *Runner) CategoryScores() map[types.Category]int {
	scores := make(map[types.Category]int)
	for category, results := range r.GetResultsByCategory() {
		sum := 0.0
		for _, result := range results {
			sum += resultScore(result)
		}
		scores[category] = percent(sum, len(results))
	}
	return scores
}

// OverallScore returns the 0-100 score over all results
func (r *Runner) OverallScore() int {
	sum, n := 0.0, 0
	for _, check := range r.ran {
		if result, ok := r.results[check.ID()]; ok {
			sum += resultScore(result)
			n++
		}
	}
	return percent(sum, n)
}
