package optimization

import (
	"fmt"
	"math"

	"github.com/aristath/folio/internal/modules/statistics"
)

// CheckSolution verifies an accepted solution against the model's
// feasibility conditions within tol:
//
//   - weights sum to 1
//   - every nonzero weight meets the minimum stake
//   - the position count respects the cardinality cap
//   - one-way turnover respects the cap
//   - portfolio variance respects the risk cap
//
// It returns the first violated condition.
func CheckSolution(
	sol *Solution,
	est *statistics.Estimates,
	params Parameters,
	oldWeights map[string]float64,
	tol float64,
) error {
	sum := 0.0
	for ticker, w := range sol.Weights {
		if w < params.MinWeight-tol {
			return fmt.Errorf("position %s weight %g below minimum stake %g", ticker, w, params.MinWeight)
		}
		sum += w
	}
	if math.Abs(sum-1) > tol {
		return fmt.Errorf("weights sum to %g, expected 1", sum)
	}

	if sol.StockCount > params.MaxStocks {
		return fmt.Errorf("solution holds %d positions, cap is %d", sol.StockCount, params.MaxStocks)
	}

	turnover := 0.0
	seen := make(map[string]bool, len(sol.Weights))
	for ticker, w := range sol.Weights {
		turnover += math.Abs(w-oldWeights[ticker]) / 2
		seen[ticker] = true
	}
	for ticker, w := range oldWeights {
		if !seen[ticker] {
			// Position liquidated entirely
			turnover += math.Abs(w) / 2
		}
	}
	if turnover > params.MaxChange+tol {
		return fmt.Errorf("turnover %g exceeds cap %g", turnover, params.MaxChange)
	}

	variance := 0.0
	for a, wa := range sol.Weights {
		for b, wb := range sol.Weights {
			c, ok := est.Covariance(a, b)
			if !ok {
				return fmt.Errorf("no covariance estimate for pair (%s, %s)", a, b)
			}
			variance += c * wa * wb
		}
	}
	if limit := params.SigmaTarget * params.SigmaTarget; variance > limit+tol {
		return fmt.Errorf("portfolio variance %g exceeds risk cap %g", variance, limit)
	}

	return nil
}
