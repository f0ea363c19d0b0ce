package formulas

import "math"

// SharpeRatio calculates the annualized Sharpe ratio of periodic returns.
//
//	Sharpe = (mean(r) - rf/periodsPerYear) / std(r) · sqrt(periodsPerYear)
//
// Returns 0 when there is too little data or no variation.
func SharpeRatio(returns []float64, riskFreeRate float64, periodsPerYear int) float64 {
	if len(returns) < 2 {
		return 0
	}

	stdDev := StdDev(returns)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}

	periodicRiskFree := riskFreeRate / float64(periodsPerYear)
	sharpe := (Mean(returns) - periodicRiskFree) / stdDev

	return sharpe * math.Sqrt(float64(periodsPerYear))
}
