package backtest

import (
	"github.com/aristath/esgfolio/pkg/formulas"
)

// holdingThreshold is the smallest weight counted as a position.
const holdingThreshold = 1e-6

// Summarize computes performance statistics for a finished run.
func Summarize(r *Result) Summary {
	returns := r.Returns()
	cumulative := r.Cumulative()
	if len(returns) == 0 {
		return Summary{}
	}

	var holdings int
	for _, p := range r.Periods {
		for _, w := range p.Weights {
			if w > holdingThreshold {
				holdings++
			}
		}
	}

	return Summary{
		TotalReturn:      cumulative[len(cumulative)-1] - 1,
		AnnualReturn:     formulas.AnnualizedReturn(returns, PeriodsPerYear),
		AnnualVolatility: formulas.AnnualizedVolatility(returns, PeriodsPerYear),
		Sharpe:           formulas.SharpeRatio(returns, 0, PeriodsPerYear),
		MaxDrawdown:      formulas.MaxDrawdown(cumulative, 1),
		AvgHoldings:      float64(holdings) / float64(len(r.Periods)),
	}
}
