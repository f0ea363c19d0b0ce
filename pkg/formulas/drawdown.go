package formulas

// MaxDrawdown returns the largest peak-to-trough loss of a value series as a
// positive fraction (0.25 = 25% below the peak). The peak starts at start,
// so a first value below it already counts as a drawdown.
func MaxDrawdown(values []float64, start float64) float64 {
	maxDrawdown := 0.0
	peak := start

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}
	}

	return maxDrawdown
}
