package forecasting

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// kpssCritical5 is the 5% critical value of the KPSS level-stationarity test.
const kpssCritical5 = 0.463

// kpssLevel returns the KPSS statistic for level stationarity of x, with a
// Bartlett-weighted long-run variance using trunc(4*(n/100)^0.25) lags.
func kpssLevel(x []float64) float64 {
	n := len(x)
	mean := stat.Mean(x, nil)

	resid := make([]float64, n)
	for i, v := range x {
		resid[i] = v - mean
	}

	var partial, eta float64
	for _, e := range resid {
		partial += e
		eta += partial * partial
	}
	eta /= float64(n) * float64(n)

	lags := int(math.Trunc(4 * math.Pow(float64(n)/100, 0.25)))
	if lags > n-1 {
		lags = n - 1
	}

	var s2 float64
	for _, e := range resid {
		s2 += e * e
	}
	for l := 1; l <= lags; l++ {
		var acc float64
		for t := l; t < n; t++ {
			acc += resid[t] * resid[t-l]
		}
		s2 += 2 * (1 - float64(l)/float64(lags+1)) * acc
	}
	s2 /= float64(n)

	if s2 <= 0 {
		return 0
	}
	return eta / s2
}

// ndiffs estimates the differencing order needed for stationarity by
// differencing until the KPSS test no longer rejects, up to maxD.
func ndiffs(x []float64, maxD int) int {
	d := 0
	for d < maxD {
		if len(x) < 3 || isConstant(x) {
			break
		}
		if kpssLevel(x) <= kpssCritical5 {
			break
		}
		x = difference(x)
		d++
	}
	return d
}
