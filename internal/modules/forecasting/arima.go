// Package forecasting produces one-step-ahead return forecasts per asset.
package forecasting

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrTooFewObservations is returned when a series is too short for the requested order.
	ErrTooFewObservations = errors.New("too few observations")
	// ErrDegenerateSeries is returned for series with no variation after differencing.
	ErrDegenerateSeries = errors.New("degenerate series")
	// ErrNotConverged is returned when the likelihood optimisation does not converge.
	ErrNotConverged = errors.New("model fit did not converge")
)

const (
	// infeasiblePenalty is returned by the objective outside the stationary/invertible region.
	infeasiblePenalty  = 1e12
	maxFuncEvaluations = 20000
)

// Order is a non-seasonal ARIMA order.
type Order struct {
	P, D, Q int
}

func (o Order) String() string {
	return fmt.Sprintf("ARIMA(%d,%d,%d)", o.P, o.D, o.Q)
}

// MinObservations is the shortest series FitARIMA accepts for this order.
func (o Order) MinObservations() int {
	return o.P + o.Q + o.D + 3
}

// ARIMA is a fitted ARIMA(p,d,q) model estimated by conditional sum of squares.
type ARIMA struct {
	Order    Order
	Constant bool
	Mean     float64 // intercept of the differenced series (zero without Constant)
	AR       []float64
	MA       []float64
	Sigma2   float64
	LogLik   float64
	AIC      float64
	NObs     int

	diffs     [][]float64 // diffs[k] is the k-th difference of the input
	residuals []float64
}

// Prediction is a one-step-ahead point forecast with a symmetric normal interval.
type Prediction struct {
	Mean   float64
	StdErr float64
	Lower  float64
	Upper  float64
}

// FitARIMA estimates an ARIMA model on series (no missing values).
func FitARIMA(series []float64, order Order, withConstant bool) (*ARIMA, error) {
	if order.P < 0 || order.D < 0 || order.Q < 0 {
		return nil, fmt.Errorf("invalid order %s", order)
	}
	if len(series) < order.MinObservations() {
		return nil, fmt.Errorf("%w: %s needs %d, got %d", ErrTooFewObservations, order, order.MinObservations(), len(series))
	}

	diffs := make([][]float64, order.D+1)
	diffs[0] = series
	for k := 1; k <= order.D; k++ {
		diffs[k] = difference(diffs[k-1])
	}
	y := diffs[order.D]
	if isConstant(y) {
		return nil, fmt.Errorf("%w: no variation after %d differences", ErrDegenerateSeries, order.D)
	}

	m := &ARIMA{
		Order:    order,
		Constant: withConstant,
		AR:       make([]float64, order.P),
		MA:       make([]float64, order.Q),
		diffs:    diffs,
	}

	nParams := order.P + order.Q
	if withConstant {
		nParams++
	}

	if nParams > 0 {
		initial := make([]float64, nParams)
		if withConstant {
			initial[0] = stat.Mean(y, nil)
		}
		nEff := float64(len(y) - order.P)

		problem := optimize.Problem{
			Func: func(x []float64) float64 {
				m.setParams(x)
				if !m.admissible() {
					return infeasiblePenalty
				}
				return m.css(y, nil) / nEff
			},
		}

		settings := &optimize.Settings{
			FuncEvaluations: maxFuncEvaluations,
			Converger: &optimize.FunctionConverge{
				Absolute:   1e-12,
				Relative:   1e-10,
				Iterations: 100,
			},
		}

		result, err := optimize.Minimize(problem, initial, settings, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotConverged, err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("%w: status=%v", ErrNotConverged, result.Status)
		}
		m.setParams(result.X)
		if !m.admissible() {
			return nil, fmt.Errorf("%w: solution outside stationary region", ErrNotConverged)
		}
	}

	m.residuals = make([]float64, len(y))
	css := m.css(y, m.residuals)
	nEff := len(y) - order.P
	m.NObs = nEff
	m.Sigma2 = css / float64(nEff)
	if !(m.Sigma2 > 0) || math.IsInf(m.Sigma2, 0) {
		return nil, fmt.Errorf("%w: residual variance %v", ErrDegenerateSeries, m.Sigma2)
	}

	m.LogLik = -0.5 * float64(nEff) * (math.Log(2*math.Pi*m.Sigma2) + 1)
	m.AIC = -2*m.LogLik + 2*float64(nParams+1)

	return m, nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success,
		optimize.FunctionConvergence,
		optimize.GradientThreshold,
		optimize.StepConvergence,
		optimize.MethodConverge:
		return true
	}
	return false
}

func (m *ARIMA) setParams(x []float64) {
	i := 0
	if m.Constant {
		m.Mean = x[0]
		i = 1
	}
	copy(m.AR, x[i:i+m.Order.P])
	copy(m.MA, x[i+m.Order.P:])
}

// admissible reports whether the AR part is stationary and the MA part invertible.
func (m *ARIMA) admissible() bool {
	if !rootsInsideUnitCircle(m.AR) {
		return false
	}
	negMA := make([]float64, len(m.MA))
	for i, th := range m.MA {
		negMA[i] = -th
	}
	return rootsInsideUnitCircle(negMA)
}

// css returns the conditional sum of squared innovations of y. Innovations
// before the first full AR lag are taken as zero. When out is non-nil the
// innovations are written into it.
func (m *ARIMA) css(y []float64, out []float64) float64 {
	p, q := m.Order.P, m.Order.Q
	e := out
	if e == nil {
		e = make([]float64, len(y))
	}
	var sum float64
	for t := 0; t < len(y); t++ {
		if t < p {
			e[t] = 0
			continue
		}
		v := y[t] - m.Mean
		for i := 1; i <= p; i++ {
			v -= m.AR[i-1] * (y[t-i] - m.Mean)
		}
		for j := 1; j <= q && t-j >= 0; j++ {
			v -= m.MA[j-1] * e[t-j]
		}
		e[t] = v
		sum += v * v
	}
	return sum
}

// Forecast predicts the next level of the series with a (1-alpha) interval.
func (m *ARIMA) Forecast(alpha float64) Prediction {
	y := m.diffs[m.Order.D]
	n := len(y)

	yhat := m.Mean
	for i := 1; i <= m.Order.P; i++ {
		yhat += m.AR[i-1] * (y[n-i] - m.Mean)
	}
	for j := 1; j <= m.Order.Q && n-j >= 0; j++ {
		yhat += m.MA[j-1] * m.residuals[n-j]
	}

	level := integrate(m.diffs, yhat)

	// One step ahead the forecast error is the next innovation for any d.
	stdErr := math.Sqrt(m.Sigma2)
	z := distuv.UnitNormal.Quantile(1 - alpha/2)

	return Prediction{
		Mean:   level,
		StdErr: stdErr,
		Lower:  level - z*stdErr,
		Upper:  level + z*stdErr,
	}
}

// integrate undoes differencing for a one-step forecast of the highest difference.
func integrate(diffs [][]float64, next float64) float64 {
	level := next
	for k := len(diffs) - 2; k >= 0; k-- {
		level += diffs[k][len(diffs[k])-1]
	}
	return level
}

func difference(x []float64) []float64 {
	if len(x) < 2 {
		return nil
	}
	out := make([]float64, len(x)-1)
	floats.SubTo(out, x[1:], x[:len(x)-1])
	return out
}

func isConstant(x []float64) bool {
	if len(x) == 0 {
		return true
	}
	return floats.Max(x)-floats.Min(x) <= 1e-14*math.Max(1, math.Abs(x[0]))
}

// rootsInsideUnitCircle reports whether z^k - c1 z^(k-1) - ... - ck has all
// roots strictly inside the unit circle, using the companion matrix eigenvalues.
func rootsInsideUnitCircle(coefs []float64) bool {
	k := len(coefs)
	switch k {
	case 0:
		return true
	case 1:
		return math.Abs(coefs[0]) < 1
	}

	companion := mat.NewDense(k, k, nil)
	for j, c := range coefs {
		companion.Set(0, j, c)
	}
	for i := 1; i < k; i++ {
		companion.Set(i, i-1, 1)
	}

	var eig mat.Eigen
	if ok := eig.Factorize(companion, mat.EigenNone); !ok {
		return false
	}
	for _, v := range eig.Values(nil) {
		if math.Hypot(real(v), imag(v)) >= 1 {
			return false
		}
	}
	return true
}
