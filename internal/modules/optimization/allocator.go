package optimization

import (
	"fmt"
	"math"
	"sort"
	"sync/atomic"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Status is the outcome of one allocation solve.
type Status string

const (
	StatusOptimal        Status = "optimal"
	StatusInfeasible     Status = "infeasible"
	StatusNonConvex      Status = "non_convex"
	StatusNumericalError Status = "numerical_error"
	StatusMaxIterations  Status = "max_iterations"
)

const (
	defaultMaxIterations = 20000
	defaultTolerance     = 1e-9
	// psdTolerance is the relative eigenvalue slack allowed before Σ is treated as indefinite.
	psdTolerance        = 1e-10
	bisectionIterations = 200
)

// Params are the allocation preferences.
type Params struct {
	Alpha     float64 // risk aversion, >= 0
	Beta      float64 // ESG preference
	WeightMax float64 // per-asset cap in (0,1]
}

// Allocation is the result of one solve. Weights is always a valid
// fully-invested long-only vector: the equal-weight vector whenever Status is
// not optimal.
type Allocation struct {
	Weights    []float64 `json:"weights"`
	Status     Status    `json:"status"`
	Objective  float64   `json:"objective"`
	Iterations int       `json:"iterations"`
	Reason     string    `json:"reason,omitempty"`
}

// Fallback reports whether the equal-weight vector was substituted.
func (a Allocation) Fallback() bool {
	return a.Status != StatusOptimal
}

// EqualWeights returns the 1/n vector.
func EqualWeights(n int) []float64 {
	w := make([]float64, n)
	if n == 0 {
		return w
	}
	floats.AddConst(1/float64(n), w)
	return w
}

// Allocator solves
//
//	maximize  wᵀr − α·wᵀΣw + β·wᵀesg
//	s.t.      0 ≤ w ≤ cap, Σw = 1
//
// With α = 0 the problem is linear and solved exactly by filling the best
// scores up to the cap. With α > 0 it is solved by accelerated projected
// gradient over the capped simplex. It is safe for concurrent use.
type Allocator struct {
	maxIterations int
	tolerance     float64
	fallbacks     atomic.Int64
	log           zerolog.Logger
}

// NewAllocator creates an allocator with default solver settings.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{
		maxIterations: defaultMaxIterations,
		tolerance:     defaultTolerance,
		log:           log.With().Str("component", "allocator").Logger(),
	}
}

// Fallbacks returns the number of equal-weight substitutions so far.
func (a *Allocator) Fallbacks() int64 {
	return a.fallbacks.Load()
}

// Allocate never fails; non-optimal outcomes return the equal-weight vector.
func (a *Allocator) Allocate(rHat []float64, sigma mat.Symmetric, esg []float64, p Params) Allocation {
	n := len(rHat)

	if sigma == nil || sigma.SymmetricDim() != n || len(esg) != n {
		return a.fallback(n, StatusNumericalError, "dimension mismatch")
	}
	if n == 0 {
		return a.fallback(0, StatusInfeasible, "no assets")
	}
	if !(p.WeightMax > 0) || p.WeightMax*float64(n) < 1-1e-12 {
		return a.fallback(n, StatusInfeasible, fmt.Sprintf("weight cap %v cannot reach full investment with %d assets", p.WeightMax, n))
	}
	if isMissing(p.Alpha) || isMissing(p.Beta) {
		return a.fallback(n, StatusNumericalError, "non-finite preference parameter")
	}
	if p.Alpha < 0 {
		return a.fallback(n, StatusNonConvex, "negative risk aversion")
	}

	c := make([]float64, n)
	for i := range c {
		c[i] = rHat[i] + p.Beta*esg[i]
		if isMissing(c[i]) {
			return a.fallback(n, StatusNumericalError, fmt.Sprintf("non-finite score for asset %d", i))
		}
		for j := 0; j <= i; j++ {
			if isMissing(sigma.At(i, j)) {
				return a.fallback(n, StatusNumericalError, "non-finite covariance")
			}
		}
	}
	upper := math.Min(p.WeightMax, 1)

	var (
		w     []float64
		iters int
	)
	if p.Alpha == 0 {
		w = greedyFill(c, upper)
	} else {
		var eig mat.EigenSym
		if ok := eig.Factorize(sigma, false); !ok {
			return a.fallback(n, StatusNumericalError, "eigendecomposition failed")
		}
		values := eig.Values(nil)
		minEig, maxEig := floats.Min(values), floats.Max(values)
		if minEig < -psdTolerance*math.Max(1, math.Abs(maxEig)) {
			return a.fallback(n, StatusNonConvex, fmt.Sprintf("covariance not positive semidefinite (min eigenvalue %g)", minEig))
		}

		lipschitz := 2 * p.Alpha * maxEig
		if !(lipschitz > 0) {
			w = greedyFill(c, upper)
		} else {
			var converged bool
			w, iters, converged = a.projectedGradient(c, sigma, p.Alpha, upper, lipschitz)
			if !converged {
				return a.fallback(n, StatusMaxIterations, fmt.Sprintf("no convergence after %d iterations", iters))
			}
		}
	}

	obj := objective(w, c, sigma, p.Alpha)
	if isMissing(obj) {
		return a.fallback(n, StatusNumericalError, "non-finite objective")
	}

	return Allocation{
		Weights:    w,
		Status:     StatusOptimal,
		Objective:  obj,
		Iterations: iters,
	}
}

func (a *Allocator) fallback(n int, status Status, reason string) Allocation {
	a.fallbacks.Add(1)
	a.log.Warn().
		Str("status", string(status)).
		Str("reason", reason).
		Int("assets", n).
		Msg("Allocation not optimal, using equal weights")

	return Allocation{
		Weights: EqualWeights(n),
		Status:  status,
		Reason:  reason,
	}
}

// projectedGradient minimises α·wᵀΣw − cᵀw over the capped simplex with
// FISTA and gradient-based restarts. It stops when the projected gradient
// step moves no weight by more than the tolerance.
func (a *Allocator) projectedGradient(c []float64, sigma mat.Symmetric, alpha, upper, lipschitz float64) ([]float64, int, bool) {
	n := len(c)
	step := 1 / lipschitz

	w := projectCappedSimplex(EqualWeights(n), upper)
	prev := make([]float64, n)
	copy(prev, w)
	y := make([]float64, n)
	copy(y, w)
	next := make([]float64, n)
	grad := make([]float64, n)
	momentum := 1.0

	gradient := func(x []float64) {
		g := mat.NewVecDense(n, grad)
		g.MulVec(sigma, mat.NewVecDense(n, x))
		floats.Scale(2*alpha, grad)
		floats.Sub(grad, c)
	}

	for iter := 1; iter <= a.maxIterations; iter++ {
		gradient(y)
		for i := range next {
			next[i] = y[i] - step*grad[i]
		}
		next = projectCappedSimplex(next, upper)

		// Restart the momentum when it points uphill.
		var uphill float64
		for i := range next {
			uphill += grad[i] * (next[i] - w[i])
		}

		delta := floats.Distance(next, w, math.Inf(1))
		copy(prev, w)
		copy(w, next)

		if delta <= a.tolerance {
			return w, iter, true
		}

		if uphill > 0 {
			momentum = 1
			copy(y, w)
			continue
		}
		nextMomentum := (1 + math.Sqrt(1+4*momentum*momentum)) / 2
		beta := (momentum - 1) / nextMomentum
		for i := range y {
			y[i] = w[i] + beta*(w[i]-prev[i])
		}
		momentum = nextMomentum
	}
	return w, a.maxIterations, false
}

// projectCappedSimplex returns the Euclidean projection of v onto
// {w : 0 ≤ w ≤ upper, Σw = 1}, i.e. w = clip(v − τ, 0, upper) with τ found by
// bisection. Requires upper·len(v) ≥ 1.
func projectCappedSimplex(v []float64, upper float64) []float64 {
	n := len(v)
	out := make([]float64, n)

	mass := func(tau float64) float64 {
		var s float64
		for _, x := range v {
			s += math.Min(math.Max(x-tau, 0), upper)
		}
		return s
	}

	lo := floats.Min(v) - upper // mass(lo) = n·upper ≥ 1
	hi := floats.Max(v)         // mass(hi) = 0
	for i := 0; i < bisectionIterations && hi-lo > 0; i++ {
		mid := lo + (hi-lo)/2
		if mid == lo || mid == hi {
			break
		}
		if mass(mid) > 1 {
			lo = mid
		} else {
			hi = mid
		}
	}
	tau := lo + (hi-lo)/2

	for i, x := range v {
		out[i] = math.Min(math.Max(x-tau, 0), upper)
	}
	return out
}

// greedyFill solves the linear problem exactly: assets are filled to the cap
// in descending score order, ties broken by lower index.
func greedyFill(c []float64, upper float64) []float64 {
	n := len(c)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return c[order[a]] > c[order[b]]
	})

	w := make([]float64, n)
	remaining := 1.0
	for _, i := range order {
		if remaining <= 0 {
			break
		}
		w[i] = math.Min(upper, remaining)
		remaining -= w[i]
	}
	return w
}

// objective evaluates wᵀc − α·wᵀΣw.
func objective(w, c []float64, sigma mat.Symmetric, alpha float64) float64 {
	wv := mat.NewVecDense(len(w), w)
	return floats.Dot(w, c) - alpha*mat.Inner(wv, sigma, wv)
}
