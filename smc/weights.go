// Package smc implements the Del Moral (2012) adaptive SMC sampler:
// the importance-weight/ESS/epsilon-solver kernel (this file) and the
// outer driver loop (driver.go).
package smc

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ESS returns the effective sample size of a probability vector:
// 1 / sum(w_i^2). For a valid probability vector, ESS is in [1, N]
// (spec.md §4.3).
func ESS(w []float64) float64 {
	sumSq := 0.0
	for _, wi := range w {
		sumSq += wi * wi
	}
	return 1.0 / sumSq
}

// WeightError reports a non-finite weight normalizer, carrying the
// per-particle diagnostic dump described in spec.md §7.
type WeightError struct {
	Message string
}

func (e *WeightError) Error() string { return e.Message }

// CalcWeights computes the updated importance weights given the
// current and previous tolerance, the N x m distance matrix, and the
// previous weight vector (spec.md §4.3). The 0/0 convention yields a
// finite 0 contribution for that particle. When every contribution is
// zero, all returned weights are zero.
func CalcWeights(epsCur, epsPrev float64, D *mat.Dense, wPrev []float64) ([]float64, error) {
	n, m := D.Dims()
	raw := make([]float64, n)
	tot := 0.0

	for i := 0; i < n; i++ {
		num, den := 0.0, 0.0
		for j := 0; j < m; j++ {
			d := D.At(i, j)
			if d < epsCur {
				num++
			}
			if d < epsPrev {
				den++
			}
		}
		if den == 0 {
			raw[i] = 0
		} else {
			raw[i] = (num / den) * wPrev[i]
		}
		tot += raw[i]
	}

	if !isFinite(tot) {
		return nil, diagnoseWeights(epsCur, epsPrev, D, wPrev, raw, tot)
	}

	out := make([]float64, n)
	if tot == 0 {
		return out, nil
	}
	for i := range raw {
		out[i] = raw[i] / tot
	}
	return out, nil
}

func diagnoseWeights(epsCur, epsPrev float64, D *mat.Dense, wPrev, raw []float64, tot float64) error {
	n, m := D.Dims()
	msg := fmt.Sprintf("non-finite weight normalizer (tot=%v) at epsCur=%v epsPrev=%v\n", tot, epsCur, epsPrev)
	partial := 0.0
	for i := 0; i < n; i++ {
		num, den := 0.0, 0.0
		for j := 0; j < m; j++ {
			d := D.At(i, j)
			if d < epsCur {
				num++
			}
			if d < epsPrev {
				den++
			}
		}
		partial += raw[i]
		msg += fmt.Sprintf("  i=%d num=%v den=%v raw=%v partial_sum=%v\n", i, num, den, raw[i], partial)
	}
	return &WeightError{Message: msg}
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// goldenRatio is phi = (1 + sqrt(5)) / 2.
var goldenRatio = (1.0 + math.Sqrt(5)) / 2.0

// SolveEpsilon finds the epsilon in [lb, ub] minimizing
// (alpha*ESS(wPrev) - ESS(CalcWeights(eps, epsPrev, D, wPrev)))^2 by
// golden-section search (spec.md §4.3). Stops when b-a <= 0.5 or after
// 10000 iterations and returns (a+b)/2.
func SolveEpsilon(lb, ub, epsPrev, alpha float64, D *mat.Dense, wPrev []float64) float64 {
	target := alpha * ESS(wPrev)

	objective := func(eps float64) float64 {
		w, err := CalcWeights(eps, epsPrev, D, wPrev)
		if err != nil {
			// Propagated as +Inf so golden-section steers away from
			// the offending region rather than panicking mid-search;
			// a persistent non-finite weight surfaces again when the
			// driver calls CalcWeights directly with the final eps.
			return math.Inf(1)
		}
		diff := target - ESS(w)
		return diff * diff
	}

	a, b := lb, ub
	c := b - (b-a)/goldenRatio
	d := a + (b-a)/goldenRatio
	fc := objective(c)
	fd := objective(d)

	recomputeC, recomputeD := false, false

	for i := 0; i < 10000 && (b-a) > 0.5; i++ {
		if recomputeC {
			c = b - (b-a)/goldenRatio
			fc = objective(c)
			recomputeC = false
		}
		if recomputeD {
			d = a + (b-a)/goldenRatio
			fd = objective(d)
			recomputeD = false
		}

		if fc < fd {
			b = d
			d = c
			fd = fc
			recomputeC = true
		} else {
			a = c
			c = d
			fc = fd
			recomputeD = true
		}
	}

	return (a + b) / 2.0
}

// MinMax returns the minimum and maximum entries of D, used by
// the driver to bound the golden-section search (spec.md §4.6 step 2).
func MinMax(D *mat.Dense) (min, max float64) {
	n, m := D.Dims()
	data := make([]float64, 0, n*m)
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			data = append(data, D.At(i, j))
		}
	}
	return floats.Min(data), floats.Max(data)
}
