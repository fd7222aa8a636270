// Package prior evaluates the prior density of a candidate parameter
// vector. Evaluation is deterministic and cheap: no randomness, no
// autodiff tape, just the product of independent component densities
// (spec.md §4.2).
package prior

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/dtolpin/abcsmcseir/config"
)

// Evaluator computes the (linear, not log) prior density of a
// parameter vector laid out as [beta, beta_rs, rho, gamma_EI, gamma_IR]
// per spec.md §3's fixed column ordering.
type Evaluator struct {
	bundle *config.Bundle
}

// New constructs an Evaluator bound to the given config bundle's
// transition priors.
func New(bundle *config.Bundle) *Evaluator {
	return &Evaluator{bundle: bundle}
}

// Eval returns the product of independent component priors: Gaussian
// on beta and beta_rs, the user-specified rho prior, and gamma priors
// on gamma_EI, gamma_IR. Returns 0 whenever any component falls
// outside its admissible domain (gamma_EI <= 0 or gamma_IR <= 0).
func (e *Evaluator) Eval(theta []float64) float64 {
	tp := e.bundle.Transition
	_, nBeta := e.bundle.Exposure.X.Dims()

	i := 0
	density := 1.0

	for j := 0; j < nBeta; j++ {
		density *= gaussianDensity(tp.Beta.Mean[j], tp.Beta.Precision[j], theta[i])
		i++
	}

	if e.bundle.Reinfection.Enabled() {
		_, nRS := e.bundle.Reinfection.XRS.Dims()
		for j := 0; j < nRS; j++ {
			density *= gaussianDensity(tp.BetaRS.Mean[j], tp.BetaRS.Precision[j], theta[i])
			i++
		}
	}

	if e.bundle.Distance.Enabled() {
		for j := range e.bundle.Distance.D {
			density *= gaussianDensity(tp.Rho[j].Mean, tp.Rho[j].Precision, theta[i])
			i++
		}
	}

	gammaEI := theta[i]
	i++
	gammaIR := theta[i]

	if gammaEI <= 0 || gammaIR <= 0 {
		return 0
	}
	density *= gammaDensity(tp.GammaEI.Shape, tp.GammaEI.Rate, gammaEI)
	density *= gammaDensity(tp.GammaIR.Shape, tp.GammaIR.Rate, gammaIR)

	return density
}

// gaussianDensity evaluates N(mean, 1/precision) at x. precision <= 0
// is treated as an improper (uniform) prior contributing a constant
// factor of 1.
func gaussianDensity(mean, precision, x float64) float64 {
	if precision <= 0 {
		return 1
	}
	sigma := 1 / math.Sqrt(precision)
	return distuv.Normal{Mu: mean, Sigma: sigma}.Prob(x)
}

// gammaDensity evaluates Gamma(shape, rate) at x, returning 0 outside
// the admissible domain x > 0.
func gammaDensity(shape, rate, x float64) float64 {
	if x <= 0 {
		return 0
	}
	return distuv.Gamma{Alpha: shape, Beta: rate}.Prob(x)
}
