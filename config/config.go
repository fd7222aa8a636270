// Package config defines the immutable inputs to an ABC-SMC sampling
// run: observed incidence, design matrices, spatial coupling, priors,
// initial compartment counts, and sampling control. A Bundle is built
// once by NewBundle and shared read-only by the driver and every
// simulator node for the lifetime of a sampling call.
package config

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DataModel carries the observed incidence Y (T time points, L
// locations) and the per-step durations used to discretize the
// continuous-time transition rates.
type DataModel struct {
	Y      *mat.Dense // T x L, nonnegative integers stored as float64
	Offset []float64  // length T, positive
}

func (m *DataModel) Kind() string { return "DataModel" }

func (m *DataModel) dims() (T, L int) {
	T, L = m.Y.Dims()
	return
}

// ExposureModel carries the regression design matrix for the
// infection-pressure linear predictor.
type ExposureModel struct {
	X    *mat.Dense // (T*L) x p_beta
	T, L int
}

func (m *ExposureModel) Kind() string { return "ExposureModel" }

// ReinfectionModel carries the optional R->S design matrix. A nil
// XRS disables reinfection.
type ReinfectionModel struct {
	XRS *mat.Dense // T x p_rs, nil if reinfection is disabled
}

func (m *ReinfectionModel) Kind() string { return "ReinfectionModel" }

func (m *ReinfectionModel) Enabled() bool {
	return m.XRS != nil
}

// DistanceModel carries the spatial coupling matrices {Dk}, each L x L.
// An empty slice disables spatial coupling.
type DistanceModel struct {
	D []*mat.Dense
	L int
}

func (m *DistanceModel) Kind() string { return "DistanceModel" }

func (m *DistanceModel) Enabled() bool {
	return len(m.D) > 0
}

// GaussianPrior is a per-coefficient Gaussian prior, parameterized by
// mean and precision (inverse variance).
type GaussianPrior struct {
	Mean      []float64
	Precision []float64
}

// GammaPrior is a shape/rate gamma prior used for the E->I and I->R
// transition rates.
type GammaPrior struct {
	Shape float64
	Rate  float64
}

// RhoPrior is the Gaussian prior (mean and precision) over a single
// spatial coupling coefficient. The driver draws each particle's
// initial value from Normal(Mean, 1/sqrt(Precision)) and lets the MCMC
// rejuvenation step explore the rest, exactly as it does for the
// regression coefficients.
type RhoPrior struct {
	Mean      float64
	Precision float64
}

// TransitionPriors bundles the priors for beta, beta_rs, rho, and the
// two transition rates.
type TransitionPriors struct {
	Beta   GaussianPrior
	BetaRS GaussianPrior // ignored unless reinfection is enabled
	Rho    []RhoPrior    // one per spatial distance matrix
	GammaEI GammaPrior
	GammaIR GammaPrior
}

func (m *TransitionPriors) Kind() string { return "TransitionPriors" }

// InitialValueContainer carries the initial compartment counts, one
// entry per location.
type InitialValueContainer struct {
	S0, E0, I0, R0 []float64
}

func (m *InitialValueContainer) Kind() string { return "InitialValueContainer" }

func (m *InitialValueContainer) N() []float64 {
	n := make([]float64, len(m.S0))
	for i := range n {
		n[i] = m.S0[i] + m.E0[i] + m.I0[i] + m.R0[i]
	}
	return n
}

// DistanceFunc computes the nonnegative distance between a simulated
// incidence matrix and the observed incidence. The exact form
// (normalized L1, L2, ...) is injected by the caller, per spec.
type DistanceFunc func(simulated, observed *mat.Dense) float64

// MeanAbsoluteDistance is the default DistanceFunc: per-cell absolute
// difference, normalized by T*L (spec.md §4.4 step 5, "sum of
// per-cell L1 ... normalized by T*L").
func MeanAbsoluteDistance(simulated, observed *mat.Dense) float64 {
	T, L := observed.Dims()
	sum := 0.0
	for t := 0; t < T; t++ {
		for l := 0; l < L; l++ {
			d := simulated.At(t, l) - observed.At(t, l)
			if d < 0 {
				d = -d
			}
			sum += d
		}
	}
	return sum / float64(T*L)
}

// MeanSquaredDistance is an alternative DistanceFunc: per-cell squared
// difference, normalized by T*L.
func MeanSquaredDistance(simulated, observed *mat.Dense) float64 {
	T, L := observed.Dims()
	sum := 0.0
	for t := 0; t < T; t++ {
		for l := 0; l < L; l++ {
			d := simulated.At(t, l) - observed.At(t, l)
			sum += d * d
		}
	}
	return sum / float64(T*L)
}

// SamplingControl carries the knobs governing an SMC sampling run.
type SamplingControl struct {
	NParticles  int
	BatchSize   int // must equal NParticles in this core (spec.md §4.6)
	Replicates  int // m, replicate simulations per particle
	Epochs      int
	MaxBatches  int
	Shrinkage   float64 // alpha in (0,1)
	Cores       int
	Seed        int64
	Distance    DistanceFunc
}

func (m *SamplingControl) Kind() string { return "SamplingControl" }

// Bundle is the fully validated, immutable set of inputs to a
// sampling run.
type Bundle struct {
	Data        *DataModel
	Exposure    *ExposureModel
	Reinfection *ReinfectionModel
	Distance    *DistanceModel
	Transition  *TransitionPriors
	Initial     *InitialValueContainer
	Control     *SamplingControl
}

// ValidationError names the dimensions that disagreed.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// NewBundle validates dimension agreement across the seven
// configuration objects (spec.md §4.1) and returns the shared,
// read-only Bundle.
func NewBundle(
	data *DataModel,
	exposure *ExposureModel,
	reinfection *ReinfectionModel,
	distance *DistanceModel,
	transition *TransitionPriors,
	initial *InitialValueContainer,
	control *SamplingControl,
) (*Bundle, error) {
	T, L := data.dims()

	if exposure.T != T {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"dataModel.T=%d disagrees with exposureModel.T=%d", T, exposure.T)}
	}
	if exposure.L != L {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"dataModel.nLoc=%d disagrees with exposureModel.nLoc=%d", L, exposure.L)}
	}
	if distance.Enabled() && distance.L != L {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"dataModel.nLoc=%d disagrees with distanceModel.L=%d", L, distance.L)}
	}
	if len(initial.S0) != L {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"dataModel.nLoc=%d disagrees with length(S0)=%d", L, len(initial.S0))}
	}
	if reinfection.Enabled() {
		rsT, _ := reinfection.XRS.Dims()
		if rsT != T {
			return nil, &ValidationError{Message: fmt.Sprintf(
				"dataModel.T=%d disagrees with X_rs rows=%d", T, rsT)}
		}
	}
	if control.BatchSize != control.NParticles {
		return nil, &ValidationError{Message: fmt.Sprintf(
			"batch_size=%d must equal nParticles=%d in this core", control.BatchSize, control.NParticles)}
	}

	return &Bundle{
		Data:        data,
		Exposure:    exposure,
		Reinfection: reinfection,
		Distance:    distance,
		Transition:  transition,
		Initial:     initial,
		Control:     control,
	}, nil
}

// ParamDim returns P, the fixed column count of the particle matrix:
// dim(beta) + [dim(beta_rs)] + [|{Dk}|] + 2, with column ordering
// beta, beta_rs, rho, gamma_EI, gamma_IR (spec.md §3).
func (b *Bundle) ParamDim() int {
	_, pBeta := b.Exposure.X.Dims()
	p := pBeta + 2
	if b.Reinfection.Enabled() {
		_, pRS := b.Reinfection.XRS.Dims()
		p += pRS
	}
	if b.Distance.Enabled() {
		p += len(b.Distance.D)
	}
	return p
}

// Summary writes a terse human-readable description of the bundle,
// mirroring the verbose-mode config dumps in the original sampler
// (spatialSEIRModel_delmoral.cpp's summary() calls at verbose > 1).
func (b *Bundle) Summary() string {
	T, L := b.Data.dims()
	return fmt.Sprintf(
		"DataModel: T=%d L=%d | ExposureModel: p_beta=%d | Reinfection: %v | Spatial: %v (%d matrices) | Particles: N=%d m=%d epochs=%d",
		T, L, colsOf(b.Exposure.X), b.Reinfection.Enabled(), b.Distance.Enabled(), len(b.Distance.D),
		b.Control.NParticles, b.Control.Replicates, b.Control.Epochs)
}

func colsOf(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}
