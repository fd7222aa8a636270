package smc

import (
	"context"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/dtolpin/abcsmcseir/config"
	"bitbucket.org/dtolpin/abcsmcseir/prior"
	"bitbucket.org/dtolpin/abcsmcseir/seir"
	"bitbucket.org/dtolpin/abcsmcseir/simpool"
)

// Diagnostics receives the nonfatal notices spec.md §7 requires:
// "sampler collapsed" warnings, max_batches-exhausted reports, and
// leveled progress echoes gated by a verbosity tier, mirroring the
// verbose > 0/1/2 tiers in spatialSEIRModel_delmoral.cpp.
type Diagnostics interface {
	Infof(level int, format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

// NopDiagnostics discards every message.
type NopDiagnostics struct{}

func (NopDiagnostics) Infof(int, string, ...interface{}) {}
func (NopDiagnostics) Warnf(string, ...interface{})      {}

// ResultMode selects what Sample returns alongside the final
// particles: the raw N x m distance matrix, or full per-particle
// trajectories (spec.md §6).
type ResultMode int

const (
	ModeDistanceOnly ResultMode = iota
	ModeTrajectories
)

// Result is the bundle Sample returns (spec.md §6, "Result bundle
// fields").
type Result struct {
	Params          *mat.Dense // N x P, final particles
	Distances       *mat.Dense // N x m, present when Mode == ModeDistanceOnly
	Trajectories    []*seir.Trajectory
	Weights         []float64
	EpsSchedule     []float64
	CompletedEpochs int
	CurrentEps      float64
}

// Driver owns the particle matrix and drives the Del Moral (2012)
// outer loop (spec.md §4.6).
type Driver struct {
	Bundle *config.Bundle
	Prior  *prior.Evaluator
	Pool   *simpool.Pool
	Diag   Diagnostics

	rng *rand.Rand
}

// New constructs a Driver. The caller owns the Pool's lifecycle
// (Close it after the sampling call completes).
func New(bundle *config.Bundle, pool *simpool.Pool, diag Diagnostics) *Driver {
	if diag == nil {
		diag = NopDiagnostics{}
	}
	return &Driver{
		Bundle: bundle,
		Prior:  prior.New(bundle),
		Pool:   pool,
		Diag:   diag,
		rng:    rand.New(rand.NewSource(uint64(bundle.Control.Seed))),
	}
}

// Sample runs the Del Moral 2012 adaptive SMC sampler for the
// configured number of epochs (spec.md §4.6). verbosity selects the
// diagnostic tier. mode selects whether the result bundle carries the
// raw distance matrix or full trajectories.
func (d *Driver) Sample(ctx context.Context, verbosity int, mode ResultMode) (*Result, error) {
	ctrl := d.Bundle.Control
	N := ctrl.NParticles
	P := d.Bundle.ParamDim()

	if verbosity > 1 {
		d.Diag.Infof(1, "%s", d.Bundle.Summary())
	}

	particles := d.initializeFromPrior(N, P)

	if ctx.Err() != nil {
		return &Result{
			Params: particles, Weights: uniformWeights(N),
			EpsSchedule: []float64{math.Inf(1)}, CurrentEps: math.Inf(1),
		}, nil
	}

	D, trajectories, err := d.simulateBatch(ctx, particles)
	if err != nil {
		return nil, err
	}

	eps0 := math.Inf(1)
	w0 := uniformWeights(N)
	epsSchedule := []float64{eps0}

	epoch := 0
	for ; epoch < ctrl.Epochs; epoch++ {
		select {
		case <-ctx.Done():
			return &Result{
				Params: particles, Distances: D, Trajectories: trajectories,
				Weights: w0, EpsSchedule: epsSchedule,
				CompletedEpochs: epoch, CurrentEps: eps0,
			}, nil
		default:
		}

		if verbosity > 0 {
			d.Diag.Infof(0, "iteration %d. eps0=%v", epoch, eps0)
		}

		tau := columnStdDev(particles)

		lb, ub := MinMax(D)
		lb++
		eps1 := SolveEpsilon(lb, ub, eps0, ctrl.Shrinkage, D, w0)

		w1, err := CalcWeights(eps1, eps0, D, w0)
		if err != nil {
			return nil, err
		}

		if ESS(w1) < float64(N) {
			particles, D = d.resample(particles, D, w1)
			w1 = uniformWeights(N)
		} else {
			d.Diag.Infof(1, "not resampling, ESS sufficient")
		}

		proposed, proposedD, err := d.rejuvenate(ctx, particles, D, tau, eps1, verbosity)
		if err != nil {
			return nil, err
		}

		numAccept := 0
		for i := 0; i < N; i++ {
			pn := d.Prior.Eval(proposed.RawRowView(i))
			pdPrior := d.Prior.Eval(particles.RawRowView(i))

			num := countBelow(proposedD, i, eps1)
			den := countBelow(D, i, eps1)

			accRatio := (num * pn) / (den * pdPrior)
			draw := d.rng.Float64()

			if math.IsNaN(accRatio) {
				continue
			}
			if draw <= accRatio {
				numAccept++
				particles.SetRow(i, proposed.RawRowView(i))
				D.SetRow(i, proposedD.RawRowView(i))
			}
		}

		if verbosity > 2 {
			d.Diag.Infof(2, "MCMC step complete, %d accepted", numAccept)
		}
		if numAccept == 0 {
			d.Diag.Warnf("sampler collapsed")
		}

		eps0 = eps1
		w0 = w1
		epsSchedule = append(epsSchedule, eps1)
	}

	result := &Result{
		Params:          particles,
		Weights:         w0,
		EpsSchedule:     epsSchedule,
		CompletedEpochs: epoch,
		CurrentEps:      eps0,
	}
	if mode == ModeDistanceOnly {
		result.Distances = D
	} else {
		_, finalTraj, err := d.simulateBatchMode(ctx, particles, seir.ModeTrajectory)
		if err != nil {
			return nil, err
		}
		result.Trajectories = finalTraj
	}
	return result, nil
}

// initializeFromPrior draws N starting particles from the priors:
// Gaussian coordinates for beta/beta_rs/rho, gamma coordinates for
// gamma_EI/gamma_IR, matching the column ordering of spec.md §3.
func (d *Driver) initializeFromPrior(N, P int) *mat.Dense {
	tp := d.Bundle.Transition
	particles := mat.NewDense(N, P, nil)

	_, nBeta := d.Bundle.Exposure.X.Dims()
	var nRS int
	if d.Bundle.Reinfection.Enabled() {
		_, nRS = d.Bundle.Reinfection.XRS.Dims()
	}
	nRho := 0
	if d.Bundle.Distance.Enabled() {
		nRho = len(d.Bundle.Distance.D)
	}

	for i := 0; i < N; i++ {
		col := 0
		for j := 0; j < nBeta; j++ {
			sigma := priorSigma(tp.Beta.Precision[j])
			particles.Set(i, col, distuv.Normal{Mu: tp.Beta.Mean[j], Sigma: sigma, Src: d.rng}.Rand())
			col++
		}
		for j := 0; j < nRS; j++ {
			sigma := priorSigma(tp.BetaRS.Precision[j])
			particles.Set(i, col, distuv.Normal{Mu: tp.BetaRS.Mean[j], Sigma: sigma, Src: d.rng}.Rand())
			col++
		}
		for j := 0; j < nRho; j++ {
			sigma := priorSigma(tp.Rho[j].Precision)
			particles.Set(i, col, distuv.Normal{Mu: tp.Rho[j].Mean, Sigma: sigma, Src: d.rng}.Rand())
			col++
		}
		particles.Set(i, col, distuv.Gamma{Alpha: tp.GammaEI.Shape, Beta: tp.GammaEI.Rate, Src: d.rng}.Rand())
		col++
		particles.Set(i, col, distuv.Gamma{Alpha: tp.GammaIR.Shape, Beta: tp.GammaIR.Rate, Src: d.rng}.Rand())
	}

	return particles
}

func priorSigma(precision float64) float64 {
	if precision <= 0 {
		return 1
	}
	return 1 / math.Sqrt(precision)
}

// simulateBatch runs one full batch of N particles through the worker
// pool, returning the N x m distance matrix.
func (d *Driver) simulateBatch(ctx context.Context, particles *mat.Dense) (*mat.Dense, []*seir.Trajectory, error) {
	return d.simulateBatchMode(ctx, particles, seir.ModeDistanceOnly)
}

func (d *Driver) simulateBatchMode(ctx context.Context, particles *mat.Dense, mode seir.ResultMode) (*mat.Dense, []*seir.Trajectory, error) {
	n, _ := particles.Dims()
	jobs := make([]simpool.Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = simpool.Job{Index: i, Theta: append([]float64(nil), particles.RawRowView(i)...)}
	}
	return d.Pool.Submit(ctx, jobs, mode)
}

// resample performs inverse-CDF resampling against the cumulative
// weights (spec.md §4.6 step 4).
func (d *Driver) resample(particles, D *mat.Dense, w []float64) (*mat.Dense, *mat.Dense) {
	n, p := particles.Dims()
	_, m := D.Dims()

	cum := make([]float64, n)
	cum[0] = w[0]
	for i := 1; i < n; i++ {
		cum[i] = cum[i-1] + w[i]
	}

	newParticles := mat.NewDense(n, p, nil)
	newD := mat.NewDense(n, m, nil)

	for i := 0; i < n; i++ {
		draw := d.rng.Float64()
		chosen := n - 1
		for j := 0; j < n; j++ {
			if draw <= cum[j] {
				chosen = j
				break
			}
		}
		newParticles.SetRow(i, particles.RawRowView(chosen))
		newD.SetRow(i, D.RawRowView(chosen))
	}

	return newParticles, newD
}

// rejuvenate runs the MCMC rejuvenation loop (spec.md §4.6 step 5):
// propose, simulate, accept proposals whose minimum replicate distance
// beats eps1, until every particle slot is filled or max_batches
// proposal rounds are spent. When the loop is exhausted before N
// acceptances, the unfilled tail is copied from the *last simulated
// proposal batch*, rejected rows included — a documented, preserved
// quirk of the original sampler (spatialSEIRModel_delmoral.cpp lines
// 395-461; spec.md Design Notes §9).
func (d *Driver) rejuvenate(ctx context.Context, particles, D *mat.Dense, tau []float64, eps1 float64, verbosity int) (*mat.Dense, *mat.Dense, error) {
	n, p := particles.Dims()
	_, m := D.Dims()

	proposed := mat.NewDense(n, p, nil)
	proposedD := mat.NewDense(n, m, nil)

	currentIdx := 0
	nBatches := 0

	var preproposal *mat.Dense
	var preproposalD *mat.Dense

	for currentIdx < n && nBatches < d.Bundle.Control.MaxBatches {
		if ctx.Err() != nil {
			break
		}

		preproposal = mat.DenseCopyOf(particles)
		d.proposeParams(preproposal, tau)

		var err error
		preproposalD, _, err = d.simulateBatch(ctx, preproposal)
		if err != nil {
			return nil, nil, err
		}

		for i := 0; i < n && currentIdx < n; i++ {
			if rowMin(preproposalD, i) < eps1 {
				proposed.SetRow(currentIdx, preproposal.RawRowView(i))
				proposedD.SetRow(currentIdx, preproposalD.RawRowView(i))
				currentIdx++
			}
		}

		if currentIdx < n && verbosity > 1 {
			d.Diag.Infof(1, "batch %d, %d/%d accepted", nBatches, currentIdx, n)
		}
		nBatches++
	}

	if currentIdx < n && preproposal != nil {
		d.Diag.Warnf("max_batches exhausted, %d/%d acceptances in %d batches; filling remainder from the last proposal batch", currentIdx, n, nBatches)
		// Preserved quirk (spec.md Design Notes §9): the tail is filled
		// from the last simulated proposal batch, rejected rows
		// included, not from the rows the proposal started from.
		for i := currentIdx; i < n; i++ {
			proposed.SetRow(i, preproposal.RawRowView(i))
			proposedD.SetRow(i, preproposalD.RawRowView(i))
		}
	}

	return proposed, proposedD, nil
}

// proposeParams perturbs every particle independently per dimension:
// noise_{i,j} ~ Normal(0, 2*tau_j) (spec.md §4.6 step 5).
func (d *Driver) proposeParams(particles *mat.Dense, tau []float64) {
	n, p := particles.Dims()
	for j := 0; j < p; j++ {
		dist := distuv.Normal{Mu: 0, Sigma: 2 * tau[j], Src: d.rng}
		for i := 0; i < n; i++ {
			particles.Set(i, j, particles.At(i, j)+dist.Rand())
		}
	}
}

// columnStdDev returns the columnwise standard deviation of the
// particle matrix, the perturbation scale tau (spec.md §4.6 step 1).
func columnStdDev(particles *mat.Dense) []float64 {
	n, p := particles.Dims()
	tau := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		for i := 0; i < n; i++ {
			col[i] = particles.At(i, j)
		}
		_, sd := stat.MeanStdDev(col, nil)
		tau[j] = sd
	}
	return tau
}

func uniformWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

func rowMin(D *mat.Dense, i int) float64 {
	row := D.RawRowView(i)
	min := math.Inf(1)
	for _, v := range row {
		if v < min {
			min = v
		}
	}
	return min
}

func countBelow(D *mat.Dense, i int, eps float64) float64 {
	row := D.RawRowView(i)
	count := 0.0
	for _, v := range row {
		if v < eps {
			count++
		}
	}
	return count
}
