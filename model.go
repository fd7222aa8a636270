// Package abcsmcseir is the external interface of the spatial
// stochastic SEIR ABC-SMC sampler (spec.md §6): construction from
// seven configuration objects, and the three entry points Simulate,
// MarginalPosteriorEstimates, and Sample.
package abcsmcseir

import (
	"context"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/dtolpin/abcsmcseir/abcerr"
	"bitbucket.org/dtolpin/abcsmcseir/config"
	"bitbucket.org/dtolpin/abcsmcseir/seir"
	"bitbucket.org/dtolpin/abcsmcseir/simpool"
	"bitbucket.org/dtolpin/abcsmcseir/smc"
)

// Model is the constructed sampler: an immutable Config Bundle plus
// the diagnostics sink. Simulate, MarginalPosteriorEstimates, and
// Sample each build and close their own worker pool.
type Model struct {
	bundle *config.Bundle
	diag   smc.Diagnostics
}

// New validates the seven configuration objects (spec.md §4.1, §6)
// and returns the constructed Model. diag may be nil, in which case
// diagnostics are discarded.
func New(
	data *config.DataModel,
	exposure *config.ExposureModel,
	reinfection *config.ReinfectionModel,
	distance *config.DistanceModel,
	transition *config.TransitionPriors,
	initial *config.InitialValueContainer,
	control *config.SamplingControl,
	diag smc.Diagnostics,
) (*Model, error) {
	if err := checkKind(0, "DataModel", data.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(1, "ExposureModel", exposure.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(2, "ReinfectionModel", reinfection.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(3, "DistanceModel", distance.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(4, "TransitionPriors", transition.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(5, "InitialValueContainer", initial.Kind()); err != nil {
		return nil, err
	}
	if err := checkKind(6, "SamplingControl", control.Kind()); err != nil {
		return nil, err
	}

	bundle, err := config.NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err != nil {
		return nil, err
	}

	if diag == nil {
		diag = smc.NopDiagnostics{}
	}
	return &Model{bundle: bundle, diag: diag}, nil
}

func checkKind(position int, want, got string) error {
	if want != got {
		return &abcerr.KindMismatchError{Position: position, Want: want, Got: got}
	}
	return nil
}

// Simulate runs the forward simulator once per row of params (N x P)
// with no SMC bookkeeping, returning one trajectory per row (spec.md
// §6). Each row is simulated with the configured m replicates and the
// first replicate's trajectory is returned. If params does not have
// the parameter dimension as its column count, every entry is nil.
func (m *Model) Simulate(ctx context.Context, params *mat.Dense) ([]*seir.Trajectory, error) {
	pool := simpool.New(m.bundle, m.bundle.Control.Seed, m.bundle.Control.Cores)
	defer pool.Close()

	n, _ := params.Dims()
	jobs := make([]simpool.Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = simpool.Job{Index: i, Theta: append([]float64(nil), params.RawRowView(i)...)}
	}

	_, trajectories, err := pool.Submit(ctx, jobs, seir.ModeTrajectory)
	if err != nil {
		return nil, err
	}
	reps := m.bundle.Control.Replicates
	perRow := make([]*seir.Trajectory, n)
	if len(trajectories) == n*reps {
		for i := range perRow {
			perRow[i] = trajectories[i*reps]
		}
	}
	return perRow, nil
}

// MarginalPosteriorEstimates runs the forward simulator once per row
// of params and returns a scalar distance summary per row (spec.md
// §6): the mean of that row's m replicate distances.
func (m *Model) MarginalPosteriorEstimates(ctx context.Context, params *mat.Dense) ([]float64, error) {
	pool := simpool.New(m.bundle, m.bundle.Control.Seed, m.bundle.Control.Cores)
	defer pool.Close()

	n, _ := params.Dims()
	jobs := make([]simpool.Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = simpool.Job{Index: i, Theta: append([]float64(nil), params.RawRowView(i)...)}
	}

	D, _, err := pool.Submit(ctx, jobs, seir.ModeDistanceOnly)
	if err != nil {
		return nil, err
	}

	_, cols := D.Dims()
	estimates := make([]float64, n)
	for i := 0; i < n; i++ {
		row := D.RawRowView(i)
		sum := 0.0
		for _, v := range row {
			sum += v
		}
		estimates[i] = sum / float64(cols)
	}
	return estimates, nil
}

// SampleMode selects the shape of Sample's result bundle (spec.md
// §6): "distance-only" returns the N x m distance matrix, and
// "trajectories" returns full compartment histories.
type SampleMode = smc.ResultMode

const (
	ModeDistanceOnly  = smc.ModeDistanceOnly
	ModeTrajectories  = smc.ModeTrajectories
)

// Sample runs the Del Moral ABC-SMC sampler (spec.md §6). nSample must
// match the configured SamplingControl.NParticles, which sets the
// particle count; verbosity gates diagnostic output.
func (m *Model) Sample(ctx context.Context, nSample int, verbosity int, mode SampleMode) (*smc.Result, error) {
	if nSample != m.bundle.Control.NParticles {
		return nil, &abcerr.KindMismatchError{
			Position: -1,
			Want:     "nSample == SamplingControl.NParticles",
			Got:      "nSample != SamplingControl.NParticles",
		}
	}

	pool := simpool.New(m.bundle, m.bundle.Control.Seed, m.bundle.Control.Cores)
	defer pool.Close()

	driver := smc.New(m.bundle, pool, m.diag)
	return driver.Sample(ctx, verbosity, mode)
}
