// Package seir implements the Simulator Node contract (spec.md §4.4):
// a pure function of (parameter vector, seed, config) that runs m
// independent stochastic SEIR replicates and returns a distance row,
// optionally the full compartment trajectory.
//
// The time-stepping body was a stub in the retrieved C++ source
// (original_source/src/SEIRSimNodes.cpp, the loop at lines 180-183 is
// empty and the function returns a placeholder distance); spec.md
// §4.4 is the recovered intended design and is what this package
// implements.
package seir

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"bitbucket.org/dtolpin/abcsmcseir/config"
)

// RejectedDistance is the sentinel distance returned for every
// replicate when the supplied parameter vector has the wrong length
// (spec.md §4.4, "Output").
const RejectedDistance = -2.0

// ResultMode selects whether Simulate retains the full compartment
// trajectory alongside the distance row.
type ResultMode int

const (
	ModeDistanceOnly ResultMode = iota
	ModeTrajectory
)

// Trajectory holds one replicate's full compartment history, mirroring
// the simulationResultSet fields assembled in
// spatialSEIRModel_delmoral.cpp (S, E, I, R, *_star, p_se, and
// conditionally p_ei/p_ir, beta, X, rho).
type Trajectory struct {
	S, E, I, R                 *mat.Dense // T x L
	SStar, EStar, IStar, RStar *mat.Dense // T x L
	PSE                        *mat.Dense // T x L
	PEI, PIR                   []float64  // length T
	Beta                       []float64
	Rho                        []float64
	X                          *mat.Dense
}

// Result is the output of one Simulate call: a distance row of length
// m, plus one Trajectory per replicate when mode is ModeTrajectory.
type Result struct {
	Distances   []float64
	Trajectories []*Trajectory
}

// decoded holds a parameter vector split into its named blocks,
// following the fixed column ordering of spec.md §3: beta, beta_rs,
// rho, gamma_EI, gamma_IR.
type decoded struct {
	beta    []float64
	betaRS  []float64
	rho     []float64
	gammaEI float64
	gammaIR float64
}

func decode(theta []float64, cfg *config.Bundle) (decoded, bool) {
	_, pBeta := cfg.Exposure.X.Dims()
	want := cfg.ParamDim()
	if len(theta) != want {
		return decoded{}, false
	}

	i := 0
	d := decoded{}
	d.beta = append([]float64(nil), theta[i:i+pBeta]...)
	i += pBeta

	if cfg.Reinfection.Enabled() {
		_, pRS := cfg.Reinfection.XRS.Dims()
		d.betaRS = append([]float64(nil), theta[i:i+pRS]...)
		i += pRS
	}

	if cfg.Distance.Enabled() {
		nK := len(cfg.Distance.D)
		d.rho = append([]float64(nil), theta[i:i+nK]...)
		i += nK
	}

	d.gammaEI = theta[i]
	i++
	d.gammaIR = theta[i]

	return d, true
}

// Simulate runs m independent stochastic SEIR replicates for
// parameter vector theta, seeded deterministically from seed so that
// Simulate(theta, seed, ...) called twice yields identical output
// (spec.md §4.4, "Determinism"). It constructs a fresh Stream for the
// call; SimulateWithStream is used by the worker pool, where a node's
// stream is reseeded once per round and shared across every job
// routed to that node within the round (spec.md §4.5).
func Simulate(theta []float64, m int, seed int64, cfg *config.Bundle, mode ResultMode) Result {
	return SimulateWithStream(theta, m, NewStream(seed), cfg, mode)
}

// SimulateWithStream is Simulate against an already-seeded, possibly
// shared Stream.
func SimulateWithStream(theta []float64, m int, rng *Stream, cfg *config.Bundle, mode ResultMode) Result {
	p, ok := decode(theta, cfg)
	if !ok {
		distances := make([]float64, m)
		for i := range distances {
			distances[i] = RejectedDistance
		}
		return Result{Distances: distances}
	}

	res := Result{Distances: make([]float64, m)}
	if mode == ModeTrajectory {
		res.Trajectories = make([]*Trajectory, m)
	}

	T, L := cfg.Data.Y.Dims()

	for rep := 0; rep < m; rep++ {
		traj := runReplicate(p, cfg, T, L, rng)
		res.Distances[rep] = cfg.Control.Distance(traj.IStar, cfg.Data.Y)
		if mode == ModeTrajectory {
			traj.Beta = p.beta
			traj.Rho = p.rho
			traj.X = cfg.Exposure.X
			res.Trajectories[rep] = traj
		}
	}

	return res
}

// runReplicate executes one stochastic SEIR forward simulation
// following spec.md §4.4 steps 1-4.
func runReplicate(p decoded, cfg *config.Bundle, T, L int, rng *Stream) *Trajectory {
	N := cfg.Initial.N()

	// Step 2: linear predictor eta = X*beta, reshaped T x L,
	// exponentiated to intensity components c_{t,l}.
	etaVec := make([]float64, T*L)
	mat.NewVecDense(T*L, etaVec).MulVec(cfg.Exposure.X, vecOf(p.beta))
	c := mat.NewDense(T, L, nil)
	for t := 0; t < T; t++ {
		for l := 0; l < L; l++ {
			c.Set(t, l, math.Exp(etaVec[t*L+l]))
		}
	}

	var pRS *mat.Dense
	if cfg.Reinfection.Enabled() {
		rsVec := make([]float64, T)
		mat.NewVecDense(T, rsVec).MulVec(cfg.Reinfection.XRS, vecOf(p.betaRS))
		pRS = mat.NewDense(T, 1, rsVec)
	}

	traj := &Trajectory{
		S: mat.NewDense(T, L, nil), E: mat.NewDense(T, L, nil),
		I: mat.NewDense(T, L, nil), R: mat.NewDense(T, L, nil),
		SStar: mat.NewDense(T, L, nil), EStar: mat.NewDense(T, L, nil),
		IStar: mat.NewDense(T, L, nil), RStar: mat.NewDense(T, L, nil),
		PSE:   mat.NewDense(T, L, nil),
		PEI:   make([]float64, T),
		PIR:   make([]float64, T),
	}

	S := append([]float64(nil), cfg.Initial.S0...)
	E := append([]float64(nil), cfg.Initial.E0...)
	I := append([]float64(nil), cfg.Initial.I0...)
	R := append([]float64(nil), cfg.Initial.R0...)

	for t := 0; t < T; t++ {
		dt := cfg.Data.Offset[t]

		// Per-location infection pressure, spec.md §4.4 step 4a.
		pressure := make([]float64, L)
		for l := 0; l < L; l++ {
			pressure[l] = c.At(t, l) * I[l] / N[l]
		}
		if cfg.Distance.Enabled() {
			pressureVec := mat.NewVecDense(L, append([]float64(nil), pressure...))
			for k, Dk := range cfg.Distance.D {
				coupled := mat.NewVecDense(L, nil)
				coupled.MulVec(Dk, pressureVec)
				for l := 0; l < L; l++ {
					pressure[l] += p.rho[k] * coupled.AtVec(l)
				}
			}
		}

		pEI := 1 - math.Exp(-p.gammaEI*dt)
		pIR := 1 - math.Exp(-p.gammaIR*dt)
		traj.PEI[t] = pEI
		traj.PIR[t] = pIR

		for l := 0; l < L; l++ {
			pSE := 1 - math.Exp(-pressure[l]*dt)
			traj.PSE.Set(t, l, pSE)

			sToE := rng.Binomial(S[l], pSE)
			eToI := rng.Binomial(E[l], pEI)
			iToR := rng.Binomial(I[l], pIR)

			var rToS float64
			if cfg.Reinfection.Enabled() {
				pRSval := 1 - math.Exp(-pRS.At(t, 0)*dt)
				rToS = rng.Binomial(R[l], pRSval)
			}

			traj.SStar.Set(t, l, sToE)
			traj.EStar.Set(t, l, eToI)
			traj.IStar.Set(t, l, iToR)
			traj.RStar.Set(t, l, rToS)

			S[l] = S[l] - sToE + rToS
			E[l] = E[l] + sToE - eToI
			I[l] = I[l] + eToI - iToR
			R[l] = R[l] + iToR - rToS

			traj.S.Set(t, l, S[l])
			traj.E.Set(t, l, E[l])
			traj.I.Set(t, l, I[l])
			traj.R.Set(t, l, R[l])
		}
	}

	return traj
}

func vecOf(x []float64) *mat.VecDense {
	return mat.NewVecDense(len(x), x)
}

// Stream is the private, deterministic pseudo-random generator a
// simulator node carries. It is keyed by (base_seed, core_index,
// call_index) per spec.md §3/§4.5 and never shared across goroutines.
type Stream struct {
	src rand.Source
}

// Binomial draws a Binomial(n, p) sample using this stream's private
// generator. n is a float64 because compartment counts are carried as
// float64 throughout for uniform matrix arithmetic; it must be a
// nonnegative integer value.
func (s *Stream) Binomial(n, p float64) float64 {
	if n <= 0 || p <= 0 {
		return 0
	}
	if p >= 1 {
		return n
	}
	return distuv.Binomial{N: n, P: p, Src: s.src}.Rand()
}

// Uniform01 draws a Uniform(0,1) sample.
func (s *Stream) Uniform01() float64 {
	return distuv.Uniform{Min: 0, Max: 1, Src: s.src}.Rand()
}

// Normal draws a Normal(mean, sigma) sample.
func (s *Stream) Normal(mean, sigma float64) float64 {
	return distuv.Normal{Mu: mean, Sigma: sigma, Src: s.src}.Rand()
}
