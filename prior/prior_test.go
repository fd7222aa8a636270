package prior

import (
	"testing"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/dtolpin/abcsmcseir/config"
)

func testBundle(t *testing.T) *config.Bundle {
	t.Helper()
	data := &config.DataModel{Y: mat.NewDense(3, 2, nil), Offset: []float64{1, 1, 1}}
	exposure := &config.ExposureModel{X: mat.NewDense(6, 2, nil), T: 3, L: 2}
	reinfection := &config.ReinfectionModel{}
	distance := &config.DistanceModel{L: 2}
	transition := &config.TransitionPriors{
		Beta:    config.GaussianPrior{Mean: []float64{0, 0}, Precision: []float64{1, 1}},
		GammaEI: config.GammaPrior{Shape: 2, Rate: 5},
		GammaIR: config.GammaPrior{Shape: 2, Rate: 5},
	}
	initial := &config.InitialValueContainer{S0: []float64{99, 99}, E0: []float64{1, 1}, I0: []float64{0, 0}, R0: []float64{0, 0}}
	control := &config.SamplingControl{NParticles: 5, BatchSize: 5, Replicates: 3, Epochs: 2, MaxBatches: 5, Shrinkage: 0.9, Cores: 1, Seed: 1, Distance: config.MeanAbsoluteDistance}

	b, err := config.NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	return b
}

func TestEvalDeterministic(t *testing.T) {
	e := New(testBundle(t))
	theta := []float64{0.1, -0.2, 3.0, 4.0}

	d1 := e.Eval(theta)
	d2 := e.Eval(theta)
	if d1 != d2 {
		t.Errorf("Eval not deterministic: %v != %v", d1, d2)
	}
	if d1 <= 0 {
		t.Errorf("Eval(admissible theta) = %v, want > 0", d1)
	}
}

func TestEvalZeroOutsideGammaDomain(t *testing.T) {
	e := New(testBundle(t))

	cases := [][]float64{
		{0.1, -0.2, -1.0, 4.0}, // gamma_EI <= 0
		{0.1, -0.2, 3.0, 0.0},  // gamma_IR <= 0
	}
	for _, theta := range cases {
		if got := e.Eval(theta); got != 0 {
			t.Errorf("Eval(%v) = %v, want 0", theta, got)
		}
	}
}
