package config

import (
	"strings"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func validControl(n int) *SamplingControl {
	return &SamplingControl{
		NParticles: n,
		BatchSize:  n,
		Replicates: 5,
		Epochs:     3,
		MaxBatches: 10,
		Shrinkage:  0.9,
		Cores:      2,
		Seed:       1,
		Distance:   MeanAbsoluteDistance,
	}
}

func TestNewBundleValid(t *testing.T) {
	data := &DataModel{Y: mat.NewDense(4, 2, nil), Offset: []float64{1, 1, 1, 1}}
	exposure := &ExposureModel{X: mat.NewDense(8, 3, nil), T: 4, L: 2}
	reinfection := &ReinfectionModel{}
	distance := &DistanceModel{L: 2}
	transition := &TransitionPriors{
		Beta:    GaussianPrior{Mean: []float64{0, 0, 0}, Precision: []float64{1, 1, 1}},
		GammaEI: GammaPrior{Shape: 2, Rate: 5},
		GammaIR: GammaPrior{Shape: 2, Rate: 5},
	}
	initial := &InitialValueContainer{S0: []float64{99, 99}, E0: []float64{1, 1}, I0: []float64{0, 0}, R0: []float64{0, 0}}
	control := validControl(10)

	b, err := NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	if b.ParamDim() != 5 {
		t.Errorf("ParamDim() = %d, want 5", b.ParamDim())
	}
}

// TestNewBundleDimensionMismatch is scenario E2: dataModel.nLoc=3 and
// exposureModel.nLoc=4 must fail construction, naming both numbers.
func TestNewBundleDimensionMismatch(t *testing.T) {
	data := &DataModel{Y: mat.NewDense(4, 3, nil), Offset: []float64{1, 1, 1, 1}}
	exposure := &ExposureModel{X: mat.NewDense(16, 2, nil), T: 4, L: 4}
	reinfection := &ReinfectionModel{}
	distance := &DistanceModel{L: 3}
	transition := &TransitionPriors{
		GammaEI: GammaPrior{Shape: 2, Rate: 5},
		GammaIR: GammaPrior{Shape: 2, Rate: 5},
	}
	initial := &InitialValueContainer{S0: []float64{1, 1, 1}, E0: []float64{0, 0, 0}, I0: []float64{0, 0, 0}, R0: []float64{0, 0, 0}}
	control := validControl(10)

	_, err := NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err == nil {
		t.Fatal("expected a validation error, got nil")
	}
	msg := err.Error()
	if !strings.Contains(msg, "3") || !strings.Contains(msg, "4") {
		t.Errorf("error %q does not name both mismatched dimensions (3, 4)", msg)
	}
}

func TestNewBundleReinfectionRowMismatch(t *testing.T) {
	data := &DataModel{Y: mat.NewDense(4, 2, nil), Offset: []float64{1, 1, 1, 1}}
	exposure := &ExposureModel{X: mat.NewDense(8, 2, nil), T: 4, L: 2}
	reinfection := &ReinfectionModel{XRS: mat.NewDense(3, 1, nil)} // wrong row count
	distance := &DistanceModel{L: 2}
	transition := &TransitionPriors{
		GammaEI: GammaPrior{Shape: 2, Rate: 5},
		GammaIR: GammaPrior{Shape: 2, Rate: 5},
	}
	initial := &InitialValueContainer{S0: []float64{1, 1}, E0: []float64{0, 0}, I0: []float64{0, 0}, R0: []float64{0, 0}}
	control := validControl(10)

	_, err := NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err == nil {
		t.Fatal("expected a validation error for mismatched X_rs row count")
	}
}

func TestMeanAbsoluteDistance(t *testing.T) {
	sim := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	obs := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	got := MeanAbsoluteDistance(sim, obs)
	want := (0.0 + 1.0 + 2.0 + 3.0) / 4.0
	if got != want {
		t.Errorf("MeanAbsoluteDistance = %v, want %v", got, want)
	}
}
