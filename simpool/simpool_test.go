package simpool

import (
	"context"
	"testing"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/dtolpin/abcsmcseir/config"
)

func testCfg(t *testing.T) *config.Bundle {
	t.Helper()
	data := &config.DataModel{Y: mat.NewDense(3, 1, nil), Offset: []float64{1, 1, 1}}
	exposure := &config.ExposureModel{X: mat.NewDense(3, 1, nil), T: 3, L: 1}
	reinfection := &config.ReinfectionModel{}
	distance := &config.DistanceModel{L: 1}
	transition := &config.TransitionPriors{
		Beta:    config.GaussianPrior{Mean: []float64{0}, Precision: []float64{1}},
		GammaEI: config.GammaPrior{Shape: 2, Rate: 5},
		GammaIR: config.GammaPrior{Shape: 2, Rate: 5},
	}
	initial := &config.InitialValueContainer{S0: []float64{99}, E0: []float64{1}, I0: []float64{0}, R0: []float64{0}}
	control := &config.SamplingControl{NParticles: 8, BatchSize: 8, Replicates: 2, Epochs: 1, MaxBatches: 3, Shrinkage: 0.9, Cores: 3, Seed: 5, Distance: config.MeanAbsoluteDistance}

	b, err := config.NewBundle(data, exposure, reinfection, distance, transition, initial, control)
	if err != nil {
		t.Fatalf("NewBundle: %v", err)
	}
	return b
}

func TestSubmitReassemblesByIndex(t *testing.T) {
	cfg := testCfg(t)
	pool := New(cfg, cfg.Control.Seed, cfg.Control.Cores)
	defer pool.Close()

	n := 8
	jobs := make([]Job, n)
	for i := 0; i < n; i++ {
		jobs[i] = Job{Index: i, Theta: []float64{float64(i) * 0.01, 0.3, 0.2}}
	}

	D, _, err := pool.Submit(context.Background(), jobs, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	rows, cols := D.Dims()
	if rows != n || cols != cfg.Control.Replicates {
		t.Fatalf("D dims = (%d,%d), want (%d,%d)", rows, cols, n, cfg.Control.Replicates)
	}
}

func TestSubmitAfterCloseErrors(t *testing.T) {
	cfg := testCfg(t)
	pool := New(cfg, cfg.Control.Seed, cfg.Control.Cores)
	pool.Close()

	_, _, err := pool.Submit(context.Background(), []Job{{Index: 0, Theta: []float64{0, 0.3, 0.2}}}, 0)
	if err == nil {
		t.Fatal("expected an error submitting to a closed pool")
	}
}

func TestSubmitRespectsCancellation(t *testing.T) {
	cfg := testCfg(t)
	pool := New(cfg, cfg.Control.Seed, cfg.Control.Cores)
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := pool.Submit(ctx, []Job{{Index: 0, Theta: []float64{0, 0.3, 0.2}}}, 0)
	if err == nil {
		t.Fatal("expected Submit to observe an already-cancelled context")
	}
}

func TestDeterministicSeedsAcrossCalls(t *testing.T) {
	cfg := testCfg(t)
	pool1 := New(cfg, cfg.Control.Seed, cfg.Control.Cores)
	defer pool1.Close()
	pool2 := New(cfg, cfg.Control.Seed, cfg.Control.Cores)
	defer pool2.Close()

	jobs := []Job{{Index: 0, Theta: []float64{0.1, 0.3, 0.2}}, {Index: 1, Theta: []float64{0.2, 0.3, 0.2}}}

	D1, _, err := pool1.Submit(context.Background(), jobs, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	D2, _, err := pool2.Submit(context.Background(), jobs, 0)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	rows, cols := D1.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if D1.At(i, j) != D2.At(i, j) {
				t.Errorf("D1[%d,%d]=%v != D2[%d,%d]=%v; two freshly constructed pools with identical seeds should reproduce",
					i, j, D1.At(i, j), i, j, D2.At(i, j))
			}
		}
	}
}
