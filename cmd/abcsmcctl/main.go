// Command abcsmcctl runs the ABC-SMC sampler against a JSON-encoded
// configuration bundle and writes the resulting particle matrix as
// CSV. Adapted from dtolpin-wigp/main.go's flag-based CLI shape: parse
// flags, load input, report progress to stderr, write CSV to stdout.
package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/dtolpin/abcsmcseir"
	"bitbucket.org/dtolpin/abcsmcseir/config"
)

var (
	verbosity = 1
	mode      = "distance-only"
	configPath = ""
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			`Runs the spatial SEIR ABC-SMC sampler. Invocation:
  %s -config CONFIG.json [OPTIONS] > PARTICLES.csv
`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.StringVar(&configPath, "config", configPath, "path to a JSON config bundle")
	flag.IntVar(&verbosity, "v", verbosity, "verbosity level (0-3)")
	flag.StringVar(&mode, "mode", mode, `result mode: "distance-only" or "trajectories"`)
}

// jsonBundle mirrors the on-disk config shape; it is intentionally
// flat, field-by-field JSON rather than re-using config's Go types
// directly, since those embed *mat.Dense values with their own
// internal layout.
type jsonBundle struct {
	Y      [][]float64 `json:"y"`
	Offset []float64   `json:"offset"`

	X   [][]float64 `json:"x"`
	XRS [][]float64 `json:"x_rs,omitempty"`
	D   [][][]float64 `json:"d,omitempty"`

	S0 []float64 `json:"s0"`
	E0 []float64 `json:"e0"`
	I0 []float64 `json:"i0"`
	R0 []float64 `json:"r0"`

	BetaMean      []float64 `json:"beta_mean"`
	BetaPrecision []float64 `json:"beta_precision"`

	BetaRSMean      []float64 `json:"beta_rs_mean,omitempty"`
	BetaRSPrecision []float64 `json:"beta_rs_precision,omitempty"`

	RhoMean      []float64 `json:"rho_mean,omitempty"`
	RhoPrecision []float64 `json:"rho_precision,omitempty"`

	GammaEIShape float64 `json:"gamma_ei_shape"`
	GammaEIRate  float64 `json:"gamma_ei_rate"`

	GammaIRShape float64 `json:"gamma_ir_shape"`
	GammaIRRate  float64 `json:"gamma_ir_rate"`

	NParticles int     `json:"n_particles"`
	Replicates int     `json:"replicates"`
	Epochs     int     `json:"epochs"`
	MaxBatches int     `json:"max_batches"`
	Shrinkage  float64 `json:"shrinkage"`
	Cores      int     `json:"cores"`
	Seed       int64   `json:"seed"`
}

func main() {
	flag.Parse()
	if configPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	fmt.Fprint(os.Stderr, "loading config...")
	f, err := os.Open(configPath)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	var jb jsonBundle
	if err := json.NewDecoder(f).Decode(&jb); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintln(os.Stderr, "done")

	bundle, err := toConfig(jb)
	if err != nil {
		log.Fatal(err)
	}

	m, err := abcsmcseir.New(bundle.Data, bundle.Exposure, bundle.Reinfection,
		bundle.Distance, bundle.Transition, bundle.Initial, bundle.Control, nil)
	if err != nil {
		log.Fatal(err)
	}

	sampleMode := abcsmcseir.ModeDistanceOnly
	if mode == "trajectories" {
		sampleMode = abcsmcseir.ModeTrajectories
	}

	fmt.Fprintln(os.Stderr, "sampling...")
	result, err := m.Sample(context.Background(), jb.NParticles, verbosity, sampleMode)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "done: %d epochs, final eps=%v\n", result.CompletedEpochs, result.CurrentEps)

	writeParticlesCSV(os.Stdout, result.Params)
}

func writeParticlesCSV(w *os.File, params *mat.Dense) {
	out := csv.NewWriter(w)
	defer out.Flush()

	n, p := params.Dims()
	for i := 0; i < n; i++ {
		record := make([]string, p)
		for j := 0; j < p; j++ {
			record[j] = strconv.FormatFloat(params.At(i, j), 'f', -1, 64)
		}
		if err := out.Write(record); err != nil {
			log.Fatal(err)
		}
	}
}

func toConfig(jb jsonBundle) (*config.Bundle, error) {
	T := len(jb.Y)
	L := 0
	if T > 0 {
		L = len(jb.Y[0])
	}

	Y := mat.NewDense(T, L, nil)
	for t := 0; t < T; t++ {
		for l := 0; l < L; l++ {
			Y.Set(t, l, jb.Y[t][l])
		}
	}

	data := &config.DataModel{Y: Y, Offset: jb.Offset}

	rows := len(jb.X)
	cols := 0
	if rows > 0 {
		cols = len(jb.X[0])
	}
	X := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			X.Set(i, j, jb.X[i][j])
		}
	}
	exposure := &config.ExposureModel{X: X, T: T, L: L}

	reinfection := &config.ReinfectionModel{}
	if len(jb.XRS) > 0 {
		rsRows := len(jb.XRS)
		rsCols := len(jb.XRS[0])
		XRS := mat.NewDense(rsRows, rsCols, nil)
		for i := 0; i < rsRows; i++ {
			for j := 0; j < rsCols; j++ {
				XRS.Set(i, j, jb.XRS[i][j])
			}
		}
		reinfection.XRS = XRS
	}

	distance := &config.DistanceModel{L: L}
	for _, dk := range jb.D {
		Dk := mat.NewDense(L, L, nil)
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				Dk.Set(i, j, dk[i][j])
			}
		}
		distance.D = append(distance.D, Dk)
	}

	transition := &config.TransitionPriors{
		Beta:    config.GaussianPrior{Mean: jb.BetaMean, Precision: jb.BetaPrecision},
		BetaRS:  config.GaussianPrior{Mean: jb.BetaRSMean, Precision: jb.BetaRSPrecision},
		GammaEI: config.GammaPrior{Shape: jb.GammaEIShape, Rate: jb.GammaEIRate},
		GammaIR: config.GammaPrior{Shape: jb.GammaIRShape, Rate: jb.GammaIRRate},
	}
	for i := range jb.RhoMean {
		transition.Rho = append(transition.Rho, config.RhoPrior{Mean: jb.RhoMean[i], Precision: jb.RhoPrecision[i]})
	}

	initial := &config.InitialValueContainer{S0: jb.S0, E0: jb.E0, I0: jb.I0, R0: jb.R0}

	control := &config.SamplingControl{
		NParticles: jb.NParticles,
		BatchSize:  jb.NParticles,
		Replicates: jb.Replicates,
		Epochs:     jb.Epochs,
		MaxBatches: jb.MaxBatches,
		Shrinkage:  jb.Shrinkage,
		Cores:      jb.Cores,
		Seed:       jb.Seed,
		Distance:   config.MeanAbsoluteDistance,
	}

	return config.NewBundle(data, exposure, reinfection, distance, transition, initial, control)
}
