// Package simpool implements the Worker Pool (spec.md §4.5): a fixed
// size of CPU_cores simulator goroutines, each privately seeded,
// dispatched round-robin and drained in a single blocking batch per
// SMC iteration (spec.md §5, "the controller submits N jobs per
// round, blocks until all N distance rows are collected").
//
// Adapted from the per-replication job/result-channel pattern in
// other_examples/d-setiawan-influenza-var-analysis-go__functions.go
// (precomputed per-job seeds, one jobs channel, one buffered results
// channel, sync.WaitGroup-joined workers) — generalized here so
// results carry their submission index, since the spec requires the
// driver to reorder by index rather than simply collect unordered
// rows, and replaced the fire-and-forget aggregation with a pool that
// stays alive across many submit() rounds instead of being rebuilt per
// batch.
package simpool

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"bitbucket.org/dtolpin/abcsmcseir/config"
	"bitbucket.org/dtolpin/abcsmcseir/seir"
)

// Job is one parameter-vector evaluation request, tagged with its row
// index in the caller's particle matrix.
type Job struct {
	Index int
	Theta []float64
}

type jobResult struct {
	index  int
	result seir.Result
	err    error
}

// Pool is a fixed-size pool of simulator worker goroutines sharing a
// read-only Config bundle. Each worker owns a private generator
// stream, reseeded once per round per spec.md §4.5:
// base_seed + 1000*core_index + call_counter, shared by every job
// routed to that worker within the round.
type Pool struct {
	cfg      *config.Bundle
	baseSeed int64
	cores    int

	jobs    chan workItem
	results chan jobResult
	wg      sync.WaitGroup

	mu          sync.Mutex
	callCounter int
	closed      bool
}

type workItem struct {
	index int
	theta []float64
	seed  int64
	mode  seir.ResultMode
}

// New spawns cores simulator goroutines. The pool must be closed with
// Close when the sampling call completes.
func New(cfg *config.Bundle, baseSeed int64, cores int) *Pool {
	p := &Pool{
		cfg:      cfg,
		baseSeed: baseSeed,
		cores:    cores,
		jobs:     make(chan workItem),
		results:  make(chan jobResult, cores),
	}

	p.wg.Add(cores)
	for core := 0; core < cores; core++ {
		go p.worker(core)
	}
	return p
}

// worker holds a private Stream that is reseeded only when the seed
// assigned to it changes — i.e. once per round, not once per job — so
// every job this worker receives within a round draws from the same
// generator (spec.md §4.5; original_source/src/spatialSEIRModel.cpp
// reseeds a node once per simulate()/run_simulations() call, not once
// per row it processes within that call).
func (p *Pool) worker(core int) {
	defer p.wg.Done()

	var stream *seir.Stream
	var lastSeed int64
	haveSeed := false

	for item := range p.jobs {
		if !haveSeed || item.seed != lastSeed {
			stream = seir.NewStream(item.seed)
			lastSeed = item.seed
			haveSeed = true
		}
		res := seir.SimulateWithStream(item.theta, p.cfg.Control.Replicates, stream, p.cfg, item.mode)
		p.results <- jobResult{index: item.index, result: res}
	}
}

// Submit dispatches every job in the batch round-robin across the
// pool's workers and blocks until all len(jobs) distance rows are
// collected, reassembling them into an N x m matrix ordered by job
// index (spec.md §4.5, §5). ctx cancellation is checked between
// iterations by the caller (spec.md §5, "Cancellation"); Submit itself
// runs a batch to completion once started.
func (p *Pool) Submit(ctx context.Context, jobs []Job, mode seir.ResultMode) (*mat.Dense, []*seir.Trajectory, error) {
	select {
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	default:
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, nil, fmt.Errorf("simpool: submit on closed pool")
	}
	// One seed per core per round (spec.md §4.5: "base_seed +
	// 1000*core_index + call_counter"): every job in this batch routed
	// to the same core shares call_counter, and the counter advances
	// once for the whole round, not once per job.
	call := p.callCounter
	p.callCounter++
	seeds := make([]int64, len(jobs))
	for i, j := range jobs {
		core := j.Index % p.cores
		seeds[i] = p.baseSeed + 1000*int64(core) + int64(call)
	}
	p.mu.Unlock()

	go func() {
		for i, j := range jobs {
			p.jobs <- workItem{index: j.Index, theta: j.Theta, seed: seeds[i], mode: mode}
		}
	}()

	m := p.cfg.Control.Replicates
	rows := make([]seir.Result, len(jobs))
	received := 0
	for received < len(jobs) {
		r := <-p.results
		rows[r.index] = r.result
		received++
	}

	D := mat.NewDense(len(jobs), m, nil)
	var trajectories []*seir.Trajectory
	if mode == seir.ModeTrajectory {
		trajectories = make([]*seir.Trajectory, 0, len(jobs)*m)
	}
	for i, row := range rows {
		for j := 0; j < m; j++ {
			D.Set(i, j, row.Distances[j])
		}
		if mode == seir.ModeTrajectory {
			trajectories = append(trajectories, row.Trajectories...)
		}
	}

	return D, trajectories, nil
}

// Close drains in-flight jobs and stops every worker (spec.md §4.5,
// §5: "workers must drain cleanly and release their generators").
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.jobs)
	p.wg.Wait()
}
