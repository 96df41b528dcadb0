// Package experiment runs independent replications of a model on a bounded
// worker pool and aggregates their metrics.
package experiment

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/flowsim/flowsim/sim"
)

// Factory builds a fresh model for replication run. Models are single-use, so
// every call must return a new one.
type Factory func(run int) (*sim.Model, error)

// Plan describes an experiment.
type Plan struct {
	Runs int
	// Workers bounds concurrent runs; zero uses one per CPU.
	Workers  int
	BaseSeed int64
	// Config is copied into every run with Seed = BaseSeed + run. Its Sink
	// is ignored; use NewSink for per-run sinks.
	Config sim.Config
	// NewSink, when set, gives each run its own notification sink.
	NewSink func(run int) sim.InfoSink
	// OnRunDone is called after each successful run, one call at a time.
	OnRunDone func(RunResult)
}

// RunResult is the outcome of one replication.
type RunResult struct {
	Index   int
	ID      string
	Seed    int64
	Metrics *sim.Metrics
}

// Result bundles every run with the aggregate summary.
type Result struct {
	ID      string
	Runs    []RunResult
	Summary Summary
}

// Run executes plan.Runs replications. The first failing run cancels the
// ones not yet finished and its error is returned.
func Run(ctx context.Context, plan Plan, factory Factory) (*Result, error) {
	if plan.Runs <= 0 {
		return nil, fmt.Errorf("runs must be positive, got %d", plan.Runs)
	}
	if factory == nil {
		return nil, errors.New("nil model factory")
	}
	workers := plan.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	id := uuid.NewString()
	logger := plan.Config.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	log := logger.WithField("experiment", id)
	log.Infof("starting %d runs on %d workers (base seed %d)", plan.Runs, workers, plan.BaseSeed)

	results := make([]RunResult, plan.Runs)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < plan.Runs; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			res, err := runOne(gctx, plan, factory, i)
			if err != nil {
				return fmt.Errorf("run %d: %w", i, err)
			}
			results[i] = res
			if plan.OnRunDone != nil {
				mu.Lock()
				plan.OnRunDone(res)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Errorf("experiment aborted: %v", err)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", id, err)
	}

	log.Infof("%d runs finished", plan.Runs)
	return &Result{ID: id, Runs: results, Summary: Summarize(results)}, nil
}

func runOne(ctx context.Context, plan Plan, factory Factory, i int) (RunResult, error) {
	model, err := factory(i)
	if err != nil {
		return RunResult{}, fmt.Errorf("building model: %w", err)
	}
	cfg := plan.Config
	cfg.Seed = plan.BaseSeed + int64(i)
	cfg.Sink = nil
	if plan.NewSink != nil {
		cfg.Sink = plan.NewSink(i)
	}
	s, err := sim.NewSimulator(model, cfg)
	if err != nil {
		return RunResult{}, err
	}
	if err := s.RunContext(ctx); err != nil {
		return RunResult{}, err
	}
	return RunResult{Index: i, ID: s.ID, Seed: cfg.Seed, Metrics: s.Metrics}, nil
}
