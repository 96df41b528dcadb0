package cmd

import (
	"fmt"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/experiment"
	"github.com/flowsim/flowsim/sim/modelspec"
	"github.com/flowsim/flowsim/sim/trace"
)

// newExperimentCmd runs seeded replications of a YAML model on a worker pool
func newExperimentCmd(opts *simOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "experiment",
		Short: "Run independent replications of a YAML model and summarize them",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExperiment(cmd, opts)
		},
	}
	addSimulationFlags(c, opts)
	c.Flags().IntVar(&opts.runs, "runs", 10, "Number of replications; run i uses seed+i")
	c.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent runs (0 = one per CPU)")
	return c
}

func runExperiment(cmd *cobra.Command, opts *simOptions) error {
	s, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	if opts.runs <= 0 {
		return fmt.Errorf("--runs must be positive, got %d", opts.runs)
	}
	spec, err := modelspec.LoadModelSpec(opts.modelPath)
	if err != nil {
		return err
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("invalid model %q: %w", spec.Description, err)
	}

	var traces []*trace.SimulationTrace
	plan := experiment.Plan{
		Runs:     opts.runs,
		Workers:  opts.workers,
		BaseSeed: s.cfg.Seed,
		Config:   s.cfg,
	}
	if s.tracing() {
		traces = make([]*trace.SimulationTrace, opts.runs)
		for i := range traces {
			traces[i] = trace.NewSimulationTrace(trace.TraceConfig{Level: s.trace})
		}
		plan.NewSink = func(run int) sim.InfoSink { return sim.NewTraceSink(traces[run]) }
	}

	bar := progressbar.NewOptions(opts.runs,
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("replications"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
	plan.OnRunDone = func(experiment.RunResult) { _ = bar.Add(1) }

	startTime := time.Now()
	res, err := experiment.Run(cmd.Context(), plan, func(int) (*sim.Model, error) { return spec.Build() })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	res.Summary.Fprint(out)
	if traces != nil {
		fmt.Fprintln(out, "=== Trace Summary per Run ===")
		for i, r := range res.Runs {
			ts := trace.Summarize(traces[i])
			fmt.Fprintf(out, "  run %-4d seed=%-6d activities=%-6d interruptions=%-4d mean_wait=%.2f\n",
				i, r.Seed, ts.Activities, ts.Interruptions, ts.MeanWait)
		}
	}
	s.logger.Infof("Experiment %s complete in %v.", res.ID, time.Since(startTime))
	return nil
}
