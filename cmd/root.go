package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/modelspec"
	"github.com/flowsim/flowsim/sim/trace"
)

// simOptions holds the flags shared by run and experiment.
type simOptions struct {
	modelPath    string // YAML model description
	configPath   string // Optional YAML run configuration
	seed         int64  // Seed for the partitioned RNG
	end          int64  // Overrides the model end timestamp when positive
	logLevel     string // Log verbosity level
	randomNotify bool   // Rescan pending activity managers in random order
	traceLevel   string // Trace capture level (none, activities, all)

	// experiment only
	runs    int
	workers int
}

// settings is the result of merging flags, run config and defaults.
type settings struct {
	cfg    sim.Config
	trace  trace.TraceLevel
	logger *logrus.Logger
}

// rootCmd is the base command for the CLI
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flowsim",
		Short:         "Discrete-event simulator for element flows through shared resources",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(&simOptions{}))
	root.AddCommand(newExperimentCmd(&simOptions{}))
	return root
}

// newRunCmd executes one simulation of a YAML model
func newRunCmd(opts *simOptions) *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Run one simulation of a YAML model",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, opts)
		},
	}
	addSimulationFlags(c, opts)
	return c
}

func addSimulationFlags(c *cobra.Command, opts *simOptions) {
	c.Flags().StringVar(&opts.modelPath, "model", "", "Path to the YAML model description")
	c.Flags().StringVar(&opts.configPath, "config", "", "Path to a YAML run configuration (seed, end, flags, log level, trace)")
	c.Flags().Int64Var(&opts.seed, "seed", 42, "Seed for random variates")
	c.Flags().Int64Var(&opts.end, "end", 0, "End timestamp, overriding the model end when positive")
	c.Flags().StringVar(&opts.logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	c.Flags().BoolVar(&opts.randomNotify, "random-notify", false, "Rescan pending activity managers in random order")
	c.Flags().StringVar(&opts.traceLevel, "trace", "none", "Trace level (none, activities, all)")
}

// resolve merges defaults, the run config file and explicitly set flags, in
// that order of increasing precedence.
func (opts *simOptions) resolve(cmd *cobra.Command) (*settings, error) {
	if opts.modelPath == "" {
		return nil, errors.New("--model is required")
	}
	cfg := sim.DefaultConfig()
	logLevel, traceLevel := opts.logLevel, opts.traceLevel

	if opts.configPath != "" {
		rc, err := sim.LoadRunConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		rc.Apply(&cfg)
		if rc.LogLevel != "" && !cmd.Flags().Changed("log") {
			logLevel = rc.LogLevel
		}
		if rc.Trace != "" && !cmd.Flags().Changed("trace") {
			traceLevel = rc.Trace
		}
	}
	if opts.configPath == "" || cmd.Flags().Changed("seed") {
		cfg.Seed = opts.seed
	}
	if cmd.Flags().Changed("end") {
		if opts.end <= 0 {
			return nil, fmt.Errorf("--end must be positive, got %d", opts.end)
		}
		cfg.EndTs = opts.end
	}
	if cmd.Flags().Changed("random-notify") {
		cfg.RandomNotifyAMs = opts.randomNotify
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	if !trace.IsValidTraceLevel(traceLevel) {
		return nil, fmt.Errorf("unknown trace level %q", traceLevel)
	}

	logger := logrus.New()
	logger.SetOutput(cmd.ErrOrStderr())
	logger.SetLevel(level)
	cfg.Logger = logger
	return &settings{cfg: cfg, trace: trace.TraceLevel(traceLevel), logger: logger}, nil
}

func (s *settings) tracing() bool {
	return s.trace != "" && s.trace != trace.TraceLevelNone
}

func runSimulation(cmd *cobra.Command, opts *simOptions) error {
	s, err := opts.resolve(cmd)
	if err != nil {
		return err
	}
	spec, err := modelspec.LoadModelSpec(opts.modelPath)
	if err != nil {
		return err
	}
	model, err := spec.Build()
	if err != nil {
		return err
	}

	var st *trace.SimulationTrace
	if s.tracing() {
		st = trace.NewSimulationTrace(trace.TraceConfig{Level: s.trace})
		s.cfg.Sink = sim.NewTraceSink(st)
	}
	simulator, err := sim.NewSimulator(model, s.cfg)
	if err != nil {
		return err
	}

	s.logger.Infof("Starting simulation of %q, seed=%d", spec.Description, s.cfg.Seed)
	startTime := time.Now()
	if err := simulator.RunContext(cmd.Context()); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	simulator.Metrics.Fprint(out)
	if st != nil {
		printTraceSummary(out, trace.Summarize(st))
	}
	s.logger.Infof("Simulation complete in %v.", time.Since(startTime))
	return nil
}

func printTraceSummary(w io.Writer, ts *trace.TraceSummary) {
	fmt.Fprintln(w, "=== Trace Summary ===")
	fmt.Fprintf(w, "Activities Recorded  : %d\n", ts.TotalActivities)
	fmt.Fprintf(w, "Resource Changes     : %d\n", ts.ResourceChanges)
	fmt.Fprintf(w, "Completed Activities : %d\n", ts.Activities)
	fmt.Fprintf(w, "Interruptions        : %d\n", ts.Interruptions)
	fmt.Fprintf(w, "Mean Wait            : %.2f ticks (max %d)\n", ts.MeanWait, ts.MaxWait)
	fmt.Fprintf(w, "Resources Used       : %d\n", ts.UniqueResources)
}

// Execute runs the CLI root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Error(err)
		stop()
		os.Exit(1)
	}
}
