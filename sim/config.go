package sim

import "github.com/sirupsen/logrus"

// EndCondition decides whether the run stops before advancing to ts.
type EndCondition func(ts int64) bool

// Config groups the per-run settings of a Simulator.
type Config struct {
	Seed int64
	// EndTs overrides the model end when positive.
	EndTs int64
	// RandomNotifyAMs rescans pending activity managers in a random
	// permutation instead of ID order.
	RandomNotifyAMs bool
	// RandomWorkGroupOrder shuffles work groups of equal priority.
	RandomWorkGroupOrder bool
	// Logger receives debug and error output; nil means the standard logger.
	Logger *logrus.Logger
	// Sink receives simulation notifications; nil discards them.
	Sink InfoSink
	// EndCondition replaces the default "ts >= end" test when set.
	EndCondition EndCondition
}

// DefaultConfig returns the settings used when none are given.
func DefaultConfig() Config {
	return Config{
		Seed:                 42,
		RandomWorkGroupOrder: true,
	}
}
