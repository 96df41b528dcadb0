package sim

import (
	"hash/fnv"
	"math/rand"
)

// SimulationKey is the master seed of a run. The same model run under the
// same key yields the same notifications in the same order.
type SimulationKey int64

// NewSimulationKey wraps seed.
func NewSimulationKey(seed int64) SimulationKey { return SimulationKey(seed) }

// RNG streams. Each randomised decision draws from its own stream.
const (
	SubsystemDurations  = "durations"  // activity, delay, iteration and cancellation samples; master seed
	SubsystemWorkGroups = "workgroups" // shuffling of equal-priority work groups
	SubsystemChoices    = "choices"    // probabilistic branch selection
	SubsystemManagers   = "managers"   // rescan order when RandomNotifyAMs is set
)

// PartitionedRNG hands out one *rand.Rand per stream name, so switching a
// randomised option on leaves the draws of every other stream unchanged.
// The durations stream is seeded with the key itself; any other stream with
// key XOR fnv1a64(name). A run owns its PartitionedRNG; it is not safe for
// concurrent use.
type PartitionedRNG struct {
	key     SimulationKey
	streams map[string]*rand.Rand
}

func NewPartitionedRNG(key SimulationKey) *PartitionedRNG {
	return &PartitionedRNG{key: key, streams: make(map[string]*rand.Rand)}
}

// ForSubsystem returns the stream for name, creating it on first use.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	rng, ok := p.streams[name]
	if !ok {
		rng = rand.New(rand.NewSource(p.seedFor(name)))
		p.streams[name] = rng
	}
	return rng
}

func (p *PartitionedRNG) seedFor(name string) int64 {
	if name == SubsystemDurations {
		return int64(p.key)
	}
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(p.key) ^ int64(h.Sum64())
}

// Key returns the master seed.
func (p *PartitionedRNG) Key() SimulationKey { return p.key }
