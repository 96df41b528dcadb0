package sim

import (
	"math/rand"

	"github.com/flowsim/flowsim/sim/workload"
)

// Sampler draws a duration, iteration count or cancellation length. The
// engine rounds samples to whole ticks; negative or NaN samples become zero.
type Sampler interface {
	Sample(rng *rand.Rand) float64
}

// Cycle produces activation timestamps within a window.
type Cycle interface {
	Iterator(start, end int64) CycleIterator
}

// CycleIterator yields increasing timestamps and -1 once exhausted.
type CycleIterator = workload.CycleIterator
