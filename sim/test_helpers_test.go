package sim

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flowsim/flowsim/sim/workload"
)

// recordingSink keeps every notification in order.
type recordingSink struct {
	infos []Info
}

func (s *recordingSink) Notify(info Info) {
	s.infos = append(s.infos, info)
}

func (s *recordingSink) of(kind InfoKind) []Info {
	var out []Info
	for _, i := range s.infos {
		if i.Kind == kind {
			out = append(out, i)
		}
	}
	return out
}

func (s *recordingSink) clocks(kind InfoKind) []int64 {
	var out []int64
	for _, i := range s.of(kind) {
		out = append(out, i.Clock)
	}
	return out
}

func (s *recordingSink) count(kind InfoKind) int {
	return len(s.of(kind))
}

// permanent activates once at zero; paired with an Infinity duration the role never ends.
func permanent() Cycle { return workload.PeriodicCycle{Start: 0} }

func periodic(start, period int64) Cycle {
	return workload.PeriodicCycle{Start: start, Period: period}
}

func at(ts ...int64) Cycle { return workload.TableCycle{Timestamps: ts} }

func fixed(v float64) Sampler { return workload.Constant(v) }

func newTestSimulator(t *testing.T, m *Model, sink InfoSink) *Simulator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Sink = sink
	sim, err := NewSimulator(m, cfg)
	require.NoError(t, err)
	return sim
}

// makeAvailable puts r in the indices of types without running any event.
func makeAvailable(r *Resource, types ...*ResourceType) {
	for _, rt := range types {
		r.activateRole(rt)
		rt.addAvailable(r)
	}
}

// singleRoleModel is one resource permanently playing X and the flow
// request(1 x X) -> delay(d) -> release.
func singleRoleModel(d float64) (*Model, *ResourceType, *Resource, *ElementType, *Node) {
	m := NewModel("single role", Minute, 0, 1000)
	x := m.NewResourceType("X")
	r := m.NewResource("r1").AddTimetableEntry(x, permanent(), Infinity)
	et := m.NewElementType("E", 0)
	req := m.NewRequest("seize", 1, NewWorkGroup(Pair(x, 1)))
	req.Link(m.NewDelay("work", fixed(d))).Link(m.NewRelease("free", 1))
	return m, x, r, et, req
}
