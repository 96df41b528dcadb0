package sim

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mergeFixture struct {
	sim   *Simulator
	merge *Node
	after *Node
	elem  *Element
	root  *ElementInstance
}

func newMergeFixture(t *testing.T, kind MergeKind, branches int) *mergeFixture {
	t.Helper()
	m := NewModel("merge", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var merge *Node
	if kind == MergeThread {
		merge = m.NewThreadMerge("join", branches)
	} else {
		merge = m.NewMerge("join", kind)
	}
	for i := 0; i < branches; i++ {
		m.NewSequential(fmt.Sprintf("branch %d", i)).Link(merge)
	}
	after := m.NewSequential("after")
	merge.Link(after)
	sim := newTestSimulator(t, m, nil)
	elem := newElement(1, et, nil, 0)
	sim.elements[elem.id] = elem
	root := sim.newInstance(elem, NoInstance, NewWorkToken(true))
	// keeps the root alive while branches come and go
	sim.newInstance(elem, root.ID, NewWorkToken(true))
	return &mergeFixture{sim: sim, merge: merge, after: after, elem: elem, root: root}
}

// arrive delivers one branch at ts and returns the instances the merge emitted.
func (f *mergeFixture) arrive(t *testing.T, ts int64, executable bool) []*ElementInstance {
	t.Helper()
	f.sim.Clock = ts
	inst := f.sim.newInstance(f.elem, f.root.ID, NewWorkToken(executable))
	f.sim.arrive(inst, f.merge)
	var out []*ElementInstance
	for _, ev := range f.sim.EventQueue.PopReady(ts) {
		rf, ok := ev.(*RequestFlowEvent)
		require.True(t, ok, "unexpected event %T", ev)
		assert.Same(t, f.after, rf.Flow)
		out = append(out, f.sim.Instance(rf.Instance))
	}
	return out
}

func TestMerge_ANDJoinNeverReachingThreshold_EmitsOneDeadInstanceAndResets(t *testing.T) {
	// GIVEN an AND join with 3 branches and accept value 3
	f := newMergeFixture(t, MergeAND, 3)
	f.merge.SetAcceptValue(3)

	// WHEN branches arrive true at 1, false at 2, true at 3
	first := f.arrive(t, 1, true)
	second := f.arrive(t, 2, false)
	third := f.arrive(t, 3, true)

	// THEN nothing passes until the round closes with a single dead instance
	assert.Empty(t, first)
	assert.Empty(t, second)
	require.Len(t, third, 1)
	assert.False(t, third[0].IsExecutable())

	// THEN the control structure is gone and a fresh round can pass
	assert.Equal(t, 0, f.sim.OpenMerges())
	assert.Empty(t, f.arrive(t, 4, true))
	assert.Empty(t, f.arrive(t, 5, true))
	again := f.arrive(t, 6, true)
	require.Len(t, again, 1)
	assert.True(t, again[0].IsExecutable())
	assert.Equal(t, 0, f.sim.OpenMerges())
}

func TestMerge_ANDJoinBelowIncoming_PassesOncePerRound(t *testing.T) {
	// GIVEN an AND join with 3 branches accepting 2 executable arrivals
	f := newMergeFixture(t, MergeAND, 3)
	f.merge.SetAcceptValue(2)

	// WHEN true, true, false arrive
	a := f.arrive(t, 1, true)
	b := f.arrive(t, 2, true)
	c := f.arrive(t, 3, false)

	// THEN exactly one executable instance leaves, on the second arrival
	assert.Empty(t, a)
	require.Len(t, b, 1)
	assert.True(t, b[0].IsExecutable())
	assert.Empty(t, c, "a round that passed emits no dead instance")
	assert.Equal(t, 0, f.sim.OpenMerges())
}

func TestMerge_AllFalseArrivals_EmitOneDeadInstance(t *testing.T) {
	for _, kind := range []MergeKind{MergeSimple, MergeAND, MergeOR} {
		t.Run(fmt.Sprintf("kind %d", kind), func(t *testing.T) {
			// GIVEN a merge with 2 branches
			f := newMergeFixture(t, kind, 2)

			// WHEN both branches arrive dead
			a := f.arrive(t, 1, false)
			b := f.arrive(t, 1, false)

			// THEN the node still emits exactly one instance
			assert.Empty(t, a)
			require.Len(t, b, 1)
			assert.False(t, b[0].IsExecutable())
		})
	}
}

func TestMerge_SimpleMerge_DeduplicatesSameTickArrivals(t *testing.T) {
	// GIVEN a simple merge with 3 branches
	f := newMergeFixture(t, MergeSimple, 3)

	// WHEN two executable branches arrive at 1 and a third at 2
	a := f.arrive(t, 1, true)
	b := f.arrive(t, 1, true)
	c := f.arrive(t, 2, true)

	// THEN the first pass at each timestamp goes through
	assert.Len(t, a, 1)
	assert.Empty(t, b)
	assert.Len(t, c, 1)
}

func TestMerge_ORJoin_PassesOnceAllArrivedWithOneTrue(t *testing.T) {
	f := newMergeFixture(t, MergeOR, 3)
	assert.Empty(t, f.arrive(t, 1, false))
	assert.Empty(t, f.arrive(t, 2, true))
	out := f.arrive(t, 3, false)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsExecutable())
}

func TestMerge_ThreadMerge_JoinsArityClones(t *testing.T) {
	f := newMergeFixture(t, MergeThread, 3)
	assert.Empty(t, f.arrive(t, 1, true))
	assert.Empty(t, f.arrive(t, 1, true))
	out := f.arrive(t, 2, true)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsExecutable())
}

func TestMerge_ControlIsScopedPerElement(t *testing.T) {
	// GIVEN an AND join and two elements
	f := newMergeFixture(t, MergeAND, 2)
	other := newElement(2, f.elem.Type, nil, 0)
	f.sim.elements[other.id] = other
	otherRoot := f.sim.newInstance(other, NoInstance, NewWorkToken(true))
	f.sim.newInstance(other, otherRoot.ID, NewWorkToken(true))

	// WHEN one branch of each element arrives
	f.arrive(t, 1, true)
	inst := f.sim.newInstance(other, otherRoot.ID, NewWorkToken(true))
	f.sim.arrive(inst, f.merge)

	// THEN neither passes and two rounds are open
	assert.Empty(t, f.sim.EventQueue.PopReady(1))
	assert.Equal(t, 2, f.sim.OpenMerges())
}
