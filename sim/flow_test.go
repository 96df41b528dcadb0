package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(into *[]string, tag string) Action {
	return func(*ElementInstance) { *into = append(*into, tag) }
}

func varIs(name string, want Value) Condition {
	return func(inst *ElementInstance) bool {
		v, ok := inst.Vars().Get(name)
		return ok && v.Equal(want)
	}
}

func runModel(t *testing.T, m *Model) (*Simulator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	sim := newTestSimulator(t, m, sink)
	require.NoError(t, sim.Run())
	return sim, sink
}

func TestExclusiveChoice_FirstTrueGuardWins(t *testing.T) {
	// GIVEN an element of kind "a" and a choice between a guarded and a default branch
	m := NewModel("choice", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	et.Vars.Set("kind", EnumValue("a"))
	var seen []string
	choice := m.NewExclusiveChoice("route")
	a := m.NewSequential("a")
	a.Action = record(&seen, "a")
	b := m.NewSequential("b")
	b.Action = record(&seen, "b")
	choice.LinkIf(a, varIs("kind", EnumValue("a")))
	choice.LinkIf(b, nil)
	m.NewGenerator(et, choice, at(0), 1)

	// WHEN the simulation runs
	sim, _ := runModel(t, m)

	// THEN only the first matching branch executes and the element still finishes
	assert.Equal(t, []string{"a"}, seen)
	assert.Equal(t, 1, sim.Metrics.ElementsFinished)
	assert.Equal(t, 0, sim.LiveInstances())
}

func TestMultiChoice_EveryTrueGuardExecutes(t *testing.T) {
	m := NewModel("multi", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var seen []string
	choice := m.NewMultiChoice("fan")
	for _, tag := range []string{"x", "y", "z"} {
		n := m.NewSequential(tag)
		n.Action = record(&seen, tag)
		var guard Condition
		if tag == "y" {
			guard = func(*ElementInstance) bool { return false }
		}
		choice.LinkIf(n, guard)
	}
	m.NewGenerator(et, choice, at(0), 1)

	sim, _ := runModel(t, m)

	assert.Equal(t, []string{"x", "z"}, seen)
	assert.Equal(t, 1, sim.Metrics.ElementsFinished)
}

func TestProbabilisticChoice_ZeroWeightBranchNeverTaken(t *testing.T) {
	// GIVEN a probabilistic choice weighted 0/1
	m := NewModel("prob", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var seen []string
	choice := m.NewProbabilisticChoice("coin")
	never := m.NewSequential("never")
	never.Action = record(&seen, "never")
	always := m.NewSequential("always")
	always.Action = record(&seen, "always")
	choice.LinkWeighted(never, 0)
	choice.LinkWeighted(always, 1)
	m.NewGenerator(et, choice, at(0), 25)

	// WHEN 25 elements pass
	sim, _ := runModel(t, m)

	// THEN all of them take the weighted branch
	assert.Len(t, seen, 25)
	for _, s := range seen {
		assert.Equal(t, "always", s)
	}
	assert.Equal(t, 25, sim.Metrics.ElementsFinished)
}

func TestParallelWithANDJoin_ContinuesWhenSlowestBranchArrives(t *testing.T) {
	// GIVEN a parallel split into delays of 3 and 7 joined by an AND merge
	m := NewModel("fork", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	split := m.NewParallel("fork")
	join := m.NewMerge("join", MergeAND)
	split.Link(m.NewDelay("short", fixed(3))).Link(join)
	split.Link(m.NewDelay("long", fixed(7))).Link(join)
	var joinedAt []int64
	var sim *Simulator
	done := m.NewSequential("done")
	done.Action = func(*ElementInstance) { joinedAt = append(joinedAt, sim.Clock) }
	join.Link(done)
	m.NewGenerator(et, split, at(0), 1)
	sink := &recordingSink{}
	sim = newTestSimulator(t, m, sink)

	// WHEN the simulation runs
	require.NoError(t, sim.Run())

	// THEN the join passes once, at 7, and the element finishes there
	assert.Equal(t, []int64{7}, joinedAt)
	assert.Equal(t, []int64{7}, sink.clocks(InfoElementFinish))
	assert.Equal(t, 0, sim.OpenMerges())
}

func TestThreadSplit_ClonesJoinedByThreadMerge(t *testing.T) {
	m := NewModel("threads", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var clones, joined []string
	split := m.NewThreadSplit("split", 3)
	work := m.NewSequential("work")
	work.Action = record(&clones, "clone")
	join := m.NewThreadMerge("join", 3)
	after := m.NewSequential("after")
	after.Action = record(&joined, "joined")
	split.Link(work).Link(m.NewDelay("wait", fixed(2))).Link(join).Link(after)
	m.NewGenerator(et, split, at(0), 1)

	sim, sink := runModel(t, m)

	assert.Len(t, clones, 3)
	assert.Equal(t, []string{"joined"}, joined)
	assert.Equal(t, []int64{2}, sink.clocks(InfoElementFinish))
	assert.Equal(t, 0, sim.LiveInstances())
}

func TestSequential_FailedPrecondition_DeadTokenSkipsDownstreamWork(t *testing.T) {
	// GIVEN a failing precondition ahead of a request for a type nobody plays
	m := NewModel("precondition", Minute, 0, 100)
	x := m.NewResourceType("X")
	et := m.NewElementType("E", 0)
	gate := m.NewSequential("gate")
	gate.Condition = func(*ElementInstance) bool { return false }
	var ran []string
	gate.Action = record(&ran, "gate")
	req := m.NewRequest("seize", 1, NewWorkGroup(Pair(x, 1)))
	gate.Link(req).Link(m.NewDelay("work", fixed(50))).Link(m.NewRelease("free", 1))
	m.NewGenerator(et, gate, at(0), 1)

	// WHEN the simulation runs
	sim, sink := runModel(t, m)

	// THEN nothing blocks: the element finishes at once without seizing
	assert.Empty(t, ran)
	assert.Equal(t, []int64{0}, sink.clocks(InfoElementFinish))
	assert.Equal(t, 0, sink.count(InfoActivityRequest))
	assert.Equal(t, 0, sim.Metrics.QueuedAtEnd)
	assert.Equal(t, 0, sim.Metrics.AccountingErrors)
}

func TestStructuredFor_RunsBodySampledTimes(t *testing.T) {
	// GIVEN a for loop of 3 iterations over a 2-tick body
	m := NewModel("for", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var iterations []string
	body := m.NewSequential("count")
	body.Action = record(&iterations, "iter")
	body.Link(m.NewDelay("step", fixed(2)))
	loop := m.NewStructured("repeat", LoopFor, body)
	loop.Iterations = fixed(3)
	m.NewGenerator(et, loop, at(0), 1)

	// WHEN the simulation runs
	sim, sink := runModel(t, m)

	// THEN the body ran three times back to back
	assert.Len(t, iterations, 3)
	assert.Equal(t, []int64{6}, sink.clocks(InfoElementFinish))
	assert.Equal(t, 0, sim.LiveInstances())
}

func TestStructuredWhile_ChecksConditionBeforeEachIteration(t *testing.T) {
	m := NewModel("while", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	et.Vars.Set("n", IntValue(0))
	body := m.NewSequential("inc")
	body.Action = func(inst *ElementInstance) {
		v, _ := inst.Vars().Get("n")
		inst.Vars().Set("n", v.Add(IntValue(1)))
	}
	body.Link(m.NewDelay("step", fixed(1)))
	loop := m.NewStructured("while n<2", LoopWhile, body)
	loop.Condition = func(inst *ElementInstance) bool {
		v, _ := inst.Vars().Get("n")
		return v.Int() < 2
	}
	var final int64
	after := m.NewSequential("after")
	after.Action = func(inst *ElementInstance) {
		v, _ := inst.Vars().Get("n")
		final = v.Int()
	}
	loop.Link(after)
	m.NewGenerator(et, loop, at(0), 1)

	_, sink := runModel(t, m)

	assert.Equal(t, int64(2), final)
	assert.Equal(t, []int64{2}, sink.clocks(InfoElementFinish))
}

func TestStructuredDoWhile_RunsBodyAtLeastOnce(t *testing.T) {
	m := NewModel("do-while", Minute, 0, 100)
	et := m.NewElementType("E", 0)
	var iterations []string
	body := m.NewSequential("once")
	body.Action = record(&iterations, "iter")
	loop := m.NewStructured("do", LoopDoWhile, body)
	loop.Condition = func(*ElementInstance) bool { return false }
	m.NewGenerator(et, loop, at(0), 1)

	sim, _ := runModel(t, m)

	assert.Len(t, iterations, 1)
	assert.Equal(t, 1, sim.Metrics.ElementsFinished)
}

func TestInterruptibleActivity_ResumesWithRemainingFraction(t *testing.T) {
	// GIVEN a resource playing X during [0,5) and from 8 on, and a 10-tick
	// interruptible activity started at 0
	m := NewModel("interrupt", Minute, 0, 100)
	x := m.NewResourceType("X")
	m.NewResource("r1").
		AddTimetableEntry(x, at(0), 5).
		AddTimetableEntry(x, at(8), Infinity)
	et := m.NewElementType("E", 0)
	req := m.NewRequest("treat", 1, NewWorkGroup(Pair(x, 1)).WithDuration(fixed(10)))
	req.Interruptible = true
	req.Link(m.NewRelease("free", 1))
	m.NewGenerator(et, req, at(0), 1)

	// WHEN the simulation runs
	_, sink := runModel(t, m)

	// THEN the activity stops at 5 with half its work left and ends at 8+5
	interrupts := sink.of(InfoActivityInterrupt)
	require.Len(t, interrupts, 1)
	assert.Equal(t, int64(5), interrupts[0].Clock)
	assert.InDelta(t, 0.5, interrupts[0].Value, 1e-9)
	assert.Equal(t, []int64{0}, sink.clocks(InfoActivityStart))
	assert.Equal(t, []int64{8}, sink.clocks(InfoActivityResume))
	assert.Equal(t, []int64{13}, sink.clocks(InfoActivityEnd))
	assert.Equal(t, []int64{13}, sink.clocks(InfoElementFinish))
}

func TestNonInterruptibleActivity_RunsToCompletionOnTimedOutResource(t *testing.T) {
	m := NewModel("no interrupt", Minute, 0, 100)
	x := m.NewResourceType("X")
	r := m.NewResource("r1").
		AddTimetableEntry(x, at(0), 5).
		AddTimetableEntry(x, at(8), Infinity)
	et := m.NewElementType("E", 0)
	req := m.NewRequest("treat", 1, NewWorkGroup(Pair(x, 1)).WithDuration(fixed(10)))
	req.Link(m.NewRelease("free", 1))
	m.NewGenerator(et, req, at(0), 1)
	sink := &recordingSink{}
	sim := newTestSimulator(t, m, sink)
	var timedOut bool
	sim.ScheduleFunc(6, func(*Simulator) { timedOut = r.IsTimedOut() })

	require.NoError(t, sim.Run())

	assert.True(t, timedOut)
	assert.Equal(t, 0, sink.count(InfoActivityInterrupt))
	assert.Equal(t, []int64{10}, sink.clocks(InfoActivityEnd))
	assert.False(t, r.IsTimedOut())
	assert.True(t, x.IsAvailable(r))
}

func TestRoleOff_SeizingInstanceEnded_DoesNotInterruptRecycledSlot(t *testing.T) {
	// GIVEN element A that seizes the nurse until 50, then forks so the
	// seizing instance ends while A still holds the nurse
	m := NewModel("recycled slot", Minute, 0, 300)
	nurseRole := m.NewResourceType("Nurse")
	roomRole := m.NewResourceType("Room")
	nurse := m.NewResource("nurse").AddTimetableEntry(nurseRole, at(0), 50)
	m.NewResource("room").AddTimetableEntry(roomRole, permanent(), Infinity)

	holder := m.NewElementType("A", 0)
	seize := m.NewRequest("seize nurse", 1, NewWorkGroup(Pair(nurseRole, 1)).WithDuration(fixed(1)))
	fork := m.NewParallel("fork")
	seize.Link(fork)
	fork.Link(m.NewDelay("stay", fixed(100))).Link(m.NewRelease("free nurse", 1))
	fork.Link(m.NewSequential("noop"))
	m.NewGenerator(holder, seize, at(0), 1)

	// AND element B that starts later on an interruptible room activity,
	// reusing the arena slots A freed
	visitor := m.NewElementType("B", 0)
	room := m.NewRequest("room", 2, NewWorkGroup(Pair(roomRole, 1)).WithDuration(fixed(100)))
	room.Interruptible = true
	room.Link(m.NewRelease("free room", 2))
	m.NewGenerator(visitor, room, at(2), 1)

	sink := &recordingSink{}
	sim := newTestSimulator(t, m, sink)
	var nurseTimedOut bool
	sim.ScheduleFunc(60, func(*Simulator) { nurseTimedOut = nurse.IsTimedOut() })

	// WHEN the nurse stops playing its role at 50
	require.NoError(t, sim.Run())

	// THEN the room activity never held the nurse and is not interrupted
	assert.True(t, nurseTimedOut, "the nurse stays timed out until A releases it")
	assert.Equal(t, 0, sink.count(InfoActivityInterrupt))
	assert.Equal(t, []int64{0, 2}, sink.clocks(InfoActivityStart))
	assert.Equal(t, []int64{1, 102}, sink.clocks(InfoActivityEnd))
	assert.Equal(t, 2, sim.Metrics.ElementsFinished)
	assert.Equal(t, 0, sim.Metrics.AccountingErrors)
}

func TestRoleOff_OwnerMovedToAnotherStep_OnlyTimesOut(t *testing.T) {
	// GIVEN an instance that seizes X, then waits on an interruptible Y step
	// while still holding X
	m := NewModel("moved on", Minute, 0, 100)
	x := m.NewResourceType("X")
	y := m.NewResourceType("Y")
	rx := m.NewResource("rx").AddTimetableEntry(x, at(0), 5)
	m.NewResource("ry").AddTimetableEntry(y, permanent(), Infinity)
	et := m.NewElementType("E", 0)
	first := m.NewRequest("first", 1, NewWorkGroup(Pair(x, 1)).WithDuration(fixed(1)))
	second := m.NewRequest("second", 2, NewWorkGroup(Pair(y, 1)).WithDuration(fixed(10)))
	second.Interruptible = true
	first.Link(second).Link(m.NewRelease("free y", 2)).Link(m.NewRelease("free x", 1))
	m.NewGenerator(et, first, at(0), 1)

	sink := &recordingSink{}
	sim := newTestSimulator(t, m, sink)
	var timedOut bool
	sim.ScheduleFunc(6, func(*Simulator) { timedOut = rx.IsTimedOut() })

	// WHEN X goes off shift during the Y activity
	require.NoError(t, sim.Run())

	// THEN the Y activity is untouched and X is only marked timed out
	assert.True(t, timedOut)
	assert.Equal(t, 0, sink.count(InfoActivityInterrupt))
	assert.Equal(t, []int64{1, 11}, sink.clocks(InfoActivityEnd))
	assert.Equal(t, []int64{11}, sink.clocks(InfoElementFinish))
}

func TestExclusiveSteps_ShareOnePresentialSlot(t *testing.T) {
	// GIVEN two parallel exclusive activities on independent resources
	m := NewModel("presential", Minute, 0, 100)
	x := m.NewResourceType("X")
	y := m.NewResourceType("Y")
	m.NewResource("rx").AddTimetableEntry(x, permanent(), Infinity)
	m.NewResource("ry").AddTimetableEntry(y, permanent(), Infinity)
	et := m.NewElementType("E", 0)
	split := m.NewParallel("both")
	first := m.NewRequest("first", 1, NewWorkGroup(Pair(x, 1)).WithDuration(fixed(10)))
	first.Exclusive = true
	second := m.NewRequest("second", 2, NewWorkGroup(Pair(y, 1)).WithDuration(fixed(10)))
	second.Exclusive = true
	split.Link(first).Link(m.NewRelease("free x", 1))
	split.Link(second).Link(m.NewRelease("free y", 2))
	m.NewGenerator(et, split, at(0), 1)

	// WHEN the simulation runs
	sim, sink := runModel(t, m)

	// THEN the second activity waits for the first one's release
	acquired := sink.of(InfoResourceAcquired)
	require.Len(t, acquired, 2)
	assert.Equal(t, "rx", acquired[0].Resource)
	assert.Equal(t, int64(0), acquired[0].Clock)
	assert.Equal(t, "ry", acquired[1].Resource)
	assert.Equal(t, int64(10), acquired[1].Clock)
	assert.Equal(t, []int64{20}, sink.clocks(InfoElementFinish))
	assert.Equal(t, 2, len(sim.Managers))
}

func TestWorkGroups_PriorityAndConditionSelectGroup(t *testing.T) {
	// GIVEN a preferred group whose condition fails and a fallback group
	m := NewModel("groups", Minute, 0, 100)
	x := m.NewResourceType("X")
	y := m.NewResourceType("Y")
	m.NewResource("rx").AddTimetableEntry(x, permanent(), Infinity)
	m.NewResource("ry").AddTimetableEntry(y, permanent(), Infinity)
	et := m.NewElementType("E", 0)
	preferred := NewWorkGroup(Pair(x, 1)).WithPriority(0).WithCondition(func(*ElementInstance) bool { return false })
	fallback := NewWorkGroup(Pair(y, 1)).WithPriority(1)
	req := m.NewRequest("seize", 1, fallback, preferred)
	req.Link(m.NewRelease("free", 1))
	m.NewGenerator(et, req, at(0), 1)

	// WHEN the simulation runs
	_, sink := runModel(t, m)

	// THEN the fallback resource is used
	acquired := sink.of(InfoResourceAcquired)
	require.Len(t, acquired, 1)
	assert.Equal(t, "ry", acquired[0].Resource)
}

func TestWorkGroups_AllConditionsFalse_QueuesWithoutMarkingInfeasible(t *testing.T) {
	m := NewModel("blocked", Minute, 0, 100)
	x := m.NewResourceType("X")
	m.NewResource("rx").AddTimetableEntry(x, permanent(), Infinity)
	et := m.NewElementType("E", 0)
	wg := NewWorkGroup(Pair(x, 1)).WithCondition(func(*ElementInstance) bool { return false })
	req := m.NewRequest("seize", 1, wg)
	req.Link(m.NewRelease("free", 1))
	m.NewGenerator(et, req, at(1), 1)

	sim, sink := runModel(t, m)

	assert.Equal(t, 0, sink.count(InfoResourceAcquired))
	assert.Equal(t, 1, sim.Metrics.QueuedAtEnd)
	assert.True(t, sim.ManagerOf(req).StillFeasible(req))
}
