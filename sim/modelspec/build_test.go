package modelspec

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/workload"
)

// finished is an element's type and variables captured when it finished.
type finished struct {
	Type string
	Vars sim.Vars
}

// runSpec builds and runs spec, returning the finished elements in finish order.
func runSpec(t *testing.T, spec *ModelSpec) (*sim.Simulator, []finished) {
	t.Helper()
	m, err := spec.Build()
	require.NoError(t, err)
	var s *sim.Simulator
	var done []finished
	cfg := sim.DefaultConfig()
	cfg.Sink = sim.SinkFunc(func(info sim.Info) {
		if info.Kind != sim.InfoElementFinish {
			return
		}
		e := s.Element(info.ElementID)
		require.NotNil(t, e)
		done = append(done, finished{Type: info.ElementType, Vars: e.Vars.Clone()})
	})
	s, err = sim.NewSimulator(m, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run())
	return s, done
}

func constant(v float64) *workload.DistSpec {
	return &workload.DistSpec{Type: "constant", Params: map[string]float64{"value": v}}
}

func TestBuild_Clinic_WiresNodesResourcesAndGenerators(t *testing.T) {
	// GIVEN the parsed clinic model
	spec := parseClinic(t)

	// WHEN it is built
	m, err := spec.Build()

	// THEN nodes take their flow ids and descriptions fall back to ids
	require.NoError(t, err)
	assert.Empty(t, m.ConfigErrors())
	triage := m.NodeByDescription("triage")
	require.NotNil(t, triage)
	assert.Equal(t, sim.KindRequest, triage.Kind())
	assert.Equal(t, 1, triage.Group())
	require.Len(t, triage.Successors(), 1)
	assert.Equal(t, "treat", triage.Successors()[0].Description)
	require.Len(t, m.NodeByDescription("release").Cancellations(), 1)

	require.Len(t, m.ResourceTypes(), 2)
	assert.Equal(t, "Nurse", m.ResourceTypes()[0].Description)
	require.Len(t, m.Resources(), 2)
	assert.Equal(t, "n1", m.Resources()[0].Description)
	assert.Len(t, m.Generators(), 1)
	assert.Len(t, m.RequestSteps(), 1)
}

func TestBuild_Clinic_RunsToCompletion(t *testing.T) {
	// GIVEN the clinic model with an eight hour nurse shift
	spec := parseClinic(t)

	// WHEN it runs
	s, _ := runSpec(t, spec)

	// THEN patients arrive every 20 minutes and the nurse was busy only on shift
	assert.Equal(t, 30, s.Metrics.ElementsCreated)
	assert.Greater(t, s.Metrics.ElementsFinished, 0)
	assert.LessOrEqual(t, s.Metrics.ResourceBusy["n1"], int64(480))
	assert.Zero(t, s.Metrics.CausalityViolations)
	assert.Zero(t, s.Metrics.AccountingErrors)
}

func TestBuild_InvalidSpec_ReturnsValidationError(t *testing.T) {
	spec := parseClinic(t)
	spec.Flows[0].Next = []string{"ghost"}

	_, err := spec.Build()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildUnvalidated_BadSamplersAndCycles_ReturnErrors(t *testing.T) {
	base := func() *ModelSpec {
		return &ModelSpec{
			Unit: "minute", End: 10,
			ResourceTypes: []ResourceTypeSpec{{ID: "x"}},
			Resources:     []ResourceSpec{{ID: "r", Timetable: []TimetableSpec{{Role: "x"}}}},
			ElementTypes:  []ElementTypeSpec{{ID: "e"}},
			Flows: []FlowSpec{
				{ID: "seize", Kind: KindRequest, Group: 1, Next: []string{"wait"},
					WorkGroups: []WorkGroupSpec{{Pairs: []PairSpec{{Type: "x", Count: 1}}, Duration: constant(1)}}},
				{ID: "wait", Kind: KindDelay, Duration: constant(1), Next: []string{"free"}},
				{ID: "free", Kind: KindRelease, Group: 1},
			},
			Generators: []GeneratorSpec{{ElementType: "e", Flow: "seize", Count: 1}},
		}
	}
	unknownDist := &workload.DistSpec{Type: "zipf"}

	tests := []struct {
		name    string
		mutate  func(s *ModelSpec)
		wantErr string
	}{
		{"unknown time unit", func(s *ModelSpec) { s.Unit = "fortnight" }, "fortnight"},
		{"timetable cycle", func(s *ModelSpec) {
			s.Resources[0].Timetable[0].Cycle = workload.CycleSpec{Kind: "table"}
		}, `resource "r" timetable`},
		{"workgroup duration", func(s *ModelSpec) { s.Flows[0].WorkGroups[0].Duration = unknownDist }, `flow "seize" workgroup 0`},
		{"missing delay duration", func(s *ModelSpec) { s.Flows[1].Duration = nil }, "delay needs a duration"},
		{"delay duration", func(s *ModelSpec) { s.Flows[1].Duration = unknownDist }, `flow "wait" duration`},
		{"cancellation", func(s *ModelSpec) {
			s.Flows[2].Cancellations = []CancellationSpec{{Type: "x", Duration: *unknownDist}}
		}, `cancellation of "x"`},
		{"generator cycle", func(s *ModelSpec) { s.Generators[0].Cycle = workload.CycleSpec{Kind: "table"} }, "generator 0"},
		{"unknown kind", func(s *ModelSpec) { s.Flows[2].Kind = "teleport" }, `unknown kind "teleport"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a spec broken past what construction can recover from
			s := base()
			tt.mutate(s)

			// WHEN it is constructed without running Validate first
			m, err := s.build()

			// THEN construction reports the error instead of building nil samplers
			require.Error(t, err)
			assert.Nil(t, m)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	m, err := base().build()
	require.NoError(t, err)
	assert.NotNil(t, m.NodeByDescription("wait"))
}

func TestBuild_SelfBody_Rejected(t *testing.T) {
	// GIVEN a structured flow whose body is itself
	spec := &ModelSpec{
		Unit: "minute", End: 10,
		ElementTypes: []ElementTypeSpec{{ID: "e"}},
		Flows:        []FlowSpec{{ID: "loop", Kind: KindGeneric, Body: "loop"}},
		Generators:   []GeneratorSpec{{ElementType: "e", Flow: "loop", Count: 1}},
	}

	// WHEN it is built
	_, err := spec.Build()

	// THEN construction stops instead of recursing forever
	require.Error(t, err)
	assert.Contains(t, err.Error(), "its own structured body")
}

func TestBuild_ExclusiveGuards_RouteByElementVariable(t *testing.T) {
	// GIVEN two element types with different severities and a guarded choice
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ElementTypes: []ElementTypeSpec{
			{ID: "mild", Vars: map[string]any{"severity": 1}},
			{ID: "acute", Vars: map[string]any{"severity": 3}},
		},
		Flows: []FlowSpec{
			{ID: "route", Kind: KindExclusive, Next: []string{"urgent", "routine"},
				Guards: []*GuardSpec{{Var: "severity", Op: ">=", Value: 2}}},
			{ID: "urgent", Kind: KindSequential, Set: map[string]any{"path": "urgent"}},
			{ID: "routine", Kind: KindSequential, Set: map[string]any{"path": "routine"}},
		},
		Generators: []GeneratorSpec{
			{ElementType: "mild", Flow: "route", Count: 1, Cycle: workload.CycleSpec{Kind: "periodic", Start: 0}},
			{ElementType: "acute", Flow: "route", Count: 1, Cycle: workload.CycleSpec{Kind: "periodic", Start: 1}},
		},
	}

	// WHEN it runs
	s, done := runSpec(t, spec)

	// THEN the guard picks the urgent branch only for the acute element
	paths := map[string]string{}
	for _, e := range done {
		v, ok := e.Vars.Get("path")
		require.True(t, ok)
		paths[e.Type] = v.String()
	}
	assert.Equal(t, map[string]string{"mild": "routine", "acute": "urgent"}, paths)
	assert.Equal(t, 2, s.Metrics.ElementsFinished)
}

func TestBuild_GuardFallsBackToModelVariable(t *testing.T) {
	// GIVEN a precondition on a variable only the model defines
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		Vars:         map[string]any{"open": true},
		ElementTypes: []ElementTypeSpec{{ID: "e"}},
		Flows: []FlowSpec{
			{ID: "enter", Kind: KindSequential, Condition: &GuardSpec{Var: "open", Op: "==", Value: true},
				Set: map[string]any{"entered": true}},
		},
		Generators: []GeneratorSpec{{ElementType: "e", Flow: "enter", Count: 1}},
	}

	// WHEN it runs
	_, done := runSpec(t, spec)

	// THEN the element passed the condition and ran the action
	require.Len(t, done, 1)
	v, ok := done[0].Vars.Get("entered")
	require.True(t, ok)
	assert.True(t, v.Equal(sim.BoolValue(true)))
}

func TestBuild_UnsetGuardVariable_FailsCondition(t *testing.T) {
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ElementTypes: []ElementTypeSpec{{ID: "e"}},
		Flows: []FlowSpec{
			{ID: "enter", Kind: KindSequential, Condition: &GuardSpec{Var: "missing", Op: "!=", Value: 0},
				Set: map[string]any{"entered": true}},
		},
		Generators: []GeneratorSpec{{ElementType: "e", Flow: "enter", Count: 1}},
	}

	_, done := runSpec(t, spec)

	require.Len(t, done, 1)
	_, ok := done[0].Vars.Get("entered")
	assert.False(t, ok)
}

func TestBuild_Loops_CountIterations(t *testing.T) {
	tests := []struct {
		name string
		loop FlowSpec
		want int64
	}{
		{
			name: "while",
			loop: FlowSpec{ID: "loop", Kind: KindWhile, Body: "step",
				Condition: &GuardSpec{Var: "count", Op: "<", Value: 4}},
			want: 4,
		},
		{
			name: "do_while runs the body before testing",
			loop: FlowSpec{ID: "loop", Kind: KindDoWhile, Body: "step",
				Condition: &GuardSpec{Var: "count", Op: "<", Value: 0}},
			want: 1,
		},
		{
			name: "for",
			loop: FlowSpec{ID: "loop", Kind: KindFor, Body: "step", Iterations: constant(3)},
			want: 3,
		},
		{
			name: "generic runs once",
			loop: FlowSpec{ID: "loop", Kind: KindGeneric, Body: "step"},
			want: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// GIVEN a loop whose body increments a counter
			spec := &ModelSpec{
				Unit: "minute", End: 100,
				ElementTypes: []ElementTypeSpec{{ID: "e", Vars: map[string]any{"count": 0}}},
				Flows: []FlowSpec{
					tt.loop,
					{ID: "step", Kind: KindSequential, Add: map[string]any{"count": 1}},
				},
				Generators: []GeneratorSpec{{ElementType: "e", Flow: "loop", Count: 1}},
			}

			// WHEN it runs
			s, done := runSpec(t, spec)

			// THEN the body ran the expected number of times
			require.Len(t, done, 1)
			v, ok := done[0].Vars.Get("count")
			require.True(t, ok)
			assert.Equal(t, tt.want, v.Int())
			assert.Equal(t, 1, s.Metrics.ElementsFinished)
		})
	}
}

func TestBuild_SetThenAdd_AppliesInOrder(t *testing.T) {
	// GIVEN a node that both sets and adds the same variable
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ElementTypes: []ElementTypeSpec{{ID: "e", Vars: map[string]any{"x": 100}}},
		Flows: []FlowSpec{
			{ID: "calc", Kind: KindSequential, Set: map[string]any{"x": 2}, Add: map[string]any{"x": 3}},
		},
		Generators: []GeneratorSpec{{ElementType: "e", Flow: "calc", Count: 1}},
	}

	_, done := runSpec(t, spec)

	// THEN the set lands first and the add applies on top
	require.Len(t, done, 1)
	v, _ := done[0].Vars.Get("x")
	assert.Equal(t, int64(5), v.Int())
}

func TestBuild_ParallelAndMerge_JoinsOnce(t *testing.T) {
	// GIVEN a parallel split into two delays joined by an AND merge
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ElementTypes: []ElementTypeSpec{{ID: "e", Vars: map[string]any{"joined": 0}}},
		Flows: []FlowSpec{
			{ID: "split", Kind: KindParallel, Next: []string{"short", "long"}},
			{ID: "short", Kind: KindDelay, Duration: constant(2), Next: []string{"join"}},
			{ID: "long", Kind: KindDelay, Duration: constant(5), Next: []string{"join"}},
			{ID: "join", Kind: KindANDMerge, Next: []string{"after"}},
			{ID: "after", Kind: KindSequential, Add: map[string]any{"joined": 1}},
		},
		Generators: []GeneratorSpec{{ElementType: "e", Flow: "split", Count: 1}},
	}

	// WHEN it runs
	s, done := runSpec(t, spec)

	// THEN the branch after the merge executes once, when the slower path arrives
	require.Len(t, done, 1)
	v, _ := done[0].Vars.Get("joined")
	assert.Equal(t, int64(1), v.Int())
	assert.Equal(t, 1, s.Metrics.ElementsFinished)
	assert.Equal(t, int64(5), s.Metrics.TotalFlowTime)
}

func TestBuild_Probabilistic_ZeroWeightBranchNeverTaken(t *testing.T) {
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ElementTypes: []ElementTypeSpec{{ID: "e"}},
		Flows: []FlowSpec{
			{ID: "coin", Kind: KindProbabilistic, Next: []string{"heads", "tails"}, Weights: []float64{1, 0}},
			{ID: "heads", Kind: KindSequential, Set: map[string]any{"side": "heads"}},
			{ID: "tails", Kind: KindSequential, Set: map[string]any{"side": "tails"}},
		},
		Generators: []GeneratorSpec{{ElementType: "e", Flow: "coin", Count: 1,
			Cycle: workload.CycleSpec{Kind: "periodic", Start: 0, Period: 1, Iterations: 20}}},
	}

	_, done := runSpec(t, spec)

	require.Len(t, done, 20)
	for _, e := range done {
		v, _ := e.Vars.Get("side")
		assert.Equal(t, "heads", v.String())
	}
}

func TestWorkGroupSpec_YAMLRoundTrip_AcquiresRequestedMultiset(t *testing.T) {
	// GIVEN a work group asking for two doctors and a nurse, serialized and read back
	original := WorkGroupSpec{
		Pairs:    []PairSpec{{Type: "doctor", Count: 2}, {Type: "nurse", Count: 1}},
		Duration: constant(4),
	}
	data, err := yaml.Marshal(original)
	require.NoError(t, err)
	var decoded WorkGroupSpec
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, original, decoded)

	permanent := TimetableSpec{Cycle: workload.CycleSpec{Kind: "periodic", Start: 0}}
	var resources []ResourceSpec
	for _, r := range []struct{ id, role string }{
		{"d1", "doctor"}, {"d2", "doctor"}, {"d3", "doctor"}, {"n1", "nurse"}, {"n2", "nurse"},
	} {
		tt := permanent
		tt.Role = r.role
		resources = append(resources, ResourceSpec{ID: r.id, Timetable: []TimetableSpec{tt}})
	}
	spec := &ModelSpec{
		Unit: "minute", End: 100,
		ResourceTypes: []ResourceTypeSpec{{ID: "doctor"}, {ID: "nurse"}},
		Resources:     resources,
		ElementTypes:  []ElementTypeSpec{{ID: "case"}},
		Flows: []FlowSpec{
			{ID: "board", Kind: KindRequest, Group: 1, WorkGroups: []WorkGroupSpec{decoded}, Next: []string{"free"}},
			{ID: "free", Kind: KindRelease, Group: 1},
		},
		Generators: []GeneratorSpec{{ElementType: "case", Flow: "board", Count: 1}},
	}
	m, err := spec.Build()
	require.NoError(t, err)

	// THEN the built work group describes the same pairs
	wgs := m.NodeByDescription("board").WorkGroups()
	require.Len(t, wgs, 1)
	assert.Equal(t, decoded.Pairs, PairsOf(wgs[0]))

	// WHEN the model runs against the permanent pool
	acquired := map[string]int{}
	cfg := sim.DefaultConfig()
	cfg.Sink = sim.SinkFunc(func(info sim.Info) {
		if info.Kind == sim.InfoResourceAcquired {
			acquired[info.ResourceType]++
		}
	})
	s, err := sim.NewSimulator(m, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Run())

	// THEN exactly the requested multiset of types was seized
	assert.Equal(t, map[string]int{"doctor": 2, "nurse": 1}, acquired)
	assert.Equal(t, 1, s.Metrics.ElementsFinished)
	for _, r := range m.Resources() {
		assert.False(t, r.IsBooked(), fmt.Sprintf("%s still booked", r.Description))
	}
}
