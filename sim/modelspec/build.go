package modelspec

import (
	"fmt"
	"strings"

	"github.com/flowsim/flowsim/sim"
	"github.com/flowsim/flowsim/sim/workload"
)

// Build validates s and constructs a fresh sim.Model. Each flow node
// takes its id as description, so Model.NodeByDescription finds it. Build
// fails when the engine reports configuration errors on the result.
func (s *ModelSpec) Build() (*sim.Model, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model %q: %w", s.Description, err)
	}
	m, err := s.build()
	if err != nil {
		return nil, fmt.Errorf("building model %q: %w", s.Description, err)
	}
	if errs := m.ConfigErrors(); len(errs) > 0 {
		return nil, fmt.Errorf("model %q has %d configuration error(s): %s", s.Description, len(errs), strings.Join(errs, "; "))
	}
	return m, nil
}

// build constructs the model without validating s first.
func (s *ModelSpec) build() (*sim.Model, error) {
	unit, err := sim.ParseTimeUnit(s.Unit)
	if err != nil {
		return nil, err
	}
	m := sim.NewModel(s.Description, unit, s.Start, s.End)
	for name, v := range toVars(s.Vars) {
		m.Vars.Set(name, v)
	}

	b := &builder{
		spec:   s,
		model:  m,
		types:  make(map[string]*sim.ResourceType, len(s.ResourceTypes)),
		flows:  make(map[string]*FlowSpec, len(s.Flows)),
		nodes:  make(map[string]*sim.Node, len(s.Flows)),
		active: make(map[string]bool),
	}
	for _, rt := range s.ResourceTypes {
		b.types[rt.ID] = m.NewResourceType(orID(rt.Description, rt.ID))
	}
	for _, rs := range s.Resources {
		r := m.NewResource(orID(rs.Description, rs.ID))
		for _, tt := range rs.Timetable {
			cycle, err := workload.NewCycle(tt.Cycle)
			if err != nil {
				return nil, fmt.Errorf("resource %q timetable: %w", rs.ID, err)
			}
			d := sim.Infinity
			if tt.Duration != nil {
				d = *tt.Duration
			}
			r.AddTimetableEntry(b.types[tt.Role], cycle, d)
		}
	}
	elementTypes := make(map[string]*sim.ElementType, len(s.ElementTypes))
	for _, es := range s.ElementTypes {
		et := m.NewElementType(orID(es.Description, es.ID), es.Priority)
		for name, v := range toVars(es.Vars) {
			et.Vars.Set(name, v)
		}
		elementTypes[es.ID] = et
	}

	for i := range s.Flows {
		b.flows[s.Flows[i].ID] = &s.Flows[i]
	}
	for i := range s.Flows {
		if _, err := b.node(s.Flows[i].ID); err != nil {
			return nil, err
		}
	}
	for i := range s.Flows {
		b.link(&s.Flows[i])
	}

	for i, g := range s.Generators {
		cycle, err := workload.NewCycle(g.Cycle)
		if err != nil {
			return nil, fmt.Errorf("generator %d: %w", i, err)
		}
		m.NewGenerator(elementTypes[g.ElementType], b.nodes[g.Flow], cycle, g.Count)
	}
	return m, nil
}

type builder struct {
	spec   *ModelSpec
	model  *sim.Model
	types  map[string]*sim.ResourceType
	flows  map[string]*FlowSpec
	nodes  map[string]*sim.Node
	active map[string]bool
}

// node creates the node for id, creating structured bodies first.
func (b *builder) node(id string) (*sim.Node, error) {
	if n, ok := b.nodes[id]; ok {
		return n, nil
	}
	if b.active[id] {
		return nil, fmt.Errorf("flow %q is its own structured body", id)
	}
	b.active[id] = true
	defer delete(b.active, id)

	f, ok := b.flows[id]
	if !ok {
		return nil, fmt.Errorf("unknown flow %q", id)
	}
	m := b.model
	var n *sim.Node
	switch f.Kind {
	case KindSequential:
		n = m.NewSequential(id)
		n.Condition = condition(f.Condition, m)
		n.Action = action(f.Set, f.Add)
	case KindRequest:
		n = m.NewRequest(id, f.Group)
		for i, spec := range f.WorkGroups {
			wg, err := b.workGroup(spec)
			if err != nil {
				return nil, fmt.Errorf("flow %q workgroup %d: %w", id, i, err)
			}
			n.AddWorkGroup(wg)
		}
		n.Priority = f.Priority
		n.Exclusive = f.Exclusive
		n.Interruptible = f.Interruptible
	case KindRelease:
		n = m.NewRelease(id, f.Group)
		for _, c := range f.Cancellations {
			d, err := workload.NewSampler(c.Duration)
			if err != nil {
				return nil, fmt.Errorf("flow %q cancellation of %q: %w", id, c.Type, err)
			}
			n.AddCancellation(b.types[c.Type], d)
		}
	case KindDelay:
		if f.Duration == nil {
			return nil, fmt.Errorf("flow %q: delay needs a duration", id)
		}
		d, err := workload.NewSampler(*f.Duration)
		if err != nil {
			return nil, fmt.Errorf("flow %q duration: %w", id, err)
		}
		n = m.NewDelay(id, d)
	case KindExclusive:
		n = m.NewExclusiveChoice(id)
	case KindMulti:
		n = m.NewMultiChoice(id)
	case KindProbabilistic:
		n = m.NewProbabilisticChoice(id)
	case KindParallel:
		n = m.NewParallel(id)
	case KindThreadSplit:
		n = m.NewThreadSplit(id, f.Clones)
	case KindSimpleMerge:
		n = m.NewMerge(id, sim.MergeSimple)
	case KindANDMerge:
		n = m.NewMerge(id, sim.MergeAND)
		if f.AcceptValue > 0 {
			n.SetAcceptValue(f.AcceptValue)
		}
	case KindORMerge:
		n = m.NewMerge(id, sim.MergeOR)
	case KindThreadMerge:
		n = m.NewThreadMerge(id, f.Arity)
	case KindGeneric, KindWhile, KindDoWhile, KindFor:
		body, err := b.node(f.Body)
		if err != nil {
			return nil, err
		}
		n = m.NewStructured(id, loopKinds[f.Kind], body)
		n.Condition = condition(f.Condition, m)
		if f.Iterations != nil {
			it, err := workload.NewSampler(*f.Iterations)
			if err != nil {
				return nil, fmt.Errorf("flow %q iterations: %w", id, err)
			}
			n.Iterations = it
		}
	default:
		return nil, fmt.Errorf("flow %q: unknown kind %q", id, f.Kind)
	}
	b.nodes[id] = n
	return n, nil
}

var loopKinds = map[string]sim.LoopKind{
	KindGeneric: sim.LoopGeneric,
	KindWhile:   sim.LoopWhile,
	KindDoWhile: sim.LoopDoWhile,
	KindFor:     sim.LoopFor,
}

func (b *builder) link(f *FlowSpec) {
	n := b.nodes[f.ID]
	for i, next := range f.Next {
		succ := b.nodes[next]
		switch f.Kind {
		case KindExclusive, KindMulti:
			var g *GuardSpec
			if i < len(f.Guards) {
				g = f.Guards[i]
			}
			n.LinkIf(succ, condition(g, b.model))
		case KindProbabilistic:
			n.LinkWeighted(succ, f.Weights[i])
		default:
			n.Link(succ)
		}
	}
}

func (b *builder) workGroup(spec WorkGroupSpec) (*sim.WorkGroup, error) {
	wg := sim.NewWorkGroup()
	for _, p := range spec.Pairs {
		wg.Add(b.types[p.Type], p.Count)
	}
	if spec.Duration != nil {
		d, err := workload.NewSampler(*spec.Duration)
		if err != nil {
			return nil, err
		}
		wg.WithDuration(d)
	}
	return wg.WithPriority(spec.Priority).WithCondition(condition(spec.Condition, b.model)), nil
}

// PairsOf describes the (type, count) pairs of wg by resource type description.
func PairsOf(wg *sim.WorkGroup) []PairSpec {
	pairs := wg.Pairs()
	out := make([]PairSpec, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, PairSpec{Type: p.Type.Description, Count: p.Count})
	}
	return out
}

func orID(desc, id string) string {
	if desc != "" {
		return desc
	}
	return id
}
