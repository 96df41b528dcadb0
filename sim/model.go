package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Model is the static description of a simulation: resource types,
// resources, element types, generators and the flow graph. Construction
// errors are logged and counted rather than returned so that one pass can
// surface all of them; see ConfigErrors.
//
// A Model carries run state on its resources and types and can be bound to
// a single Simulator.
type Model struct {
	Description string
	Unit        TimeUnit
	StartTs     int64
	EndTs       int64
	// Vars are model-level variables visible to guards and actions.
	Vars Vars

	resourceTypes []*ResourceType
	resources     []*Resource
	elementTypes  []*ElementType
	generators    []*Generator
	nodes         []*Node

	log          *logrus.Entry
	configErrors []string
	bound        bool
}

// NewModel creates an empty model spanning [start, end) in the given unit.
func NewModel(desc string, unit TimeUnit, start, end int64) *Model {
	m := &Model{
		Description: desc,
		Unit:        unit,
		StartTs:     start,
		EndTs:       end,
		Vars:        make(Vars),
		log:         logrus.WithField("model", desc),
	}
	if end <= start {
		m.configError("end %d must be after start %d", end, start)
	}
	return m
}

// SetLogger redirects construction-time diagnostics.
func (m *Model) SetLogger(l *logrus.Logger) {
	if l != nil {
		m.log = l.WithField("model", m.Description)
	}
}

func (m *Model) configError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	m.configErrors = append(m.configErrors, msg)
	m.log.Errorf("configuration error: %s", msg)
}

// ConfigErrors returns the configuration errors recorded so far.
func (m *Model) ConfigErrors() []string {
	out := make([]string, len(m.configErrors))
	copy(out, m.configErrors)
	return out
}

func (m *Model) ResourceTypes() []*ResourceType { return m.resourceTypes }
func (m *Model) Resources() []*Resource         { return m.resources }
func (m *Model) ElementTypes() []*ElementType   { return m.elementTypes }
func (m *Model) Generators() []*Generator       { return m.generators }
func (m *Model) Nodes() []*Node                 { return m.nodes }

// RequestSteps returns the resource-requesting nodes in creation order.
func (m *Model) RequestSteps() []*Node {
	var steps []*Node
	for _, n := range m.nodes {
		if n.kind == KindRequest {
			steps = append(steps, n)
		}
	}
	return steps
}

// NewResourceType registers a role.
func (m *Model) NewResourceType(desc string) *ResourceType {
	rt := &ResourceType{id: len(m.resourceTypes) + 1, Description: desc}
	m.resourceTypes = append(m.resourceTypes, rt)
	return rt
}

// NewResource registers a resource with an empty timetable.
func (m *Model) NewResource(desc string) *Resource {
	r := &Resource{id: len(m.resources) + 1, Description: desc}
	m.resources = append(m.resources, r)
	return r
}

// NewElementType registers an element type with the given queue priority.
func (m *Model) NewElementType(desc string, priority int) *ElementType {
	et := &ElementType{id: len(m.elementTypes) + 1, Description: desc, Priority: priority, Vars: make(Vars)}
	m.elementTypes = append(m.elementTypes, et)
	return et
}

// NewGenerator creates count elements of et at every activation of cycle.
func (m *Model) NewGenerator(et *ElementType, initial *Node, cycle Cycle, count int) *Generator {
	if et == nil {
		m.configError("generator: nil element type")
	}
	if cycle == nil {
		m.configError("generator for %v: nil cycle", et)
	}
	if count <= 0 {
		m.configError("generator for %v: count must be positive, got %d", et, count)
	}
	g := &Generator{Type: et, InitialFlow: initial, Cycle: cycle, Count: count}
	m.generators = append(m.generators, g)
	return g
}

// NodeByDescription finds the first node with desc; nil if none.
func (m *Model) NodeByDescription(desc string) *Node {
	for _, n := range m.nodes {
		if n.Description == desc {
			return n
		}
	}
	return nil
}

// checkGraph reports structural problems found once the graph is complete.
func (m *Model) checkGraph() {
	for _, n := range m.nodes {
		switch n.kind {
		case KindRequest:
			if len(n.workGroups) == 0 {
				m.configError("%s: request without work groups", n)
			}
		case KindExclusiveChoice, KindMultiChoice, KindProbabilistic, KindParallel:
			if len(n.successors) == 0 {
				m.configError("%s: split without branches", n)
			}
		case KindMerge:
			if n.mergeKind == MergeAND && n.acceptValue > n.incoming {
				m.configError("%s: accept value %d exceeds %d incoming branches", n, n.acceptValue, n.incoming)
			}
		case KindStructured:
			if (n.loop == LoopWhile || n.loop == LoopDoWhile) && n.Condition == nil {
				m.configError("%s: loop without condition", n)
			}
			if n.loop == LoopFor && n.Iterations == nil {
				m.configError("%s: for loop without iteration count", n)
			}
		}
	}
}
