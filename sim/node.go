package sim

import "fmt"

// NodeKind tags the variant a flow Node implements.
type NodeKind int

const (
	KindSequential NodeKind = iota
	KindRequest
	KindRelease
	KindDelay
	KindExclusiveChoice
	KindMultiChoice
	KindProbabilistic
	KindParallel
	KindThreadSplit
	KindMerge
	KindStructured
)

var kindNames = [...]string{
	KindSequential:      "sequential",
	KindRequest:         "request",
	KindRelease:         "release",
	KindDelay:           "delay",
	KindExclusiveChoice: "exclusive",
	KindMultiChoice:     "multi",
	KindProbabilistic:   "probabilistic",
	KindParallel:        "parallel",
	KindThreadSplit:     "thread_split",
	KindMerge:           "merge",
	KindStructured:      "structured",
}

func (k NodeKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("NodeKind(%d)", int(k))
	}
	return kindNames[k]
}

// MergeKind selects the pass rule of a merge node.
type MergeKind int

const (
	// MergeSimple passes every executable arrival newer than its last pass.
	MergeSimple MergeKind = iota
	// MergeAND passes once when the executable arrivals reach the accept value.
	MergeAND
	// MergeOR passes once all branches arrived if at least one was executable.
	MergeOR
	// MergeThread joins the clones of a thread split.
	MergeThread
)

// LoopKind selects how a structured node repeats its body.
type LoopKind int

const (
	LoopGeneric LoopKind = iota
	LoopWhile
	LoopDoWhile
	LoopFor
)

// Action runs on executable instances passing a sequential node.
type Action func(inst *ElementInstance)

// Cancellation is an unavailability period applied, on release, to resources
// that were booked as Type.
type Cancellation struct {
	Type     *ResourceType
	Duration Sampler
}

// Node is a flow-graph step. Nodes are built once per model and hold no
// per-instance state; the kind-specific fields below are only meaningful for
// the kinds noted.
type Node struct {
	id          int
	kind        NodeKind
	Description string
	model       *Model

	successors []*Node
	incoming   int

	// Condition is the precondition of a sequential node or the guard of a
	// while/do-while loop.
	Condition Condition
	// Action runs when an executable instance passes a sequential node.
	Action Action

	// request
	group      int
	workGroups []*WorkGroup
	Priority   int
	// Exclusive requests need the element's presential slot.
	Exclusive     bool
	Interruptible bool

	// release
	cancellations []Cancellation

	// delay
	Duration Sampler

	// choices
	guards  []Condition
	weights []float64

	// merges and thread split
	mergeKind   MergeKind
	acceptValue int
	arity       int

	// structured
	loop       LoopKind
	sub        *Node
	Iterations Sampler
}

func (n *Node) ID() int                  { return n.id }
func (n *Node) Kind() NodeKind           { return n.kind }
func (n *Node) Successors() []*Node      { return n.successors }
func (n *Node) Incoming() int            { return n.incoming }
func (n *Node) Group() int               { return n.group }
func (n *Node) WorkGroups() []*WorkGroup { return n.workGroups }
func (n *Node) MergeKind() MergeKind     { return n.mergeKind }
func (n *Node) Loop() LoopKind           { return n.loop }
func (n *Node) Body() *Node              { return n.sub }

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.kind, n.Description)
}

// AcceptValue is the number of executable arrivals an AND merge waits for.
// It defaults to the incoming branch count.
func (n *Node) AcceptValue() int {
	if n.acceptValue > 0 {
		return n.acceptValue
	}
	return n.incoming
}

// SetAcceptValue overrides the AND-merge threshold.
func (n *Node) SetAcceptValue(v int) *Node {
	if v <= 0 {
		n.model.configError("merge %q: accept value must be positive, got %d", n.Description, v)
		return n
	}
	n.acceptValue = v
	return n
}

// expectedArrivals is the number of arrivals that closes a merge round.
func (n *Node) expectedArrivals() int {
	if n.mergeKind == MergeThread {
		return n.arity
	}
	return n.incoming
}

func (n *Node) singleSuccessor() bool {
	switch n.kind {
	case KindExclusiveChoice, KindMultiChoice, KindProbabilistic, KindParallel:
		return false
	}
	return true
}

// Link appends succ as a successor and returns succ so chains read left to right.
func (n *Node) Link(succ *Node) *Node {
	return n.link(succ, nil, 0)
}

// LinkIf links a choice branch guarded by cond; a nil cond always holds.
func (n *Node) LinkIf(succ *Node, cond Condition) *Node {
	if n.kind != KindExclusiveChoice && n.kind != KindMultiChoice {
		n.model.configError("%s: LinkIf on a node that is not an exclusive or multi choice", n)
	}
	return n.link(succ, cond, 0)
}

// LinkWeighted links a probabilistic branch with relative weight w.
func (n *Node) LinkWeighted(succ *Node, w float64) *Node {
	if n.kind != KindProbabilistic {
		n.model.configError("%s: LinkWeighted on a node that is not probabilistic", n)
	}
	if w < 0 {
		n.model.configError("%s: negative branch weight %v", n, w)
		w = 0
	}
	return n.link(succ, nil, w)
}

func (n *Node) link(succ *Node, cond Condition, w float64) *Node {
	if succ == nil {
		n.model.configError("%s: nil successor", n)
		return succ
	}
	if n.singleSuccessor() && len(n.successors) > 0 {
		n.model.configError("%s: already has successor %s, ignoring %s", n, n.successors[0], succ)
		return succ
	}
	n.successors = append(n.successors, succ)
	n.guards = append(n.guards, cond)
	n.weights = append(n.weights, w)
	succ.incoming++
	return succ
}

// AddCancellation applies an unavailability period to resources released as rt.
func (n *Node) AddCancellation(rt *ResourceType, d Sampler) *Node {
	if n.kind != KindRelease {
		n.model.configError("%s: cancellations only apply to release nodes", n)
		return n
	}
	n.cancellations = append(n.cancellations, Cancellation{Type: rt, Duration: d})
	return n
}

// Cancellations returns the configured cancellation periods.
func (n *Node) Cancellations() []Cancellation { return n.cancellations }

func (m *Model) newNode(kind NodeKind, desc string) *Node {
	n := &Node{id: len(m.nodes) + 1, kind: kind, Description: desc, model: m}
	m.nodes = append(m.nodes, n)
	return n
}

// NewSequential creates a pass-through node, optionally guarded by a
// precondition (Condition) and carrying an Action.
func (m *Model) NewSequential(desc string) *Node {
	return m.newNode(KindSequential, desc)
}

// NewRequest creates a resource-requesting step. group identifies the
// resources it seizes so a later release node can free them; it must be positive.
func (m *Model) NewRequest(desc string, group int, wgs ...*WorkGroup) *Node {
	n := m.newNode(KindRequest, desc)
	if group <= 0 {
		m.configError("request %q: resource group id must be positive, got %d", desc, group)
	}
	n.group = group
	for _, wg := range wgs {
		n.AddWorkGroup(wg)
	}
	return n
}

// AddWorkGroup appends an alternative way of satisfying a request step.
func (n *Node) AddWorkGroup(wg *WorkGroup) *Node {
	if n.kind != KindRequest {
		n.model.configError("%s: work groups only apply to request nodes", n)
		return n
	}
	if wg == nil {
		n.model.configError("%s: nil work group", n)
		return n
	}
	for _, p := range wg.pairs {
		if p.Type == nil {
			n.model.configError("%s: work group references a nil resource type", n)
		} else if p.Count <= 0 {
			n.model.configError("%s: work group needs a positive count of %s, got %d", n, p.Type, p.Count)
		}
	}
	n.workGroups = append(n.workGroups, wg)
	return n
}

// NewRelease creates a node that frees the resources seized under group.
func (m *Model) NewRelease(desc string, group int) *Node {
	n := m.newNode(KindRelease, desc)
	if group <= 0 {
		m.configError("release %q: resource group id must be positive, got %d", desc, group)
	}
	n.group = group
	return n
}

// NewDelay creates a node that holds the instance for a sampled duration.
func (m *Model) NewDelay(desc string, d Sampler) *Node {
	n := m.newNode(KindDelay, desc)
	n.Duration = d
	return n
}

// NewExclusiveChoice creates a choice where the first branch whose guard holds wins.
func (m *Model) NewExclusiveChoice(desc string) *Node {
	return m.newNode(KindExclusiveChoice, desc)
}

// NewMultiChoice creates a choice where every branch guard is evaluated independently.
func (m *Model) NewMultiChoice(desc string) *Node {
	return m.newNode(KindMultiChoice, desc)
}

// NewProbabilisticChoice creates a choice that draws one branch by weight.
func (m *Model) NewProbabilisticChoice(desc string) *Node {
	return m.newNode(KindProbabilistic, desc)
}

// NewParallel creates an AND split.
func (m *Model) NewParallel(desc string) *Node {
	return m.newNode(KindParallel, desc)
}

// NewThreadSplit creates a node that sends clones copies of the instance to its successor.
func (m *Model) NewThreadSplit(desc string, clones int) *Node {
	n := m.newNode(KindThreadSplit, desc)
	if clones <= 0 {
		m.configError("thread split %q: clone count must be positive, got %d", desc, clones)
		clones = 1
	}
	n.arity = clones
	return n
}

// NewMerge creates a simple, AND or OR merge.
func (m *Model) NewMerge(desc string, kind MergeKind) *Node {
	n := m.newNode(KindMerge, desc)
	if kind == MergeThread {
		m.configError("merge %q: use NewThreadMerge for thread merges", desc)
		kind = MergeAND
	}
	n.mergeKind = kind
	return n
}

// NewThreadMerge creates a merge that joins arity clones of a thread split.
func (m *Model) NewThreadMerge(desc string, arity int) *Node {
	n := m.newNode(KindMerge, desc)
	if arity <= 0 {
		m.configError("thread merge %q: arity must be positive, got %d", desc, arity)
		arity = 1
	}
	n.mergeKind = MergeThread
	n.arity = arity
	return n
}

// NewStructured creates a sub-flow container whose body starts at sub.
// While and do-while loops read Condition; for loops sample Iterations once
// per entry.
func (m *Model) NewStructured(desc string, loop LoopKind, sub *Node) *Node {
	n := m.newNode(KindStructured, desc)
	if sub == nil {
		m.configError("structured %q: nil body", desc)
	}
	n.loop = loop
	n.sub = sub
	return n
}
