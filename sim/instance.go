package sim

import "fmt"

// InstanceID indexes the simulator's instance arena.
type InstanceID int

// NoInstance is the nil InstanceID.
const NoInstance InstanceID = -1

// ActivityState is the lifecycle of an instance on a request step.
type ActivityState string

const (
	ActivityIdle        ActivityState = "idle"
	ActivityRequested   ActivityState = "requested"
	ActivityQueued      ActivityState = "queued"
	ActivitySeized      ActivityState = "seized"
	ActivityFinishing   ActivityState = "finishing"
	ActivityDone        ActivityState = "done"
	ActivityInterrupted ActivityState = "interrupted"
)

// ElementInstance is one live traversal of the flow graph by an element.
// Parent and descendants are arena indices; an instance is recycled only when
// its own path has ended and it has no live descendants.
type ElementInstance struct {
	ID       InstanceID
	Element  *Element
	Parent   InstanceID
	Flow     *Node
	LastFlow *Node
	Token    *WorkToken
	State    ActivityState

	// ArrivalOrder is stamped at the first enqueue of a request and kept
	// across interruptions; zero means never queued.
	ArrivalOrder int64
	ArrivalTs    int64
	// Remaining is the fraction of the current activity still to do.
	Remaining float64

	descendants int
	pathDone    bool
	holding     *Node
	forCounters map[int]int

	execStart    int64
	execDuration int64
	finishEvent  Event
}

// Descendants is the number of live child instances.
func (inst *ElementInstance) Descendants() int { return inst.descendants }

// Vars returns the owning element's variables.
func (inst *ElementInstance) Vars() Vars { return inst.Element.Vars }

// IsExecutable reports whether the instance carries an executable token.
func (inst *ElementInstance) IsExecutable() bool { return inst.Token.IsExecutable() }

func (inst *ElementInstance) String() string {
	flow := "<none>"
	if inst.Flow != nil {
		flow = inst.Flow.String()
	}
	return fmt.Sprintf("instance %d of element %d at %s", inst.ID, inst.Element.id, flow)
}

// newInstance takes a slot from the arena and attaches it to parent.
func (sim *Simulator) newInstance(elem *Element, parent InstanceID, tok *WorkToken) *ElementInstance {
	var id InstanceID
	if n := len(sim.freeSlots); n > 0 {
		id = sim.freeSlots[n-1]
		sim.freeSlots = sim.freeSlots[:n-1]
	} else {
		id = InstanceID(len(sim.instances))
		sim.instances = append(sim.instances, nil)
	}
	inst := &ElementInstance{
		ID:        id,
		Element:   elem,
		Parent:    parent,
		Token:     tok,
		State:     ActivityIdle,
		Remaining: 1,
	}
	sim.instances[id] = inst
	sim.liveInstances++
	if p := sim.Instance(parent); p != nil {
		p.descendants++
	}
	return inst
}

// Instance looks an instance up by ID; nil if the slot is free.
func (sim *Simulator) Instance(id InstanceID) *ElementInstance {
	if id < 0 || int(id) >= len(sim.instances) {
		return nil
	}
	return sim.instances[id]
}

// LiveInstances is the number of occupied arena slots.
func (sim *Simulator) LiveInstances() int {
	return sim.liveInstances
}

// spawnSubsequent creates a sibling of origin that continues past node.
// Executable siblings get a fresh token; dead ones inherit origin's path.
func (sim *Simulator) spawnSubsequent(origin *ElementInstance, node *Node, executable bool) *ElementInstance {
	var tok *WorkToken
	if executable {
		tok = NewWorkToken(true)
	} else {
		tok = origin.Token.Clone()
		tok.Cancel()
	}
	child := sim.newInstance(origin.Element, origin.Parent, tok)
	child.LastFlow = node
	return child
}

// endPath records that inst has no further node to visit.
func (sim *Simulator) endPath(inst *ElementInstance) {
	inst.pathDone = true
	sim.tryDestroy(inst)
}

// tryDestroy frees inst once its path ended and its subtree collapsed, then
// tells the parent. A parent holding a structured node re-evaluates it; an
// element root with no descendants ends the element.
func (sim *Simulator) tryDestroy(inst *ElementInstance) {
	if !inst.pathDone || inst.descendants > 0 {
		return
	}
	sim.instances[inst.ID] = nil
	sim.freeSlots = append(sim.freeSlots, inst.ID)
	sim.liveInstances--

	parent := sim.Instance(inst.Parent)
	if parent == nil {
		if inst.Parent != NoInstance {
			sim.log.Errorf("[tick %07d] instance %d lost its parent %d", sim.Clock, inst.ID, inst.Parent)
			return
		}
		sim.finishElement(inst.Element)
		return
	}
	parent.descendants--
	if parent.descendants > 0 {
		return
	}
	if parent.holding != nil {
		sim.finishStructured(parent)
		return
	}
	sim.endPath(parent)
}
