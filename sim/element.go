package sim

// ElementType groups elements; Priority orders them in wait queues (lower first).
type ElementType struct {
	id          int
	Description string
	Priority    int
	// Vars seeds every element's variables.
	Vars Vars
}

func (et *ElementType) ID() int        { return et.id }
func (et *ElementType) String() string { return et.Description }

// Element is one simulated entity travelling the flow graph.
type Element struct {
	id          int
	Type        *ElementType
	InitialFlow *Node
	StartTs     int64
	Vars        Vars

	root            InstanceID
	presential      *ElementInstance
	presentialGroup int
	queuedIn        map[*ActivityManager]int
	caught          map[int][]Assignment
}

func newElement(id int, et *ElementType, initial *Node, ts int64) *Element {
	return &Element{
		id:          id,
		Type:        et,
		InitialFlow: initial,
		StartTs:     ts,
		Vars:        et.Vars.Clone(),
		root:        NoInstance,
		queuedIn:    make(map[*ActivityManager]int),
		caught:      make(map[int][]Assignment),
	}
}

func (e *Element) ID() int          { return e.id }
func (e *Element) Root() InstanceID { return e.root }

// Presential is the instance occupying the exclusive slot, or NoInstance.
func (e *Element) Presential() InstanceID {
	if e.presential == nil {
		return NoInstance
	}
	return e.presential.ID
}

// Holding returns the resources held under group.
func (e *Element) Holding(group int) []Assignment {
	return e.caught[group]
}

func (e *Element) holds(group int, r *Resource) bool {
	for _, a := range e.caught[group] {
		if a.Resource == r {
			return true
		}
	}
	return false
}

// HeldGroups is the number of resource groups currently held.
func (e *Element) HeldGroups() int {
	return len(e.caught)
}

// QueuedIn reports how many of the element's instances wait in am.
func (e *Element) QueuedIn(am *ActivityManager) int {
	return e.queuedIn[am]
}

func (e *Element) joinQueue(am *ActivityManager) {
	e.queuedIn[am]++
}

func (e *Element) leaveQueue(am *ActivityManager) {
	if e.queuedIn[am]--; e.queuedIn[am] <= 0 {
		delete(e.queuedIn, am)
	}
}

// Generator creates Count elements of Type at every activation of Cycle,
// each starting at InitialFlow.
type Generator struct {
	Type        *ElementType
	InitialFlow *Node
	Cycle       Cycle
	Count       int
}

func (sim *Simulator) handleGeneration(e *GenerationEvent) {
	g := e.Generator
	for i := 0; i < g.Count; i++ {
		sim.StartElement(g.Type, g.InitialFlow)
	}
	if next := e.iter.Next(); next >= 0 {
		sim.Schedule(&GenerationEvent{BaseEvent: sim.newBase(next), Generator: g, iter: e.iter})
	}
}

// StartElement creates an element at the current clock and sends a first
// instance to initial. The element's root instance only waits for its
// descendants; the element finishes when that tree collapses.
func (sim *Simulator) StartElement(et *ElementType, initial *Node) *Element {
	sim.nextElementID++
	elem := newElement(sim.nextElementID, et, initial, sim.Clock)
	sim.elements[elem.id] = elem
	sim.Metrics.elementCreated(et)

	root := sim.newInstance(elem, NoInstance, NewWorkToken(true))
	elem.root = root.ID
	sim.log.Debugf("[tick %07d] element %d (%s) starts", sim.Clock, elem.id, et)
	sim.notify(Info{Kind: InfoElementStart, ElementID: elem.id, ElementType: et.Description, Instance: root.ID})

	if initial == nil {
		sim.endPath(root)
		return elem
	}
	child := sim.newInstance(elem, root.ID, NewWorkToken(true))
	sim.scheduleRequest(child, initial)
	return elem
}

func (sim *Simulator) finishElement(elem *Element) {
	if len(elem.caught) > 0 {
		sim.log.Warnf("[tick %07d] element %d finishes holding %d resource group(s)", sim.Clock, elem.id, len(elem.caught))
	}
	sim.Metrics.elementFinished(elem.Type, sim.Clock-elem.StartTs)
	sim.log.Debugf("[tick %07d] element %d (%s) finishes", sim.Clock, elem.id, elem.Type)
	// Sinks may still look the element up while handling the finish.
	sim.notify(Info{Kind: InfoElementFinish, ElementID: elem.id, ElementType: elem.Type.Description})
	delete(sim.elements, elem.id)
}
