package sim

import "math"

// MatchOutcome classifies a matching attempt for one request.
type MatchOutcome int

const (
	// MatchFound means a work group was satisfied.
	MatchFound MatchOutcome = iota
	// MatchNoResources means every eligible work group lacked resources; the
	// step stays infeasible for everyone until resources become available.
	MatchNoResources
	// MatchRequesterBlocked means the failure depends on the requester (work
	// group conditions or a busy presential slot).
	MatchRequesterBlocked
)

// scheduleRequest hands inst to node at the current clock.
func (sim *Simulator) scheduleRequest(inst *ElementInstance, node *Node) {
	inst.Flow = node
	sim.Schedule(&RequestFlowEvent{BaseEvent: sim.newBase(sim.Clock), Instance: inst.ID, Flow: node})
}

func (sim *Simulator) handleRequestFlow(e *RequestFlowEvent) {
	inst := sim.Instance(e.Instance)
	if inst == nil {
		sim.log.Errorf("[tick %07d] request of %s for a freed instance %d", sim.Clock, e.Flow, e.Instance)
		return
	}
	sim.requestFlow(inst, e.Flow)
}

func (sim *Simulator) handleFinishFlow(e *FinishFlowEvent) {
	inst := sim.Instance(e.Instance)
	if inst == nil {
		sim.log.Errorf("[tick %07d] finish of %s for a freed instance %d", sim.Clock, e.Flow, e.Instance)
		return
	}
	inst.finishEvent = nil
	sim.finishFlow(inst, e.Flow)
}

// requestFlow is the single dispatch point of the flow state machine.
// A dead token that comes back to a node already on its path ends there.
func (sim *Simulator) requestFlow(inst *ElementInstance, node *Node) {
	inst.Flow = node
	tok := inst.Token
	if !tok.IsExecutable() && tok.Visited(node) {
		sim.endPath(inst)
		return
	}
	tok.Visit(node)

	switch node.kind {
	case KindSequential:
		sim.requestSequential(inst, node)
	case KindRequest:
		sim.requestResources(inst, node)
	case KindRelease:
		sim.requestRelease(inst, node)
	case KindDelay:
		sim.requestDelay(inst, node)
	case KindExclusiveChoice, KindMultiChoice, KindProbabilistic:
		sim.requestChoice(inst, node)
	case KindParallel, KindThreadSplit:
		sim.requestSplit(inst, node)
	case KindMerge:
		sim.arrive(inst, node)
	case KindStructured:
		sim.requestStructured(inst, node)
	default:
		sim.log.Errorf("[tick %07d] unknown node kind %v", sim.Clock, node.kind)
		sim.next(inst, node)
	}
}

// finishFlow ends a timed node.
func (sim *Simulator) finishFlow(inst *ElementInstance, node *Node) {
	switch node.kind {
	case KindRequest:
		inst.State = ActivityFinishing
		sim.notify(Info{Kind: InfoActivityEnd, ElementID: inst.Element.id, ElementType: inst.Element.Type.Description,
			Instance: inst.ID, Flow: node.Description, Manager: sim.managerID(node)})
		inst.State = ActivityDone
		inst.ArrivalOrder = 0
		inst.Remaining = 1
	case KindDelay:
	default:
		sim.log.Errorf("[tick %07d] finish on untimed node %s", sim.Clock, node)
	}
	sim.next(inst, node)
}

// next moves inst past a single-successor node, or ends its path.
func (sim *Simulator) next(inst *ElementInstance, node *Node) {
	inst.LastFlow = node
	if len(node.successors) == 0 {
		sim.endPath(inst)
		return
	}
	sim.scheduleRequest(inst, node.successors[0])
}

func (sim *Simulator) requestSequential(inst *ElementInstance, node *Node) {
	if inst.Token.IsExecutable() {
		if node.Condition != nil && !node.Condition(inst) {
			inst.Token.Cancel()
			inst.Token.Visit(node)
		} else if node.Action != nil {
			node.Action(inst)
		}
	}
	sim.next(inst, node)
}

func (sim *Simulator) requestDelay(inst *ElementInstance, node *Node) {
	if !inst.Token.IsExecutable() {
		sim.next(inst, node)
		return
	}
	d := sim.sampleTicks(node.Duration)
	ev := &FinishFlowEvent{BaseEvent: sim.newBase(sim.Clock + d), Instance: inst.ID, Flow: node}
	inst.finishEvent = ev
	sim.Schedule(ev)
}

func (sim *Simulator) requestRelease(inst *ElementInstance, node *Node) {
	if inst.Token.IsExecutable() {
		sim.releaseGroup(inst.Element, node.group, node.cancellations)
	}
	sim.next(inst, node)
}

// requestResources tries to seize immediately and otherwise queues inst in
// the step's activity manager. While the manager has a rescan due and
// instances waiting, a new request joins the queue so it cannot overtake them.
func (sim *Simulator) requestResources(inst *ElementInstance, node *Node) {
	if !inst.Token.IsExecutable() {
		sim.next(inst, node)
		return
	}
	am := sim.managerOf[node.id]
	inst.State = ActivityRequested
	sim.notify(Info{Kind: InfoActivityRequest, ElementID: inst.Element.id, ElementType: inst.Element.Type.Description,
		Instance: inst.ID, Flow: node.Description, Manager: am.id})

	if am.StillFeasible(node) && !(am.pending && am.Len() > 0) {
		wg, assignment, outcome := sim.match(inst, node)
		switch outcome {
		case MatchFound:
			sim.carryOut(inst, node, wg, assignment)
			return
		case MatchNoResources:
			am.stillFeasible[node] = false
		}
	}
	sim.enqueue(am, inst)
}

// match tries the step's work groups in priority order, shuffling groups of
// equal priority when RandomWorkGroupOrder is set.
func (sim *Simulator) match(inst *ElementInstance, node *Node) (*WorkGroup, []Assignment, MatchOutcome) {
	elem := inst.Element
	if node.Exclusive && elem.presential != nil && elem.presential != inst {
		return nil, nil, MatchRequesterBlocked
	}
	blocked := false
	for _, wg := range sim.orderedWorkGroups(node) {
		if !wg.IsEligible(inst) {
			blocked = true
			continue
		}
		if assignment, ok := wg.assign(); ok {
			return wg, assignment, MatchFound
		}
	}
	if blocked {
		return nil, nil, MatchRequesterBlocked
	}
	return nil, nil, MatchNoResources
}

func (sim *Simulator) orderedWorkGroups(node *Node) []*WorkGroup {
	wgs := sim.wgOrder[node.id]
	if !sim.Config.RandomWorkGroupOrder || len(wgs) < 2 {
		return wgs
	}
	out := make([]*WorkGroup, len(wgs))
	copy(out, wgs)
	rng := sim.RNG.ForSubsystem(SubsystemWorkGroups)
	for lo := 0; lo < len(out); {
		hi := lo + 1
		for hi < len(out) && out[hi].Priority == out[lo].Priority {
			hi++
		}
		if hi-lo > 1 {
			run := out[lo:hi]
			rng.Shuffle(len(run), func(i, j int) { run[i], run[j] = run[j], run[i] })
		}
		lo = hi
	}
	return out
}

// carryOut seizes the assignment and schedules the end of the activity. An
// instance resuming after an interruption only does the remaining fraction.
// A failed seize puts inst back in the queue and returns false.
func (sim *Simulator) carryOut(inst *ElementInstance, node *Node, wg *WorkGroup, assignment []Assignment) bool {
	elem := inst.Element
	if !sim.seize(inst, node.group, assignment) {
		sim.enqueue(sim.managerOf[node.id], inst)
		return false
	}
	if node.Exclusive {
		elem.presential = inst
		elem.presentialGroup = node.group
	}

	d := sim.sampleTicks(wg.Duration)
	kind := InfoActivityStart
	if inst.Remaining < 1 {
		d = int64(math.Round(inst.Remaining * float64(d)))
		kind = InfoActivityResume
	}
	inst.State = ActivitySeized
	inst.execStart = sim.Clock
	inst.execDuration = d
	sim.notify(Info{Kind: kind, ElementID: elem.id, ElementType: elem.Type.Description, Instance: inst.ID,
		Flow: node.Description, Manager: sim.managerID(node), Value: inst.Remaining})

	ev := &FinishFlowEvent{BaseEvent: sim.newBase(sim.Clock + d), Instance: inst.ID, Flow: node}
	inst.finishEvent = ev
	sim.Schedule(ev)
	return true
}

// enqueue parks inst in am. The arrival stamp is only assigned once per request.
func (sim *Simulator) enqueue(am *ActivityManager, inst *ElementInstance) {
	if inst.ArrivalOrder == 0 {
		sim.nextArrival++
		inst.ArrivalOrder = sim.nextArrival
		inst.ArrivalTs = sim.Clock
	}
	inst.State = ActivityQueued
	am.enqueue(inst)
	inst.Element.joinQueue(am)
	sim.Metrics.observeQueue(am)
	sim.log.Debugf("[tick %07d] %s queued in %s (arrival %d)", sim.Clock, inst, am, inst.ArrivalOrder)
	sim.notify(Info{Kind: InfoActivityQueued, ElementID: inst.Element.id, ElementType: inst.Element.Type.Description,
		Instance: inst.ID, Flow: inst.Flow.Description, Manager: am.id})
}

// interruptIfAllowed suspends the activity that seized cause under b when
// cause stops playing the role it was seized for. Only the booking's own
// instance, still running the request that seized the group, can be
// interrupted; otherwise cause just stays timed out until released.
// Non-interruptible activities run to completion on a timed-out resource.
func (sim *Simulator) interruptIfAllowed(b *Booking, cause *Resource) {
	inst := b.Owner
	if inst == nil || sim.Instance(inst.ID) != inst {
		return
	}
	node := inst.Flow
	if node == nil || node.kind != KindRequest || node.group != b.Group || !node.Interruptible || inst.State != ActivitySeized {
		return
	}
	if !inst.Element.holds(b.Group, cause) {
		return
	}
	if inst.finishEvent == nil || inst.finishEvent.Cancelled() || inst.finishEvent.Timestamp() <= sim.Clock {
		return
	}
	inst.finishEvent.Cancel()
	inst.finishEvent = nil

	left := inst.execDuration - (sim.Clock - inst.execStart)
	if inst.execDuration > 0 {
		inst.Remaining *= float64(left) / float64(inst.execDuration)
	}
	elem := inst.Element
	sim.releaseGroup(elem, node.group, nil)
	if elem.presential == inst {
		elem.presential = nil
	}
	inst.State = ActivityInterrupted
	sim.log.Debugf("[tick %07d] %s interrupted by %s, %.3f left", sim.Clock, inst, cause, inst.Remaining)
	sim.notify(Info{Kind: InfoActivityInterrupt, ElementID: elem.id, ElementType: elem.Type.Description,
		Instance: inst.ID, Resource: cause.Description, Flow: node.Description, Manager: sim.managerID(node), Value: inst.Remaining})
	sim.enqueue(sim.managerOf[node.id], inst)
}

// requestChoice spawns one subsequent instance per branch and ends inst.
// Dead instances send dead instances down every branch so merges downstream
// still see every arrival.
func (sim *Simulator) requestChoice(inst *ElementInstance, node *Node) {
	inst.LastFlow = node
	n := len(node.successors)
	flags := make([]bool, n)
	if inst.Token.IsExecutable() {
		switch node.kind {
		case KindExclusiveChoice:
			for i, g := range node.guards {
				if g == nil || g(inst) {
					flags[i] = true
					break
				}
			}
		case KindMultiChoice:
			for i, g := range node.guards {
				flags[i] = g == nil || g(inst)
			}
		case KindProbabilistic:
			if i := sim.drawBranch(node.weights); i >= 0 {
				flags[i] = true
			}
		}
	}
	for i, succ := range node.successors {
		child := sim.spawnSubsequent(inst, node, flags[i])
		sim.scheduleRequest(child, succ)
	}
	sim.endPath(inst)
}

// drawBranch maps a uniform draw onto cumulative weight intervals.
func (sim *Simulator) drawBranch(weights []float64) int {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return -1
	}
	u := sim.RNG.ForSubsystem(SubsystemChoices).Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if u < acc {
			return i
		}
	}
	return len(weights) - 1
}

// requestSplit sends a copy of inst down every branch (parallel) or arity
// copies down the only branch (thread split), then ends inst.
func (sim *Simulator) requestSplit(inst *ElementInstance, node *Node) {
	inst.LastFlow = node
	exec := inst.Token.IsExecutable()
	if node.kind == KindThreadSplit {
		if len(node.successors) > 0 {
			for i := 0; i < node.arity; i++ {
				sim.scheduleRequest(sim.spawnSubsequent(inst, node, exec), node.successors[0])
			}
		}
	} else {
		for _, succ := range node.successors {
			sim.scheduleRequest(sim.spawnSubsequent(inst, node, exec), succ)
		}
	}
	sim.endPath(inst)
}

// requestStructured enters a sub-flow. The holder waits until every
// descendant has collapsed, then finishStructured decides whether to loop.
func (sim *Simulator) requestStructured(inst *ElementInstance, node *Node) {
	if !inst.Token.IsExecutable() || node.sub == nil {
		sim.next(inst, node)
		return
	}
	switch node.loop {
	case LoopWhile:
		if node.Condition != nil && !node.Condition(inst) {
			sim.next(inst, node)
			return
		}
	case LoopFor:
		n := int(sim.sampleTicks(node.Iterations))
		if n <= 0 {
			sim.next(inst, node)
			return
		}
		if inst.forCounters == nil {
			inst.forCounters = make(map[int]int)
		}
		inst.forCounters[node.id] = n
	}
	sim.enterBody(inst, node)
}

func (sim *Simulator) enterBody(holder *ElementInstance, node *Node) {
	holder.holding = node
	child := sim.newInstance(holder.Element, holder.ID, NewWorkToken(true))
	sim.scheduleRequest(child, node.sub)
}

func (sim *Simulator) finishStructured(holder *ElementInstance) {
	node := holder.holding
	switch node.loop {
	case LoopWhile, LoopDoWhile:
		if node.Condition != nil && node.Condition(holder) {
			sim.enterBody(holder, node)
			return
		}
	case LoopFor:
		holder.forCounters[node.id]--
		if holder.forCounters[node.id] > 0 {
			sim.enterBody(holder, node)
			return
		}
		delete(holder.forCounters, node.id)
	}
	holder.holding = nil
	sim.next(holder, node)
}
