package sim

// mergeKey scopes merge state to one element at one merge node.
type mergeKey struct {
	node    int
	element int
}

// mergeControl counts the arrivals of the current round. A round closes when
// every expected branch has arrived; the control is then dropped.
type mergeControl struct {
	arrivals   int
	executable int
	passed     bool
	lastPass   int64
}

// arrive applies the merge rule to inst. At most one executable instance
// leaves an AND, OR or thread merge per round, and a round in which nothing
// passed emits exactly one dead instance so downstream merges still close.
// The arriving instance always ends here.
func (sim *Simulator) arrive(inst *ElementInstance, node *Node) {
	key := mergeKey{node: node.id, element: inst.Element.id}
	mc, ok := sim.merges[key]
	if !ok {
		mc = &mergeControl{lastPass: -1}
		sim.merges[key] = mc
	}
	exec := inst.Token.IsExecutable()
	mc.arrivals++
	if exec {
		mc.executable++
	}
	expected := node.expectedArrivals()

	pass := false
	switch node.mergeKind {
	case MergeSimple:
		pass = exec && sim.Clock > mc.lastPass
	case MergeAND:
		pass = exec && !mc.passed && mc.executable == node.AcceptValue()
	case MergeOR:
		pass = !mc.passed && mc.arrivals >= expected && mc.executable > 0
	case MergeThread:
		pass = exec && !mc.passed && mc.executable == node.arity
	}
	if pass {
		mc.passed = true
		mc.lastPass = sim.Clock
		sim.emit(inst, node, true)
	}
	if mc.arrivals >= expected {
		if !mc.passed {
			sim.emit(inst, node, false)
		}
		delete(sim.merges, key)
	}
	inst.LastFlow = node
	sim.endPath(inst)
}

func (sim *Simulator) emit(inst *ElementInstance, node *Node, executable bool) {
	if len(node.successors) == 0 {
		return
	}
	out := sim.spawnSubsequent(inst, node, executable)
	sim.scheduleRequest(out, node.successors[0])
}

// OpenMerges is the number of merge rounds still waiting for arrivals.
func (sim *Simulator) OpenMerges() int {
	return len(sim.merges)
}
