// Implements the ActivityManager, a mutual-exclusion domain over a connected
// set of resource types and the request steps that use them.

package sim

import (
	"fmt"
	"sort"
	"strings"
)

// ActivityManager owns the wait queue of instances blocked on its steps.
// Queue order: element-type priority, then step priority, then arrival order
// (lower values first).
type ActivityManager struct {
	id    int
	types []*ResourceType
	steps []*Node

	queue         []*ElementInstance
	queuedPerStep map[*Node]int
	stillFeasible map[*Node]bool
	pending       bool
	peakQueue     int
}

func newActivityManager(id int) *ActivityManager {
	return &ActivityManager{
		id:            id,
		queuedPerStep: make(map[*Node]int),
		stillFeasible: make(map[*Node]bool),
	}
}

func (am *ActivityManager) ID() int                       { return am.id }
func (am *ActivityManager) ResourceTypes() []*ResourceType { return am.types }
func (am *ActivityManager) Steps() []*Node                 { return am.steps }
func (am *ActivityManager) Len() int                       { return len(am.queue) }
func (am *ActivityManager) PeakQueue() int                 { return am.peakQueue }

// Queue returns a copy of the wait queue in scan order.
func (am *ActivityManager) Queue() []*ElementInstance {
	out := make([]*ElementInstance, len(am.queue))
	copy(out, am.queue)
	return out
}

// StillFeasible reports whether step has not been proven infeasible since the
// last resource became available.
func (am *ActivityManager) StillFeasible(step *Node) bool {
	f, ok := am.stillFeasible[step]
	return !ok || f
}

func (am *ActivityManager) addStep(n *Node) {
	am.steps = append(am.steps, n)
	am.stillFeasible[n] = true
}

func (am *ActivityManager) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "AM%d[", am.id)
	for i, rt := range am.types {
		if i > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(rt.Description)
	}
	sb.WriteString("]")
	return sb.String()
}

func queueLess(a, b *ElementInstance) bool {
	pa, pb := a.Element.Type.Priority, b.Element.Type.Priority
	if pa != pb {
		return pa < pb
	}
	if a.Flow.Priority != b.Flow.Priority {
		return a.Flow.Priority < b.Flow.Priority
	}
	return a.ArrivalOrder < b.ArrivalOrder
}

// enqueue inserts inst at its ordered position.
func (am *ActivityManager) enqueue(inst *ElementInstance) {
	pos := sort.Search(len(am.queue), func(i int) bool {
		return queueLess(inst, am.queue[i])
	})
	am.queue = append(am.queue, nil)
	copy(am.queue[pos+1:], am.queue[pos:])
	am.queue[pos] = inst
	am.queuedPerStep[inst.Flow]++
	if len(am.queue) > am.peakQueue {
		am.peakQueue = len(am.queue)
	}
}

// dequeue removes inst from the queue; false if it was not queued here.
func (am *ActivityManager) dequeue(inst *ElementInstance) bool {
	for i, q := range am.queue {
		if q == inst {
			am.removeAt(i)
			return true
		}
	}
	return false
}

func (am *ActivityManager) removeAt(i int) {
	inst := am.queue[i]
	am.queue = append(am.queue[:i], am.queue[i+1:]...)
	if am.queuedPerStep[inst.Flow]--; am.queuedPerStep[inst.Flow] <= 0 {
		delete(am.queuedPerStep, inst.Flow)
	}
}

// notifyResourceAvailable marks every step feasible again and schedules a
// rescan for the end of the current tick.
func (am *ActivityManager) notifyResourceAvailable() {
	for _, n := range am.steps {
		am.stillFeasible[n] = true
	}
	am.pending = true
}

// notifyManager is the single entry point used when resources become available.
func (sim *Simulator) notifyManager(am *ActivityManager) {
	if am == nil {
		return
	}
	am.notifyResourceAvailable()
}

// rescan walks the wait queue once, seizing for every instance that can now be
// served. It stops once every remaining instance belongs to a step that has
// been proven infeasible in this pass.
func (sim *Simulator) rescan(am *ActivityManager) {
	am.pending = false
	useless := 0
	for step, n := range am.queuedPerStep {
		if !am.StillFeasible(step) {
			useless += n
		}
	}
	for i := 0; i < len(am.queue) && useless < len(am.queue); {
		inst := am.queue[i]
		step := inst.Flow
		if !am.StillFeasible(step) {
			i++
			continue
		}
		wg, assignment, outcome := sim.match(inst, step)
		switch outcome {
		case MatchFound:
			am.removeAt(i)
			inst.Element.leaveQueue(am)
			if sim.carryOut(inst, step, wg, assignment) {
				continue
			}
		case MatchNoResources:
			am.stillFeasible[step] = false
			useless += am.queuedPerStep[step]
		}
		i++
	}
	sim.log.Debugf("[tick %07d] %s rescanned, %d still queued", sim.Clock, am, len(am.queue))
}
