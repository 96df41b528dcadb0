package sim

// Event defines the interface for all simulation events.
// Each event has a Timestamp (in ticks), a run-scoped EventID used as the
// tie-breaker between equal timestamps, and an Execute method that advances
// simulation state when invoked.
//
// A cancelled event stays in the queue and is skipped when popped.
type Event interface {
	Timestamp() int64
	EventID() uint64
	Cancel()
	Cancelled() bool
	Execute(sim *Simulator)
}

// BaseEvent provides common event fields.
type BaseEvent struct {
	timestamp int64
	eventID   uint64
	cancelled bool
}

func (e *BaseEvent) Timestamp() int64 { return e.timestamp }
func (e *BaseEvent) EventID() uint64  { return e.eventID }
func (e *BaseEvent) Cancel()          { e.cancelled = true }
func (e *BaseEvent) Cancelled() bool  { return e.cancelled }

// sentinelEvent sits at Infinity so the queue is never empty.
type sentinelEvent struct {
	BaseEvent
}

func (e *sentinelEvent) Execute(sim *Simulator) {}

// GenerationEvent creates elements at one activation of a generator's cycle.
type GenerationEvent struct {
	BaseEvent
	Generator *Generator
	iter      CycleIterator
}

func (e *GenerationEvent) Execute(sim *Simulator) {
	sim.handleGeneration(e)
}

// RequestFlowEvent hands an instance to a flow node.
type RequestFlowEvent struct {
	BaseEvent
	Instance InstanceID
	Flow     *Node
}

func (e *RequestFlowEvent) Execute(sim *Simulator) {
	sim.handleRequestFlow(e)
}

// FinishFlowEvent ends a timed node (delay or seized activity).
type FinishFlowEvent struct {
	BaseEvent
	Instance InstanceID
	Flow     *Node
}

func (e *FinishFlowEvent) Execute(sim *Simulator) {
	sim.handleFinishFlow(e)
}

// RoleOnEvent starts one activation of a timetable entry.
type RoleOnEvent struct {
	BaseEvent
	Resource *Resource
	Entry    *TimetableEntry
	iter     CycleIterator
}

func (e *RoleOnEvent) Execute(sim *Simulator) {
	sim.handleRoleOn(e)
}

// RoleOffEvent ends one activation of a timetable entry.
type RoleOffEvent struct {
	BaseEvent
	Resource *Resource
	Role     *ResourceType
}

func (e *RoleOffEvent) Execute(sim *Simulator) {
	sim.handleRoleOff(e)
}

// CancelPeriodOffEvent ends a post-release unavailability period.
type CancelPeriodOffEvent struct {
	BaseEvent
	Resource *Resource
}

func (e *CancelPeriodOffEvent) Execute(sim *Simulator) {
	sim.handleCancelPeriodOff(e)
}

// FuncEvent runs an arbitrary callback; see Simulator.ScheduleFunc.
type FuncEvent struct {
	BaseEvent
	fn func(sim *Simulator)
}

func (e *FuncEvent) Execute(sim *Simulator) {
	e.fn(sim)
}
