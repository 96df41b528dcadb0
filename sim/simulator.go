// sim/simulator.go
package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Infinity is the timestamp of the sentinel event and of durations that never end.
const Infinity int64 = math.MaxInt64

// ErrModelBound is returned when a model is handed to a second simulator.
var ErrModelBound = errors.New("model is already bound to a simulator")

// Simulator is the core object that holds simulation time, run state and the event loop.
// Each run owns its simulator; nothing here is shared between goroutines.
type Simulator struct {
	ID      string
	Clock   int64
	StartTs int64
	EndTs   int64

	Model  *Model
	Config Config
	// EventQueue holds every future event, including the sentinel at Infinity.
	EventQueue *EventHeap
	RNG        *PartitionedRNG
	Metrics    *Metrics
	// Managers are the activity managers in ID order.
	Managers []*ActivityManager

	log   *logrus.Entry
	sink  InfoSink
	isEnd EndCondition

	instances     []*ElementInstance
	freeSlots     []InstanceID
	liveInstances int
	elements      map[int]*Element

	managerOf map[int]*ActivityManager
	wgOrder   map[int][]*WorkGroup
	merges    map[mergeKey]*mergeControl

	nextEventID   uint64
	nextElementID int
	nextArrival   int64
	started       bool
}

// NewSimulator binds model to a new run. Activity managers are partitioned
// here so they can be inspected before Run.
func NewSimulator(model *Model, cfg Config) (*Simulator, error) {
	if model == nil {
		return nil, errors.New("nil model")
	}
	if model.bound {
		return nil, fmt.Errorf("model %q: %w", model.Description, ErrModelBound)
	}
	model.bound = true

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	id := uuid.NewString()
	sim := &Simulator{
		ID:         id,
		Clock:      model.StartTs,
		StartTs:    model.StartTs,
		EndTs:      model.EndTs,
		Model:      model,
		Config:     cfg,
		EventQueue: NewEventHeap(),
		RNG:        NewPartitionedRNG(NewSimulationKey(cfg.Seed)),
		Metrics:    NewMetrics(),
		log:        logger.WithField("run", id),
		sink:       cfg.Sink,
		elements:   make(map[int]*Element),
		managerOf:  make(map[int]*ActivityManager),
		wgOrder:    make(map[int][]*WorkGroup),
		merges:     make(map[mergeKey]*mergeControl),
	}
	if cfg.EndTs > 0 {
		sim.EndTs = cfg.EndTs
	}
	sim.isEnd = cfg.EndCondition
	if sim.isEnd == nil {
		end := sim.EndTs
		sim.isEnd = func(ts int64) bool { return ts >= end }
	}

	model.checkGraph()
	steps := model.RequestSteps()
	sim.Managers = Partition(model.resourceTypes, steps)
	for _, am := range sim.Managers {
		for _, step := range am.steps {
			sim.managerOf[step.id] = am
		}
	}
	for _, step := range steps {
		wgs := make([]*WorkGroup, len(step.workGroups))
		copy(wgs, step.workGroups)
		sort.SliceStable(wgs, func(i, j int) bool { return wgs[i].Priority < wgs[j].Priority })
		sim.wgOrder[step.id] = wgs
	}
	sim.log.Debugf("%d resource types partitioned into %d activity managers", len(model.resourceTypes), len(sim.Managers))
	return sim, nil
}

func (sim *Simulator) newBase(ts int64) BaseEvent {
	sim.nextEventID++
	return BaseEvent{timestamp: ts, eventID: sim.nextEventID}
}

// Schedule pushes an event into the queue. An event in the past is a model
// error: it is logged and counted, and still executed at the next drain.
func (sim *Simulator) Schedule(ev Event) {
	if ev.Timestamp() < sim.Clock {
		sim.Metrics.CausalityViolations++
		sim.log.Errorf("[tick %07d] causality violation: %T scheduled at %d", sim.Clock, ev, ev.Timestamp())
	}
	sim.EventQueue.Schedule(ev)
}

// ScheduleFunc runs fn at ts. The returned event may be cancelled.
func (sim *Simulator) ScheduleFunc(ts int64, fn func(sim *Simulator)) Event {
	ev := &FuncEvent{BaseEvent: sim.newBase(ts), fn: fn}
	sim.Schedule(ev)
	return ev
}

func (sim *Simulator) notify(info Info) {
	if sim.sink == nil {
		return
	}
	info.Clock = sim.Clock
	sim.sink.Notify(info)
}

// sampleTicks draws from s with the durations RNG and rounds to ticks.
func (sim *Simulator) sampleTicks(s Sampler) int64 {
	if s == nil {
		return 0
	}
	v := s.Sample(sim.RNG.ForSubsystem(SubsystemDurations))
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(Infinity):
		return Infinity
	}
	return int64(math.Round(v))
}

// Run executes the simulation to completion.
func (sim *Simulator) Run() error {
	return sim.RunContext(context.Background())
}

// RunContext executes the simulation until the end condition holds, only the
// sentinel remains, or ctx is done. Each tick drains every event at the
// current clock, then lets pending activity managers rescan their queues,
// repeating until nothing is left at that clock.
func (sim *Simulator) RunContext(ctx context.Context) error {
	if sim.started {
		return errors.New("simulator already ran")
	}
	sim.started = true
	sim.init()
	sim.log.Infof("[tick %07d] simulation of %q starts, end at %d", sim.Clock, sim.Model.Description, sim.EndTs)
	sim.notify(Info{Kind: InfoSimStart})

	endedByCondition := false
	for {
		ts := sim.EventQueue.PeekTimestamp()
		if ts > sim.Clock {
			if ts == Infinity {
				break
			}
			if sim.isEnd(ts) {
				endedByCondition = true
				break
			}
			if err := ctx.Err(); err != nil {
				sim.finish(false)
				return fmt.Errorf("run %s interrupted at %d: %w", sim.ID, sim.Clock, err)
			}
			sim.Clock = ts
			sim.log.Tracef("[tick %07d] clock advances", sim.Clock)
			sim.notify(Info{Kind: InfoTick})
		}
		for {
			batch := sim.EventQueue.PopReady(sim.Clock)
			if len(batch) == 0 {
				break
			}
			for _, ev := range batch {
				if ev.Cancelled() {
					continue
				}
				sim.Metrics.EventsExecuted++
				ev.Execute(sim)
			}
		}
		sim.runManagers()
	}
	sim.finish(endedByCondition)
	return nil
}

func (sim *Simulator) init() {
	sim.Schedule(&sentinelEvent{BaseEvent: sim.newBase(Infinity)})
	for _, r := range sim.Model.resources {
		for _, entry := range r.Timetable {
			if entry.Cycle == nil || entry.Role == nil {
				sim.log.Errorf("%s: timetable entry without role or cycle", r)
				continue
			}
			it := entry.Cycle.Iterator(sim.StartTs, sim.EndTs)
			if first := it.Next(); first >= 0 {
				sim.Schedule(&RoleOnEvent{BaseEvent: sim.newBase(first), Resource: r, Entry: entry, iter: it})
			}
		}
	}
	for _, g := range sim.Model.generators {
		if g.Cycle == nil || g.Type == nil {
			continue
		}
		it := g.Cycle.Iterator(sim.StartTs, sim.EndTs)
		if first := it.Next(); first >= 0 {
			sim.Schedule(&GenerationEvent{BaseEvent: sim.newBase(first), Generator: g, iter: it})
		}
	}
}

// runManagers rescans every pending activity manager once, in ID order or
// in a random permutation when RandomNotifyAMs is set.
func (sim *Simulator) runManagers() {
	var pending []*ActivityManager
	for _, am := range sim.Managers {
		if am.pending {
			pending = append(pending, am)
		}
	}
	if len(pending) == 0 {
		return
	}
	if sim.Config.RandomNotifyAMs && len(pending) > 1 {
		rng := sim.RNG.ForSubsystem(SubsystemManagers)
		rng.Shuffle(len(pending), func(i, j int) { pending[i], pending[j] = pending[j], pending[i] })
	}
	for _, am := range pending {
		sim.rescan(am)
	}
}

func (sim *Simulator) finish(endedByCondition bool) {
	sim.Metrics.SimStartTime = sim.StartTs
	sim.Metrics.SimEndedTime = sim.Clock
	if endedByCondition && sim.EndTs > sim.Clock {
		sim.Metrics.SimEndedTime = sim.EndTs
	}
	for _, am := range sim.Managers {
		sim.Metrics.QueuedAtEnd += am.Len()
		sim.Metrics.observeQueue(am)
	}
	sim.Metrics.collectResources(sim.Model.resources, sim.Metrics.SimEndedTime)
	sim.Metrics.ElementsInProgress = len(sim.elements)
	sim.notify(Info{Kind: InfoSimEnd})
	sim.log.Infof("[tick %07d] simulation ended, %d elements finished, %d still in progress",
		sim.Clock, sim.Metrics.ElementsFinished, len(sim.elements))
}

// ManagerOf returns the activity manager owning a request step.
func (sim *Simulator) ManagerOf(step *Node) *ActivityManager {
	if step == nil {
		return nil
	}
	return sim.managerOf[step.id]
}

func (sim *Simulator) managerID(step *Node) int {
	if am := sim.ManagerOf(step); am != nil {
		return am.id
	}
	return 0
}

// VarValue resolves a variable for an element, falling back to its type and
// then to the model. Used by guards and by statistics views.
func (sim *Simulator) VarValue(elementID int, name string) (Value, bool) {
	if elem, ok := sim.elements[elementID]; ok {
		if v, ok := elem.Vars.Get(name); ok {
			return v, true
		}
		if v, ok := elem.Type.Vars.Get(name); ok {
			return v, true
		}
	}
	return sim.Model.Vars.Get(name)
}

// Elements returns the live elements ordered by ID.
func (sim *Simulator) Elements() []*Element {
	out := make([]*Element, 0, len(sim.elements))
	for _, e := range sim.elements {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Element looks up a live element.
func (sim *Simulator) Element(id int) *Element {
	return sim.elements[id]
}
