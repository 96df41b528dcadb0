package sim

import "fmt"

// ResourceType is a role that resources play during their timetable windows.
// It keeps the index of resources currently able to serve the role.
type ResourceType struct {
	id          int
	Description string

	manager   *ActivityManager
	available []*Resource
}

func (rt *ResourceType) ID() int                   { return rt.id }
func (rt *ResourceType) Manager() *ActivityManager { return rt.manager }
func (rt *ResourceType) AvailableCount() int       { return len(rt.available) }
func (rt *ResourceType) String() string            { return rt.Description }

// Available returns a copy of the available-resource index in index order.
func (rt *ResourceType) Available() []*Resource {
	out := make([]*Resource, len(rt.available))
	copy(out, rt.available)
	return out
}

// IsAvailable reports whether r is in the index.
func (rt *ResourceType) IsAvailable(r *Resource) bool {
	return rt.indexOf(r) >= 0
}

func (rt *ResourceType) indexOf(r *Resource) int {
	for i, a := range rt.available {
		if a == r {
			return i
		}
	}
	return -1
}

func (rt *ResourceType) addAvailable(r *Resource) {
	if rt.indexOf(r) < 0 {
		rt.available = append(rt.available, r)
	}
}

func (rt *ResourceType) removeAvailable(r *Resource) {
	if i := rt.indexOf(r); i >= 0 {
		rt.available = append(rt.available[:i], rt.available[i+1:]...)
	}
}

// TimetableEntry says that a resource plays Role for Duration ticks at every
// activation of Cycle. A Duration of Infinity never ends.
type TimetableEntry struct {
	Role     *ResourceType
	Cycle    Cycle
	Duration int64
}

// Assignment binds one resource to the role it was matched for.
type Assignment struct {
	Resource *Resource
	Type     *ResourceType
}

// Booking is the current owner of a seized resource. Owner is the instance
// that seized it; it may have ended while the element still holds the group.
type Booking struct {
	Owner *ElementInstance
	Type  *ResourceType
	Group int
}

// Resource is a schedulable entity with an availability timetable.
type Resource struct {
	id          int
	Description string
	Timetable   []*TimetableEntry

	// roles keeps first-activation order so index updates are deterministic.
	roles        []*ResourceType
	activeRoles  map[*ResourceType]int
	booking      *Booking
	tentative    bool
	timedOut     bool
	cancelPeriod bool
	busySince    int64
	busyTime     int64
}

func (r *Resource) ID() int              { return r.id }
func (r *Resource) Booking() *Booking    { return r.booking }
func (r *Resource) IsBooked() bool       { return r.booking != nil }
func (r *Resource) IsTimedOut() bool     { return r.timedOut }
func (r *Resource) InCancelPeriod() bool { return r.cancelPeriod }
func (r *Resource) BusyTime() int64      { return r.busyTime }
func (r *Resource) String() string       { return r.Description }

// AddTimetableEntry adds an availability window for role.
func (r *Resource) AddTimetableEntry(role *ResourceType, cycle Cycle, duration int64) *Resource {
	r.Timetable = append(r.Timetable, &TimetableEntry{Role: role, Cycle: cycle, Duration: duration})
	return r
}

// PlaysRole reports whether role is currently active for r.
func (r *Resource) PlaysRole(role *ResourceType) bool {
	return r.activeRoles[role] > 0
}

// free reports whether r can be offered to a matcher.
func (r *Resource) free() bool {
	return r.booking == nil && !r.cancelPeriod
}

// activateRole counts an overlapping activation; returns true on the first one.
func (r *Resource) activateRole(role *ResourceType) bool {
	if r.activeRoles == nil {
		r.activeRoles = make(map[*ResourceType]int)
	}
	r.activeRoles[role]++
	if r.activeRoles[role] == 1 {
		for _, known := range r.roles {
			if known == role {
				return true
			}
		}
		r.roles = append(r.roles, role)
		return true
	}
	return false
}

// deactivateRole returns true when the last overlapping activation ends.
func (r *Resource) deactivateRole(role *ResourceType) bool {
	if r.activeRoles[role] == 0 {
		return false
	}
	r.activeRoles[role]--
	return r.activeRoles[role] == 0
}

// enterIndices adds r to every active role's index and returns those roles.
func (r *Resource) enterIndices() []*ResourceType {
	var touched []*ResourceType
	for _, role := range r.roles {
		if r.activeRoles[role] > 0 {
			role.addAvailable(r)
			touched = append(touched, role)
		}
	}
	return touched
}

func (r *Resource) leaveIndices() {
	for _, role := range r.roles {
		role.removeAvailable(r)
	}
}

func (sim *Simulator) handleRoleOn(e *RoleOnEvent) {
	r, role := e.Resource, e.Entry.Role
	if r.activateRole(role) && r.free() {
		role.addAvailable(r)
		sim.notifyManager(role.manager)
	}
	sim.log.Debugf("[tick %07d] %s plays %s", sim.Clock, r, role)
	sim.notify(Info{Kind: InfoRoleOn, Resource: r.Description, ResourceType: role.Description})

	if e.Entry.Duration < Infinity-e.Timestamp() {
		sim.Schedule(&RoleOffEvent{BaseEvent: sim.newBase(e.Timestamp() + e.Entry.Duration), Resource: r, Role: role})
	}
	if next := e.iter.Next(); next >= 0 {
		sim.Schedule(&RoleOnEvent{BaseEvent: sim.newBase(next), Resource: r, Entry: e.Entry, iter: e.iter})
	}
}

func (sim *Simulator) handleRoleOff(e *RoleOffEvent) {
	r, role := e.Resource, e.Role
	sim.notify(Info{Kind: InfoRoleOff, Resource: r.Description, ResourceType: role.Description})
	if !r.deactivateRole(role) {
		return
	}
	role.removeAvailable(r)
	sim.log.Debugf("[tick %07d] %s stops playing %s", sim.Clock, r, role)
	if b := r.booking; b != nil && b.Type == role {
		r.timedOut = true
		sim.interruptIfAllowed(b, r)
	}
}

func (sim *Simulator) handleCancelPeriodOff(e *CancelPeriodOffEvent) {
	r := e.Resource
	r.cancelPeriod = false
	sim.notify(Info{Kind: InfoCancelPeriodOff, Resource: r.Description})
	if r.booking != nil {
		return
	}
	for _, role := range r.enterIndices() {
		sim.notifyManager(role.manager)
	}
}

// seize books every assigned resource for inst under group. Seizing a resource
// that is already booked is an accounting error and books nothing.
func (sim *Simulator) seize(inst *ElementInstance, group int, assignment []Assignment) bool {
	for _, a := range assignment {
		if a.Resource.booking != nil {
			sim.accountingError("seizing %s for instance %d: already booked by instance %d",
				a.Resource, inst.ID, a.Resource.booking.Owner.ID)
			return false
		}
	}
	elem := inst.Element
	for _, a := range assignment {
		r := a.Resource
		r.booking = &Booking{Owner: inst, Type: a.Type, Group: group}
		r.busySince = sim.Clock
		r.leaveIndices()
		elem.caught[group] = append(elem.caught[group], a)
		sim.log.Debugf("[tick %07d] seized %s", sim.Clock, describeBooking(r))
		sim.notify(Info{Kind: InfoResourceAcquired, ElementID: elem.id, ElementType: elem.Type.Description,
			Instance: inst.ID, Resource: r.Description, ResourceType: a.Type.Description, Flow: inst.Flow.Description})
	}
	return true
}

// releaseGroup frees the resources elem holds under group, applying the given
// per-type cancellation periods, and notifies every touched activity manager.
// Releasing a group that was never seized logs an accounting error and returns false.
func (sim *Simulator) releaseGroup(elem *Element, group int, cancellations []Cancellation) bool {
	held, ok := elem.caught[group]
	if !ok {
		sim.accountingError("element %d releasing resource group %d that was never seized", elem.id, group)
		return false
	}
	delete(elem.caught, group)

	var touched []*ActivityManager
	for _, a := range held {
		r := a.Resource
		r.booking = nil
		r.timedOut = false
		r.busyTime += sim.Clock - r.busySince
		sim.notify(Info{Kind: InfoResourceReleased, ElementID: elem.id, ElementType: elem.Type.Description,
			Resource: r.Description, ResourceType: a.Type.Description})

		if d := sim.cancellationFor(cancellations, a.Type); d > 0 {
			r.cancelPeriod = true
			sim.notify(Info{Kind: InfoCancelPeriodOn, Resource: r.Description, ResourceType: a.Type.Description, Value: float64(d)})
			sim.Schedule(&CancelPeriodOffEvent{BaseEvent: sim.newBase(sim.Clock + d), Resource: r})
			continue
		}
		for _, role := range r.enterIndices() {
			touched = append(touched, role.manager)
		}
	}
	if elem.presential != nil && elem.presentialGroup == group {
		elem.presential = nil
		for am := range elem.queuedIn {
			touched = append(touched, am)
		}
	}
	for _, am := range touched {
		sim.notifyManager(am)
	}
	return true
}

func (sim *Simulator) cancellationFor(cancellations []Cancellation, rt *ResourceType) int64 {
	for _, c := range cancellations {
		if c.Type == rt {
			return sim.sampleTicks(c.Duration)
		}
	}
	return 0
}

func (sim *Simulator) accountingError(format string, args ...any) {
	sim.Metrics.AccountingErrors++
	sim.log.WithField("clock", sim.Clock).Errorf(format, args...)
}

func describeBooking(r *Resource) string {
	if r.booking == nil {
		return fmt.Sprintf("%s[free]", r)
	}
	return fmt.Sprintf("%s[instance %d as %s]", r, r.booking.Owner.ID, r.booking.Type)
}
