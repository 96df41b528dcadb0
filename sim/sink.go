package sim

// InfoKind names a simulation milestone pushed to an InfoSink.
type InfoKind string

const (
	InfoSimStart          InfoKind = "sim_start"
	InfoSimEnd            InfoKind = "sim_end"
	InfoTick              InfoKind = "tick"
	InfoElementStart      InfoKind = "element_start"
	InfoElementFinish     InfoKind = "element_finish"
	InfoResourceAcquired  InfoKind = "resource_acquired"
	InfoResourceReleased  InfoKind = "resource_released"
	InfoRoleOn            InfoKind = "role_on"
	InfoRoleOff           InfoKind = "role_off"
	InfoCancelPeriodOn    InfoKind = "cancel_period_on"
	InfoCancelPeriodOff   InfoKind = "cancel_period_off"
	InfoActivityRequest   InfoKind = "activity_request"
	InfoActivityQueued    InfoKind = "activity_queued"
	InfoActivityStart     InfoKind = "activity_start"
	InfoActivityResume    InfoKind = "activity_resume"
	InfoActivityInterrupt InfoKind = "activity_interrupt"
	InfoActivityEnd       InfoKind = "activity_end"
)

// Info is one notification. Fields that do not apply to a kind are left zero;
// element and activity-manager IDs start at 1, so zero means "none".
type Info struct {
	Kind         InfoKind
	Clock        int64
	ElementID    int
	ElementType  string
	Instance     InstanceID
	Resource     string
	ResourceType string
	Flow         string
	Manager      int
	Value        float64
}

// InfoSink receives notifications. Its return is never consulted by the engine.
type InfoSink interface {
	Notify(info Info)
}

// SinkFunc adapts a function to InfoSink.
type SinkFunc func(info Info)

func (f SinkFunc) Notify(info Info) { f(info) }

// MultiSink fans a notification out to several sinks in order.
type MultiSink []InfoSink

func (m MultiSink) Notify(info Info) {
	for _, s := range m {
		if s != nil {
			s.Notify(info)
		}
	}
}
