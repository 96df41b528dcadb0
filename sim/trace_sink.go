package sim

import "github.com/flowsim/flowsim/sim/trace"

// TraceSink records notifications into a trace.SimulationTrace according to
// the trace's level.
type TraceSink struct {
	Trace *trace.SimulationTrace
}

// NewTraceSink creates a sink writing into st.
func NewTraceSink(st *trace.SimulationTrace) *TraceSink {
	return &TraceSink{Trace: st}
}

func (s *TraceSink) Notify(info Info) {
	if s.Trace == nil {
		return
	}
	cfg := s.Trace.Config
	switch info.Kind {
	case InfoRoleOn, InfoRoleOff, InfoCancelPeriodOn, InfoCancelPeriodOff:
		if cfg.CapturesResources() {
			s.Trace.RecordResource(trace.ResourceRecord{
				Kind:         string(info.Kind),
				Clock:        info.Clock,
				Resource:     info.Resource,
				ResourceType: info.ResourceType,
				Value:        info.Value,
			})
		}
	case InfoSimStart, InfoSimEnd, InfoTick:
	default:
		if cfg.CapturesActivities() {
			s.Trace.RecordActivity(trace.ActivityRecord{
				Kind:         string(info.Kind),
				Clock:        info.Clock,
				ElementID:    info.ElementID,
				ElementType:  info.ElementType,
				Instance:     int(info.Instance),
				Flow:         info.Flow,
				Manager:      info.Manager,
				Resource:     info.Resource,
				ResourceType: info.ResourceType,
				Value:        info.Value,
			})
		}
	}
}
