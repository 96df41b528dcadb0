package trace

// Activity record kinds the summary understands. They mirror the
// notification kinds emitted by the engine.
const (
	KindElementStart      = "element_start"
	KindElementFinish     = "element_finish"
	KindResourceAcquired  = "resource_acquired"
	KindActivityQueued    = "activity_queued"
	KindActivityStart     = "activity_start"
	KindActivityResume    = "activity_resume"
	KindActivityInterrupt = "activity_interrupt"
	KindActivityEnd       = "activity_end"
)

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	TotalActivities  int
	ElementsStarted  int
	ElementsFinished int
	Activities       int // completed request-step activities
	Interruptions    int
	// MeanWait is the mean time between queueing and starting (or resuming)
	// over the waits that ended.
	MeanWait             float64
	MaxWait              int64
	UniqueResources      int
	AcquisitionsResource map[string]int // resource -> number of seizes
	ResourceChanges      int
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{
		AcquisitionsResource: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	summary.TotalActivities = len(st.Activities)
	summary.ResourceChanges = len(st.Resources)
	queuedAt := make(map[int]int64)
	waits, totalWait := 0, int64(0)
	for _, a := range st.Activities {
		switch a.Kind {
		case KindElementStart:
			summary.ElementsStarted++
		case KindElementFinish:
			summary.ElementsFinished++
		case KindResourceAcquired:
			summary.AcquisitionsResource[a.Resource]++
		case KindActivityQueued:
			queuedAt[a.Instance] = a.Clock
		case KindActivityStart, KindActivityResume:
			if since, ok := queuedAt[a.Instance]; ok {
				w := a.Clock - since
				totalWait += w
				waits++
				if w > summary.MaxWait {
					summary.MaxWait = w
				}
				delete(queuedAt, a.Instance)
			}
		case KindActivityInterrupt:
			summary.Interruptions++
		case KindActivityEnd:
			summary.Activities++
		}
	}
	if waits > 0 {
		summary.MeanWait = float64(totalWait) / float64(waits)
	}
	summary.UniqueResources = len(summary.AcquisitionsResource)

	return summary
}
