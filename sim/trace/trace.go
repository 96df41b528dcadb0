package trace

// TraceLevel controls the verbosity of simulation tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelActivities captures element and activity milestones.
	TraceLevelActivities TraceLevel = "activities"
	// TraceLevelAll also captures resource availability changes.
	TraceLevelAll TraceLevel = "all"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:       true,
	TraceLevelActivities: true,
	TraceLevelAll:        true,
	"":                   true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// CapturesActivities reports whether activity records are kept.
func (c TraceConfig) CapturesActivities() bool {
	return c.Level == TraceLevelActivities || c.Level == TraceLevelAll
}

// CapturesResources reports whether resource records are kept.
func (c TraceConfig) CapturesResources() bool {
	return c.Level == TraceLevelAll
}

// SimulationTrace collects records during one simulation run.
type SimulationTrace struct {
	Config     TraceConfig
	Activities []ActivityRecord
	Resources  []ResourceRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config:     config,
		Activities: make([]ActivityRecord, 0),
		Resources:  make([]ResourceRecord, 0),
	}
}

// RecordActivity appends an activity record.
func (st *SimulationTrace) RecordActivity(record ActivityRecord) {
	st.Activities = append(st.Activities, record)
}

// RecordResource appends a resource record.
func (st *SimulationTrace) RecordResource(record ResourceRecord) {
	st.Resources = append(st.Resources, record)
}
