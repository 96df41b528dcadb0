// Tracks simulation-wide, per-element-type and per-resource statistics.

package sim

import (
	"fmt"
	"io"
	"os"
	"sort"
)

// ElementTypeStats aggregates the elements of one type.
type ElementTypeStats struct {
	Created       int
	Finished      int
	TotalFlowTime int64
	// FlowTimes holds the flow time of every finished element, in finish order.
	FlowTimes []int64
}

// MeanFlowTime is the average time from creation to finish.
func (s *ElementTypeStats) MeanFlowTime() float64 {
	if s.Finished == 0 {
		return 0
	}
	return float64(s.TotalFlowTime) / float64(s.Finished)
}

// Metrics aggregates statistics about the simulation for final reporting.
type Metrics struct {
	ElementsCreated    int
	ElementsFinished   int
	ElementsInProgress int
	TotalFlowTime      int64
	PerType            map[string]*ElementTypeStats

	EventsExecuted int64
	// CausalityViolations counts events scheduled before the clock.
	CausalityViolations int
	// AccountingErrors counts double seizes and releases of unknown groups.
	AccountingErrors int

	QueuedAtEnd  int
	PeakQueue    map[int]int      // activity manager ID -> longest queue seen
	ResourceBusy map[string]int64 // resource description -> ticks booked

	SimStartTime int64
	SimEndedTime int64
}

// NewMetrics creates empty metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		PerType:      make(map[string]*ElementTypeStats),
		PeakQueue:    make(map[int]int),
		ResourceBusy: make(map[string]int64),
	}
}

func (m *Metrics) typeStats(et *ElementType) *ElementTypeStats {
	s, ok := m.PerType[et.Description]
	if !ok {
		s = &ElementTypeStats{}
		m.PerType[et.Description] = s
	}
	return s
}

func (m *Metrics) elementCreated(et *ElementType) {
	m.ElementsCreated++
	m.typeStats(et).Created++
}

func (m *Metrics) elementFinished(et *ElementType, flowTime int64) {
	m.ElementsFinished++
	m.TotalFlowTime += flowTime
	s := m.typeStats(et)
	s.Finished++
	s.TotalFlowTime += flowTime
	s.FlowTimes = append(s.FlowTimes, flowTime)
}

func (m *Metrics) observeQueue(am *ActivityManager) {
	if am.peakQueue > m.PeakQueue[am.id] {
		m.PeakQueue[am.id] = am.peakQueue
	}
}

// collectResources closes open bookings at end and records busy time.
func (m *Metrics) collectResources(resources []*Resource, end int64) {
	for _, r := range resources {
		busy := r.busyTime
		if r.booking != nil && end > r.busySince {
			busy += end - r.busySince
		}
		m.ResourceBusy[r.Description] = busy
	}
}

// MeanFlowTime is the average flow time over every finished element.
func (m *Metrics) MeanFlowTime() float64 {
	if m.ElementsFinished == 0 {
		return 0
	}
	return float64(m.TotalFlowTime) / float64(m.ElementsFinished)
}

// Utilization is the fraction of the run a resource spent booked.
func (m *Metrics) Utilization(resource string) float64 {
	span := m.SimEndedTime - m.SimStartTime
	if span <= 0 {
		return 0
	}
	return float64(m.ResourceBusy[resource]) / float64(span)
}

// Print writes the report to stdout.
func (m *Metrics) Print() {
	m.Fprint(os.Stdout)
}

// Fprint writes aggregated metrics at the end of the simulation to w.
func (m *Metrics) Fprint(w io.Writer) {
	fmt.Fprintln(w, "=== Simulation Metrics ===")
	fmt.Fprintf(w, "Simulated Time       : %d - %d\n", m.SimStartTime, m.SimEndedTime)
	fmt.Fprintf(w, "Events Executed      : %d\n", m.EventsExecuted)
	fmt.Fprintf(w, "Elements Created     : %d\n", m.ElementsCreated)
	fmt.Fprintf(w, "Elements Finished    : %d\n", m.ElementsFinished)
	fmt.Fprintf(w, "Elements In Progress : %d\n", m.ElementsInProgress)
	if m.ElementsFinished > 0 {
		fmt.Fprintf(w, "Mean Flow Time       : %.2f ticks\n", m.MeanFlowTime())
	}
	fmt.Fprintf(w, "Queued At End        : %d\n", m.QueuedAtEnd)
	if m.CausalityViolations > 0 || m.AccountingErrors > 0 {
		fmt.Fprintf(w, "Causality Violations : %d\n", m.CausalityViolations)
		fmt.Fprintf(w, "Accounting Errors    : %d\n", m.AccountingErrors)
	}

	types := make([]string, 0, len(m.PerType))
	for name := range m.PerType {
		types = append(types, name)
	}
	sort.Strings(types)
	for _, name := range types {
		s := m.PerType[name]
		fmt.Fprintf(w, "  %-18s created=%d finished=%d mean_flow=%.2f\n", name, s.Created, s.Finished, s.MeanFlowTime())
	}

	resources := make([]string, 0, len(m.ResourceBusy))
	for name := range m.ResourceBusy {
		resources = append(resources, name)
	}
	sort.Strings(resources)
	for _, name := range resources {
		fmt.Fprintf(w, "  %-18s busy=%d utilization=%.3f\n", name, m.ResourceBusy[name], m.Utilization(name))
	}
}
