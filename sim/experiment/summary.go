package experiment

import (
	"fmt"
	"io"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stat describes one metric across runs.
type Stat struct {
	Mean   float64
	StdDev float64
	Min    float64
	P50    float64
	P90    float64
	Max    float64
}

// Summary aggregates metrics over every run of an experiment.
type Summary struct {
	Runs         int
	Finished     Stat
	MeanFlowTime Stat
	QueuedAtEnd  Stat
	// Utilization is keyed by resource description.
	Utilization map[string]Stat
}

// Summarize computes a Summary. Runs without metrics are skipped.
func Summarize(runs []RunResult) Summary {
	var finished, flow, queued []float64
	util := make(map[string][]float64)
	for _, r := range runs {
		m := r.Metrics
		if m == nil {
			continue
		}
		finished = append(finished, float64(m.ElementsFinished))
		flow = append(flow, m.MeanFlowTime())
		queued = append(queued, float64(m.QueuedAtEnd))
		for name := range m.ResourceBusy {
			util[name] = append(util[name], m.Utilization(name))
		}
	}
	s := Summary{
		Runs:         len(finished),
		Finished:     describe(finished),
		MeanFlowTime: describe(flow),
		QueuedAtEnd:  describe(queued),
		Utilization:  make(map[string]Stat, len(util)),
	}
	for name, xs := range util {
		s.Utilization[name] = describe(xs)
	}
	return s
}

func describe(xs []float64) Stat {
	if len(xs) == 0 {
		return Stat{}
	}
	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	var st Stat
	if len(sorted) == 1 {
		st.Mean = sorted[0]
	} else {
		st.Mean, st.StdDev = stat.MeanStdDev(sorted, nil)
	}
	st.Min = floats.Min(sorted)
	st.Max = floats.Max(sorted)
	st.P50 = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	st.P90 = stat.Quantile(0.9, stat.Empirical, sorted, nil)
	return st
}

// Fprint writes the summary as a table to w.
func (s Summary) Fprint(w io.Writer) {
	fmt.Fprintf(w, "=== Experiment Summary (%d runs) ===\n", s.Runs)
	fmt.Fprintf(w, "%-22s %10s %10s %10s %10s %10s %10s\n", "metric", "mean", "stddev", "min", "p50", "p90", "max")
	row := func(name string, st Stat) {
		fmt.Fprintf(w, "%-22s %10.3f %10.3f %10.3f %10.3f %10.3f %10.3f\n",
			name, st.Mean, st.StdDev, st.Min, st.P50, st.P90, st.Max)
	}
	row("elements finished", s.Finished)
	row("mean flow time", s.MeanFlowTime)
	row("queued at end", s.QueuedAtEnd)

	names := make([]string, 0, len(s.Utilization))
	for name := range s.Utilization {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		row("util "+name, s.Utilization[name])
	}
}
