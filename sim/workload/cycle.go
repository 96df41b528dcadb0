package workload

import (
	"fmt"
	"sort"
)

// Cycle produces activation timestamps within a window.
type Cycle interface {
	Iterator(start, end int64) CycleIterator
}

// CycleIterator yields increasing timestamps and -1 once exhausted.
type CycleIterator interface {
	Next() int64
}

// PeriodicCycle activates at Start, Start+Period, ... A non-positive Period
// activates once. Iterations bounds the number of activations when positive.
type PeriodicCycle struct {
	Start      int64
	Period     int64
	Iterations int
}

func (c PeriodicCycle) Iterator(start, end int64) CycleIterator {
	return &periodicIterator{cycle: c, next: c.Start, start: start, end: end}
}

type periodicIterator struct {
	cycle      PeriodicCycle
	next       int64
	start, end int64
	emitted    int
}

func (it *periodicIterator) Next() int64 {
	for {
		if it.cycle.Iterations > 0 && it.emitted >= it.cycle.Iterations {
			return -1
		}
		if it.next < 0 || it.next >= it.end {
			return -1
		}
		ts := it.next
		it.emitted++
		if it.cycle.Period <= 0 {
			it.next = -1
		} else {
			it.next += it.cycle.Period
		}
		if ts >= it.start {
			return ts
		}
	}
}

// TableCycle activates at explicit timestamps.
type TableCycle struct {
	Timestamps []int64
}

func (c TableCycle) Iterator(start, end int64) CycleIterator {
	ts := make([]int64, 0, len(c.Timestamps))
	for _, t := range c.Timestamps {
		if t >= start && t < end {
			ts = append(ts, t)
		}
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i] < ts[j] })
	return &tableIterator{ts: ts}
}

type tableIterator struct {
	ts  []int64
	pos int
}

func (it *tableIterator) Next() int64 {
	if it.pos >= len(it.ts) {
		return -1
	}
	t := it.ts[it.pos]
	it.pos++
	return t
}

// WeeklyCycle activates at Offset ticks into each listed day (0 = first day
// of the week) of every week, with DayLength ticks per day.
type WeeklyCycle struct {
	Days      []int
	DayLength int64
	Offset    int64
}

func (c WeeklyCycle) Iterator(start, end int64) CycleIterator {
	var ts []int64
	if c.DayLength > 0 {
		seen := make(map[int]bool)
		for _, d := range c.Days {
			if d >= 0 && d < 7 && !seen[d] {
				seen[d] = true
			}
		}
		week := 7 * c.DayLength
		for base := (start / week) * week; base < end; base += week {
			for d := 0; d < 7; d++ {
				if !seen[d] {
					continue
				}
				t := base + int64(d)*c.DayLength + c.Offset
				if t >= start && t < end {
					ts = append(ts, t)
				}
			}
		}
	}
	return &tableIterator{ts: ts}
}

// RoundedCycle rounds each activation of Base up to a multiple of Grid,
// dropping activations that collapse onto the previous one.
type RoundedCycle struct {
	Base Cycle
	Grid int64
}

func (c RoundedCycle) Iterator(start, end int64) CycleIterator {
	return &roundedIterator{base: c.Base.Iterator(start, end), grid: c.Grid, end: end, last: -1}
}

type roundedIterator struct {
	base CycleIterator
	grid int64
	end  int64
	last int64
}

func (it *roundedIterator) Next() int64 {
	for {
		t := it.base.Next()
		if t < 0 {
			return -1
		}
		if it.grid > 0 {
			if r := t % it.grid; r != 0 {
				t += it.grid - r
			}
		}
		if t >= it.end {
			return -1
		}
		if t > it.last {
			it.last = t
			return t
		}
	}
}

// CycleSpec describes a cycle in YAML.
type CycleSpec struct {
	Kind       string     `yaml:"kind"`
	Start      int64      `yaml:"start,omitempty"`
	Period     int64      `yaml:"period,omitempty"`
	Iterations int        `yaml:"iterations,omitempty"`
	Timestamps []int64    `yaml:"timestamps,omitempty"`
	Days       []int      `yaml:"days,omitempty"`
	DayLength  int64      `yaml:"day_length,omitempty"`
	Offset     int64      `yaml:"offset,omitempty"`
	Grid       int64      `yaml:"grid,omitempty"`
	Base       *CycleSpec `yaml:"base,omitempty"`
}

// NewCycle creates a Cycle from a CycleSpec.
func NewCycle(spec CycleSpec) (Cycle, error) {
	switch spec.Kind {
	case "periodic", "":
		if spec.Iterations < 0 {
			return nil, fmt.Errorf("periodic cycle: iterations must be non-negative, got %d", spec.Iterations)
		}
		return PeriodicCycle{Start: spec.Start, Period: spec.Period, Iterations: spec.Iterations}, nil
	case "table":
		if len(spec.Timestamps) == 0 {
			return nil, fmt.Errorf("table cycle requires timestamps")
		}
		return TableCycle{Timestamps: spec.Timestamps}, nil
	case "weekly":
		if spec.DayLength <= 0 {
			return nil, fmt.Errorf("weekly cycle: day_length must be positive, got %d", spec.DayLength)
		}
		for _, d := range spec.Days {
			if d < 0 || d > 6 {
				return nil, fmt.Errorf("weekly cycle: day %d out of range 0-6", d)
			}
		}
		return WeeklyCycle{Days: spec.Days, DayLength: spec.DayLength, Offset: spec.Offset}, nil
	case "rounded":
		if spec.Base == nil {
			return nil, fmt.Errorf("rounded cycle requires a base cycle")
		}
		if spec.Grid <= 0 {
			return nil, fmt.Errorf("rounded cycle: grid must be positive, got %d", spec.Grid)
		}
		base, err := NewCycle(*spec.Base)
		if err != nil {
			return nil, fmt.Errorf("rounded cycle base: %w", err)
		}
		return RoundedCycle{Base: base, Grid: spec.Grid}, nil
	default:
		return nil, fmt.Errorf("unknown cycle kind %q", spec.Kind)
	}
}
