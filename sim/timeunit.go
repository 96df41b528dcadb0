package sim

import (
	"fmt"
	"math/bits"
	"strings"
)

// TimeUnit is the granularity of a simulation tick.
type TimeUnit int

const (
	Millisecond TimeUnit = iota
	Second
	Minute
	Hour
	Day
	Week
	Month
	Year
)

// unitMillis holds the length of each unit in milliseconds.
// Months are 30 days and years 365 days.
var unitMillis = [...]int64{
	Millisecond: 1,
	Second:      1000,
	Minute:      60 * 1000,
	Hour:        60 * 60 * 1000,
	Day:         24 * 60 * 60 * 1000,
	Week:        7 * 24 * 60 * 60 * 1000,
	Month:       30 * 24 * 60 * 60 * 1000,
	Year:        365 * 24 * 60 * 60 * 1000,
}

var unitNames = [...]string{"millisecond", "second", "minute", "hour", "day", "week", "month", "year"}

func (u TimeUnit) String() string {
	if u < Millisecond || u > Year {
		return fmt.Sprintf("TimeUnit(%d)", int(u))
	}
	return unitNames[u]
}

// ParseTimeUnit maps a unit name ("minute", "hours", ...) to a TimeUnit.
// The empty string maps to Minute.
func ParseTimeUnit(s string) (TimeUnit, error) {
	name := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s")
	if name == "" {
		return Minute, nil
	}
	for i, n := range unitNames {
		if n == name {
			return TimeUnit(i), nil
		}
	}
	return 0, fmt.Errorf("unknown time unit %q", s)
}

// Convert expresses value (in unit u) in unit to, truncating toward zero.
// Results outside the int64 range saturate at Infinity or -Infinity.
func (u TimeUnit) Convert(value int64, to TimeUnit) int64 {
	if u == to || value == 0 {
		return value
	}
	from, div := unitMillis[u], unitMillis[to]
	switch {
	case from%div == 0:
		f := from / div
		if value > Infinity/f {
			return Infinity
		}
		if value < -Infinity/f {
			return -Infinity
		}
		return value * f
	case div%from == 0:
		return value / (div / from)
	}

	// Months and weeks: multiply in 128 bits, then divide.
	neg := value < 0
	mag := uint64(value)
	if neg {
		mag = -mag
	}
	hi, lo := bits.Mul64(mag, uint64(from))
	if hi >= uint64(div) {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, uint64(div))
	if q > uint64(Infinity) {
		return saturate(neg)
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

func saturate(neg bool) int64 {
	if neg {
		return -Infinity
	}
	return Infinity
}

// TimeStamp is a (unit, value) pair.
type TimeStamp struct {
	Unit  TimeUnit
	Value int64
}

// Convert returns the timestamp's value expressed in unit to.
func (ts TimeStamp) Convert(to TimeUnit) int64 {
	return ts.Unit.Convert(ts.Value, to)
}

func (ts TimeStamp) String() string {
	return fmt.Sprintf("%d %ss", ts.Value, ts.Unit)
}
