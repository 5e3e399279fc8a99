// Package stats aggregates anomaly records and session timings into the
// numbers the reports and charts display.
package stats

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/joinrace/joinrace/race"
)

// ValueStats describes a sample of magnitudes.
type ValueStats struct {
	Count  int
	Sum    float64
	Mean   float64
	Min    float64
	Max    float64
	Median float64
	P95    float64
	Std    float64 // sample standard deviation; 0 for fewer than two values
}

// Describe computes ValueStats over values. The input is not modified.
func Describe(values []float64) ValueStats {
	vs := ValueStats{Count: len(values)}
	if len(values) == 0 {
		return vs
	}
	vs.Sum = floats.Sum(values)
	vs.Mean = stat.Mean(values, nil)
	vs.Min = floats.Min(values)
	vs.Max = floats.Max(values)
	vs.Median = race.CalculateMedian(values)
	sorted := append([]float64(nil), values...)
	floats.Argsort(sorted, make([]int, len(sorted)))
	vs.P95 = race.CalculatePercentile(sorted, 95)
	if len(values) > 1 {
		vs.Std = stat.StdDev(values, nil)
	}
	return vs
}

// Unit is a display unit for nanosecond durations.
type Unit string

const (
	UnitNanos  Unit = "ns"
	UnitMicros Unit = "us"
	UnitMillis Unit = "ms"
)

// Divisor converts nanoseconds into the unit.
func (u Unit) Divisor() float64 {
	switch u {
	case UnitMicros:
		return 1e3
	case UnitMillis:
		return 1e6
	}
	return 1
}

// ParseUnit accepts ns, us, µs and ms.
func ParseUnit(s string) (Unit, bool) {
	switch s {
	case "ns", "":
		return UnitNanos, true
	case "us", "µs":
		return UnitMicros, true
	case "ms":
		return UnitMillis, true
	}
	return "", false
}

// Scaled returns a copy of vs with every magnitude divided for unit u.
func (vs ValueStats) Scaled(u Unit) ValueStats {
	d := u.Divisor()
	return ValueStats{
		Count:  vs.Count,
		Sum:    vs.Sum / d,
		Mean:   vs.Mean / d,
		Min:    vs.Min / d,
		Max:    vs.Max / d,
		Median: vs.Median / d,
		P95:    vs.P95 / d,
		Std:    vs.Std / d,
	}
}
