package stats

import (
	"sort"

	"github.com/joinrace/joinrace/race"
)

// Metric names one timing measurement of a session.
type Metric string

const (
	MetricWait            Metric = "wait"             // enter - start
	MetricDwell           Metric = "dwell"            // end - enter, SUCCESS only
	MetricFailProcessing  Metric = "fail_processing"  // end - enter, FAIL_OVER_CAPACITY only
	MetricCriticalSection Metric = "critical_section" // end - start
)

// Metrics lists every timing metric in display order.
var Metrics = []Metric{MetricWait, MetricDwell, MetricFailProcessing, MetricCriticalSection}

// Value returns the metric for s in nanoseconds. Missing and negative
// durations are reported as absent.
func (m Metric) Value(s race.Session) (float64, bool) {
	var d int64
	var ok bool
	switch m {
	case MetricWait:
		d, ok = s.WaitNanos()
	case MetricDwell:
		d, ok = s.DwellNanos()
	case MetricFailProcessing:
		d, ok = s.FailProcessingNanos()
	case MetricCriticalSection:
		d, ok = s.CriticalSectionNanos()
	}
	if !ok || d < 0 {
		return 0, false
	}
	return float64(d), true
}

// TimingRow is the distribution of one metric over one group. Room and Bin
// are zero for rows that do not group by them.
type TimingRow struct {
	Metric Metric
	Room   int
	Bin    int
	Stats  ValueStats
}

// TimingReport holds timing distributions overall, per room and per
// room×bin. Overall always has one row per metric; grouped rows are present
// only for groups with at least one value.
type TimingReport struct {
	Unit    Unit
	Overall []TimingRow
	PerRoom []TimingRow
	PerBin  []TimingRow
}

// ComputeTiming measures every metric across sessions, in nanoseconds.
func ComputeTiming(sessions []race.Session) TimingReport {
	rep := TimingReport{Unit: UnitNanos}
	for _, m := range Metrics {
		all := []float64{}
		rooms := map[int][]float64{}
		cells := map[RoomBin][]float64{}
		for _, s := range sessions {
			v, ok := m.Value(s)
			if !ok {
				continue
			}
			all = append(all, v)
			rooms[s.RoomID] = append(rooms[s.RoomID], v)
			key := RoomBin{s.RoomID, s.Bin}
			cells[key] = append(cells[key], v)
		}
		rep.Overall = append(rep.Overall, TimingRow{Metric: m, Stats: Describe(all)})

		roomIDs := make([]int, 0, len(rooms))
		for id := range rooms {
			roomIDs = append(roomIDs, id)
		}
		sort.Ints(roomIDs)
		for _, id := range roomIDs {
			rep.PerRoom = append(rep.PerRoom, TimingRow{Metric: m, Room: id, Stats: Describe(rooms[id])})
		}

		keys := make([]RoomBin, 0, len(cells))
		for k := range cells {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].Room != keys[j].Room {
				return keys[i].Room < keys[j].Room
			}
			return keys[i].Bin < keys[j].Bin
		})
		for _, k := range keys {
			rep.PerBin = append(rep.PerBin, TimingRow{Metric: m, Room: k.Room, Bin: k.Bin, Stats: Describe(cells[k])})
		}
	}
	return rep
}

// Scaled returns a copy of the report in unit u. A report is always computed
// in nanoseconds; scaling twice is not supported.
func (t TimingReport) Scaled(u Unit) TimingReport {
	scale := func(rows []TimingRow) []TimingRow {
		out := make([]TimingRow, len(rows))
		for i, r := range rows {
			r.Stats = r.Stats.Scaled(u)
			out[i] = r
		}
		return out
	}
	return TimingReport{
		Unit:    u,
		Overall: scale(t.Overall),
		PerRoom: scale(t.PerRoom),
		PerBin:  scale(t.PerBin),
	}
}

// Row returns the overall row for m.
func (t TimingReport) Row(m Metric) (TimingRow, bool) {
	for _, r := range t.Overall {
		if r.Metric == m {
			return r, true
		}
	}
	return TimingRow{}, false
}
