package stats

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/joinrace/joinrace/race"
)

// OutcomeSummary counts sessions by join result.
type OutcomeSummary struct {
	Total            int
	Success          int
	FailEntry        int
	FailOverCapacity int
	Unknown          int
}

// SummarizeOutcomes tallies the outcome of every session.
func SummarizeOutcomes(sessions []race.Session) OutcomeSummary {
	o := OutcomeSummary{Total: len(sessions)}
	for _, s := range sessions {
		switch s.Outcome {
		case race.OutcomeSuccess:
			o.Success++
		case race.OutcomeFailEntry:
			o.FailEntry++
		case race.OutcomeFailOverCapacity:
			o.FailOverCapacity++
		default:
			o.Unknown++
		}
	}
	return o
}

// Rate returns n as a fraction of the total, 0 when there are no sessions.
func (o OutcomeSummary) Rate(n int) float64 {
	return ratio(n, o.Total)
}

// Print writes the summary in the console layout used by every command.
func (o OutcomeSummary) Print(w io.Writer) {
	_, _ = fmt.Fprintln(w, "=== Outcome Summary ===")
	_, _ = fmt.Fprintf(w, "Total sessions       : %d\n", o.Total)
	_, _ = fmt.Fprintf(w, "Success              : %d (%.2f%%)\n", o.Success, 100*o.Rate(o.Success))
	_, _ = fmt.Fprintf(w, "Fail over capacity   : %d (%.2f%%)\n", o.FailOverCapacity, 100*o.Rate(o.FailOverCapacity))
	_, _ = fmt.Fprintf(w, "Fail entry           : %d (%.2f%%)\n", o.FailEntry, 100*o.Rate(o.FailEntry))
	if o.Unknown > 0 {
		_, _ = fmt.Fprintf(w, "Unknown              : %d (%.2f%%)\n", o.Unknown, 100*o.Rate(o.Unknown))
	}
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// Sessions strips records back to their sessions.
func Sessions(records []race.AnomalyRecord) []race.Session {
	out := make([]race.Session, len(records))
	for i, r := range records {
		out[i] = r.Session
	}
	return out
}

// RoomBin identifies one room×bin cell.
type RoomBin struct {
	Room int
	Bin  int
}

// Totals holds request counts, the denominators of every rate.
type Totals struct {
	Requests int
	Rooms    map[int]int
	Cells    map[RoomBin]int
}

// CountRequests counts sessions overall, per room and per room×bin.
func CountRequests(sessions []race.Session) Totals {
	t := Totals{Requests: len(sessions), Rooms: map[int]int{}, Cells: map[RoomBin]int{}}
	for _, s := range sessions {
		t.Rooms[s.RoomID]++
		t.Cells[RoomBin{s.RoomID, s.Bin}]++
	}
	return t
}

// RuleStats summarizes one rule across the whole dataset. Rates are fractions.
type RuleStats struct {
	Rule            string
	ObservedPattern bool // the label records a pattern, not a defect
	Occurrences     int
	Rate            float64
	AffectedRooms   int
	AffectedCells   int
	MeanRoomRate    float64 // mean over affected rooms of count/room requests
	MeanBinRate     float64 // mean over affected cells of count/cell requests
	Magnitude       ValueStats
}

// Magnitude is the size of a rule's violation for one record. State
// transitions are measured by absolute difference.
func Magnitude(r race.AnomalyRecord, rule string) float64 {
	switch rule {
	case race.LabelLostUpdate:
		return float64(r.LostUpdateDiff)
	case race.LabelContention, race.LabelConcurrentExecution:
		return float64(r.ContentionGroupSize)
	case race.LabelCapacityExceeded:
		return float64(r.OverCapacityAmount)
	case race.LabelStateTransition:
		return math.Abs(float64(r.CurrSequenceDiff))
	}
	return 0
}

// canonicalRules is the display order of rule labels.
var canonicalRules = []string{
	race.LabelLostUpdate,
	race.LabelContention,
	race.LabelConcurrentExecution,
	race.LabelCapacityExceeded,
	race.LabelStateTransition,
}

// RulesFor returns the labels to report for records, in display order. The
// rules are those enabled by the profiles of the techniques named in the
// records' technique column, looked up in techniques (nil means the
// built-ins), plus any label the records carry. When a record names no
// technique or an unknown one, every rule is reported except the contention
// label the records never use.
func RulesFor(records []race.AnomalyRecord, techniques race.TechniqueTable) []string {
	if techniques == nil {
		techniques = race.BuiltinTechniques()
	}
	enabled := make(map[string]bool)
	resolved := len(records) > 0
	looked := make(map[string]bool)
	for _, r := range records {
		for _, label := range r.Labels {
			enabled[label] = true
		}
		if r.Technique == "" {
			resolved = false
			continue
		}
		if looked[r.Technique] {
			continue
		}
		looked[r.Technique] = true
		tech, err := techniques.Lookup(r.Technique)
		if err != nil {
			resolved = false
			continue
		}
		for _, label := range tech.Rules.Labels() {
			enabled[label] = true
		}
	}
	if !resolved {
		return allRules(records)
	}
	var out []string
	for _, rule := range canonicalRules {
		if enabled[rule] {
			out = append(out, rule)
		}
	}
	return out
}

// allRules is every rule, with the contention variant the records use.
func allRules(records []race.AnomalyRecord) []string {
	contention := race.LabelContention
	for _, r := range records {
		if r.Has(race.LabelConcurrentExecution) {
			contention = race.LabelConcurrentExecution
			break
		}
	}
	var out []string
	for _, rule := range canonicalRules {
		if (rule == race.LabelContention || rule == race.LabelConcurrentExecution) && rule != contention {
			continue
		}
		out = append(out, rule)
	}
	return out
}

// ComputeRuleStats computes RuleStats for each of rules, in order.
func ComputeRuleStats(records []race.AnomalyRecord, rules []string) []RuleStats {
	totals := CountRequests(Sessions(records))
	out := make([]RuleStats, 0, len(rules))
	for _, rule := range rules {
		out = append(out, ruleStats(records, totals, rule))
	}
	return out
}

func ruleStats(records []race.AnomalyRecord, totals Totals, rule string) RuleStats {
	rs := RuleStats{Rule: rule, ObservedPattern: rule == race.LabelConcurrentExecution}
	rooms := map[int]int{}
	cells := map[RoomBin]int{}
	var values []float64
	for _, r := range records {
		if !r.Has(rule) {
			continue
		}
		rooms[r.RoomID]++
		cells[RoomBin{r.RoomID, r.Bin}]++
		values = append(values, Magnitude(r, rule))
	}
	rs.Occurrences = len(values)
	rs.Rate = ratio(rs.Occurrences, totals.Requests)
	rs.AffectedRooms = len(rooms)
	rs.AffectedCells = len(cells)
	rs.Magnitude = Describe(values)

	if len(rooms) > 0 {
		sum := 0.0
		for room, n := range rooms {
			sum += ratio(n, totals.Rooms[room])
		}
		rs.MeanRoomRate = sum / float64(len(rooms))
	}
	if len(cells) > 0 {
		sum := 0.0
		for cell, n := range cells {
			sum += ratio(n, totals.Cells[cell])
		}
		rs.MeanBinRate = sum / float64(len(cells))
	}
	return rs
}

// RoomCount holds one room's request total and per-rule occurrences.
type RoomCount struct {
	Room      int
	Requests  int
	Anomalous int
	Counts    map[string]int
}

// CellCount holds one room×bin cell's request total and per-rule occurrences.
type CellCount struct {
	RoomBin
	Requests  int
	Anomalous int
	Counts    map[string]int
}

// Breakdown is the per-room and per-bin view of a record set, sorted by
// room then bin.
type Breakdown struct {
	Rules []string
	Rooms []RoomCount
	Cells []CellCount
}

// BreakDown counts rule occurrences per room and per room×bin.
func BreakDown(records []race.AnomalyRecord, rules []string) Breakdown {
	rooms := map[int]*RoomCount{}
	cells := map[RoomBin]*CellCount{}
	for _, r := range records {
		rc, ok := rooms[r.RoomID]
		if !ok {
			rc = &RoomCount{Room: r.RoomID, Counts: map[string]int{}}
			rooms[r.RoomID] = rc
		}
		key := RoomBin{r.RoomID, r.Bin}
		cc, ok := cells[key]
		if !ok {
			cc = &CellCount{RoomBin: key, Counts: map[string]int{}}
			cells[key] = cc
		}
		rc.Requests++
		cc.Requests++
		if r.IsAnomalous() {
			rc.Anomalous++
			cc.Anomalous++
		}
		for _, rule := range rules {
			if r.Has(rule) {
				rc.Counts[rule]++
				cc.Counts[rule]++
			}
		}
	}

	b := Breakdown{Rules: rules}
	for _, rc := range rooms {
		b.Rooms = append(b.Rooms, *rc)
	}
	for _, cc := range cells {
		b.Cells = append(b.Cells, *cc)
	}
	sort.Slice(b.Rooms, func(i, j int) bool { return b.Rooms[i].Room < b.Rooms[j].Room })
	sort.Slice(b.Cells, func(i, j int) bool {
		if b.Cells[i].Room != b.Cells[j].Room {
			return b.Cells[i].Room < b.Cells[j].Room
		}
		return b.Cells[i].Bin < b.Cells[j].Bin
	})
	return b
}

// CheckConsistency verifies that, for every rule and room, the bin counts
// sum to the room count. The first mismatch is returned as an error.
func (b Breakdown) CheckConsistency() error {
	sums := map[int]map[string]int{}
	requests := map[int]int{}
	for _, c := range b.Cells {
		if sums[c.Room] == nil {
			sums[c.Room] = map[string]int{}
		}
		for rule, n := range c.Counts {
			sums[c.Room][rule] += n
		}
		requests[c.Room] += c.Requests
	}
	for _, r := range b.Rooms {
		if requests[r.Room] != r.Requests {
			return fmt.Errorf("room %d: bins hold %d requests, room holds %d", r.Room, requests[r.Room], r.Requests)
		}
		for _, rule := range b.Rules {
			if got := sums[r.Room][rule]; got != r.Counts[rule] {
				return fmt.Errorf("room %d rule %s: bins sum to %d, room count is %d", r.Room, rule, got, r.Counts[rule])
			}
		}
	}
	return nil
}
