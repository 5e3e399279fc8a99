package trace

import "sort"

// PairingSummary aggregates statistics from a PairingTrace.
type PairingSummary struct {
	Lines           int
	Accepted        int
	Matched         int
	Discarded       int
	DroppedStarts   int
	OrphanTerminals int
	OrphanEnters    int
	DiscardReasons  map[string]int // reason → count
	DroppedByRoom   map[int]int    // room → dropped starts
}

// Summarize computes aggregate statistics from a PairingTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(pt *PairingTrace) *PairingSummary {
	summary := &PairingSummary{
		DiscardReasons: make(map[string]int),
		DroppedByRoom:  make(map[int]int),
	}
	if pt == nil {
		return summary
	}

	summary.Lines = pt.Lines
	summary.Accepted = pt.Accepted
	summary.Matched = pt.Matched
	summary.Discarded = pt.discardedCount
	summary.DroppedStarts = pt.droppedCount
	summary.OrphanTerminals = pt.orphanCount
	summary.OrphanEnters = pt.orphanEnterCount
	for reason, n := range pt.reasons {
		summary.DiscardReasons[reason] = n
	}
	for room, n := range pt.droppedByRoom {
		summary.DroppedByRoom[room] = n
	}
	return summary
}

// Reasons returns the discard reasons in sorted order.
func (s *PairingSummary) Reasons() []string {
	reasons := make([]string, 0, len(s.DiscardReasons))
	for r := range s.DiscardReasons {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	return reasons
}

// DropRooms returns the rooms with dropped starts in ascending order.
func (s *PairingSummary) DropRooms() []int {
	rooms := make([]int, 0, len(s.DroppedByRoom))
	for room := range s.DroppedByRoom {
		rooms = append(rooms, room)
	}
	sort.Ints(rooms)
	return rooms
}
