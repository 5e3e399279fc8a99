package race

import (
	"sort"

	"github.com/sirupsen/logrus"
)

// Overlaps is the symmetric overlap relation of one room's sessions.
// Others[i] lists the indexes of every other session whose interval
// intersects session i's, ordered by start time.
type Overlaps struct {
	Clock  Clock
	Others [][]int
}

// GroupSize is 1 plus the number of sessions overlapping session i.
func (o Overlaps) GroupSize(i int) int {
	return 1 + len(o.Others[i])
}

// FindOverlaps computes the overlap relation for sessions of a single room.
//
// Intervals are closed: [s1,e1] and [s2,e2] overlap iff !(e1 < s2 || e2 < s1),
// so sessions that touch at a single instant overlap. The sweep visits
// sessions in start order and keeps a min-heap of active end points; every
// interval still active when a new one starts overlaps it. Sessions without a
// reading for the room clock, or whose end precedes their start, overlap
// nothing.
func FindOverlaps(sessions []Session) Overlaps {
	clock := sessionClock(sessions)
	others := make([][]int, len(sessions))

	type bounds struct {
		start, end uint64
		idx        int
	}
	order := make([]bounds, 0, len(sessions))
	for i, s := range sessions {
		start, end, ok := s.Interval(clock)
		if !ok {
			continue
		}
		if end < start {
			logrus.Warnf("room %d: session of user %s (seq %d) ends before it starts on the %s clock, excluded from overlap detection",
				s.RoomID, s.UserID, s.Sequence, clock)
			continue
		}
		order = append(order, bounds{start: start, end: end, idx: i})
	}
	sort.SliceStable(order, func(a, b int) bool {
		return order[a].start < order[b].start
	})

	active := NewEndHeap()
	for pos, b := range order {
		active.CloseBefore(b.start)
		for _, prev := range active.Active() {
			j := order[prev].idx
			others[b.idx] = append(others[b.idx], j)
			others[j] = append(others[j], b.idx)
		}
		active.Open(b.end, pos)
	}

	rank := make([]int, len(sessions))
	for pos, b := range order {
		rank[b.idx] = pos
	}
	for i := range others {
		list := others[i]
		sort.Slice(list, func(a, b int) bool { return rank[list[a]] < rank[list[b]] })
	}
	return Overlaps{Clock: clock, Others: others}
}
