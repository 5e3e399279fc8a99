package race

import "time"

// Outcome is the resolution of one session.
type Outcome string

const (
	OutcomeSuccess          Outcome = "SUCCESS"
	OutcomeFailOverCapacity Outcome = "FAIL_OVER_CAPACITY"
	OutcomeFailEntry        Outcome = "FAIL_ENTRY"
	OutcomeUnknown          Outcome = "UNKNOWN"
)

// ParseOutcome maps a result token onto an Outcome; unrecognised tokens map
// to OutcomeUnknown.
func ParseOutcome(s string) Outcome {
	switch Outcome(s) {
	case OutcomeSuccess, OutcomeFailOverCapacity, OutcomeFailEntry:
		return Outcome(s)
	}
	return OutcomeUnknown
}

// Session is one user's attempt to enter a room, from its start event to its
// terminal event. Sessions are immutable once written to CSV.
type Session struct {
	RoomID    int
	UserID    string
	Technique string
	Sequence  int // 1-based rank by start time within the room
	Bin       int
	Outcome   Outcome

	OccupancyPrev int
	OccupancyCurr int
	CapacityMax   int
	CountsKnown   bool // false when the log lines carried no head counts

	ExpectedOccupancy int
	HasExpected       bool

	StartWall time.Time
	EndWall   time.Time
	StartNano NanoTime
	EndNano   NanoTime
	EnterWall time.Time // zero unless the technique logs an entry marker
	EnterNano NanoTime

	startLine int
}

// HasEnter reports whether an entry marker was matched to the session.
func (s Session) HasEnter() bool {
	return s.EnterNano.Valid || !s.EnterWall.IsZero()
}

// Interval returns the session's [start, end] under clock c.
func (s Session) Interval(c Clock) (start, end uint64, ok bool) {
	if c == ClockNano {
		if !s.StartNano.Valid || !s.EndNano.Valid {
			return 0, 0, false
		}
		return s.StartNano.Value, s.EndNano.Value, true
	}
	if s.StartWall.IsZero() || s.EndWall.IsZero() {
		return 0, 0, false
	}
	return wallKey(s.StartWall), wallKey(s.EndWall), true
}

// sessionClock picks the clock for one room's sessions: nanoseconds when every
// session has both readings, otherwise wall time.
func sessionClock(sessions []Session) Clock {
	for _, s := range sessions {
		if !s.StartNano.Valid || !s.EndNano.Valid {
			return ClockWall
		}
	}
	return ClockNano
}

// span measures to - from, preferring the nanosecond counter.
func span(fromWall, toWall time.Time, fromNano, toNano NanoTime) (int64, bool) {
	if fromNano.Valid && toNano.Valid {
		if toNano.Value >= fromNano.Value {
			return int64(toNano.Value - fromNano.Value), true
		}
		return -int64(fromNano.Value - toNano.Value), true
	}
	if fromWall.IsZero() || toWall.IsZero() {
		return 0, false
	}
	return toWall.Sub(fromWall).Nanoseconds(), true
}

// CriticalSectionNanos is end - start.
func (s Session) CriticalSectionNanos() (int64, bool) {
	return span(s.StartWall, s.EndWall, s.StartNano, s.EndNano)
}

// WaitNanos is the time from request to entry marker.
func (s Session) WaitNanos() (int64, bool) {
	if !s.HasEnter() {
		return 0, false
	}
	return span(s.StartWall, s.EnterWall, s.StartNano, s.EnterNano)
}

// DwellNanos is the time from entry marker to exit for successful sessions.
func (s Session) DwellNanos() (int64, bool) {
	if !s.HasEnter() || s.Outcome != OutcomeSuccess {
		return 0, false
	}
	return span(s.EnterWall, s.EndWall, s.EnterNano, s.EndNano)
}

// FailProcessingNanos is the time from entry marker to exit for sessions
// rejected over capacity.
func (s Session) FailProcessingNanos() (int64, bool) {
	if !s.HasEnter() || s.Outcome != OutcomeFailOverCapacity {
		return 0, false
	}
	return span(s.EnterWall, s.EndWall, s.EnterNano, s.EndNano)
}
