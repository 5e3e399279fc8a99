package race

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// NanoTime is an optional reading of the monotonic nanosecond counter.
// Values are kept as uint64 end to end; they are never converted to float.
type NanoTime struct {
	Value uint64
	Valid bool
}

// Nano returns a valid NanoTime holding v.
func Nano(v uint64) NanoTime {
	return NanoTime{Value: v, Valid: true}
}

// String renders the value in base 10, or "" when absent.
func (n NanoTime) String() string {
	if !n.Valid {
		return ""
	}
	return strconv.FormatUint(n.Value, 10)
}

// ParseNanoTime parses a base-10 unsigned integer. An empty string yields an
// invalid NanoTime without error. Exponent or decimal forms are rejected.
func ParseNanoTime(s string) (NanoTime, error) {
	if s == "" {
		return NanoTime{}, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return NanoTime{}, fmt.Errorf("parsing nano timestamp %q: %w", s, err)
	}
	return Nano(v), nil
}

// RawEvent is one parsed log line. It is consumed by Pair and not persisted.
type RawEvent struct {
	Line        int    // 1-based line number, final ordering tie-breaker
	RoomID      int
	UserID      string
	Kind        string // log tag, e.g. PRE_JOIN_CURRENT_STATE
	Result      string // result token carried by marker lines (SUCCESS, FAIL_OVER_CAPACITY)
	WallTime    time.Time
	Nano        NanoTime
	EpochNano   NanoTime // wall clock in ns when the log carries it; informational
	Occupancy   int      // currentPeople at the time of the log line
	Capacity    int      // maxPeople
	CountsKnown bool     // both currentPeople and maxPeople were present
}

// HasWall reports whether the event carries a calendar timestamp.
func (e RawEvent) HasWall() bool {
	return !e.WallTime.IsZero()
}

// Clock selects which timestamp orders a group of events or sessions.
type Clock int

const (
	// ClockNano orders by the nanosecond counter.
	ClockNano Clock = iota
	// ClockWall orders by the calendar timestamp at nanosecond resolution.
	ClockWall
)

func (c Clock) String() string {
	if c == ClockNano {
		return "nano"
	}
	return "wall"
}

// wallKey maps a calendar timestamp onto the unsigned key space used for
// ordering. Timestamps before the Unix epoch clamp to zero.
func wallKey(t time.Time) uint64 {
	ns := t.UnixNano()
	if ns < 0 {
		return 0
	}
	return uint64(ns)
}

// eventClock picks the clock for a group of events: nanoseconds when every
// event has a counter reading, otherwise wall time.
func eventClock(events []RawEvent) Clock {
	for _, ev := range events {
		if !ev.Nano.Valid {
			return ClockWall
		}
	}
	return ClockNano
}

// key returns the event's ordering key under clock c. ok is false when the
// event has no reading for that clock.
func (e RawEvent) key(c Clock) (uint64, bool) {
	if c == ClockNano {
		return e.Nano.Value, e.Nano.Valid
	}
	if !e.HasWall() {
		return 0, false
	}
	return wallKey(e.WallTime), true
}

// sortEvents orders events by clock key, ties broken by line order.
// Callers must have removed events without a key for c.
func sortEvents(events []RawEvent, c Clock) {
	sort.SliceStable(events, func(i, j int) bool {
		ki, _ := events[i].key(c)
		kj, _ := events[j].key(c)
		if ki != kj {
			return ki < kj
		}
		return events[i].Line < events[j].Line
	})
}
