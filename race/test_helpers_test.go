package race

import (
	"time"

	"github.com/joinrace/joinrace/race/internal/testutil"
)

// nanoSession builds a session with nanosecond bounds and no head counts.
func nanoSession(room int, user string, seq int, start, end uint64) Session {
	return Session{
		RoomID:    room,
		UserID:    user,
		Sequence:  seq,
		Outcome:   OutcomeSuccess,
		StartNano: Nano(start),
		EndNano:   Nano(end),
		StartWall: time.Unix(0, int64(start)).UTC(),
		EndWall:   time.Unix(0, int64(end)).UTC(),
	}
}

func fromGoldenSessions(in []testutil.GoldenSession) []Session {
	out := make([]Session, 0, len(in))
	for _, g := range in {
		s := nanoSession(g.Room, g.User, g.Sequence, g.StartNano, g.EndNano)
		s.Outcome = ParseOutcome(g.Outcome)
		if g.Prev != nil && g.Curr != nil && g.Max != nil {
			s.OccupancyPrev, s.OccupancyCurr, s.CapacityMax = *g.Prev, *g.Curr, *g.Max
			s.CountsKnown = true
		}
		if g.Expected != nil {
			s.ExpectedOccupancy = *g.Expected
			s.HasExpected = true
		}
		out = append(out, s)
	}
	return out
}

func fromGoldenEvents(in []testutil.GoldenEvent) []RawEvent {
	out := make([]RawEvent, 0, len(in))
	for _, g := range in {
		ev := RawEvent{
			Line:     g.Line,
			RoomID:   g.Room,
			UserID:   g.User,
			Kind:     g.Tag,
			Result:   g.Result,
			Nano:     Nano(g.Nano),
			WallTime: time.Unix(0, int64(g.Nano)).UTC(),
		}
		if g.Curr != nil && g.Max != nil {
			ev.Occupancy, ev.Capacity, ev.CountsKnown = *g.Curr, *g.Max, true
		}
		out = append(out, ev)
	}
	return out
}

// lockEvent builds a lock-technique event with head counts.
func lockEvent(line, room int, user, tag string, nano uint64, curr, capacity int) RawEvent {
	return RawEvent{
		Line:        line,
		RoomID:      room,
		UserID:      user,
		Kind:        tag,
		Nano:        Nano(nano),
		WallTime:    time.Unix(0, int64(nano)).UTC(),
		Occupancy:   curr,
		Capacity:    capacity,
		CountsKnown: true,
	}
}

func mustTechnique(name string) Technique {
	t, err := BuiltinTechniques().Lookup(name)
	if err != nil {
		panic(err)
	}
	return t
}
