package race

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/joinrace/joinrace/race/trace"
)

// PairOptions parameterises Pair.
type PairOptions struct {
	Bins BinOptions
}

// openStart is a start event waiting for its terminal event.
type openStart struct {
	start    RawEvent
	enter    RawEvent
	hasEnter bool
}

// userQueues holds the open starts of every user in one room, oldest first.
type userQueues map[string][]*openStart

func (q userQueues) push(ev RawEvent) {
	q[ev.UserID] = append(q[ev.UserID], &openStart{start: ev})
}

// attachEnter gives ev to the oldest open start of its user that has no entry
// marker yet.
func (q userQueues) attachEnter(ev RawEvent) bool {
	for _, o := range q[ev.UserID] {
		if !o.hasEnter {
			o.enter = ev
			o.hasEnter = true
			return true
		}
	}
	return false
}

func (q userQueues) pop(user string) (*openStart, bool) {
	pending := q[user]
	if len(pending) == 0 {
		return nil, false
	}
	head := pending[0]
	if len(pending) == 1 {
		delete(q, user)
	} else {
		q[user] = pending[1:]
	}
	return head, true
}

// Pair reconstructs sessions from an unordered event collection.
//
// Events are grouped by room and user. Each user's events are ordered by that
// user's clock (nanoseconds when all of them carry a counter reading, else
// wall time; ties by line), so one event without a counter never changes the
// order of another user's events. Each (room, user) keeps a FIFO queue of
// open starts: a terminal event closes the oldest open start of its user. Starts left open at the end are dropped and
// terminal events without an open start are ignored; both are noted in tr,
// which may be nil.
//
// The result is ordered by room, then by start time. Sequence and Bin are
// assigned after that re-sort.
func Pair(events []RawEvent, tech Technique, opts PairOptions, tr *trace.PairingTrace) []Session {
	byRoom := make(map[int][]RawEvent)
	for _, ev := range events {
		if tech.Role(ev.Kind) == RoleNone {
			continue
		}
		byRoom[ev.RoomID] = append(byRoom[ev.RoomID], ev)
	}

	rooms := make([]int, 0, len(byRoom))
	for room := range byRoom {
		rooms = append(rooms, room)
	}
	sort.Ints(rooms)

	bins := opts.Bins
	if bins == (BinOptions{}) {
		bins = DefaultBinOptions()
	} else if err := bins.Validate(); err != nil {
		logrus.Warnf("bin options: %v; using defaults", err)
		bins = DefaultBinOptions()
	}

	var out []Session
	for _, room := range rooms {
		sessions := pairRoom(room, byRoom[room], tech, tr)
		assignSequence(sessions, bins)
		out = append(out, sessions...)
	}
	return out
}

func pairRoom(room int, events []RawEvent, tech Technique, tr *trace.PairingTrace) []Session {
	byUser := make(map[string][]RawEvent)
	for _, ev := range events {
		byUser[ev.UserID] = append(byUser[ev.UserID], ev)
	}
	users := make([]string, 0, len(byUser))
	for user := range byUser {
		users = append(users, user)
	}
	sort.Strings(users)

	queues := make(userQueues)
	var sessions []Session
	for _, user := range users {
		for _, ev := range orderUserEvents(room, byUser[user], tr) {
			switch tech.Role(ev.Kind) {
			case RoleStart:
				queues.push(ev)
			case RoleEnter:
				if !queues.attachEnter(ev) {
					logrus.Debugf("room %d line %d: %s for user %s has no open start", room, ev.Line, ev.Kind, ev.UserID)
					tr.RecordOrphanEnter(trace.OrphanRecord{RoomID: room, UserID: ev.UserID, Tag: ev.Kind, Line: ev.Line})
				}
			case RoleTerminal:
				open, ok := queues.pop(ev.UserID)
				if !ok {
					logrus.Debugf("room %d line %d: %s for user %s has no open start", room, ev.Line, ev.Kind, ev.UserID)
					tr.RecordOrphan(trace.OrphanRecord{RoomID: room, UserID: ev.UserID, Tag: ev.Kind, Line: ev.Line})
					continue
				}
				sessions = append(sessions, newSession(open, ev, tech))
				tr.RecordMatch()
			}
		}
		for _, o := range queues[user] {
			logrus.Debugf("room %d line %d: start for user %s never closed, dropped", room, o.start.Line, user)
			tr.RecordDrop(trace.DropRecord{RoomID: room, UserID: user, Tag: o.start.Kind, Line: o.start.Line})
		}
		delete(queues, user)
	}

	// Pairing order follows users; re-sort the room by start.
	clock := sessionStartClock(sessions)
	sort.SliceStable(sessions, func(i, j int) bool {
		ki, _ := startKey(sessions[i], clock)
		kj, _ := startKey(sessions[j], clock)
		if ki != kj {
			return ki < kj
		}
		return sessions[i].startLine < sessions[j].startLine
	})
	return sessions
}

// orderUserEvents sorts one user's events of a room by that user's clock:
// nanoseconds when every one of them carries a counter reading, else wall
// time. Events without a reading for the chosen clock are discarded.
func orderUserEvents(room int, events []RawEvent, tr *trace.PairingTrace) []RawEvent {
	clock := eventClock(events)
	usable := events[:0:0]
	for _, ev := range events {
		if _, ok := ev.key(clock); !ok {
			logrus.Warnf("room %d line %d: %s has no %s timestamp, discarded", room, ev.Line, ev.Kind, clock)
			tr.RecordDiscard(trace.DiscardRecord{Line: ev.Line, Tag: ev.Kind, Reason: trace.ReasonNoClock})
			continue
		}
		usable = append(usable, ev)
	}
	sortEvents(usable, clock)
	return usable
}

// sessionStartClock picks the clock that orders a room's sessions by start:
// nanoseconds when every session has a start reading, else wall time.
func sessionStartClock(sessions []Session) Clock {
	for _, s := range sessions {
		if !s.StartNano.Valid {
			return ClockWall
		}
	}
	return ClockNano
}

func startKey(s Session, c Clock) (uint64, bool) {
	if c == ClockNano {
		return s.StartNano.Value, s.StartNano.Valid
	}
	return wallKey(s.StartWall), !s.StartWall.IsZero()
}

func newSession(open *openStart, end RawEvent, tech Technique) Session {
	start := open.start
	s := Session{
		RoomID:        start.RoomID,
		UserID:        start.UserID,
		Technique:     tech.Name,
		Outcome:       tech.TerminalOutcome(end),
		OccupancyPrev: start.Occupancy,
		OccupancyCurr: end.Occupancy,
		CapacityMax:   start.Capacity,
		CountsKnown:   start.CountsKnown && end.CountsKnown,
		StartWall:     start.WallTime,
		EndWall:       end.WallTime,
		StartNano:     start.Nano,
		EndNano:       end.Nano,
		startLine:     start.Line,
	}
	if open.hasEnter {
		s.EnterWall = open.enter.WallTime
		s.EnterNano = open.enter.Nano
	}
	if tech.ExpectIncrement && s.Outcome == OutcomeSuccess && s.CountsKnown {
		s.ExpectedOccupancy = s.OccupancyPrev + 1
		s.HasExpected = true
	}
	return s
}

// assignSequence numbers one room's sessions in their current order.
func assignSequence(sessions []Session, bins BinOptions) {
	n := len(sessions)
	for i := range sessions {
		sessions[i].Sequence = i + 1
		sessions[i].Bin = bins.BinFor(i+1, n)
	}
}
