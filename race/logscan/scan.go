// Package logscan turns line-oriented key=value log files into race.RawEvent
// values.
//
// Two line shapes are understood. Plain join lines name their tag with
// event=:
//
//	... timestampIso=2025-07-09T13:36:41.721432200Z event=PRE_JOIN_CURRENT_STATE roomNumber=3 userId=u-17 currentPeople=2 maxPeople=5 nanoTime=88123456789012
//
// Marker lines carry the tag in tag= and the result in event=:
//
//	CRITICAL_SECTION_MARK tag=CRITICAL_LEAVE timestampIso=... event=SUCCESS roomNumber=3 userId=u-17 nanoTime=... epochNano=...
package logscan

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/trace"
)

// Log field keys.
const (
	keyTag       = "tag"
	keyEvent     = "event"
	keyTimestamp = "timestampIso"
	keyRoom      = "roomNumber"
	keyUser      = "userId"
	keyCurrent   = "currentPeople"
	keyMax       = "maxPeople"
	keyNano      = "nanoTime"
	keyEpochNano = "epochNano"
)

var tokenPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)

// Options restricts which events a scan returns.
type Options struct {
	Rooms []int // empty means all rooms
}

// ParseFields extracts key=value tokens from one line. Later duplicates of a
// key are ignored.
func ParseFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, m := range tokenPattern.FindAllStringSubmatch(line, -1) {
		if _, dup := fields[m[1]]; !dup {
			fields[m[1]] = strings.TrimRight(m[2], ",;")
		}
	}
	return fields
}

// tagOf returns the line's tag and result token.
func tagOf(fields map[string]string) (tag, result string) {
	if t, ok := fields[keyTag]; ok {
		return t, fields[keyEvent]
	}
	return fields[keyEvent], ""
}

// Scan reads events from r. Lines whose tag the technique does not know are
// skipped silently; lines with a known tag but unusable fields are discarded
// with a warning and recorded in tr, which may be nil.
func Scan(r io.Reader, tech race.Technique, opts Options, tr *trace.PairingTrace) ([]race.RawEvent, error) {
	rooms := make(map[int]bool, len(opts.Rooms))
	for _, room := range opts.Rooms {
		rooms[room] = true
	}

	var events []race.RawEvent
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	discarded := 0
	for scanner.Scan() {
		line++
		tr.RecordLine()
		fields := ParseFields(scanner.Text())
		tag, result := tagOf(fields)
		if tag == "" || tech.Role(tag) == race.RoleNone {
			continue
		}

		ev, reason := buildEvent(line, tag, result, fields)
		if reason != "" {
			discarded++
			logrus.Debugf("line %d: %s discarded: %s", line, tag, reason)
			tr.RecordDiscard(trace.DiscardRecord{Line: line, Tag: tag, Reason: reason})
			continue
		}
		if len(rooms) > 0 && !rooms[ev.RoomID] {
			continue
		}
		tr.RecordAccepted()
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading log at line %d: %w", line+1, err)
	}
	if discarded > 0 {
		logrus.Warnf("discarded %d of %d log lines with %s tags (missing or malformed fields)", discarded, line, tech.Name)
	}
	return events, nil
}

// ScanFile opens path and scans it. Files ending in .sz are read through a
// snappy framed reader.
func ScanFile(path string, tech race.Technique, opts Options, tr *trace.PairingTrace) ([]race.RawEvent, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening log %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	var r io.Reader = file
	if strings.HasSuffix(path, ".sz") {
		r = snappy.NewReader(file)
	}
	events, err := Scan(r, tech, opts, tr)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logrus.Infof("scanned %s: %d %s events", path, len(events), tech.Name)
	return events, nil
}

// wallLayouts are tried in order; zone-less timestamps are taken as UTC.
var wallLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseWall(s string) (time.Time, bool) {
	for _, layout := range wallLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func buildEvent(line int, tag, result string, fields map[string]string) (race.RawEvent, string) {
	ev := race.RawEvent{Line: line, Kind: tag, Result: result}

	roomText, ok := fields[keyRoom]
	if !ok {
		return ev, trace.ReasonMissingRoom
	}
	room, err := strconv.Atoi(roomText)
	if err != nil {
		return ev, trace.ReasonBadRoom
	}
	ev.RoomID = room

	ev.UserID = fields[keyUser]
	if ev.UserID == "" {
		return ev, trace.ReasonMissingUser
	}

	if ts, ok := fields[keyTimestamp]; ok {
		wall, ok := parseWall(ts)
		if !ok {
			return ev, trace.ReasonBadValue
		}
		ev.WallTime = wall
	}
	if ev.Nano, err = race.ParseNanoTime(fields[keyNano]); err != nil {
		return ev, trace.ReasonBadValue
	}
	if ev.EpochNano, err = race.ParseNanoTime(fields[keyEpochNano]); err != nil {
		return ev, trace.ReasonBadValue
	}
	if !ev.HasWall() && !ev.Nano.Valid {
		return ev, trace.ReasonNoTimestamp
	}

	curText, hasCur := fields[keyCurrent]
	maxText, hasMax := fields[keyMax]
	if hasCur && hasMax {
		cur, errCur := strconv.Atoi(curText)
		capacity, errMax := strconv.Atoi(maxText)
		if errCur != nil || errMax != nil {
			return ev, trace.ReasonBadValue
		}
		ev.Occupancy, ev.Capacity, ev.CountsKnown = cur, capacity, true
	}
	return ev, ""
}
