package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/joinrace/joinrace/race"
)

// wallLayout is used for every wall-clock column; it keeps nanoseconds.
const wallLayout = time.RFC3339Nano

func formatWall(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(wallLayout)
}

func parseWall(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(wallLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

// formatCount renders an occupancy column, empty when counts are unknown.
func formatCount(v int, known bool) string {
	if !known {
		return ""
	}
	return strconv.Itoa(v)
}

// SessionRow renders s in SessionColumns order.
func SessionRow(s race.Session) []string {
	expected := ""
	if s.HasExpected {
		expected = strconv.Itoa(s.ExpectedOccupancy)
	}
	return []string{
		strconv.Itoa(s.RoomID),
		strconv.Itoa(s.Bin),
		s.UserID,
		formatCount(s.OccupancyPrev, s.CountsKnown),
		formatCount(s.OccupancyCurr, s.CountsKnown),
		expected,
		formatCount(s.CapacityMax, s.CountsKnown),
		strconv.Itoa(s.Sequence),
		string(s.Outcome),
		formatWall(s.StartWall),
		formatWall(s.EndWall),
		s.StartNano.String(), // integer format
		s.EndNano.String(),   // integer format
		formatWall(s.EnterWall),
		s.EnterNano.String(),
		s.Technique,
	}
}

// parseSession decodes the session columns of one row.
func parseSession(h header, row []string) (race.Session, error) {
	var s race.Session
	var err error

	if s.RoomID, err = strconv.Atoi(h.get(row, ColRoom)); err != nil {
		return s, fmt.Errorf("%s: %w", ColRoom, err)
	}
	s.UserID = h.get(row, ColUser)
	if s.UserID == "" {
		return s, fmt.Errorf("%s: empty", ColUser)
	}
	if s.Sequence, err = strconv.Atoi(h.get(row, ColSequence)); err != nil {
		return s, fmt.Errorf("%s: %w", ColSequence, err)
	}
	if bin := h.get(row, ColBin); bin != "" {
		if s.Bin, err = strconv.Atoi(bin); err != nil {
			return s, fmt.Errorf("%s: %w", ColBin, err)
		}
	}
	s.Outcome = race.ParseOutcome(h.get(row, ColJoinResult))
	s.Technique = h.get(row, ColTechnique)

	prev, curr, capacity := h.get(row, ColPrevPeople), h.get(row, ColCurrPeople), h.get(row, ColMaxPeople)
	if prev != "" && curr != "" && capacity != "" {
		if s.OccupancyPrev, err = strconv.Atoi(prev); err != nil {
			return s, fmt.Errorf("%s: %w", ColPrevPeople, err)
		}
		if s.OccupancyCurr, err = strconv.Atoi(curr); err != nil {
			return s, fmt.Errorf("%s: %w", ColCurrPeople, err)
		}
		if s.CapacityMax, err = strconv.Atoi(capacity); err != nil {
			return s, fmt.Errorf("%s: %w", ColMaxPeople, err)
		}
		s.CountsKnown = true
	}
	if expected := h.get(row, ColExpected); expected != "" {
		if s.ExpectedOccupancy, err = strconv.Atoi(expected); err != nil {
			return s, fmt.Errorf("%s: %w", ColExpected, err)
		}
		s.HasExpected = true
	}

	walls := []struct {
		col string
		dst *time.Time
	}{
		{ColStartTime, &s.StartWall},
		{ColEndTime, &s.EndWall},
		{ColEnterTime, &s.EnterWall},
	}
	for _, w := range walls {
		if *w.dst, err = parseWall(h.get(row, w.col)); err != nil {
			return s, fmt.Errorf("%s: %w", w.col, err)
		}
	}
	nanos := []struct {
		col string
		dst *race.NanoTime
	}{
		{ColStartNano, &s.StartNano},
		{ColEndNano, &s.EndNano},
		{ColEnterNano, &s.EnterNano},
	}
	for _, n := range nanos {
		if *n.dst, err = race.ParseNanoTime(h.get(row, n.col)); err != nil {
			return s, fmt.Errorf("%s: %w", n.col, err)
		}
	}
	return s, nil
}

// newWriter writes the BOM and returns a CSV writer on w.
func newWriter(w io.Writer) (*csv.Writer, error) {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return nil, fmt.Errorf("writing BOM: %w", err)
	}
	return csv.NewWriter(w), nil
}

// WriteSessions writes sessions as BOM-prefixed CSV.
// Nanosecond columns use integer formatting to preserve precision.
func WriteSessions(w io.Writer, sessions []race.Session) error {
	writer, err := newWriter(w)
	if err != nil {
		return err
	}
	if err := writer.Write(SessionColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, s := range sessions {
		if err := writer.Write(SessionRow(s)); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// rowVisitor receives each data row with its 1-based line number.
type rowVisitor func(h header, row []string, line int) error

// readRows reads the header, checks required columns and visits every row.
// Rows the visitor rejects are skipped with a warning; if every row is
// rejected (or there are none) ErrNoRows is returned.
func readRows(r io.Reader, required []string, visit rowVisitor) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	first, err := reader.Read()
	if err == io.EOF {
		return ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("reading CSV header: %w", err)
	}
	h := newHeader(first)
	if err := h.require(required); err != nil {
		return err
	}

	line, accepted, skipped := 1, 0, 0
	for {
		row, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			logrus.Warnf("CSV line %d: %v, skipping", line, err)
			continue
		}
		if err := visit(h, row, line); err != nil {
			skipped++
			logrus.Warnf("CSV line %d: %v, skipping", line, err)
			continue
		}
		accepted++
	}
	if skipped > 0 {
		logrus.Warnf("skipped %d malformed rows", skipped)
	}
	if accepted == 0 {
		return ErrNoRows
	}
	return nil
}

// ReadSessions reads a sessions CSV. Malformed rows are skipped with a
// warning; a file with no usable row yields ErrNoRows.
func ReadSessions(r io.Reader) ([]race.Session, error) {
	var sessions []race.Session
	err := readRows(r, requiredSessionColumns, func(h header, row []string, _ int) error {
		s, err := parseSession(h, row)
		if err != nil {
			return err
		}
		sessions = append(sessions, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// WriteSessionsFile creates path (and its directory) and writes sessions.
func WriteSessionsFile(path string, sessions []race.Session) error {
	return writeFile(path, func(w io.Writer) error { return WriteSessions(w, sessions) })
}

// ReadSessionsFile opens path and reads sessions.
func ReadSessionsFile(path string) ([]race.Session, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sessions file: %w", err)
	}
	defer func() { _ = file.Close() }()

	sessions, err := ReadSessions(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sessions, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := write(file); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", path, err)
	}
	return nil
}
