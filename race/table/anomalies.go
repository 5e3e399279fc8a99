package table

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joinrace/joinrace/race"
)

// listSeparator joins user lists inside one cell.
const listSeparator = ", "

func joinList(items []string) string {
	return strings.Join(items, listSeparator)
}

func splitList(cell string) []string {
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// AnomalyRow renders r in AnomalyColumns order.
func AnomalyRow(r race.AnomalyRecord) []string {
	row := SessionRow(r.Session)
	return append(row,
		r.AnomalyType(),
		strconv.Itoa(r.LostUpdateExpected),
		strconv.Itoa(r.LostUpdateActual),
		strconv.Itoa(r.LostUpdateDiff),
		strconv.Itoa(r.ContentionGroupSize),
		joinList(r.ContentionUserIDs),
		strconv.Itoa(r.OverCapacityAmount),
		strconv.Itoa(r.OverCapacityCurr),
		strconv.Itoa(r.OverCapacityMax),
		strconv.Itoa(r.ExpectedCurrBySequence),
		strconv.Itoa(r.ActualCurrPeople),
		strconv.Itoa(r.CurrSequenceDiff),
		strconv.Itoa(r.SortedSequencePosition),
		joinList(r.InterveningUsers),
		strconv.Itoa(r.InterveningUserCount),
		strconv.FormatInt(r.CriticalSectionNanos, 10),
	)
}

// optionalInt parses a detail column; empty cells read as zero.
func optionalInt(h header, row []string, col string) (int, error) {
	cell := h.get(row, col)
	if cell == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(cell)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", col, err)
	}
	return v, nil
}

func parseAnomaly(h header, row []string) (race.AnomalyRecord, error) {
	s, err := parseSession(h, row)
	if err != nil {
		return race.AnomalyRecord{}, err
	}
	rec := race.AnomalyRecord{
		Session:           s,
		Labels:            race.ParseAnomalyType(h.get(row, ColAnomalyType)),
		ContentionUserIDs: splitList(h.get(row, ColGroupUsers)),
		InterveningUsers:  splitList(h.get(row, ColIntervening)),
	}

	ints := []struct {
		col string
		dst *int
	}{
		{ColLUExpected, &rec.LostUpdateExpected},
		{ColLUActual, &rec.LostUpdateActual},
		{ColLUDiff, &rec.LostUpdateDiff},
		{ColGroupSize, &rec.ContentionGroupSize},
		{ColOverAmount, &rec.OverCapacityAmount},
		{ColOverCurr, &rec.OverCapacityCurr},
		{ColOverMax, &rec.OverCapacityMax},
		{ColSeqExpected, &rec.ExpectedCurrBySequence},
		{ColSeqActual, &rec.ActualCurrPeople},
		{ColSeqDiff, &rec.CurrSequenceDiff},
		{ColSeqPosition, &rec.SortedSequencePosition},
		{ColInterveningN, &rec.InterveningUserCount},
	}
	for _, c := range ints {
		if *c.dst, err = optionalInt(h, row, c.col); err != nil {
			return rec, err
		}
	}
	if rec.ContentionGroupSize < 1 {
		rec.ContentionGroupSize = 1
	}
	if cell := h.get(row, ColCriticalNanos); cell != "" {
		if rec.CriticalSectionNanos, err = strconv.ParseInt(cell, 10, 64); err != nil {
			return rec, fmt.Errorf("%s: %w", ColCriticalNanos, err)
		}
	}
	return rec, nil
}

// WriteAnomalies writes anomaly records as BOM-prefixed CSV. Every session
// appears, flagged or not.
func WriteAnomalies(w io.Writer, records []race.AnomalyRecord) error {
	writer, err := newWriter(w)
	if err != nil {
		return err
	}
	if err := writer.Write(AnomalyColumns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range records {
		if err := writer.Write(AnomalyRow(r)); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i+1, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadAnomalies reads an anomalies CSV. Detail columns are optional; a
// sessions-only file reads as records with no labels.
func ReadAnomalies(r io.Reader) ([]race.AnomalyRecord, error) {
	var records []race.AnomalyRecord
	err := readRows(r, requiredSessionColumns, func(h header, row []string, _ int) error {
		rec, err := parseAnomaly(h, row)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// WriteAnomaliesFile creates path (and its directory) and writes records.
func WriteAnomaliesFile(path string, records []race.AnomalyRecord) error {
	return writeFile(path, func(w io.Writer) error { return WriteAnomalies(w, records) })
}

// ReadAnomaliesFile opens path and reads anomaly records.
func ReadAnomaliesFile(path string) ([]race.AnomalyRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening anomalies file: %w", err)
	}
	defer func() { _ = file.Close() }()

	records, err := ReadAnomalies(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
