package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joinrace/joinrace/race"
)

const rule = "================================================================================"

// WriteDetailedReport writes one text block per anomalous record, headed by
// the run id, input path and anomaly count.
func WriteDetailedReport(w io.Writer, info RunInfo, records []race.AnomalyRecord) error {
	bw := bufio.NewWriter(w)
	generated := info.Generated
	if generated.IsZero() {
		generated = time.Now()
	}

	var anomalous []race.AnomalyRecord
	for _, r := range records {
		if r.IsAnomalous() {
			anomalous = append(anomalous, r)
		}
	}

	fmt.Fprintln(bw, "Race condition detail report")
	fmt.Fprintf(bw, "Run id: %s\n", info.RunID)
	if info.Technique != "" {
		fmt.Fprintf(bw, "Technique: %s\n", info.Technique)
	}
	fmt.Fprintf(bw, "Generated: %s\n", generated.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(bw, "Input file: %s\n", info.Source)
	fmt.Fprintf(bw, "Anomalous sessions: %d of %d\n", len(anomalous), len(records))
	if len(anomalous) == 0 {
		fmt.Fprintln(bw, "\nNo anomalies detected.")
	}
	for _, r := range anomalous {
		writeBlock(bw, r)
	}
	return bw.Flush()
}

func writeBlock(w io.Writer, r race.AnomalyRecord) {
	fmt.Fprintf(w, "\n%s\n", rule)
	fmt.Fprintf(w, "Room %d  user %s  bin %d  sequence %d\n", r.RoomID, r.UserID, r.Bin, r.Sequence)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Result: %s\n", r.Outcome)
	fmt.Fprintf(w, "Anomaly type: %s\n", r.AnomalyType())
	if r.CountsKnown {
		fmt.Fprintf(w, "Occupancy: prev=%d curr=%d max=%d\n", r.OccupancyPrev, r.OccupancyCurr, r.CapacityMax)
	}
	fmt.Fprintf(w, "Critical section: start=%s end=%s\n", orNA(r.StartNano.String()), orNA(r.EndNano.String()))
	if r.HasEnter() {
		fmt.Fprintf(w, "Entry marker: %s\n", orNA(r.EnterNano.String()))
	}

	fmt.Fprintln(w, "\nDetails:")
	for _, label := range r.Labels {
		switch label {
		case race.LabelLostUpdate:
			fmt.Fprintf(w, " [%s]\n  - expected: %d\n  - actual: %d\n  - diff: %+d\n",
				label, r.LostUpdateExpected, r.LostUpdateActual, r.LostUpdateDiff)
		case race.LabelContention, race.LabelConcurrentExecution:
			fmt.Fprintf(w, " [%s]\n  - group size: %d\n  - users: %s\n  - intervening users: %d\n",
				label, r.ContentionGroupSize, strings.Join(r.ContentionUserIDs, ", "), r.InterveningUserCount)
		case race.LabelCapacityExceeded:
			fmt.Fprintf(w, " [%s]\n  - max: %d\n  - actual: %d\n  - over by: %d\n",
				label, r.OverCapacityMax, r.OverCapacityCurr, r.OverCapacityAmount)
		case race.LabelStateTransition:
			fmt.Fprintf(w, " [%s]\n  - sequence position: %d\n  - expected: %d\n  - actual: %d\n  - diff: %+d\n",
				label, r.SortedSequencePosition, r.ExpectedCurrBySequence, r.ActualCurrPeople, r.CurrSequenceDiff)
		default:
			fmt.Fprintf(w, " [%s]\n", label)
		}
	}

	fmt.Fprintln(w, "\nTiming:")
	if d, ok := r.Session.CriticalSectionNanos(); ok {
		fmt.Fprintf(w, " critical section: %d ns (%.3f us)\n", d, float64(d)/1e3)
	}
	if d, ok := r.WaitNanos(); ok {
		fmt.Fprintf(w, " wait: %d ns\n", d)
	}
	if d, ok := r.DwellNanos(); ok {
		fmt.Fprintf(w, " dwell: %d ns\n", d)
	}
	if d, ok := r.FailProcessingNanos(); ok {
		fmt.Fprintf(w, " fail processing: %d ns\n", d)
	}
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// WriteDetailedReportFile creates path and writes the detail report.
func WriteDetailedReportFile(path string, info RunInfo, records []race.AnomalyRecord) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating detail report: %w", err)
	}
	if err := WriteDetailedReport(file, info, records); err != nil {
		_ = file.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return file.Close()
}
