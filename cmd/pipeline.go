package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/logscan"
	"github.com/joinrace/joinrace/race/report"
	"github.com/joinrace/joinrace/race/stats"
	"github.com/joinrace/joinrace/race/store"
	"github.com/joinrace/joinrace/race/table"
	"github.com/joinrace/joinrace/race/trace"
)

// outputPath places name under dir unless name is absolute or dir is empty.
func outputPath(dir, name string) string {
	if name == "" || dir == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(dir, name)
}

// newRunID returns a fresh run identifier.
func newRunID() string {
	return uuid.NewString()
}

// pairConfig holds the inputs of the pairing stage.
type pairConfig struct {
	LogFile   string
	Technique race.Technique
	Rooms     []int
	Bins      race.BinOptions
	Trace     trace.TraceConfig
}

// pairStage scans the log and pairs its events into sessions. The returned
// trace summary feeds logging and run metrics.
func pairStage(cfg pairConfig) ([]race.Session, *trace.PairingSummary, error) {
	if err := cfg.Bins.Validate(); err != nil {
		return nil, nil, fmt.Errorf("bin options: %w", err)
	}
	tr := trace.NewPairingTrace(cfg.Trace)
	events, err := logscan.ScanFile(cfg.LogFile, cfg.Technique, logscan.Options{Rooms: cfg.Rooms}, tr)
	if err != nil {
		return nil, nil, err
	}
	sessions := race.Pair(events, cfg.Technique, race.PairOptions{Bins: cfg.Bins}, tr)
	summary := trace.Summarize(tr)

	logrus.Infof("paired %d sessions from %d events (%d lines); %d starts dropped, %d orphan terminals, %d orphan entry markers",
		summary.Matched, summary.Accepted, summary.Lines, summary.DroppedStarts, summary.OrphanTerminals, summary.OrphanEnters)
	for _, reason := range summary.Reasons() {
		logrus.Infof("discarded %d lines: %s", summary.DiscardReasons[reason], reason)
	}
	for _, room := range summary.DropRooms() {
		logrus.Infof("room %d: %d starts dropped", room, summary.DroppedByRoom[room])
	}
	for _, d := range tr.Dropped {
		logrus.Debugf("dropped start: room=%d user=%s line=%d", d.RoomID, d.UserID, d.Line)
	}
	if len(sessions) == 0 {
		return nil, summary, fmt.Errorf("%s: no sessions paired", cfg.LogFile)
	}
	return sessions, summary, nil
}

// techniqueOf returns the technique named by the sessions' technique column,
// or fallback when the column is empty.
func techniqueOf(sessions []race.Session, fallback string) string {
	for _, s := range sessions {
		if s.Technique != "" {
			return s.Technique
		}
	}
	return fallback
}

// detectOutputs lists where detection results go; empty fields are skipped.
type detectOutputs struct {
	ResultFile     string
	DetailedOutput string
	Workbook       string
	SQLite         string
}

// detectStage evaluates sessions and writes every requested output.
func detectStage(sessions []race.Session, tech race.Technique, opts race.DetectOptions, info report.RunInfo, out detectOutputs) ([]race.AnomalyRecord, error) {
	records := race.Detect(sessions, tech.Rules, opts)
	if len(records) == 0 {
		return nil, fmt.Errorf("no sessions left after room filter %v", opts.Rooms)
	}
	anomalous := 0
	for _, r := range records {
		if r.IsAnomalous() {
			anomalous++
		}
	}
	logrus.Infof("%d of %d sessions flagged (technique %s)", anomalous, len(records), tech.Name)

	if out.ResultFile != "" {
		if err := table.WriteAnomaliesFile(out.ResultFile, records); err != nil {
			return records, err
		}
		logrus.Infof("anomalies written: %s", out.ResultFile)
	}
	if out.DetailedOutput != "" {
		if err := report.WriteDetailedReportFile(out.DetailedOutput, info, records); err != nil {
			return records, err
		}
		logrus.Infof("detail report written: %s", out.DetailedOutput)
	}
	if out.Workbook != "" {
		if err := report.WriteAnomaliesWorkbook(out.Workbook, records); err != nil {
			return records, err
		}
		logrus.Infof("anomaly workbook written: %s", out.Workbook)
	}
	if out.SQLite != "" {
		if err := saveRun(out.SQLite, info, records); err != nil {
			return records, err
		}
	}
	return records, nil
}

// saveRun stores the run and reads its counts back.
func saveRun(path string, info report.RunInfo, records []race.AnomalyRecord) error {
	db, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	ctx := context.Background()
	err = db.SaveRun(ctx, store.Run{
		RunID:     info.RunID,
		Technique: info.Technique,
		Label:     info.Label,
		Source:    info.Source,
		CreatedAt: info.Generated,
	}, records)
	if err != nil {
		return err
	}
	_, sessions, anomalies, err := db.GetRun(ctx, info.RunID)
	if err != nil {
		return err
	}
	logrus.Infof("run %s stored in %s: %d sessions, %d anomalous", info.RunID, path, sessions, anomalies)
	return nil
}

// statsStage aggregates records, writes the workbook when path is set and
// prints the console summary to w.
func statsStage(w io.Writer, info report.RunInfo, records []race.AnomalyRecord, unit stats.Unit, techniques race.TechniqueTable, workbook string) (report.Analysis, error) {
	a, err := report.Analyze(info, records, unit, techniques)
	if err != nil {
		return a, err
	}
	printAnalysis(w, a)
	if workbook != "" {
		if err := report.WriteWorkbook(workbook, a); err != nil {
			return a, err
		}
		logrus.Infof("workbook written: %s", workbook)
	}
	return a, nil
}

// printAnalysis writes the outcome and per-rule summary in console layout.
func printAnalysis(w io.Writer, a report.Analysis) {
	a.Outcomes.Print(w)
	_, _ = fmt.Fprintln(w, "=== Rule Summary ===")
	for _, r := range a.Rules {
		note := ""
		if r.ObservedPattern {
			note = " (observed pattern)"
		}
		_, _ = fmt.Fprintf(w, "%-22s: %d (%.2f%%), rooms=%d, room-bins=%d%s\n",
			r.Rule, r.Occurrences, 100*r.Rate, r.AffectedRooms, r.AffectedCells, note)
	}
	if row, ok := a.Timing.Row(stats.MetricCriticalSection); ok && row.Stats.Count > 0 {
		_, _ = fmt.Fprintf(w, "Critical section     : mean %.3f %s, p95 %.3f %s\n",
			row.Stats.Mean, a.Timing.Unit, row.Stats.P95, a.Timing.Unit)
	}
}

// runInfo stamps a new run.
func runInfo(label, technique, source string) report.RunInfo {
	return report.RunInfo{
		RunID:     newRunID(),
		Label:     label,
		Technique: technique,
		Source:    source,
		Generated: time.Now(),
	}
}
