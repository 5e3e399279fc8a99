package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/stats"
	"github.com/joinrace/joinrace/race/table"
)

// Sheet names.
const (
	SheetOverall     = "Overall_Summary"
	SheetRules       = "Rule_Stats"
	SheetPerRoom     = "Per_Room_Stats"
	SheetPerBin      = "Per_Bin_Stats"
	SheetTiming      = "Timing_Stats"
	SheetRoomTiming  = "Per_Room_Timing"
	SheetBinTiming   = "Per_Bin_Timing"
	SheetDetail      = "Detail"
	SheetColumnGuide = "Column_Guide"
	SheetSessions    = "Sessions"
)

// Number formats applied after the cells are written.
const (
	FormatPercent = "0.00%"
	FormatNanos   = "#,##0"
	FormatMicros  = "#,##0.000"
	FormatMillis  = "#,##0.000000"
	FormatDecimal = "#,##0.00"
)

// maxExactInt is the largest integer a spreadsheet cell holds exactly.
const maxExactInt = 1 << 53

// TimeFormat returns the number format for durations in unit u.
func TimeFormat(u stats.Unit) string {
	switch u {
	case stats.UnitMicros:
		return FormatMicros
	case stats.UnitMillis:
		return FormatMillis
	}
	return FormatNanos
}

// workbook wraps an excelize file with the shared styles.
type workbook struct {
	f      *excelize.File
	bold   int
	styles map[string]int
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("creating header style: %w", err)
	}
	return &workbook{f: f, bold: bold, styles: map[string]int{}}, nil
}

func (w *workbook) numFmt(format string) (int, error) {
	if id, ok := w.styles[format]; ok {
		return id, nil
	}
	fmtCopy := format
	id, err := w.f.NewStyle(&excelize.Style{CustomNumFmt: &fmtCopy})
	if err != nil {
		return 0, fmt.Errorf("creating number format %q: %w", format, err)
	}
	w.styles[format] = id
	return id, nil
}

// sheet writes one table: a bold header, the rows, then a number format per
// column listed in formats (0-based column index).
func (w *workbook) sheet(name string, header []string, rows [][]interface{}, formats map[int]string) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return fmt.Errorf("creating sheet %s: %w", name, err)
	}
	hdr := make([]interface{}, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := w.f.SetSheetRow(name, "A1", &hdr); err != nil {
		return fmt.Errorf("writing %s header: %w", name, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(name, "A1", last, w.bold); err != nil {
		return fmt.Errorf("styling %s header: %w", name, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		r := row
		if err := w.f.SetSheetRow(name, cell, &r); err != nil {
			return fmt.Errorf("writing %s row %d: %w", name, i+1, err)
		}
	}
	if len(rows) > 0 {
		for col, format := range formats {
			style, err := w.numFmt(format)
			if err != nil {
				return err
			}
			top, _ := excelize.CoordinatesToCellName(col+1, 2)
			bottom, _ := excelize.CoordinatesToCellName(col+1, len(rows)+1)
			if err := w.f.SetCellStyle(name, top, bottom, style); err != nil {
				return fmt.Errorf("formatting %s: %w", name, err)
			}
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return w.f.SetColWidth(name, "A", lastCol, 18)
}

// cellFormat formats a single cell rather than a column.
func (w *workbook) cellFormat(sheet string, col, row int, format string) error {
	style, err := w.numFmt(format)
	if err != nil {
		return err
	}
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return w.f.SetCellStyle(sheet, cell, cell, style)
}

func (w *workbook) save(path string) error {
	defer func() { _ = w.f.Close() }()
	// NewFile starts with a default sheet that none of ours replace.
	if err := w.f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("removing default sheet: %w", err)
	}
	w.f.SetActiveSheet(0)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	if err := w.f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook %s: %w", path, err)
	}
	return nil
}

// cellValue turns a CSV cell into a number when the spreadsheet can hold it
// exactly; nanosecond counters beyond that stay text.
func cellValue(s string) interface{} {
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil && v > -maxExactInt && v < maxExactInt {
		return v
	}
	return s
}

func textRow(cells []string) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = cellValue(c)
	}
	return out
}

func columnGuideRows(columns []string) [][]interface{} {
	rows := make([][]interface{}, 0, len(columns))
	for _, c := range columns {
		rows = append(rows, []interface{}{c, table.ColumnGuide[c]})
	}
	return rows
}

// WriteWorkbook writes every report sheet for a to path.
func WriteWorkbook(path string, a Analysis) error {
	w, err := newWorkbook()
	if err != nil {
		return err
	}
	steps := []func(*workbook, Analysis) error{
		writeOverall,
		writeRules,
		writePerRoom,
		writePerBin,
		writeTiming,
		writeDetail,
	}
	for _, step := range steps {
		if err := step(w, a); err != nil {
			_ = w.f.Close()
			return err
		}
	}
	if err := w.sheet(SheetColumnGuide, []string{"column", "description"}, columnGuideRows(table.AnomalyColumns), nil); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.save(path)
}

func writeOverall(w *workbook, a Analysis) error {
	generated := a.Info.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	o := a.Outcomes
	rows := [][]interface{}{
		{"run_id", a.Info.RunID, nil},
		{"label", a.Info.Label, nil},
		{"technique", a.Info.Technique, nil},
		{"source", a.Info.Source, nil},
		{"generated", generated.UTC().Format(time.RFC3339), nil},
		{"total_sessions", o.Total, nil},
		{"total_rooms", len(a.Totals.Rooms), nil},
		{"total_room_bins", len(a.Totals.Cells), nil},
	}
	outcomeStart := len(rows)
	rows = append(rows,
		[]interface{}{"success", o.Success, o.Rate(o.Success)},
		[]interface{}{"fail_over_capacity", o.FailOverCapacity, o.Rate(o.FailOverCapacity)},
		[]interface{}{"fail_entry", o.FailEntry, o.Rate(o.FailEntry)},
		[]interface{}{"unknown", o.Unknown, o.Rate(o.Unknown)},
	)
	anomalous := len(a.Anomalous())
	rows = append(rows, []interface{}{"anomalous_sessions", anomalous, o.Rate(anomalous)})

	if err := w.sheet(SheetOverall, []string{"item", "value", "rate"}, rows, nil); err != nil {
		return err
	}
	for i := outcomeStart; i < len(rows); i++ {
		if err := w.cellFormat(SheetOverall, 3, i+2, FormatPercent); err != nil {
			return err
		}
	}
	return nil
}

func writeRules(w *workbook, a Analysis) error {
	header := []string{
		"rule", "observed_pattern", "total_requests", "occurrences", "occurrence_rate",
		"affected_rooms", "total_rooms", "affected_room_bins", "total_room_bins",
		"mean_room_rate", "mean_bin_rate",
		"magnitude_sum", "magnitude_mean", "magnitude_min", "magnitude_max", "magnitude_median", "magnitude_std",
	}
	rows := make([][]interface{}, 0, len(a.Rules))
	for _, r := range a.Rules {
		m := r.Magnitude
		rows = append(rows, []interface{}{
			r.Rule, r.ObservedPattern, a.Totals.Requests, r.Occurrences, r.Rate,
			r.AffectedRooms, len(a.Totals.Rooms), r.AffectedCells, len(a.Totals.Cells),
			r.MeanRoomRate, r.MeanBinRate,
			m.Sum, m.Mean, m.Min, m.Max, m.Median, m.Std,
		})
	}
	formats := map[int]string{4: FormatPercent, 9: FormatPercent, 10: FormatPercent, 12: FormatDecimal, 16: FormatDecimal}
	return w.sheet(SheetRules, header, rows, formats)
}

// countHeader appends <rule>_count and <rule>_rate columns to base and
// returns the rate columns' formats.
func countHeader(base []string, rules []string) ([]string, map[int]string) {
	header := append(append([]string{}, base...), "anomalous", "anomalous_rate")
	formats := map[int]string{len(header) - 1: FormatPercent}
	for _, rule := range rules {
		header = append(header, rule+"_count", rule+"_rate")
		formats[len(header)-1] = FormatPercent
	}
	return header, formats
}

func countCells(requests, anomalous int, counts map[string]int, rules []string) []interface{} {
	rate := func(n int) float64 {
		if requests == 0 {
			return 0
		}
		return float64(n) / float64(requests)
	}
	cells := []interface{}{anomalous, rate(anomalous)}
	for _, rule := range rules {
		cells = append(cells, counts[rule], rate(counts[rule]))
	}
	return cells
}

func writePerRoom(w *workbook, a Analysis) error {
	header, formats := countHeader([]string{"roomNumber", "requests"}, a.Breakdown.Rules)
	rows := make([][]interface{}, 0, len(a.Breakdown.Rooms))
	for _, r := range a.Breakdown.Rooms {
		row := append([]interface{}{r.Room, r.Requests}, countCells(r.Requests, r.Anomalous, r.Counts, a.Breakdown.Rules)...)
		rows = append(rows, row)
	}
	return w.sheet(SheetPerRoom, header, rows, formats)
}

func writePerBin(w *workbook, a Analysis) error {
	header, formats := countHeader([]string{"roomNumber", "bin", "requests"}, a.Breakdown.Rules)
	rows := make([][]interface{}, 0, len(a.Breakdown.Cells))
	for _, c := range a.Breakdown.Cells {
		row := append([]interface{}{c.Room, c.Bin, c.Requests}, countCells(c.Requests, c.Anomalous, c.Counts, a.Breakdown.Rules)...)
		rows = append(rows, row)
	}
	return w.sheet(SheetPerBin, header, rows, formats)
}

var statsHeader = []string{"count", "mean", "median", "p95", "max", "std"}

func statsCells(vs stats.ValueStats) []interface{} {
	return []interface{}{vs.Count, vs.Mean, vs.Median, vs.P95, vs.Max, vs.Std}
}

// timingFormats formats the duration columns that follow the first n key
// columns and the count column.
func timingFormats(n int, u stats.Unit) map[int]string {
	formats := map[int]string{}
	for i := n + 1; i < n+len(statsHeader); i++ {
		formats[i] = TimeFormat(u)
	}
	return formats
}

func writeTiming(w *workbook, a Analysis) error {
	u := a.Timing.Unit
	unit := string(u)

	var rows [][]interface{}
	for _, r := range a.Timing.Overall {
		rows = append(rows, append([]interface{}{string(r.Metric), unit}, statsCells(r.Stats)...))
	}
	if err := w.sheet(SheetTiming, append([]string{"metric", "unit"}, statsHeader...), rows, timingFormats(2, u)); err != nil {
		return err
	}

	rows = nil
	for _, r := range a.Timing.PerRoom {
		rows = append(rows, append([]interface{}{string(r.Metric), r.Room, unit}, statsCells(r.Stats)...))
	}
	if err := w.sheet(SheetRoomTiming, append([]string{"metric", "roomNumber", "unit"}, statsHeader...), rows, timingFormats(3, u)); err != nil {
		return err
	}

	rows = nil
	for _, r := range a.Timing.PerBin {
		rows = append(rows, append([]interface{}{string(r.Metric), r.Room, r.Bin, unit}, statsCells(r.Stats)...))
	}
	return w.sheet(SheetBinTiming, append([]string{"metric", "roomNumber", "bin", "unit"}, statsHeader...), rows, timingFormats(4, u))
}

func writeDetail(w *workbook, a Analysis) error {
	anomalous := a.Anomalous()
	rows := make([][]interface{}, 0, len(anomalous))
	for _, r := range anomalous {
		rows = append(rows, textRow(table.AnomalyRow(r)))
	}
	formats := map[int]string{}
	for i, c := range table.AnomalyColumns {
		if c == table.ColCriticalNanos {
			formats[i] = FormatNanos
		}
	}
	return w.sheet(SheetDetail, table.AnomalyColumns, rows, formats)
}

// WriteSessionsWorkbook writes paired sessions to a Sessions sheet with a
// column guide.
func WriteSessionsWorkbook(path string, sessions []race.Session) error {
	w, err := newWorkbook()
	if err != nil {
		return err
	}
	rows := make([][]interface{}, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, textRow(table.SessionRow(s)))
	}
	if err := w.sheet(SheetSessions, table.SessionColumns, rows, nil); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.sheet(SheetColumnGuide, []string{"column", "description"}, columnGuideRows(table.SessionColumns), nil); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.save(path)
}

// WriteAnomaliesWorkbook writes the anomalous records to a Detail sheet with
// a column guide.
func WriteAnomaliesWorkbook(path string, records []race.AnomalyRecord) error {
	w, err := newWorkbook()
	if err != nil {
		return err
	}
	if err := writeDetail(w, Analysis{Records: records}); err != nil {
		_ = w.f.Close()
		return err
	}
	if err := w.sheet(SheetColumnGuide, []string{"column", "description"}, columnGuideRows(table.AnomalyColumns), nil); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.save(path)
}
