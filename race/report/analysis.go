// Package report renders analysis results as spreadsheet workbooks and
// plain-text detail reports.
package report

import (
	"fmt"
	"time"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/stats"
)

// RunInfo identifies the run a report belongs to.
type RunInfo struct {
	RunID     string
	Label     string
	Technique string
	Source    string // input file the records were read from
	Generated time.Time
}

// Analysis bundles every aggregate a workbook displays.
type Analysis struct {
	Info      RunInfo
	Outcomes  stats.OutcomeSummary
	Totals    stats.Totals
	Rules     []stats.RuleStats
	Breakdown stats.Breakdown
	Timing    stats.TimingReport // already scaled to its display unit
	Records   []race.AnomalyRecord
}

// Analyze computes the aggregates for records. Timing is scaled to unit.
// Reported rules follow the profiles in techniques (nil means the built-ins).
// An inconsistent per-room/per-bin breakdown is returned as an error.
func Analyze(info RunInfo, records []race.AnomalyRecord, unit stats.Unit, techniques race.TechniqueTable) (Analysis, error) {
	sessions := stats.Sessions(records)
	rules := stats.RulesFor(records, techniques)
	a := Analysis{
		Info:      info,
		Outcomes:  stats.SummarizeOutcomes(sessions),
		Totals:    stats.CountRequests(sessions),
		Rules:     stats.ComputeRuleStats(records, rules),
		Breakdown: stats.BreakDown(records, rules),
		Timing:    stats.ComputeTiming(sessions).Scaled(unit),
		Records:   records,
	}
	if err := a.Breakdown.CheckConsistency(); err != nil {
		return a, fmt.Errorf("aggregation check: %w", err)
	}
	return a, nil
}

// Anomalous returns the records where at least one rule fired.
func (a Analysis) Anomalous() []race.AnomalyRecord {
	var out []race.AnomalyRecord
	for _, r := range a.Records {
		if r.IsAnomalous() {
			out = append(out, r)
		}
	}
	return out
}
