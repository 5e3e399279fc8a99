// Package race reconstructs critical-section sessions from concurrency-test
// logs and classifies them against four anomaly rules.
//
// # Reading Guide
//
// Start with these files to understand the analysis core:
//   - event.go: RawEvent (one parsed log line) and the per-room clock
//   - technique.go: the technique table mapping log tags to session roles
//   - pairing.go: per-(room,user) FIFO matching of start and terminal events
//   - overlap.go: interval sweep that finds overlapping sessions in a room
//   - rules.go: lost-update, contention, capacity and state-transition rules
//
// # Pipeline
//
// Each stage reads the previous stage's file and writes a new one:
//
//	log --logscan--> []RawEvent --Pair--> []Session --table--> sessions.csv
//	sessions.csv --Detect--> []AnomalyRecord --table--> anomalies.csv
//	anomalies.csv --stats/report/chart--> workbook, text report, PNGs
//
// Sub-packages:
//   - race/logscan/: key=value log line scanner
//   - race/table/: CSV interchange for sessions and anomaly records
//   - race/trace/: pairing decision trace
//   - race/stats/: rule, outcome and timing aggregation
//   - race/report/: spreadsheet workbook and detailed text report
//   - race/chart/: PNG charts
//   - race/store/: SQLite sink for anomaly records
package race
