package store

// Schema statements. Nanosecond counters are TEXT because SQLite integers
// are signed 64-bit and the counters use the full uint64 range.
const (
	runsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id        TEXT PRIMARY KEY,
    technique     TEXT NOT NULL,
    label         TEXT NOT NULL,
    source        TEXT NOT NULL,
    created_at    INTEGER NOT NULL,
    session_count INTEGER NOT NULL,
    anomaly_count INTEGER NOT NULL
)`

	anomalyRecordsTableSQL = `
CREATE TABLE IF NOT EXISTS anomaly_records (
    run_id               TEXT NOT NULL REFERENCES runs(run_id),
    room                 INTEGER NOT NULL,
    seq                  INTEGER NOT NULL,
    bin                  INTEGER NOT NULL,
    user_id              TEXT NOT NULL,
    outcome              TEXT NOT NULL,
    anomaly_type         TEXT NOT NULL,
    start_nano           TEXT,
    end_nano             TEXT,
    group_size           INTEGER NOT NULL,
    lost_update_diff     INTEGER NOT NULL,
    over_capacity_amount INTEGER NOT NULL,
    curr_sequence_diff   INTEGER NOT NULL,
    PRIMARY KEY (run_id, room, seq)
)`

	anomalyRecordsRunIndexSQL = `CREATE INDEX IF NOT EXISTS idx_anomaly_records_type ON anomaly_records(run_id, anomaly_type)`
)

// AllSchemaSQL returns the statements that create the store schema.
func AllSchemaSQL() []string {
	return []string{runsTableSQL, anomalyRecordsTableSQL, anomalyRecordsRunIndexSQL}
}
