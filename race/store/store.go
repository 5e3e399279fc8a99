// Package store persists analysis runs to SQLite so several runs can be
// compared with plain SQL.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joinrace/joinrace/race"
)

// Run describes one persisted analysis run.
type Run struct {
	RunID     string
	Technique string
	Label     string
	Source    string
	CreatedAt time.Time
}

// Store is a SQLite-backed run archive.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("store: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer

	for _, stmt := range AllSchemaSQL() {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: failed to execute schema statement: %w", err)
		}
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun writes run and every record in one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, records []race.AnomalyRecord) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	anomalous := 0
	for _, r := range records {
		if r.IsAnomalous() {
			anomalous++
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, technique, label, source, created_at, session_count, anomaly_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Technique, run.Label, run.Source, createdAt.UnixNano(), len(records), anomalous,
	); err != nil {
		return fmt.Errorf("store: failed to insert run %s: %w", run.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO anomaly_records (
			run_id, room, seq, bin, user_id, outcome, anomaly_type,
			start_nano, end_nano, group_size,
			lost_update_diff, over_capacity_amount, curr_sequence_diff
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: failed to prepare record insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			run.RunID, r.RoomID, r.Sequence, r.Bin, r.UserID, string(r.Outcome), r.AnomalyType(),
			nullableNano(r.StartNano), nullableNano(r.EndNano), r.ContentionGroupSize,
			r.LostUpdateDiff, r.OverCapacityAmount, r.CurrSequenceDiff,
		); err != nil {
			return fmt.Errorf("store: failed to insert record room=%d seq=%d: %w", r.RoomID, r.Sequence, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: failed to commit run %s: %w", run.RunID, err)
	}
	return nil
}

func nullableNano(n race.NanoTime) interface{} {
	if !n.Valid {
		return nil
	}
	return n.String()
}

// CountAnomalies returns how many records of runID carry label. An empty
// label counts every anomalous record.
func (s *Store) CountAnomalies(ctx context.Context, runID, label string) (int, error) {
	var n int
	var err error
	if label == "" {
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM anomaly_records WHERE run_id = ? AND anomaly_type != ''`, runID).Scan(&n)
	} else {
		// Labels are comma-joined without spaces; wrapping both sides in
		// commas matches whole labels only.
		err = s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM anomaly_records WHERE run_id = ? AND (',' || anomaly_type || ',') LIKE ?`,
			runID, "%,"+label+",%").Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("store: failed to count anomalies for run %s: %w", runID, err)
	}
	return n, nil
}

// GetRun loads run metadata with its session and anomaly counts.
func (s *Store) GetRun(ctx context.Context, runID string) (Run, int, int, error) {
	var run Run
	var createdAt int64
	var sessions, anomalies int
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, technique, label, source, created_at, session_count, anomaly_count
		FROM runs WHERE run_id = ?`, runID).
		Scan(&run.RunID, &run.Technique, &run.Label, &run.Source, &createdAt, &sessions, &anomalies)
	if err != nil {
		return Run{}, 0, 0, fmt.Errorf("store: failed to load run %s: %w", runID, err)
	}
	run.CreatedAt = time.Unix(0, createdAt).UTC()
	return run, sessions, anomalies, nil
}
