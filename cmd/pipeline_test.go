package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/stats"
	"github.com/joinrace/joinrace/race/store"
	"github.com/joinrace/joinrace/race/table"
	"github.com/joinrace/joinrace/race/trace"
)

// overlappingLog holds two lock sessions in room 1 whose intervals overlap.
const overlappingLog = `event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=alice currentPeople=1 maxPeople=5 nanoTime=100
event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=bob currentPeople=1 maxPeople=5 nanoTime=150
event=JOIN_SUCCESS_EXISTING roomNumber=1 userId=alice currentPeople=2 maxPeople=5 nanoTime=200
event=JOIN_SUCCESS_EXISTING roomNumber=1 userId=bob currentPeople=3 maxPeople=5 nanoTime=250
event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=carol currentPeople=3 maxPeople=5 nanoTime=900
`

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.log")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func lockConfig(t *testing.T, logPath string) pairConfig {
	t.Helper()
	tech, err := race.BuiltinTechniques().Lookup("lock")
	require.NoError(t, err)
	return pairConfig{
		LogFile:   logPath,
		Technique: tech,
		Bins:      race.DefaultBinOptions(),
		Trace:     trace.TraceConfig{Level: trace.TraceLevelRecords},
	}
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "a.csv", outputPath("", "a.csv"))
	assert.Equal(t, filepath.Join("out", "a.csv"), outputPath("out", "a.csv"))
	assert.Equal(t, "/tmp/a.csv", outputPath("out", "/tmp/a.csv"))
	assert.Equal(t, "", outputPath("out", ""))
}

func TestPairStage_PairsSessionsAndSummarizes(t *testing.T) {
	// GIVEN a log with two complete sessions and one unmatched start
	cfg := lockConfig(t, writeLog(t, overlappingLog))

	// WHEN paired
	sessions, summary, err := pairStage(cfg)

	// THEN both sessions come back and the dangling start is counted
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "alice", sessions[0].UserID)
	assert.Equal(t, 2, summary.Matched)
	assert.Equal(t, 1, summary.DroppedStarts)
	assert.Equal(t, 5, summary.Lines)
}

func TestPairStage_LogsDroppedStartsPerRoom(t *testing.T) {
	// GIVEN a log whose last start never finishes
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)
	cfg := lockConfig(t, writeLog(t, overlappingLog))

	// WHEN paired
	_, _, err := pairStage(cfg)

	// THEN the drop is reported against its room
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "room 1: 1 starts dropped")
	assert.Contains(t, buf.String(), "0 orphan entry markers")
}

func TestPairStage_NoSessions_ReturnsErrorWithSummary(t *testing.T) {
	cfg := lockConfig(t, writeLog(t, "nothing to see here\n"))

	sessions, summary, err := pairStage(cfg)

	assert.Error(t, err)
	assert.Nil(t, sessions)
	require.NotNil(t, summary)
	assert.Equal(t, 1, summary.Lines)
}

func TestPairStage_InvalidBins_ReturnsError(t *testing.T) {
	cfg := lockConfig(t, writeLog(t, overlappingLog))
	cfg.Bins = race.BinOptions{Size: 20, Max: 0}

	_, _, err := pairStage(cfg)

	assert.Error(t, err)
}

func TestTechniqueOf(t *testing.T) {
	assert.Equal(t, "cas", techniqueOf([]race.Session{{}, {Technique: "cas"}}, "lock"))
	assert.Equal(t, "lock", techniqueOf([]race.Session{{}}, "lock"))
}

func TestDetectAndStatsStages_WriteEveryOutput(t *testing.T) {
	// GIVEN paired sessions from an overlapping log
	cfg := lockConfig(t, writeLog(t, overlappingLog))
	sessions, _, err := pairStage(cfg)
	require.NoError(t, err)
	dir := t.TempDir()
	out := detectOutputs{
		ResultFile:     filepath.Join(dir, "anomalies.csv"),
		DetailedOutput: filepath.Join(dir, "detailed.txt"),
		Workbook:       filepath.Join(dir, "anomalies.xlsx"),
		SQLite:         filepath.Join(dir, "runs.db"),
	}
	info := runInfo("lock-run", cfg.Technique.Name, cfg.LogFile)

	// WHEN detection runs
	records, err := detectStage(sessions, cfg.Technique, race.DetectOptions{}, info, out)

	// THEN both overlapping sessions carry the contention label
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Has(race.LabelContention), "user %s", r.UserID)
	}

	// AND every requested output exists
	for _, path := range []string{out.ResultFile, out.DetailedOutput, out.Workbook, out.SQLite} {
		_, err := os.Stat(path)
		assert.NoError(t, err, path)
	}
	read, err := table.ReadAnomaliesFile(out.ResultFile)
	require.NoError(t, err)
	assert.Len(t, read, 2)

	db, err := store.Open(out.SQLite)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	n, err := db.CountAnomalies(context.Background(), info.RunID, race.LabelContention)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, stored, _, err := db.GetRun(context.Background(), info.RunID)
	require.NoError(t, err)
	assert.Equal(t, len(records), stored)

	// WHEN the stats stage aggregates the same records
	var buf bytes.Buffer
	workbook := filepath.Join(dir, "analysis.xlsx")
	a, err := statsStage(&buf, info, records, stats.UnitNanos, nil, workbook)

	// THEN the console summary and workbook are produced
	require.NoError(t, err)
	assert.Equal(t, 2, a.Outcomes.Total)
	assert.Contains(t, buf.String(), "=== Rule Summary ===")
	assert.Contains(t, buf.String(), race.LabelContention)
	_, err = os.Stat(workbook)
	assert.NoError(t, err)
}

func TestDetectStage_RoomFilterEmptiesRecords_ReturnsError(t *testing.T) {
	cfg := lockConfig(t, writeLog(t, overlappingLog))
	sessions, _, err := pairStage(cfg)
	require.NoError(t, err)

	_, err = detectStage(sessions, cfg.Technique, race.DetectOptions{Rooms: []int{42}}, runInfo("x", "lock", ""), detectOutputs{})

	assert.Error(t, err)
}

func TestLoadSeries_Validation(t *testing.T) {
	_, err := loadSeries(nil, nil)
	assert.Error(t, err)

	_, err = loadSeries([]string{"a.csv", "b.csv"}, []string{"a"})
	assert.Error(t, err)
}

func TestLoadSeries_ReadsEachInput(t *testing.T) {
	// GIVEN an anomalies CSV on disk
	path := filepath.Join(t.TempDir(), "lock_anomalies.csv")
	records := []race.AnomalyRecord{{
		Session: race.Session{RoomID: 1, UserID: "u", Technique: "lock", Outcome: race.OutcomeSuccess, Sequence: 1, Bin: 1},
		Labels:  []string{race.LabelLostUpdate},
	}}
	require.NoError(t, table.WriteAnomaliesFile(path, records))

	// WHEN loaded as a series
	series, err := loadSeries([]string{path}, []string{"lock"})

	// THEN its records and label are kept
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "lock", series[0].Label)
	require.Len(t, series[0].Records, 1)
	assert.True(t, series[0].Records[0].Has(race.LabelLostUpdate))
}
