package logscan

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinrace/joinrace/race"
	"github.com/joinrace/joinrace/race/trace"
)

const lockLog = `2025-07-09 13:36:41 INFO  ChatService - timestampIso=2025-07-09T13:36:41.721432200Z event=PRE_JOIN_CURRENT_STATE roomNumber=7 userId=alice currentPeople=1 maxPeople=3 nanoTime=18446744073709551000
2025-07-09 13:36:41 INFO  ChatService - unrelated line without tokens
2025-07-09 13:36:41 INFO  ChatService - timestampIso=2025-07-09T13:36:41.721532200Z event=ROOM_CREATED roomNumber=7 userId=alice
2025-07-09 13:36:41 INFO  ChatService - timestampIso=2025-07-09T13:36:41.722000000Z event=JOIN_SUCCESS_EXISTING roomNumber=7 userId=alice currentPeople=2 maxPeople=3 nanoTime=18446744073709551615
2025-07-09 13:36:41 WARN  ChatService - timestampIso=2025-07-09T13:36:41.723000000Z event=PRE_JOIN_CURRENT_STATE userId=bob currentPeople=2 maxPeople=3
`

func lockTechnique(t *testing.T) race.Technique {
	t.Helper()
	tech, err := race.BuiltinTechniques().Lookup("lock")
	require.NoError(t, err)
	return tech
}

func TestParseFields_ExtractsTokens(t *testing.T) {
	fields := ParseFields("CRITICAL_SECTION_MARK tag=CRITICAL_ENTER event=SUCCESS roomNumber=3, userId=u-1 nanoTime=42")

	assert.Equal(t, "CRITICAL_ENTER", fields["tag"])
	assert.Equal(t, "SUCCESS", fields["event"])
	assert.Equal(t, "3", fields["roomNumber"])
	assert.Equal(t, "u-1", fields["userId"])
	assert.Equal(t, "42", fields["nanoTime"])
}

func TestScan_LockLog(t *testing.T) {
	// GIVEN a log with two usable lines, noise, and a line without a room
	var buf bytes.Buffer
	logrus.SetOutput(&buf)
	defer logrus.SetOutput(os.Stderr)
	tr := trace.NewPairingTrace(trace.TraceConfig{Level: trace.TraceLevelRecords})

	// WHEN scanned
	events, err := Scan(strings.NewReader(lockLog), lockTechnique(t), Options{}, tr)

	// THEN usable lines become events with full-precision counters
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Line)
	assert.Equal(t, 7, events[0].RoomID)
	assert.Equal(t, "alice", events[0].UserID)
	assert.Equal(t, "PRE_JOIN_CURRENT_STATE", events[0].Kind)
	assert.Equal(t, uint64(18446744073709551000), events[0].Nano.Value)
	assert.Equal(t, uint64(18446744073709551615), events[1].Nano.Value)
	assert.True(t, events[0].CountsKnown)
	assert.Equal(t, 1, events[0].Occupancy)
	assert.Equal(t, 3, events[0].Capacity)
	assert.Equal(t, time.Date(2025, 7, 9, 13, 36, 41, 721432200, time.UTC), events[0].WallTime)

	// AND the roomless line is discarded with a warning
	summary := trace.Summarize(tr)
	assert.Equal(t, 5, summary.Lines)
	assert.Equal(t, 2, summary.Accepted)
	assert.Equal(t, 1, summary.Discarded)
	assert.Equal(t, 1, summary.DiscardReasons[trace.ReasonMissingRoom])
	require.Len(t, tr.Discarded, 1)
	assert.Equal(t, 5, tr.Discarded[0].Line)
	assert.Contains(t, buf.String(), "discarded 1 of 5 log lines")
}

func TestScan_MarkerLines_TagAndResult(t *testing.T) {
	log := "CRITICAL_SECTION_MARK tag=CRITICAL_LEAVE timestampIso=2025-07-09T13:36:41.1Z event=FAIL_OVER_CAPACITY roomNumber=2 userId=u9 nanoTime=500 epochNano=1752068201100000000\n"
	tech, err := race.BuiltinTechniques().Lookup("lock-timing")
	require.NoError(t, err)

	events, err := Scan(strings.NewReader(log), tech, Options{}, nil)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "CRITICAL_LEAVE", events[0].Kind)
	assert.Equal(t, "FAIL_OVER_CAPACITY", events[0].Result)
	assert.Equal(t, uint64(1752068201100000000), events[0].EpochNano.Value)
	assert.False(t, events[0].CountsKnown)
}

func TestScan_RoomFilter(t *testing.T) {
	log := "event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=a nanoTime=1\n" +
		"event=PRE_JOIN_CURRENT_STATE roomNumber=2 userId=b nanoTime=2\n"

	events, err := Scan(strings.NewReader(log), lockTechnique(t), Options{Rooms: []int{2}}, nil)

	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "b", events[0].UserID)
}

func TestScan_MalformedValues_Discarded(t *testing.T) {
	log := "event=PRE_JOIN_CURRENT_STATE roomNumber=x userId=a nanoTime=1\n" +
		"event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=a nanoTime=1.5e9\n" +
		"event=PRE_JOIN_CURRENT_STATE roomNumber=1 userId=a\n" +
		"event=PRE_JOIN_CURRENT_STATE roomNumber=1 nanoTime=3\n"
	tr := trace.NewPairingTrace(trace.TraceConfig{})

	events, err := Scan(strings.NewReader(log), lockTechnique(t), Options{}, tr)

	require.NoError(t, err)
	assert.Empty(t, events)
	summary := trace.Summarize(tr)
	assert.Equal(t, 4, summary.Discarded)
	assert.Equal(t, 1, summary.DiscardReasons[trace.ReasonBadRoom])
	assert.Equal(t, 1, summary.DiscardReasons[trace.ReasonBadValue])
	assert.Equal(t, 1, summary.DiscardReasons[trace.ReasonNoTimestamp])
	assert.Equal(t, 1, summary.DiscardReasons[trace.ReasonMissingUser])
	assert.Empty(t, tr.Discarded, "counts level keeps no records")
}

func TestScanFile_SnappyFramed(t *testing.T) {
	// GIVEN a snappy-framed archive of the lock log
	path := filepath.Join(t.TempDir(), "ChatService.log.sz")
	file, err := os.Create(path)
	require.NoError(t, err)
	w := snappy.NewBufferedWriter(file)
	_, err = w.Write([]byte(lockLog))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, file.Close())

	// WHEN scanned from disk
	events, err := ScanFile(path, lockTechnique(t), Options{}, nil)

	// THEN it decodes transparently
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestScanFile_Missing(t *testing.T) {
	_, err := ScanFile(filepath.Join(t.TempDir(), "nope.log"), lockTechnique(t), Options{}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScanThenPair_EndToEnd(t *testing.T) {
	tech := lockTechnique(t)
	events, err := Scan(strings.NewReader(lockLog), tech, Options{}, nil)
	require.NoError(t, err)

	sessions := race.Pair(events, tech, race.PairOptions{}, nil)

	require.Len(t, sessions, 1)
	assert.Equal(t, "alice", sessions[0].UserID)
	assert.Equal(t, race.OutcomeSuccess, sessions[0].Outcome)
	d, ok := sessions[0].CriticalSectionNanos()
	require.True(t, ok)
	assert.Equal(t, int64(615), d)
}
