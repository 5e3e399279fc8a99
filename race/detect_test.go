package race

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joinrace/joinrace/race/internal/testutil"
)

func TestDetect_GoldenScenarios(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	require.NotEmpty(t, dataset.Scenarios)

	for _, sc := range dataset.Scenarios {
		t.Run(sc.Name, func(t *testing.T) {
			tech := mustTechnique(sc.Technique)

			sessions := fromGoldenSessions(sc.Sessions)
			if len(sc.Events) > 0 {
				sessions = Pair(fromGoldenEvents(sc.Events), tech, PairOptions{}, nil)
			}
			if sc.ExpectSessions != nil {
				require.Len(t, sessions, *sc.ExpectSessions)
			}

			records := Detect(sessions, tech.Rules, DetectOptions{})

			require.Len(t, records, len(sc.Expect))
			for i, want := range sc.Expect {
				got := records[i]
				assert.Equal(t, want.User, got.UserID, "record %d user", i)
				assert.Equal(t, want.GroupSize, got.ContentionGroupSize, "record %d group size", i)
				if len(want.Labels) == 0 {
					assert.Empty(t, got.Labels, "record %d labels", i)
				} else {
					assert.Equal(t, want.Labels, got.Labels, "record %d labels", i)
				}
				assert.Equal(t, want.OverCapacityAmount, got.OverCapacityAmount, "record %d over capacity", i)
				assert.Equal(t, want.LostUpdateDiff, got.LostUpdateDiff, "record %d lost update", i)
				assert.Equal(t, want.CurrSequenceDiff, got.CurrSequenceDiff, "record %d sequence diff", i)
			}
		})
	}
}

func TestDetect_RoomsAreIndependent(t *testing.T) {
	// GIVEN identical intervals in two different rooms
	sessions := []Session{
		nanoSession(1, "a", 1, 100, 200),
		nanoSession(2, "b", 1, 100, 200),
	}

	records := Detect(sessions, RuleProfile{Contention: true, ContentionDefect: true}, DetectOptions{})

	// THEN neither sees the other
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, 1, r.ContentionGroupSize)
	}
}

func TestDetect_RoomFilter(t *testing.T) {
	sessions := []Session{
		nanoSession(1, "a", 1, 100, 200),
		nanoSession(2, "b", 1, 100, 200),
		nanoSession(3, "c", 1, 100, 200),
	}

	records := Detect(sessions, RuleProfile{}, DetectOptions{Rooms: []int{3, 1}})

	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].RoomID)
	assert.Equal(t, 3, records[1].RoomID)
}

func TestDetect_WorkersProduceSameOutput(t *testing.T) {
	// GIVEN many rooms with overlapping sessions
	var sessions []Session
	for room := 1; room <= 25; room++ {
		for i := 0; i < 8; i++ {
			start := uint64(i * 30)
			sessions = append(sessions, nanoSession(room, fmt.Sprintf("u%d-%d", room, i), i+1, start, start+45))
		}
	}
	rules := mustTechnique("lock").Rules

	// WHEN detected inline and with a worker pool
	serial := Detect(sessions, rules, DetectOptions{Workers: 1})
	parallel := Detect(sessions, rules, DetectOptions{Workers: 4})

	// THEN results are identical and ordered by room then sequence
	assert.Equal(t, serial, parallel)
	require.Len(t, serial, 200)
	assert.Equal(t, 1, serial[0].RoomID)
	assert.Equal(t, 25, serial[199].RoomID)
	assert.Equal(t, 8, serial[199].Sequence)
}

func TestDetect_EveryRoomSessionGetsARecord(t *testing.T) {
	sessions := []Session{
		nanoSession(1, "a", 1, 0, 10),
		nanoSession(1, "b", 2, 20, 30),
	}

	records := Detect(sessions, mustTechnique("lock").Rules, DetectOptions{})

	require.Len(t, records, 2)
	for _, r := range records {
		assert.False(t, r.IsAnomalous())
		assert.Equal(t, 1, r.ContentionGroupSize)
		assert.Equal(t, int64(10), r.CriticalSectionNanos)
	}
}

func TestDetect_MoreWorkersThanRooms(t *testing.T) {
	sessions := []Session{
		nanoSession(2, "a", 1, 100, 200),
		nanoSession(2, "b", 2, 150, 250),
		nanoSession(5, "c", 1, 100, 200),
	}

	records := Detect(sessions, mustTechnique("lock").Rules, DetectOptions{Workers: 16})

	require.Len(t, records, 3)
	assert.Equal(t, 2, records[0].ContentionGroupSize)
	assert.Equal(t, 2, records[1].ContentionGroupSize)
	assert.Equal(t, 5, records[2].RoomID)
	assert.Equal(t, 1, records[2].ContentionGroupSize)
}
