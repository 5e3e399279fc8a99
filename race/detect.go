package race

import (
	"context"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// DetectOptions parameterises Detect.
type DetectOptions struct {
	Rooms   []int // restrict to these rooms; empty means all
	Workers int   // rooms analysed concurrently; <= 1 runs inline
}

// Detect evaluates every session against the technique's rules. Sessions are
// grouped by room; the overlap sweep and rule checks of one room never look
// at another, so rooms may be processed in parallel. Output order is room,
// then sequence, regardless of Workers.
func Detect(sessions []Session, rules RuleProfile, opts DetectOptions) []AnomalyRecord {
	keep := make(map[int]bool, len(opts.Rooms))
	for _, r := range opts.Rooms {
		keep[r] = true
	}

	byRoom := make(map[int][]Session)
	for _, s := range sessions {
		if len(keep) > 0 && !keep[s.RoomID] {
			continue
		}
		byRoom[s.RoomID] = append(byRoom[s.RoomID], s)
	}
	rooms := make([]int, 0, len(byRoom))
	for room := range byRoom {
		rooms = append(rooms, room)
	}
	sort.Ints(rooms)

	results := make([][]AnomalyRecord, len(rooms))
	analyse := func(i int) {
		results[i] = detectRoom(byRoom[rooms[i]], rules)
	}

	if opts.Workers <= 1 {
		for i := range rooms {
			analyse(i)
		}
	} else {
		ctx := context.Background()
		sem := semaphore.NewWeighted(int64(opts.Workers))
		var wg sync.WaitGroup
		for i := range rooms {
			if err := sem.Acquire(ctx, 1); err != nil {
				logrus.Warnf("room %d: worker slot unavailable (%v), analysing inline", rooms[i], err)
				analyse(i)
				continue
			}
			wg.Add(1)
			go func(i int) {
				defer sem.Release(1)
				defer wg.Done()
				analyse(i)
			}(i)
		}
		wg.Wait()
	}

	var out []AnomalyRecord
	for i, recs := range results {
		logrus.Debugf("room %d: %d sessions analysed", rooms[i], len(recs))
		out = append(out, recs...)
	}
	return out
}

func detectRoom(sessions []Session, rules RuleProfile) []AnomalyRecord {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].Sequence < sessions[j].Sequence
	})
	overlaps := FindOverlaps(sessions)
	records := make([]AnomalyRecord, len(sessions))
	for i, s := range sessions {
		members := make([]string, 0, overlaps.GroupSize(i))
		members = append(members, s.UserID)
		for _, j := range overlaps.Others[i] {
			members = append(members, sessions[j].UserID)
		}
		records[i] = Evaluate(s, members, rules)
	}
	return records
}
