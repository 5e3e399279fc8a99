package race

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// intervalSpec is a generated session bound: start and a non-negative length.
type intervalSpec struct {
	Start  uint64
	Length uint64
}

// zipIntervals pairs generated starts and lengths up to the shorter slice.
func zipIntervals(starts, lengths []uint64) []intervalSpec {
	n := min(len(starts), len(lengths))
	specs := make([]intervalSpec, n)
	for i := 0; i < n; i++ {
		specs[i] = intervalSpec{Start: starts[i], Length: lengths[i]}
	}
	return specs
}

func sessionsFrom(specs []intervalSpec) []Session {
	out := make([]Session, len(specs))
	for i, sp := range specs {
		out[i] = nanoSession(1, fmt.Sprintf("u%d", i), i+1, sp.Start, sp.Start+sp.Length)
	}
	return out
}

func bruteForceOverlap(a, b intervalSpec) bool {
	ae, be := a.Start+a.Length, b.Start+b.Length
	return !(ae < b.Start || be < a.Start)
}

func TestProperty_PairingCorrectness(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("N sequential pairs per user yield N sessions with start < end", prop.ForAll(
		func(users int, perUser int) bool {
			var events []RawEvent
			line := 1
			clock := uint64(1)
			for u := 0; u < users; u++ {
				for k := 0; k < perUser; k++ {
					user := fmt.Sprintf("user-%d", u)
					events = append(events, lockEvent(line, 1, user, "PRE_JOIN_CURRENT_STATE", clock, k, 1000))
					events = append(events, lockEvent(line+1, 1, user, "JOIN_SUCCESS_EXISTING", clock+3, k+1, 1000))
					line += 2
					clock += 10
				}
			}
			sessions := Pair(events, mustTechnique("lock"), PairOptions{}, nil)
			if len(sessions) != users*perUser {
				return false
			}
			for i, s := range sessions {
				if s.StartNano.Value >= s.EndNano.Value || s.Sequence != i+1 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 6),
		gen.IntRange(0, 8),
	))

	properties.TestingRun(t)
}

func TestProperty_OverlapSymmetryAndGroupSize(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("overlap relation is symmetric and matches the pairwise definition", prop.ForAll(
		func(starts, lengths []uint64) bool {
			specs := zipIntervals(starts, lengths)
			sessions := sessionsFrom(specs)
			ov := FindOverlaps(sessions)

			member := make([]map[int]bool, len(sessions))
			for i := range sessions {
				member[i] = make(map[int]bool)
				for _, j := range ov.Others[i] {
					if j == i || member[i][j] {
						return false
					}
					member[i][j] = true
				}
			}
			for i := range specs {
				expected := 1
				for j := range specs {
					if i == j {
						continue
					}
					want := bruteForceOverlap(specs[i], specs[j])
					if member[i][j] != want || member[i][j] != member[j][i] {
						return false
					}
					if want {
						expected++
					}
				}
				if ov.GroupSize(i) != expected {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt64Range(0, 1000)),
		gen.SliceOf(gen.UInt64Range(0, 200)),
	))

	properties.TestingRun(t)
}

func TestProperty_NoCapacityFlagsWithinCapacity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("curr <= max everywhere yields no capacity violations", prop.ForAll(
		func(curr []int, headroom int) bool {
			var sessions []Session
			for i, c := range curr {
				s := nanoSession(1, fmt.Sprintf("u%d", i), i+1, uint64(i*10), uint64(i*10+5))
				s.OccupancyPrev, s.OccupancyCurr, s.CapacityMax = c, c, c+headroom
				s.CountsKnown = true
				sessions = append(sessions, s)
			}
			for _, tech := range []string{"lock", "semaphore", "cas"} {
				for _, rec := range Detect(sessions, mustTechnique(tech).Rules, DetectOptions{}) {
					if rec.Has(LabelCapacityExceeded) || rec.OverCapacityAmount != 0 {
						return false
					}
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 50)),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
