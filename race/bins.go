package race

import (
	"fmt"
	"math"
)

// BinStrategy selects how room-relative sequence numbers map onto bins.
type BinStrategy string

const (
	// BinChunk puts every Size consecutive sessions in one bin, capped at Max.
	BinChunk BinStrategy = "chunk"
	// BinEven splits the room's sequence range into Max equal-width bins.
	BinEven BinStrategy = "even"
)

// BinOptions parameterises bin assignment. Bins are report buckets only.
type BinOptions struct {
	Size     int
	Max      int
	Strategy BinStrategy
}

// DefaultBinOptions returns 20 sessions per bin, at most 10 bins.
func DefaultBinOptions() BinOptions {
	return BinOptions{Size: 20, Max: 10, Strategy: BinChunk}
}

// Validate rejects non-positive sizes and unknown strategies.
func (o BinOptions) Validate() error {
	if o.Max < 1 {
		return fmt.Errorf("max bins must be >= 1, got %d", o.Max)
	}
	switch o.Strategy {
	case BinChunk, "":
		if o.Size < 1 {
			return fmt.Errorf("bin size must be >= 1, got %d", o.Size)
		}
	case BinEven:
	default:
		return fmt.Errorf("unknown bin strategy %q", o.Strategy)
	}
	return nil
}

// BinFor returns the bin of the session at 1-based sequence seq in a room of
// n sessions.
func (o BinOptions) BinFor(seq, n int) int {
	if o.Strategy == BinEven {
		return evenBin(seq, n, o.Max)
	}
	b := (seq-1)/o.Size + 1
	if b > o.Max {
		return o.Max
	}
	return b
}

// evenBin assigns equal-width, right-inclusive buckets over positions
// 0..n-1; the first bucket also holds position 0.
func evenBin(seq, n, bins int) int {
	if n <= bins {
		return seq
	}
	width := float64(n-1) / float64(bins)
	b := int(math.Ceil(float64(seq-1) / width))
	if b < 1 {
		return 1
	}
	if b > bins {
		return bins
	}
	return b
}
