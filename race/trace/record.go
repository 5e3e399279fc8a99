// Package trace records the pairing decision trail: events that were
// discarded while scanning, starts that never closed, and terminal events
// without a start. This package has no dependencies on race/; it stores pure
// data types.
package trace

// Discard reasons.
const (
	ReasonMissingRoom = "missing room"
	ReasonBadRoom     = "invalid room"
	ReasonMissingUser = "missing user"
	ReasonNoTimestamp = "no timestamp"
	ReasonBadValue    = "malformed value"
	ReasonNoClock     = "no reading for room clock"
)

// DiscardRecord captures one log line that was recognised but unusable.
type DiscardRecord struct {
	Line   int
	Tag    string
	Reason string
}

// DropRecord captures a start event that was still open at end of input.
type DropRecord struct {
	RoomID int
	UserID string
	Tag    string
	Line   int
}

// OrphanRecord captures an entry or terminal event with no open start for
// its user.
type OrphanRecord struct {
	RoomID int
	UserID string
	Tag    string
	Line   int
}
