package trace

// TraceLevel controls how much of the pairing decision trail is retained.
type TraceLevel string

const (
	// TraceLevelCounts keeps only counters.
	TraceLevelCounts TraceLevel = "counts"
	// TraceLevelRecords keeps one record per dropped, orphaned or discarded event.
	TraceLevelRecords TraceLevel = "records"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelCounts:  true,
	TraceLevelRecords: true,
	"":                true, // empty defaults to counts
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// PairingTrace collects what happened to every event that did not end up in
// a session, plus the number of sessions produced. All methods are safe on a
// nil receiver so callers may pass nil to disable tracing.
type PairingTrace struct {
	Config TraceConfig

	Lines    int // log lines read
	Accepted int // events handed to pairing
	Matched  int // sessions produced

	Discarded []DiscardRecord
	Dropped   []DropRecord
	Orphans   []OrphanRecord

	discardedCount   int
	droppedCount     int
	orphanCount      int
	orphanEnterCount int
	reasons        map[string]int
	droppedByRoom  map[int]int
}

// NewPairingTrace creates a PairingTrace ready for recording.
func NewPairingTrace(config TraceConfig) *PairingTrace {
	return &PairingTrace{
		Config:        config,
		Discarded:     make([]DiscardRecord, 0),
		Dropped:       make([]DropRecord, 0),
		Orphans:       make([]OrphanRecord, 0),
		reasons:       make(map[string]int),
		droppedByRoom: make(map[int]int),
	}
}

func (pt *PairingTrace) keepRecords() bool {
	return pt.Config.Level == TraceLevelRecords
}

// RecordLine counts one scanned log line.
func (pt *PairingTrace) RecordLine() {
	if pt == nil {
		return
	}
	pt.Lines++
}

// RecordAccepted counts one event handed to pairing.
func (pt *PairingTrace) RecordAccepted() {
	if pt == nil {
		return
	}
	pt.Accepted++
}

// RecordMatch counts one emitted session.
func (pt *PairingTrace) RecordMatch() {
	if pt == nil {
		return
	}
	pt.Matched++
}

// RecordDiscard notes a line that carried a known tag but could not be used.
func (pt *PairingTrace) RecordDiscard(record DiscardRecord) {
	if pt == nil {
		return
	}
	pt.discardedCount++
	if pt.reasons == nil {
		pt.reasons = make(map[string]int)
	}
	pt.reasons[record.Reason]++
	if pt.keepRecords() {
		pt.Discarded = append(pt.Discarded, record)
	}
}

// RecordDrop notes a start event that never met a terminal event.
func (pt *PairingTrace) RecordDrop(record DropRecord) {
	if pt == nil {
		return
	}
	pt.droppedCount++
	if pt.droppedByRoom == nil {
		pt.droppedByRoom = make(map[int]int)
	}
	pt.droppedByRoom[record.RoomID]++
	if pt.keepRecords() {
		pt.Dropped = append(pt.Dropped, record)
	}
}

// RecordOrphan notes a terminal event with no open start.
func (pt *PairingTrace) RecordOrphan(record OrphanRecord) {
	if pt == nil {
		return
	}
	pt.orphanCount++
	if pt.keepRecords() {
		pt.Orphans = append(pt.Orphans, record)
	}
}

// RecordOrphanEnter notes an entry marker with no open start to attach to.
// It shares the Orphans list with terminal orphans; Tag tells them apart.
func (pt *PairingTrace) RecordOrphanEnter(record OrphanRecord) {
	if pt == nil {
		return
	}
	pt.orphanEnterCount++
	if pt.keepRecords() {
		pt.Orphans = append(pt.Orphans, record)
	}
}
