// Package table reads and writes the CSV files exchanged between pipeline
// stages. Column names are an interchange contract: every downstream reader
// locates columns by these exact header names.
package table

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingColumn is returned when a required header is absent.
	ErrMissingColumn = errors.New("missing required column")
	// ErrNoRows is returned when no usable row remains after skipping bad ones.
	ErrNoRows = errors.New("no usable rows")
)

// utf8BOM prefixes every written file so spreadsheet tools detect UTF-8.
const utf8BOM = "\ufeff"

// Session columns.
const (
	ColRoom          = "roomNumber"
	ColBin           = "bin"
	ColUser          = "user_id"
	ColPrevPeople    = "prev_people"
	ColCurrPeople    = "curr_people"
	ColExpected      = "expected_people"
	ColMaxPeople     = "max_people"
	ColSequence      = "room_entry_sequence"
	ColJoinResult    = "join_result"
	ColStartTime     = "prev_entry_time"
	ColEndTime       = "curr_entry_time"
	ColStartNano     = "true_critical_section_nanoTime_start"
	ColEndNano       = "true_critical_section_nanoTime_end"
	ColEnterTime     = "critical_enter_time"
	ColEnterNano     = "critical_enter_nanoTime"
	ColTechnique     = "technique"
	ColAnomalyType   = "anomaly_type"
	ColLUExpected    = "lost_update_expected"
	ColLUActual      = "lost_update_actual"
	ColLUDiff        = "lost_update_diff"
	ColGroupSize     = "contention_group_size"
	ColGroupUsers    = "contention_user_ids"
	ColOverAmount    = "over_capacity_amount"
	ColOverCurr      = "over_capacity_curr"
	ColOverMax       = "over_capacity_max"
	ColSeqExpected   = "expected_curr_by_sequence"
	ColSeqActual     = "actual_curr_people"
	ColSeqDiff       = "curr_sequence_diff"
	ColSeqPosition   = "sorted_sequence_position"
	ColIntervening   = "intervening_users_in_critical_section"
	ColInterveningN  = "intervening_user_count_critical"
	ColCriticalNanos = "true_critical_section_duration_nanos"
)

// SessionColumns is the header of a sessions CSV, in write order.
var SessionColumns = []string{
	ColRoom, ColBin, ColUser, ColPrevPeople, ColCurrPeople, ColExpected, ColMaxPeople,
	ColSequence, ColJoinResult, ColStartTime, ColEndTime, ColStartNano, ColEndNano,
	ColEnterTime, ColEnterNano, ColTechnique,
}

// AnomalyColumns is the header of an anomalies CSV: session columns, then
// anomaly_type and the rule detail columns.
var AnomalyColumns = append(append([]string{}, SessionColumns...),
	ColAnomalyType,
	ColLUExpected, ColLUActual, ColLUDiff,
	ColGroupSize, ColGroupUsers,
	ColOverAmount, ColOverCurr, ColOverMax,
	ColSeqExpected, ColSeqActual, ColSeqDiff, ColSeqPosition,
	ColIntervening, ColInterveningN, ColCriticalNanos,
)

// requiredSessionColumns must be present for a sessions file to be usable.
var requiredSessionColumns = []string{ColRoom, ColUser, ColSequence, ColJoinResult}

// ColumnGuide describes each column for spreadsheet side tables.
var ColumnGuide = map[string]string{
	ColRoom:          "room identifier",
	ColBin:           "order-based bucket of the session within its room",
	ColUser:          "user that attempted the join",
	ColPrevPeople:    "occupancy logged at the start event",
	ColCurrPeople:    "occupancy logged at the terminal event",
	ColExpected:      "prev_people + 1 for successful joins; empty otherwise",
	ColMaxPeople:     "room capacity",
	ColSequence:      "1-based rank of the session by start time within its room",
	ColJoinResult:    "SUCCESS, FAIL_OVER_CAPACITY, FAIL_ENTRY or UNKNOWN",
	ColStartTime:     "wall-clock time of the start event",
	ColEndTime:       "wall-clock time of the terminal event",
	ColStartNano:     "nanosecond counter at the start event",
	ColEndNano:       "nanosecond counter at the terminal event",
	ColEnterTime:     "wall-clock time of the critical-section entry marker",
	ColEnterNano:     "nanosecond counter at the entry marker",
	ColTechnique:     "concurrency technique that produced the log",
	ColAnomalyType:   "comma-joined rule labels that fired",
	ColLUExpected:    "min(expected_people, max_people)",
	ColLUActual:      "curr_people when a lost update fired",
	ColLUDiff:        "curr_people - capped expected",
	ColGroupSize:     "1 + number of overlapping sessions in the room",
	ColGroupUsers:    "users of the overlap set, own user first",
	ColOverAmount:    "curr_people - max_people",
	ColOverCurr:      "curr_people when capacity was exceeded",
	ColOverMax:       "max_people when capacity was exceeded",
	ColSeqExpected:   "initial occupancy + room_entry_sequence",
	ColSeqActual:     "curr_people when the state transition fired",
	ColSeqDiff:       "curr_people - expected_curr_by_sequence",
	ColSeqPosition:   "room_entry_sequence when the state transition fired",
	ColIntervening:   "other users inside the critical section",
	ColInterveningN:  "number of intervening users",
	ColCriticalNanos: "end - start in nanoseconds",
}

// header maps column names to their index in a row.
type header map[string]int

func newHeader(row []string) header {
	h := make(header, len(row))
	for i, name := range row {
		name = strings.TrimSpace(name)
		if i == 0 {
			name = strings.TrimPrefix(name, utf8BOM)
		}
		h[name] = i
	}
	return h
}

func (h header) require(names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := h[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// get returns the trimmed cell for column name, "" when absent.
func (h header) get(row []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
