package race

import "strings"

// AnomalyRecord is a Session plus the outcome of every rule. Every session
// gets a record, violated or not, so rate denominators stay exact. Magnitude
// fields are zero or empty unless their rule fired.
type AnomalyRecord struct {
	Session

	Labels []string

	LostUpdateExpected int
	LostUpdateActual   int
	LostUpdateDiff     int

	ContentionGroupSize int // 1 when the session overlapped nothing
	ContentionUserIDs   []string

	OverCapacityAmount int
	OverCapacityCurr   int
	OverCapacityMax    int

	ExpectedCurrBySequence int
	ActualCurrPeople       int
	CurrSequenceDiff       int
	SortedSequencePosition int

	InterveningUsers     []string
	InterveningUserCount int
	CriticalSectionNanos int64
}

// AnomalyType joins the labels with commas, as written to anomaly_type.
func (r AnomalyRecord) AnomalyType() string {
	return strings.Join(r.Labels, ",")
}

// Has reports whether the record carries label.
func (r AnomalyRecord) Has(label string) bool {
	return contains(r.Labels, label)
}

// IsAnomalous reports whether any rule fired.
func (r AnomalyRecord) IsAnomalous() bool {
	return len(r.Labels) > 0
}

// ParseAnomalyType splits an anomaly_type cell into labels.
func ParseAnomalyType(s string) []string {
	var labels []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			labels = append(labels, p)
		}
	}
	return labels
}
