// Package testutil provides shared test infrastructure for the race packages.
// It holds the golden scenario types and assertion helpers used across race/
// and its sub-package tests. It does not import race/, so race's own tests
// can use it.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Scenarios []GoldenScenario `json:"scenarios"`
}

// GoldenScenario is one hand-checked input with its expected analysis.
// A scenario supplies either Events (exercising pairing) or Sessions
// (exercising detection directly).
type GoldenScenario struct {
	Name           string              `json:"name"`
	Technique      string              `json:"technique"`
	Events         []GoldenEvent       `json:"events,omitempty"`
	Sessions       []GoldenSession     `json:"sessions,omitempty"`
	ExpectSessions *int                `json:"expect_sessions,omitempty"`
	Expect         []GoldenExpectation `json:"expect,omitempty"`
}

// GoldenEvent is one log event.
type GoldenEvent struct {
	Line   int    `json:"line"`
	Room   int    `json:"room"`
	User   string `json:"user"`
	Tag    string `json:"tag"`
	Result string `json:"result,omitempty"`
	Nano   uint64 `json:"nano"`
	Curr   *int   `json:"curr,omitempty"`
	Max    *int   `json:"max,omitempty"`
}

// GoldenSession is one already-paired session.
type GoldenSession struct {
	Room      int    `json:"room"`
	User      string `json:"user"`
	Sequence  int    `json:"sequence"`
	Outcome   string `json:"outcome"`
	StartNano uint64 `json:"start_nano"`
	EndNano   uint64 `json:"end_nano"`
	Prev      *int   `json:"prev,omitempty"`
	Curr      *int   `json:"curr,omitempty"`
	Max       *int   `json:"max,omitempty"`
	Expected  *int   `json:"expected,omitempty"`
}

// GoldenExpectation is the expected analysis of one session, in output order.
type GoldenExpectation struct {
	User               string   `json:"user"`
	GroupSize          int      `json:"group_size"`
	Labels             []string `json:"labels"`
	OverCapacityAmount int      `json:"over_capacity_amount,omitempty"`
	LostUpdateDiff     int      `json:"lost_update_diff,omitempty"`
	CurrSequenceDiff   int      `json:"curr_sequence_diff,omitempty"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: race/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	return &dataset
}

// Scenario returns the named scenario or fails the test.
func (d *GoldenDataset) Scenario(t *testing.T, name string) GoldenScenario {
	t.Helper()
	for _, sc := range d.Scenarios {
		if sc.Name == name {
			return sc
		}
	}
	t.Fatalf("golden scenario %q not found", name)
	return GoldenScenario{}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
