package race

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnknownTechnique is returned when a technique name is not in the table.
	ErrUnknownTechnique = errors.New("unknown technique")
	// ErrInvalidTechnique is returned when a technique definition cannot drive pairing.
	ErrInvalidTechnique = errors.New("invalid technique")
)

// Role is the part a log tag plays in a session.
type Role int

const (
	RoleNone Role = iota
	RoleStart
	RoleEnter
	RoleTerminal
)

// Anomaly labels written to the anomaly_type column.
const (
	LabelLostUpdate          = "LOST_UPDATE"
	LabelContention          = "CONTENTION"
	LabelConcurrentExecution = "CONCURRENT_EXECUTION"
	LabelCapacityExceeded    = "CAPACITY_EXCEEDED"
	LabelStateTransition     = "STATE_TRANSITION"
)

const defaultInitialOccupancy = 1

// RuleProfile selects which rules apply to a technique and how.
type RuleProfile struct {
	LostUpdate       bool `yaml:"lost_update"`
	Contention       bool `yaml:"contention"`
	ContentionDefect bool `yaml:"contention_is_defect"` // false: overlap is an observed pattern, labelled CONCURRENT_EXECUTION
	CapacityExceeded bool `yaml:"capacity_exceeded"`
	StrictCapacity   bool `yaml:"strict_capacity"` // also require occupancy_prev <= capacity_max
	StateTransition  bool `yaml:"state_transition"`
	InitialOccupancy *int `yaml:"initial_occupancy,omitempty"` // defaults to 1
}

// Initial returns the occupancy assumed before the first entry of a room.
func (p RuleProfile) Initial() int {
	if p.InitialOccupancy == nil {
		return defaultInitialOccupancy
	}
	return *p.InitialOccupancy
}

// ContentionLabel is the anomaly_type label used for overlapping sessions.
func (p RuleProfile) ContentionLabel() string {
	if p.ContentionDefect {
		return LabelContention
	}
	return LabelConcurrentExecution
}

// Labels lists the labels this profile can emit, in evaluation order.
func (p RuleProfile) Labels() []string {
	var labels []string
	if p.LostUpdate {
		labels = append(labels, LabelLostUpdate)
	}
	if p.Contention {
		labels = append(labels, p.ContentionLabel())
	}
	if p.CapacityExceeded {
		labels = append(labels, LabelCapacityExceeded)
	}
	if p.StateTransition {
		labels = append(labels, LabelStateTransition)
	}
	return labels
}

// Technique maps the literal log tags of one concurrency technique onto
// session roles. One pairing function consumes every technique.
type Technique struct {
	Name             string      `yaml:"name"`
	Description      string      `yaml:"description,omitempty"`
	StartTags        []string    `yaml:"start"`
	EnterTags        []string    `yaml:"enter,omitempty"`
	SuccessTags      []string    `yaml:"success,omitempty"`
	FailCapacityTags []string    `yaml:"fail_over_capacity,omitempty"`
	FailEntryTags    []string    `yaml:"fail_entry,omitempty"`
	ResultTags       []string    `yaml:"result_terminal,omitempty"` // outcome read from the line's result token
	ExpectIncrement  bool        `yaml:"expect_increment"`          // SUCCESS implies expected = prev + 1
	Rules            RuleProfile `yaml:"rules"`
}

// Role returns the role of tag under this technique.
func (t Technique) Role(tag string) Role {
	switch {
	case contains(t.StartTags, tag):
		return RoleStart
	case contains(t.EnterTags, tag):
		return RoleEnter
	case contains(t.SuccessTags, tag), contains(t.FailCapacityTags, tag),
		contains(t.FailEntryTags, tag), contains(t.ResultTags, tag):
		return RoleTerminal
	}
	return RoleNone
}

// Tags returns every tag the technique recognises.
func (t Technique) Tags() []string {
	var all []string
	for _, group := range [][]string{t.StartTags, t.EnterTags, t.SuccessTags, t.FailCapacityTags, t.FailEntryTags, t.ResultTags} {
		all = append(all, group...)
	}
	return all
}

// TerminalOutcome resolves the outcome of a session closed by ev.
func (t Technique) TerminalOutcome(ev RawEvent) Outcome {
	switch {
	case contains(t.SuccessTags, ev.Kind):
		return OutcomeSuccess
	case contains(t.FailCapacityTags, ev.Kind):
		return OutcomeFailOverCapacity
	case contains(t.FailEntryTags, ev.Kind):
		return OutcomeFailEntry
	case contains(t.ResultTags, ev.Kind):
		return ParseOutcome(ev.Result)
	}
	return OutcomeUnknown
}

// Validate checks that the technique can drive pairing: it needs a name, a
// start tag, a terminal tag, and no tag may serve two roles.
func (t Technique) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTechnique)
	}
	if len(t.StartTags) == 0 {
		return fmt.Errorf("%w: %s has no start tag", ErrInvalidTechnique, t.Name)
	}
	if len(t.SuccessTags)+len(t.FailCapacityTags)+len(t.FailEntryTags)+len(t.ResultTags) == 0 {
		return fmt.Errorf("%w: %s has no terminal tag", ErrInvalidTechnique, t.Name)
	}
	seen := make(map[string]bool)
	for _, tag := range t.Tags() {
		if tag == "" {
			return fmt.Errorf("%w: %s has an empty tag", ErrInvalidTechnique, t.Name)
		}
		if seen[tag] {
			return fmt.Errorf("%w: %s uses tag %s for more than one role", ErrInvalidTechnique, t.Name, tag)
		}
		seen[tag] = true
	}
	return nil
}

// TechniqueTable is the set of techniques available by name.
type TechniqueTable map[string]Technique

// Lookup returns the named technique.
func (tt TechniqueTable) Lookup(name string) (Technique, error) {
	t, ok := tt[name]
	if !ok {
		return Technique{}, fmt.Errorf("%w: %q (known: %s)", ErrUnknownTechnique, name, strings.Join(tt.Names(), ", "))
	}
	return t, nil
}

// Names returns technique names in sorted order.
func (tt TechniqueTable) Names() []string {
	names := make([]string, 0, len(tt))
	for name := range tt {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinTechniques returns the default technique table: lock, semaphore,
// cas and lock-timing.
func BuiltinTechniques() TechniqueTable {
	return TechniqueTable{
		"lock": {
			Name:             "lock",
			Description:      "pessimistic lock around the room join",
			StartTags:        []string{"PRE_JOIN_CURRENT_STATE"},
			SuccessTags:      []string{"JOIN_SUCCESS_EXISTING"},
			FailCapacityTags: []string{"JOIN_FAIL_OVER_CAPACITY_EXISTING"},
			ExpectIncrement:  true,
			Rules: RuleProfile{
				LostUpdate:       true,
				Contention:       true,
				ContentionDefect: true,
				CapacityExceeded: true,
				StrictCapacity:   true,
				StateTransition:  true,
			},
		},
		"semaphore": {
			Name:             "semaphore",
			Description:      "permit-based admission; overlap is expected",
			StartTags:        []string{"JOIN_PERMIT_ATTEMPT"},
			SuccessTags:      []string{"JOIN_PERMIT_SUCCESS"},
			FailCapacityTags: []string{"JOIN_PERMIT_FAIL"},
			Rules: RuleProfile{
				Contention:       true,
				CapacityExceeded: true,
			},
		},
		"cas": {
			Name:             "cas",
			Description:      "compare-and-set join loop",
			StartTags:        []string{"CAS_JOIN_ATTEMPT"},
			SuccessTags:      []string{"CAS_JOIN_SUCCESS"},
			FailCapacityTags: []string{"CAS_JOIN_FAIL"},
			ExpectIncrement:  true,
			Rules: RuleProfile{
				LostUpdate:       true,
				Contention:       true,
				ContentionDefect: true,
				CapacityExceeded: true,
				StrictCapacity:   true,
				StateTransition:  true,
			},
		},
		"lock-timing": {
			Name:        "lock-timing",
			Description: "critical-section markers with wait and dwell timing",
			StartTags:   []string{"WAITING_START"},
			EnterTags:   []string{"CRITICAL_ENTER"},
			ResultTags:  []string{"CRITICAL_LEAVE"},
			Rules: RuleProfile{
				Contention:       true,
				ContentionDefect: true,
			},
		},
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
