package race

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinTechniques_AllValid(t *testing.T) {
	for name, tech := range BuiltinTechniques() {
		assert.NoError(t, tech.Validate(), name)
		assert.Equal(t, name, tech.Name)
	}
}

func TestTechnique_Role(t *testing.T) {
	lock := mustTechnique("lock")
	assert.Equal(t, RoleStart, lock.Role("PRE_JOIN_CURRENT_STATE"))
	assert.Equal(t, RoleTerminal, lock.Role("JOIN_SUCCESS_EXISTING"))
	assert.Equal(t, RoleTerminal, lock.Role("JOIN_FAIL_OVER_CAPACITY_EXISTING"))
	assert.Equal(t, RoleNone, lock.Role("JOIN_PERMIT_ATTEMPT"))

	timing := mustTechnique("lock-timing")
	assert.Equal(t, RoleEnter, timing.Role("CRITICAL_ENTER"))
	assert.Equal(t, RoleTerminal, timing.Role("CRITICAL_LEAVE"))
}

func TestTechnique_TerminalOutcome(t *testing.T) {
	sem := mustTechnique("semaphore")
	assert.Equal(t, OutcomeSuccess, sem.TerminalOutcome(RawEvent{Kind: "JOIN_PERMIT_SUCCESS"}))
	assert.Equal(t, OutcomeFailOverCapacity, sem.TerminalOutcome(RawEvent{Kind: "JOIN_PERMIT_FAIL"}))

	timing := mustTechnique("lock-timing")
	assert.Equal(t, OutcomeFailEntry, timing.TerminalOutcome(RawEvent{Kind: "CRITICAL_LEAVE", Result: "FAIL_ENTRY"}))
	assert.Equal(t, OutcomeUnknown, timing.TerminalOutcome(RawEvent{Kind: "CRITICAL_LEAVE", Result: "weird"}))
}

func TestTechnique_Validate_RejectsBadDefinitions(t *testing.T) {
	tests := []struct {
		name string
		tech Technique
	}{
		{"no name", Technique{StartTags: []string{"A"}, SuccessTags: []string{"B"}}},
		{"no start", Technique{Name: "x", SuccessTags: []string{"B"}}},
		{"no terminal", Technique{Name: "x", StartTags: []string{"A"}}},
		{"shared tag", Technique{Name: "x", StartTags: []string{"A"}, SuccessTags: []string{"A"}}},
		{"empty tag", Technique{Name: "x", StartTags: []string{""}, SuccessTags: []string{"B"}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.tech.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidTechnique))
		})
	}
}

func TestTechniqueTable_Lookup_Unknown(t *testing.T) {
	_, err := BuiltinTechniques().Lookup("mutex")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownTechnique)
	assert.Contains(t, err.Error(), "cas, lock, lock-timing, semaphore")
}

func TestRuleProfile_Labels(t *testing.T) {
	assert.Equal(t,
		[]string{LabelLostUpdate, LabelContention, LabelCapacityExceeded, LabelStateTransition},
		mustTechnique("lock").Rules.Labels())
	assert.Equal(t,
		[]string{LabelConcurrentExecution, LabelCapacityExceeded},
		mustTechnique("semaphore").Rules.Labels())
	assert.Equal(t, 1, RuleProfile{}.Initial())
}
