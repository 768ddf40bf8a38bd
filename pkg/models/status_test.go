package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryOutcome_String(t *testing.T) {
	tests := []struct {
		outcome EntryOutcome
		want    string
	}{
		{OutcomeUnset, "unset"},
		{OutcomeArchived, "archived"},
		{OutcomeSkipped, "skipped"},
		{OutcomeNoTitle, "no_title"},
		{OutcomeFailed, "failed"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.String())
	}
}

func TestEntryOutcome_IsValid(t *testing.T) {
	tests := []struct {
		outcome EntryOutcome
		want    bool
	}{
		{OutcomeArchived, true},
		{OutcomeSkipped, true},
		{OutcomeNoTitle, true},
		{OutcomeFailed, true},
		{OutcomeUnset, false},
		{EntryOutcome("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.outcome.IsValid(), "EntryOutcome(%q).IsValid()", string(tt.outcome))
	}
}

func TestEntryOutcome_IsFailure(t *testing.T) {
	assert.True(t, OutcomeFailed.IsFailure())
	assert.False(t, OutcomeNoTitle.IsFailure())
	assert.False(t, OutcomeSkipped.IsFailure())
	assert.False(t, OutcomeArchived.IsFailure())
}
