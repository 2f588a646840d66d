// ABOUTME: Tests for pipeline model helpers
// ABOUTME: Covers pool/stage parsing, contact helpers and cloning
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
		ok   bool
	}{
		{"Proposal Sent", StageProposalSent, true},
		{"proposal_sent", StageProposalSent, true},
		{"closed-won", StageClosedWon, true},
		{"  Negotiation ", StageNegotiation, true},
		{"shipped", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseStage(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParsePool(t *testing.T) {
	p, ok := ParsePool("Active Deal")
	require.True(t, ok)
	assert.Equal(t, PoolActiveDeal, p)

	_, ok = ParsePool("archive")
	assert.False(t, ok)

	assert.True(t, PoolDormant.IsLive())
	assert.False(t, PoolConverted.IsLive())
}

func TestOpportunityContactHelpers(t *testing.T) {
	opp := &Opportunity{
		ContactMethods: []ContactMethod{
			{Type: ChannelLinkedIn, Value: "in/ada"},
			{Type: ChannelWhatsApp, Value: "+44 7700 900000"},
			{Type: ChannelEmail, Value: " ada@example.com "},
		},
	}

	assert.Equal(t, "ada@example.com", opp.PrimaryEmail())
	assert.Equal(t, "+44 7700 900000", opp.PrimaryPhone())
}

func TestOpportunityCloneIsDeep(t *testing.T) {
	value := int64(5000)
	opp := &Opportunity{
		ID:         "o1",
		Value:      &value,
		Tags:       []string{"a"},
		Activities: []Activity{{ID: "1", Type: ActivityNote}},
	}

	c := opp.Clone()
	c.Activities = append(c.Activities, Activity{ID: "2"})
	c.Tags[0] = "b"
	*c.Value = 1

	assert.Len(t, opp.Activities, 1)
	assert.Equal(t, "a", opp.Tags[0])
	assert.Equal(t, int64(5000), *opp.Value)
}

func TestNewestFirstKeepsStorageOrder(t *testing.T) {
	base := time.Now()
	stored := []Activity{
		{ID: "1", Timestamp: base},
		{ID: "2", Timestamp: base.Add(time.Minute)},
	}

	display := NewestFirst(stored)
	assert.Equal(t, "2", display[0].ID)
	assert.Equal(t, "1", stored[0].ID)
}

func TestWorkUnitTransitionStatus(t *testing.T) {
	now := time.Now().UTC()
	u := &WorkUnit{Status: UnitStatusTodo}

	require.NoError(t, u.TransitionStatus(UnitStatusDone, now))
	require.NotNil(t, u.CompletedAt)
	assert.True(t, u.IsDone())

	require.NoError(t, u.TransitionStatus(UnitStatusInProgress, now))
	assert.Nil(t, u.CompletedAt)

	assert.Error(t, u.TransitionStatus("archived", now))
}
