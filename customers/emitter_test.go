// ABOUTME: Tests for the store-backed customer emitter
// ABOUTME: Includes an end-to-end Closed Won conversion through the stage machine
package customers

import (
	"context"
	"testing"

	"github.com/harperreed/agencyops/charm"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupEmitter(t *testing.T) (*Emitter, *store.Store) {
	t.Helper()
	client, cleanup := charm.NewTestClient(t)
	t.Cleanup(cleanup)
	s := store.New(client)
	return NewEmitter(s), s
}

func TestCreateCustomerIsIdempotent(t *testing.T) {
	e, _ := setupEmitter(t)
	ctx := context.Background()

	fields := pipeline.CustomerFields{
		SourceOpportunityID: "opp-1",
		DisplayName:         "Grace Hopper",
		Email:               "grace@example.com",
	}

	first, err := e.CreateCustomer(ctx, fields)
	require.NoError(t, err)
	second, err := e.CreateCustomer(ctx, fields)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, IDFor("opp-1"), first)

	all, err := e.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	c, err := e.Get(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "opp-1", c.SourceOpportunityID)
	assert.Equal(t, "grace@example.com", c.Email)
}

func TestCreateCustomerRequiresSource(t *testing.T) {
	e, _ := setupEmitter(t)
	_, err := e.CreateCustomer(context.Background(), pipeline.CustomerFields{DisplayName: "x"})
	assert.Error(t, err)
}

func TestClosedWonCreatesCustomer(t *testing.T) {
	e, s := setupEmitter(t)
	m := pipeline.NewMachine(s, e)
	ctx := context.Background()

	value := int64(250000)
	opp, err := m.Create(ctx, pipeline.NewOpportunity{
		DisplayName:    "Katherine Johnson",
		Organization:   "Orbital",
		ContactMethods: []models.ContactMethod{{Type: models.ChannelPhone, Value: "+1 555 0100"}},
		Value:          &value,
	})
	require.NoError(t, err)
	_, err = m.Transition(ctx, opp.ID, pipeline.Change{Outreach: models.OutreachInterested})
	require.NoError(t, err)

	converted, err := m.Transition(ctx, opp.ID, pipeline.Change{Stage: models.StageClosedWon})
	require.NoError(t, err)
	assert.Equal(t, IDFor(opp.ID), converted.CustomerID)

	c, err := e.Get(ctx, converted.CustomerID)
	require.NoError(t, err)
	assert.Equal(t, "Katherine Johnson", c.DisplayName)
	assert.Equal(t, "+1 555 0100", c.Phone)
	require.NotNil(t, c.Value)
	assert.Equal(t, value, *c.Value)
	require.NotEmpty(t, c.Activities)
	assert.Equal(t, models.ActivityConverted, c.Activities[len(c.Activities)-1].Type)

	_, err = m.Get(ctx, opp.ID)
	assert.True(t, pipeline.IsNotFound(err))
}
