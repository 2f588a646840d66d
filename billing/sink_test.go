// ABOUTME: Tests for the billing alert sink
// ABOUTME: Verifies received bookkeeping on packages, undo and filtering
package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/agencyops/charm"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupSink(t *testing.T) (*Sink, *store.Store) {
	t.Helper()
	client, cleanup := charm.NewTestClient(t)
	t.Cleanup(cleanup)
	s := store.New(client)
	return NewSink(s, zerolog.Nop()), s
}

// seedDueMilestone stores a package whose only milestone is due with a matching alert.
func seedDueMilestone(t *testing.T, sink *Sink, s *store.Store) (*models.Package, *models.BillingAlert) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	alert := &models.BillingAlert{
		ID:             NewAlertID(now),
		ClientID:       "client-1",
		PackageID:      "pkg-1",
		MilestoneLabel: "Deposit",
		Amount:         2500,
		TriggeredAt:    now,
	}
	pkg := &models.Package{
		ID:        "pkg-1",
		ClientID:  "client-1",
		LineItems: []models.LineItem{{ServiceLabel: "Post", TargetQuantity: 4}},
		Milestones: []models.Milestone{{
			Label:             "Deposit",
			TriggerAtQuantity: 2,
			Status:            models.MilestoneDue,
			AmountDue:         2500,
			AlertID:           alert.ID,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.Update(ctx, func(tx *store.Txn) error {
		if err := tx.Create(store.PackagePartition, pkg.ID, pkg); err != nil {
			return err
		}
		return sink.CreateTx(tx, alert)
	})
	require.NoError(t, err)
	return pkg, alert
}

func loadPackage(t *testing.T, s *store.Store, id string) models.Package {
	t.Helper()
	var pkg models.Package
	require.NoError(t, s.Get(context.Background(), store.PackagePartition, id, &pkg))
	return pkg
}

func TestCreateDefaults(t *testing.T) {
	sink, _ := setupSink(t)
	ctx := context.Background()

	alert := &models.BillingAlert{ClientID: "client-1", MilestoneLabel: "Retainer", Amount: 100}
	require.NoError(t, sink.Create(ctx, alert))
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, models.AlertDue, alert.Status)
	assert.False(t, alert.TriggeredAt.IsZero())

	got, err := sink.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "Retainer", got.MilestoneLabel)

	bad := &models.BillingAlert{ClientID: "client-1", Status: "paid"}
	assert.ErrorIs(t, sink.Create(ctx, bad), ErrInvalidStatus)
}

func TestMarkReceivedAndUndo(t *testing.T) {
	sink, s := setupSink(t)
	ctx := context.Background()
	pkg, alert := seedDueMilestone(t, sink, s)

	received, err := sink.MarkReceived(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertReceived, received.Status)
	require.NotNil(t, received.ResolvedAt)

	after := loadPackage(t, s, pkg.ID)
	assert.Equal(t, int64(2500), after.ReceivedAmount)
	assert.Equal(t, models.MilestoneReceived, after.Milestones[0].Status)

	// marking twice does not double count
	_, err = sink.MarkReceived(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2500), loadPackage(t, s, pkg.ID).ReceivedAmount)

	undone, err := sink.Undo(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertDue, undone.Status)
	assert.Nil(t, undone.ResolvedAt)

	reverted := loadPackage(t, s, pkg.ID)
	assert.Equal(t, int64(0), reverted.ReceivedAmount)
	assert.Equal(t, models.MilestoneDue, reverted.Milestones[0].Status)
}

func TestUndoRequiresReceived(t *testing.T) {
	sink, s := setupSink(t)
	_, alert := seedDueMilestone(t, sink, s)

	_, err := sink.Undo(context.Background(), alert.ID)
	assert.ErrorIs(t, err, ErrNotReceived)

	_, err = sink.Undo(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestRacingUndosReverseOnce(t *testing.T) {
	client, cleanup := charm.NewTestClient(t)
	t.Cleanup(cleanup)
	s := store.New(client, store.WithMaxRetries(20), store.WithBackoff(time.Millisecond))
	sink := NewSink(s, zerolog.Nop())
	ctx := context.Background()

	pkg, alert := seedDueMilestone(t, sink, s)
	_, err := sink.MarkReceived(ctx, alert.ID)
	require.NoError(t, err)

	const racers = 4
	errs := make([]error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = sink.Undo(ctx, alert.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotReceived)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(0), loadPackage(t, s, pkg.ID).ReceivedAmount)
}

func TestUpdateStatus(t *testing.T) {
	sink, s := setupSink(t)
	ctx := context.Background()
	pkg, alert := seedDueMilestone(t, sink, s)

	_, err := sink.UpdateStatus(ctx, alert.ID, "paid")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	waiting, err := sink.UpdateStatus(ctx, alert.ID, models.AlertWaiting)
	require.NoError(t, err)
	assert.Equal(t, models.AlertWaiting, waiting.Status)
	assert.Equal(t, int64(0), loadPackage(t, s, pkg.ID).ReceivedAmount)

	_, err = sink.UpdateStatus(ctx, alert.ID, models.AlertReceived)
	require.NoError(t, err)
	_, err = sink.UpdateStatus(ctx, alert.ID, models.AlertPending)
	require.NoError(t, err)
	assert.Equal(t, int64(0), loadPackage(t, s, pkg.ID).ReceivedAmount)

	_, err = sink.UpdateStatus(ctx, "missing", models.AlertDue)
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestStandaloneAlertSkipsPackage(t *testing.T) {
	sink, _ := setupSink(t)
	ctx := context.Background()

	alert := &models.BillingAlert{ClientID: "client-2", UnitID: "unit-1", MilestoneLabel: models.FullPaymentLabel, Amount: 900}
	require.NoError(t, sink.Create(ctx, alert))

	got, err := sink.MarkReceived(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AlertReceived, got.Status)
}

func TestListFiltersNewestFirst(t *testing.T) {
	sink, _ := setupSink(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, a := range []models.BillingAlert{
		{ClientID: "a", PackageID: "p1", MilestoneLabel: "one", Status: models.AlertDue},
		{ClientID: "a", PackageID: "p2", MilestoneLabel: "two", Status: models.AlertReceived},
		{ClientID: "b", PackageID: "p3", MilestoneLabel: "three", Status: models.AlertDue},
	} {
		a := a
		a.TriggeredAt = base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, sink.Create(ctx, &a))
	}

	all, err := sink.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "three", all[0].MilestoneLabel)
	assert.Equal(t, "one", all[2].MilestoneLabel)

	byClient, err := sink.List(ctx, Filter{ClientID: "a"})
	require.NoError(t, err)
	assert.Len(t, byClient, 2)

	due, err := sink.List(ctx, Filter{ClientID: "a", Status: models.AlertDue})
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "p1", due[0].PackageID)

	byPackage, err := sink.List(ctx, Filter{PackageID: "p3"})
	require.NoError(t, err)
	assert.Len(t, byPackage, 1)
}
