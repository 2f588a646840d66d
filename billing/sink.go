// ABOUTME: BillingAlert sink: create, status updates, mark received and undo
// ABOUTME: Received amounts on the package move in the same transaction as the alert
package billing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrAlertNotFound = errors.New("billing alert not found")
	ErrInvalidStatus = errors.New("invalid alert status")
	// ErrNotReceived is returned when undoing an alert that was never received.
	ErrNotReceived = errors.New("alert is not received")
)

// Sink owns billing alert records.
type Sink struct {
	store  *store.Store
	logger zerolog.Logger
	now    func() time.Time
}

func NewSink(s *store.Store, logger zerolog.Logger) *Sink {
	return &Sink{
		store:  s,
		logger: logger.With().Str("component", "billing").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// NewAlertID returns a time-ordered alert id.
func NewAlertID(now time.Time) string {
	return ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
}

// CreateTx writes a new alert inside an existing transaction.
func (s *Sink) CreateTx(tx *store.Txn, alert *models.BillingAlert) error {
	if alert.ID == "" {
		alert.ID = NewAlertID(s.now())
	}
	if alert.Status == "" {
		alert.Status = models.AlertDue
	}
	if !alert.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, alert.Status)
	}
	if alert.TriggeredAt.IsZero() {
		alert.TriggeredAt = s.now()
	}
	return tx.Create(store.AlertPartition, alert.ID, alert)
}

// Create stores a new alert.
func (s *Sink) Create(ctx context.Context, alert *models.BillingAlert) error {
	if err := s.store.Update(ctx, func(tx *store.Txn) error {
		return s.CreateTx(tx, alert)
	}); err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

// Get loads one alert.
func (s *Sink) Get(ctx context.Context, id string) (*models.BillingAlert, error) {
	var a models.BillingAlert
	err := s.store.Get(ctx, store.AlertPartition, id, &a)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load alert: %w", err)
	}
	return &a, nil
}

// UpdateStatus sets the alert status. Moving into or out of received goes
// through the same bookkeeping as MarkReceived and Undo.
func (s *Sink) UpdateStatus(ctx context.Context, id string, status models.AlertStatus) (*models.BillingAlert, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.setStatus(ctx, id, status, nil)
}

// setStatus applies a status change in one transaction. check, when set,
// sees the alert as stored in that transaction.
func (s *Sink) setStatus(ctx context.Context, id string, status models.AlertStatus, check func(*models.BillingAlert) error) (*models.BillingAlert, error) {
	var out *models.BillingAlert
	err := s.store.Update(ctx, func(tx *store.Txn) error {
		alert, err := loadAlert(tx, id)
		if err != nil {
			return err
		}
		if check != nil {
			if err := check(alert); err != nil {
				return err
			}
		}
		if alert.Status == status {
			out = alert
			return nil
		}

		now := s.now()
		switch {
		case status == models.AlertReceived:
			if err := adjustPackage(tx, alert, alert.Amount, models.MilestoneReceived, now); err != nil {
				return err
			}
			alert.ResolvedAt = &now
		case alert.Status == models.AlertReceived:
			if err := adjustPackage(tx, alert, -alert.Amount, models.MilestoneDue, now); err != nil {
				return err
			}
			alert.ResolvedAt = nil
		}
		alert.Status = status
		out = alert
		return tx.Put(store.AlertPartition, alert.ID, alert)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Str("alert", id).Str("status", string(status)).Msg("alert status updated")
	return out, nil
}

// MarkReceived records payment for the alert.
func (s *Sink) MarkReceived(ctx context.Context, id string) (*models.BillingAlert, error) {
	return s.UpdateStatus(ctx, id, models.AlertReceived)
}

// Undo reverts a received alert to due and reverses the package bookkeeping.
func (s *Sink) Undo(ctx context.Context, id string) (*models.BillingAlert, error) {
	return s.setStatus(ctx, id, models.AlertDue, func(alert *models.BillingAlert) error {
		if alert.Status != models.AlertReceived {
			return fmt.Errorf("%w: %s is %s", ErrNotReceived, id, alert.Status)
		}
		return nil
	})
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	ClientID  string
	PackageID string
	Status    models.AlertStatus
}

func (f Filter) match(a *models.BillingAlert) bool {
	if f.ClientID != "" && a.ClientID != f.ClientID {
		return false
	}
	if f.PackageID != "" && a.PackageID != f.PackageID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

// List returns matching alerts, newest first.
func (s *Sink) List(ctx context.Context, f Filter) ([]models.BillingAlert, error) {
	alerts, err := store.Query(ctx, s.store, store.AlertPartition, f.match)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].TriggeredAt.After(alerts[j].TriggeredAt)
	})
	return alerts, nil
}

func loadAlert(tx *store.Txn, id string) (*models.BillingAlert, error) {
	var a models.BillingAlert
	err := tx.Get(store.AlertPartition, id, &a)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAlertNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// adjustPackage moves the package's received amount by delta and sets the
// milestone that raised the alert. Standalone alerts have no package.
func adjustPackage(tx *store.Txn, alert *models.BillingAlert, delta int64, status models.MilestoneStatus, now time.Time) error {
	if alert.PackageID == "" {
		return nil
	}
	var pkg models.Package
	if err := tx.Get(store.PackagePartition, alert.PackageID, &pkg); err != nil {
		return fmt.Errorf("failed to load package %s: %w", alert.PackageID, err)
	}

	pkg.ReceivedAmount += delta
	if pkg.ReceivedAmount < 0 {
		pkg.ReceivedAmount = 0
	}
	for i := range pkg.Milestones {
		if pkg.Milestones[i].AlertID == alert.ID {
			pkg.Milestones[i].Status = status
		}
	}
	pkg.UpdatedAt = now
	return tx.Put(store.PackagePartition, pkg.ID, &pkg)
}
