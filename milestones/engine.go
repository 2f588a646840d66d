// ABOUTME: Milestone trigger engine: counts completed work and raises billing alerts
// ABOUTME: Count, milestone changes and alerts commit together in one retried transaction
package milestones

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// AlertWriter stages billing alerts in the engine's transaction.
type AlertWriter interface {
	CreateTx(tx *store.Txn, alert *models.BillingAlert) error
}

// completion is the per-unit idempotency record: a unit is counted toward a
// package at most once, however many times its completion is reported.
type completion struct {
	UnitID      string    `json:"unit_id"`
	PackageID   string    `json:"package_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Engine evaluates package milestones as work units complete.
type Engine struct {
	store  *store.Store
	alerts AlertWriter
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Engine)

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger.With().Str("component", "milestones").Logger()
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(s *store.Store, alerts AlertWriter, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		alerts: alerts,
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ReportUnitCompleted records one finished unit of the line item and returns
// the alerts raised by milestones it crossed.
func (e *Engine) ReportUnitCompleted(ctx context.Context, packageID string, lineItemIndex int) ([]models.BillingAlert, error) {
	var alerts []models.BillingAlert
	unitID := uuid.New().String()

	err := e.store.Update(ctx, func(tx *store.Txn) error {
		alerts = nil
		pkg, err := loadPackage(tx, packageID)
		if err != nil {
			return err
		}
		if err := checkLineItem(pkg, lineItemIndex); err != nil {
			return err
		}

		now := e.now()
		li := pkg.LineItems[lineItemIndex]
		unit := &models.WorkUnit{
			ID:            unitID,
			ClientID:      pkg.ClientID,
			PackageID:     pkg.ID,
			LineItemIndex: lineItemIndex,
			Title:         fmt.Sprintf("%s #%d", li.ServiceLabel, li.CompletedCount+1),
			Status:        models.UnitStatusTodo,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.Create(store.WorkUnitPartition, unit.ID, unit); err != nil {
			return err
		}

		alerts, err = e.completeLinked(tx, pkg, unit, now)
		return err
	})
	if err != nil {
		e.logger.Error().Err(err).Str("package", packageID).Int("line_item", lineItemIndex).Msg("completion batch failed")
		return nil, asEngineError(err, packageID, unitID)
	}

	e.logAlerts(packageID, alerts)
	return alerts, nil
}

// CompleteUnit marks an existing unit done. Package-linked units go through
// milestone evaluation; a standalone unit raises one received full-payment
// alert. Completing a unit that was already completed raises nothing.
func (e *Engine) CompleteUnit(ctx context.Context, unitID string) ([]models.BillingAlert, error) {
	var alerts []models.BillingAlert
	var packageID string

	err := e.store.Update(ctx, func(tx *store.Txn) error {
		alerts = nil
		var unit models.WorkUnit
		if err := tx.Get(store.WorkUnitPartition, unitID, &unit); err != nil {
			if store.IsNotFound(err) {
				return &EngineError{Code: CodeNotFound, UnitID: unitID, Message: "work unit not found"}
			}
			return err
		}
		packageID = unit.PackageID
		now := e.now()

		if unit.IsStandalone() {
			alert, err := e.completeStandalone(tx, &unit, now)
			if alert != nil {
				alerts = []models.BillingAlert{*alert}
			}
			return err
		}

		pkg, err := loadPackage(tx, unit.PackageID)
		if err != nil {
			return err
		}
		if err := checkLineItem(pkg, unit.LineItemIndex); err != nil {
			return err
		}
		alerts, err = e.completeLinked(tx, pkg, &unit, now)
		return err
	})
	if err != nil {
		e.logger.Error().Err(err).Str("unit", unitID).Msg("completion batch failed")
		return nil, asEngineError(err, packageID, unitID)
	}

	e.logAlerts(packageID, alerts)
	return alerts, nil
}

// markCompleted claims the unit's idempotency record and marks it done. It
// returns false when the unit was already counted.
func (e *Engine) markCompleted(tx *store.Txn, unit *models.WorkUnit, now time.Time) (bool, error) {
	claimed, err := tx.Exists(store.CompletionPartition, unit.ID)
	if err != nil {
		return false, err
	}
	if claimed {
		return false, nil
	}
	if err := tx.Create(store.CompletionPartition, unit.ID, completion{
		UnitID:      unit.ID,
		PackageID:   unit.PackageID,
		CompletedAt: now,
	}); err != nil {
		return false, err
	}

	if !unit.IsDone() {
		if err := unit.TransitionStatus(models.UnitStatusDone, now); err != nil {
			return false, err
		}
	}
	if err := tx.Put(store.WorkUnitPartition, unit.ID, unit); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) completeLinked(tx *store.Txn, pkg *models.Package, unit *models.WorkUnit, now time.Time) ([]models.BillingAlert, error) {
	first, err := e.markCompleted(tx, unit, now)
	if err != nil || !first {
		return nil, err
	}

	// authoritative count: every done unit linked to the package, read now
	done, err := store.ScanAll(tx, store.WorkUnitPartition, func(u *models.WorkUnit) bool {
		return u.PackageID == pkg.ID && u.IsDone()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to count completed units: %w", err)
	}

	// a backend whose reads lag its own writes may not show the triggering
	// unit yet; count it once. More than one invisible unit still undercounts.
	if !containsUnit(done, unit.ID) {
		done = append(done, *unit)
	}
	count := len(done)

	// line item counters are derived from the same read
	for i := range pkg.LineItems {
		pkg.LineItems[i].CompletedCount = 0
	}
	for _, u := range done {
		if u.LineItemIndex >= 0 && u.LineItemIndex < len(pkg.LineItems) {
			pkg.LineItems[u.LineItemIndex].CompletedCount++
		}
	}

	alerts := e.evaluate(pkg, count, now)
	for i := range alerts {
		if err := e.alerts.CreateTx(tx, &alerts[i]); err != nil {
			return nil, fmt.Errorf("failed to stage alert for %q: %w", alerts[i].MilestoneLabel, err)
		}
	}

	pkg.UpdatedAt = now
	if err := tx.Put(store.PackagePartition, pkg.ID, pkg); err != nil {
		return nil, err
	}
	return alerts, nil
}

// evaluate moves every upcoming milestone whose threshold count reaches to
// due, lowest threshold first. Due and received milestones are never touched.
func (e *Engine) evaluate(pkg *models.Package, count int, now time.Time) []models.BillingAlert {
	order := make([]int, len(pkg.Milestones))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pkg.Milestones[order[a]].TriggerAtQuantity < pkg.Milestones[order[b]].TriggerAtQuantity
	})

	var alerts []models.BillingAlert
	for _, i := range order {
		m := &pkg.Milestones[i]
		if m.Status != models.MilestoneUpcoming || count < m.TriggerAtQuantity {
			continue
		}

		alertID := ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
		dueAt := now
		m.Status = models.MilestoneDue
		m.AlertID = alertID
		m.DueAt = &dueAt

		alerts = append(alerts, models.BillingAlert{
			ID:             alertID,
			ClientID:       pkg.ClientID,
			PackageID:      pkg.ID,
			MilestoneLabel: m.Label,
			Amount:         m.AmountDue,
			Status:         models.AlertDue,
			TriggeredAt:    now,
		})
	}
	return alerts
}

func (e *Engine) completeStandalone(tx *store.Txn, unit *models.WorkUnit, now time.Time) (*models.BillingAlert, error) {
	first, err := e.markCompleted(tx, unit, now)
	if err != nil || !first {
		return nil, err
	}

	resolved := now
	alert := &models.BillingAlert{
		ClientID:       unit.ClientID,
		UnitID:         unit.ID,
		MilestoneLabel: models.FullPaymentLabel,
		Amount:         unit.Amount,
		Status:         models.AlertReceived,
		TriggeredAt:    now,
		ResolvedAt:     &resolved,
	}
	if err := e.alerts.CreateTx(tx, alert); err != nil {
		return nil, fmt.Errorf("failed to stage full payment alert: %w", err)
	}
	return alert, nil
}

func containsUnit(units []models.WorkUnit, id string) bool {
	for _, u := range units {
		if u.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) logAlerts(packageID string, alerts []models.BillingAlert) {
	for _, a := range alerts {
		e.logger.Info().
			Str("package", packageID).
			Str("alert", a.ID).
			Str("milestone", a.MilestoneLabel).
			Int64("amount", a.Amount).
			Msg("billing alert raised")
	}
}
