// ABOUTME: Package and work unit creation for the milestone engine
// ABOUTME: Validates line items and milestone thresholds with criterio
package milestones

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/hay-kot/criterio"
)

type NewLineItem struct {
	ServiceLabel   string `json:"service_label"`
	TargetQuantity int    `json:"target_quantity"`
}

type NewMilestone struct {
	Label             string `json:"label"`
	TriggerAtQuantity int    `json:"trigger_at_quantity"`
	AmountDue         int64  `json:"amount_due"`
}

// NewPackage describes a package to create.
type NewPackage struct {
	ClientID   string         `json:"client_id"`
	Name       string         `json:"name,omitempty"`
	LineItems  []NewLineItem  `json:"line_items"`
	Milestones []NewMilestone `json:"milestones"`
}

// Validate checks ids, quantities and that milestone labels are unique.
func (n NewPackage) Validate() error {
	var errs criterio.FieldErrorsBuilder

	if strings.TrimSpace(n.ClientID) == "" {
		errs = errs.Append("client_id", fmt.Errorf("client id is required"))
	}
	if len(n.LineItems) == 0 {
		errs = errs.Append("line_items", fmt.Errorf("at least one line item is required"))
	}
	for i, li := range n.LineItems {
		field := fmt.Sprintf("line_items[%d]", i)
		if strings.TrimSpace(li.ServiceLabel) == "" {
			errs = errs.Append(field+".service_label", fmt.Errorf("service label is required"))
		}
		if li.TargetQuantity <= 0 {
			errs = errs.Append(field+".target_quantity", fmt.Errorf("must be positive, got %d", li.TargetQuantity))
		}
	}

	seen := make(map[string]bool)
	for i, m := range n.Milestones {
		field := fmt.Sprintf("milestones[%d]", i)
		label := strings.TrimSpace(m.Label)
		switch {
		case label == "":
			errs = errs.Append(field+".label", fmt.Errorf("label is required"))
		case seen[label]:
			errs = errs.Append(field+".label", fmt.Errorf("duplicate label %q", label))
		}
		seen[label] = true
		if m.TriggerAtQuantity <= 0 {
			errs = errs.Append(field+".trigger_at_quantity", fmt.Errorf("must be positive, got %d", m.TriggerAtQuantity))
		}
		if m.AmountDue < 0 {
			errs = errs.Append(field+".amount_due", fmt.Errorf("cannot be negative"))
		}
	}

	return errs.ToError()
}

// CreatePackage stores a package with every milestone upcoming, ordered by threshold.
func (e *Engine) CreatePackage(ctx context.Context, in NewPackage) (*models.Package, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := e.now()
	pkg := &models.Package{
		ID:        uuid.New().String(),
		ClientID:  strings.TrimSpace(in.ClientID),
		Name:      strings.TrimSpace(in.Name),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, li := range in.LineItems {
		pkg.LineItems = append(pkg.LineItems, models.LineItem{
			ServiceLabel:   strings.TrimSpace(li.ServiceLabel),
			TargetQuantity: li.TargetQuantity,
		})
	}
	for _, m := range in.Milestones {
		pkg.Milestones = append(pkg.Milestones, models.Milestone{
			Label:             strings.TrimSpace(m.Label),
			TriggerAtQuantity: m.TriggerAtQuantity,
			Status:            models.MilestoneUpcoming,
			AmountDue:         m.AmountDue,
		})
	}
	sort.SliceStable(pkg.Milestones, func(i, j int) bool {
		return pkg.Milestones[i].TriggerAtQuantity < pkg.Milestones[j].TriggerAtQuantity
	})

	if err := e.store.Create(ctx, store.PackagePartition, pkg.ID, pkg); err != nil {
		return nil, &EngineError{Code: CodePersistenceFailure, PackageID: pkg.ID, Message: "package not stored", Err: err}
	}
	e.logger.Info().Str("package", pkg.ID).Str("client", pkg.ClientID).Msg("package created")
	return pkg, nil
}

// GetPackage loads a package.
func (e *Engine) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	var pkg models.Package
	err := e.store.Get(ctx, store.PackagePartition, id, &pkg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &EngineError{Code: CodeNotFound, PackageID: id, Message: "package not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load package: %w", err)
	}
	return &pkg, nil
}

// ListPackages returns the packages of a client, or all packages when clientID is empty.
func (e *Engine) ListPackages(ctx context.Context, clientID string) ([]models.Package, error) {
	return store.Query(ctx, e.store, store.PackagePartition, func(p *models.Package) bool {
		return clientID == "" || p.ClientID == clientID
	})
}

// NewWorkUnit describes a unit of work to track.
type NewWorkUnit struct {
	ClientID      string `json:"client_id"`
	PackageID     string `json:"package_id,omitempty"`
	LineItemIndex int    `json:"line_item_index"`
	Title         string `json:"title"`
	Amount        int64  `json:"amount,omitempty"`
}

// AddUnit stores a todo unit. Package-linked units must name an existing line item.
func (e *Engine) AddUnit(ctx context.Context, in NewWorkUnit) (*models.WorkUnit, error) {
	err := criterio.ValidateStruct(
		criterio.Run("title", in.Title, func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("title is required")
			}
			return nil
		}),
		criterio.Run("amount", in.Amount, func(a int64) error {
			if a < 0 {
				return fmt.Errorf("cannot be negative")
			}
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	now := e.now()
	unit := &models.WorkUnit{
		ID:            uuid.New().String(),
		ClientID:      strings.TrimSpace(in.ClientID),
		PackageID:     strings.TrimSpace(in.PackageID),
		LineItemIndex: in.LineItemIndex,
		Title:         strings.TrimSpace(in.Title),
		Status:        models.UnitStatusTodo,
		Amount:        in.Amount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = e.store.Update(ctx, func(tx *store.Txn) error {
		if unit.PackageID != "" {
			pkg, err := loadPackage(tx, unit.PackageID)
			if err != nil {
				return err
			}
			if err := checkLineItem(pkg, unit.LineItemIndex); err != nil {
				return err
			}
			if unit.ClientID == "" {
				unit.ClientID = pkg.ClientID
			}
		}
		return tx.Create(store.WorkUnitPartition, unit.ID, unit)
	})
	if err != nil {
		return nil, asEngineError(err, unit.PackageID, unit.ID)
	}
	return unit, nil
}

// ListUnits returns the units of a package, or standalone units when packageID is empty.
func (e *Engine) ListUnits(ctx context.Context, packageID string) ([]models.WorkUnit, error) {
	return store.Query(ctx, e.store, store.WorkUnitPartition, func(u *models.WorkUnit) bool {
		return u.PackageID == packageID
	})
}

func loadPackage(tx *store.Txn, id string) (*models.Package, error) {
	var pkg models.Package
	err := tx.Get(store.PackagePartition, id, &pkg)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &EngineError{Code: CodeNotFound, PackageID: id, Message: "package not found"}
	}
	if err != nil {
		return nil, err
	}
	return &pkg, nil
}

func checkLineItem(pkg *models.Package, idx int) error {
	if idx < 0 || idx >= len(pkg.LineItems) {
		return &EngineError{
			Code:      CodeInvalidLineItem,
			PackageID: pkg.ID,
			Message:   fmt.Sprintf("line item %d out of range (package has %d)", idx, len(pkg.LineItems)),
		}
	}
	return nil
}

// asEngineError passes EngineErrors through and wraps anything else as a
// persistence failure.
func asEngineError(err error, packageID, unitID string) error {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee
	}
	return &EngineError{Code: CodePersistenceFailure, PackageID: packageID, UnitID: unitID, Message: "batch not stored", Err: err}
}
