// ABOUTME: Store-backed customer emitter for Closed Won conversions
// ABOUTME: Customer ids derive from the source opportunity, so retries never duplicate a customer
package customers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/pipeline"
	"github.com/harperreed/agencyops/store"
)

var _ pipeline.CustomerEmitter = (*Emitter)(nil)

// customerNamespace scopes the deterministic customer ids.
var customerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("agencyops:customer"))

// Emitter writes customers to the customer partition.
type Emitter struct {
	store *store.Store
	now   func() time.Time
}

func NewEmitter(s *store.Store) *Emitter {
	return &Emitter{store: s, now: func() time.Time { return time.Now().UTC() }}
}

// IDFor returns the customer id a source opportunity converts to.
func IDFor(sourceOpportunityID string) string {
	return uuid.NewSHA1(customerNamespace, []byte(sourceOpportunityID)).String()
}

// CreateCustomer stores the customer, or returns the existing id if this
// opportunity was converted before.
func (e *Emitter) CreateCustomer(ctx context.Context, f pipeline.CustomerFields) (string, error) {
	if strings.TrimSpace(f.SourceOpportunityID) == "" {
		return "", fmt.Errorf("source opportunity id is required")
	}
	if strings.TrimSpace(f.DisplayName) == "" {
		return "", fmt.Errorf("display name is required")
	}

	id := IDFor(f.SourceOpportunityID)
	err := e.store.Update(ctx, func(tx *store.Txn) error {
		exists, err := tx.Exists(store.CustomerPartition, id)
		if err != nil || exists {
			return err
		}
		return tx.Create(store.CustomerPartition, id, &models.Customer{
			ID:                  id,
			SourceOpportunityID: f.SourceOpportunityID,
			DisplayName:         f.DisplayName,
			Organization:        f.Organization,
			Email:               f.Email,
			Phone:               f.Phone,
			ContactMethods:      f.ContactMethods,
			Value:               f.Value,
			ExternalContactID:   f.ExternalContactID,
			Activities:          f.Activities,
			CreatedAt:           e.now(),
		})
	})
	if err != nil {
		return "", fmt.Errorf("failed to create customer: %w", err)
	}
	return id, nil
}

// Get loads a customer by id.
func (e *Emitter) Get(ctx context.Context, id string) (*models.Customer, error) {
	var c models.Customer
	if err := e.store.Get(ctx, store.CustomerPartition, id, &c); err != nil {
		return nil, fmt.Errorf("failed to load customer %s: %w", id, err)
	}
	return &c, nil
}

// List returns every customer.
func (e *Emitter) List(ctx context.Context) ([]models.Customer, error) {
	return store.Query[models.Customer](ctx, e.store, store.CustomerPartition, nil)
}
