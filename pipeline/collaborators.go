// ABOUTME: Interfaces for the machine's external collaborators
// ABOUTME: Contact sync is best-effort; the customer emitter must succeed for Closed Won
package pipeline

import (
	"context"

	"github.com/harperreed/agencyops/models"
)

// ContactFields is what an external address book receives.
type ContactFields struct {
	Name         string
	Email        string
	Phone        string
	Organization string
	Role         string
	// ExternalID is set when the contact was synced before, so the upsert can
	// update in place.
	ExternalID string
}

// ContactSyncer upserts a contact into a third-party address book using an
// opaque access token and returns the provider's contact id.
type ContactSyncer interface {
	UpsertContact(ctx context.Context, token string, fields ContactFields) (string, error)
}

// CustomerFields is the payload of a conversion.
type CustomerFields struct {
	SourceOpportunityID string
	DisplayName         string
	Organization        string
	Email               string
	Phone               string
	ContactMethods      []models.ContactMethod
	Value               *int64
	ExternalContactID   string
	Activities          []models.Activity
}

// CustomerEmitter creates the durable customer record. It must be idempotent
// per SourceOpportunityID so a retried conversion returns the same id.
type CustomerEmitter interface {
	CreateCustomer(ctx context.Context, fields CustomerFields) (string, error)
}

func contactFieldsFor(o *models.Opportunity) ContactFields {
	return ContactFields{
		Name:         o.DisplayName,
		Email:        o.PrimaryEmail(),
		Phone:        o.PrimaryPhone(),
		Organization: o.Organization,
		Role:         o.Role,
		ExternalID:   o.ExternalContactID,
	}
}
