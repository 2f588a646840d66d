// ABOUTME: Closed Won conversion saga
// ABOUTME: Best-effort contact sync, then must-succeed customer creation, then source delete
package pipeline

import (
	"context"
	"errors"

	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
)

// convert turns the planned record into a customer. The source record is
// deleted only after the emitter succeeds; until then it stays in its pool.
func (m *Machine) convert(ctx context.Context, pl *plan, token string) (*models.Opportunity, error) {
	opp := pl.next

	// step 1: best-effort sync, recorded but never fatal
	if m.syncer != nil {
		externalID, err := m.upsert(ctx, opp, token)
		if err != nil {
			m.logger.Warn().Err(err).Str("opportunity", opp.ID).Msg("contact sync failed during conversion")
		} else if externalID != "" {
			opp.ExternalContactID = externalID
		}
		opp.Activities = appendActivity(opp.Activities, syncActivity(m.now(), externalID, err))
	}

	opp.Activities = appendActivity(opp.Activities, newActivity(m.now(), models.ActivityConverted,
		"Closed Won: converted to customer", pl.from.Label(), models.PoolConverted.Label()))

	// step 2: must succeed
	customerID, err := m.emitter.CreateCustomer(ctx, CustomerFields{
		SourceOpportunityID: opp.ID,
		DisplayName:         opp.DisplayName,
		Organization:        opp.Organization,
		Email:               opp.PrimaryEmail(),
		Phone:               opp.PrimaryPhone(),
		ContactMethods:      opp.ContactMethods,
		Value:               opp.Value,
		ExternalContactID:   opp.ExternalContactID,
		Activities:          opp.Activities,
	})
	if err != nil {
		m.logger.Error().Err(err).Str("opportunity", opp.ID).Msg("customer emitter failed; opportunity retained")
		m.releaseClaim(ctx, pl.claimed)
		return nil, &TransitionError{
			Code:          CodeConversionFailure,
			OpportunityID: opp.ID,
			From:          pl.from,
			Message:       "customer could not be created",
			Err:           err,
		}
	}
	opp.CustomerID = customerID

	// step 3: destructive delete, gated on step 2
	err = m.store.Update(ctx, func(tx *store.Txn) error {
		cur, err := locate(tx, opp.ID)
		if err != nil {
			return err
		}
		if !holdsClaim(cur, pl.claimed) {
			return errClaimLost
		}
		return tx.Delete(store.OpportunityPartition(cur.Pool), cur.ID)
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) && te.Code == CodeNotFound {
			// a concurrent conversion already removed it
			return opp, nil
		}
		if errors.Is(err, errClaimLost) {
			m.logger.Error().
				Str("opportunity", opp.ID).
				Str("customer", customerID).
				Msg("opportunity changed during conversion; source retained")
			return nil, &TransitionError{
				Code:          CodeConversionFailure,
				OpportunityID: opp.ID,
				From:          pl.from,
				Message:       "opportunity changed while the customer was created",
				Err:           err,
			}
		}
		m.logger.Error().Err(err).
			Str("opportunity", opp.ID).
			Str("customer", customerID).
			Msg("customer created but source opportunity not removed")
		return nil, persistenceFailure(opp.ID, pl.from, err)
	}

	m.logger.Info().Str("opportunity", opp.ID).Str("customer", customerID).Msg("opportunity converted")
	return opp, nil
}

var errClaimLost = errors.New("conversion claim no longer held")

// holdsClaim reports whether cur is still the record this conversion claimed.
func holdsClaim(cur, claimed *models.Opportunity) bool {
	if claimed == nil || cur.ConvertingSince == nil || claimed.ConvertingSince == nil {
		return false
	}
	return cur.ConvertingSince.Equal(*claimed.ConvertingSince) &&
		cur.Pool == claimed.Pool &&
		cur.UpdatedAt.Equal(claimed.UpdatedAt) &&
		len(cur.Activities) == len(claimed.Activities)
}

// releaseClaim clears a failed conversion's claim so the record can move again.
// A claim that cannot be cleared expires on its own.
func (m *Machine) releaseClaim(ctx context.Context, claimed *models.Opportunity) {
	if claimed == nil {
		return
	}
	err := m.store.Update(context.WithoutCancel(ctx), func(tx *store.Txn) error {
		cur, err := locate(tx, claimed.ID)
		if err != nil {
			return err
		}
		if !holdsClaim(cur, claimed) {
			return nil
		}
		cur.ConvertingSince = nil
		return tx.Put(store.OpportunityPartition(cur.Pool), cur.ID, cur)
	})
	if err != nil {
		m.logger.Error().Err(err).Str("opportunity", claimed.ID).Msg("could not release conversion claim")
	}
}
