// ABOUTME: Opportunity stage machine over the record store
// ABOUTME: Applies planned transitions atomically and runs contact sync after commit
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/hay-kot/criterio"
	"github.com/rs/zerolog"
)

const defaultSyncTimeout = 10 * time.Second

// Machine moves opportunities between pools and stages.
type Machine struct {
	store       *store.Store
	syncer      ContactSyncer
	emitter     CustomerEmitter
	syncTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time

	inflight sync.WaitGroup
}

// Option configures a Machine.
type Option func(*Machine)

// WithContactSyncer enables best-effort contact upserts.
func WithContactSyncer(s ContactSyncer) Option {
	return func(m *Machine) { m.syncer = s }
}

// WithSyncTimeout bounds each contact upsert.
func WithSyncTimeout(d time.Duration) Option {
	return func(m *Machine) {
		if d > 0 {
			m.syncTimeout = d
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(m *Machine) {
		m.logger = logger.With().Str("component", "pipeline").Logger()
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// NewMachine creates a machine. The emitter is required: without it no
// opportunity can be closed won.
func NewMachine(s *store.Store, emitter CustomerEmitter, opts ...Option) *Machine {
	m := &Machine{
		store:       s,
		emitter:     emitter,
		syncTimeout: defaultSyncTimeout,
		logger:      zerolog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewOpportunity holds the identity fields of a new lead.
type NewOpportunity struct {
	DisplayName    string                 `json:"display_name"`
	Organization   string                 `json:"organization,omitempty"`
	Role           string                 `json:"role,omitempty"`
	ContactMethods []models.ContactMethod `json:"contact_methods"`
	Value          *int64                 `json:"value,omitempty"`
}

var knownChannels = map[string]bool{
	models.ChannelEmail:    true,
	models.ChannelPhone:    true,
	models.ChannelLinkedIn: true,
	models.ChannelWhatsApp: true,
	models.ChannelOther:    true,
}

// Validate checks the identity fields.
func (n NewOpportunity) Validate() error {
	var errs criterio.FieldErrorsBuilder
	if len(n.ContactMethods) == 0 {
		errs = errs.Append("contact_methods", fmt.Errorf("at least one contact method is required"))
	}
	for i, cm := range n.ContactMethods {
		field := fmt.Sprintf("contact_methods[%d]", i)
		if !knownChannels[cm.Type] {
			errs = errs.Append(field+".type", fmt.Errorf("unknown channel %q", cm.Type))
		}
		if strings.TrimSpace(cm.Value) == "" {
			errs = errs.Append(field+".value", fmt.Errorf("value is required"))
		}
	}

	return criterio.ValidateStruct(
		criterio.Run("display_name", n.DisplayName, func(s string) error {
			if strings.TrimSpace(s) == "" {
				return fmt.Errorf("display name is required")
			}
			return nil
		}),
		criterio.Run("value", n.Value, func(v *int64) error {
			if v != nil && *v < 0 {
				return fmt.Errorf("value cannot be negative")
			}
			return nil
		}),
		errs.ToError(),
	)
}

// Create stores a new opportunity in Prospect with score 0.
func (m *Machine) Create(ctx context.Context, in NewOpportunity) (*models.Opportunity, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := m.now()
	opp := &models.Opportunity{
		ID:             uuid.New().String(),
		DisplayName:    strings.TrimSpace(in.DisplayName),
		Organization:   strings.TrimSpace(in.Organization),
		Role:           strings.TrimSpace(in.Role),
		ContactMethods: in.ContactMethods,
		Pool:           models.PoolProspect,
		Outreach:       models.OutreachNew,
		Score:          0,
		Value:          in.Value,
		Activities:     []models.Activity{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := m.store.Create(ctx, store.OpportunityPartition(opp.Pool), opp.ID, opp); err != nil {
		return nil, persistenceFailure(opp.ID, "", err)
	}
	m.logger.Info().Str("opportunity", opp.ID).Msg("opportunity created")
	return opp, nil
}

// locate finds the record in whichever live pool holds it.
func locate(tx *store.Txn, id string) (*models.Opportunity, error) {
	for _, pool := range models.LivePools {
		var opp models.Opportunity
		err := tx.Get(store.OpportunityPartition(pool), id, &opp)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &opp, nil
	}
	return nil, &TransitionError{Code: CodeNotFound, OpportunityID: id, Message: "opportunity not found"}
}

// Get returns the current record, read fresh from the store.
func (m *Machine) Get(ctx context.Context, id string) (*models.Opportunity, error) {
	var opp *models.Opportunity
	err := m.store.View(ctx, func(tx *store.Txn) error {
		var err error
		opp, err = locate(tx, id)
		return err
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, persistenceFailure(id, "", err)
	}
	return opp, nil
}

// List returns the opportunities of a pool, or of all live pools when pool is empty.
func (m *Machine) List(ctx context.Context, pool models.Pool) ([]models.Opportunity, error) {
	pools := models.LivePools
	if pool != "" {
		if !pool.IsLive() {
			return nil, fmt.Errorf("unknown pool %q", pool)
		}
		pools = []models.Pool{pool}
	}

	var out []models.Opportunity
	err := m.store.View(ctx, func(tx *store.Txn) error {
		for _, p := range pools {
			recs, err := store.ScanAll[models.Opportunity](tx, store.OpportunityPartition(p), nil)
			if err != nil {
				return err
			}
			out = append(out, recs...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list opportunities: %w", err)
	}
	return out, nil
}

// Transition applies a requested change. Every rule is evaluated against a
// fresh read inside the write transaction, so a stale caller cannot move a
// record out of a pool it has already left.
func (m *Machine) Transition(ctx context.Context, id string, ch Change) (*models.Opportunity, error) {
	var pl *plan
	err := m.store.Update(ctx, func(tx *store.Txn) error {
		pl = nil
		cur, err := locate(tx, id)
		if err != nil {
			return err
		}
		now := m.now()
		p, err := planTransition(cur, ch, now)
		if err != nil {
			return err
		}
		pl = p
		if p.convert {
			// the claim holds the record until the saga deletes or releases it
			claimed := cur.Clone()
			claimed.ConvertingSince = &now
			p.claimed = claimed
			return tx.Put(store.OpportunityPartition(cur.Pool), id, claimed)
		}
		return tx.Relocate(store.OpportunityPartition(p.from), store.OpportunityPartition(p.next.Pool), id, p.next)
	})
	if err != nil {
		var te *TransitionError
		if errors.As(err, &te) {
			return nil, te
		}
		from := models.Pool("")
		if pl != nil {
			from = pl.from
		}
		m.logger.Error().Err(err).Str("opportunity", id).Msg("transition not persisted")
		return nil, persistenceFailure(id, from, err)
	}

	if pl.convert {
		return m.convert(ctx, pl, ch.AccessToken)
	}

	m.logger.Info().
		Str("opportunity", id).
		Str("from", string(pl.from)).
		Str("pool", string(pl.next.Pool)).
		Str("stage", string(pl.next.Stage)).
		Int("score", pl.next.Score).
		Msg("opportunity transitioned")

	if pl.syncContact {
		m.syncAsync(ctx, pl.next, ch.AccessToken)
	}
	return pl.next, nil
}

// Wait blocks until every background contact sync has recorded its outcome.
func (m *Machine) Wait() {
	m.inflight.Wait()
}

// upsert runs one contact sync bounded by the sync timeout. Callers check
// that a syncer is configured.
func (m *Machine) upsert(ctx context.Context, opp *models.Opportunity, token string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.syncTimeout)
	defer cancel()
	return m.syncer.UpsertContact(ctx, token, contactFieldsFor(opp))
}

func syncActivity(now time.Time, externalID string, err error) models.Activity {
	if err != nil {
		return newActivity(now, models.ActivityContactSyncFailed, "Contact sync failed: "+err.Error(), "", "")
	}
	return newActivity(now, models.ActivityContactSynced, "Contact synced", "", externalID)
}

// syncAsync upserts the contact in the background and appends the outcome
// to the record's log in a follow-up transaction.
func (m *Machine) syncAsync(ctx context.Context, opp *models.Opportunity, token string) {
	if m.syncer == nil {
		return
	}
	snapshot := opp.Clone()
	bg := context.WithoutCancel(ctx)

	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()

		externalID, syncErr := m.upsert(bg, snapshot, token)
		if syncErr != nil {
			m.logger.Warn().Err(syncErr).Str("opportunity", snapshot.ID).Msg("contact sync failed")
		}

		err := m.store.Update(bg, func(tx *store.Txn) error {
			cur, err := locate(tx, snapshot.ID)
			if err != nil {
				return err
			}
			if cur.ConvertingSince != nil {
				return errConverting
			}
			cur.Activities = appendActivity(cur.Activities, syncActivity(m.now(), externalID, syncErr))
			if syncErr == nil && externalID != "" {
				cur.ExternalContactID = externalID
			}
			return tx.Put(store.OpportunityPartition(cur.Pool), cur.ID, cur)
		})
		if errors.Is(err, errConverting) {
			m.logger.Info().Str("opportunity", snapshot.ID).Msg("contact sync outcome dropped; opportunity is converting")
		} else if err != nil {
			m.logger.Warn().Err(err).Str("opportunity", snapshot.ID).Msg("could not record contact sync outcome")
		}
	}()
}
