// ABOUTME: Tests for the opportunity stage machine
// ABOUTME: Covers the transition table, conversion saga, contact sync soft-fail and pool exclusivity
package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/harperreed/agencyops/charm"
	"github.com/harperreed/agencyops/models"
	"github.com/harperreed/agencyops/store"
	"github.com/hay-kot/criterio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmitter struct {
	mu    sync.Mutex
	err   error
	calls []CustomerFields
}

func (f *fakeEmitter) CreateCustomer(ctx context.Context, fields CustomerFields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fields)
	if f.err != nil {
		return "", f.err
	}
	return "cust-" + fields.SourceOpportunityID, nil
}

type fakeSyncer struct {
	mu     sync.Mutex
	err    error
	id     string
	tokens []string
	seen   []ContactFields
}

func (f *fakeSyncer) UpsertContact(ctx context.Context, token string, fields ContactFields) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, token)
	f.seen = append(f.seen, fields)
	if f.err != nil {
		return "", f.err
	}
	return f.id, nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func setupMachine(t *testing.T, emitter CustomerEmitter, opts ...Option) (*Machine, *store.Store) {
	t.Helper()
	client, cleanup := charm.NewTestClient(t)
	t.Cleanup(cleanup)
	s := store.New(client, store.WithMaxRetries(20), store.WithBackoff(time.Millisecond))
	return NewMachine(s, emitter, opts...), s
}

func newLead(t *testing.T, m *Machine) *models.Opportunity {
	t.Helper()
	opp, err := m.Create(context.Background(), NewOpportunity{
		DisplayName:    "Ada Lovelace",
		Organization:   "Analytical Engines",
		Role:           "Founder",
		ContactMethods: []models.ContactMethod{{Type: models.ChannelEmail, Value: "ada@example.com"}},
	})
	require.NoError(t, err)
	return opp
}

func mustTransition(t *testing.T, m *Machine, id string, ch Change) *models.Opportunity {
	t.Helper()
	opp, err := m.Transition(context.Background(), id, ch)
	require.NoError(t, err)
	return opp
}

// poolsHolding returns every live pool with a record for id.
func poolsHolding(t *testing.T, s *store.Store, id string) []models.Pool {
	t.Helper()
	var pools []models.Pool
	err := s.View(context.Background(), func(tx *store.Txn) error {
		for _, p := range models.LivePools {
			ok, err := tx.Exists(store.OpportunityPartition(p), id)
			if err != nil {
				return err
			}
			if ok {
				pools = append(pools, p)
			}
		}
		return nil
	})
	require.NoError(t, err)
	return pools
}

func TestCreateStartsInProspect(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	assert.Equal(t, models.PoolProspect, opp.Pool)
	assert.Equal(t, 0, opp.Score)
	assert.Empty(t, opp.Activities)
	assert.Equal(t, []models.Pool{models.PoolProspect}, poolsHolding(t, s, opp.ID))
}

func TestCreateValidatesInput(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	neg := int64(-5)

	_, err := m.Create(context.Background(), NewOpportunity{
		DisplayName:    " ",
		ContactMethods: []models.ContactMethod{{Type: "fax", Value: ""}},
		Value:          &neg,
	})

	var fieldErrs criterio.FieldErrors
	require.ErrorAs(t, err, &fieldErrs)
	fields := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields = append(fields, fe.Field)
	}
	assert.Contains(t, fields, "display_name")
	assert.Contains(t, fields, "value")
	assert.Contains(t, fields, "contact_methods[0].type")
	assert.Contains(t, fields, "contact_methods[0].value")
}

func TestInterestedMovesToActiveDeal(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	got := mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	assert.Equal(t, models.PoolActiveDeal, got.Pool)
	assert.Equal(t, models.StageNewProspect, got.Stage)
	assert.Equal(t, 20, got.Score)
	require.Len(t, got.Activities, 1)
	assert.Equal(t, models.ActivityPoolChange, got.Activities[0].Type)
	assert.Equal(t, []models.Pool{models.PoolActiveDeal}, poolsHolding(t, s, opp.ID))

	stored, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, stored.Score)
	assert.Len(t, stored.Activities, 1)
}

func TestOutreachUpdatesStayInProspect(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	sent := mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachMessageSent})
	assert.Equal(t, models.PoolProspect, sent.Pool)
	assert.Equal(t, 0, sent.Score)
	assert.Equal(t, models.OutreachMessageSent, sent.Outreach)

	replied := mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachReplied})
	assert.Equal(t, 10, replied.Score)
	require.Len(t, replied.Activities, 2)
	last := replied.Activities[1]
	assert.Equal(t, models.ActivityOutreach, last.Type)
	assert.Equal(t, "Message Sent", last.OldValue)
	assert.Equal(t, "Replied", last.NewValue)

	_, err := m.Transition(context.Background(), opp.ID, Change{Outreach: models.OutreachReplied})
	assert.True(t, IsInvalidTransition(err), "replying twice must not score twice")

	interested := mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})
	assert.Equal(t, 30, interested.Score)
	assert.Empty(t, interested.Outreach)
}

func TestProspectMoves(t *testing.T) {
	tests := []struct {
		name   string
		change Change
		pool   models.Pool
	}{
		{"not now", Change{Pool: models.PoolNurture, Note: "budget next quarter"}, models.PoolNurture},
		{"no response", Change{Pool: models.PoolDormant}, models.PoolDormant},
		{"not interested", Change{Pool: models.PoolSuppressed}, models.PoolSuppressed},
		{"active deal at new prospect", Change{Pool: models.PoolActiveDeal, Stage: models.StageNewProspect}, models.PoolActiveDeal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, s := setupMachine(t, &fakeEmitter{})
			opp := newLead(t, m)

			got := mustTransition(t, m, opp.ID, tt.change)
			assert.Equal(t, tt.pool, got.Pool)
			assert.Equal(t, []models.Pool{tt.pool}, poolsHolding(t, s, opp.ID))
		})
	}
}

func TestNurtureRequiresReason(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	_, err := m.Transition(context.Background(), opp.ID, Change{Pool: models.PoolNurture})
	require.Error(t, err)
	assert.True(t, IsInvalidTransition(err))
	assert.Equal(t, []models.Pool{models.PoolProspect}, poolsHolding(t, s, opp.ID))

	got := mustTransition(t, m, opp.ID, Change{Pool: models.PoolNurture, Note: "revisit in spring"})
	assert.Equal(t, "revisit in spring", got.NurtureReason)
	assert.Equal(t, "Moved to Nurture: revisit in spring", got.Activities[0].Description)
}

func TestInvalidTransitionsLeaveRecordUntouched(t *testing.T) {
	tests := []struct {
		name   string
		setup  []Change
		change Change
	}{
		{"prospect closed won", nil, Change{Stage: models.StageClosedWon}},
		{"prospect closed lost", nil, Change{Stage: models.StageClosedLost}},
		{"prospect skips to qualified", nil, Change{Stage: models.StageQualified}},
		{"empty change", nil, Change{}},
		{"same stage", []Change{{Outreach: models.OutreachInterested}}, Change{Stage: models.StageNewProspect}},
		{"outreach outside prospect", []Change{{Outreach: models.OutreachInterested}}, Change{Outreach: models.OutreachReplied}},
		{"active deal to dormant without closing", []Change{{Outreach: models.OutreachInterested}}, Change{Pool: models.PoolDormant}},
		{"active deal to suppressed", []Change{{Outreach: models.OutreachInterested}}, Change{Pool: models.PoolSuppressed}},
		{"nurture to dormant", []Change{{Pool: models.PoolNurture, Note: "later"}}, Change{Pool: models.PoolDormant}},
		{"suppressed is terminal", []Change{{Pool: models.PoolSuppressed}}, Change{Stage: models.StageQualified}},
		{"suppressed rejects notes", []Change{{Pool: models.PoolSuppressed}}, Change{Note: "one more thing"}},
		{"stage with wrong pool", []Change{{Pool: models.PoolNurture, Note: "later"}}, Change{Pool: models.PoolNurture, Stage: models.StageQualified}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := setupMachine(t, &fakeEmitter{})
			opp := newLead(t, m)
			for _, ch := range tt.setup {
				mustTransition(t, m, opp.ID, ch)
			}
			before, err := m.Get(context.Background(), opp.ID)
			require.NoError(t, err)

			_, err = m.Transition(context.Background(), opp.ID, tt.change)
			require.Error(t, err)
			assert.True(t, IsInvalidTransition(err), "got %v", err)

			after, err := m.Get(context.Background(), opp.ID)
			require.NoError(t, err)
			assert.Equal(t, before.Pool, after.Pool)
			assert.Equal(t, before.Stage, after.Stage)
			assert.Equal(t, before.Score, after.Score)
			assert.Len(t, after.Activities, len(before.Activities))
		})
	}
}

func TestStageScoreDeltas(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	steps := []struct {
		stage models.Stage
		score int
	}{
		{models.StageContacted, 20},
		{models.StageQualified, 35},
		{models.StageProposalSent, 55},
		{models.StageNegotiation, 65},
	}
	for _, st := range steps {
		got := mustTransition(t, m, opp.ID, Change{Stage: st.stage})
		assert.Equal(t, st.score, got.Score, "after %s", st.stage.Label())
		last := got.Activities[len(got.Activities)-1]
		assert.Equal(t, models.ActivityStageChange, last.Type)
		assert.Equal(t, st.stage.Label(), last.NewValue)
	}
}

func TestClosedLostMovesToDormantTagged(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})
	mustTransition(t, m, opp.ID, Change{Stage: models.StageNegotiation})

	got := mustTransition(t, m, opp.ID, Change{Stage: models.StageClosedLost})

	assert.Equal(t, models.PoolDormant, got.Pool)
	assert.True(t, got.HasTag(models.TagLost))
	assert.Empty(t, got.Stage)
	last := got.Activities[len(got.Activities)-1]
	assert.Equal(t, "Negotiation", last.OldValue)
	assert.Equal(t, "Closed Lost", last.NewValue)
	assert.Equal(t, []models.Pool{models.PoolDormant}, poolsHolding(t, s, opp.ID))
}

func TestClosedWonWithFailingEmitterKeepsRecord(t *testing.T) {
	emitter := &fakeEmitter{err: errors.New("customer service unavailable")}
	m, s := setupMachine(t, emitter)
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})
	mustTransition(t, m, opp.ID, Change{Stage: models.StageQualified})
	before, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)

	_, err = m.Transition(context.Background(), opp.ID, Change{Stage: models.StageClosedWon})
	require.Error(t, err)
	assert.True(t, IsConversionFailure(err))
	assert.Len(t, emitter.calls, 1)

	after, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Nil(t, after.ConvertingSince)
	assert.Equal(t, []models.Pool{models.PoolActiveDeal}, poolsHolding(t, s, opp.ID))

	got := mustTransition(t, m, opp.ID, Change{Note: "retry next week"})
	assert.Equal(t, models.PoolActiveDeal, got.Pool)
}

// meddlingEmitter moves the opportunity while its customer is being created.
type meddlingEmitter struct {
	m        *Machine
	noteErr  error
	closeErr error
}

func (e *meddlingEmitter) CreateCustomer(ctx context.Context, fields CustomerFields) (string, error) {
	_, e.noteErr = e.m.Transition(ctx, fields.SourceOpportunityID, Change{Note: "client sent signed PO #4411"})
	_, e.closeErr = e.m.Transition(ctx, fields.SourceOpportunityID, Change{Stage: models.StageClosedLost})
	return "cust-" + fields.SourceOpportunityID, nil
}

func TestTransitionsDuringConversionAreRejected(t *testing.T) {
	emitter := &meddlingEmitter{}
	m, s := setupMachine(t, emitter)
	emitter.m = m
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	got, err := m.Transition(context.Background(), opp.ID, Change{Stage: models.StageClosedWon})
	require.NoError(t, err)
	assert.Equal(t, models.PoolConverted, got.Pool)

	assert.True(t, IsInvalidTransition(emitter.noteErr), "note: %v", emitter.noteErr)
	assert.True(t, IsInvalidTransition(emitter.closeErr), "closed lost: %v", emitter.closeErr)
	assert.Empty(t, poolsHolding(t, s, opp.ID))
}

// rewritingEmitter changes the stored record behind the machine's back.
type rewritingEmitter struct {
	s *store.Store
}

func (e *rewritingEmitter) CreateCustomer(ctx context.Context, fields CustomerFields) (string, error) {
	err := e.s.Update(ctx, func(tx *store.Txn) error {
		var opp models.Opportunity
		if err := tx.Get(store.OpportunityPartition(models.PoolActiveDeal), fields.SourceOpportunityID, &opp); err != nil {
			return err
		}
		opp.Activities = append(opp.Activities, models.Activity{ID: "external", Type: models.ActivityNote, Description: "edited elsewhere"})
		return tx.Put(store.OpportunityPartition(models.PoolActiveDeal), opp.ID, &opp)
	})
	if err != nil {
		return "", err
	}
	return "cust-" + fields.SourceOpportunityID, nil
}

func TestConversionKeepsRecordChangedUnderIt(t *testing.T) {
	emitter := &rewritingEmitter{}
	m, s := setupMachine(t, emitter)
	emitter.s = s
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	_, err := m.Transition(context.Background(), opp.ID, Change{Stage: models.StageClosedWon})
	require.Error(t, err)
	assert.True(t, IsConversionFailure(err))

	assert.Equal(t, []models.Pool{models.PoolActiveDeal}, poolsHolding(t, s, opp.ID))
	stored, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited elsewhere", stored.Activities[len(stored.Activities)-1].Description)
}

func TestStageRoundTripsScoreOnce(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	for i := 0; i < 3; i++ {
		mustTransition(t, m, opp.ID, Change{Stage: models.StageProposalSent})
		mustTransition(t, m, opp.ID, Change{Stage: models.StageContacted})
	}

	got, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got.Score)
}

func TestRepliedScoresOnce(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachReplied})
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachMessageSent})
	got := mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachReplied})

	assert.Equal(t, 10, got.Score)
	assert.Equal(t, []string{"outreach:replied"}, got.ScoredSteps)
}

func TestClosedWonConvertsAndRemovesSource(t *testing.T) {
	emitter := &fakeEmitter{}
	syncer := &fakeSyncer{id: "people/c1"}
	m, s := setupMachine(t, emitter, WithContactSyncer(syncer))
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})

	got, err := m.Transition(context.Background(), opp.ID, Change{Stage: models.StageClosedWon, AccessToken: "tok"})
	require.NoError(t, err)
	m.Wait()

	assert.Equal(t, models.PoolConverted, got.Pool)
	assert.Equal(t, "cust-"+opp.ID, got.CustomerID)
	assert.Equal(t, "people/c1", got.ExternalContactID)
	assert.Empty(t, poolsHolding(t, s, opp.ID))

	require.Len(t, emitter.calls, 1)
	fields := emitter.calls[0]
	assert.Equal(t, "ada@example.com", fields.Email)
	assert.Equal(t, "people/c1", fields.ExternalContactID)
	last := fields.Activities[len(fields.Activities)-1]
	assert.Equal(t, models.ActivityConverted, last.Type)
	assert.Equal(t, models.ActivityContactSynced, fields.Activities[len(fields.Activities)-2].Type)
	assert.Equal(t, []string{"tok"}, syncer.tokens)

	_, err = m.Get(context.Background(), opp.ID)
	assert.True(t, IsNotFound(err))
}

func TestClosedWonSyncFailureDoesNotBlockConversion(t *testing.T) {
	emitter := &fakeEmitter{}
	m, _ := setupMachine(t, emitter, WithContactSyncer(&fakeSyncer{err: errors.New("401")}))
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Pool: models.PoolDormant})

	got, err := m.Transition(context.Background(), opp.ID, Change{Stage: models.StageClosedWon})
	require.NoError(t, err)
	assert.Equal(t, models.PoolConverted, got.Pool)

	var types []models.ActivityType
	for _, a := range emitter.calls[0].Activities {
		types = append(types, a.Type)
	}
	assert.Contains(t, types, models.ActivityContactSyncFailed)
}

func TestReactivateToProposalSentAttemptsSync(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("address book timeout")}
	m, s := setupMachine(t, &fakeEmitter{}, WithContactSyncer(syncer))
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Pool: models.PoolNurture, Note: "circle back"})

	got := mustTransition(t, m, opp.ID, Change{Stage: models.StageProposalSent, AccessToken: "tok"})
	assert.Equal(t, models.PoolActiveDeal, got.Pool)
	assert.Equal(t, models.StageProposalSent, got.Stage)
	assert.Equal(t, 0, got.Score)
	assert.Empty(t, got.NurtureReason)
	assert.Equal(t, []models.Pool{models.PoolActiveDeal}, poolsHolding(t, s, opp.ID))

	m.Wait()
	assert.Equal(t, 1, syncer.callCount())

	stored, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	last := stored.Activities[len(stored.Activities)-1]
	assert.Equal(t, models.ActivityContactSyncFailed, last.Type)
	assert.Contains(t, last.Description, "address book timeout")
	assert.Equal(t, models.PoolActiveDeal, stored.Pool)
}

func TestContactSyncRecordsExternalID(t *testing.T) {
	syncer := &fakeSyncer{id: "people/c42"}
	m, _ := setupMachine(t, &fakeEmitter{}, WithContactSyncer(syncer))
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})
	mustTransition(t, m, opp.ID, Change{Stage: models.StageNegotiation})
	m.Wait()

	stored, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	assert.Equal(t, "people/c42", stored.ExternalContactID)
	assert.Equal(t, models.ActivityContactSynced, stored.Activities[len(stored.Activities)-1].Type)

	mustTransition(t, m, opp.ID, Change{Stage: models.StageProposalSent})
	m.Wait()
	require.Equal(t, 2, syncer.callCount())
	assert.Equal(t, "people/c42", syncer.seen[1].ExternalID, "second sync updates the known contact")
}

func TestStagesWithoutSyncSkipSyncer(t *testing.T) {
	syncer := &fakeSyncer{}
	m, _ := setupMachine(t, &fakeEmitter{}, WithContactSyncer(syncer))
	opp := newLead(t, m)
	mustTransition(t, m, opp.ID, Change{Outreach: models.OutreachInterested})
	mustTransition(t, m, opp.ID, Change{Stage: models.StageQualified})
	m.Wait()
	assert.Equal(t, 0, syncer.callCount())
}

func TestNoteOnlyAppends(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	got := mustTransition(t, m, opp.ID, Change{Note: "met at conference"})
	assert.Equal(t, models.PoolProspect, got.Pool)
	assert.Equal(t, 0, got.Score)
	require.Len(t, got.Activities, 1)
	assert.Equal(t, models.ActivityNote, got.Activities[0].Type)
	assert.Equal(t, "met at conference", got.Activities[0].Description)
}

func TestTransitionUnknownOpportunity(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	_, err := m.Transition(context.Background(), "missing", Change{Note: "x"})
	assert.True(t, IsNotFound(err))
}

func TestPoolExclusivityAndAppendOnlyLog(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	sequence := []Change{
		{Outreach: models.OutreachMessageSent},
		{Outreach: models.OutreachReplied},
		{Note: "asked for pricing"},
		{Outreach: models.OutreachInterested},
		{Stage: models.StageQualified},
		{Pool: models.PoolNurture, Note: "waiting on budget"},
		{Stage: models.StageContacted},
		{Stage: models.StageClosedLost},
		{Pool: models.PoolActiveDeal, Stage: models.StageNegotiation},
	}

	prev, err := m.Get(context.Background(), opp.ID)
	require.NoError(t, err)
	for i, ch := range sequence {
		got := mustTransition(t, m, opp.ID, ch)

		pools := poolsHolding(t, s, opp.ID)
		require.Len(t, pools, 1, "step %d", i)
		assert.Equal(t, got.Pool, pools[0])

		stored, err := m.Get(context.Background(), opp.ID)
		require.NoError(t, err)
		assert.True(t, IsAppendOnly(prev.Activities, stored.Activities), "step %d rewrote the log", i)
		assert.Len(t, stored.Activities, len(prev.Activities)+1)
		prev = stored
	}
}

func TestScoreDeterminism(t *testing.T) {
	m, _ := setupMachine(t, &fakeEmitter{})
	a := newLead(t, m)
	b := newLead(t, m)

	sequence := []Change{
		{Outreach: models.OutreachReplied},
		{Outreach: models.OutreachInterested},
		{Stage: models.StageQualified},
		{Stage: models.StageContacted},
		{Stage: models.StageProposalSent},
		{Stage: models.StageClosedLost},
		{Stage: models.StageNegotiation},
	}
	var finalA, finalB *models.Opportunity
	for _, ch := range sequence {
		finalA = mustTransition(t, m, a.ID, ch)
		finalB = mustTransition(t, m, b.ID, ch)
	}
	assert.Equal(t, finalA.Score, finalB.Score)
	assert.Equal(t, 65, finalA.Score)
}

func TestConcurrentTransitionsKeepOnePool(t *testing.T) {
	m, s := setupMachine(t, &fakeEmitter{})
	opp := newLead(t, m)

	changes := []Change{
		{Outreach: models.OutreachInterested},
		{Pool: models.PoolDormant},
		{Pool: models.PoolSuppressed},
		{Pool: models.PoolNurture, Note: "later"},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for _, ch := range changes {
		wg.Add(1)
		go func(ch Change) {
			defer wg.Done()
			_, err := m.Transition(context.Background(), opp.ID, ch)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.True(t, IsInvalidTransition(err), "unexpected error: %v", err)
		}(ch)
	}
	wg.Wait()

	assert.GreaterOrEqual(t, succeeded, 1)
	assert.Len(t, poolsHolding(t, s, opp.ID), 1)
}
