package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festivo/ops-service/internal/config"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

// fakeEngagementRepo keeps engagement rows and history in memory. The row's
// state column is the state pointer, exactly like the real table.
type fakeEngagementRepo struct {
	rows      map[string]*domain.Engagement
	history   map[string][]lifecycle.Record[domain.EngagementState]
	updateErr error
}

func newFakeEngagementRepo() *fakeEngagementRepo {
	return &fakeEngagementRepo{
		rows:    make(map[string]*domain.Engagement),
		history: make(map[string][]lifecycle.Record[domain.EngagementState]),
	}
}

func (f *fakeEngagementRepo) GetOrCreateByLead(_ context.Context, leadID string) (*domain.Engagement, error) {
	if eng, ok := f.rows[leadID]; ok {
		copied := *eng
		return &copied, nil
	}
	eng := &domain.Engagement{
		ID:     "eng-" + leadID,
		LeadID: leadID,
		State:  domain.EngagementIdle,
	}
	f.rows[leadID] = eng
	copied := *eng
	return &copied, nil
}

func (f *fakeEngagementRepo) Update(_ context.Context, eng *domain.Engagement) error {
	if f.updateErr != nil {
		err := f.updateErr
		f.updateErr = nil
		return err
	}
	copied := *eng
	f.rows[eng.LeadID] = &copied
	return nil
}

func (f *fakeEngagementRepo) CurrentState(_ context.Context, leadID string) (domain.EngagementState, bool, error) {
	eng, ok := f.rows[leadID]
	if !ok {
		return "", false, nil
	}
	return eng.State, true, nil
}

func (f *fakeEngagementRepo) ApplyStateChange(_ context.Context, leadID string, rec *lifecycle.Record[domain.EngagementState]) error {
	f.rows[leadID].State = rec.State
	f.history[leadID] = append(f.history[leadID], *rec)
	return nil
}

func (f *fakeEngagementRepo) ListHistory(_ context.Context, leadID string) ([]lifecycle.Record[domain.EngagementState], error) {
	return f.history[leadID], nil
}

func (f *fakeEngagementRepo) ListDueCandidates(_ context.Context, limit int) ([]string, error) {
	out := make([]string, 0, len(f.rows))
	for leadID, eng := range f.rows {
		if eng.State == domain.EngagementNoResponse || eng.State == domain.EngagementResponded {
			continue
		}
		if eng.LastContactedAt == nil {
			continue
		}
		out = append(out, leadID)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// fakeLeadDirectory records archive calls and answers phone lookups.
type fakeLeadDirectory struct {
	phone    string
	archived []string
}

func (f *fakeLeadDirectory) ArchiveLead(_ context.Context, leadID, _ string) error {
	f.archived = append(f.archived, leadID)
	return nil
}

func (f *fakeLeadDirectory) ContactPhone(context.Context, string) (string, error) {
	return f.phone, nil
}

// recordingMessenger captures outbound texts.
type recordingMessenger struct {
	sent []string
}

func (m *recordingMessenger) SendText(_ context.Context, to, body string) (string, error) {
	m.sent = append(m.sent, to+": "+body)
	return "msg-1", nil
}

type engagementFixture struct {
	svc       *EngagementService
	repo      *fakeEngagementRepo
	leads     *fakeLeadDirectory
	messenger *recordingMessenger
	now       time.Time
}

func newEngagementFixture(t *testing.T) *engagementFixture {
	t.Helper()
	fx := &engagementFixture{
		repo:      newFakeEngagementRepo(),
		leads:     &fakeLeadDirectory{phone: "+15550001111"},
		messenger: &recordingMessenger{},
		now:       time.Date(2026, time.May, 1, 9, 0, 0, 0, time.UTC),
	}
	svc, err := NewEngagementService(EngagementDependencies{
		Runner:      passRunner{},
		Repo:        fx.repo,
		Messenger:   fx.messenger,
		Idempotency: persistence.NewMemoryIdempotencyGuard(),
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
		Company:     config.CompanyConfig{Name: "Festivo"},
		Clock:       func() time.Time { return fx.now },
	})
	require.NoError(t, err)
	svc.BindLeads(fx.leads)
	fx.svc = svc
	return fx
}

func (fx *engagementFixture) advance(d time.Duration) {
	fx.now = fx.now.Add(d)
}

func (fx *engagementFixture) state(t *testing.T, leadID string) domain.EngagementState {
	t.Helper()
	eng, err := fx.svc.Get(context.Background(), leadID)
	require.NoError(t, err)
	return eng.State
}

func TestStartContactBeginsCycle(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))

	eng, err := fx.svc.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EngagementFirstContact, eng.State)
	assert.Equal(t, 0, eng.FollowUpAttempts)
	require.NotNil(t, eng.LastContactedAt)
	assert.Equal(t, fx.now, *eng.LastContactedAt)

	history, err := fx.svc.History(ctx, "lead-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "lead_created", history[0].Cause)
}

func TestSendFollowUpAdvancesAndSendsText(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))

	assert.Equal(t, domain.EngagementFollowUp1, fx.state(t, "lead-1"))
	require.Len(t, fx.messenger.sent, 1)
	assert.Contains(t, fx.messenger.sent[0], "+15550001111")

	require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))
	assert.Equal(t, domain.EngagementFollowUp2, fx.state(t, "lead-1"))
}

func TestSendFollowUpBudgetExhausted(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))
	require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))

	err := fx.svc.SendFollowUp(ctx, "lead-1", "manual")
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "VALIDATION_FAILED", domErr.Code)
	assert.Len(t, fx.messenger.sent, 2)
}

func TestRecordResponseResetsCountersAndIsIdempotent(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))
	require.NoError(t, fx.svc.Pause(ctx, "lead-1", fx.now.Add(time.Hour)))

	require.NoError(t, fx.svc.RecordResponse(ctx, "lead-1", "inbound_message"))

	eng, err := fx.svc.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EngagementResponded, eng.State)
	assert.Equal(t, 0, eng.FollowUpAttempts)
	assert.Equal(t, 0, eng.RetryCycles)
	assert.Nil(t, eng.PausedUntil)
	require.NotNil(t, eng.LastRespondedAt)

	// Responding again changes nothing and appends no history.
	before := len(fx.repo.history["lead-1"])
	require.NoError(t, fx.svc.RecordResponse(ctx, "lead-1", "inbound_message"))
	assert.Len(t, fx.repo.history["lead-1"], before)
}

func TestRecordResponseBeforeOutreachUpdatesRowOnly(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.RecordResponse(ctx, "lead-1", "inbound_message"))

	eng, err := fx.svc.Get(ctx, "lead-1")
	require.NoError(t, err)
	assert.Equal(t, domain.EngagementIdle, eng.State)
	require.NotNil(t, eng.LastRespondedAt)
	assert.Empty(t, fx.repo.history["lead-1"])
}

func TestMarkNoResponseLoopsUntilRetryBudgetExhausted(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	exhaustCycle := func() {
		require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))
		require.NoError(t, fx.svc.SendFollowUp(ctx, "lead-1", "manual"))
	}

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))

	// First two exhausted cycles loop back to a fresh first contact.
	for cycle := 1; cycle < MaxRetryCycles; cycle++ {
		exhaustCycle()
		require.NoError(t, fx.svc.MarkNoResponse(ctx, "lead-1", "timeout_sweep"))
		assert.Equal(t, domain.EngagementFirstContact, fx.state(t, "lead-1"))
		assert.Empty(t, fx.leads.archived)
	}

	// The final cycle lands terminal and archives the lead exactly once.
	exhaustCycle()
	require.NoError(t, fx.svc.MarkNoResponse(ctx, "lead-1", "timeout_sweep"))
	assert.Equal(t, domain.EngagementNoResponse, fx.state(t, "lead-1"))
	assert.Equal(t, []string{"lead-1"}, fx.leads.archived)

	// Terminal means terminal.
	err := fx.svc.SendFollowUp(ctx, "lead-1", "manual")
	require.Error(t, err)
}

func TestMarkNoResponseRequiresExhaustedCycle(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))

	err := fx.svc.MarkNoResponse(ctx, "lead-1", "timeout_sweep")
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "VALIDATION_FAILED", domErr.Code)
}

func TestEvaluateTimeoutsTimeline(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))

	// Nothing due before the 24h first-contact timeout.
	fx.advance(23 * time.Hour)
	moved, err := fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.False(t, moved)

	fx.advance(2 * time.Hour)
	moved, err = fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, domain.EngagementFollowUp1, fx.state(t, "lead-1"))

	// Follow-up 1 waits 48h.
	fx.advance(47 * time.Hour)
	moved, err = fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.False(t, moved)

	fx.advance(2 * time.Hour)
	moved, err = fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, domain.EngagementFollowUp2, fx.state(t, "lead-1"))

	// Follow-up 2 waits 72h, then the cycle closes.
	fx.advance(73 * time.Hour)
	moved, err = fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, domain.EngagementFirstContact, fx.state(t, "lead-1"))
}

func TestEvaluateTimeoutsHonorsPause(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.Pause(ctx, "lead-1", fx.now.Add(100*time.Hour)))

	fx.advance(48 * time.Hour)
	moved, err := fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.False(t, moved)

	// Past the pause the overdue timeout fires.
	fx.advance(60 * time.Hour)
	moved, err = fx.svc.EvaluateTimeouts(ctx, "lead-1")
	require.NoError(t, err)
	assert.True(t, moved)
}

func TestRecordInboundDeduplicatesByExternalID(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.RecordInbound(ctx, "lead-1", "msg-abc", "inbound_message"))
	assert.Equal(t, domain.EngagementResponded, fx.state(t, "lead-1"))

	// Start a new cycle, then redeliver the same provider message id.
	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "manual"))
	require.NoError(t, fx.svc.RecordInbound(ctx, "lead-1", "msg-abc", "inbound_message"))
	assert.Equal(t, domain.EngagementFirstContact, fx.state(t, "lead-1"))

	// A fresh id is processed.
	require.NoError(t, fx.svc.RecordInbound(ctx, "lead-1", "msg-def", "inbound_message"))
	assert.Equal(t, domain.EngagementResponded, fx.state(t, "lead-1"))
}

func TestSweepAdvancesDueEngagements(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))
	require.NoError(t, fx.svc.StartContact(ctx, "lead-2", "lead_created"))
	fx.advance(25 * time.Hour)
	require.NoError(t, fx.svc.StartContact(ctx, "lead-3", "lead_created"))

	advanced, err := fx.svc.Sweep(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, advanced)
	assert.Equal(t, domain.EngagementFollowUp1, fx.state(t, "lead-1"))
	assert.Equal(t, domain.EngagementFollowUp1, fx.state(t, "lead-2"))
	assert.Equal(t, domain.EngagementFirstContact, fx.state(t, "lead-3"))
}

func TestRecordInboundRedeliveryAfterFailure(t *testing.T) {
	fx := newEngagementFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.svc.StartContact(ctx, "lead-1", "lead_created"))

	fx.repo.updateErr = assert.AnError
	err := fx.svc.RecordInbound(ctx, "lead-1", "msg-retry", "inbound_message")
	require.Error(t, err)
	assert.Equal(t, domain.EngagementFirstContact, fx.state(t, "lead-1"))

	// The provider redelivers the same message id. The dedupe key was
	// released on failure, so the retry must process instead of being
	// swallowed as a duplicate.
	require.NoError(t, fx.svc.RecordInbound(ctx, "lead-1", "msg-retry", "inbound_message"))
	assert.Equal(t, domain.EngagementResponded, fx.state(t, "lead-1"))
}
