package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/festivo/ops-service/internal/collab"
	"github.com/festivo/ops-service/internal/config"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/observability"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

type fakeLeadRepo struct {
	leads   map[string]*domain.Lead
	history map[string][]lifecycle.Record[domain.LeadStatus]
	nextID  int
}

func newFakeLeadRepo() *fakeLeadRepo {
	return &fakeLeadRepo{
		leads:   make(map[string]*domain.Lead),
		history: make(map[string][]lifecycle.Record[domain.LeadStatus]),
	}
}

func (f *fakeLeadRepo) Create(_ context.Context, lead *domain.Lead) error {
	f.nextID++
	lead.ID = fmt.Sprintf("lead-%d", f.nextID)
	copied := *lead
	f.leads[lead.ID] = &copied
	return nil
}

func (f *fakeLeadRepo) GetByID(_ context.Context, id string) (*domain.Lead, error) {
	lead, ok := f.leads[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *lead
	return &copied, nil
}

func (f *fakeLeadRepo) GetByPhone(_ context.Context, phone string) (*domain.Lead, error) {
	var newest *domain.Lead
	for _, lead := range f.leads {
		if lead.PhoneNumber != phone {
			continue
		}
		if newest == nil || lead.ID > newest.ID {
			newest = lead
		}
	}
	if newest == nil {
		return nil, pgx.ErrNoRows
	}
	copied := *newest
	return &copied, nil
}

func (f *fakeLeadRepo) CurrentStatus(_ context.Context, leadID string) (domain.LeadStatus, bool, error) {
	lead, ok := f.leads[leadID]
	if !ok || lead.Status == nil {
		return "", false, nil
	}
	return *lead.Status, true, nil
}

func (f *fakeLeadRepo) ApplyStatusChange(_ context.Context, leadID string, rec *lifecycle.Record[domain.LeadStatus]) error {
	status := rec.State
	f.leads[leadID].Status = &status
	f.history[leadID] = append(f.history[leadID], *rec)
	return nil
}

func (f *fakeLeadRepo) ListStatusHistory(_ context.Context, leadID string) ([]lifecycle.Record[domain.LeadStatus], error) {
	return f.history[leadID], nil
}

// recordingReporter captures conversion reports.
type recordingReporter struct {
	reported []collab.Conversion
}

func (r *recordingReporter) Report(_ context.Context, conv collab.Conversion) error {
	r.reported = append(r.reported, conv)
	return nil
}

// recordingStarter captures outreach starts.
type recordingStarter struct {
	started []string
}

func (s *recordingStarter) StartContact(_ context.Context, leadID, _ string) error {
	s.started = append(s.started, leadID)
	return nil
}

type leadFixture struct {
	svc         *LeadService
	repo        *fakeLeadRepo
	messenger   *recordingMessenger
	conversions *recordingReporter
	starter     *recordingStarter
}

func newLeadFixture(t *testing.T) *leadFixture {
	t.Helper()
	fx := &leadFixture{
		repo:        newFakeLeadRepo(),
		messenger:   &recordingMessenger{},
		conversions: &recordingReporter{},
		starter:     &recordingStarter{},
	}
	svc, err := NewLeadService(LeadDependencies{
		Runner:      passRunner{},
		Repo:        fx.repo,
		Messenger:   fx.messenger,
		Conversions: fx.conversions,
		Dispatcher:  events.NewInMemoryDispatcher(),
		Metrics:     observability.NewMetrics(),
		Company:     config.CompanyConfig{Name: "Festivo", PhoneNumber: "+15559990000"},
	})
	require.NoError(t, err)
	svc.BindEngagements(fx.starter)
	fx.svc = svc
	return fx
}

func TestCreateFromFormNotifiesAndStartsOutreach(t *testing.T) {
	fx := newLeadFixture(t)

	lead, err := fx.svc.CreateFromForm(context.Background(), LeadIntakeInput{
		FullName:    "Dana Smith",
		PhoneNumber: "+15551234567",
		Email:       "dana@example.com",
		Marketing:   map[string]string{"gclid": "abc"},
	})
	require.NoError(t, err)
	require.NotNil(t, lead.Status)
	assert.Equal(t, domain.LeadStatusCreated, *lead.Status)
	assert.Equal(t, domain.LeadOriginForm, lead.Origin)

	// Operators got a text and the outreach loop started.
	require.Len(t, fx.messenger.sent, 1)
	assert.Contains(t, fx.messenger.sent[0], "+15559990000")
	assert.Equal(t, []string{lead.ID}, fx.starter.started)

	// The intake conversion carries the attribution metadata.
	require.Len(t, fx.conversions.reported, 1)
	assert.Equal(t, "lead_created", fx.conversions.reported[0].EventName)
	assert.Equal(t, "abc", fx.conversions.reported[0].Metadata["gclid"])
}

func TestCreateRequiresPhoneNumber(t *testing.T) {
	fx := newLeadFixture(t)

	_, err := fx.svc.CreateFromForm(context.Background(), LeadIntakeInput{FullName: "No Phone"})
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "VALIDATION_FAILED", domErr.Code)
}

func TestCallAssetCallsAreNotReportedAsConversions(t *testing.T) {
	fx := newLeadFixture(t)

	lead, err := fx.svc.CreateFromTrackingCall(context.Background(), LeadIntakeInput{
		PhoneNumber:   "+15551234567",
		CallAssetCall: true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.LeadOriginTrackingCall, lead.Origin)
	assert.Empty(t, fx.conversions.reported)

	// Booking the lead later is not reported either.
	require.NoError(t, fx.svc.SendInvoice(context.Background(), lead.ID, nil))
	require.NoError(t, fx.svc.MarkBooked(context.Background(), lead.ID, 900, "order_placed"))
	assert.Empty(t, fx.conversions.reported)
}

func TestMarkBookedReportsConversionValue(t *testing.T) {
	fx := newLeadFixture(t)
	ctx := context.Background()

	lead, err := fx.svc.CreateFromForm(ctx, LeadIntakeInput{PhoneNumber: "+15551234567"})
	require.NoError(t, err)
	require.NoError(t, fx.svc.SendInvoice(ctx, lead.ID, nil))
	require.NoError(t, fx.svc.MarkBooked(ctx, lead.ID, 1250.50, "order_placed"))

	require.Len(t, fx.conversions.reported, 2)
	booked := fx.conversions.reported[1]
	assert.Equal(t, "lead_booked", booked.EventName)
	assert.Equal(t, 1250.50, booked.Value)

	status, ok, err := fx.repo.CurrentStatus(ctx, lead.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.LeadStatusBooked, status)
}

func TestLeadLifecycleRejectsSkippingInvoice(t *testing.T) {
	fx := newLeadFixture(t)
	ctx := context.Background()

	lead, err := fx.svc.CreateFromForm(ctx, LeadIntakeInput{PhoneNumber: "+15551234567"})
	require.NoError(t, err)

	err = fx.svc.MarkBooked(ctx, lead.ID, 100, "order_placed")
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "INVALID_TRANSITION", domErr.Code)
}

func TestArchivedLeadIsFinal(t *testing.T) {
	fx := newLeadFixture(t)
	ctx := context.Background()

	lead, err := fx.svc.CreateFromForm(ctx, LeadIntakeInput{PhoneNumber: "+15551234567"})
	require.NoError(t, err)
	require.NoError(t, fx.svc.ArchiveLead(ctx, lead.ID, "engagement_exhausted"))

	err = fx.svc.SendInvoice(ctx, lead.ID, nil)
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "TERMINAL_STATE", domErr.Code)

	history, err := fx.svc.StatusHistory(ctx, lead.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "engagement_exhausted", history[1].Cause)
}

func TestGetByPhoneResolvesLead(t *testing.T) {
	fx := newLeadFixture(t)
	ctx := context.Background()

	lead, err := fx.svc.CreateFromForm(ctx, LeadIntakeInput{PhoneNumber: "+15551234567"})
	require.NoError(t, err)

	found, err := fx.svc.GetByPhone(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, lead.ID, found.ID)

	_, err = fx.svc.GetByPhone(ctx, "+15550000000")
	var domErr *apperrors.DomainError
	require.ErrorAs(t, err, &domErr)
	assert.Equal(t, "NOT_FOUND", domErr.Code)
}
