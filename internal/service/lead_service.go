package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/collab"
	"github.com/festivo/ops-service/internal/config"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	"github.com/festivo/ops-service/internal/repository"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

var leadGraph = lifecycle.MustGraph(
	map[domain.LeadStatus][]domain.LeadStatus{
		domain.LeadStatusCreated:     {domain.LeadStatusInvoiceSent, domain.LeadStatusArchived},
		domain.LeadStatusInvoiceSent: {domain.LeadStatusBooked, domain.LeadStatusArchived},
		domain.LeadStatusBooked:      {domain.LeadStatusArchived},
		domain.LeadStatusArchived:    {},
	},
	[]domain.LeadStatus{domain.LeadStatusArchived},
)

// EngagementStarter begins the outreach loop for a freshly created lead.
// Bound to EngagementService after construction.
type EngagementStarter interface {
	StartContact(ctx context.Context, leadID, triggeredBy string) error
}

// LeadIntakeInput carries the fields common to both intake channels.
type LeadIntakeInput struct {
	FullName    string
	PhoneNumber string
	Email       string
	Message     string
	Marketing   map[string]string
	ExternalID  *string
	// CallAssetCall marks tracking calls placed through an ad call asset;
	// those are already counted by the ad platform and must not be
	// reported again.
	CallAssetCall bool
}

// LeadService owns lead intake and the lead lifecycle.
type LeadService struct {
	runner      persistence.TxRunner
	repo        repository.LeadRepository
	manager     *lifecycle.Manager[domain.LeadStatus]
	messenger   collab.Messenger
	conversions collab.ConversionReporter
	dispatcher  events.Dispatcher
	metrics     *observability.Metrics
	engagements EngagementStarter
	company     config.CompanyConfig
	logger      *zap.Logger
}

// LeadDependencies bundles collaborators for the lead service.
type LeadDependencies struct {
	Runner      persistence.TxRunner
	Repo        repository.LeadRepository
	Messenger   collab.Messenger
	Conversions collab.ConversionReporter
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Company     config.CompanyConfig
	Logger      *zap.Logger
}

// NewLeadService constructs the service and registers its lifecycle hooks.
func NewLeadService(deps LeadDependencies) (*LeadService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &LeadService{
		runner:      deps.Runner,
		repo:        deps.Repo,
		messenger:   deps.Messenger,
		conversions: deps.Conversions,
		dispatcher:  deps.Dispatcher,
		metrics:     deps.Metrics,
		company:     deps.Company,
		logger:      logger,
	}
	hooks := map[domain.LeadStatus]lifecycle.Hook[domain.LeadStatus]{
		domain.LeadStatusCreated: {Run: s.onCreated},
		domain.LeadStatusBooked:  {Run: s.onBooked},
	}
	manager, err := lifecycle.NewManager[domain.LeadStatus](
		"lead",
		leadGraph,
		repository.LeadStateStore{Repo: deps.Repo},
		hooks,
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// BindEngagements wires the engagement starter after both services exist.
func (s *LeadService) BindEngagements(starter EngagementStarter) {
	s.engagements = starter
}

// CreateFromForm ingests a website form submission.
func (s *LeadService) CreateFromForm(ctx context.Context, input LeadIntakeInput) (*domain.Lead, error) {
	return s.create(ctx, input, domain.LeadOriginForm, "web_form")
}

// CreateFromTrackingCall ingests a call registered by the phone tracking
// provider.
func (s *LeadService) CreateFromTrackingCall(ctx context.Context, input LeadIntakeInput) (*domain.Lead, error) {
	return s.create(ctx, input, domain.LeadOriginTrackingCall, "tracking_call")
}

func (s *LeadService) create(ctx context.Context, input LeadIntakeInput, origin domain.LeadOrigin, cause string) (*domain.Lead, error) {
	if input.PhoneNumber == "" {
		return nil, apperrors.NewValidationError("phone number is required", nil)
	}
	lead := &domain.Lead{
		FullName:      input.FullName,
		PhoneNumber:   input.PhoneNumber,
		Email:         input.Email,
		Message:       input.Message,
		Origin:        origin,
		Marketing:     input.Marketing,
		ExternalID:    input.ExternalID,
		CallAssetCall: input.CallAssetCall,
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, lead); err != nil {
			return err
		}
		_, err := s.manager.TransitionTo(ctx, lead.ID, domain.LeadStatusCreated, lifecycle.Context{Cause: cause})
		return err
	})
	if err != nil {
		return nil, mapTransitionErr(err)
	}
	status := domain.LeadStatusCreated
	lead.Status = &status

	if committed(ctx) {
		s.metrics.RecordTransition("lead", string(domain.LeadStatusCreated))
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventLeadCreated,
			EntityID: lead.ID,
			Payload: events.LeadCreatedPayload{
				FullName:    lead.FullName,
				PhoneNumber: lead.PhoneNumber,
				Origin:      lead.Origin,
			},
		})
	}
	return lead, nil
}

// Get fetches a lead.
func (s *LeadService) Get(ctx context.Context, leadID string) (*domain.Lead, error) {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("lead", map[string]any{"lead_id": leadID})
		}
		return nil, apperrors.MapError(err)
	}
	return lead, nil
}

// GetByPhone resolves the newest lead for a phone number.
func (s *LeadService) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	lead, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("lead", map[string]any{"phone_number": phone})
		}
		return nil, apperrors.MapError(err)
	}
	return lead, nil
}

// ContactPhone implements the engagement service's LeadDirectory.
func (s *LeadService) ContactPhone(ctx context.Context, leadID string) (string, error) {
	lead, err := s.Get(ctx, leadID)
	if err != nil {
		return "", err
	}
	return lead.PhoneNumber, nil
}

// SendInvoice marks the lead as invoiced.
func (s *LeadService) SendInvoice(ctx context.Context, leadID string, actor *string) error {
	return s.transition(ctx, leadID, domain.LeadStatusInvoiceSent, lifecycle.Context{Actor: actor, Cause: "invoice_sent"})
}

// MarkBooked moves the lead to booked, recording the booked value for
// conversion reporting.
func (s *LeadService) MarkBooked(ctx context.Context, leadID string, value float64, cause string) error {
	return s.transition(ctx, leadID, domain.LeadStatusBooked, lifecycle.Context{
		Cause: cause,
		Meta:  map[string]any{"value": value},
	})
}

// ArchiveLead closes out the lead. Implements the engagement service's
// LeadDirectory; also reachable directly by operators.
func (s *LeadService) ArchiveLead(ctx context.Context, leadID, cause string) error {
	return s.transition(ctx, leadID, domain.LeadStatusArchived, lifecycle.Context{Cause: cause})
}

// StatusHistory returns the lead's status history, oldest first.
func (s *LeadService) StatusHistory(ctx context.Context, leadID string) ([]lifecycle.Record[domain.LeadStatus], error) {
	recs, err := s.repo.ListStatusHistory(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return recs, nil
}

func (s *LeadService) transition(ctx context.Context, leadID string, target domain.LeadStatus, tc lifecycle.Context) error {
	var from domain.LeadStatus
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, _, err := s.manager.CurrentState(ctx, leadID)
		if err != nil {
			return err
		}
		from = current
		_, err = s.manager.TransitionTo(ctx, leadID, target, tc)
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("lead", "INVALID_TRANSITION")
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("lead", string(target))
		publishEvent(ctx, s.dispatcher, events.Event{
			Type:     events.EventLeadStatusChanged,
			EntityID: leadID,
			Payload: events.StatusChangedPayload{
				OldStatus: string(from),
				NewStatus: string(target),
				Cause:     tc.Cause,
			},
		})
	}
	return nil
}

// onCreated runs inside the intake unit of work: it notifies operators,
// reports the lead conversion, and kicks off the outreach loop.
// Collaborator failures are logged, never propagated; the engagement start
// is part of the transaction and does roll the intake back on failure.
func (s *LeadService) onCreated(ctx context.Context, leadID string, tc lifecycle.Context) error {
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}

	if s.messenger != nil && s.company.PhoneNumber != "" {
		body := fmt.Sprintf("New lead: %s (%s) via %s", lead.FullName, lead.PhoneNumber, lead.Origin)
		if _, err := s.messenger.SendText(ctx, s.company.PhoneNumber, body); err != nil {
			s.logger.Warn("operator notification failed", zap.String("lead_id", leadID), zap.Error(err))
		}
	}

	if s.conversions != nil && !lead.CallAssetCall {
		conv := collab.Conversion{
			EventName:   "lead_created",
			LeadID:      lead.ID,
			PhoneNumber: lead.PhoneNumber,
			Metadata:    lead.Marketing,
			OccurredAt:  time.Now().UTC(),
		}
		if lead.ExternalID != nil {
			conv.ExternalID = *lead.ExternalID
		}
		if err := s.conversions.Report(ctx, conv); err != nil {
			s.logger.Warn("lead conversion report failed", zap.String("lead_id", leadID), zap.Error(err))
		}
	}

	if s.engagements != nil {
		return s.engagements.StartContact(ctx, leadID, "lead_created")
	}
	return nil
}

// onBooked reports the booked conversion with its monetary value.
func (s *LeadService) onBooked(ctx context.Context, leadID string, tc lifecycle.Context) error {
	if s.conversions == nil {
		return nil
	}
	lead, err := s.repo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	if lead.CallAssetCall {
		return nil
	}
	value, _ := tc.Meta["value"].(float64)
	conv := collab.Conversion{
		EventName:   "lead_booked",
		LeadID:      lead.ID,
		PhoneNumber: lead.PhoneNumber,
		Value:       value,
		Metadata:    lead.Marketing,
		OccurredAt:  time.Now().UTC(),
	}
	if lead.ExternalID != nil {
		conv.ExternalID = *lead.ExternalID
	}
	if err := s.conversions.Report(ctx, conv); err != nil {
		s.logger.Warn("booked conversion report failed", zap.String("lead_id", leadID), zap.Error(err))
	}
	return nil
}
