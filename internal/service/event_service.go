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

var eventGraph = lifecycle.MustGraph(
	map[domain.EventStatus][]domain.EventStatus{
		domain.EventStatusBooked:              {domain.EventStatusOnboarding, domain.EventStatusCancelled},
		domain.EventStatusOnboarding:          {domain.EventStatusAwaitingClient},
		domain.EventStatusAwaitingClient:      {domain.EventStatusConfirmed, domain.EventStatusCancelled},
		domain.EventStatusConfirmed:           {domain.EventStatusAwaitingStaff, domain.EventStatusCancelled},
		domain.EventStatusAwaitingStaff:       {domain.EventStatusOnboardingCompleted},
		domain.EventStatusOnboardingCompleted: {domain.EventStatusInProgress},
		domain.EventStatusInProgress:          {domain.EventStatusExtended, domain.EventStatusServiceCompleted},
		domain.EventStatusExtended:            {domain.EventStatusServiceCompleted},
		domain.EventStatusServiceCompleted:    {},
		domain.EventStatusCancelled:           {},
	},
	[]domain.EventStatus{domain.EventStatusServiceCompleted, domain.EventStatusCancelled},
)

// BookEventInput describes an event to book.
type BookEventInput struct {
	LeadID  string
	Date    time.Time
	EndTime time.Time
	Amount  float64
}

// EventService owns booked events and their onboarding-to-service flow.
type EventService struct {
	runner     persistence.TxRunner
	repo       repository.EventRepository
	manager    *lifecycle.Manager[domain.EventStatus]
	leads      LeadBooker
	messenger  collab.Messenger
	emailer    collab.Emailer
	composer   collab.CopyComposer
	docs       collab.DocumentGenerator
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	company    config.CompanyConfig
	logger     *zap.Logger
}

// EventDependencies bundles collaborators for the event service.
type EventDependencies struct {
	Runner     persistence.TxRunner
	Repo       repository.EventRepository
	Leads      LeadBooker
	Messenger  collab.Messenger
	Emailer    collab.Emailer
	Composer   collab.CopyComposer
	Docs       collab.DocumentGenerator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Company    config.CompanyConfig
	Logger     *zap.Logger
}

// NewEventService constructs the service and registers its hooks.
func NewEventService(deps EventDependencies) (*EventService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &EventService{
		runner:     deps.Runner,
		repo:       deps.Repo,
		leads:      deps.Leads,
		messenger:  deps.Messenger,
		emailer:    deps.Emailer,
		composer:   deps.Composer,
		docs:       deps.Docs,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		company:    deps.Company,
		logger:     logger,
	}
	hooks := map[domain.EventStatus]lifecycle.Hook[domain.EventStatus]{
		domain.EventStatusBooked: {
			Next: []domain.EventStatus{domain.EventStatusOnboarding},
			Run:  s.onBooked,
		},
		domain.EventStatusConfirmed:        {Run: s.onConfirmed},
		domain.EventStatusServiceCompleted: {Run: s.onServiceCompleted},
	}
	manager, err := lifecycle.NewManager[domain.EventStatus](
		"event",
		eventGraph,
		repository.EventStateStore{Repo: deps.Repo},
		hooks,
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// Book creates the event and transitions it into Booked, which cascades
// into Onboarding and books the parent lead, all in one unit of work.
func (s *EventService) Book(ctx context.Context, input BookEventInput) (*domain.Event, error) {
	if !input.Date.Before(input.EndTime) {
		return nil, apperrors.NewValidationError("event start must precede its end", nil)
	}
	ev := &domain.Event{
		LeadID:  input.LeadID,
		Date:    input.Date.UTC(),
		EndTime: input.EndTime.UTC(),
		Amount:  input.Amount,
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, ev); err != nil {
			return err
		}
		_, err := s.manager.TransitionTo(ctx, ev.ID, domain.EventStatusBooked, lifecycle.Context{Cause: "event_booked"})
		return err
	})
	if err != nil {
		return nil, mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("event", string(domain.EventStatusBooked))
		s.publishStatus(ctx, ev.ID, "", domain.EventStatusOnboarding, "event_booked")
	}
	return s.Get(ctx, ev.ID)
}

// Get fetches an event.
func (s *EventService) Get(ctx context.Context, eventID string) (*domain.Event, error) {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("event", map[string]any{"event_id": eventID})
		}
		return nil, apperrors.MapError(err)
	}
	return ev, nil
}

// StatusHistory returns the event's status history, oldest first.
func (s *EventService) StatusHistory(ctx context.Context, eventID string) ([]lifecycle.Record[domain.EventStatus], error) {
	recs, err := s.repo.ListStatusHistory(ctx, eventID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return recs, nil
}

// Transition moves the event to target along its graph.
func (s *EventService) Transition(ctx context.Context, eventID string, target domain.EventStatus, actor *string) error {
	return s.transition(ctx, eventID, target, lifecycle.Context{Actor: actor, Cause: "status_update"})
}

// Confirm records the client's confirmation.
func (s *EventService) Confirm(ctx context.Context, eventID string, actor *string) error {
	return s.transition(ctx, eventID, domain.EventStatusConfirmed, lifecycle.Context{Actor: actor, Cause: "client_confirmed"})
}

// StartService marks the event as running.
func (s *EventService) StartService(ctx context.Context, eventID string, actor *string) error {
	return s.transition(ctx, eventID, domain.EventStatusInProgress, lifecycle.Context{Actor: actor, Cause: "service_started"})
}

// Extend marks the event as running past its planned end.
func (s *EventService) Extend(ctx context.Context, eventID string, actor *string) error {
	return s.transition(ctx, eventID, domain.EventStatusExtended, lifecycle.Context{Actor: actor, Cause: "service_extended"})
}

// CompleteService closes the event out.
func (s *EventService) CompleteService(ctx context.Context, eventID string, actor *string) error {
	return s.transition(ctx, eventID, domain.EventStatusServiceCompleted, lifecycle.Context{Actor: actor, Cause: "service_completed"})
}

// Cancel aborts the event from any state its graph allows.
func (s *EventService) Cancel(ctx context.Context, eventID string, actor *string, reason string) error {
	return s.transition(ctx, eventID, domain.EventStatusCancelled, lifecycle.Context{
		Actor: actor,
		Cause: "event_cancelled",
		Meta:  map[string]any{"reason": reason},
	})
}

func (s *EventService) transition(ctx context.Context, eventID string, target domain.EventStatus, tc lifecycle.Context) error {
	var from domain.EventStatus
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, _, err := s.manager.CurrentState(ctx, eventID)
		if err != nil {
			return err
		}
		from = current
		_, err = s.manager.TransitionTo(ctx, eventID, target, tc)
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("event", "INVALID_TRANSITION")
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("event", string(target))
		s.publishStatus(ctx, eventID, from, target, tc.Cause)
	}
	return nil
}

// onBooked books the parent lead with the event amount, texts the
// customer, and cascades into onboarding.
func (s *EventService) onBooked(ctx context.Context, eventID string, tc lifecycle.Context) error {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if s.leads != nil {
		if err := s.leads.MarkBooked(ctx, ev.LeadID, ev.Amount, "event_booked"); err != nil {
			if !isTransitionRejection(err) {
				return err
			}
			s.logger.Debug("lead already booked", zap.String("lead_id", ev.LeadID))
		}
	}
	s.sendText(ctx, ev, fmt.Sprintf("Your event on %s is booked! We'll be in touch about the details.", ev.Date.Format("Jan 2")))
	_, err = s.manager.TransitionTo(ctx, eventID, domain.EventStatusOnboarding, lifecycle.Context{Cause: "event_booked"})
	return err
}

// onConfirmed renders the event summary and sends it to the customer.
func (s *EventService) onConfirmed(ctx context.Context, eventID string, tc lifecycle.Context) error {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	if s.docs != nil {
		url, err := s.docs.EventSummary(ctx, ev)
		if err != nil {
			s.logger.Warn("event summary generation failed", zap.String("event_id", eventID), zap.Error(err))
		} else {
			s.sendText(ctx, ev, fmt.Sprintf("Your event is confirmed. Details: %s", url))
		}
	}
	return nil
}

// onServiceCompleted asks the customer for a review.
func (s *EventService) onServiceCompleted(ctx context.Context, eventID string, tc lifecycle.Context) error {
	ev, err := s.repo.GetByID(ctx, eventID)
	if err != nil {
		return err
	}
	body := s.composeWithFallback(ctx,
		fmt.Sprintf("Write a short thank-you message from %s after an event, asking for a review at %s.", s.company.Name, s.company.ReviewLink),
		fmt.Sprintf("Thanks for celebrating with %s! We'd love a review: %s", s.company.Name, s.company.ReviewLink))
	s.sendText(ctx, ev, body)
	return nil
}

func (s *EventService) sendText(ctx context.Context, ev *domain.Event, body string) {
	if s.messenger == nil || s.leads == nil {
		return
	}
	lead, err := s.leads.Get(ctx, ev.LeadID)
	if err != nil {
		s.logger.Warn("event text skipped", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}
	if _, err := s.messenger.SendText(ctx, lead.PhoneNumber, body); err != nil {
		s.logger.Warn("event text failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

func (s *EventService) composeWithFallback(ctx context.Context, prompt, fallback string) string {
	if s.composer == nil {
		return fallback
	}
	text, err := s.composer.Compose(ctx, prompt)
	if err != nil || text == "" {
		return fallback
	}
	return text
}

func (s *EventService) publishStatus(ctx context.Context, eventID string, from, to domain.EventStatus, cause string) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventBookingStatusChanged,
		EntityID: eventID,
		Payload: events.StatusChangedPayload{
			OldStatus: string(from),
			NewStatus: string(to),
			Cause:     cause,
		},
	})
}
