package service

import (
	"context"
	"fmt"
	"time"

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

const (
	// MaxFollowUps is the number of follow-up messages sent after the first
	// contact before an outreach cycle is considered exhausted.
	MaxFollowUps = 2
	// MaxRetryCycles bounds how many full outreach cycles run before the
	// engagement gives up for good.
	MaxRetryCycles = 3
)

// engagementTimeouts maps each waiting state to how long the engagement
// sits there before the sweeper advances it.
var engagementTimeouts = map[domain.EngagementState]time.Duration{
	domain.EngagementFirstContact: 24 * time.Hour,
	domain.EngagementFollowUp1:    48 * time.Hour,
	domain.EngagementFollowUp2:    72 * time.Hour,
}

var engagementGraph = lifecycle.MustGraph(
	map[domain.EngagementState][]domain.EngagementState{
		domain.EngagementIdle:         {domain.EngagementFirstContact},
		domain.EngagementFirstContact: {domain.EngagementFollowUp1, domain.EngagementResponded},
		domain.EngagementFollowUp1:    {domain.EngagementFollowUp2, domain.EngagementResponded},
		domain.EngagementFollowUp2:    {domain.EngagementFirstContact, domain.EngagementResponded, domain.EngagementNoResponse},
		domain.EngagementResponded:    {domain.EngagementFirstContact},
		domain.EngagementNoResponse:   {},
	},
	[]domain.EngagementState{domain.EngagementNoResponse},
)

// LeadDirectory is the slice of lead behavior the engagement loop needs:
// archiving a lead whose engagement exhausted its retry budget, and
// resolving the phone number outreach goes to. The bound implementation is
// LeadService, wired after construction to break the dependency cycle.
type LeadDirectory interface {
	ArchiveLead(ctx context.Context, leadID, cause string) error
	ContactPhone(ctx context.Context, leadID string) (string, error)
}

// EngagementService drives the calendar-timeout outreach loop attached to
// every lead. One engagement exists per lead; all state changes append to
// its history.
type EngagementService struct {
	runner     persistence.TxRunner
	repo       repository.EngagementRepository
	manager    *lifecycle.Manager[domain.EngagementState]
	messenger  collab.Messenger
	composer   collab.CopyComposer
	idem       persistence.IdempotencyGuard
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	leads      LeadDirectory
	company    config.CompanyConfig
	now        func() time.Time
	logger     *zap.Logger
}

// EngagementDependencies bundles collaborators for the engagement service.
type EngagementDependencies struct {
	Runner      persistence.TxRunner
	Repo        repository.EngagementRepository
	Messenger   collab.Messenger
	Composer    collab.CopyComposer
	Idempotency persistence.IdempotencyGuard
	Dispatcher  events.Dispatcher
	Metrics     *observability.Metrics
	Company     config.CompanyConfig
	Clock       func() time.Time
	Logger      *zap.Logger
}

// NewEngagementService constructs the service.
func NewEngagementService(deps EngagementDependencies) (*EngagementService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &EngagementService{
		runner:     deps.Runner,
		repo:       deps.Repo,
		messenger:  deps.Messenger,
		composer:   deps.Composer,
		idem:       deps.Idempotency,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		company:    deps.Company,
		now:        clock,
		logger:     logger,
	}
	manager, err := lifecycle.NewManager[domain.EngagementState](
		"engagement",
		engagementGraph,
		repository.EngagementStateStore{Repo: deps.Repo},
		nil,
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// BindLeads wires the lead directory after both services exist.
func (s *EngagementService) BindLeads(leads LeadDirectory) {
	s.leads = leads
}

// Get returns the lead's engagement, creating the idle row on first access.
func (s *EngagementService) Get(ctx context.Context, leadID string) (*domain.Engagement, error) {
	eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return eng, nil
}

// History returns the engagement's state history, oldest first.
func (s *EngagementService) History(ctx context.Context, leadID string) ([]lifecycle.Record[domain.EngagementState], error) {
	recs, err := s.repo.ListHistory(ctx, leadID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return recs, nil
}

// StartContact begins an outreach cycle: the engagement moves to
// FirstContact and the follow-up counter resets. Legal from Idle, from
// Responded (a new cycle after a reply), and from FollowUp2 via the retry
// path in MarkNoResponse.
func (s *EngagementService) StartContact(ctx context.Context, leadID, triggeredBy string) error {
	var from domain.EngagementState
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
		if err != nil {
			return err
		}
		current, _, err := s.manager.CurrentState(ctx, leadID)
		if err != nil {
			return err
		}
		from = current

		now := s.now().UTC()
		eng.LastContactedAt = &now
		eng.FollowUpAttempts = 0
		if err := s.repo.Update(ctx, eng); err != nil {
			return err
		}
		_, err = s.manager.TransitionTo(ctx, leadID, domain.EngagementFirstContact, lifecycle.Context{
			Cause: triggeredBy,
			Meta:  map[string]any{"follow_up_attempts": 0, "retry_cycles": eng.RetryCycles},
		})
		return err
	})
	if err != nil {
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("engagement", string(domain.EngagementFirstContact))
		s.publishAdvanced(ctx, leadID, from, domain.EngagementFirstContact, 0, triggeredBy)
	}
	return nil
}

// SendFollowUp sends the next follow-up message and advances the state.
// Rejected once the follow-up budget for the current cycle is spent.
func (s *EngagementService) SendFollowUp(ctx context.Context, leadID, triggeredBy string) error {
	var (
		from, target domain.EngagementState
		attempts     int
		eng          *domain.Engagement
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		eng, err = s.repo.GetOrCreateByLead(ctx, leadID)
		if err != nil {
			return err
		}
		if eng.FollowUpAttempts >= MaxFollowUps {
			return apperrors.NewValidationError("follow-up budget exhausted for this cycle",
				map[string]any{"lead_id": leadID, "attempts": eng.FollowUpAttempts})
		}
		current, ok, err := s.manager.CurrentState(ctx, leadID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewValidationError("engagement has no active contact cycle",
				map[string]any{"lead_id": leadID})
		}
		from = current

		target = domain.EngagementFollowUp1
		if current == domain.EngagementFollowUp1 {
			target = domain.EngagementFollowUp2
		}
		now := s.now().UTC()
		eng.LastContactedAt = &now
		eng.FollowUpAttempts++
		attempts = eng.FollowUpAttempts
		if err := s.repo.Update(ctx, eng); err != nil {
			return err
		}
		_, err = s.manager.TransitionTo(ctx, leadID, target, lifecycle.Context{
			Cause: triggeredBy,
			Meta:  map[string]any{"follow_up_attempts": eng.FollowUpAttempts, "retry_cycles": eng.RetryCycles},
		})
		return err
	})
	if err != nil {
		return mapTransitionErr(err)
	}

	s.sendFollowUpText(ctx, leadID, attempts)
	if committed(ctx) {
		s.metrics.RecordTransition("engagement", string(target))
		s.publishAdvanced(ctx, leadID, from, target, attempts, triggeredBy)
	}
	return nil
}

// RecordResponse marks the lead as having replied: counters reset, any
// pause clears, and the engagement rests in Responded until the next
// outreach cycle. Calling it while already in Responded is a no-op.
func (s *EngagementService) RecordResponse(ctx context.Context, leadID, source string) error {
	var (
		from    domain.EngagementState
		applied bool
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
		if err != nil {
			return err
		}
		current, ok, err := s.manager.CurrentState(ctx, leadID)
		if err != nil {
			return err
		}
		if ok && current == domain.EngagementResponded {
			return nil
		}
		from = current

		now := s.now().UTC()
		eng.LastRespondedAt = &now
		eng.FollowUpAttempts = 0
		eng.RetryCycles = 0
		eng.PausedUntil = nil
		if err := s.repo.Update(ctx, eng); err != nil {
			return err
		}
		if !ok || current == domain.EngagementIdle || current == domain.EngagementNoResponse {
			// A reply before any outreach, or after the loop gave up, is
			// recorded on the row without a state change.
			return nil
		}
		if _, err := s.manager.TransitionTo(ctx, leadID, domain.EngagementResponded, lifecycle.Context{
			Cause: source,
		}); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return mapTransitionErr(err)
	}
	if applied && committed(ctx) {
		s.metrics.RecordTransition("engagement", string(domain.EngagementResponded))
		s.publishAdvanced(ctx, leadID, from, domain.EngagementResponded, 0, source)
	}
	return nil
}

// MarkNoResponse closes an exhausted outreach cycle. Before the retry
// budget runs out the engagement loops back to FirstContact for another
// cycle; on the final cycle it lands in terminal NoResponse and the parent
// lead is archived in the same unit of work.
func (s *EngagementService) MarkNoResponse(ctx context.Context, leadID, triggeredBy string) error {
	var (
		from, target domain.EngagementState
		cycles       int
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
		if err != nil {
			return err
		}
		current, ok, err := s.manager.CurrentState(ctx, leadID)
		if err != nil {
			return err
		}
		if !ok || current != domain.EngagementFollowUp2 {
			return apperrors.NewValidationError("engagement cycle is not exhausted",
				map[string]any{"lead_id": leadID, "state": string(current)})
		}
		from = current

		eng.RetryCycles++
		cycles = eng.RetryCycles
		eng.FollowUpAttempts = 0
		tc := lifecycle.Context{
			Cause: triggeredBy,
			Meta:  map[string]any{"follow_up_attempts": 0, "retry_cycles": eng.RetryCycles},
		}
		if eng.RetryCycles >= MaxRetryCycles {
			target = domain.EngagementNoResponse
			if err := s.repo.Update(ctx, eng); err != nil {
				return err
			}
			if _, err := s.manager.TransitionTo(ctx, leadID, target, tc); err != nil {
				return err
			}
			if s.leads != nil {
				return s.leads.ArchiveLead(ctx, leadID, "engagement_exhausted")
			}
			return nil
		}

		target = domain.EngagementFirstContact
		now := s.now().UTC()
		eng.LastContactedAt = &now
		if err := s.repo.Update(ctx, eng); err != nil {
			return err
		}
		_, err = s.manager.TransitionTo(ctx, leadID, target, tc)
		return err
	})
	if err != nil {
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("engagement", string(target))
		s.publishAdvanced(ctx, leadID, from, target, 0, triggeredBy)
	}
	if target == domain.EngagementNoResponse {
		s.logger.Info("engagement exhausted, lead archived",
			zap.String("lead_id", leadID), zap.Int("retry_cycles", cycles))
	}
	return nil
}

// Pause suspends automatic advancement until the given time.
func (s *EngagementService) Pause(ctx context.Context, leadID string, until time.Time) error {
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
		if err != nil {
			return err
		}
		u := until.UTC()
		eng.PausedUntil = &u
		return s.repo.Update(ctx, eng)
	})
	return apperrors.MapError(err)
}

// RecordInbound handles an inbound message attributed to the lead. The
// provider message id deduplicates webhook redeliveries; the first delivery
// clears any pause and records the response. When processing fails the key
// is released again so the provider's redelivery gets another attempt.
func (s *EngagementService) RecordInbound(ctx context.Context, leadID, externalID, source string) error {
	marked := false
	if externalID != "" && s.idem != nil {
		first, err := s.idem.FirstSeen(ctx, "inbound:"+externalID)
		if err != nil {
			s.logger.Warn("idempotency check failed, processing anyway",
				zap.String("external_id", externalID), zap.Error(err))
		} else if !first {
			s.logger.Debug("duplicate inbound message ignored",
				zap.String("external_id", externalID), zap.String("lead_id", leadID))
			return nil
		} else {
			marked = true
		}
	}
	if err := s.RecordResponse(ctx, leadID, source); err != nil {
		if marked {
			if ferr := s.idem.Forget(ctx, "inbound:"+externalID); ferr != nil {
				s.logger.Warn("idempotency key release failed",
					zap.String("external_id", externalID), zap.Error(ferr))
			}
		}
		return err
	}
	return nil
}

// EvaluateTimeouts advances one engagement whose waiting state has
// outlived its timeout. It reports whether a transition happened.
func (s *EngagementService) EvaluateTimeouts(ctx context.Context, leadID string) (bool, error) {
	eng, err := s.repo.GetOrCreateByLead(ctx, leadID)
	if err != nil {
		return false, apperrors.MapError(err)
	}
	now := s.now().UTC()
	if eng.PausedUntil != nil && eng.PausedUntil.After(now) {
		return false, nil
	}
	timeout, waiting := engagementTimeouts[eng.State]
	if !waiting || eng.LastContactedAt == nil {
		return false, nil
	}
	if now.Before(eng.LastContactedAt.Add(timeout)) {
		return false, nil
	}

	if eng.State == domain.EngagementFollowUp2 {
		if err := s.MarkNoResponse(ctx, leadID, "timeout_sweep"); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := s.SendFollowUp(ctx, leadID, "timeout_sweep"); err != nil {
		return false, err
	}
	return true, nil
}

// Sweep evaluates timeouts for due engagements in bounded batches. One
// failing engagement does not stop the sweep.
func (s *EngagementService) Sweep(ctx context.Context, limit int) (int, error) {
	leadIDs, err := s.repo.ListDueCandidates(ctx, limit)
	if err != nil {
		return 0, apperrors.MapError(err)
	}
	advanced := 0
	for _, leadID := range leadIDs {
		moved, err := s.EvaluateTimeouts(ctx, leadID)
		if err != nil {
			s.logger.Warn("engagement sweep entry failed",
				zap.String("lead_id", leadID), zap.Error(err))
			continue
		}
		if moved {
			advanced++
		}
	}
	return advanced, nil
}

func (s *EngagementService) sendFollowUpText(ctx context.Context, leadID string, attempt int) {
	if s.messenger == nil || s.leads == nil {
		return
	}
	phone, err := s.leads.ContactPhone(ctx, leadID)
	if err != nil {
		s.logger.Warn("follow-up text skipped", zap.String("lead_id", leadID), zap.Error(err))
		return
	}
	body := s.composeWithFallback(ctx,
		fmt.Sprintf("Write a short friendly follow-up message number %d from %s checking in about the customer's event inquiry.", attempt, s.company.Name),
		fmt.Sprintf("Hi! Just following up on your inquiry with %s. Let us know if you have any questions.", s.company.Name))
	if _, err := s.messenger.SendText(ctx, phone, body); err != nil {
		s.logger.Warn("follow-up text failed", zap.String("lead_id", leadID), zap.Error(err))
	}
}

func (s *EngagementService) composeWithFallback(ctx context.Context, prompt, fallback string) string {
	if s.composer == nil {
		return fallback
	}
	text, err := s.composer.Compose(ctx, prompt)
	if err != nil || text == "" {
		return fallback
	}
	return text
}

func (s *EngagementService) publishAdvanced(ctx context.Context, leadID string, from, to domain.EngagementState, attempts int, triggeredBy string) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventEngagementAdvanced,
		EntityID: leadID,
		Payload: events.EngagementAdvancedPayload{
			FromState:        from,
			ToState:          to,
			FollowUpAttempts: attempts,
			TriggeredBy:      triggeredBy,
		},
	})
}
