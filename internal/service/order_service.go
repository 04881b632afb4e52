package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
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

// orderDeliveryGraph is the flow for orders the company delivers and later
// picks back up.
var orderDeliveryGraph = lifecycle.MustGraph(
	map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPlaced:              {domain.OrderStatusAwaitingPreparation},
		domain.OrderStatusAwaitingPreparation: {domain.OrderStatusReadyForDispatch},
		domain.OrderStatusReadyForDispatch:    {domain.OrderStatusDispatched},
		domain.OrderStatusDispatched:          {domain.OrderStatusDelivered},
		domain.OrderStatusDelivered:           {domain.OrderStatusPendingPickUp},
		domain.OrderStatusPendingPickUp:       {domain.OrderStatusPickedUp},
		domain.OrderStatusPickedUp:            {domain.OrderStatusFinalized},
		domain.OrderStatusFinalized:           {},
		domain.OrderStatusCancelled:           {},
	},
	[]domain.OrderStatus{domain.OrderStatusFinalized, domain.OrderStatusCancelled},
)

// orderPickupGraph is the flow for orders the customer collects and
// returns themselves.
var orderPickupGraph = lifecycle.MustGraph(
	map[domain.OrderStatus][]domain.OrderStatus{
		domain.OrderStatusPlaced:              {domain.OrderStatusAwaitingPreparation},
		domain.OrderStatusAwaitingPreparation: {domain.OrderStatusReadyForDispatch},
		domain.OrderStatusReadyForDispatch:    {domain.OrderStatusDispatched},
		domain.OrderStatusDispatched:          {domain.OrderStatusCustomerPickedUp},
		domain.OrderStatusCustomerPickedUp:    {domain.OrderStatusCustomerReturned},
		domain.OrderStatusCustomerReturned:    {domain.OrderStatusFinalized},
		domain.OrderStatusFinalized:           {},
		domain.OrderStatusCancelled:           {},
	},
	[]domain.OrderStatus{domain.OrderStatusFinalized, domain.OrderStatusCancelled},
)

// cancellableStatuses lists the states an order may be cancelled from.
// Cancellation is an out-of-band move, not a graph edge.
var cancellableStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPlaced:              {},
	domain.OrderStatusAwaitingPreparation: {},
	domain.OrderStatusReadyForDispatch:    {},
	domain.OrderStatusDispatched:          {},
}

// InventoryLedger is the slice of inventory behavior orders need.
type InventoryLedger interface {
	GetItem(ctx context.Context, itemID string) (*domain.Item, error)
	Reserve(ctx context.Context, orderID, itemID string, quantity int, start, end time.Time) error
	CancelReservation(ctx context.Context, orderID, itemID string) error
	ReturnItems(ctx context.Context, orderID, itemID string, targetDate time.Time) error
}

// TaskCreator creates warehouse tasks for an order.
type TaskCreator interface {
	CreateTask(ctx context.Context, orderID string, kind domain.OrderTaskKind, assignee *string) (*domain.OrderTask, error)
}

// LeadBooker is the slice of lead behavior order placement cascades into.
type LeadBooker interface {
	MarkBooked(ctx context.Context, leadID string, value float64, cause string) error
	Get(ctx context.Context, leadID string) (*domain.Lead, error)
}

// PlaceOrderInput describes a rental order to place.
type PlaceOrderInput struct {
	LeadID      string
	StartDate   time.Time
	EndDate     time.Time
	HasDelivery bool
	Lines       []OrderLine
}

// OrderLine is one requested item with a unit count.
type OrderLine struct {
	ItemID string
	Units  int
}

// OrderService owns rental orders and their lifecycle. Each order follows
// one of two flows chosen at placement by its delivery mode.
type OrderService struct {
	runner          persistence.TxRunner
	repo            repository.OrderRepository
	inventory       InventoryLedger
	tasks           TaskCreator
	leads           LeadBooker
	emailer         collab.Emailer
	messenger       collab.Messenger
	composer        collab.CopyComposer
	docs            collab.DocumentGenerator
	dispatcher      events.Dispatcher
	metrics         *observability.Metrics
	company         config.CompanyConfig
	deliveryManager *lifecycle.Manager[domain.OrderStatus]
	pickupManager   *lifecycle.Manager[domain.OrderStatus]
	logger          *zap.Logger
}

// OrderDependencies bundles collaborators for the order service.
type OrderDependencies struct {
	Runner     persistence.TxRunner
	Repo       repository.OrderRepository
	Inventory  InventoryLedger
	Tasks      TaskCreator
	Leads      LeadBooker
	Emailer    collab.Emailer
	Messenger  collab.Messenger
	Composer   collab.CopyComposer
	Docs       collab.DocumentGenerator
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Company    config.CompanyConfig
	Logger     *zap.Logger
}

// NewOrderService constructs the service and registers per-flow hooks.
func NewOrderService(deps OrderDependencies) (*OrderService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OrderService{
		runner:     deps.Runner,
		repo:       deps.Repo,
		inventory:  deps.Inventory,
		tasks:      deps.Tasks,
		leads:      deps.Leads,
		emailer:    deps.Emailer,
		messenger:  deps.Messenger,
		composer:   deps.Composer,
		docs:       deps.Docs,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		company:    deps.Company,
		logger:     logger,
	}

	store := repository.OrderStateStore{Repo: deps.Repo}
	sharedHooks := map[domain.OrderStatus]lifecycle.Hook[domain.OrderStatus]{
		domain.OrderStatusPlaced: {
			Next: []domain.OrderStatus{domain.OrderStatusAwaitingPreparation},
			Run:  s.onPlaced,
		},
		domain.OrderStatusAwaitingPreparation: {Run: s.onAwaitingPreparation},
		domain.OrderStatusReadyForDispatch:    {Run: s.onReadyForDispatch},
		domain.OrderStatusDispatched:          {Run: s.onDispatched},
		domain.OrderStatusFinalized:           {Run: s.onFinalized},
		domain.OrderStatusCancelled:           {Run: s.onCancelled},
	}

	deliveryHooks := make(map[domain.OrderStatus]lifecycle.Hook[domain.OrderStatus], len(sharedHooks)+1)
	for k, v := range sharedHooks {
		deliveryHooks[k] = v
	}
	deliveryHooks[domain.OrderStatusPickedUp] = lifecycle.Hook[domain.OrderStatus]{Run: s.onPickedUp}

	pickupHooks := make(map[domain.OrderStatus]lifecycle.Hook[domain.OrderStatus], len(sharedHooks)+1)
	for k, v := range sharedHooks {
		pickupHooks[k] = v
	}
	pickupHooks[domain.OrderStatusCustomerReturned] = lifecycle.Hook[domain.OrderStatus]{
		Next: []domain.OrderStatus{domain.OrderStatusFinalized},
		Run:  s.onCustomerReturned,
	}

	deliveryManager, err := lifecycle.NewManager[domain.OrderStatus]("order", orderDeliveryGraph, store, deliveryHooks, logger)
	if err != nil {
		return nil, err
	}
	pickupManager, err := lifecycle.NewManager[domain.OrderStatus]("order", orderPickupGraph, store, pickupHooks, logger)
	if err != nil {
		return nil, err
	}
	s.deliveryManager = deliveryManager
	s.pickupManager = pickupManager
	return s, nil
}

func (s *OrderService) managerFor(order *domain.Order) *lifecycle.Manager[domain.OrderStatus] {
	if order.HasDelivery {
		return s.deliveryManager
	}
	return s.pickupManager
}

// PlaceOrder creates the order, reserves every line against the ledger,
// and transitions it to placed, all within one unit of work. Reservation
// failure on any line rolls the whole order back.
func (s *OrderService) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*domain.Order, error) {
	if len(input.Lines) == 0 {
		return nil, apperrors.NewValidationError("order needs at least one line", nil)
	}
	start, end := dateOnly(input.StartDate), dateOnly(input.EndDate)
	if !start.Before(end) {
		return nil, apperrors.NewValidationError("start date must precede end date", nil)
	}

	order := &domain.Order{
		Code:        generateOrderCode(),
		LeadID:      input.LeadID,
		StartDate:   start,
		EndDate:     end,
		HasDelivery: input.HasDelivery,
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, order); err != nil {
			return err
		}
		for _, line := range input.Lines {
			item, err := s.inventory.GetItem(ctx, line.ItemID)
			if err != nil {
				return err
			}
			if err := s.inventory.Reserve(ctx, order.ID, item.ID, line.Units, start, end); err != nil {
				return err
			}
			if err := s.repo.AddItem(ctx, &domain.OrderItem{
				OrderID:      order.ID,
				ItemID:       item.ID,
				Units:        line.Units,
				PricePerUnit: item.Price,
			}); err != nil {
				return err
			}
		}
		_, err := s.managerFor(order).TransitionTo(ctx, order.ID, domain.OrderStatusPlaced, lifecycle.Context{Cause: "order_placed"})
		return err
	})
	if err != nil {
		return nil, mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("order", string(domain.OrderStatusPlaced))
		s.publishStatus(ctx, order.ID, "", domain.OrderStatusAwaitingPreparation, "order_placed")
	}
	// The placement hook cascades into preparation, so reload to return
	// the settled status.
	return s.Get(ctx, order.ID)
}

// Get fetches an order.
func (s *OrderService) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order", map[string]any{"order_id": orderID})
		}
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

// GetByCode fetches an order by its human-facing code.
func (s *OrderService) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	order, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order", map[string]any{"code": code})
		}
		return nil, apperrors.MapError(err)
	}
	return order, nil
}

// Items returns the order's lines.
func (s *OrderService) Items(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return items, nil
}

// StatusHistory returns the order's status history, oldest first.
func (s *OrderService) StatusHistory(ctx context.Context, orderID string) ([]lifecycle.Record[domain.OrderStatus], error) {
	recs, err := s.repo.ListStatusHistory(ctx, orderID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return recs, nil
}

// Transition moves the order to target along its flow graph.
func (s *OrderService) Transition(ctx context.Context, orderID string, target domain.OrderStatus, actor *string) error {
	return s.transition(ctx, orderID, target, lifecycle.Context{Actor: actor, Cause: "status_update"})
}

// MarkReadyForDispatch implements OrderAdvancer for load task completion.
func (s *OrderService) MarkReadyForDispatch(ctx context.Context, orderID string, actor *string) error {
	return s.transition(ctx, orderID, domain.OrderStatusReadyForDispatch, lifecycle.Context{Actor: actor, Cause: "load_task_completed"})
}

// Finalize implements OrderAdvancer for unload task completion.
func (s *OrderService) Finalize(ctx context.Context, orderID string, actor *string) error {
	return s.transition(ctx, orderID, domain.OrderStatusFinalized, lifecycle.Context{Actor: actor, Cause: "unload_task_completed"})
}

// Cancel aborts the order from any pre-handover state. The cancellation
// hook releases every reservation in the same unit of work, so the
// inventory compensation commits exactly when the cancellation does.
func (s *OrderService) Cancel(ctx context.Context, orderID string, actor *string, reason string) error {
	var from domain.OrderStatus
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		manager := s.managerFor(order)
		current, ok, err := manager.CurrentState(ctx, orderID)
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewValidationError("order has no status yet", map[string]any{"order_id": orderID})
		}
		if _, cancellable := cancellableStatuses[current]; !cancellable {
			return apperrors.NewValidationError("order can no longer be cancelled",
				map[string]any{"order_id": orderID, "status": string(current)})
		}
		from = current
		_, err = manager.ForceTransitionTo(ctx, orderID, domain.OrderStatusCancelled, lifecycle.Context{
			Actor: actor,
			Cause: "order_cancelled",
			Meta:  map[string]any{"reason": reason},
		})
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("order", "INVALID_TRANSITION")
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("order", string(domain.OrderStatusCancelled))
		s.publishStatus(ctx, orderID, from, domain.OrderStatusCancelled, "order_cancelled")
	}
	return nil
}

func (s *OrderService) transition(ctx context.Context, orderID string, target domain.OrderStatus, tc lifecycle.Context) error {
	var from domain.OrderStatus
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		order, err := s.repo.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		manager := s.managerFor(order)
		current, _, err := manager.CurrentState(ctx, orderID)
		if err != nil {
			return err
		}
		from = current
		_, err = manager.TransitionTo(ctx, orderID, target, tc)
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("order", "INVALID_TRANSITION")
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("order", string(target))
		s.publishStatus(ctx, orderID, from, target, tc.Cause)
	}
	return nil
}

// onPlaced books the parent lead, emails the confirmation, and cascades
// straight into preparation.
func (s *OrderService) onPlaced(ctx context.Context, orderID string, tc lifecycle.Context) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	var value float64
	for _, item := range items {
		value += float64(item.Units) * item.PricePerUnit
	}

	if s.leads != nil {
		if err := s.leads.MarkBooked(ctx, order.LeadID, value, "order_placed"); err != nil {
			// The lead may already be booked through an earlier order
			// or event; that is not a placement failure.
			if !isTransitionRejection(err) {
				return err
			}
			s.logger.Debug("lead already booked", zap.String("lead_id", order.LeadID))
		}
	}

	s.sendEmail(ctx, order,
		fmt.Sprintf("Order %s confirmed", order.Code),
		fmt.Sprintf("<p>Thanks for your order %s. We will start preparing it shortly.</p>", order.Code))

	_, err = s.managerFor(order).TransitionTo(ctx, orderID, domain.OrderStatusAwaitingPreparation, lifecycle.Context{Cause: "order_placed"})
	return err
}

// onAwaitingPreparation opens the warehouse load task.
func (s *OrderService) onAwaitingPreparation(ctx context.Context, orderID string, tc lifecycle.Context) error {
	if s.tasks == nil {
		return nil
	}
	_, err := s.tasks.CreateTask(ctx, orderID, domain.TaskLoadOrderItems, nil)
	return err
}

// onReadyForDispatch renders the order summary for the crew.
func (s *OrderService) onReadyForDispatch(ctx context.Context, orderID string, tc lifecycle.Context) error {
	if s.docs == nil {
		return nil
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	url, err := s.docs.OrderSummary(ctx, order, items)
	if err != nil {
		s.logger.Warn("order summary generation failed", zap.String("order_id", orderID), zap.Error(err))
		return nil
	}
	s.sendEmail(ctx, order,
		fmt.Sprintf("Order %s ready", order.Code),
		fmt.Sprintf(`<p>Your order is ready. Summary: <a href="%s">%s</a></p>`, url, url))
	return nil
}

// onDispatched texts the customer that the order is on its way or ready
// for collection.
func (s *OrderService) onDispatched(ctx context.Context, orderID string, tc lifecycle.Context) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Your order %s is on its way!", order.Code)
	if !order.HasDelivery {
		body = fmt.Sprintf("Your order %s is ready for pick-up.", order.Code)
	}
	s.sendText(ctx, order, body)
	return nil
}

// onPickedUp returns the delivered items to the ledger and opens the
// unload task that closes the order out.
func (s *OrderService) onPickedUp(ctx context.Context, orderID string, tc lifecycle.Context) error {
	if err := s.returnAllItems(ctx, orderID); err != nil {
		return err
	}
	if s.tasks == nil {
		return nil
	}
	_, err := s.tasks.CreateTask(ctx, orderID, domain.TaskUnloadOrderItems, nil)
	return err
}

// onCustomerReturned returns the items and finalizes directly; self-serve
// returns are checked in at the counter without a warehouse task.
func (s *OrderService) onCustomerReturned(ctx context.Context, orderID string, tc lifecycle.Context) error {
	if err := s.returnAllItems(ctx, orderID); err != nil {
		return err
	}
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.managerFor(order).TransitionTo(ctx, orderID, domain.OrderStatusFinalized, lifecycle.Context{Cause: "customer_returned"})
	return err
}

// onFinalized asks the customer for a review.
func (s *OrderService) onFinalized(ctx context.Context, orderID string, tc lifecycle.Context) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	body := s.composeWithFallback(ctx,
		fmt.Sprintf("Write a short thank-you message from %s asking the customer to leave a review at %s.", s.company.Name, s.company.ReviewLink),
		fmt.Sprintf("Thanks for renting with %s! We'd love a review: %s", s.company.Name, s.company.ReviewLink))
	s.sendText(ctx, order, body)
	return nil
}

// onCancelled compensates every open reservation and emails the customer.
// The compensation runs in the cancellation's unit of work; failure rolls
// the cancellation back rather than leaving stock phantom-reserved.
func (s *OrderService) onCancelled(ctx context.Context, orderID string, tc lifecycle.Context) error {
	order, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := s.inventory.CancelReservation(ctx, orderID, item.ItemID); err != nil {
			return err
		}
	}
	s.sendEmail(ctx, order,
		fmt.Sprintf("Order %s cancelled", order.Code),
		fmt.Sprintf("<p>Your order %s has been cancelled.</p>", order.Code))
	return nil
}

func (s *OrderService) returnAllItems(ctx context.Context, orderID string) error {
	items, err := s.repo.ListItems(ctx, orderID)
	if err != nil {
		return err
	}
	today := dateOnly(time.Now())
	for _, item := range items {
		if err := s.inventory.ReturnItems(ctx, orderID, item.ItemID, today); err != nil {
			return err
		}
	}
	return nil
}

func (s *OrderService) sendEmail(ctx context.Context, order *domain.Order, subject, html string) {
	if s.emailer == nil || s.leads == nil {
		return
	}
	lead, err := s.leads.Get(ctx, order.LeadID)
	if err != nil || lead.Email == "" {
		return
	}
	if err := s.emailer.SendHTML(ctx, lead.Email, subject, html); err != nil {
		s.logger.Warn("order email failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) sendText(ctx context.Context, order *domain.Order, body string) {
	if s.messenger == nil || s.leads == nil {
		return
	}
	lead, err := s.leads.Get(ctx, order.LeadID)
	if err != nil {
		s.logger.Warn("order text skipped", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if _, err := s.messenger.SendText(ctx, lead.PhoneNumber, body); err != nil {
		s.logger.Warn("order text failed", zap.String("order_id", order.ID), zap.Error(err))
	}
}

func (s *OrderService) composeWithFallback(ctx context.Context, prompt, fallback string) string {
	if s.composer == nil {
		return fallback
	}
	text, err := s.composer.Compose(ctx, prompt)
	if err != nil || text == "" {
		return fallback
	}
	return text
}

func (s *OrderService) publishStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, cause string) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventOrderStatusChanged,
		EntityID: orderID,
		Payload: events.StatusChangedPayload{
			OldStatus: string(from),
			NewStatus: string(to),
			Cause:     cause,
		},
	})
}

// isTransitionRejection reports whether err is a lifecycle guard
// rejection rather than an infrastructure failure.
func isTransitionRejection(err error) bool {
	var domainErr *apperrors.DomainError
	if !errors.As(err, &domainErr) {
		return false
	}
	return domainErr.Code == "INVALID_TRANSITION" || domainErr.Code == "TERMINAL_STATE"
}

func generateOrderCode() string {
	return "ORD-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
