package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/festivo/ops-service/internal/collab"
	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/observability"
	"github.com/festivo/ops-service/internal/persistence"
	"github.com/festivo/ops-service/internal/repository"
	apperrors "github.com/festivo/ops-service/pkg/util"
)

var orderTaskGraph = lifecycle.MustGraph(
	map[domain.OrderTaskStatus][]domain.OrderTaskStatus{
		domain.TaskStatusAssigned:   {domain.TaskStatusInProgress, domain.TaskStatusUnable},
		domain.TaskStatusInProgress: {domain.TaskStatusCompleted, domain.TaskStatusUnable},
		domain.TaskStatusCompleted:  {},
		domain.TaskStatusUnable:     {},
	},
	[]domain.OrderTaskStatus{domain.TaskStatusCompleted, domain.TaskStatusUnable},
)

// OrderAdvancer is the slice of order behavior task completion cascades
// into. Bound to OrderService after construction to break the dependency
// cycle (orders create tasks, completed tasks advance orders).
type OrderAdvancer interface {
	MarkReadyForDispatch(ctx context.Context, orderID string, actor *string) error
	Finalize(ctx context.Context, orderID string, actor *string) error
}

// OrderTaskService manages warehouse tasks attached to orders. Task state
// is log-derived: there is no status column, the newest log row is the
// current status.
type OrderTaskService struct {
	runner     persistence.TxRunner
	repo       repository.OrderTaskRepository
	manager    *lifecycle.Manager[domain.OrderTaskStatus]
	emailer    collab.Emailer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	orders     OrderAdvancer
	logger     *zap.Logger
}

// OrderTaskDependencies bundles collaborators for the task service.
type OrderTaskDependencies struct {
	Runner     persistence.TxRunner
	Repo       repository.OrderTaskRepository
	Emailer    collab.Emailer
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewOrderTaskService constructs the service and registers its hooks.
func NewOrderTaskService(deps OrderTaskDependencies) (*OrderTaskService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &OrderTaskService{
		runner:     deps.Runner,
		repo:       deps.Repo,
		emailer:    deps.Emailer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
	}
	hooks := map[domain.OrderTaskStatus]lifecycle.Hook[domain.OrderTaskStatus]{
		domain.TaskStatusCompleted: {Run: s.onCompleted},
	}
	manager, err := lifecycle.NewManager[domain.OrderTaskStatus](
		"order_task",
		orderTaskGraph,
		repository.OrderTaskStateStore{Repo: deps.Repo},
		hooks,
		logger,
	)
	if err != nil {
		return nil, err
	}
	s.manager = manager
	return s, nil
}

// BindOrders wires the order advancer after both services exist.
func (s *OrderTaskService) BindOrders(orders OrderAdvancer) {
	s.orders = orders
}

// CreateTask creates a task and bootstraps it into Assigned, which is its
// first log entry.
func (s *OrderTaskService) CreateTask(ctx context.Context, orderID string, kind domain.OrderTaskKind, assignee *string) (*domain.OrderTask, error) {
	task := &domain.OrderTask{
		OrderID:    orderID,
		Kind:       kind,
		AssigneeID: assignee,
	}
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, task); err != nil {
			return err
		}
		_, err := s.manager.TransitionTo(ctx, task.ID, domain.TaskStatusAssigned, lifecycle.Context{
			Actor: assignee,
			Cause: "task_created",
		})
		return err
	})
	if err != nil {
		return nil, mapTransitionErr(err)
	}
	if s.emailer != nil && assignee != nil {
		subject := fmt.Sprintf("New %s task for order %s", kind, orderID)
		if err := s.emailer.SendHTML(ctx, *assignee, subject, "<p>A task was assigned to you.</p>"); err != nil {
			s.logger.Warn("assignee notification failed", zap.String("task_id", task.ID), zap.Error(err))
		}
	}
	if committed(ctx) {
		s.metrics.RecordTransition("order_task", string(domain.TaskStatusAssigned))
		s.publishStatus(ctx, task.ID, "", domain.TaskStatusAssigned, "task_created")
	}
	return task, nil
}

// Get fetches a task.
func (s *OrderTaskService) Get(ctx context.Context, taskID string) (*domain.OrderTask, error) {
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("order task", map[string]any{"task_id": taskID})
		}
		return nil, apperrors.MapError(err)
	}
	return task, nil
}

// ListByOrder returns an order's tasks.
func (s *OrderTaskService) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderTask, error) {
	tasks, err := s.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return tasks, nil
}

// CurrentStatus derives the task's status from its newest log row.
func (s *OrderTaskService) CurrentStatus(ctx context.Context, taskID string) (domain.OrderTaskStatus, bool, error) {
	status, ok, err := s.repo.CurrentStatus(ctx, taskID)
	if err != nil {
		return "", false, apperrors.MapError(err)
	}
	return status, ok, nil
}

// Logs returns the task's full status log, oldest first.
func (s *OrderTaskService) Logs(ctx context.Context, taskID string) ([]lifecycle.Record[domain.OrderTaskStatus], error) {
	logs, err := s.repo.ListLogs(ctx, taskID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return logs, nil
}

// Start marks the task in progress.
func (s *OrderTaskService) Start(ctx context.Context, taskID string, actor *string) error {
	return s.transition(ctx, taskID, domain.TaskStatusInProgress, lifecycle.Context{Actor: actor, Cause: "task_started"})
}

// Complete finishes the task. The completion hook advances the parent
// order in the same unit of work.
func (s *OrderTaskService) Complete(ctx context.Context, taskID string, actor *string) error {
	return s.transition(ctx, taskID, domain.TaskStatusCompleted, lifecycle.Context{Actor: actor, Cause: "task_completed"})
}

// MarkUnable records that the task could not be completed.
func (s *OrderTaskService) MarkUnable(ctx context.Context, taskID string, actor *string, reason string) error {
	return s.transition(ctx, taskID, domain.TaskStatusUnable, lifecycle.Context{
		Actor: actor,
		Cause: "task_unable",
		Meta:  map[string]any{"reason": reason},
	})
}

func (s *OrderTaskService) transition(ctx context.Context, taskID string, target domain.OrderTaskStatus, tc lifecycle.Context) error {
	var from domain.OrderTaskStatus
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, _, err := s.manager.CurrentState(ctx, taskID)
		if err != nil {
			return err
		}
		from = current
		_, err = s.manager.TransitionTo(ctx, taskID, target, tc)
		return err
	})
	if err != nil {
		s.metrics.RecordRejection("order_task", "INVALID_TRANSITION")
		return mapTransitionErr(err)
	}
	if committed(ctx) {
		s.metrics.RecordTransition("order_task", string(target))
		s.publishStatus(ctx, taskID, from, target, tc.Cause)
	}
	return nil
}

// onCompleted cascades the parent order forward: a finished load task
// means the order is ready for dispatch, a finished unload task closes the
// order out.
func (s *OrderTaskService) onCompleted(ctx context.Context, taskID string, tc lifecycle.Context) error {
	if s.orders == nil {
		return nil
	}
	task, err := s.repo.GetByID(ctx, taskID)
	if err != nil {
		return err
	}
	switch task.Kind {
	case domain.TaskLoadOrderItems:
		return s.orders.MarkReadyForDispatch(ctx, task.OrderID, tc.Actor)
	case domain.TaskUnloadOrderItems:
		return s.orders.Finalize(ctx, task.OrderID, tc.Actor)
	default:
		return nil
	}
}

func (s *OrderTaskService) publishStatus(ctx context.Context, taskID string, from, to domain.OrderTaskStatus, cause string) {
	publishEvent(ctx, s.dispatcher, events.Event{
		Type:     events.EventTaskStatusChanged,
		EntityID: taskID,
		Payload: events.StatusChangedPayload{
			OldStatus: string(from),
			NewStatus: string(to),
			Cause:     cause,
		},
	})
}
