package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// OrderTaskRepository encapsulates warehouse task persistence. Tasks are
// log derived: no status pointer exists, the newest order_task_logs row is
// the current status.
type OrderTaskRepository interface {
	Create(ctx context.Context, task *domain.OrderTask) error
	GetByID(ctx context.Context, id string) (*domain.OrderTask, error)
	ListByOrder(ctx context.Context, orderID string) ([]domain.OrderTask, error)
	CurrentStatus(ctx context.Context, taskID string) (domain.OrderTaskStatus, bool, error)
	AppendLog(ctx context.Context, rec *lifecycle.Record[domain.OrderTaskStatus]) error
	ListLogs(ctx context.Context, taskID string) ([]lifecycle.Record[domain.OrderTaskStatus], error)
}

type orderTaskRepository struct {
	pool *pgxpool.Pool
}

// NewOrderTaskRepository instantiates the repository.
func NewOrderTaskRepository(pool *pgxpool.Pool) OrderTaskRepository {
	return &orderTaskRepository{pool: pool}
}

func (r *orderTaskRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *orderTaskRepository) Create(ctx context.Context, task *domain.OrderTask) error {
	const query = `
        INSERT INTO order_tasks (order_id, kind, assignee_id)
        VALUES ($1,$2,$3)
        RETURNING id, created_at`
	return r.q(ctx).QueryRow(ctx, query,
		task.OrderID,
		task.Kind,
		task.AssigneeID,
	).Scan(&task.ID, &task.CreatedAt)
}

func (r *orderTaskRepository) GetByID(ctx context.Context, id string) (*domain.OrderTask, error) {
	const query = `
        SELECT id, order_id, kind, assignee_id, created_at
        FROM order_tasks WHERE id=$1`
	var task domain.OrderTask
	if err := r.q(ctx).QueryRow(ctx, query, id).Scan(
		&task.ID,
		&task.OrderID,
		&task.Kind,
		&task.AssigneeID,
		&task.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *orderTaskRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.OrderTask, error) {
	const query = `
        SELECT id, order_id, kind, assignee_id, created_at
        FROM order_tasks WHERE order_id=$1 ORDER BY created_at ASC`
	rows, err := r.q(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OrderTask
	for rows.Next() {
		var task domain.OrderTask
		if err := rows.Scan(&task.ID, &task.OrderID, &task.Kind, &task.AssigneeID, &task.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, task)
	}
	return result, rows.Err()
}

// CurrentStatus derives the status from the newest log row. A task with no
// rows yet has no status. Inside a transaction the order_tasks row is
// locked before the log read so concurrent transitions for one task
// serialize before the guard check, matching the pointer-style stores.
func (r *orderTaskRepository) CurrentStatus(ctx context.Context, taskID string) (domain.OrderTaskStatus, bool, error) {
	q := r.q(ctx)
	if persistence.TxFromContext(ctx) != nil {
		if _, err := q.Exec(ctx, `SELECT id FROM order_tasks WHERE id=$1 FOR UPDATE`, taskID); err != nil {
			return "", false, err
		}
	}
	rec, ok, err := latestHistory[domain.OrderTaskStatus](ctx, q, "order_task_logs", "task_id", taskID)
	if err != nil || !ok {
		return "", false, err
	}
	return rec.State, true, nil
}

func (r *orderTaskRepository) AppendLog(ctx context.Context, rec *lifecycle.Record[domain.OrderTaskStatus]) error {
	return appendHistory(ctx, r.q(ctx), "order_task_logs", "task_id", rec)
}

func (r *orderTaskRepository) ListLogs(ctx context.Context, taskID string) ([]lifecycle.Record[domain.OrderTaskStatus], error) {
	return listHistory[domain.OrderTaskStatus](ctx, r.q(ctx), "order_task_logs", "task_id", taskID)
}

// OrderTaskStateStore adapts the repository to the lifecycle store
// contract. Apply only appends; the derived status follows automatically.
type OrderTaskStateStore struct {
	Repo OrderTaskRepository
}

// Current implements lifecycle.Store.
func (s OrderTaskStateStore) Current(ctx context.Context, taskID string) (domain.OrderTaskStatus, bool, error) {
	return s.Repo.CurrentStatus(ctx, taskID)
}

// Apply implements lifecycle.Store.
func (s OrderTaskStateStore) Apply(ctx context.Context, _ string, rec *lifecycle.Record[domain.OrderTaskStatus]) error {
	return s.Repo.AppendLog(ctx, rec)
}
