package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// OrderRepository encapsulates order persistence (pointer style).
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	GetByCode(ctx context.Context, code string) (*domain.Order, error)
	AddItem(ctx context.Context, item *domain.OrderItem) error
	ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error)
	CurrentStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error)
	ApplyStatusChange(ctx context.Context, orderID string, rec *lifecycle.Record[domain.OrderStatus]) error
	ListStatusHistory(ctx context.Context, orderID string) ([]lifecycle.Record[domain.OrderStatus], error)
}

type orderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository instantiates the repository.
func NewOrderRepository(pool *pgxpool.Pool) OrderRepository {
	return &orderRepository{pool: pool}
}

func (r *orderRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *orderRepository) Create(ctx context.Context, order *domain.Order) error {
	const query = `
        INSERT INTO orders (code, lead_id, start_date, end_date, has_delivery)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at`
	return r.q(ctx).QueryRow(ctx, query,
		order.Code,
		order.LeadID,
		order.StartDate,
		order.EndDate,
		order.HasDelivery,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt)
}

func (r *orderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	const query = `
        SELECT id, code, lead_id, start_date, end_date, has_delivery, status, created_at, updated_at
        FROM orders WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *orderRepository) GetByCode(ctx context.Context, code string) (*domain.Order, error) {
	const query = `
        SELECT id, code, lead_id, start_date, end_date, has_delivery, status, created_at, updated_at
        FROM orders WHERE code=$1`
	return r.fetchSingle(ctx, query, code)
}

func (r *orderRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Order, error) {
	var order domain.Order
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, arg).Scan(
		&order.ID,
		&order.Code,
		&order.LeadID,
		&order.StartDate,
		&order.EndDate,
		&order.HasDelivery,
		&status,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if status != nil {
		s := domain.OrderStatus(*status)
		order.Status = &s
	}
	return &order, nil
}

func (r *orderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	const query = `
        INSERT INTO order_items (order_id, item_id, units, price_per_unit)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at`
	return r.q(ctx).QueryRow(ctx, query,
		item.OrderID,
		item.ItemID,
		item.Units,
		item.PricePerUnit,
	).Scan(&item.ID, &item.CreatedAt)
}

func (r *orderRepository) ListItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	const query = `
        SELECT id, order_id, item_id, units, price_per_unit, created_at
        FROM order_items WHERE order_id=$1 ORDER BY created_at ASC`
	rows, err := r.q(ctx).Query(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.OrderItem
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ItemID, &item.Units, &item.PricePerUnit, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	return result, rows.Err()
}

func (r *orderRepository) CurrentStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error) {
	query := `SELECT status FROM orders WHERE id=$1`
	if persistence.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, orderID).Scan(&status); err != nil {
		return "", false, err
	}
	if status == nil {
		return "", false, nil
	}
	return domain.OrderStatus(*status), true, nil
}

func (r *orderRepository) ApplyStatusChange(ctx context.Context, orderID string, rec *lifecycle.Record[domain.OrderStatus]) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `UPDATE orders SET status=$1, updated_at=NOW() WHERE id=$2`, string(rec.State), orderID); err != nil {
		return err
	}
	return appendHistory(ctx, q, "order_status_history", "order_id", rec)
}

func (r *orderRepository) ListStatusHistory(ctx context.Context, orderID string) ([]lifecycle.Record[domain.OrderStatus], error) {
	return listHistory[domain.OrderStatus](ctx, r.q(ctx), "order_status_history", "order_id", orderID)
}

// OrderStateStore adapts the repository to the lifecycle store contract.
type OrderStateStore struct {
	Repo OrderRepository
}

// Current implements lifecycle.Store.
func (s OrderStateStore) Current(ctx context.Context, orderID string) (domain.OrderStatus, bool, error) {
	return s.Repo.CurrentStatus(ctx, orderID)
}

// Apply implements lifecycle.Store.
func (s OrderStateStore) Apply(ctx context.Context, orderID string, rec *lifecycle.Record[domain.OrderStatus]) error {
	return s.Repo.ApplyStatusChange(ctx, orderID, rec)
}
