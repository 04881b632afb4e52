package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/persistence"
)

// DayBucket is the signed quantity delta for one target date.
type DayBucket struct {
	Date  time.Time
	Delta int
}

// InventoryRepository encapsulates item and ledger persistence. Ledger rows
// are append-only; there is no update or delete path.
type InventoryRepository interface {
	CreateItem(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	// LockItem takes the per-item exclusive row lock that serializes
	// concurrent reservation attempts. Must run inside a transaction and
	// before any availability read.
	LockItem(ctx context.Context, itemID string) error
	AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error
	ListEntries(ctx context.Context, itemID string) ([]domain.LedgerEntry, error)
	// AvailabilityOnDate returns the signed sum of all entries with
	// target_date on or before the given date.
	AvailabilityOnDate(ctx context.Context, itemID string, date time.Time) (int, error)
	// RangeBuckets returns the signed sum of entries dated before start
	// (the baseline) and per-date signed deltas for [start, end), ordered
	// by date ascending.
	RangeBuckets(ctx context.Context, itemID string, start, end time.Time) (int, []DayBucket, error)
	// FindOpenReservation returns the order's RESERVED entry that has no
	// matching compensating RETURNED entry yet.
	FindOpenReservation(ctx context.Context, itemID, orderID string) (*domain.LedgerEntry, error)
}

type inventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository instantiates the repository.
func NewInventoryRepository(pool *pgxpool.Pool) InventoryRepository {
	return &inventoryRepository{pool: pool}
}

func (r *inventoryRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *inventoryRepository) CreateItem(ctx context.Context, item *domain.Item) error {
	const query = `
        INSERT INTO items (name, price)
        VALUES ($1,$2)
        RETURNING id, created_at, updated_at`
	return r.q(ctx).QueryRow(ctx, query, item.Name, item.Price).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
}

func (r *inventoryRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	const query = `SELECT id, name, price, created_at, updated_at FROM items WHERE id=$1`
	var item domain.Item
	if err := r.q(ctx).QueryRow(ctx, query, id).Scan(
		&item.ID,
		&item.Name,
		&item.Price,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *inventoryRepository) LockItem(ctx context.Context, itemID string) error {
	var id string
	return r.q(ctx).QueryRow(ctx, `SELECT id FROM items WHERE id=$1 FOR UPDATE`, itemID).Scan(&id)
}

func (r *inventoryRepository) AppendEntry(ctx context.Context, entry *domain.LedgerEntry) error {
	const query = `
        INSERT INTO item_ledger_entries (item_id, order_id, kind, quantity, target_date)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at`
	return r.q(ctx).QueryRow(ctx, query,
		entry.ItemID,
		entry.OrderID,
		entry.Kind,
		entry.Quantity,
		entry.TargetDate,
	).Scan(&entry.ID, &entry.CreatedAt)
}

func (r *inventoryRepository) ListEntries(ctx context.Context, itemID string) ([]domain.LedgerEntry, error) {
	const query = `
        SELECT id, item_id, order_id, kind, quantity, target_date, created_at
        FROM item_ledger_entries WHERE item_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.q(ctx).Query(ctx, query, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		if err := rows.Scan(&entry.ID, &entry.ItemID, &entry.OrderID, &entry.Kind, &entry.Quantity, &entry.TargetDate, &entry.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

const signedDelta = `
    SUM(CASE
        WHEN kind IN ('PURCHASED','RETURNED') THEN quantity
        WHEN kind IN ('RESERVED','SOLD','DECOMMISSIONED') THEN -quantity
        ELSE 0
    END)`

func (r *inventoryRepository) AvailabilityOnDate(ctx context.Context, itemID string, date time.Time) (int, error) {
	query := `SELECT COALESCE(` + signedDelta + `, 0) FROM item_ledger_entries WHERE item_id=$1 AND target_date <= $2`
	var total int
	if err := r.q(ctx).QueryRow(ctx, query, itemID, date).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

func (r *inventoryRepository) RangeBuckets(ctx context.Context, itemID string, start, end time.Time) (int, []DayBucket, error) {
	q := r.q(ctx)

	baselineQuery := `SELECT COALESCE(` + signedDelta + `, 0) FROM item_ledger_entries WHERE item_id=$1 AND target_date < $2`
	var baseline int
	if err := q.QueryRow(ctx, baselineQuery, itemID, start).Scan(&baseline); err != nil {
		return 0, nil, err
	}

	bucketQuery := `
        SELECT target_date, ` + signedDelta + `
        FROM item_ledger_entries
        WHERE item_id=$1 AND target_date >= $2 AND target_date < $3
        GROUP BY target_date
        ORDER BY target_date ASC`
	rows, err := q.Query(ctx, bucketQuery, itemID, start, end)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()

	var buckets []DayBucket
	for rows.Next() {
		var b DayBucket
		if err := rows.Scan(&b.Date, &b.Delta); err != nil {
			return 0, nil, err
		}
		buckets = append(buckets, b)
	}
	return baseline, buckets, rows.Err()
}

func (r *inventoryRepository) FindOpenReservation(ctx context.Context, itemID, orderID string) (*domain.LedgerEntry, error) {
	const query = `
        SELECT r.id, r.item_id, r.order_id, r.kind, r.quantity, r.target_date, r.created_at
        FROM item_ledger_entries r
        WHERE r.item_id=$1 AND r.order_id=$2 AND r.kind='RESERVED'
          AND NOT EXISTS (
            SELECT 1 FROM item_ledger_entries c
            WHERE c.item_id=r.item_id AND c.order_id=r.order_id AND c.kind='RETURNED'
              AND c.quantity=r.quantity AND c.created_at > r.created_at
          )
        ORDER BY r.created_at ASC
        LIMIT 1`
	var entry domain.LedgerEntry
	if err := r.q(ctx).QueryRow(ctx, query, itemID, orderID).Scan(
		&entry.ID,
		&entry.ItemID,
		&entry.OrderID,
		&entry.Kind,
		&entry.Quantity,
		&entry.TargetDate,
		&entry.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &entry, nil
}
