package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// EventRepository encapsulates booked-event persistence (pointer style).
type EventRepository interface {
	Create(ctx context.Context, ev *domain.Event) error
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	CurrentStatus(ctx context.Context, eventID string) (domain.EventStatus, bool, error)
	ApplyStatusChange(ctx context.Context, eventID string, rec *lifecycle.Record[domain.EventStatus]) error
	ListStatusHistory(ctx context.Context, eventID string) ([]lifecycle.Record[domain.EventStatus], error)
}

type eventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository instantiates the repository.
func NewEventRepository(pool *pgxpool.Pool) EventRepository {
	return &eventRepository{pool: pool}
}

func (r *eventRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *eventRepository) Create(ctx context.Context, ev *domain.Event) error {
	const query = `
        INSERT INTO events (lead_id, event_date, end_time, amount)
        VALUES ($1,$2,$3,$4)
        RETURNING id, created_at, updated_at`
	return r.q(ctx).QueryRow(ctx, query,
		ev.LeadID,
		ev.Date,
		ev.EndTime,
		ev.Amount,
	).Scan(&ev.ID, &ev.CreatedAt, &ev.UpdatedAt)
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	const query = `
        SELECT id, lead_id, event_date, end_time, amount, status, created_at, updated_at
        FROM events WHERE id=$1`
	var ev domain.Event
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, id).Scan(
		&ev.ID,
		&ev.LeadID,
		&ev.Date,
		&ev.EndTime,
		&ev.Amount,
		&status,
		&ev.CreatedAt,
		&ev.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if status != nil {
		s := domain.EventStatus(*status)
		ev.Status = &s
	}
	return &ev, nil
}

func (r *eventRepository) CurrentStatus(ctx context.Context, eventID string) (domain.EventStatus, bool, error) {
	query := `SELECT status FROM events WHERE id=$1`
	if persistence.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, eventID).Scan(&status); err != nil {
		return "", false, err
	}
	if status == nil {
		return "", false, nil
	}
	return domain.EventStatus(*status), true, nil
}

func (r *eventRepository) ApplyStatusChange(ctx context.Context, eventID string, rec *lifecycle.Record[domain.EventStatus]) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `UPDATE events SET status=$1, updated_at=NOW() WHERE id=$2`, string(rec.State), eventID); err != nil {
		return err
	}
	return appendHistory(ctx, q, "event_status_history", "event_id", rec)
}

func (r *eventRepository) ListStatusHistory(ctx context.Context, eventID string) ([]lifecycle.Record[domain.EventStatus], error) {
	return listHistory[domain.EventStatus](ctx, r.q(ctx), "event_status_history", "event_id", eventID)
}

// EventStateStore adapts the repository to the lifecycle store contract.
type EventStateStore struct {
	Repo EventRepository
}

// Current implements lifecycle.Store.
func (s EventStateStore) Current(ctx context.Context, eventID string) (domain.EventStatus, bool, error) {
	return s.Repo.CurrentStatus(ctx, eventID)
}

// Apply implements lifecycle.Store.
func (s EventStateStore) Apply(ctx context.Context, eventID string, rec *lifecycle.Record[domain.EventStatus]) error {
	return s.Repo.ApplyStatusChange(ctx, eventID, rec)
}
