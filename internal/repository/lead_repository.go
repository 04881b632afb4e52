package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// LeadRepository encapsulates lead persistence. Leads are pointer style: the
// current status lives on the lead row and every change appends to
// lead_status_history.
type LeadRepository interface {
	Create(ctx context.Context, lead *domain.Lead) error
	GetByID(ctx context.Context, id string) (*domain.Lead, error)
	GetByPhone(ctx context.Context, phone string) (*domain.Lead, error)
	CurrentStatus(ctx context.Context, leadID string) (domain.LeadStatus, bool, error)
	ApplyStatusChange(ctx context.Context, leadID string, rec *lifecycle.Record[domain.LeadStatus]) error
	ListStatusHistory(ctx context.Context, leadID string) ([]lifecycle.Record[domain.LeadStatus], error)
}

type leadRepository struct {
	pool *pgxpool.Pool
}

// NewLeadRepository instantiates the repository.
func NewLeadRepository(pool *pgxpool.Pool) LeadRepository {
	return &leadRepository{pool: pool}
}

func (r *leadRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *leadRepository) Create(ctx context.Context, lead *domain.Lead) error {
	const query = `
        INSERT INTO leads (full_name, phone_number, email, message, origin, marketing, external_id, call_asset_call)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	return r.q(ctx).QueryRow(ctx, query,
		lead.FullName,
		lead.PhoneNumber,
		lead.Email,
		lead.Message,
		lead.Origin,
		lead.Marketing,
		lead.ExternalID,
		lead.CallAssetCall,
	).Scan(&lead.ID, &lead.CreatedAt, &lead.UpdatedAt)
}

func (r *leadRepository) GetByID(ctx context.Context, id string) (*domain.Lead, error) {
	const query = `
        SELECT id, full_name, phone_number, email, message, origin, status, marketing, external_id, call_asset_call, created_at, updated_at
        FROM leads WHERE id=$1`
	return r.scanLead(ctx, query, id)
}

// GetByPhone resolves the newest lead for a phone number. Inbound message
// webhooks only carry the sender's number.
func (r *leadRepository) GetByPhone(ctx context.Context, phone string) (*domain.Lead, error) {
	const query = `
        SELECT id, full_name, phone_number, email, message, origin, status, marketing, external_id, call_asset_call, created_at, updated_at
        FROM leads WHERE phone_number=$1
        ORDER BY created_at DESC
        LIMIT 1`
	return r.scanLead(ctx, query, phone)
}

func (r *leadRepository) scanLead(ctx context.Context, query string, arg any) (*domain.Lead, error) {
	var lead domain.Lead
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, arg).Scan(
		&lead.ID,
		&lead.FullName,
		&lead.PhoneNumber,
		&lead.Email,
		&lead.Message,
		&lead.Origin,
		&status,
		&lead.Marketing,
		&lead.ExternalID,
		&lead.CallAssetCall,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if status != nil {
		s := domain.LeadStatus(*status)
		lead.Status = &s
	}
	return &lead, nil
}

// CurrentStatus resolves the status pointer. Inside a transaction the lead
// row is locked so concurrent transitions for one lead serialize before the
// guard check.
func (r *leadRepository) CurrentStatus(ctx context.Context, leadID string) (domain.LeadStatus, bool, error) {
	query := `SELECT status FROM leads WHERE id=$1`
	if persistence.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	var status *string
	if err := r.q(ctx).QueryRow(ctx, query, leadID).Scan(&status); err != nil {
		return "", false, err
	}
	if status == nil {
		return "", false, nil
	}
	return domain.LeadStatus(*status), true, nil
}

// ApplyStatusChange updates the pointer and appends the history record. Both
// writes share the caller's unit of work.
func (r *leadRepository) ApplyStatusChange(ctx context.Context, leadID string, rec *lifecycle.Record[domain.LeadStatus]) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `UPDATE leads SET status=$1, updated_at=NOW() WHERE id=$2`, string(rec.State), leadID); err != nil {
		return err
	}
	return appendHistory(ctx, q, "lead_status_history", "lead_id", rec)
}

func (r *leadRepository) ListStatusHistory(ctx context.Context, leadID string) ([]lifecycle.Record[domain.LeadStatus], error) {
	return listHistory[domain.LeadStatus](ctx, r.q(ctx), "lead_status_history", "lead_id", leadID)
}

// LeadStateStore adapts the repository to the lifecycle store contract.
type LeadStateStore struct {
	Repo LeadRepository
}

// Current implements lifecycle.Store.
func (s LeadStateStore) Current(ctx context.Context, leadID string) (domain.LeadStatus, bool, error) {
	return s.Repo.CurrentStatus(ctx, leadID)
}

// Apply implements lifecycle.Store.
func (s LeadStateStore) Apply(ctx context.Context, leadID string, rec *lifecycle.Record[domain.LeadStatus]) error {
	return s.Repo.ApplyStatusChange(ctx, leadID, rec)
}
