package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/festivo/ops-service/internal/domain"
	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// EngagementRepository encapsulates outreach-cadence persistence. The
// engagement row is created lazily per lead and mutated only through the
// engagement service; state changes append to engagement_history.
type EngagementRepository interface {
	GetOrCreateByLead(ctx context.Context, leadID string) (*domain.Engagement, error)
	Update(ctx context.Context, eng *domain.Engagement) error
	CurrentState(ctx context.Context, leadID string) (domain.EngagementState, bool, error)
	ApplyStateChange(ctx context.Context, leadID string, rec *lifecycle.Record[domain.EngagementState]) error
	ListHistory(ctx context.Context, leadID string) ([]lifecycle.Record[domain.EngagementState], error)
	// ListDueCandidates returns lead ids whose engagement is in a waiting
	// state, not paused, and whose last contact is older than the shortest
	// stage timeout. Idle, Responded, and terminal rows never time out, so
	// the sweeper skips them rather than reloading them forever.
	ListDueCandidates(ctx context.Context, limit int) ([]string, error)
}

type engagementRepository struct {
	pool *pgxpool.Pool
}

// NewEngagementRepository instantiates the repository.
func NewEngagementRepository(pool *pgxpool.Pool) EngagementRepository {
	return &engagementRepository{pool: pool}
}

func (r *engagementRepository) q(ctx context.Context) persistence.Querier {
	return persistence.QuerierFrom(ctx, r.pool)
}

func (r *engagementRepository) GetOrCreateByLead(ctx context.Context, leadID string) (*domain.Engagement, error) {
	const query = `
        INSERT INTO lead_engagements (lead_id, state)
        VALUES ($1, $2)
        ON CONFLICT (lead_id) DO UPDATE SET lead_id = EXCLUDED.lead_id
        RETURNING id, lead_id, state, last_contacted_at, last_responded_at, follow_up_attempts, retry_cycles, paused_until, created_at, updated_at`
	var eng domain.Engagement
	if err := r.q(ctx).QueryRow(ctx, query, leadID, domain.EngagementIdle).Scan(
		&eng.ID,
		&eng.LeadID,
		&eng.State,
		&eng.LastContactedAt,
		&eng.LastRespondedAt,
		&eng.FollowUpAttempts,
		&eng.RetryCycles,
		&eng.PausedUntil,
		&eng.CreatedAt,
		&eng.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &eng, nil
}

func (r *engagementRepository) Update(ctx context.Context, eng *domain.Engagement) error {
	const query = `
        UPDATE lead_engagements
        SET state=$1, last_contacted_at=$2, last_responded_at=$3, follow_up_attempts=$4, retry_cycles=$5, paused_until=$6, updated_at=NOW()
        WHERE lead_id=$7`
	_, err := r.q(ctx).Exec(ctx, query,
		eng.State,
		eng.LastContactedAt,
		eng.LastRespondedAt,
		eng.FollowUpAttempts,
		eng.RetryCycles,
		eng.PausedUntil,
		eng.LeadID,
	)
	return err
}

func (r *engagementRepository) CurrentState(ctx context.Context, leadID string) (domain.EngagementState, bool, error) {
	query := `SELECT state FROM lead_engagements WHERE lead_id=$1`
	if persistence.TxFromContext(ctx) != nil {
		query += ` FOR UPDATE`
	}
	var state *string
	if err := r.q(ctx).QueryRow(ctx, query, leadID).Scan(&state); err != nil {
		return "", false, err
	}
	if state == nil {
		return "", false, nil
	}
	return domain.EngagementState(*state), true, nil
}

func (r *engagementRepository) ApplyStateChange(ctx context.Context, leadID string, rec *lifecycle.Record[domain.EngagementState]) error {
	q := r.q(ctx)
	if _, err := q.Exec(ctx, `UPDATE lead_engagements SET state=$1, updated_at=NOW() WHERE lead_id=$2`, string(rec.State), leadID); err != nil {
		return err
	}
	return appendHistory(ctx, q, "engagement_history", "lead_id", rec)
}

func (r *engagementRepository) ListHistory(ctx context.Context, leadID string) ([]lifecycle.Record[domain.EngagementState], error) {
	return listHistory[domain.EngagementState](ctx, r.q(ctx), "engagement_history", "lead_id", leadID)
}

func (r *engagementRepository) ListDueCandidates(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	const query = `
        SELECT lead_id FROM lead_engagements
        WHERE state NOT IN ($1, $2, $3)
          AND (paused_until IS NULL OR paused_until <= NOW())
          AND last_contacted_at IS NOT NULL
          AND last_contacted_at <= NOW() - INTERVAL '24 hours'
        ORDER BY last_contacted_at ASC
        LIMIT $4`
	rows, err := r.q(ctx).Query(ctx, query, domain.EngagementNoResponse, domain.EngagementIdle, domain.EngagementResponded, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var leadID string
		if err := rows.Scan(&leadID); err != nil {
			return nil, err
		}
		result = append(result, leadID)
	}
	return result, rows.Err()
}

// EngagementStateStore adapts the repository to the lifecycle store
// contract.
type EngagementStateStore struct {
	Repo EngagementRepository
}

// Current implements lifecycle.Store.
func (s EngagementStateStore) Current(ctx context.Context, leadID string) (domain.EngagementState, bool, error) {
	return s.Repo.CurrentState(ctx, leadID)
}

// Apply implements lifecycle.Store.
func (s EngagementStateStore) Apply(ctx context.Context, leadID string, rec *lifecycle.Record[domain.EngagementState]) error {
	return s.Repo.ApplyStateChange(ctx, leadID, rec)
}
