package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/festivo/ops-service/internal/lifecycle"
	"github.com/festivo/ops-service/internal/persistence"
)

// appendHistory inserts one immutable state-change record. History tables
// share a shape: (id, <fk>, status, actor, cause, meta, created_at).
// Rows are only ever inserted; corrections never touch existing rows.
func appendHistory[S lifecycle.State](ctx context.Context, q persistence.Querier, table, fkColumn string, rec *lifecycle.Record[S]) error {
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, %s, status, actor, cause, meta, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		table, fkColumn)
	_, err := q.Exec(ctx, sql,
		rec.ID, rec.EntityID, string(rec.State), rec.Actor, rec.Cause, rec.Meta, rec.CreatedAt)
	return err
}

// listHistory returns all records for one entity ordered by creation time
// ascending.
func listHistory[S lifecycle.State](ctx context.Context, q persistence.Querier, table, fkColumn, entityID string) ([]lifecycle.Record[S], error) {
	sql := fmt.Sprintf(
		`SELECT id, %s, status, actor, cause, meta, created_at FROM %s WHERE %s=$1 ORDER BY created_at ASC, id ASC`,
		fkColumn, table, fkColumn)
	rows, err := q.Query(ctx, sql, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []lifecycle.Record[S]
	for rows.Next() {
		var rec lifecycle.Record[S]
		var status string
		if err := rows.Scan(&rec.ID, &rec.EntityID, &status, &rec.Actor, &rec.Cause, &rec.Meta, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.State = S(status)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// latestHistory returns the newest record for one entity, or ok=false when
// no record exists yet.
func latestHistory[S lifecycle.State](ctx context.Context, q persistence.Querier, table, fkColumn, entityID string) (lifecycle.Record[S], bool, error) {
	sql := fmt.Sprintf(
		`SELECT id, %s, status, actor, cause, meta, created_at FROM %s WHERE %s=$1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		fkColumn, table, fkColumn)
	var rec lifecycle.Record[S]
	var status string
	err := q.QueryRow(ctx, sql, entityID).Scan(&rec.ID, &rec.EntityID, &status, &rec.Actor, &rec.Cause, &rec.Meta, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, false, nil
		}
		return rec, false, err
	}
	rec.State = S(status)
	return rec, true, nil
}
