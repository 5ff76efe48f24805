package snapshots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/camps/internal/contracts"
)

// Repository persists insert-only trend snapshots
// ⭐ SSOT: trend_snapshots 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new snapshot repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const snapshotColumns = `
	id, run_id, scope, entity_id, team_id, category, record_date, current_value,
	prev_week, prev_month, prev_quarter, prev_year,
	delta_week, delta_month, delta_quarter, delta_year,
	contributor_count, data_points, created_at`

// Save inserts a snapshot. Rows are never updated.
func (r *Repository) Save(ctx context.Context, s *contracts.TrendSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}

	query := `INSERT INTO trend_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err := r.pool.Exec(ctx, query,
		s.ID, s.RunID, string(s.Scope), s.EntityID, s.TeamID, string(s.Category), s.RecordDate, s.CurrentValue,
		s.PrevWeek, s.PrevMonth, s.PrevQuarter, s.PrevYear,
		s.DeltaWeek, s.DeltaMonth, s.DeltaQuarter, s.DeltaYear,
		s.ContributorCount, s.DataPoints, s.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot %s/%s: %w", s.Scope, s.Category, err)
	}
	return nil
}

// FindNearest returns the snapshot whose record date is closest to q.Anchor,
// within q.Tolerance and strictly before q.Before.
// Ties: earlier record date first, then the newest row.
func (r *Repository) FindNearest(ctx context.Context, q contracts.SnapshotQuery) (*contracts.TrendSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM trend_snapshots
		WHERE scope = $1
		  AND entity_id IS NOT DISTINCT FROM $2
		  AND category = $3
		  AND record_date BETWEEN $4::timestamptz - $5::float8 * interval '1 second'
		                      AND $4::timestamptz + $5::float8 * interval '1 second'
		  AND record_date < $6
		ORDER BY ABS(EXTRACT(EPOCH FROM (record_date - $4::timestamptz))), record_date ASC, created_at DESC
		LIMIT 1`

	row := r.pool.QueryRow(ctx, query,
		string(q.Scope), q.EntityID, string(q.Category), q.Anchor, q.Tolerance.Seconds(), q.Before,
	)

	s, err := scanSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find nearest snapshot: %w", err)
	}
	return s, nil
}

// ListByRecordDate returns snapshots for a scope between from and to, oldest first.
// entityID nil selects ORGANIZATION rows.
func (r *Repository) ListByRecordDate(ctx context.Context, scope contracts.Scope, entityID *uuid.UUID, from, to time.Time) ([]contracts.TrendSnapshot, error) {
	query := `SELECT ` + snapshotColumns + `
		FROM trend_snapshots
		WHERE scope = $1
		  AND entity_id IS NOT DISTINCT FROM $2
		  AND record_date BETWEEN $3 AND $4
		ORDER BY record_date, category, created_at DESC`

	rows, err := r.pool.Query(ctx, query, string(scope), entityID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []contracts.TrendSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (*contracts.TrendSnapshot, error) {
	var s contracts.TrendSnapshot
	var scope, category string

	err := row.Scan(
		&s.ID, &s.RunID, &scope, &s.EntityID, &s.TeamID, &category, &s.RecordDate, &s.CurrentValue,
		&s.PrevWeek, &s.PrevMonth, &s.PrevQuarter, &s.PrevYear,
		&s.DeltaWeek, &s.DeltaMonth, &s.DeltaQuarter, &s.DeltaYear,
		&s.ContributorCount, &s.DataPoints, &s.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Scope = contracts.Scope(scope)
	s.Category = contracts.Category(category)
	return &s, nil
}
