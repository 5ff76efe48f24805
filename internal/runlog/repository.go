package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/pkg/database"
)

// Repository persists analytics_processing_log rows
// ⭐ SSOT: processing log 저장/조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new processing log repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const logColumns = `id, snapshot_type, processing_date, start_date, end_date, status, error_message, completed_at, version, created_at`

// FindLatestCompleted returns the completed row reaching furthest forward.
// An empty windowType matches every type.
func (r *Repository) FindLatestCompleted(ctx context.Context, windowType contracts.WindowType) (*contracts.ProcessingLog, error) {
	query := `SELECT ` + logColumns + `
		FROM analytics_processing_log
		WHERE ($1 = '' OR snapshot_type = $1) AND status = 'COMPLETED'
		ORDER BY end_date DESC, processing_date DESC
		LIMIT 1`

	l, err := scanLog(r.pool.QueryRow(ctx, query, string(windowType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest completed log: %w", err)
	}
	return l, nil
}

// Insert writes a new row. A second PENDING row for the same window start,
// of any window type, violates the partial unique index and maps to contracts.ErrRunInProgress.
func (r *Repository) Insert(ctx context.Context, l *contracts.ProcessingLog) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `INSERT INTO analytics_processing_log (` + logColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.pool.Exec(ctx, query,
		l.ID, string(l.WindowType), l.RunAt, l.WindowStart, l.WindowEnd,
		string(l.Status), l.ErrorMessage, l.CompletedAt, l.Version, l.CreatedAt,
	)
	if database.IsUniqueViolation(err, database.PendingWindowConstraint) {
		return contracts.ErrRunInProgress
	}
	if err != nil {
		return fmt.Errorf("failed to insert processing log: %w", err)
	}
	return nil
}

// Update writes status fields guarded by the row version
func (r *Repository) Update(ctx context.Context, l *contracts.ProcessingLog) error {
	query := `
		UPDATE analytics_processing_log
		SET status = $1, error_message = $2, completed_at = $3, version = version + 1
		WHERE id = $4 AND version = $5
	`

	tag, err := r.pool.Exec(ctx, query, string(l.Status), l.ErrorMessage, l.CompletedAt, l.ID, l.Version)
	if err != nil {
		return fmt.Errorf("failed to update processing log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrVersionConflict
	}

	l.Version++
	return nil
}

// AbandonStale fails PENDING rows for windowStart whose run began before cutoff
func (r *Repository) AbandonStale(ctx context.Context, windowType contracts.WindowType, windowStart, cutoff time.Time) (int64, error) {
	query := `
		UPDATE analytics_processing_log
		SET status = 'FAILED',
		    error_message = 'abandoned: pending run exceeded stale threshold',
		    version = version + 1
		WHERE ($1 = '' OR snapshot_type = $1) AND start_date = $2 AND status = 'PENDING' AND processing_date < $3
	`

	tag, err := r.pool.Exec(ctx, query, string(windowType), windowStart, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to abandon stale logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListRecent returns rows newest first; an empty windowType lists every type
func (r *Repository) ListRecent(ctx context.Context, windowType contracts.WindowType, limit int) ([]contracts.ProcessingLog, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + logColumns + `
		FROM analytics_processing_log
		WHERE $1 = '' OR snapshot_type = $1
		ORDER BY processing_date DESC
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, string(windowType), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list processing logs: %w", err)
	}
	defer rows.Close()

	var logs []contracts.ProcessingLog
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan processing log: %w", err)
		}
		logs = append(logs, *l)
	}
	return logs, rows.Err()
}

func scanLog(row pgx.Row) (*contracts.ProcessingLog, error) {
	var l contracts.ProcessingLog
	var windowType, status string

	err := row.Scan(
		&l.ID, &windowType, &l.RunAt, &l.WindowStart, &l.WindowEnd,
		&status, &l.ErrorMessage, &l.CompletedAt, &l.Version, &l.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.WindowType = contracts.WindowType(windowType)
	l.Status = contracts.ProcessingStatus(status)
	return &l, nil
}
