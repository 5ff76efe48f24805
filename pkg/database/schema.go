package database

import (
	"context"
	"fmt"
)

// PendingWindowConstraint guards against two PENDING runs for the same window start.
// Every window type shares it.
const PendingWindowConstraint = "uq_processing_log_pending_start"

// schemaStatements creates every table the trend engine reads or writes.
// Statements are idempotent and applied in order.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS teams (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		team_id    UUID REFERENCES teams(id) ON DELETE SET NULL,
		manager_id UUID REFERENCES employees(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_employees_team ON employees (team_id)`,
	`CREATE TABLE IF NOT EXISTS engagement_ratings (
		id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		employee_id UUID NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		category    TEXT NOT NULL CHECK (category IN ('CERTAINTY', 'AUTONOMY', 'MEANING', 'PROGRESS', 'SOCIAL_INCLUSION')),
		rating      SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 10),
		rating_date TIMESTAMPTZ NOT NULL,
		notes       TEXT,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	// as-of lookups: latest rating per (employee, category) at or before a date
	`CREATE INDEX IF NOT EXISTS idx_engagement_ratings_asof
		ON engagement_ratings (employee_id, category, rating_date DESC)`,
	`CREATE TABLE IF NOT EXISTS trend_snapshots (
		id                UUID PRIMARY KEY,
		run_id            UUID,
		scope             TEXT NOT NULL CHECK (scope IN ('EMPLOYEE', 'TEAM', 'ORGANIZATION')),
		entity_id         UUID,
		team_id           UUID,
		category          TEXT NOT NULL,
		record_date       TIMESTAMPTZ NOT NULL,
		current_value     DOUBLE PRECISION NOT NULL,
		prev_week         DOUBLE PRECISION,
		prev_month        DOUBLE PRECISION,
		prev_quarter      DOUBLE PRECISION,
		prev_year         DOUBLE PRECISION,
		delta_week        DOUBLE PRECISION,
		delta_month       DOUBLE PRECISION,
		delta_quarter     DOUBLE PRECISION,
		delta_year        DOUBLE PRECISION,
		contributor_count INTEGER,
		data_points       INTEGER,
		created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK ((scope = 'ORGANIZATION') = (entity_id IS NULL))
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trend_snapshots_lag
		ON trend_snapshots (scope, entity_id, category, record_date)`,
	`CREATE TABLE IF NOT EXISTS analytics_processing_log (
		id              UUID PRIMARY KEY,
		snapshot_type   TEXT NOT NULL,
		processing_date TIMESTAMPTZ NOT NULL,
		start_date      TIMESTAMPTZ NOT NULL,
		end_date        TIMESTAMPTZ NOT NULL,
		status          TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED')),
		error_message   TEXT,
		completed_at    TIMESTAMPTZ,
		version         BIGINT NOT NULL DEFAULT 0,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`DROP INDEX IF EXISTS uq_processing_log_pending_window`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ` + PendingWindowConstraint + `
		ON analytics_processing_log (start_date)
		WHERE status = 'PENDING'`,
	`CREATE INDEX IF NOT EXISTS idx_processing_log_completed_end
		ON analytics_processing_log (status, end_date DESC)`,
}

// EnsureSchema creates missing tables and indexes
func (db *DB) EnsureSchema(ctx context.Context) error {
	for i, stmt := range schemaStatements {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
