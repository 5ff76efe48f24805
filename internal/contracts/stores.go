package contracts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ⭐ SSOT: 트렌드 엔진이 소비하는 저장소 인터페이스는 여기서만

var (
	// ErrRunInProgress is returned when a PENDING run already holds the window
	ErrRunInProgress = errors.New("a run for this window is already in progress")

	// ErrVersionConflict is returned when a processing log changed underneath an update
	ErrVersionConflict = errors.New("processing log version conflict")
)

// RatingLookup answers as-of questions against the rating history
type RatingLookup interface {
	// FindLatestRating returns the most recent rating with rating_date <= asOf,
	// or nil when the employee has none.
	FindLatestRating(ctx context.Context, employeeID uuid.UUID, category Category, asOf time.Time) (*RatingPoint, error)
}

// Directory lists the teams and employees a run iterates
type Directory interface {
	ListTeams(ctx context.Context) ([]Team, error)
	ListEmployees(ctx context.Context) ([]Employee, error)
	ListEmployeesOfTeam(ctx context.Context, teamID uuid.UUID) ([]Employee, error)
}

// SnapshotQuery locates the snapshot nearest to a lag anchor
type SnapshotQuery struct {
	Scope     Scope
	EntityID  *uuid.UUID
	Category  Category
	Anchor    time.Time
	Tolerance time.Duration
	Before    time.Time // record dates must be strictly earlier
}

// SnapshotStore persists insert-only trend snapshots
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *TrendSnapshot) error
	FindNearest(ctx context.Context, q SnapshotQuery) (*TrendSnapshot, error)
}

// ProcessingLogStore persists the run audit trail
// An empty WindowType argument matches every type.
type ProcessingLogStore interface {
	FindLatestCompleted(ctx context.Context, windowType WindowType) (*ProcessingLog, error)
	Insert(ctx context.Context, log *ProcessingLog) error
	// Update writes status fields when the stored version matches log.Version,
	// then increments log.Version.
	Update(ctx context.Context, log *ProcessingLog) error
	// AbandonStale marks PENDING rows for the window start older than cutoff as FAILED.
	AbandonStale(ctx context.Context, windowType WindowType, windowStart, cutoff time.Time) (int64, error)
	ListRecent(ctx context.Context, windowType WindowType, limit int) ([]ProcessingLog, error)
}
