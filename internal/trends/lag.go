package trends

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/camps/internal/contracts"
)

// LagFunc returns the lagged value for one comparison period, nil when absent
type LagFunc func(ctx context.Context, kind contracts.LagKind) (*float64, error)

// LagLocator finds previously written snapshots to compare against
type LagLocator struct {
	store     contracts.SnapshotStore
	tolerance time.Duration
}

// NewLagLocator creates a locator using the default tolerance
func NewLagLocator(store contracts.SnapshotStore) *LagLocator {
	return &LagLocator{store: store, tolerance: LagTolerance}
}

// For binds the locator to one scope, category and record date.
// Only snapshots recorded strictly before recordDate qualify, so a
// forced re-run never compares a window against itself.
func (l *LagLocator) For(ref contracts.ScopeRef, category contracts.Category, recordDate time.Time) LagFunc {
	return func(ctx context.Context, kind contracts.LagKind) (*float64, error) {
		snap, err := l.store.FindNearest(ctx, contracts.SnapshotQuery{
			Scope:     ref.Scope,
			EntityID:  ref.EntityID,
			Category:  category,
			Anchor:    LagAnchor(recordDate, kind),
			Tolerance: l.tolerance,
			Before:    recordDate,
		})
		if err != nil {
			return nil, fmt.Errorf("lookup %s lag for %s/%s: %w", kind, ref, category, err)
		}
		if snap == nil {
			return nil, nil
		}
		v := snap.CurrentValue
		return &v, nil
	}
}
