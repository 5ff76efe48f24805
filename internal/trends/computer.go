package trends

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/camps/internal/contracts"
)

// Delta returns current - lag, or nil when there is no baseline
func Delta(current float64, lag *float64) *float64 {
	if lag == nil {
		return nil
	}
	d := current - *lag
	return &d
}

// Computer assembles trend snapshots from a current value and its lags
type Computer struct {
	now   func() time.Time
	newID func() uuid.UUID
}

// NewComputer creates a computer using the wall clock and random ids
func NewComputer() *Computer {
	return &Computer{now: time.Now, newID: uuid.New}
}

// Compose builds the snapshot for one (scope, category, record date).
// A lag lookup error aborts the item; a missing lag leaves both fields nil.
func (c *Computer) Compose(ctx context.Context, ref contracts.ScopeRef, category contracts.Category, recordDate time.Time, agg Aggregate, lag LagFunc) (*contracts.TrendSnapshot, error) {
	snap := &contracts.TrendSnapshot{
		ID:           c.newID(),
		Scope:        ref.Scope,
		EntityID:     ref.EntityID,
		TeamID:       ref.TeamID,
		Category:     category,
		RecordDate:   recordDate,
		CurrentValue: agg.Value,
		CreatedAt:    c.now(),
	}

	if ref.Scope != contracts.ScopeEmployee {
		contributors, points := agg.Contributors, agg.DataPoints
		snap.ContributorCount = &contributors
		snap.DataPoints = &points
	}

	for _, kind := range contracts.AllLagKinds() {
		previous, err := lag(ctx, kind)
		if err != nil {
			return nil, err
		}
		snap.SetLag(kind, previous, Delta(agg.Value, previous))
	}

	return snap, nil
}
