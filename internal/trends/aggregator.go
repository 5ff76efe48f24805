package trends

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wonny/camps/internal/contracts"
)

var (
	// ErrInvalidScope is returned for scope references that cannot be aggregated
	ErrInvalidScope = errors.New("invalid scope reference")

	// ErrInvalidCategory is returned for categories outside the CAMPS set
	ErrInvalidCategory = errors.New("invalid category")

	// ErrInvalidRating is returned when stored data falls outside 1..10
	ErrInvalidRating = errors.New("rating out of range")
)

// Aggregate is the current value for one (scope, category, date)
type Aggregate struct {
	Value        float64
	Contributors int
	DataPoints   int
}

// Aggregator turns rating history into current values.
// One Aggregator serves one run: lookups are memoised per
// (employee, category, as-of) so the TEAM, EMPLOYEE and ORGANIZATION
// passes share every rating read, whichever pass reads it first.
type Aggregator struct {
	lookup  contracts.RatingLookup
	limiter *rate.Limiter

	mu    sync.RWMutex
	cache map[lookupKey]*contracts.RatingPoint
	group singleflight.Group
}

type lookupKey struct {
	employee uuid.UUID
	category contracts.Category
	asOf     int64
}

// NewAggregator creates an aggregator over lookup.
// limiter may be nil for unthrottled lookups.
func NewAggregator(lookup contracts.RatingLookup, limiter *rate.Limiter) *Aggregator {
	return &Aggregator{
		lookup:  lookup,
		limiter: limiter,
		cache:   make(map[lookupKey]*contracts.RatingPoint),
	}
}

// NewLimiter builds a lookup throttle; rps <= 0 disables throttling
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// ComputeValue derives the current value for ref and category as of asOf.
// EMPLOYEE: latest rating at or before asOf.
// TEAM / ORGANIZATION: mean of members' latest ratings, members without one excluded.
// found is false when no rating contributes; the caller skips the item.
func (a *Aggregator) ComputeValue(ctx context.Context, ref contracts.ScopeRef, category contracts.Category, asOf time.Time) (Aggregate, bool, error) {
	if !category.Valid() {
		return Aggregate{}, false, fmt.Errorf("%w: %q", ErrInvalidCategory, category)
	}

	switch ref.Scope {
	case contracts.ScopeEmployee:
		if ref.EntityID == nil || *ref.EntityID == uuid.Nil {
			return Aggregate{}, false, fmt.Errorf("%w: employee scope without id", ErrInvalidScope)
		}
		point, err := a.latest(ctx, *ref.EntityID, category, asOf)
		if err != nil || point == nil {
			return Aggregate{}, false, err
		}
		return Aggregate{Value: float64(point.Rating), Contributors: 1, DataPoints: 1}, true, nil

	case contracts.ScopeTeam, contracts.ScopeOrganization:
		if ref.Scope == contracts.ScopeTeam && (ref.EntityID == nil || *ref.EntityID == uuid.Nil) {
			return Aggregate{}, false, fmt.Errorf("%w: team scope without id", ErrInvalidScope)
		}
		return a.mean(ctx, ref, category, asOf)
	}

	return Aggregate{}, false, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, ref.Scope)
}

func (a *Aggregator) mean(ctx context.Context, ref contracts.ScopeRef, category contracts.Category, asOf time.Time) (Aggregate, bool, error) {
	seen := make(map[uuid.UUID]struct{}, len(ref.Members))
	sum, found := 0, 0

	for _, member := range ref.Members {
		if member == uuid.Nil {
			return Aggregate{}, false, fmt.Errorf("%w: %s has a member without id", ErrInvalidScope, ref)
		}
		if _, dup := seen[member]; dup {
			continue
		}
		seen[member] = struct{}{}

		point, err := a.latest(ctx, member, category, asOf)
		if err != nil {
			return Aggregate{}, false, err
		}
		if point == nil {
			continue
		}
		sum += point.Rating
		found++
	}

	if found == 0 {
		return Aggregate{}, false, nil
	}
	return Aggregate{
		Value:        float64(sum) / float64(found),
		Contributors: found,
		DataPoints:   found,
	}, true, nil
}

// latest returns the memoised rating lookup; concurrent callers share one query
func (a *Aggregator) latest(ctx context.Context, employee uuid.UUID, category contracts.Category, asOf time.Time) (*contracts.RatingPoint, error) {
	key := lookupKey{employee: employee, category: category, asOf: asOf.UnixNano()}

	a.mu.RLock()
	point, ok := a.cache[key]
	a.mu.RUnlock()
	if ok {
		return point, nil
	}

	flightKey := fmt.Sprintf("%s|%s|%d", employee, category, key.asOf)
	v, err, _ := a.group.Do(flightKey, func() (interface{}, error) {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		p, err := a.lookup.FindLatestRating(ctx, employee, category, asOf)
		if err != nil {
			return nil, fmt.Errorf("find latest rating for %s/%s: %w", employee, category, err)
		}
		if p != nil && (p.Rating < contracts.MinRating || p.Rating > contracts.MaxRating) {
			return nil, fmt.Errorf("%w: %d for %s/%s", ErrInvalidRating, p.Rating, employee, category)
		}

		a.mu.Lock()
		a.cache[key] = p
		a.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*contracts.RatingPoint), nil
}

// CachedLookups returns how many distinct lookups are memoised
func (a *Aggregator) CachedLookups() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
