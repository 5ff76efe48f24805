package trends

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/memstore"
)

// countingLookup counts calls that reach the underlying history
type countingLookup struct {
	inner contracts.RatingLookup
	calls atomic.Int64
	err   error
}

func (c *countingLookup) FindLatestRating(ctx context.Context, employeeID uuid.UUID, category contracts.Category, asOf time.Time) (*contracts.RatingPoint, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.inner.FindLatestRating(ctx, employeeID, category, asOf)
}

func addRating(ratings *memstore.Ratings, employee uuid.UUID, category contracts.Category, value int, at time.Time) {
	ratings.AddRating(contracts.RatingPoint{
		EmployeeID: employee,
		Category:   category,
		Rating:     value,
		RatingDate: at,
	})
}

func TestComputeValueEmployee(t *testing.T) {
	ratings := memstore.NewRatings()
	emp := uuid.New()
	addRating(ratings, emp, contracts.CategoryAutonomy, 4, date(2024, 1, 2))
	addRating(ratings, emp, contracts.CategoryAutonomy, 7, date(2024, 1, 5))
	addRating(ratings, emp, contracts.CategoryAutonomy, 9, date(2024, 1, 9))

	agg := NewAggregator(ratings, nil)
	ref := contracts.EmployeeScope(contracts.Employee{ID: emp, Name: "kim"})

	got, found, err := agg.ComputeValue(context.Background(), ref, contracts.CategoryAutonomy, date(2024, 1, 7))

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7.0, got.Value)
	assert.Equal(t, 1, got.Contributors)
}

func TestComputeValueEmployeeBeforeFirstRating(t *testing.T) {
	ratings := memstore.NewRatings()
	emp := uuid.New()
	addRating(ratings, emp, contracts.CategoryMeaning, 5, date(2024, 2, 1))

	agg := NewAggregator(ratings, nil)
	ref := contracts.EmployeeScope(contracts.Employee{ID: emp})

	_, found, err := agg.ComputeValue(context.Background(), ref, contracts.CategoryMeaning, date(2024, 1, 7))

	require.NoError(t, err)
	assert.False(t, found)
}

func TestComputeValueTeamMean(t *testing.T) {
	ratings := memstore.NewRatings()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	addRating(ratings, a, contracts.CategoryCertainty, 6, date(2024, 1, 3))
	addRating(ratings, b, contracts.CategoryCertainty, 8, date(2024, 1, 4))
	// c has no rating and must not drag the mean down

	agg := NewAggregator(ratings, nil)
	team := contracts.TeamScope(contracts.Team{ID: uuid.New(), Name: "platform"}, []contracts.Employee{{ID: a}, {ID: b}, {ID: c}})

	got, found, err := agg.ComputeValue(context.Background(), team, contracts.CategoryCertainty, date(2024, 1, 7))

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7.0, got.Value)
	assert.Equal(t, 2, got.Contributors)
	assert.Equal(t, 2, got.DataPoints)
}

func TestComputeValueIgnoresDuplicateMembers(t *testing.T) {
	ratings := memstore.NewRatings()
	a, b := uuid.New(), uuid.New()
	addRating(ratings, a, contracts.CategoryProgress, 2, date(2024, 1, 3))
	addRating(ratings, b, contracts.CategoryProgress, 10, date(2024, 1, 3))

	agg := NewAggregator(ratings, nil)
	org := contracts.ScopeRef{Scope: contracts.ScopeOrganization, Members: []uuid.UUID{a, a, b}}

	got, found, err := agg.ComputeValue(context.Background(), org, contracts.CategoryProgress, date(2024, 1, 7))

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 6.0, got.Value)
	assert.Equal(t, 2, got.Contributors)
}

func TestComputeValueNoContributors(t *testing.T) {
	agg := NewAggregator(memstore.NewRatings(), nil)

	empty := contracts.TeamScope(contracts.Team{ID: uuid.New()}, nil)
	_, found, err := agg.ComputeValue(context.Background(), empty, contracts.CategoryMeaning, date(2024, 1, 7))
	require.NoError(t, err)
	assert.False(t, found)

	unrated := contracts.OrganizationScope([]contracts.Employee{{ID: uuid.New()}, {ID: uuid.New()}})
	_, found, err = agg.ComputeValue(context.Background(), unrated, contracts.CategoryMeaning, date(2024, 1, 7))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestComputeValueInvalidInput(t *testing.T) {
	agg := NewAggregator(memstore.NewRatings(), nil)
	ctx := context.Background()
	asOf := date(2024, 1, 7)

	tests := []struct {
		name     string
		ref      contracts.ScopeRef
		category contracts.Category
		wantErr  error
	}{
		{"unknown scope", contracts.ScopeRef{Scope: "DEPARTMENT"}, contracts.CategoryMeaning, ErrInvalidScope},
		{"employee without id", contracts.ScopeRef{Scope: contracts.ScopeEmployee}, contracts.CategoryMeaning, ErrInvalidScope},
		{"team without id", contracts.ScopeRef{Scope: contracts.ScopeTeam}, contracts.CategoryMeaning, ErrInvalidScope},
		{"nil member", contracts.ScopeRef{Scope: contracts.ScopeOrganization, Members: []uuid.UUID{uuid.Nil}}, contracts.CategoryMeaning, ErrInvalidScope},
		{"unknown category", contracts.EmployeeScope(contracts.Employee{ID: uuid.New()}), "HAPPINESS", ErrInvalidCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, found, err := agg.ComputeValue(ctx, tt.ref, tt.category, asOf)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.False(t, found)
		})
	}
}

func TestComputeValueRejectsOutOfRangeRating(t *testing.T) {
	ratings := memstore.NewRatings()
	emp := uuid.New()
	addRating(ratings, emp, contracts.CategorySocialInclusion, 11, date(2024, 1, 3))

	agg := NewAggregator(ratings, nil)
	_, _, err := agg.ComputeValue(context.Background(), contracts.EmployeeScope(contracts.Employee{ID: emp}), contracts.CategorySocialInclusion, date(2024, 1, 7))

	assert.ErrorIs(t, err, ErrInvalidRating)
}

func TestComputeValuePropagatesLookupError(t *testing.T) {
	boom := errors.New("connection reset")
	lookup := &countingLookup{inner: memstore.NewRatings(), err: boom}

	agg := NewAggregator(lookup, nil)
	_, found, err := agg.ComputeValue(context.Background(), contracts.EmployeeScope(contracts.Employee{ID: uuid.New()}), contracts.CategoryMeaning, date(2024, 1, 7))

	assert.ErrorIs(t, err, boom)
	assert.False(t, found)
	assert.Equal(t, 0, agg.CachedLookups())
}

func TestComputeValueMemoisesLookups(t *testing.T) {
	ratings := memstore.NewRatings()
	a, b := uuid.New(), uuid.New()
	addRating(ratings, a, contracts.CategoryAutonomy, 6, date(2024, 1, 3))
	addRating(ratings, b, contracts.CategoryAutonomy, 8, date(2024, 1, 3))
	lookup := &countingLookup{inner: ratings}

	agg := NewAggregator(lookup, nil)
	ctx := context.Background()
	asOf := date(2024, 1, 7)
	employees := []contracts.Employee{{ID: a}, {ID: b}}

	for _, e := range employees {
		_, _, err := agg.ComputeValue(ctx, contracts.EmployeeScope(e), contracts.CategoryAutonomy, asOf)
		require.NoError(t, err)
	}
	_, _, err := agg.ComputeValue(ctx, contracts.TeamScope(contracts.Team{ID: uuid.New()}, employees), contracts.CategoryAutonomy, asOf)
	require.NoError(t, err)
	_, _, err = agg.ComputeValue(ctx, contracts.OrganizationScope(employees), contracts.CategoryAutonomy, asOf)
	require.NoError(t, err)

	assert.Equal(t, int64(2), lookup.calls.Load())
	assert.Equal(t, 2, agg.CachedLookups())
}

func TestComputeValueConcurrentCallers(t *testing.T) {
	ratings := memstore.NewRatings()
	emp := uuid.New()
	addRating(ratings, emp, contracts.CategoryMeaning, 5, date(2024, 1, 3))

	agg := NewAggregator(&countingLookup{inner: ratings}, nil)
	ref := contracts.EmployeeScope(contracts.Employee{ID: emp})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, found, err := agg.ComputeValue(context.Background(), ref, contracts.CategoryMeaning, date(2024, 1, 7))
			assert.NoError(t, err)
			assert.True(t, found)
			assert.Equal(t, 5.0, got.Value)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, agg.CachedLookups())
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(0))
	assert.Nil(t, NewLimiter(-1))

	l := NewLimiter(0.5)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())

	l = NewLimiter(50)
	require.NotNil(t, l)
	assert.Equal(t, 50, l.Burst())
}

func TestComputeValueRespectsCancelledContextWhenThrottled(t *testing.T) {
	ratings := memstore.NewRatings()
	emp := uuid.New()
	addRating(ratings, emp, contracts.CategoryMeaning, 5, date(2024, 1, 3))

	agg := NewAggregator(ratings, NewLimiter(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := agg.ComputeValue(ctx, contracts.EmployeeScope(contracts.Employee{ID: emp}), contracts.CategoryMeaning, date(2024, 1, 7))

	assert.Error(t, err)
}
