package contracts

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllCategories(t *testing.T) {
	cats := AllCategories()
	require.Len(t, cats, 5)
	assert.Equal(t, CategoryCertainty, cats[0])
	assert.Equal(t, CategorySocialInclusion, cats[4])

	// callers must not be able to mutate the shared list
	cats[0] = "BROKEN"
	assert.Equal(t, CategoryCertainty, AllCategories()[0])
}

func TestParseCategory(t *testing.T) {
	tests := []struct {
		input   string
		want    Category
		wantErr bool
	}{
		{"CERTAINTY", CategoryCertainty, false},
		{"social_inclusion", CategorySocialInclusion, false},
		{"  progress ", CategoryProgress, false},
		{"happiness", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseCategory(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCategoryValues_AbsenceIsNotZero(t *testing.T) {
	values := CategoryValues{CategoryAutonomy: 0}

	v, ok := values.Get(CategoryAutonomy)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	_, ok = values.Get(CategoryMeaning)
	assert.False(t, ok)
}

func TestScopeRefs(t *testing.T) {
	teamID := uuid.New()
	alice := Employee{ID: uuid.New(), Name: "alice", TeamID: &teamID}
	bob := Employee{ID: uuid.New(), Name: "bob"}

	emp := EmployeeScope(alice)
	assert.Equal(t, ScopeEmployee, emp.Scope)
	require.NotNil(t, emp.EntityID)
	assert.Equal(t, alice.ID, *emp.EntityID)
	assert.Equal(t, &teamID, emp.TeamID)

	team := TeamScope(Team{ID: teamID, Name: "core"}, []Employee{alice, bob})
	assert.Equal(t, ScopeTeam, team.Scope)
	assert.Equal(t, []uuid.UUID{alice.ID, bob.ID}, team.Members)

	org := OrganizationScope([]Employee{alice, bob})
	assert.Nil(t, org.EntityID)
	assert.Equal(t, "ORGANIZATION", org.String())
	assert.Len(t, org.Members, 2)
}

func TestTrendSnapshot_LagAccessors(t *testing.T) {
	prev := 6.0
	delta := 1.0

	s := &TrendSnapshot{}
	for _, kind := range AllLagKinds() {
		assert.Nil(t, s.Previous(kind))
		assert.Nil(t, s.Delta(kind))
	}

	s.SetLag(LagQuarter, &prev, &delta)
	assert.Equal(t, &prev, s.PrevQuarter)
	assert.Equal(t, &delta, s.Delta(LagQuarter))
	assert.Nil(t, s.Previous(LagYear))
}

func TestProcessingLog_Covers(t *testing.T) {
	end := time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC)

	completed := &ProcessingLog{Status: StatusCompleted, WindowEnd: end}
	assert.True(t, completed.Covers(end))
	assert.True(t, completed.Covers(end.AddDate(0, 0, -7)))
	assert.False(t, completed.Covers(end.AddDate(0, 0, 7)))

	failed := &ProcessingLog{Status: StatusFailed, WindowEnd: end}
	assert.False(t, failed.Covers(end))

	var none *ProcessingLog
	assert.False(t, none.Covers(end))
}

func TestParseWindowType(t *testing.T) {
	wt, ok := ParseWindowType("WEEKLY")
	assert.True(t, ok)
	assert.Equal(t, WindowWeekly, wt)

	_, ok = ParseWindowType("hourly")
	assert.False(t, ok)
}
