package ratings

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/pkg/config"
	"github.com/wonny/camps/pkg/database"
)

func openTestRepo(t *testing.T) (*Repository, *database.DB) {
	t.Helper()

	// Skip if DATABASE_URL is not set
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	require.NoError(t, db.EnsureSchema(context.Background()))
	return NewRepository(db.Pool), db
}

// seedTeam writes a team with two members and removes them afterwards
func seedTeam(t *testing.T, repo *Repository, db *database.DB) (contracts.Team, []contracts.Employee) {
	t.Helper()
	ctx := context.Background()

	team := contracts.Team{ID: uuid.New(), Name: "team-" + uuid.NewString()[:8]}
	require.NoError(t, repo.SaveTeam(ctx, &team))

	lead := contracts.Employee{ID: uuid.New(), Name: "lead", TeamID: &team.ID}
	member := contracts.Employee{ID: uuid.New(), Name: "member", TeamID: &team.ID, ManagerID: &lead.ID}
	require.NoError(t, repo.SaveEmployee(ctx, &lead))
	require.NoError(t, repo.SaveEmployee(ctx, &member))

	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = db.Pool.Exec(ctx, `DELETE FROM employees WHERE id = $1 OR id = $2`, member.ID, lead.ID)
		_, _ = db.Pool.Exec(ctx, `DELETE FROM teams WHERE id = $1`, team.ID)
	})
	return team, []contracts.Employee{lead, member}
}

func TestRepository_Directory(t *testing.T) {
	repo, db := openTestRepo(t)
	ctx := context.Background()
	team, members := seedTeam(t, repo, db)

	teams, err := repo.ListTeams(ctx)
	require.NoError(t, err)
	var found bool
	for _, tm := range teams {
		if tm.ID == team.ID {
			found = true
			assert.Equal(t, team.Name, tm.Name)
		}
	}
	assert.True(t, found)

	got, err := repo.ListEmployeesOfTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "lead", got[0].Name)
	assert.Equal(t, members[0].ID, *got[1].ManagerID)

	// upsert renames in place
	renamed := members[1]
	renamed.Name = "member-renamed"
	require.NoError(t, repo.SaveEmployee(ctx, &renamed))
	got, err = repo.ListEmployeesOfTeam(ctx, team.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "member-renamed", got[1].Name)
}

func TestRepository_FindLatestRatingAsOf(t *testing.T) {
	repo, db := openTestRepo(t)
	ctx := context.Background()
	_, members := seedTeam(t, repo, db)
	emp := members[1].ID

	day := func(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }
	points := []contracts.RatingPoint{
		{EmployeeID: emp, Category: contracts.CategoryMeaning, Rating: 4, RatingDate: day(2)},
		{EmployeeID: emp, Category: contracts.CategoryMeaning, Rating: 7, RatingDate: day(9)},
		{EmployeeID: emp, Category: contracts.CategoryProgress, Rating: 2, RatingDate: day(3)},
	}
	require.NoError(t, repo.SaveRatings(ctx, points))
	for _, p := range points {
		assert.NotEqual(t, uuid.Nil, p.ID)
	}

	// replaying the same ids is a no-op
	require.NoError(t, repo.SaveRatings(ctx, points))

	got, err := repo.FindLatestRating(ctx, emp, contracts.CategoryMeaning, day(8))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4, got.Rating)

	got, err = repo.FindLatestRating(ctx, emp, contracts.CategoryMeaning, day(9))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.Rating)

	got, err = repo.FindLatestRating(ctx, emp, contracts.CategoryMeaning, day(1))
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.FindLatestRating(ctx, emp, contracts.CategoryAutonomy, day(20))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRepository_SaveRatingsRejectsOutOfRange(t *testing.T) {
	repo, db := openTestRepo(t)
	_, members := seedTeam(t, repo, db)

	err := repo.SaveRatings(context.Background(), []contracts.RatingPoint{
		{EmployeeID: members[0].ID, Category: contracts.CategoryCertainty, Rating: 11, RatingDate: time.Now()},
	})
	assert.Error(t, err)
}
