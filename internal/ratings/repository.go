package ratings

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

// Repository reads the rating history and the team/employee directory
// ⭐ SSOT: engagement_ratings / teams / employees 조회는 여기서만
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new ratings repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// FindLatestRating returns the most recent rating at or before asOf
func (r *Repository) FindLatestRating(ctx context.Context, employeeID uuid.UUID, category contracts.Category, asOf time.Time) (*contracts.RatingPoint, error) {
	query := `
		SELECT id, employee_id, category, rating, rating_date
		FROM engagement_ratings
		WHERE employee_id = $1
		  AND category = $2
		  AND rating_date <= $3
		ORDER BY rating_date DESC, created_at DESC
		LIMIT 1
	`

	var p contracts.RatingPoint
	var categoryStr string
	err := r.pool.QueryRow(ctx, query, employeeID, string(category), asOf).Scan(
		&p.ID, &p.EmployeeID, &categoryStr, &p.Rating, &p.RatingDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest rating: %w", err)
	}
	p.Category = contracts.Category(categoryStr)

	return &p, nil
}

// SaveRatings inserts rating points in one round trip
func (r *Repository) SaveRatings(ctx context.Context, points []contracts.RatingPoint) error {
	if len(points) == 0 {
		return nil
	}

	query := `
		INSERT INTO engagement_ratings (id, employee_id, category, rating, rating_date)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	batch := &pgx.Batch{}
	for i := range points {
		p := &points[i]
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		batch.Queue(query, p.ID, p.EmployeeID, string(p.Category), p.Rating, p.RatingDate)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range points {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to save rating %d: %w", i, err)
		}
	}
	return nil
}

// ListTeams returns every team ordered by name
func (r *Repository) ListTeams(ctx context.Context) ([]contracts.Team, error) {
	query := `SELECT id, name, created_at FROM teams ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list teams: %w", err)
	}
	defer rows.Close()

	var teams []contracts.Team
	for rows.Next() {
		var t contracts.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan team: %w", err)
		}
		teams = append(teams, t)
	}

	return teams, rows.Err()
}

// ListEmployees returns every employee ordered by name
func (r *Repository) ListEmployees(ctx context.Context) ([]contracts.Employee, error) {
	query := `
		SELECT id, name, team_id, manager_id, created_at
		FROM employees
		ORDER BY name, id
	`
	return r.queryEmployees(ctx, query)
}

// ListEmployeesOfTeam returns the members of one team
func (r *Repository) ListEmployeesOfTeam(ctx context.Context, teamID uuid.UUID) ([]contracts.Employee, error) {
	query := `
		SELECT id, name, team_id, manager_id, created_at
		FROM employees
		WHERE team_id = $1
		ORDER BY name, id
	`
	return r.queryEmployees(ctx, query, teamID)
}

// SaveTeam upserts a team
func (r *Repository) SaveTeam(ctx context.Context, t *contracts.Team) error {
	query := `
		INSERT INTO teams (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
	`
	if _, err := r.pool.Exec(ctx, query, t.ID, t.Name); err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	return nil
}

// SaveEmployee upserts an employee
func (r *Repository) SaveEmployee(ctx context.Context, e *contracts.Employee) error {
	query := `
		INSERT INTO employees (id, name, team_id, manager_id) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			team_id = EXCLUDED.team_id,
			manager_id = EXCLUDED.manager_id
	`
	if _, err := r.pool.Exec(ctx, query, e.ID, e.Name, e.TeamID, e.ManagerID); err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

func (r *Repository) queryEmployees(ctx context.Context, query string, args ...interface{}) ([]contracts.Employee, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list employees: %w", err)
	}
	defer rows.Close()

	var employees []contracts.Employee
	for rows.Next() {
		var e contracts.Employee
		if err := rows.Scan(&e.ID, &e.Name, &e.TeamID, &e.ManagerID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, e)
	}

	return employees, rows.Err()
}
