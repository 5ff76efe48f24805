package contracts

import (
	"time"

	"github.com/google/uuid"
)

// Team is a group of employees
type Team struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Employee references its team and manager by id only
type Employee struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	TeamID    *uuid.UUID `json:"team_id,omitempty"`
	ManagerID *uuid.UUID `json:"manager_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// RatingPoint is one engagement rating for an employee and category
type RatingPoint struct {
	ID         uuid.UUID `json:"id"`
	EmployeeID uuid.UUID `json:"employee_id"`
	Category   Category  `json:"category"`
	Rating     int       `json:"rating"` // 1-10
	RatingDate time.Time `json:"rating_date"`
}

// Rating bounds
const (
	MinRating = 1
	MaxRating = 10
)

// EmployeeIDs extracts ids preserving order
func EmployeeIDs(employees []Employee) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(employees))
	for _, e := range employees {
		ids = append(ids, e.ID)
	}
	return ids
}
