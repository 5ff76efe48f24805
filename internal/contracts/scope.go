package contracts

import (
	"fmt"

	"github.com/google/uuid"
)

// Scope is the entity kind a trend snapshot describes
type Scope string

const (
	ScopeEmployee     Scope = "EMPLOYEE"
	ScopeTeam         Scope = "TEAM"
	ScopeOrganization Scope = "ORGANIZATION"
)

// Valid reports whether s is a known scope
func (s Scope) Valid() bool {
	switch s {
	case ScopeEmployee, ScopeTeam, ScopeOrganization:
		return true
	}
	return false
}

// ScopeRef identifies one aggregate target.
// Members lists the employees averaged for TEAM and ORGANIZATION scopes.
type ScopeRef struct {
	Scope    Scope
	EntityID *uuid.UUID // nil for ORGANIZATION
	TeamID   *uuid.UUID // team of an EMPLOYEE scope, informational
	Label    string
	Members  []uuid.UUID
}

// EmployeeScope builds the scope reference for a single employee
func EmployeeScope(e Employee) ScopeRef {
	id := e.ID
	return ScopeRef{
		Scope:    ScopeEmployee,
		EntityID: &id,
		TeamID:   e.TeamID,
		Label:    e.Name,
	}
}

// TeamScope builds the scope reference for a team and its members
func TeamScope(t Team, members []Employee) ScopeRef {
	id := t.ID
	return ScopeRef{
		Scope:    ScopeTeam,
		EntityID: &id,
		Label:    t.Name,
		Members:  EmployeeIDs(members),
	}
}

// OrganizationScope builds the organization-wide scope reference
func OrganizationScope(employees []Employee) ScopeRef {
	return ScopeRef{
		Scope:   ScopeOrganization,
		Label:   "organization",
		Members: EmployeeIDs(employees),
	}
}

// String renders the reference for logs
func (r ScopeRef) String() string {
	if r.EntityID == nil {
		return string(r.Scope)
	}
	return fmt.Sprintf("%s:%s", r.Scope, r.EntityID)
}
