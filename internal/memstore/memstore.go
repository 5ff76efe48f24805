// Package memstore keeps trend data in process memory. It backs dry runs
// and tests; semantics match the PostgreSQL repositories.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/camps/internal/contracts"
)

// Snapshots is an in-memory contracts.SnapshotStore
type Snapshots struct {
	mu    sync.RWMutex
	items []contracts.TrendSnapshot
}

// NewSnapshots creates an empty snapshot store
func NewSnapshots() *Snapshots {
	return &Snapshots{}
}

// Save appends a snapshot
func (s *Snapshots) Save(ctx context.Context, snapshot *contracts.TrendSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *snapshot
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.items = append(s.items, cp)
	return nil
}

// FindNearest returns the snapshot closest to q.Anchor within q.Tolerance.
// Ties go to the earlier record date, then to the newest row.
func (s *Snapshots) FindNearest(ctx context.Context, q contracts.SnapshotQuery) (*contracts.TrendSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *contracts.TrendSnapshot
	var bestDist time.Duration
	for i := range s.items {
		item := &s.items[i]
		if item.Scope != q.Scope || item.Category != q.Category || !sameEntity(item.EntityID, q.EntityID) {
			continue
		}
		if !item.RecordDate.Before(q.Before) {
			continue
		}
		dist := absDuration(item.RecordDate.Sub(q.Anchor))
		if dist > q.Tolerance {
			continue
		}
		if best == nil || dist < bestDist ||
			(dist == bestDist && item.RecordDate.Before(best.RecordDate)) ||
			(dist == bestDist && item.RecordDate.Equal(best.RecordDate) && item.CreatedAt.After(best.CreatedAt)) {
			best = item
			bestDist = dist
		}
	}

	if best == nil {
		return nil, nil
	}
	cp := *best
	return &cp, nil
}

// All returns a copy of every stored snapshot
func (s *Snapshots) All() []contracts.TrendSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]contracts.TrendSnapshot, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of stored snapshots
func (s *Snapshots) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// ProcessingLogs is an in-memory contracts.ProcessingLogStore.
// It enforces one PENDING row per window start, whatever the window type.
type ProcessingLogs struct {
	mu   sync.Mutex
	logs []contracts.ProcessingLog
}

// NewProcessingLogs creates an empty log store
func NewProcessingLogs() *ProcessingLogs {
	return &ProcessingLogs{}
}

// FindLatestCompleted returns the completed log reaching furthest forward.
// An empty windowType matches every type.
func (p *ProcessingLogs) FindLatestCompleted(ctx context.Context, windowType contracts.WindowType) (*contracts.ProcessingLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var latest *contracts.ProcessingLog
	for i := range p.logs {
		l := &p.logs[i]
		if (windowType != "" && l.WindowType != windowType) || l.Status != contracts.StatusCompleted {
			continue
		}
		if latest == nil || l.WindowEnd.After(latest.WindowEnd) ||
			(l.WindowEnd.Equal(latest.WindowEnd) && l.RunAt.After(latest.RunAt)) {
			latest = l
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// Insert stores a new log row
func (p *ProcessingLogs) Insert(ctx context.Context, log *contracts.ProcessingLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if log.Status == contracts.StatusPending {
		for _, existing := range p.logs {
			if existing.Status == contracts.StatusPending &&
				existing.WindowStart.Equal(log.WindowStart) {
				return contracts.ErrRunInProgress
			}
		}
	}

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}
	p.logs = append(p.logs, *log)
	return nil
}

// Update replaces a row when the version matches
func (p *ProcessingLogs) Update(ctx context.Context, log *contracts.ProcessingLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.logs {
		if p.logs[i].ID != log.ID {
			continue
		}
		if p.logs[i].Version != log.Version {
			return contracts.ErrVersionConflict
		}
		log.Version++
		p.logs[i] = *log
		return nil
	}
	return contracts.ErrVersionConflict
}

// AbandonStale fails PENDING rows for the window start created before cutoff
func (p *ProcessingLogs) AbandonStale(ctx context.Context, windowType contracts.WindowType, windowStart, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var n int64
	msg := "abandoned: pending run exceeded stale threshold"
	for i := range p.logs {
		l := &p.logs[i]
		if l.Status == contracts.StatusPending && (windowType == "" || l.WindowType == windowType) &&
			l.WindowStart.Equal(windowStart) && l.RunAt.Before(cutoff) {
			l.Status = contracts.StatusFailed
			l.ErrorMessage = &msg
			l.Version++
			n++
		}
	}
	return n, nil
}

// ListRecent returns logs newest first
func (p *ProcessingLogs) ListRecent(ctx context.Context, windowType contracts.WindowType, limit int) ([]contracts.ProcessingLog, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]contracts.ProcessingLog, 0, len(p.logs))
	for _, l := range p.logs {
		if windowType == "" || l.WindowType == windowType {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RunAt.After(out[j].RunAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ratings is an in-memory rating history and directory
type Ratings struct {
	mu        sync.RWMutex
	teams     []contracts.Team
	employees []contracts.Employee
	points    map[ratingKey][]contracts.RatingPoint
}

type ratingKey struct {
	employee uuid.UUID
	category contracts.Category
}

// NewRatings creates an empty rating history
func NewRatings() *Ratings {
	return &Ratings{points: make(map[ratingKey][]contracts.RatingPoint)}
}

// AddTeam registers a team
func (r *Ratings) AddTeam(t contracts.Team) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teams = append(r.teams, t)
}

// AddEmployee registers an employee
func (r *Ratings) AddEmployee(e contracts.Employee) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.employees = append(r.employees, e)
}

// AddRating records a rating point
func (r *Ratings) AddRating(p contracts.RatingPoint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	k := ratingKey{p.EmployeeID, p.Category}
	r.points[k] = append(r.points[k], p)
}

// FindLatestRating implements contracts.RatingLookup
func (r *Ratings) FindLatestRating(ctx context.Context, employeeID uuid.UUID, category contracts.Category, asOf time.Time) (*contracts.RatingPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *contracts.RatingPoint
	for i, p := range r.points[ratingKey{employeeID, category}] {
		if p.RatingDate.After(asOf) {
			continue
		}
		if latest == nil || p.RatingDate.After(latest.RatingDate) {
			latest = &r.points[ratingKey{employeeID, category}][i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// ListTeams implements contracts.Directory
func (r *Ratings) ListTeams(ctx context.Context) ([]contracts.Team, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.Team, len(r.teams))
	copy(out, r.teams)
	return out, nil
}

// ListEmployees implements contracts.Directory
func (r *Ratings) ListEmployees(ctx context.Context) ([]contracts.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]contracts.Employee, len(r.employees))
	copy(out, r.employees)
	return out, nil
}

// ListEmployeesOfTeam implements contracts.Directory
func (r *Ratings) ListEmployeesOfTeam(ctx context.Context, teamID uuid.UUID) ([]contracts.Employee, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []contracts.Employee
	for _, e := range r.employees {
		if e.TeamID != nil && *e.TeamID == teamID {
			out = append(out, e)
		}
	}
	return out, nil
}

func sameEntity(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
