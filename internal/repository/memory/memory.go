// Package memory provides an in-process Repository for development and tests.
//
// All state lives behind one mutex, which gives every operation the same
// single-document atomicity the real backends provide. Values are copied in
// and out so callers never share memory with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
)

// Store is an in-memory implementation of repository.Repository.
type Store struct {
	mu           sync.Mutex
	users        map[uuid.UUID]domain.User
	sessions     map[string]domain.Session
	jobs         map[uuid.UUID]domain.Job
	applications map[uuid.UUID]domain.Application
	orders       map[string]domain.Order
	settings     *domain.Settings
}

var _ repository.Repository = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{
		users:        make(map[uuid.UUID]domain.User),
		sessions:     make(map[string]domain.Session),
		jobs:         make(map[uuid.UUID]domain.Job),
		applications: make(map[uuid.UUID]domain.Application),
		orders:       make(map[string]domain.Order),
	}
}

func (s *Store) Ping(ctx context.Context) error  { return nil }
func (s *Store) Close(ctx context.Context) error { return nil }

// =============================================================================
// Users
// =============================================================================

func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrConflict
		}
	}
	s.users[u.ID] = copyUser(*u)
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyUser(u)
	return &out, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			out := copyUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) UpdatePlanState(ctx context.Context, id uuid.UUID, state domain.PlanState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PlanState = copyPlanState(state)
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return nil
}

func (s *Store) ClaimRole(ctx context.Context, id uuid.UUID, state domain.PlanState, orgName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if u.Role != domain.RoleUnset {
		return false, nil
	}
	u.PlanState = copyPlanState(state)
	if orgName != "" {
		u.OrgName = orgName
	}
	u.UpdatedAt = time.Now()
	s.users[id] = u
	return true, nil
}

func (s *Store) ConsumeApplicationQuota(ctx context.Context, id uuid.UUID, limit int, window time.Duration, now time.Time) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return 0, false, repository.ErrNotFound
	}
	if limit <= 0 {
		return u.MonthlyApplicationCount, false, nil
	}

	if u.MonthlyApplicationResetAt == nil || now.Sub(*u.MonthlyApplicationResetAt) >= window {
		start := now
		u.MonthlyApplicationCount = 1
		u.MonthlyApplicationResetAt = &start
	} else if u.MonthlyApplicationCount < limit {
		u.MonthlyApplicationCount++
	} else {
		return u.MonthlyApplicationCount, false, nil
	}
	s.users[id] = u
	return u.MonthlyApplicationCount, true, nil
}

func (s *Store) ReleaseApplicationQuota(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	if u.MonthlyApplicationCount > 0 {
		u.MonthlyApplicationCount--
		s.users[id] = u
	}
	return nil
}

// =============================================================================
// Sessions
// =============================================================================

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[sess.TokenHash]; exists {
		return repository.ErrConflict
	}
	s.sessions[sess.TokenHash] = sess
	return nil
}

func (s *Store) GetSession(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[tokenHash]
	if !ok || sess.IsExpired(now) {
		return nil, repository.ErrNotFound
	}
	return &sess, nil
}

func (s *Store) DeleteSession(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, tokenHash)
	return nil
}

// =============================================================================
// Jobs
// =============================================================================

func (s *Store) CreateJob(ctx context.Context, j *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[j.ID]; exists {
		return repository.ErrConflict
	}
	s.jobs[j.ID] = copyJob(*j)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyJob(j)
	return &out, nil
}

func (s *Store) CountOpenJobs(ctx context.Context, ngoID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, j := range s.jobs {
		if j.NGOID == ngoID && j.Status == domain.JobStatusOpen {
			n++
		}
	}
	return n, nil
}

func (s *Store) ListOpenJobs(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.Job
	for _, j := range s.jobs {
		if j.Status == domain.JobStatusOpen {
			jobs = append(jobs, copyJob(j))
		}
	}
	sortJobs(jobs)
	return page(jobs, limit, offset), nil
}

func (s *Store) ListJobsByNGO(ctx context.Context, ngoID uuid.UUID) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.Job
	for _, j := range s.jobs {
		if j.NGOID == ngoID {
			jobs = append(jobs, copyJob(j))
		}
	}
	sortJobs(jobs)
	return jobs, nil
}

func (s *Store) SetJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	j.Status = status
	j.UpdatedAt = now
	s.jobs[id] = j
	return nil
}

// =============================================================================
// Applications
// =============================================================================

func (s *Store) CreateApplication(ctx context.Context, a *domain.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.applications {
		if existing.VolunteerID == a.VolunteerID && existing.JobID == a.JobID && existing.IsActive() {
			return repository.ErrConflict
		}
	}
	s.applications[a.ID] = copyApplication(*a)
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyApplication(a)
	return &out, nil
}

func (s *Store) FindActiveApplication(ctx context.Context, volunteerID, jobID uuid.UUID) (*domain.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.applications {
		if a.VolunteerID == volunteerID && a.JobID == jobID && a.IsActive() {
			out := copyApplication(a)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) ListApplicationsByVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]domain.Application, error) {
	return s.listApplications(func(a domain.Application) bool { return a.VolunteerID == volunteerID }), nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error) {
	return s.listApplications(func(a domain.Application) bool { return a.JobID == jobID }), nil
}

func (s *Store) listApplications(match func(domain.Application) bool) []domain.Application {
	s.mu.Lock()
	defer s.mu.Unlock()

	var apps []domain.Application
	for _, a := range s.applications {
		if match(a) {
			apps = append(apps, copyApplication(a))
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].CreatedAt.After(apps[j].CreatedAt) })
	return apps
}

func (s *Store) UpdateApplicationStatus(ctx context.Context, id uuid.UUID, entry domain.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.applications[id]
	if !ok {
		return repository.ErrNotFound
	}
	a.Status = entry.Status
	a.Timeline = append(a.Timeline, entry)
	a.UpdatedAt = entry.At
	s.applications[id] = a
	return nil
}

// =============================================================================
// Orders
// =============================================================================

func (s *Store) CreateOrder(ctx context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ProviderOrderID]; exists {
		return repository.ErrConflict
	}
	s.orders[o.ProviderOrderID] = copyOrder(*o)
	return nil
}

func (s *Store) GetOrderByProviderID(ctx context.Context, providerOrderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[providerOrderID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := copyOrder(o)
	return &out, nil
}

func (s *Store) TransitionOrder(ctx context.Context, providerOrderID string, from, to domain.OrderStatus, paymentID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[providerOrderID]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.Status != from {
		return false, nil
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case domain.OrderStatusPaid:
		paidAt := at
		o.PaymentID = paymentID
		o.PaidAt = &paidAt
	case domain.OrderStatusCreated:
		o.PaymentID = ""
		o.PaidAt = nil
	}
	s.orders[providerOrderID] = o
	return true, nil
}

// =============================================================================
// Settings
// =============================================================================

func (s *Store) GetSettings(ctx context.Context) (domain.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		return domain.Settings{}, repository.ErrNotFound
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = &settings
	return nil
}

// =============================================================================
// Copy helpers
// =============================================================================

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyPlanState(p domain.PlanState) domain.PlanState {
	p.PlanExpiresAt = copyTime(p.PlanExpiresAt)
	p.PlanActivatedAt = copyTime(p.PlanActivatedAt)
	p.PlanCancelledAt = copyTime(p.PlanCancelledAt)
	return p
}

func copyUser(u domain.User) domain.User {
	u.PlanState = copyPlanState(u.PlanState)
	u.MonthlyApplicationResetAt = copyTime(u.MonthlyApplicationResetAt)
	return u
}

func copyJob(j domain.Job) domain.Job {
	j.Skills = append([]string(nil), j.Skills...)
	return j
}

func copyApplication(a domain.Application) domain.Application {
	a.Timeline = append([]domain.TimelineEntry(nil), a.Timeline...)
	return a
}

func copyOrder(o domain.Order) domain.Order {
	o.PaidAt = copyTime(o.PaidAt)
	return o
}

func sortJobs(jobs []domain.Job) {
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
