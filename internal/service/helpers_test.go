package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository/memory"
	"github.com/DukeRupert/ngolink/internal/settings"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// env wires every service to one in-memory store and one clock.
type env struct {
	store        *memory.Store
	clock        *testClock
	quota        *quotaService
	plans        *planService
	jobs         *jobService
	applications *applicationService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.New()
	clock := &testClock{t: t0}
	logger := testLogger()

	quota := NewQuotaService(store, settings.Static(domain.DefaultSettings()), logger).(*quotaService)
	quota.now = clock.Now

	plans := NewPlanService(store, logger).(*planService)
	plans.now = clock.Now

	jobs := NewJobService(store, quota, logger).(*jobService)
	jobs.now = clock.Now

	apps := NewApplicationService(store, quota, logger).(*applicationService)
	apps.now = clock.Now

	return &env{
		store:        store,
		clock:        clock,
		quota:        quota,
		plans:        plans,
		jobs:         jobs,
		applications: apps,
	}
}

// user seeds a user with the given plan state and returns a fresh copy.
func (e *env) user(t *testing.T, state domain.PlanState) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:        uuid.New(),
		Email:     uuid.NewString() + "@example.org",
		Name:      "Test User",
		PlanState: state,
		CreatedAt: e.clock.Now(),
		UpdatedAt: e.clock.Now(),
	}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return e.reload(t, u.ID)
}

func (e *env) reload(t *testing.T, id uuid.UUID) *domain.User {
	t.Helper()
	u, err := e.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) volunteer(t *testing.T) *domain.User {
	return e.user(t, domain.FreeState(domain.RoleVolunteer, e.clock.Now()))
}

func (e *env) ngo(t *testing.T) *domain.User {
	return e.user(t, domain.FreeState(domain.RoleNGO, e.clock.Now()))
}

func (e *env) openJob(t *testing.T, ngo *domain.User, title string) *domain.Job {
	t.Helper()
	job, err := e.jobs.Create(context.Background(), ngo, domain.CreateJobParams{
		Title:       title,
		Description: "Help out on weekends",
		Location:    "Pune",
	})
	require.NoError(t, err)
	return job
}
