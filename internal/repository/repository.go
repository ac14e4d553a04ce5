// Package repository defines the persistence contracts used by the service
// layer. Backends live in subpackages (postgres, mongo, memory) and all
// satisfy Repository.
//
// Every mutation that guards a business invariant is a single conditional
// update so that concurrent requests cannot both pass a check:
// - ClaimRole only writes when no role is set
// - ConsumeApplicationQuota resets or increments only while below the limit
// - TransitionOrder is a compare-and-swap on the current order status
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("repository: not found")

	// ErrConflict is returned when a write violates a uniqueness rule.
	ErrConflict = errors.New("repository: conflict")
)

// UserRepository persists user accounts and their plan/quota fields.
type UserRepository interface {
	CreateUser(ctx context.Context, u *domain.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdatePlanState overwrites the full role/plan block of a user.
	UpdatePlanState(ctx context.Context, id uuid.UUID, state domain.PlanState) error

	// ClaimRole writes state (and orgName when non-empty) only if the user has
	// no role yet. Reports whether the write happened.
	ClaimRole(ctx context.Context, id uuid.UUID, state domain.PlanState, orgName string) (bool, error)

	// ConsumeApplicationQuota atomically records one application against the
	// rolling window. If the window started at least window ago (or never
	// started) the counter restarts at 1 with the window beginning at now.
	// Otherwise it increments only while the count is below limit.
	// Returns the new count and whether a slot was consumed.
	ConsumeApplicationQuota(ctx context.Context, id uuid.UUID, limit int, window time.Duration, now time.Time) (int, bool, error)

	// ReleaseApplicationQuota gives back one consumed slot (never below zero).
	ReleaseApplicationQuota(ctx context.Context, id uuid.UUID) error
}

// SessionRepository persists hashed session tokens.
type SessionRepository interface {
	CreateSession(ctx context.Context, s domain.Session) error
	// GetSession returns the session for a token hash unless it expired before now.
	GetSession(ctx context.Context, tokenHash string, now time.Time) (*domain.Session, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// JobRepository persists job postings.
type JobRepository interface {
	CreateJob(ctx context.Context, j *domain.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	CountOpenJobs(ctx context.Context, ngoID uuid.UUID) (int, error)
	ListOpenJobs(ctx context.Context, limit, offset int) ([]domain.Job, error)
	ListJobsByNGO(ctx context.Context, ngoID uuid.UUID) ([]domain.Job, error)
	SetJobStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, now time.Time) error
}

// ApplicationRepository persists applications and their timelines.
type ApplicationRepository interface {
	// CreateApplication returns ErrConflict if an active (non-withdrawn)
	// application already exists for the same volunteer and job.
	CreateApplication(ctx context.Context, a *domain.Application) error
	GetApplication(ctx context.Context, id uuid.UUID) (*domain.Application, error)
	FindActiveApplication(ctx context.Context, volunteerID, jobID uuid.UUID) (*domain.Application, error)
	ListApplicationsByVolunteer(ctx context.Context, volunteerID uuid.UUID) ([]domain.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID uuid.UUID) ([]domain.Application, error)

	// UpdateApplicationStatus sets the status and appends entry to the timeline.
	UpdateApplicationStatus(ctx context.Context, id uuid.UUID, entry domain.TimelineEntry) error
}

// OrderRepository persists payment orders keyed by provider order id.
type OrderRepository interface {
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrderByProviderID(ctx context.Context, providerOrderID string) (*domain.Order, error)

	// TransitionOrder moves an order from one status to another only if it is
	// currently in from. Moving to paid records paymentID and at as paid time;
	// moving back to created clears them. Reports whether the swap happened.
	TransitionOrder(ctx context.Context, providerOrderID string, from, to domain.OrderStatus, paymentID string, at time.Time) (bool, error)
}

// SettingsRepository persists the single platform settings document.
type SettingsRepository interface {
	// GetSettings returns ErrNotFound when nothing has been saved yet.
	GetSettings(ctx context.Context) (domain.Settings, error)
	SaveSettings(ctx context.Context, s domain.Settings) error
}

// Repository is the full persistence surface a backend provides.
type Repository interface {
	UserRepository
	SessionRepository
	JobRepository
	ApplicationRepository
	OrderRepository
	SettingsRepository

	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
