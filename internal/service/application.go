package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/metrics"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
)

const (
	MaxCoverLetterLength = 5000
	MaxStatusNoteLength  = 500
)

// ApplicationService handles volunteers applying to jobs and NGOs moving
// applications through review.
type ApplicationService interface {
	// Apply submits an application. Checks run in order: job open, no active
	// duplicate, valid unexpired volunteer plan, then quota.
	Apply(ctx context.Context, volunteer *domain.User, jobID uuid.UUID, coverLetter string) (*domain.Application, error)

	// ListMine returns the volunteer's applications, newest first.
	ListMine(ctx context.Context, volunteer *domain.User) ([]domain.Application, error)

	// ListForJob returns applications to a job owned by the NGO.
	ListForJob(ctx context.Context, ngo *domain.User, jobID uuid.UUID) ([]domain.Application, error)

	// UpdateStatus moves an application on behalf of actor and records it on
	// the timeline. Volunteers may only withdraw their own application.
	UpdateStatus(ctx context.Context, actor *domain.User, id uuid.UUID, status domain.ApplicationStatus, note string) (*domain.Application, error)
}

type applicationRepository interface {
	repository.JobRepository
	repository.ApplicationRepository
}

type applicationService struct {
	repo   applicationRepository
	quota  QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewApplicationService creates a new ApplicationService.
func NewApplicationService(repo applicationRepository, quota QuotaService, logger *slog.Logger) ApplicationService {
	return &applicationService{
		repo:   repo,
		quota:  quota,
		logger: logger,
		now:    time.Now,
	}
}

func (s *applicationService) Apply(ctx context.Context, volunteer *domain.User, jobID uuid.UUID, coverLetter string) (*domain.Application, error) {
	const op = "ApplicationService.Apply"

	if !volunteer.IsVolunteer() {
		return nil, domain.Forbidden(op, "Only volunteers can apply to jobs").WithReason(domain.ReasonOnlyVolunteer)
	}
	coverLetter = strings.TrimSpace(coverLetter)
	if len(coverLetter) > MaxCoverLetterLength {
		return nil, domain.Invalid(op, "Cover letter is too long")
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "job", jobID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve job")
	}
	if !job.IsOpen() {
		return nil, domain.Conflict(op, "This job is no longer accepting applications").WithReason(domain.ReasonJobUnavailable)
	}

	_, err = s.repo.FindActiveApplication(ctx, volunteer.ID, jobID)
	if err == nil {
		return nil, alreadyApplied(op)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Internal(err, op, "Failed to check existing applications")
	}

	now := s.now()
	if volunteer.Plan.Family() != domain.RoleVolunteer {
		return nil, domain.PaymentRequired(op, domain.ReasonInvalidPlan, "Your account has no volunteer plan").
			WithDetail("plan", volunteer.Plan)
	}
	if volunteer.Plan.IsPaid() && volunteer.PlanExpired(now) {
		metrics.QuotaRejections.WithLabelValues("application", domain.ReasonPlanExpired).Inc()
		return nil, domain.PaymentRequired(op, domain.ReasonPlanExpired, "Your plan has expired. Renew to keep applying.").
			WithDetail("plan", volunteer.Plan).
			WithDetail("expiredAt", volunteer.PlanExpiresAt)
	}

	consumed, err := s.quota.ConsumeApplication(ctx, volunteer)
	if err != nil {
		return nil, err
	}

	app := &domain.Application{
		ID:          uuid.New(),
		JobID:       jobID,
		VolunteerID: volunteer.ID,
		CoverLetter: coverLetter,
		Status:      domain.ApplicationStatusApplied,
		Timeline: []domain.TimelineEntry{
			{Status: domain.ApplicationStatusApplied, At: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateApplication(ctx, app); err != nil {
		if consumed {
			s.quota.ReleaseApplication(ctx, volunteer.ID)
		}
		if errors.Is(err, repository.ErrConflict) {
			return nil, alreadyApplied(op)
		}
		return nil, domain.Internal(err, op, "Failed to create application")
	}

	metrics.ApplicationsCreated.Inc()
	s.logger.Info("application submitted",
		"user_id", volunteer.ID,
		"job_id", jobID,
		"application_id", app.ID,
		"counted", consumed,
	)
	return app, nil
}

func alreadyApplied(op string) error {
	return domain.Conflict(op, "You have already applied to this job").WithReason(domain.ReasonAlreadyApplied)
}

func (s *applicationService) ListMine(ctx context.Context, volunteer *domain.User) ([]domain.Application, error) {
	const op = "ApplicationService.ListMine"

	if !volunteer.IsVolunteer() {
		return nil, domain.Forbidden(op, "Only volunteers have applications").WithReason(domain.ReasonOnlyVolunteer)
	}
	apps, err := s.repo.ListApplicationsByVolunteer(ctx, volunteer.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list applications")
	}
	return apps, nil
}

func (s *applicationService) ListForJob(ctx context.Context, ngo *domain.User, jobID uuid.UUID) ([]domain.Application, error) {
	const op = "ApplicationService.ListForJob"

	if !ngo.IsNGO() {
		return nil, domain.Forbidden(op, "Only NGOs can review applications").WithReason(domain.ReasonOnlyNGO)
	}
	if err := s.checkJobOwner(ctx, op, ngo, jobID); err != nil {
		return nil, err
	}
	apps, err := s.repo.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list applications")
	}
	return apps, nil
}

func (s *applicationService) UpdateStatus(ctx context.Context, actor *domain.User, id uuid.UUID, status domain.ApplicationStatus, note string) (*domain.Application, error) {
	const op = "ApplicationService.UpdateStatus"

	if !status.IsValid() {
		return nil, domain.Invalid(op, "Unknown application status")
	}
	note = strings.TrimSpace(note)
	if len(note) > MaxStatusNoteLength {
		return nil, domain.Invalid(op, "Note is too long")
	}

	app, err := s.repo.GetApplication(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "application", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve application")
	}

	switch actor.Role {
	case domain.RoleVolunteer:
		if app.VolunteerID != actor.ID {
			return nil, domain.Forbidden(op, "You do not own this application")
		}
		if status != domain.ApplicationStatusWithdrawn {
			return nil, domain.Forbidden(op, "Only the NGO can change this status").WithReason(domain.ReasonOnlyNGO)
		}
	case domain.RoleNGO:
		if err := s.checkJobOwner(ctx, op, actor, app.JobID); err != nil {
			return nil, err
		}
		if status == domain.ApplicationStatusWithdrawn {
			return nil, domain.Forbidden(op, "Only the volunteer can withdraw").WithReason(domain.ReasonOnlyVolunteer)
		}
	default:
		return nil, domain.Forbidden(op, "Insufficient permissions")
	}

	now := s.now()
	if err := app.TransitionTo(status, actor.Role, note, now); err != nil {
		return nil, domain.Wrap(err, domain.ECONFLICT, op, "Application can no longer change status").
			WithReason(domain.ReasonInvalidTransition).
			WithDetail("status", app.Status)
	}

	entry := app.Timeline[len(app.Timeline)-1]
	if err := s.repo.UpdateApplicationStatus(ctx, id, entry); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "application", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to update application")
	}

	s.logger.Info("application status changed",
		"user_id", actor.ID,
		"application_id", id,
		"status", status,
	)
	return app, nil
}

func (s *applicationService) checkJobOwner(ctx context.Context, op string, ngo *domain.User, jobID uuid.UUID) error {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.NotFound(op, "job", jobID.String())
		}
		return domain.Internal(err, op, "Failed to retrieve job")
	}
	if job.NGOID != ngo.ID {
		return domain.Forbidden(op, "You do not own this job")
	}
	return nil
}
