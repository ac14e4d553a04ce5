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
	"github.com/gosimple/slug"
)

const (
	DefaultJobPageSize = 20
	MaxJobPageSize     = 100
	MaxSkillsPerJob    = 20
)

// JobService manages NGO job postings.
type JobService interface {
	// Create posts a new open job. Returns PLAN_EXPIRED for a lapsed paid
	// plan and LIMIT_REACHED when the NGO holds its maximum open postings.
	Create(ctx context.Context, ngo *domain.User, params domain.CreateJobParams) (*domain.Job, error)

	Get(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// List returns open jobs, newest first.
	List(ctx context.Context, limit, offset int) ([]domain.Job, error)

	// ListMine returns every job the NGO posted.
	ListMine(ctx context.Context, ngo *domain.User) ([]domain.Job, error)

	// SetStatus opens or closes a job the NGO owns. Closing frees a quota
	// slot immediately; re-opening is gated like posting.
	SetStatus(ctx context.Context, ngo *domain.User, id uuid.UUID, status domain.JobStatus) (*domain.Job, error)
}

type jobService struct {
	jobs   repository.JobRepository
	quota  QuotaService
	logger *slog.Logger
	now    func() time.Time
}

// NewJobService creates a new JobService.
func NewJobService(jobs repository.JobRepository, quota QuotaService, logger *slog.Logger) JobService {
	return &jobService{
		jobs:   jobs,
		quota:  quota,
		logger: logger,
		now:    time.Now,
	}
}

func (s *jobService) Create(ctx context.Context, ngo *domain.User, params domain.CreateJobParams) (*domain.Job, error) {
	const op = "JobService.Create"

	if !ngo.IsNGO() {
		return nil, domain.Forbidden(op, "Only NGOs can post jobs").WithReason(domain.ReasonOnlyNGO)
	}

	params.Title = strings.TrimSpace(params.Title)
	params.Description = strings.TrimSpace(params.Description)
	params.Location = strings.TrimSpace(params.Location)
	if params.Title == "" {
		return nil, domain.Invalid(op, "Title is required")
	}
	if params.Description == "" {
		return nil, domain.Invalid(op, "Description is required")
	}
	skills := normalizeSkills(params.Skills)
	if len(skills) > MaxSkillsPerJob {
		return nil, domain.Invalid(op, "Too many skills")
	}

	if err := s.checkCanOpen(ctx, op, ngo); err != nil {
		return nil, err
	}

	now := s.now()
	id := uuid.New()
	job := &domain.Job{
		ID:          id,
		NGOID:       ngo.ID,
		Title:       params.Title,
		Slug:        jobSlug(params.Title, id),
		Description: params.Description,
		Location:    params.Location,
		Remote:      params.Remote,
		Skills:      skills,
		Status:      domain.JobStatusOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.jobs.CreateJob(ctx, job); err != nil {
		return nil, domain.Internal(err, op, "Failed to create job")
	}

	metrics.JobsPosted.Inc()
	s.logger.Info("job posted", "user_id", ngo.ID, "job_id", job.ID, "slug", job.Slug)
	return job, nil
}

// checkCanOpen rejects a lapsed paid plan before asking the quota service.
func (s *jobService) checkCanOpen(ctx context.Context, op string, ngo *domain.User) error {
	if ngo.Plan.IsPaid() && ngo.PlanExpired(s.now()) {
		metrics.QuotaRejections.WithLabelValues("job", domain.ReasonPlanExpired).Inc()
		return domain.PaymentRequired(op, domain.ReasonPlanExpired, "Your plan has expired. Renew to post jobs.").
			WithDetail("plan", ngo.Plan).
			WithDetail("expiredAt", ngo.PlanExpiresAt)
	}
	return s.quota.CheckPostJob(ctx, ngo)
}

func (s *jobService) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	const op = "JobService.Get"

	job, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "job", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve job")
	}
	return job, nil
}

func (s *jobService) List(ctx context.Context, limit, offset int) ([]domain.Job, error) {
	const op = "JobService.List"

	if limit <= 0 {
		limit = DefaultJobPageSize
	}
	if limit > MaxJobPageSize {
		limit = MaxJobPageSize
	}
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.jobs.ListOpenJobs(ctx, limit, offset)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list jobs")
	}
	return jobs, nil
}

func (s *jobService) ListMine(ctx context.Context, ngo *domain.User) ([]domain.Job, error) {
	const op = "JobService.ListMine"

	if !ngo.IsNGO() {
		return nil, domain.Forbidden(op, "Only NGOs have job postings").WithReason(domain.ReasonOnlyNGO)
	}
	jobs, err := s.jobs.ListJobsByNGO(ctx, ngo.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to list jobs")
	}
	return jobs, nil
}

func (s *jobService) SetStatus(ctx context.Context, ngo *domain.User, id uuid.UUID, status domain.JobStatus) (*domain.Job, error) {
	const op = "JobService.SetStatus"

	if !status.IsValid() {
		return nil, domain.Invalid(op, "Status must be open or closed")
	}
	if !ngo.IsNGO() {
		return nil, domain.Forbidden(op, "Only NGOs can manage jobs").WithReason(domain.ReasonOnlyNGO)
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.NGOID != ngo.ID {
		return nil, domain.Forbidden(op, "You do not own this job")
	}
	if job.Status == status {
		return job, nil
	}

	if status == domain.JobStatusOpen {
		if err := s.checkCanOpen(ctx, op, ngo); err != nil {
			return nil, err
		}
	}

	now := s.now()
	if err := s.jobs.SetJobStatus(ctx, id, status, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "job", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to update job")
	}

	job.Status = status
	job.UpdatedAt = now
	s.logger.Info("job status changed", "user_id", ngo.ID, "job_id", id, "status", status)
	return job, nil
}

// jobSlug builds a URL slug from the title with a short id suffix so that
// identical titles stay distinct.
func jobSlug(title string, id uuid.UUID) string {
	base := slug.Make(title)
	if len(base) > 60 {
		base = strings.TrimRight(base[:60], "-")
	}
	suffix := strings.ReplaceAll(id.String(), "-", "")[:8]
	if base == "" {
		return "job-" + suffix
	}
	return base + "-" + suffix
}

func normalizeSkills(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}
