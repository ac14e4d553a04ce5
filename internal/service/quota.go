// Package service contains the business logic layer.
//
// This file implements the quota service: it reads the configured limits
// from the settings provider and enforces them against the store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/metrics"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/DukeRupert/ngolink/internal/settings"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// QuotaService checks and records plan quotas.
type QuotaService interface {
	// ApplicationUsage reports a volunteer's standing in the current window.
	ApplicationUsage(ctx context.Context, u *domain.User) (*ApplicationUsage, error)

	// ConsumeApplication records one application against a free volunteer's
	// window. Returns a LIMIT_REACHED payment error when none is left.
	// Plus volunteers are never counted.
	ConsumeApplication(ctx context.Context, u *domain.User) (consumed bool, err error)

	// ReleaseApplication gives back a slot taken by ConsumeApplication.
	ReleaseApplication(ctx context.Context, userID uuid.UUID)

	// JobQuota reports an NGO's open-posting standing.
	JobQuota(ctx context.Context, u *domain.User) (*JobQuota, error)

	// CheckPostJob returns nil if the NGO may open one more posting, or a
	// LIMIT_REACHED payment error.
	CheckPostJob(ctx context.Context, u *domain.User) error
}

// ApplicationUsage is a volunteer's application quota snapshot.
type ApplicationUsage struct {
	Used      int        `json:"used"`
	Limit     int        `json:"limit"`
	Unlimited bool       `json:"unlimited"`
	CanApply  bool       `json:"canApply"`
	ResetsAt  *time.Time `json:"resetsAt"`
}

// JobQuota is an NGO's posting quota snapshot.
type JobQuota struct {
	Active  int         `json:"active"`
	Limit   int         `json:"limit"`
	IsPlus  bool        `json:"isPlus"`
	CanPost bool        `json:"canPost"`
	Plan    domain.Plan `json:"plan"`
}

// =============================================================================
// Implementation
// =============================================================================

type quotaRepository interface {
	repository.UserRepository
	CountOpenJobs(ctx context.Context, ngoID uuid.UUID) (int, error)
}

type quotaService struct {
	repo     quotaRepository
	settings settings.Provider
	logger   *slog.Logger
	now      func() time.Time
}

// NewQuotaService creates a new QuotaService.
func NewQuotaService(repo quotaRepository, provider settings.Provider, logger *slog.Logger) QuotaService {
	return &quotaService{
		repo:     repo,
		settings: provider,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *quotaService) ApplicationUsage(ctx context.Context, u *domain.User) (*ApplicationUsage, error) {
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	d := domain.CanApply(u, cfg.FreeApplicationsPerWindow, now)
	usage := &ApplicationUsage{
		Used:      d.Used,
		Limit:     d.Limit,
		Unlimited: d.Unlimited,
		CanApply:  d.OK,
	}
	if !d.Unlimited && !d.ResetDue {
		usage.ResetsAt = domain.NextApplicationReset(u)
	}
	return usage, nil
}

func (s *quotaService) ConsumeApplication(ctx context.Context, u *domain.User) (bool, error) {
	const op = "QuotaService.ConsumeApplication"

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return false, err
	}

	now := s.now()
	d := domain.CanApply(u, cfg.FreeApplicationsPerWindow, now)
	if d.Unlimited {
		return false, nil
	}
	if !d.OK {
		return false, s.rejectApplication(op, u, d.Used, d.Limit)
	}

	// The decision above used a possibly stale read; the store update is
	// the authority.
	count, ok, err := s.repo.ConsumeApplicationQuota(ctx, u.ID, cfg.FreeApplicationsPerWindow, domain.ApplicationWindow, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, domain.NotFound(op, "user", u.ID.String())
		}
		return false, domain.Internal(err, op, "Failed to record application quota")
	}
	if !ok {
		return false, s.rejectApplication(op, u, count, cfg.FreeApplicationsPerWindow)
	}
	return true, nil
}

func (s *quotaService) rejectApplication(op string, u *domain.User, used, limit int) error {
	metrics.QuotaRejections.WithLabelValues("application", domain.ReasonLimitReached).Inc()
	s.logger.Info("application quota exhausted", "user_id", u.ID, "used", used, "limit", limit)
	return domain.QuotaExceeded(op, domain.QuotaApplications, used, limit)
}

func (s *quotaService) ReleaseApplication(ctx context.Context, userID uuid.UUID) {
	if err := s.repo.ReleaseApplicationQuota(ctx, userID); err != nil {
		s.logger.Error("failed to release application quota", "user_id", userID, "error", err)
	}
}

func (s *quotaService) JobQuota(ctx context.Context, u *domain.User) (*JobQuota, error) {
	const op = "QuotaService.JobQuota"

	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	active, err := s.repo.CountOpenJobs(ctx, u.ID)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to count open jobs")
	}

	now := s.now()
	d := domain.CanPostJob(u, active, cfg.NGOBaseJobLimit, now)
	return &JobQuota{
		Active:  d.Active,
		Limit:   d.Limit,
		IsPlus:  d.Unlimited,
		CanPost: d.OK,
		Plan:    u.EffectivePlan(now),
	}, nil
}

func (s *quotaService) CheckPostJob(ctx context.Context, u *domain.User) error {
	const op = "QuotaService.CheckPostJob"

	q, err := s.JobQuota(ctx, u)
	if err != nil {
		return err
	}
	if q.CanPost {
		return nil
	}

	metrics.QuotaRejections.WithLabelValues("job", domain.ReasonLimitReached).Inc()
	s.logger.Info("job posting quota exhausted", "user_id", u.ID, "active", q.Active, "limit", q.Limit)
	return domain.QuotaExceeded(op, domain.QuotaJobPostings, q.Active, q.Limit)
}
