// Package service contains the business logic layer.
//
// This file implements plan assignment: moving a user between roles and
// free/paid tiers outside of payment flows.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/metrics"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// PlanService establishes and changes a user's role/plan pair.
type PlanService interface {
	// AssignRole sets a first role and its free plan. If a role is already
	// set it returns the existing role and plan unchanged.
	AssignRole(ctx context.Context, userID uuid.UUID, role domain.Role) (*PlanAssignment, error)

	// CompleteProfile finalizes role and plan together during onboarding.
	// A paid plan parks the user on the free tier with PendingPlan set.
	// Returns ECONFLICT/PROFILE_COMPLETE if a role is already set.
	CompleteProfile(ctx context.Context, userID uuid.UUID, params CompleteProfileParams) (*ProfileResult, error)

	// AssignPlan confirms the free plan of the user's current role.
	AssignPlan(ctx context.Context, userID uuid.UUID, plan domain.Plan) (*PlanAssignment, error)

	// SwitchRole moves a user to the other role on its free plan,
	// forfeiting any paid standing.
	SwitchRole(ctx context.Context, userID uuid.UUID, newRole domain.Role) (*PlanAssignment, error)

	// Cancel marks a paid plan as not renewing. Access continues until expiry.
	Cancel(ctx context.Context, userID uuid.UUID) (*time.Time, error)

	// AdminAssign sets any plan directly; paid plans get a fresh 30 day term.
	AdminAssign(ctx context.Context, userID uuid.UUID, plan domain.Plan) (*domain.User, error)

	// Status summarizes the user's plan as of now.
	Status(u *domain.User) PlanStatus
}

// PlanAssignment is the resulting role and plan of an assignment.
type PlanAssignment struct {
	Role    domain.Role
	Plan    domain.Plan
	Changed bool
}

// CompleteProfileParams holds onboarding input.
type CompleteProfileParams struct {
	Role    domain.Role
	Plan    domain.Plan
	OrgName string
}

// ProfileResult reports where onboarding left the user.
type ProfileResult struct {
	Role            domain.Role
	Plan            domain.Plan
	RequiresUpgrade bool
	TargetPlan      domain.Plan
}

// PlanStatus is a read-only view of a user's billing standing.
type PlanStatus struct {
	Role          domain.Role `json:"role"`
	Plan          domain.Plan `json:"plan"`
	PlanName      string      `json:"planName"`
	EffectivePlan domain.Plan `json:"effectivePlan"`
	ExpiresAt     *time.Time  `json:"expiresAt"`
	ActivatedAt   *time.Time  `json:"activatedAt"`
	Cancelled     bool        `json:"cancelled"`
	CancelledAt   *time.Time  `json:"cancelledAt"`
	PendingPlan   domain.Plan `json:"pendingPlan,omitempty"`
	Expired       bool        `json:"expired"`
}

// =============================================================================
// Implementation
// =============================================================================

type planService struct {
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

// NewPlanService creates a new PlanService.
func NewPlanService(users repository.UserRepository, logger *slog.Logger) PlanService {
	return &planService{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

func (s *planService) loadUser(ctx context.Context, op string, id uuid.UUID) (*domain.User, error) {
	u, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}
	return u, nil
}

func (s *planService) AssignRole(ctx context.Context, userID uuid.UUID, role domain.Role) (*PlanAssignment, error) {
	const op = "PlanService.AssignRole"

	if !role.IsValid() {
		return nil, domain.Invalid(op, "Role must be volunteer or ngo")
	}

	claimed, err := s.users.ClaimRole(ctx, userID, domain.FreeState(role, s.now()), "")
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to assign role")
	}

	if !claimed {
		u, err := s.loadUser(ctx, op, userID)
		if err != nil {
			return nil, err
		}
		return &PlanAssignment{Role: u.Role, Plan: u.Plan}, nil
	}

	s.logger.Info("role claimed", "user_id", userID, "role", role, "plan", domain.FreePlanFor(role))
	return &PlanAssignment{Role: role, Plan: domain.FreePlanFor(role), Changed: true}, nil
}

func (s *planService) CompleteProfile(ctx context.Context, userID uuid.UUID, params CompleteProfileParams) (*ProfileResult, error) {
	const op = "PlanService.CompleteProfile"

	if !params.Role.IsValid() {
		return nil, domain.Invalid(op, "Role must be volunteer or ngo")
	}
	if !domain.PlanMatchesRole(params.Plan, params.Role) {
		return nil, domain.Invalid(op, fmt.Sprintf("Plan %q is not available to %s accounts", params.Plan, params.Role)).
			WithReason(domain.ReasonPlanRoleMismatch)
	}

	state := domain.FreeState(params.Role, s.now())
	result := &ProfileResult{Role: params.Role, Plan: state.Plan, TargetPlan: params.Plan}
	if params.Plan.IsPaid() {
		state.PendingPlan = params.Plan
		result.RequiresUpgrade = true
	}

	claimed, err := s.users.ClaimRole(ctx, userID, state, strings.TrimSpace(params.OrgName))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", userID.String())
		}
		return nil, domain.Internal(err, op, "Failed to complete profile")
	}
	if !claimed {
		return nil, domain.Conflict(op, "Profile is already complete").WithReason(domain.ReasonProfileComplete)
	}

	if result.RequiresUpgrade {
		s.logger.Info("plan parked pending payment", "user_id", userID, "role", params.Role, "pending_plan", params.Plan)
	} else {
		s.logger.Info("profile completed", "user_id", userID, "role", params.Role, "plan", state.Plan)
	}
	return result, nil
}

func (s *planService) AssignPlan(ctx context.Context, userID uuid.UUID, plan domain.Plan) (*PlanAssignment, error) {
	const op = "PlanService.AssignPlan"

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if !u.Role.IsValid() {
		return nil, domain.Invalid(op, "Choose a role before choosing a plan").WithReason(domain.ReasonRoleRequired)
	}
	if !domain.PlanMatchesRole(plan, u.Role) {
		return nil, domain.Invalid(op, fmt.Sprintf("Plan %q is not available to %s accounts", plan, u.Role)).
			WithReason(domain.ReasonPlanRoleMismatch)
	}
	if plan.IsPaid() {
		return nil, domain.Invalid(op, "Paid plans are activated through checkout").WithReason(domain.ReasonInvalidPlan)
	}

	if u.Plan == plan && u.PlanExpiresAt == nil && u.PendingPlan == "" {
		return &PlanAssignment{Role: u.Role, Plan: u.Plan}, nil
	}

	if err := s.users.UpdatePlanState(ctx, userID, domain.FreeState(u.Role, s.now())); err != nil {
		return nil, domain.Internal(err, op, "Failed to assign plan")
	}

	s.logger.Info("free plan confirmed", "user_id", userID, "plan", plan, "previous_plan", u.Plan)
	return &PlanAssignment{Role: u.Role, Plan: plan, Changed: true}, nil
}

func (s *planService) SwitchRole(ctx context.Context, userID uuid.UUID, newRole domain.Role) (*PlanAssignment, error) {
	const op = "PlanService.SwitchRole"

	if !newRole.IsValid() {
		return nil, domain.Invalid(op, "Role must be volunteer or ngo")
	}

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if !u.Role.IsValid() {
		return nil, domain.Invalid(op, "Complete onboarding before switching roles").WithReason(domain.ReasonRoleRequired)
	}
	if u.Role == newRole {
		return nil, domain.Invalid(op, fmt.Sprintf("Account is already a %s account", newRole)).WithReason(domain.ReasonSameRole)
	}

	// Expiry, activation and cancellation are all cleared.
	state := domain.PlanState{Role: newRole, Plan: domain.FreePlanFor(newRole)}
	if err := s.users.UpdatePlanState(ctx, userID, state); err != nil {
		return nil, domain.Internal(err, op, "Failed to switch role")
	}

	now := s.now()
	if u.HasActivePaidPlan(now) && u.PlanExpiresAt != nil {
		s.logger.Warn("role switch forfeited paid plan",
			"user_id", userID,
			"plan", u.Plan,
			"remaining", u.PlanExpiresAt.Sub(now).Round(time.Hour).String(),
		)
	}
	s.logger.Info("role switched", "user_id", userID, "from", u.Role, "to", newRole, "plan", state.Plan)

	return &PlanAssignment{Role: newRole, Plan: state.Plan, Changed: true}, nil
}

func (s *planService) Cancel(ctx context.Context, userID uuid.UUID) (*time.Time, error) {
	const op = "PlanService.Cancel"

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !u.HasActivePaidPlan(now) {
		return nil, domain.Invalid(op, "There is no paid plan to cancel").WithReason(domain.ReasonNotPaidPlan)
	}
	if u.PlanCancelled {
		return u.PlanExpiresAt, nil
	}

	state := u.PlanState
	state.PlanCancelled = true
	state.PlanCancelledAt = &now
	if err := s.users.UpdatePlanState(ctx, userID, state); err != nil {
		return nil, domain.Internal(err, op, "Failed to cancel plan")
	}

	s.logger.Info("plan cancelled", "user_id", userID, "plan", u.Plan, "expires_at", u.PlanExpiresAt)
	return u.PlanExpiresAt, nil
}

func (s *planService) AdminAssign(ctx context.Context, userID uuid.UUID, plan domain.Plan) (*domain.User, error) {
	const op = "PlanService.AdminAssign"

	if !plan.IsValid() {
		return nil, domain.Invalid(op, fmt.Sprintf("Unknown plan %q", plan)).WithReason(domain.ReasonInvalidPlan)
	}

	u, err := s.loadUser(ctx, op, userID)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return nil, domain.Conflict(op, "Administrator accounts do not hold plans")
	}

	now := s.now()
	state := domain.FreeState(plan.Family(), now)
	if plan.IsPaid() {
		state = domain.PaidState(plan, now)
		metrics.PlanActivations.WithLabelValues(string(domain.PaymentSourceAdmin)).Inc()
	}
	if err := s.users.UpdatePlanState(ctx, userID, state); err != nil {
		return nil, domain.Internal(err, op, "Failed to assign plan")
	}

	s.logger.Info("plan assigned by admin", "user_id", userID, "plan", plan, "previous_plan", u.Plan)

	u.PlanState = state
	u.PasswordHash = ""
	return u, nil
}

func (s *planService) Status(u *domain.User) PlanStatus {
	now := s.now()
	effective := u.EffectivePlan(now)
	return PlanStatus{
		Role:          u.Role,
		Plan:          u.Plan,
		PlanName:      effective.DisplayName(),
		EffectivePlan: effective,
		ExpiresAt:     u.PlanExpiresAt,
		ActivatedAt:   u.PlanActivatedAt,
		Cancelled:     u.PlanCancelled,
		CancelledAt:   u.PlanCancelledAt,
		PendingPlan:   u.PendingPlan,
		Expired:       u.Plan.IsPaid() && u.PlanExpired(now),
	}
}
