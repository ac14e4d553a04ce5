// Package domain contains core business types and interfaces.
//
// This file defines the User domain type, its plan state, and related types
// for authentication.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// PlanState is the role/plan block stored on a user account.
//
// Plan expiry is never persisted as a downgrade: a paid plan whose
// PlanExpiresAt has passed is still stored as paid, and every access
// decision goes through EffectivePlan instead.
type PlanState struct {
	Role            Role
	Plan            Plan
	PlanExpiresAt   *time.Time
	PlanActivatedAt *time.Time
	PlanCancelled   bool
	PlanCancelledAt *time.Time
	PendingPlan     Plan // Paid plan chosen during onboarding but not yet paid for
}

// User represents a registered account on the platform.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string // Never expose this in API responses
	Name         string
	OrgName      string // NGO organisation name, set during onboarding
	PlanState

	MonthlyApplicationCount   int
	MonthlyApplicationResetAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsVolunteer returns true if the user operates a volunteer account.
func (u *User) IsVolunteer() bool {
	return u.Role == RoleVolunteer
}

// IsNGO returns true if the user operates an NGO account.
func (u *User) IsNGO() bool {
	return u.Role == RoleNGO
}

// IsAdmin returns true if the user is a platform administrator.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName returns the user's name or email if name is empty.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// PlanExpired reports whether the stored plan carries an expiry that has passed.
func (s PlanState) PlanExpired(now time.Time) bool {
	return s.PlanExpiresAt != nil && now.After(*s.PlanExpiresAt)
}

// EffectivePlan returns the plan that governs access right now.
// An expired paid plan is treated as the free tier of the same family.
func (s PlanState) EffectivePlan(now time.Time) Plan {
	if s.Plan.IsPaid() && s.PlanExpired(now) {
		return s.Plan.Free()
	}
	return s.Plan
}

// HasActivePaidPlan returns true when the effective plan is a paid tier.
func (s PlanState) HasActivePaidPlan(now time.Time) bool {
	return s.EffectivePlan(now).IsPaid()
}

// FreeState returns a fresh plan state on the free tier of the given role.
func FreeState(role Role, now time.Time) PlanState {
	activated := now
	return PlanState{
		Role:            role,
		Plan:            FreePlanFor(role),
		PlanActivatedAt: &activated,
	}
}

// PaidState returns the plan state after a paid plan activates at now.
func PaidState(plan Plan, now time.Time) PlanState {
	activated := now
	expires := now.Add(PlanDuration)
	return PlanState{
		Role:            plan.Family(),
		Plan:            plan,
		PlanExpiresAt:   &expires,
		PlanActivatedAt: &activated,
	}
}

// Session represents an authenticated session.
//
// Sessions are stored with a hashed token.
// The raw token is only given to the client once (at login).
type Session struct {
	UserID    uuid.UUID
	TokenHash string // SHA-256 hash of the session token
	ExpiresAt time.Time
	CreatedAt time.Time
}

// IsExpired returns true if the session has expired.
func (s *Session) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// RegisterParams contains the validated parameters for user registration.
type RegisterParams struct {
	Email    string
	Password string // Raw password, will be hashed by service
	Name     string
}

// LoginResult contains the result of a successful login.
type LoginResult struct {
	User      *User
	Token     string // Raw session token (not hashed) - only returned once
	ExpiresAt time.Time
}
