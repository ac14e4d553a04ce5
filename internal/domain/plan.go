// Package domain contains core business types and interfaces.
//
// This file defines roles, plan tiers, and the rules tying them together.
package domain

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role identifies what kind of account a user operates.
type Role string

const (
	RoleUnset     Role = ""
	RoleVolunteer Role = "volunteer"
	RoleNGO       Role = "ngo"
	RoleAdmin     Role = "admin"
)

// IsValid returns true for roles a user may choose during onboarding.
// Admin is granted by configuration, never chosen.
func (r Role) IsValid() bool {
	return r == RoleVolunteer || r == RoleNGO
}

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Plan is a subscription tier. Each plan belongs to exactly one role family.
type Plan string

const (
	PlanVolunteerFree Plan = "volunteer_free"
	PlanVolunteerPlus Plan = "volunteer_plus"
	PlanNGOBase       Plan = "ngo_base"
	PlanNGOPlus       Plan = "ngo_plus"
)

// PlanDuration is how long a paid plan stays active after a verified payment.
const PlanDuration = 30 * 24 * time.Hour

// IsValid returns true if the plan is one of the known tiers.
func (p Plan) IsValid() bool {
	switch p {
	case PlanVolunteerFree, PlanVolunteerPlus, PlanNGOBase, PlanNGOPlus:
		return true
	}
	return false
}

// IsPaid returns true for tiers that require payment and carry an expiry.
func (p Plan) IsPaid() bool {
	return p == PlanVolunteerPlus || p == PlanNGOPlus
}

// Family returns the role a plan belongs to, or RoleUnset for unknown plans.
func (p Plan) Family() Role {
	switch p {
	case PlanVolunteerFree, PlanVolunteerPlus:
		return RoleVolunteer
	case PlanNGOBase, PlanNGOPlus:
		return RoleNGO
	}
	return RoleUnset
}

// Free returns the free tier of the plan's family.
func (p Plan) Free() Plan {
	return FreePlanFor(p.Family())
}

// DisplayName returns a human-friendly plan name, e.g. "Volunteer Plus".
func (p Plan) DisplayName() string {
	name := strings.ReplaceAll(string(p), "_", " ")
	name = strings.ReplaceAll(name, "ngo", "NGO")
	return cases.Title(language.English, cases.NoLower).String(name)
}

// String returns the string representation of the plan.
func (p Plan) String() string {
	return string(p)
}

// FreePlanFor returns the free tier for a role. Unknown roles fall back to volunteer_free,
// which is also the plan a fresh account starts on.
func FreePlanFor(r Role) Plan {
	if r == RoleNGO {
		return PlanNGOBase
	}
	return PlanVolunteerFree
}

// PaidPlanFor returns the paid tier for a role.
func PaidPlanFor(r Role) Plan {
	if r == RoleNGO {
		return PlanNGOPlus
	}
	return PlanVolunteerPlus
}

// PlanMatchesRole reports whether a plan may be held by a user with the given role.
func PlanMatchesRole(p Plan, r Role) bool {
	return p.IsValid() && p.Family() == r
}

// ParsePlan normalizes and validates a plan string.
func ParsePlan(s string) (Plan, bool) {
	p := Plan(strings.ToLower(strings.TrimSpace(s)))
	return p, p.IsValid()
}

// ParseRole normalizes and validates a selectable role string.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.IsValid()
}
