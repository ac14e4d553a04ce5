package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPlan_Family(t *testing.T) {
	tests := []struct {
		plan   Plan
		family Role
		paid   bool
		free   Plan
	}{
		{PlanVolunteerFree, RoleVolunteer, false, PlanVolunteerFree},
		{PlanVolunteerPlus, RoleVolunteer, true, PlanVolunteerFree},
		{PlanNGOBase, RoleNGO, false, PlanNGOBase},
		{PlanNGOPlus, RoleNGO, true, PlanNGOBase},
	}

	for _, tt := range tests {
		t.Run(string(tt.plan), func(t *testing.T) {
			assert.True(t, tt.plan.IsValid())
			assert.Equal(t, tt.family, tt.plan.Family())
			assert.Equal(t, tt.paid, tt.plan.IsPaid())
			assert.Equal(t, tt.free, tt.plan.Free())
			assert.True(t, PlanMatchesRole(tt.plan, tt.family))
		})
	}
}

func TestPlanMatchesRole_RejectsCrossFamily(t *testing.T) {
	assert.False(t, PlanMatchesRole(PlanNGOPlus, RoleVolunteer))
	assert.False(t, PlanMatchesRole(PlanVolunteerFree, RoleNGO))
	assert.False(t, PlanMatchesRole(PlanVolunteerFree, RoleAdmin))
	assert.False(t, PlanMatchesRole(Plan("gold"), RoleVolunteer))
}

func TestParsePlan(t *testing.T) {
	p, ok := ParsePlan("  NGO_Plus ")
	assert.True(t, ok)
	assert.Equal(t, PlanNGOPlus, p)

	_, ok = ParsePlan("enterprise")
	assert.False(t, ok)
}

func TestParseRole_AdminIsNotSelectable(t *testing.T) {
	_, ok := ParseRole("admin")
	assert.False(t, ok)

	r, ok := ParseRole("Volunteer")
	assert.True(t, ok)
	assert.Equal(t, RoleVolunteer, r)
}

func TestPlan_DisplayName(t *testing.T) {
	assert.Equal(t, "Volunteer Plus", PlanVolunteerPlus.DisplayName())
	assert.Equal(t, "NGO Base", PlanNGOBase.DisplayName())
}

func TestEffectivePlan(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Second)
	live := now.Add(time.Second)

	assert.Equal(t, PlanNGOBase, PlanState{Plan: PlanNGOPlus, PlanExpiresAt: &expired}.EffectivePlan(now))
	assert.Equal(t, PlanNGOPlus, PlanState{Plan: PlanNGOPlus, PlanExpiresAt: &live}.EffectivePlan(now))
	assert.Equal(t, PlanVolunteerFree, PlanState{Plan: PlanVolunteerFree}.EffectivePlan(now))

	// Stored plan is never rewritten by the computation.
	s := PlanState{Plan: PlanVolunteerPlus, PlanExpiresAt: &expired}
	_ = s.EffectivePlan(now)
	assert.Equal(t, PlanVolunteerPlus, s.Plan)
}

func TestPaidState(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	s := PaidState(PlanNGOPlus, now)

	assert.Equal(t, RoleNGO, s.Role)
	assert.Equal(t, PlanNGOPlus, s.Plan)
	assert.Equal(t, now.Add(30*24*time.Hour), *s.PlanExpiresAt)
	assert.Equal(t, now, *s.PlanActivatedAt)
	assert.False(t, s.PlanCancelled)
	assert.Equal(t, Plan(""), s.PendingPlan)
}
