package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func timePtr(t time.Time) *time.Time { return &t }

func TestCanApply(t *testing.T) {
	future := timePtr(testNow.Add(24 * time.Hour))
	past := timePtr(testNow.Add(-time.Hour))

	tests := []struct {
		name       string
		user       User
		wantOK     bool
		wantReset  bool
		wantUnlim  bool
		wantReason string
	}{
		{
			name: "plus volunteer ignores exhausted counter",
			user: User{
				PlanState:                 PlanState{Role: RoleVolunteer, Plan: PlanVolunteerPlus, PlanExpiresAt: future},
				MonthlyApplicationCount:   50,
				MonthlyApplicationResetAt: timePtr(testNow.Add(-time.Hour)),
			},
			wantOK:    true,
			wantUnlim: true,
		},
		{
			name: "expired plus volunteer is treated as free",
			user: User{
				PlanState:                 PlanState{Role: RoleVolunteer, Plan: PlanVolunteerPlus, PlanExpiresAt: past},
				MonthlyApplicationCount:   1,
				MonthlyApplicationResetAt: timePtr(testNow.Add(-time.Hour)),
			},
			wantReason: ReasonLimitReached,
		},
		{
			name: "free volunteer with unused window",
			user: User{
				PlanState:                 PlanState{Role: RoleVolunteer, Plan: PlanVolunteerFree},
				MonthlyApplicationResetAt: timePtr(testNow.Add(-time.Hour)),
			},
			wantOK: true,
		},
		{
			name: "free volunteer exhausted within window",
			user: User{
				PlanState:                 PlanState{Role: RoleVolunteer, Plan: PlanVolunteerFree},
				MonthlyApplicationCount:   1,
				MonthlyApplicationResetAt: timePtr(testNow.Add(-29 * 24 * time.Hour)),
			},
			wantReason: ReasonLimitReached,
		},
		{
			name: "window resets exactly at thirty days",
			user: User{
				PlanState:                 PlanState{Role: RoleVolunteer, Plan: PlanVolunteerFree},
				MonthlyApplicationCount:   1,
				MonthlyApplicationResetAt: timePtr(testNow.Add(-ApplicationWindow)),
			},
			wantOK:    true,
			wantReset: true,
		},
		{
			name: "counter that never started is due a reset",
			user: User{
				PlanState: PlanState{Role: RoleVolunteer, Plan: PlanVolunteerFree},
			},
			wantOK:    true,
			wantReset: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := CanApply(&tt.user, DefaultFreeApplications, testNow)
			assert.Equal(t, tt.wantOK, d.OK)
			assert.Equal(t, tt.wantReset, d.ResetDue)
			assert.Equal(t, tt.wantUnlim, d.Unlimited)
			assert.Equal(t, tt.wantReason, d.Reason)
		})
	}
}

func TestCanApply_ZeroLimitBlocksEvenAfterReset(t *testing.T) {
	u := &User{PlanState: PlanState{Role: RoleVolunteer, Plan: PlanVolunteerFree}}

	d := CanApply(u, 0, testNow)

	assert.False(t, d.OK)
	assert.Equal(t, ReasonLimitReached, d.Reason)
}

func TestCanPostJob(t *testing.T) {
	future := timePtr(testNow.Add(time.Hour))
	past := timePtr(testNow.Add(-time.Hour))

	tests := []struct {
		name      string
		state     PlanState
		active    int
		wantOK    bool
		wantUnlim bool
	}{
		{"base with two open jobs", PlanState{Role: RoleNGO, Plan: PlanNGOBase}, 2, true, false},
		{"base at the limit", PlanState{Role: RoleNGO, Plan: PlanNGOBase}, 3, false, false},
		{"base above the limit", PlanState{Role: RoleNGO, Plan: PlanNGOBase}, 7, false, false},
		{"plus ignores open count", PlanState{Role: RoleNGO, Plan: PlanNGOPlus, PlanExpiresAt: future}, 40, true, true},
		{"expired plus is base", PlanState{Role: RoleNGO, Plan: PlanNGOPlus, PlanExpiresAt: past}, 3, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &User{PlanState: tt.state}
			d := CanPostJob(u, tt.active, DefaultNGOJobLimit, testNow)
			assert.Equal(t, tt.wantOK, d.OK)
			assert.Equal(t, tt.wantUnlim, d.Unlimited)
			assert.Equal(t, tt.active, d.Active)
			assert.Equal(t, DefaultNGOJobLimit, d.Limit)
			if !tt.wantOK {
				assert.Equal(t, ReasonLimitReached, d.Reason)
			}
		})
	}
}

func TestQuotaExceeded_CarriesDetails(t *testing.T) {
	err := QuotaExceeded("JobService.Create", QuotaJobPostings, 3, 3)

	assert.Equal(t, EPAYMENT, err.Code)
	assert.Equal(t, ReasonLimitReached, err.Reason)
	assert.Equal(t, 3, err.Details["active"])
	assert.Equal(t, 3, err.Details["limit"])
	assert.Contains(t, err.Message, "3 open job postings")
}
