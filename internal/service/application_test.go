package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplicationService_Apply_FreeVolunteerScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.ngo(t)
	j1 := e.openJob(t, n, "Job one")
	j2 := e.openJob(t, n, "Job two")
	v := e.volunteer(t)

	app, err := e.applications.Apply(ctx, v, j1.ID, "I can help")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusApplied, app.Status)
	require.Len(t, app.Timeline, 1)
	assert.Equal(t, t0, app.Timeline[0].At)
	assert.Equal(t, 1, e.reload(t, v.ID).MonthlyApplicationCount)

	_, err = e.applications.Apply(ctx, e.reload(t, v.ID), j2.ID, "")
	assert.Equal(t, domain.EPAYMENT, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonLimitReached, domain.ErrorReason(err))

	// Withdrawing does not give the slot back.
	_, err = e.applications.UpdateStatus(ctx, v, app.ID, domain.ApplicationStatusWithdrawn, "")
	require.NoError(t, err)
	assert.Equal(t, 1, e.reload(t, v.ID).MonthlyApplicationCount)

	// Withdrawn is not a duplicate, but the window is still exhausted.
	_, err = e.applications.Apply(ctx, e.reload(t, v.ID), j1.ID, "")
	assert.Equal(t, domain.ReasonLimitReached, domain.ErrorReason(err))

	e.clock.Advance(domain.ApplicationWindow)
	_, err = e.applications.Apply(ctx, e.reload(t, v.ID), j1.ID, "again")
	require.NoError(t, err)
}

func TestApplicationService_Apply_CheckOrder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.ngo(t)
	job := e.openJob(t, n, "Open job")
	closed := e.openJob(t, n, "Closed job")
	_, err := e.jobs.SetStatus(ctx, n, closed.ID, domain.JobStatusClosed)
	require.NoError(t, err)

	plus := e.user(t, domain.PaidState(domain.PlanVolunteerPlus, t0))
	_, err = e.applications.Apply(ctx, plus, job.ID, "")
	require.NoError(t, err)

	expired := e.user(t, domain.PaidState(domain.PlanVolunteerPlus, t0.Add(-31*24*time.Hour)))
	misfiled := e.user(t, domain.PlanState{Role: domain.RoleVolunteer, Plan: domain.PlanNGOBase})

	tests := []struct {
		name   string
		user   *domain.User
		jobID  uuid.UUID
		code   string
		reason string
	}{
		{"ngo cannot apply", n, job.ID, domain.EFORBIDDEN, domain.ReasonOnlyVolunteer},
		{"missing job", plus, uuid.New(), domain.ENOTFOUND, ""},
		{"closed job", plus, closed.ID, domain.ECONFLICT, domain.ReasonJobUnavailable},
		{"duplicate", plus, job.ID, domain.ECONFLICT, domain.ReasonAlreadyApplied},
		{"expired plan", expired, job.ID, domain.EPAYMENT, domain.ReasonPlanExpired},
		{"plan outside volunteer family", misfiled, job.ID, domain.EPAYMENT, domain.ReasonInvalidPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.applications.Apply(ctx, tt.user, tt.jobID, "")
			assert.Equal(t, tt.code, domain.ErrorCode(err))
			if tt.reason != "" {
				assert.Equal(t, tt.reason, domain.ErrorReason(err))
			}
		})
	}

	assert.Zero(t, e.reload(t, expired.ID).MonthlyApplicationCount, "rejected before quota")
}

func TestApplicationService_Apply_PlusIsUnlimited(t *testing.T) {
	e := newEnv(t)
	n := e.user(t, domain.PaidState(domain.PlanNGOPlus, t0))
	v := e.user(t, domain.PaidState(domain.PlanVolunteerPlus, t0))

	for i := 0; i < 4; i++ {
		job := e.openJob(t, n, "Job")
		_, err := e.applications.Apply(context.Background(), v, job.ID, "")
		require.NoError(t, err)
	}
	assert.Zero(t, e.reload(t, v.ID).MonthlyApplicationCount)
}

type conflictingApplications struct {
	*memory.Store
}

func (c conflictingApplications) FindActiveApplication(ctx context.Context, volunteerID, jobID uuid.UUID) (*domain.Application, error) {
	return c.Store.FindActiveApplication(ctx, uuid.Nil, uuid.Nil)
}

func TestApplicationService_Apply_InsertConflictReleasesQuota(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	job := e.openJob(t, e.ngo(t), "Job")
	v := e.volunteer(t)

	// Another request got its application in first.
	require.NoError(t, e.store.CreateApplication(ctx, &domain.Application{
		ID: uuid.New(), JobID: job.ID, VolunteerID: v.ID, Status: domain.ApplicationStatusApplied,
	}))

	// Skip the pre-check so the store's uniqueness rule is what rejects it.
	e.applications.repo = conflictingApplications{e.store}

	_, err := e.applications.Apply(ctx, v, job.ID, "")
	assert.Equal(t, domain.ReasonAlreadyApplied, domain.ErrorReason(err))
	assert.Zero(t, e.reload(t, v.ID).MonthlyApplicationCount, "slot released")
}

func TestApplicationService_UpdateStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.ngo(t)
	job := e.openJob(t, n, "Job")
	v := e.user(t, domain.PaidState(domain.PlanVolunteerPlus, t0))
	app, err := e.applications.Apply(ctx, v, job.ID, "")
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	got, err := e.applications.UpdateStatus(ctx, n, app.ID, domain.ApplicationStatusShortlisted, "strong profile")
	require.NoError(t, err)
	assert.Equal(t, domain.ApplicationStatusShortlisted, got.Status)

	stored, err := e.store.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	require.Len(t, stored.Timeline, 2)
	assert.Equal(t, domain.TimelineEntry{
		Status: domain.ApplicationStatusShortlisted,
		At:     t0.Add(time.Hour),
		Note:   "strong profile",
	}, stored.Timeline[1])

	tests := []struct {
		name   string
		actor  *domain.User
		status domain.ApplicationStatus
		code   string
		reason string
	}{
		{"volunteer cannot accept", v, domain.ApplicationStatusAccepted, domain.EFORBIDDEN, domain.ReasonOnlyNGO},
		{"ngo cannot withdraw", n, domain.ApplicationStatusWithdrawn, domain.EFORBIDDEN, domain.ReasonOnlyVolunteer},
		{"other ngo", e.ngo(t), domain.ApplicationStatusReview, domain.EFORBIDDEN, domain.ReasonForbidden},
		{"other volunteer", e.volunteer(t), domain.ApplicationStatusWithdrawn, domain.EFORBIDDEN, domain.ReasonForbidden},
		{"unknown status", n, domain.ApplicationStatus("hired"), domain.EINVALID, domain.ReasonInvalidBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.applications.UpdateStatus(ctx, tt.actor, app.ID, tt.status, "")
			assert.Equal(t, tt.code, domain.ErrorCode(err))
			assert.Equal(t, tt.reason, domain.ErrorReason(err))
		})
	}

	_, err = e.applications.UpdateStatus(ctx, v, app.ID, domain.ApplicationStatusWithdrawn, "")
	require.NoError(t, err)

	_, err = e.applications.UpdateStatus(ctx, n, app.ID, domain.ApplicationStatusReview, "")
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonInvalidTransition, domain.ErrorReason(err))
}

func TestApplicationService_Lists(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	n := e.ngo(t)
	job := e.openJob(t, n, "Job")
	v := e.volunteer(t)
	_, err := e.applications.Apply(ctx, v, job.ID, "")
	require.NoError(t, err)

	mine, err := e.applications.ListMine(ctx, v)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	forJob, err := e.applications.ListForJob(ctx, n, job.ID)
	require.NoError(t, err)
	assert.Len(t, forJob, 1)

	_, err = e.applications.ListForJob(ctx, e.ngo(t), job.ID)
	assert.Equal(t, domain.EFORBIDDEN, domain.ErrorCode(err))

	_, err = e.applications.ListMine(ctx, n)
	assert.Equal(t, domain.ReasonOnlyVolunteer, domain.ErrorReason(err))
}
