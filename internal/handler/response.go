package handler

import (
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
)

// UserResponse is the public view of an account.
type UserResponse struct {
	ID            uuid.UUID   `json:"id"`
	Email         string      `json:"email"`
	Name          string      `json:"name"`
	OrgName       string      `json:"orgName,omitempty"`
	Role          domain.Role `json:"role"`
	Plan          domain.Plan `json:"plan"`
	EffectivePlan domain.Plan `json:"effectivePlan"`
	PlanExpiresAt *time.Time  `json:"planExpiresAt"`
	PendingPlan   domain.Plan `json:"pendingPlan,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func toUserResponse(u *domain.User, now time.Time) UserResponse {
	return UserResponse{
		ID:            u.ID,
		Email:         u.Email,
		Name:          u.Name,
		OrgName:       u.OrgName,
		Role:          u.Role,
		Plan:          u.Plan,
		EffectivePlan: u.EffectivePlan(now),
		PlanExpiresAt: u.PlanExpiresAt,
		PendingPlan:   u.PendingPlan,
		CreatedAt:     u.CreatedAt,
	}
}

// JobResponse is the public view of a job posting.
type JobResponse struct {
	ID          uuid.UUID        `json:"id"`
	NGOID       uuid.UUID        `json:"ngoId"`
	Title       string           `json:"title"`
	Slug        string           `json:"slug"`
	Description string           `json:"description"`
	Location    string           `json:"location,omitempty"`
	Remote      bool             `json:"remote"`
	Skills      []string         `json:"skills"`
	Status      domain.JobStatus `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

func toJobResponse(j *domain.Job) JobResponse {
	skills := j.Skills
	if skills == nil {
		skills = []string{}
	}
	return JobResponse{
		ID:          j.ID,
		NGOID:       j.NGOID,
		Title:       j.Title,
		Slug:        j.Slug,
		Description: j.Description,
		Location:    j.Location,
		Remote:      j.Remote,
		Skills:      skills,
		Status:      j.Status,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func toJobResponses(jobs []domain.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	return out
}

// ApplicationResponse is the view of an application shared by both sides.
type ApplicationResponse struct {
	ID          uuid.UUID                `json:"id"`
	JobID       uuid.UUID                `json:"jobId"`
	VolunteerID uuid.UUID                `json:"volunteerId"`
	CoverLetter string                   `json:"coverLetter,omitempty"`
	Status      domain.ApplicationStatus `json:"status"`
	Timeline    []domain.TimelineEntry   `json:"timeline"`
	CreatedAt   time.Time                `json:"createdAt"`
	UpdatedAt   time.Time                `json:"updatedAt"`
}

func toApplicationResponse(a *domain.Application) ApplicationResponse {
	timeline := a.Timeline
	if timeline == nil {
		timeline = []domain.TimelineEntry{}
	}
	return ApplicationResponse{
		ID:          a.ID,
		JobID:       a.JobID,
		VolunteerID: a.VolunteerID,
		CoverLetter: a.CoverLetter,
		Status:      a.Status,
		Timeline:    timeline,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toApplicationResponses(apps []domain.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for i := range apps {
		out = append(out, toApplicationResponse(&apps[i]))
	}
	return out
}
