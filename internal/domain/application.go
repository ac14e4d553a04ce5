package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Application Status
// =============================================================================

// ApplicationStatus represents where an application is in the hiring flow.
type ApplicationStatus string

const (
	ApplicationStatusApplied     ApplicationStatus = "applied"
	ApplicationStatusShortlisted ApplicationStatus = "shortlisted"
	ApplicationStatusReview      ApplicationStatus = "review"
	ApplicationStatusInterview   ApplicationStatus = "interview"
	ApplicationStatusAccepted    ApplicationStatus = "accepted"
	ApplicationStatusOffered     ApplicationStatus = "offered"
	ApplicationStatusRejected    ApplicationStatus = "rejected"
	ApplicationStatusWithdrawn   ApplicationStatus = "withdrawn"
)

// IsValid returns true if the status is a recognized value.
func (s ApplicationStatus) IsValid() bool {
	switch s {
	case ApplicationStatusApplied, ApplicationStatusShortlisted, ApplicationStatusReview,
		ApplicationStatusInterview, ApplicationStatusAccepted, ApplicationStatusOffered,
		ApplicationStatusRejected, ApplicationStatusWithdrawn:
		return true
	}
	return false
}

// String returns the string representation of the status.
func (s ApplicationStatus) String() string {
	return string(s)
}

// CanTransition checks whether an actor with the given role may move an
// application from s to target.
//
// Rules:
// - withdrawn is terminal for everyone
// - a volunteer may only move their application to withdrawn
// - an NGO may move freely among the non-withdrawn statuses
func (s ApplicationStatus) CanTransition(target ApplicationStatus, actor Role) bool {
	if !target.IsValid() || s == ApplicationStatusWithdrawn {
		return false
	}
	switch actor {
	case RoleVolunteer:
		return target == ApplicationStatusWithdrawn
	case RoleNGO:
		return target != ApplicationStatusWithdrawn
	}
	return false
}

// TimelineEntry records one status change on an application.
type TimelineEntry struct {
	Status ApplicationStatus `json:"status" bson:"status"`
	At     time.Time         `json:"at" bson:"at"`
	Note   string            `json:"note,omitempty" bson:"note,omitempty"`
}

// Application links one volunteer to one job.
type Application struct {
	ID          uuid.UUID
	JobID       uuid.UUID
	VolunteerID uuid.UUID
	CoverLetter string
	Status      ApplicationStatus
	Timeline    []TimelineEntry
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsActive returns true unless the application was withdrawn.
// At most one active application may exist per (volunteer, job).
func (a *Application) IsActive() bool {
	return a.Status != ApplicationStatusWithdrawn
}

// TransitionTo moves the application to target on behalf of actor and
// appends a timeline entry. The application is unchanged on error.
func (a *Application) TransitionTo(target ApplicationStatus, actor Role, note string, now time.Time) error {
	if !a.Status.CanTransition(target, actor) {
		return fmt.Errorf("cannot transition application from %s to %s as %s", a.Status, target, actor)
	}
	a.Status = target
	a.Timeline = append(a.Timeline, TimelineEntry{Status: target, At: now, Note: note})
	a.UpdatedAt = now
	return nil
}
