// Package domain contains core business types and interfaces.
//
// This file defines the quota evaluator: pure decisions about whether a
// volunteer may apply or an NGO may open a job posting, based on plan,
// counters and the current time.
package domain

import "time"

// QuotaKind identifies the type of quota being checked.
type QuotaKind string

const (
	QuotaApplications QuotaKind = "applications"
	QuotaJobPostings  QuotaKind = "job_postings"
)

func (k QuotaKind) unit(n int) string {
	switch k {
	case QuotaApplications:
		if n == 1 {
			return "application every 30 days"
		}
		return "applications every 30 days"
	case QuotaJobPostings:
		if n == 1 {
			return "open job posting"
		}
		return "open job postings"
	}
	return string(k)
}

const (
	// ApplicationWindow is the rolling window for the free volunteer counter.
	ApplicationWindow = 30 * 24 * time.Hour

	// DefaultFreeApplications is how many applications a free volunteer may
	// submit per window.
	DefaultFreeApplications = 1

	// DefaultNGOJobLimit is how many open postings a free NGO may hold.
	DefaultNGOJobLimit = 3
)

// ApplyDecision is the outcome of CanApply.
type ApplyDecision struct {
	OK        bool
	Reason    string
	Unlimited bool // Active paid plan, counters ignored
	ResetDue  bool // Window elapsed; recording starts a new window at now
	Used      int  // Applications counted in the current window
	Limit     int
}

// PostJobDecision is the outcome of CanPostJob.
type PostJobDecision struct {
	OK        bool
	Reason    string
	Unlimited bool
	Active    int
	Limit     int
}

// ApplicationWindowElapsed reports whether the application counter is due a
// reset. A counter that never started is treated as elapsed.
func ApplicationWindowElapsed(resetAt *time.Time, now time.Time) bool {
	return resetAt == nil || now.Sub(*resetAt) >= ApplicationWindow
}

// CanApply decides whether a volunteer may submit one more application.
//
// The check does not record anything. Callers consume the slot with an
// atomic store update after deciding, so the decision here is advisory for
// the fast path and for building error details.
func CanApply(u *User, limit int, now time.Time) ApplyDecision {
	if u.EffectivePlan(now) == PlanVolunteerPlus {
		return ApplyDecision{OK: true, Unlimited: true, Used: u.MonthlyApplicationCount, Limit: limit}
	}

	if ApplicationWindowElapsed(u.MonthlyApplicationResetAt, now) {
		d := ApplyDecision{OK: limit > 0, ResetDue: true, Used: 0, Limit: limit}
		if !d.OK {
			d.Reason = ReasonLimitReached
		}
		return d
	}

	used := u.MonthlyApplicationCount
	if used < limit {
		return ApplyDecision{OK: true, Used: used, Limit: limit}
	}
	return ApplyDecision{Reason: ReasonLimitReached, Used: used, Limit: limit}
}

// CanPostJob decides whether an NGO with the given number of open postings
// may open another one. Quota follows the live open-job count, so closing a
// job frees a slot immediately.
func CanPostJob(u *User, active, limit int, now time.Time) PostJobDecision {
	if u.EffectivePlan(now) == PlanNGOPlus {
		return PostJobDecision{OK: true, Unlimited: true, Active: active, Limit: limit}
	}
	if active < limit {
		return PostJobDecision{OK: true, Active: active, Limit: limit}
	}
	return PostJobDecision{Reason: ReasonLimitReached, Active: active, Limit: limit}
}

// NextApplicationReset returns when the current application window ends,
// or nil when no window is running.
func NextApplicationReset(u *User) *time.Time {
	if u.MonthlyApplicationResetAt == nil {
		return nil
	}
	t := u.MonthlyApplicationResetAt.Add(ApplicationWindow)
	return &t
}
