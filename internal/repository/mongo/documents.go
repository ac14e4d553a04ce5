package mongo

import (
	"strings"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
)

// Documents use string ids so the same uuid values flow through every backend.

type userDoc struct {
	ID                        string     `bson:"_id"`
	Email                     string     `bson:"email"`
	EmailKey                  string     `bson:"emailKey"`
	PasswordHash              string     `bson:"passwordHash"`
	Name                      string     `bson:"name"`
	OrgName                   string     `bson:"orgName"`
	Role                      string     `bson:"role"`
	Plan                      string     `bson:"plan"`
	PlanExpiresAt             *time.Time `bson:"planExpiresAt"`
	PlanActivatedAt           *time.Time `bson:"planActivatedAt"`
	PlanCancelled             bool       `bson:"planCancelled"`
	PlanCancelledAt           *time.Time `bson:"planCancelledAt"`
	PendingPlan               string     `bson:"pendingPlan"`
	MonthlyApplicationCount   int        `bson:"monthlyApplicationCount"`
	MonthlyApplicationResetAt *time.Time `bson:"monthlyApplicationResetAt"`
	CreatedAt                 time.Time  `bson:"createdAt"`
	UpdatedAt                 time.Time  `bson:"updatedAt"`
}

func newUserDoc(u *domain.User) userDoc {
	return userDoc{
		ID:                        u.ID.String(),
		Email:                     u.Email,
		EmailKey:                  strings.ToLower(u.Email),
		PasswordHash:              u.PasswordHash,
		Name:                      u.Name,
		OrgName:                   u.OrgName,
		Role:                      string(u.Role),
		Plan:                      string(u.Plan),
		PlanExpiresAt:             u.PlanExpiresAt,
		PlanActivatedAt:           u.PlanActivatedAt,
		PlanCancelled:             u.PlanCancelled,
		PlanCancelledAt:           u.PlanCancelledAt,
		PendingPlan:               string(u.PendingPlan),
		MonthlyApplicationCount:   u.MonthlyApplicationCount,
		MonthlyApplicationResetAt: u.MonthlyApplicationResetAt,
		CreatedAt:                 u.CreatedAt,
		UpdatedAt:                 u.UpdatedAt,
	}
}

func (d userDoc) toDomain() (*domain.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:           id,
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		OrgName:      d.OrgName,
		PlanState: domain.PlanState{
			Role:            domain.Role(d.Role),
			Plan:            domain.Plan(d.Plan),
			PlanExpiresAt:   d.PlanExpiresAt,
			PlanActivatedAt: d.PlanActivatedAt,
			PlanCancelled:   d.PlanCancelled,
			PlanCancelledAt: d.PlanCancelledAt,
			PendingPlan:     domain.Plan(d.PendingPlan),
		},
		MonthlyApplicationCount:   d.MonthlyApplicationCount,
		MonthlyApplicationResetAt: d.MonthlyApplicationResetAt,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
	}, nil
}

type sessionDoc struct {
	TokenHash string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

type jobDoc struct {
	ID          string    `bson:"_id"`
	NGOID       string    `bson:"ngoId"`
	Title       string    `bson:"title"`
	Slug        string    `bson:"slug"`
	Description string    `bson:"description"`
	Location    string    `bson:"location"`
	Remote      bool      `bson:"remote"`
	Skills      []string  `bson:"skills"`
	Status      string    `bson:"status"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

func newJobDoc(j *domain.Job) jobDoc {
	return jobDoc{
		ID:          j.ID.String(),
		NGOID:       j.NGOID.String(),
		Title:       j.Title,
		Slug:        j.Slug,
		Description: j.Description,
		Location:    j.Location,
		Remote:      j.Remote,
		Skills:      j.Skills,
		Status:      string(j.Status),
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

func (d jobDoc) toDomain() (*domain.Job, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	ngoID, err := uuid.Parse(d.NGOID)
	if err != nil {
		return nil, err
	}
	return &domain.Job{
		ID:          id,
		NGOID:       ngoID,
		Title:       d.Title,
		Slug:        d.Slug,
		Description: d.Description,
		Location:    d.Location,
		Remote:      d.Remote,
		Skills:      d.Skills,
		Status:      domain.JobStatus(d.Status),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// applicationDoc carries ActiveKey only while the application is not
// withdrawn; a partial unique index on it enforces one active application
// per volunteer and job.
type applicationDoc struct {
	ID          string                 `bson:"_id"`
	JobID       string                 `bson:"jobId"`
	VolunteerID string                 `bson:"volunteerId"`
	ActiveKey   string                 `bson:"activeKey,omitempty"`
	CoverLetter string                 `bson:"coverLetter"`
	Status      string                 `bson:"status"`
	Timeline    []domain.TimelineEntry `bson:"timeline"`
	CreatedAt   time.Time              `bson:"createdAt"`
	UpdatedAt   time.Time              `bson:"updatedAt"`
}

func activeKey(volunteerID, jobID string) string {
	return volunteerID + ":" + jobID
}

func newApplicationDoc(a *domain.Application) applicationDoc {
	d := applicationDoc{
		ID:          a.ID.String(),
		JobID:       a.JobID.String(),
		VolunteerID: a.VolunteerID.String(),
		CoverLetter: a.CoverLetter,
		Status:      string(a.Status),
		Timeline:    a.Timeline,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
	if a.IsActive() {
		d.ActiveKey = activeKey(d.VolunteerID, d.JobID)
	}
	return d
}

func (d applicationDoc) toDomain() (*domain.Application, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	jobID, err := uuid.Parse(d.JobID)
	if err != nil {
		return nil, err
	}
	volunteerID, err := uuid.Parse(d.VolunteerID)
	if err != nil {
		return nil, err
	}
	return &domain.Application{
		ID:          id,
		JobID:       jobID,
		VolunteerID: volunteerID,
		CoverLetter: d.CoverLetter,
		Status:      domain.ApplicationStatus(d.Status),
		Timeline:    d.Timeline,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

type orderDoc struct {
	ID              string     `bson:"_id"`
	UserID          string     `bson:"userId"`
	PlanTarget      string     `bson:"planTarget"`
	Provider        string     `bson:"provider"`
	ProviderOrderID string     `bson:"providerOrderId"`
	Amount          int64      `bson:"amount"`
	Currency        string     `bson:"currency"`
	Receipt         string     `bson:"receipt"`
	Status          string     `bson:"status"`
	PaymentID       string     `bson:"paymentId"`
	PaidAt          *time.Time `bson:"paidAt,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt"`
}

func newOrderDoc(o *domain.Order) orderDoc {
	return orderDoc{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		PlanTarget:      string(o.PlanTarget),
		Provider:        o.Provider,
		ProviderOrderID: o.ProviderOrderID,
		Amount:          o.Amount,
		Currency:        o.Currency,
		Receipt:         o.Receipt,
		Status:          string(o.Status),
		PaymentID:       o.PaymentID,
		PaidAt:          o.PaidAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (d orderDoc) toDomain() (*domain.Order, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &domain.Order{
		ID:              id,
		UserID:          userID,
		PlanTarget:      domain.Plan(d.PlanTarget),
		Provider:        d.Provider,
		ProviderOrderID: d.ProviderOrderID,
		Amount:          d.Amount,
		Currency:        d.Currency,
		Receipt:         d.Receipt,
		Status:          domain.OrderStatus(d.Status),
		PaymentID:       d.PaymentID,
		PaidAt:          d.PaidAt,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}
