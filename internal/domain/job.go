package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents whether a job posting accepts applications.
type JobStatus string

const (
	JobStatusOpen   JobStatus = "open"
	JobStatusClosed JobStatus = "closed"
)

// IsValid returns true if the status is a recognized value.
func (s JobStatus) IsValid() bool {
	return s == JobStatusOpen || s == JobStatusClosed
}

// Job is a volunteering opportunity posted by an NGO.
type Job struct {
	ID          uuid.UUID
	NGOID       uuid.UUID
	Title       string
	Slug        string
	Description string
	Location    string
	Remote      bool
	Skills      []string
	Status      JobStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOpen returns true if the job accepts applications.
func (j *Job) IsOpen() bool {
	return j.Status == JobStatusOpen
}

// CreateJobParams contains the parameters for posting a job.
type CreateJobParams struct {
	Title       string
	Description string
	Location    string
	Remote      bool
	Skills      []string
}
