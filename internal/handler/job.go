package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/service"
)

// JobHandler handles job posting requests.
type JobHandler struct {
	jobs         service.JobService
	applications service.ApplicationService
	quota        service.QuotaService
	logger       *slog.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(
	jobs service.JobService,
	applications service.ApplicationService,
	quota service.QuotaService,
	logger *slog.Logger,
) *JobHandler {
	return &JobHandler{
		jobs:         jobs,
		applications: applications,
		quota:        quota,
		logger:       logger,
	}
}

// RegisterRoutes registers job routes. Browsing open jobs is public.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux, requireUser, requireNGO func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /api/jobs", h.List)
	mux.HandleFunc("GET /api/jobs/{id}", h.Get)

	mux.Handle("POST /api/jobs", requireUser(http.HandlerFunc(h.Create)))
	mux.Handle("GET /api/jobs/mine", requireUser(requireNGO(http.HandlerFunc(h.ListMine))))
	mux.Handle("GET /api/jobs/quota", requireUser(requireNGO(http.HandlerFunc(h.Quota))))
	mux.Handle("PATCH /api/jobs/{id}/status", requireUser(http.HandlerFunc(h.SetStatus)))
	mux.Handle("GET /api/jobs/{id}/applications", requireUser(http.HandlerFunc(h.ListApplications)))
}

// List returns a page of open jobs, newest first.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", service.DefaultJobPageSize)
	offset := queryInt(r, "offset", 0)

	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobResponses(jobs)})
}

// Get returns a single job.
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

type createJobRequest struct {
	Title       string   `json:"title" validate:"required,max=200"`
	Description string   `json:"description" validate:"required,max=10000"`
	Location    string   `json:"location" validate:"max=200"`
	Remote      bool     `json:"remote"`
	Skills      []string `json:"skills" validate:"max=20,dive,max=50"`
}

// Create posts a job. Rejections for quota or an expired plan come back as
// 402 with LIMIT_REACHED or PLAN_EXPIRED.
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req createJobRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.Create(r.Context(), user, domain.CreateJobParams{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		Remote:      req.Remote,
		Skills:      req.Skills,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toJobResponse(job))
}

// ListMine returns every job the calling NGO owns.
func (h *JobHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListMine(r.Context(), auth.GetUser(r.Context()))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": toJobResponses(jobs)})
}

// Quota reports the calling NGO's posting quota.
func (h *JobHandler) Quota(w http.ResponseWriter, r *http.Request) {
	q, err := h.quota.JobQuota(r.Context(), auth.GetUser(r.Context()))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, q)
}

type setJobStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open closed"`
}

// SetStatus opens or closes a job owned by the caller.
func (h *JobHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	var req setJobStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	job, err := h.jobs.SetStatus(r.Context(), auth.GetUser(r.Context()), id, domain.JobStatus(req.Status))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// ListApplications returns the applications to a job the caller owns.
func (h *JobHandler) ListApplications(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	apps, err := h.applications.ListForJob(r.Context(), auth.GetUser(r.Context()), id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"applications": toApplicationResponses(apps)})
}
