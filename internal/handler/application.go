package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/service"
	"github.com/google/uuid"
)

// ApplicationHandler handles volunteer applications.
type ApplicationHandler struct {
	applications service.ApplicationService
	logger       *slog.Logger
}

// NewApplicationHandler creates a new ApplicationHandler.
func NewApplicationHandler(applications service.ApplicationService, logger *slog.Logger) *ApplicationHandler {
	return &ApplicationHandler{
		applications: applications,
		logger:       logger,
	}
}

// RegisterRoutes registers application routes.
func (h *ApplicationHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/applications", requireUser(http.HandlerFunc(h.Apply)))
	mux.Handle("GET /api/applications", requireUser(http.HandlerFunc(h.ListMine)))
	mux.Handle("PATCH /api/applications/{id}/status", requireUser(http.HandlerFunc(h.UpdateStatus)))
}

type applyRequest struct {
	JobID       string `json:"jobId" validate:"required,uuid"`
	CoverLetter string `json:"coverLetter" validate:"max=5000"`
}

// Apply submits an application for the caller.
func (h *ApplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var req applyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	app, err := h.applications.Apply(r.Context(), auth.GetUser(r.Context()), uuid.MustParse(req.JobID), req.CoverLetter)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, toApplicationResponse(app))
}

// ListMine returns the caller's applications.
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	apps, err := h.applications.ListMine(r.Context(), auth.GetUser(r.Context()))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"applications": toApplicationResponses(apps)})
}

type updateApplicationStatusRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

// UpdateStatus moves an application along its review pipeline.
func (h *ApplicationHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	var req updateApplicationStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	app, err := h.applications.UpdateStatus(r.Context(), auth.GetUser(r.Context()), id,
		domain.ApplicationStatus(req.Status), req.Note)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toApplicationResponse(app))
}
