package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/DukeRupert/ngolink/internal/service"
)

// SettingsInvalidator drops a cached settings value.
type SettingsInvalidator interface {
	Invalidate()
}

// AdminHandler handles back-office requests.
type AdminHandler struct {
	plans    service.PlanService
	settings repository.SettingsRepository
	cache    SettingsInvalidator
	logger   *slog.Logger
	now      func() time.Time
}

// NewAdminHandler creates a new AdminHandler. cache may be nil.
func NewAdminHandler(
	plans service.PlanService,
	settings repository.SettingsRepository,
	cache SettingsInvalidator,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		plans:    plans,
		settings: settings,
		cache:    cache,
		logger:   logger,
		now:      time.Now,
	}
}

// RegisterRoutes registers admin routes with the provided middleware.
func (h *AdminHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/admin/users/{id}/plan", requireAdmin(http.HandlerFunc(h.AssignPlan)))
	mux.Handle("GET /api/admin/settings", requireAdmin(http.HandlerFunc(h.GetSettings)))
	mux.Handle("PUT /api/admin/settings", requireAdmin(http.HandlerFunc(h.UpdateSettings)))
}

type adminAssignPlanRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// AssignPlan sets a user's plan directly. Paid plans get a fresh 30-day
// term; the role follows the plan's family.
func (h *AdminHandler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	var req adminAssignPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.plans.AdminAssign(r.Context(), id, domain.Plan(req.Plan))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toUserResponse(user, h.now()))
}

// GetSettings returns the stored quota settings, or the defaults if none
// have been saved.
func (h *AdminHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.GetSettings(r.Context())
	if errors.Is(err, repository.ErrNotFound) {
		s, err = domain.DefaultSettings(), nil
	}
	if err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

type updateSettingsRequest struct {
	FreeApplicationsPerWindow *int `json:"freeApplicationsPerWindow" validate:"required"`
	NGOBaseJobLimit           *int `json:"ngoBaseJobLimit" validate:"required"`
}

// UpdateSettings replaces the quota settings and drops the cached copy so
// the next quota check sees them.
func (h *AdminHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	s := domain.Settings{
		FreeApplicationsPerWindow: *req.FreeApplicationsPerWindow,
		NGOBaseJobLimit:           *req.NGOBaseJobLimit,
	}
	if err := s.Validate(); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if err := h.settings.SaveSettings(r.Context(), s); err != nil {
		InternalErrorResponse(w, r, h.logger, err)
		return
	}
	if h.cache != nil {
		h.cache.Invalidate()
	}

	h.logger.Info("platform settings updated",
		"free_applications", s.FreeApplicationsPerWindow,
		"ngo_job_limit", s.NGOBaseJobLimit,
	)
	writeJSON(w, http.StatusOK, s)
}
