// Package handler contains the HTTP handlers for the ngolink API.
//
// This file implements account handlers: signup, login, logout, and the
// onboarding steps that pick a role and plan.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/service"
	"github.com/DukeRupert/ngolink/internal/session"
)

// AuthHandler handles account and onboarding requests.
//
// Routes handled:
// - POST /api/auth/signup        -> Signup
// - POST /api/auth/login         -> Login
// - POST /api/auth/logout        -> Logout
// - GET  /api/auth/me            -> Me
// - POST /api/auth/assign-role   -> AssignRole
// - POST /api/auth/assign-plan   -> AssignPlan
// - POST /api/complete-profile   -> CompleteProfile
type AuthHandler struct {
	users    service.UserService
	plans    service.PlanService
	quota    service.QuotaService
	logger   *slog.Logger
	isSecure bool
	now      func() time.Time
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(
	users service.UserService,
	plans service.PlanService,
	quota service.QuotaService,
	logger *slog.Logger,
	isSecure bool,
) *AuthHandler {
	return &AuthHandler{
		users:    users,
		plans:    plans,
		quota:    quota,
		logger:   logger,
		isSecure: isSecure,
		now:      time.Now,
	}
}

// RegisterRoutes registers the account routes. limit wraps the credential
// endpoints; requireUser wraps everything that needs a session.
func (h *AuthHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireUser func(http.Handler) http.Handler,
	limit func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/auth/signup", limit(http.HandlerFunc(h.Signup)))
	mux.Handle("POST /api/auth/login", limit(http.HandlerFunc(h.Login)))
	mux.HandleFunc("POST /api/auth/logout", h.Logout)

	mux.Handle("GET /api/auth/me", requireUser(http.HandlerFunc(h.Me)))
	mux.Handle("POST /api/auth/assign-role", requireUser(http.HandlerFunc(h.AssignRole)))
	mux.Handle("POST /api/auth/assign-plan", requireUser(http.HandlerFunc(h.AssignPlan)))
	mux.Handle("POST /api/complete-profile", requireUser(http.HandlerFunc(h.CompleteProfile)))
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// SessionResponse is returned by signup and login.
type SessionResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// Signup creates an account and opens a session for it.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if _, err := h.users.Register(r.Context(), domain.RegisterParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session.SetCookie(w, result.Token, result.ExpiresAt, h.isSecure)
	writeJSON(w, http.StatusCreated, h.sessionResponse(result))
}

// Login checks credentials and sets the session cookie.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.users.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	session.SetCookie(w, result.Token, result.ExpiresAt, h.isSecure)
	writeJSON(w, http.StatusOK, h.sessionResponse(result))
}

// Logout drops the caller's session, if any, and clears the cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := session.TokenFromRequest(r); token != "" {
		if err := h.users.Logout(r.Context(), token); err != nil {
			h.logger.Error("failed to delete session", "error", err)
		}
	}
	session.ClearCookie(w, h.isSecure)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// MeResponse describes the caller, their plan standing, and their quota.
type MeResponse struct {
	User             UserResponse              `json:"user"`
	Plan             service.PlanStatus        `json:"plan"`
	ApplicationQuota *service.ApplicationUsage `json:"applicationQuota,omitempty"`
	JobQuota         *service.JobQuota         `json:"jobQuota,omitempty"`
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if user == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	resp := MeResponse{
		User: toUserResponse(user, h.now()),
		Plan: h.plans.Status(user),
	}

	var err error
	switch user.Role {
	case domain.RoleVolunteer:
		resp.ApplicationQuota, err = h.quota.ApplicationUsage(r.Context(), user)
	case domain.RoleNGO:
		resp.JobQuota, err = h.quota.JobQuota(r.Context(), user)
	}
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type assignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// AssignRole sets the caller's role and its free plan the first time.
func (h *AuthHandler) AssignRole(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.plans.AssignRole(r.Context(), user.ID, domain.Role(req.Role))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":      true,
		"role":    res.Role,
		"plan":    res.Plan,
		"changed": res.Changed,
	})
}

type assignPlanRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// AssignPlan confirms a free plan matching the caller's role.
func (h *AuthHandler) AssignPlan(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req assignPlanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.plans.AssignPlan(r.Context(), user.ID, domain.Plan(req.Plan))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "plan": res.Plan})
}

type completeProfileRequest struct {
	Role    string `json:"role" validate:"required"`
	Plan    string `json:"plan" validate:"required"`
	OrgName string `json:"orgName" validate:"max=200"`
}

// CompleteProfile finalizes onboarding. Paid plans are parked as pending
// and the client is told to upgrade.
func (h *AuthHandler) CompleteProfile(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req completeProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.plans.CompleteProfile(r.Context(), user.ID, service.CompleteProfileParams{
		Role:    domain.Role(req.Role),
		Plan:    domain.Plan(req.Plan),
		OrgName: req.OrgName,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	resp := map[string]any{
		"ok":              true,
		"role":            res.Role,
		"plan":            res.Plan,
		"requiresUpgrade": res.RequiresUpgrade,
	}
	if res.RequiresUpgrade {
		resp["targetPlan"] = res.TargetPlan
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AuthHandler) sessionResponse(result *domain.LoginResult) SessionResponse {
	return SessionResponse{
		User:      toUserResponse(result.User, h.now()),
		Token:     result.Token,
		ExpiresAt: result.ExpiresAt,
	}
}
