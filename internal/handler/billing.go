// Package handler contains the HTTP handlers for the ngolink API.
//
// This file implements plan purchase and management handlers.
//
// Routes handled:
//   - POST /api/billing/create-order    -> CreateOrder
//   - POST /api/billing/verify-payment  -> VerifyPayment
//   - POST /api/billing/webhook         -> Webhook (public, signature-authenticated)
//   - POST /api/billing/switch-role     -> SwitchRole
//   - POST /api/billing/cancel          -> Cancel
//   - GET  /api/billing/status          -> Status
package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/billing"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/service"
)

// maxWebhookBytes caps webhook bodies at 64KB.
const maxWebhookBytes = 64 << 10

// BillingHandler handles plan purchase and plan management requests.
type BillingHandler struct {
	billing service.BillingService
	plans   service.PlanService
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(billingService service.BillingService, plans service.PlanService, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		plans:   plans,
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux. The webhook
// route is public; the provider authenticates with its signature.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.HandleFunc("POST /api/billing/webhook", h.Webhook)

	mux.Handle("POST /api/billing/create-order", requireUser(http.HandlerFunc(h.CreateOrder)))
	mux.Handle("POST /api/billing/verify-payment", requireUser(http.HandlerFunc(h.VerifyPayment)))
	mux.Handle("POST /api/billing/switch-role", requireUser(http.HandlerFunc(h.SwitchRole)))
	mux.Handle("POST /api/billing/cancel", requireUser(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /api/billing/status", requireUser(http.HandlerFunc(h.Status)))
}

type createOrderRequest struct {
	Plan string `json:"plan" validate:"required"`
}

// CreateOrder opens a provider order for a paid plan.
func (h *BillingHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	checkout, err := h.billing.CreateOrder(r.Context(), user, domain.Plan(req.Plan))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, checkout)
}

type verifyPaymentRequest struct {
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	Signature string `json:"razorpay_signature"`
}

// VerifyPayment confirms a checkout the client completed and activates the
// plan. Repeating it for a paid order is harmless.
func (h *BillingHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req verifyPaymentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	activation, err := h.billing.VerifyPayment(r.Context(), user, billing.ClientPayment{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"plan":      activation.Order.PlanTarget,
		"activated": activation.Activated,
		"expiresAt": activation.ExpiresAt,
	})
}

// Webhook processes provider payment events. Anything that authenticates
// is acknowledged with 200 so the provider stops retrying, including events
// for unknown orders. Storage failures return 500 so the provider retries.
func (h *BillingHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.logger.Error("failed to read webhook body", "error", err)
		ErrorResponse(w, r, h.logger, domain.Invalid("BillingHandler.Webhook", "Unreadable body"))
		return
	}

	result, err := h.billing.HandleWebhook(r.Context(), body, r.Header)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("webhook processed",
		"event", result.Event,
		"kind", result.Kind,
		"result", result.Result,
	)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type switchRoleRequest struct {
	NewRole string `json:"newRole" validate:"required"`
}

// SwitchRole moves the caller to the other role on its free plan.
func (h *BillingHandler) SwitchRole(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	var req switchRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.plans.SwitchRole(r.Context(), user.ID, domain.Role(req.NewRole))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"newRole": res.Role,
		"newPlan": res.Plan,
	})
}

// Cancel marks the paid plan cancelled. Access continues until expiry.
func (h *BillingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())

	expiresAt, err := h.plans.Cancel(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "expiresAt": expiresAt})
}

// Status returns the caller's billing standing.
func (h *BillingHandler) Status(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	writeJSON(w, http.StatusOK, h.plans.Status(user))
}
