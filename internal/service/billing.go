package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/ngolink/internal/billing"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/metrics"
	"github.com/DukeRupert/ngolink/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// BillingService runs the payment order lifecycle: open an order with the
// provider, confirm payment from the client or a webhook, and activate the
// paid plan exactly once per order.
type BillingService interface {
	// CreateOrder opens a provider order for a paid plan in the caller's
	// role family and records it as created.
	CreateOrder(ctx context.Context, user *domain.User, plan domain.Plan) (*Checkout, error)

	// VerifyPayment checks a client-side payment confirmation and activates
	// the order's plan. Returns INVALID_SIGNATURE without touching state
	// when the signature does not match.
	VerifyPayment(ctx context.Context, user *domain.User, p billing.ClientPayment) (*domain.Activation, error)

	// HandleWebhook authenticates and applies a provider webhook. Only an
	// invalid signature or a storage failure is returned as an error;
	// everything else is acknowledged so the provider stops retrying.
	HandleWebhook(ctx context.Context, body []byte, header http.Header) (*WebhookResult, error)

	// Activate applies a verified payment confirmation to its order.
	// Replays for an already paid order are no-ops.
	Activate(ctx context.Context, conf domain.PaymentConfirmation) (*domain.Activation, error)
}

// Checkout is returned to the client to start provider checkout.
type Checkout struct {
	Order    *billing.ProviderOrder `json:"order"`
	KeyID    string                 `json:"keyId"`
	Provider string                 `json:"provider"`
}

// WebhookResult describes what a webhook delivery did.
type WebhookResult struct {
	Event      string
	Kind       billing.EventKind
	Result     string // activated, replayed, failed, ignored, unknown_order, ...
	Activation *domain.Activation
}

// =============================================================================
// Implementation
// =============================================================================

type billingRepository interface {
	repository.UserRepository
	repository.OrderRepository
}

type billingService struct {
	repo    billingRepository
	gateway billing.Gateway
	catalog billing.Catalog
	logger  *slog.Logger
	now     func() time.Time
}

// NewBillingService creates a new BillingService. A nil gateway disables
// checkout; webhooks are then acknowledged and ignored.
func NewBillingService(repo billingRepository, gateway billing.Gateway, catalog billing.Catalog, logger *slog.Logger) BillingService {
	return &billingService{
		repo:    repo,
		gateway: gateway,
		catalog: catalog,
		logger:  logger,
		now:     time.Now,
	}
}

func billingDisabled(op string) error {
	return domain.Errorf(domain.ENOTIMPL, op, "Billing is not configured").WithReason(domain.ReasonBillingDisabled)
}

func (s *billingService) CreateOrder(ctx context.Context, user *domain.User, plan domain.Plan) (*Checkout, error) {
	const op = "BillingService.CreateOrder"

	if s.gateway == nil {
		return nil, billingDisabled(op)
	}
	if !plan.IsPaid() {
		return nil, domain.Invalid(op, "Only paid plans can be purchased").WithReason(domain.ReasonInvalidPlan)
	}
	if user.Role == domain.RoleUnset {
		return nil, domain.Invalid(op, "Choose a role before upgrading").WithReason(domain.ReasonRoleRequired)
	}
	if !domain.PlanMatchesRole(plan, user.Role) {
		return nil, domain.Invalid(op, "Plan does not match your role").WithReason(domain.ReasonPlanRoleMismatch)
	}

	amount, ok := s.catalog.Price(plan)
	if !ok {
		return nil, domain.Invalid(op, "Plan is not available for purchase").WithReason(domain.ReasonInvalidPlan)
	}

	receipt := billing.NewReceipt()
	po, err := s.gateway.CreateOrder(ctx, billing.OrderRequest{
		Amount:   amount,
		Currency: s.catalog.Currency,
		Receipt:  receipt,
		UserID:   user.ID,
		Plan:     plan,
	})
	if err != nil {
		s.logger.Error("payment provider rejected order", "user_id", user.ID, "plan", plan, "error", err)
		return nil, domain.Wrap(err, domain.EUNAVAILABLE, op, "Payment provider is unavailable. Please try again.")
	}

	now := s.now()
	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          user.ID,
		PlanTarget:      plan,
		Provider:        s.gateway.Name(),
		ProviderOrderID: po.ID,
		Amount:          po.Amount,
		Currency:        po.Currency,
		Receipt:         receipt,
		Status:          domain.OrderStatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, domain.Internal(err, op, "Failed to record order")
	}

	metrics.OrdersCreated.WithLabelValues(string(plan)).Inc()
	s.logger.Info("order created",
		"user_id", user.ID,
		"order_id", po.ID,
		"plan", plan,
		"amount", po.Amount,
		"currency", po.Currency,
	)

	return &Checkout{Order: po, KeyID: s.gateway.KeyID(), Provider: s.gateway.Name()}, nil
}

func (s *billingService) VerifyPayment(ctx context.Context, user *domain.User, p billing.ClientPayment) (*domain.Activation, error) {
	const op = "BillingService.VerifyPayment"

	if s.gateway == nil {
		return nil, billingDisabled(op)
	}
	if p.OrderID == "" || p.PaymentID == "" {
		return nil, domain.Invalid(op, "Order and payment ids are required")
	}

	if err := s.gateway.VerifyPayment(ctx, p); err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature), errors.Is(err, billing.ErrMissingSignature):
			s.logger.Warn("payment signature rejected", "user_id", user.ID, "order_id", p.OrderID)
			return nil, domain.Invalid(op, "Payment signature is invalid").WithReason(domain.ReasonInvalidSignature)
		case errors.Is(err, billing.ErrPaymentIncomplete):
			return nil, domain.PaymentRequired(op, domain.ReasonPaymentIncomplete, "Payment has not completed")
		}
		return nil, domain.Wrap(err, domain.EUNAVAILABLE, op, "Payment provider is unavailable. Please try again.")
	}

	order, err := s.getOrder(ctx, op, p.OrderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != user.ID {
		s.logger.Warn("payment confirmation for another user's order", "user_id", user.ID, "order_id", p.OrderID)
		return nil, domain.NotFound(op, "order", p.OrderID).WithReason(domain.ReasonOrderNotFound)
	}

	return s.activate(ctx, op, order, domain.PaymentConfirmation{
		ProviderOrderID: p.OrderID,
		PaymentID:       p.PaymentID,
		Source:          domain.PaymentSourceClient,
	})
}

func (s *billingService) HandleWebhook(ctx context.Context, body []byte, header http.Header) (*WebhookResult, error) {
	const op = "BillingService.HandleWebhook"

	if s.gateway == nil {
		return &WebhookResult{Result: "disabled"}, nil
	}

	event, err := s.gateway.ParseWebhook(body, header)
	if err != nil {
		switch {
		case errors.Is(err, billing.ErrInvalidSignature):
			metrics.WebhookEvents.WithLabelValues("unknown", "invalid_signature").Inc()
			s.logger.Warn("webhook signature rejected", "provider", s.gateway.Name())
			return nil, domain.Invalid(op, "Webhook signature is invalid").WithReason(domain.ReasonInvalidSignature)
		case errors.Is(err, billing.ErrMissingSignature):
			metrics.WebhookEvents.WithLabelValues("unknown", "missing_signature").Inc()
			s.logger.Warn("webhook without signature", "provider", s.gateway.Name())
			return &WebhookResult{Result: "missing_signature"}, nil
		}
		metrics.WebhookEvents.WithLabelValues("unknown", "malformed").Inc()
		s.logger.Warn("webhook payload rejected", "provider", s.gateway.Name(), "error", err)
		return &WebhookResult{Result: "malformed"}, nil
	}

	res := &WebhookResult{Event: event.Name, Kind: event.Kind, Result: "ignored"}
	defer func() {
		metrics.WebhookEvents.WithLabelValues(string(res.Kind), res.Result).Inc()
	}()

	if event.Kind == billing.EventIgnored {
		return res, nil
	}
	if event.ProviderOrderID == "" {
		s.logger.Warn("webhook event without order id", "event", event.Name)
		return res, nil
	}

	switch event.Kind {
	case billing.EventPaymentCaptured:
		act, err := s.Activate(ctx, domain.PaymentConfirmation{
			ProviderOrderID: event.ProviderOrderID,
			PaymentID:       event.PaymentID,
			Source:          domain.PaymentSourceWebhook,
		})
		if err != nil {
			if domain.ErrorCode(err) == domain.ENOTFOUND {
				s.logger.Warn("webhook for unknown order", "event", event.Name, "order_id", event.ProviderOrderID)
				res.Result = "unknown_order"
				return res, nil
			}
			res.Result = "error"
			return nil, err
		}
		res.Activation = act
		res.Result = "replayed"
		if act.Activated {
			res.Result = "activated"
		}
		return res, nil

	case billing.EventPaymentFailed:
		swapped, err := s.repo.TransitionOrder(ctx, event.ProviderOrderID,
			domain.OrderStatusCreated, domain.OrderStatusFailed, event.PaymentID, s.now())
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				res.Result = "unknown_order"
				return res, nil
			}
			res.Result = "error"
			return nil, domain.Internal(err, op, "Failed to record payment failure")
		}
		if swapped {
			res.Result = "failed"
			s.logger.Info("order payment failed", "order_id", event.ProviderOrderID, "payment_id", event.PaymentID)
		}
		return res, nil
	}
	return res, nil
}

func (s *billingService) Activate(ctx context.Context, conf domain.PaymentConfirmation) (*domain.Activation, error) {
	const op = "BillingService.Activate"

	order, err := s.getOrder(ctx, op, conf.ProviderOrderID)
	if err != nil {
		return nil, err
	}
	return s.activate(ctx, op, order, conf)
}

func (s *billingService) getOrder(ctx context.Context, op, providerOrderID string) (*domain.Order, error) {
	order, err := s.repo.GetOrderByProviderID(ctx, providerOrderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "order", providerOrderID).WithReason(domain.ReasonOrderNotFound)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve order")
	}
	return order, nil
}

// activate moves the order to paid and then upgrades its owner. The order
// swap is the once-only gate: whichever confirmation wins it updates the
// user, every later one sees a paid order and returns without effect.
func (s *billingService) activate(ctx context.Context, op string, order *domain.Order, conf domain.PaymentConfirmation) (*domain.Activation, error) {
	if order.IsPaid() {
		return &domain.Activation{Order: order}, nil
	}

	now := s.now()
	from := order.Status
	swapped, err := s.repo.TransitionOrder(ctx, order.ProviderOrderID, from, domain.OrderStatusPaid, conf.PaymentID, now)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to mark order paid")
	}
	if !swapped {
		// Lost the race to a concurrent confirmation.
		current, err := s.getOrder(ctx, op, order.ProviderOrderID)
		if err != nil {
			return nil, err
		}
		return &domain.Activation{Order: current}, nil
	}

	order.Status = domain.OrderStatusPaid
	order.PaymentID = conf.PaymentID
	order.PaidAt = &now

	user, err := s.repo.GetUserByID(ctx, order.UserID)
	if err != nil {
		s.rollback(ctx, order)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFound(op, "user", order.UserID.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve order owner")
	}

	act := &domain.Activation{Order: order, Activated: true}
	if user.Role != domain.RoleUnset && !domain.PlanMatchesRole(order.PlanTarget, user.Role) {
		s.logger.Warn("paid order no longer matches user role",
			"user_id", user.ID,
			"order_id", order.ProviderOrderID,
			"plan", order.PlanTarget,
			"role", user.Role,
		)
		return act, nil
	}

	state := domain.PaidState(order.PlanTarget, now)
	if err := s.repo.UpdatePlanState(ctx, user.ID, state); err != nil {
		s.rollback(ctx, order)
		return nil, domain.Internal(err, op, "Failed to activate plan")
	}

	act.UserUpdated = true
	act.ExpiresAt = state.PlanExpiresAt
	metrics.PlanActivations.WithLabelValues(string(conf.Source)).Inc()
	s.logger.Info("plan activated",
		"user_id", user.ID,
		"order_id", order.ProviderOrderID,
		"payment_id", conf.PaymentID,
		"plan", order.PlanTarget,
		"source", conf.Source,
		"expires_at", state.PlanExpiresAt,
	)
	return act, nil
}

// rollback reopens a paid order whose plan update failed so a provider
// retry can complete it.
func (s *billingService) rollback(ctx context.Context, order *domain.Order) {
	ok, err := s.repo.TransitionOrder(ctx, order.ProviderOrderID,
		domain.OrderStatusPaid, domain.OrderStatusCreated, "", s.now())
	if err != nil || !ok {
		s.logger.Error("failed to reopen order after activation failure",
			"order_id", order.ProviderOrderID, "swapped", ok, "error", err)
		return
	}
	order.Status = domain.OrderStatusCreated
	order.PaymentID = ""
	order.PaidAt = nil
}
