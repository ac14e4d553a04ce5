// Package billing adapts payment providers to the order lifecycle.
//
// A Gateway creates provider orders, verifies client-side payment callbacks
// and parses signed webhooks. The service layer never talks to a provider
// SDK directly.
package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSignature means a signature was present but did not match.
	ErrInvalidSignature = errors.New("billing: invalid signature")

	// ErrMissingSignature means the request carried no signature at all.
	ErrMissingSignature = errors.New("billing: missing signature")

	// ErrMalformedPayload means a signed webhook body could not be decoded.
	ErrMalformedPayload = errors.New("billing: malformed payload")

	// ErrPaymentIncomplete means the provider does not report the payment as settled.
	ErrPaymentIncomplete = errors.New("billing: payment not completed")
)

// Gateway is a payment provider.
type Gateway interface {
	// Name identifies the provider on stored orders ("razorpay", "stripe").
	Name() string

	// KeyID is the public key the client SDK needs to start checkout.
	KeyID() string

	CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error)

	// VerifyPayment checks a client-submitted payment confirmation.
	// Returns ErrInvalidSignature on a mismatch.
	VerifyPayment(ctx context.Context, p ClientPayment) error

	// ParseWebhook authenticates and decodes a webhook delivery.
	ParseWebhook(body []byte, header http.Header) (*WebhookEvent, error)
}

// OrderRequest describes the order to open with the provider.
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	UserID   uuid.UUID
	Plan     domain.Plan
}

// ProviderOrder is the provider's handle for a new order.
type ProviderOrder struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

// ClientPayment is what the checkout SDK hands back after payment.
type ClientPayment struct {
	OrderID   string
	PaymentID string
	Signature string
}

// EventKind classifies a webhook event.
type EventKind string

const (
	EventPaymentCaptured EventKind = "captured"
	EventPaymentFailed   EventKind = "failed"
	EventIgnored         EventKind = "ignored"
)

// WebhookEvent is a provider-neutral view of a verified webhook.
type WebhookEvent struct {
	Name            string // Provider event name, e.g. "payment.captured"
	Kind            EventKind
	ProviderOrderID string
	PaymentID       string
}

// Catalog maps paid plans to prices in minor currency units.
type Catalog struct {
	Currency string
	Prices   map[domain.Plan]int64
}

// NewCatalog builds the price list for the two paid plans.
func NewCatalog(currency string, volunteerPlus, ngoPlus int64) Catalog {
	return Catalog{
		Currency: strings.ToUpper(currency),
		Prices: map[domain.Plan]int64{
			domain.PlanVolunteerPlus: volunteerPlus,
			domain.PlanNGOPlus:       ngoPlus,
		},
	}
}

// Price returns the price for plan. Free plans have no price.
func (c Catalog) Price(plan domain.Plan) (int64, bool) {
	if !plan.IsPaid() {
		return 0, false
	}
	amount, ok := c.Prices[plan]
	return amount, ok && amount > 0
}

// NewReceipt returns a short unique receipt reference.
func NewReceipt() string {
	return "rcpt_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// Description is the human label sent to the provider for an order.
func Description(plan domain.Plan) string {
	return fmt.Sprintf("%s (30 days)", plan.DisplayName())
}
