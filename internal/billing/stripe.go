package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
	"github.com/stripe/stripe-go/v79/webhook"
)

// StripeSignatureHeader carries the Stripe webhook signature.
const StripeSignatureHeader = "Stripe-Signature"

// intentAPI is the slice of the Stripe PaymentIntents client in use.
type intentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeGateway struct {
	publishableKey string
	webhookSecret  string
	intents        intentAPI
}

// NewStripe creates a Stripe gateway where an order is a PaymentIntent.
//
// The secretKey authenticates API calls; the webhookSecret verifies
// incoming webhook signatures.
func NewStripe(secretKey, publishableKey, webhookSecret string) Gateway {
	return &stripeGateway{
		publishableKey: publishableKey,
		webhookSecret:  webhookSecret,
		intents:        &paymentintent.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
	}
}

func (g *stripeGateway) Name() string  { return "stripe" }
func (g *stripeGateway) KeyID() string { return g.publishableKey }

func (g *stripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error) {
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(req.Currency)),
		Description: stripe.String(Description(req.Plan)),
	}
	params.Context = ctx
	params.AddMetadata("user_id", req.UserID.String())
	params.AddMetadata("plan", string(req.Plan))
	params.AddMetadata("receipt", req.Receipt)

	pi, err := g.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return &ProviderOrder{
		ID:           pi.ID,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      req.Receipt,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// VerifyPayment asks Stripe for the intent's state; there is no client
// signature to check.
func (g *stripeGateway) VerifyPayment(ctx context.Context, p ClientPayment) error {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := g.intents.Get(p.OrderID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == http.StatusNotFound {
			return ErrInvalidSignature
		}
		return fmt.Errorf("stripe get payment intent: %w", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return ErrPaymentIncomplete
	}
	return nil
}

func (g *stripeGateway) ParseWebhook(body []byte, header http.Header) (*WebhookEvent, error) {
	signature := header.Get(StripeSignatureHeader)
	if signature == "" {
		return nil, ErrMissingSignature
	}

	event, err := webhook.ConstructEventWithOptions(body, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return stripeEvent(event)
}

func stripeEvent(event stripe.Event) (*WebhookEvent, error) {
	out := &WebhookEvent{Name: string(event.Type), Kind: EventIgnored}

	switch event.Type {
	case "payment_intent.succeeded":
		out.Kind = EventPaymentCaptured
	case "payment_intent.payment_failed":
		out.Kind = EventPaymentFailed
	default:
		return out, nil
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	out.ProviderOrderID = pi.ID
	if pi.LatestCharge != nil {
		out.PaymentID = pi.LatestCharge.ID
	}
	if out.PaymentID == "" {
		out.PaymentID = pi.ID
	}
	return out, nil
}
