package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/razorpay/razorpay-go"
	"github.com/razorpay/razorpay-go/utils"
)

// RazorpaySignatureHeader carries the webhook body signature.
const RazorpaySignatureHeader = "X-Razorpay-Signature"

// Razorpay webhook event names.
const (
	RazorpayPaymentCaptured = "payment.captured"
	RazorpayOrderPaid       = "order.paid"
	RazorpayPaymentFailed   = "payment.failed"
)

// orderCreator is the slice of the Razorpay client used to open orders.
type orderCreator interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type razorpayGateway struct {
	name          string
	keyID         string
	keySecret     string
	webhookSecret string
	orders        orderCreator
}

// NewRazorpay creates a Razorpay gateway. An empty webhookSecret falls back
// to keySecret.
func NewRazorpay(keyID, keySecret, webhookSecret string) Gateway {
	if webhookSecret == "" {
		webhookSecret = keySecret
	}
	client := razorpay.NewClient(keyID, keySecret)
	return &razorpayGateway{
		name:          "razorpay",
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		orders:        client.Order,
	}
}

func (g *razorpayGateway) Name() string  { return g.name }
func (g *razorpayGateway) KeyID() string { return g.keyID }

func (g *razorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (*ProviderOrder, error) {
	data := map[string]interface{}{
		"amount":   req.Amount,
		"currency": req.Currency,
		"receipt":  req.Receipt,
		"notes": map[string]interface{}{
			"user_id":     req.UserID.String(),
			"plan":        string(req.Plan),
			"description": Description(req.Plan),
		},
	}

	body, err := g.orders.Create(data, nil)
	if err != nil {
		return nil, fmt.Errorf("razorpay create order: %w", err)
	}

	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("razorpay create order: response has no id")
	}
	order := &ProviderOrder{
		ID:       id,
		Amount:   req.Amount,
		Currency: req.Currency,
		Receipt:  req.Receipt,
	}
	if amount, ok := body["amount"].(float64); ok {
		order.Amount = int64(amount)
	}
	if currency, ok := body["currency"].(string); ok && currency != "" {
		order.Currency = currency
	}
	return order, nil
}

// PaymentSignature computes the checkout signature Razorpay issues for a
// completed payment: hex HMAC-SHA256 of "orderID|paymentID".
func PaymentSignature(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *razorpayGateway) VerifyPayment(ctx context.Context, p ClientPayment) error {
	if p.Signature == "" {
		return ErrMissingSignature
	}
	expected := PaymentSignature(g.keySecret, p.OrderID, p.PaymentID)
	if !hmac.Equal([]byte(expected), []byte(p.Signature)) {
		return ErrInvalidSignature
	}
	return nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

func (g *razorpayGateway) ParseWebhook(body []byte, header http.Header) (*WebhookEvent, error) {
	signature := header.Get(RazorpaySignatureHeader)
	if signature == "" {
		return nil, ErrMissingSignature
	}
	if !utils.VerifyWebhookSignature(string(body), signature, g.webhookSecret) {
		return nil, ErrInvalidSignature
	}

	var payload razorpayWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	event := &WebhookEvent{
		Name:      payload.Event,
		Kind:      EventIgnored,
		PaymentID: payload.Payload.Payment.Entity.ID,
	}
	event.ProviderOrderID = payload.Payload.Payment.Entity.OrderID
	if event.ProviderOrderID == "" {
		event.ProviderOrderID = payload.Payload.Order.Entity.ID
	}

	switch payload.Event {
	case RazorpayPaymentCaptured, RazorpayOrderPaid:
		event.Kind = EventPaymentCaptured
	case RazorpayPaymentFailed:
		event.Kind = EventPaymentFailed
	}
	return event, nil
}
