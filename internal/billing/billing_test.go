package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

const testSecret = "s3cret"

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaymentSignature_KnownVector(t *testing.T) {
	mac := hmac.New(sha256.New, []byte("S"))
	mac.Write([]byte("O|P"))
	want := hex.EncodeToString(mac.Sum(nil))

	assert.Equal(t, want, PaymentSignature("S", "O", "P"))
	assert.NotEqual(t, want, PaymentSignature("S", "P", "O"))
}

func TestVerifyPayment(t *testing.T) {
	g := NewMock(testSecret, nil)
	valid := PaymentSignature(testSecret, "order_1", "pay_1")

	tests := []struct {
		name    string
		payment ClientPayment
		wantErr error
	}{
		{"valid", ClientPayment{OrderID: "order_1", PaymentID: "pay_1", Signature: valid}, nil},
		{"missing", ClientPayment{OrderID: "order_1", PaymentID: "pay_1"}, ErrMissingSignature},
		{"wrong payment", ClientPayment{OrderID: "order_1", PaymentID: "pay_2", Signature: valid}, ErrInvalidSignature},
		{"wrong secret", ClientPayment{OrderID: "order_1", PaymentID: "pay_1", Signature: PaymentSignature("other", "order_1", "pay_1")}, ErrInvalidSignature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.VerifyPayment(context.Background(), tt.payment)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestVerifyPayment_BitFlippedSignature(t *testing.T) {
	g := NewMock(testSecret, nil)
	sig := []byte(PaymentSignature(testSecret, "order_1", "pay_1"))

	for i := range sig {
		flipped := append([]byte(nil), sig...)
		if flipped[i] == '0' {
			flipped[i] = '1'
		} else {
			flipped[i] = '0'
		}
		err := g.VerifyPayment(context.Background(), ClientPayment{OrderID: "order_1", PaymentID: "pay_1", Signature: string(flipped)})
		require.ErrorIs(t, err, ErrInvalidSignature, "position %d", i)
	}
}

func TestRazorpayParseWebhook(t *testing.T) {
	g := NewMock(testSecret, nil)

	captured := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_9","order_id":"order_9"}}}}`)
	orderPaid := []byte(`{"event":"order.paid","payload":{"order":{"entity":{"id":"order_7"}},"payment":{"entity":{"id":"pay_7"}}}}`)
	failed := []byte(`{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_3","order_id":"order_3"}}}}`)
	other := []byte(`{"event":"refund.created","payload":{}}`)

	tests := []struct {
		name      string
		body      []byte
		kind      EventKind
		orderID   string
		paymentID string
	}{
		{"payment captured", captured, EventPaymentCaptured, "order_9", "pay_9"},
		{"order paid uses order entity", orderPaid, EventPaymentCaptured, "order_7", "pay_7"},
		{"payment failed", failed, EventPaymentFailed, "order_3", "pay_3"},
		{"unknown event", other, EventIgnored, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			h.Set(RazorpaySignatureHeader, signBody(testSecret, tt.body))

			ev, err := g.ParseWebhook(tt.body, h)

			require.NoError(t, err)
			assert.Equal(t, tt.kind, ev.Kind)
			assert.Equal(t, tt.orderID, ev.ProviderOrderID)
			assert.Equal(t, tt.paymentID, ev.PaymentID)
		})
	}
}

func TestRazorpayParseWebhook_Rejections(t *testing.T) {
	g := NewMock(testSecret, nil)
	body := []byte(`{"event":"payment.captured"}`)

	_, err := g.ParseWebhook(body, http.Header{})
	assert.ErrorIs(t, err, ErrMissingSignature)

	h := http.Header{}
	h.Set(RazorpaySignatureHeader, signBody("wrong", body))
	_, err = g.ParseWebhook(body, h)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	malformed := []byte(`{not json`)
	h.Set(RazorpaySignatureHeader, signBody(testSecret, malformed))
	_, err = g.ParseWebhook(malformed, h)
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestMockCreateOrder(t *testing.T) {
	orders := &MockOrders{}
	g := NewMock(testSecret, orders)

	o, err := g.CreateOrder(context.Background(), OrderRequest{
		Amount: 19900, Currency: "INR", Receipt: "rcpt_1", UserID: uuid.New(), Plan: domain.PlanVolunteerPlus,
	})
	require.NoError(t, err)
	assert.Equal(t, "order_mock_0001", o.ID)
	assert.Equal(t, int64(19900), o.Amount)
	assert.Equal(t, "INR", o.Currency)
	assert.Equal(t, "mock", g.Name())

	orders.Err = errors.New("provider down")
	_, err = g.CreateOrder(context.Background(), OrderRequest{Amount: 1, Currency: "INR"})
	assert.Error(t, err)
}

func TestCatalog(t *testing.T) {
	c := NewCatalog("inr", 19900, 99900)

	assert.Equal(t, "INR", c.Currency)

	amount, ok := c.Price(domain.PlanNGOPlus)
	assert.True(t, ok)
	assert.Equal(t, int64(99900), amount)

	_, ok = c.Price(domain.PlanVolunteerFree)
	assert.False(t, ok)
}

func TestNewReceipt(t *testing.T) {
	r := NewReceipt()
	assert.True(t, strings.HasPrefix(r, "rcpt_"))
	assert.Len(t, r, len("rcpt_")+16)
	assert.NotEqual(t, r, NewReceipt())
}

func TestStripeParseWebhook_Rejections(t *testing.T) {
	g := NewStripe("sk_test", "pk_test", "whsec_test")

	_, err := g.ParseWebhook([]byte(`{}`), http.Header{})
	assert.ErrorIs(t, err, ErrMissingSignature)

	h := http.Header{}
	h.Set(StripeSignatureHeader, "t=1,v1=deadbeef")
	_, err = g.ParseWebhook([]byte(`{}`), h)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestStripeEvent(t *testing.T) {
	succeeded := stripe.Event{
		Type: "payment_intent.succeeded",
		Data: &stripe.EventData{Raw: []byte(`{"id":"pi_1","latest_charge":"ch_1"}`)},
	}
	ev, err := stripeEvent(succeeded)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentCaptured, ev.Kind)
	assert.Equal(t, "pi_1", ev.ProviderOrderID)
	assert.Equal(t, "ch_1", ev.PaymentID)

	failed := stripe.Event{
		Type: "payment_intent.payment_failed",
		Data: &stripe.EventData{Raw: []byte(`{"id":"pi_2"}`)},
	}
	ev, err = stripeEvent(failed)
	require.NoError(t, err)
	assert.Equal(t, EventPaymentFailed, ev.Kind)
	assert.Equal(t, "pi_2", ev.PaymentID)

	ev, err = stripeEvent(stripe.Event{Type: "customer.created"})
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Kind)
}
