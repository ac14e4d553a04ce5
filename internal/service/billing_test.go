package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/ngolink/internal/billing"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/DukeRupert/ngolink/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test"

func newBillingService(t *testing.T, repo billingRepository, gw billing.Gateway) (*billingService, *testClock) {
	t.Helper()
	clock := &testClock{t: t0}
	svc := NewBillingService(repo, gw, billing.NewCatalog("inr", 19900, 99900), testLogger()).(*billingService)
	svc.now = clock.Now
	return svc, clock
}

func seedUser(t *testing.T, store *memory.Store, state domain.PlanState) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: uuid.NewString() + "@example.org", PlanState: state}
	require.NoError(t, store.CreateUser(context.Background(), u))
	return u
}

func webhookBody(event, orderID, paymentID string) []byte {
	return []byte(fmt.Sprintf(
		`{"event":%q,"payload":{"payment":{"entity":{"id":%q,"order_id":%q}}}}`,
		event, paymentID, orderID))
}

func signedHeader(body []byte) http.Header {
	h := http.Header{}
	h.Set(billing.RazorpaySignatureHeader, hmacHex(testSecret, body))
	return h
}

func hmacHex(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestBillingService_CreateOrder(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	v := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))

	checkout, err := svc.CreateOrder(ctx, v, domain.PlanVolunteerPlus)
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_mock", checkout.KeyID)
	assert.Equal(t, "mock", checkout.Provider)
	assert.Equal(t, int64(19900), checkout.Order.Amount)
	assert.Equal(t, "INR", checkout.Order.Currency)

	order, err := store.GetOrderByProviderID(ctx, checkout.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	assert.Equal(t, domain.PlanVolunteerPlus, order.PlanTarget)
	assert.Equal(t, v.ID, order.UserID)
	assert.Equal(t, checkout.Order.Receipt, order.Receipt)
}

func TestBillingService_CreateOrder_Rejections(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))

	volunteer := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	unset := seedUser(t, store, domain.PlanState{Plan: domain.PlanVolunteerFree})

	tests := []struct {
		name   string
		user   *domain.User
		plan   domain.Plan
		reason string
	}{
		{"free plan", volunteer, domain.PlanVolunteerFree, domain.ReasonInvalidPlan},
		{"other family", volunteer, domain.PlanNGOPlus, domain.ReasonPlanRoleMismatch},
		{"no role", unset, domain.PlanVolunteerPlus, domain.ReasonRoleRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateOrder(context.Background(), tt.user, tt.plan)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
			assert.Equal(t, tt.reason, domain.ErrorReason(err))
		})
	}
}

func TestBillingService_CreateOrder_ProviderDown(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, &billing.MockOrders{Err: errors.New("timeout")}))

	_, err := svc.CreateOrder(context.Background(), seedUser(t, store, domain.FreeState(domain.RoleNGO, t0)), domain.PlanNGOPlus)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
}

func TestBillingService_Disabled(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, nil)
	u := seedUser(t, store, domain.FreeState(domain.RoleNGO, t0))

	_, err := svc.CreateOrder(context.Background(), u, domain.PlanNGOPlus)
	assert.Equal(t, domain.ENOTIMPL, domain.ErrorCode(err))
	assert.Equal(t, domain.ReasonBillingDisabled, domain.ErrorReason(err))

	res, err := svc.HandleWebhook(context.Background(), []byte(`{}`), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, "disabled", res.Result)
}

func checkout(t *testing.T, svc *billingService, u *domain.User, plan domain.Plan) string {
	t.Helper()
	c, err := svc.CreateOrder(context.Background(), u, plan)
	require.NoError(t, err)
	return c.Order.ID
}

func TestBillingService_VerifyPayment_ActivatesOnce(t *testing.T) {
	store := memory.New()
	svc, clock := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	v := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	orderID := checkout(t, svc, v, domain.PlanVolunteerPlus)

	payment := billing.ClientPayment{
		OrderID:   orderID,
		PaymentID: "pay_1",
		Signature: billing.PaymentSignature(testSecret, orderID, "pay_1"),
	}
	act, err := svc.VerifyPayment(ctx, v, payment)
	require.NoError(t, err)
	assert.True(t, act.Activated)
	assert.True(t, act.UserUpdated)
	assert.Equal(t, t0.Add(domain.PlanDuration), *act.ExpiresAt)

	u, err := store.GetUserByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanVolunteerPlus, u.Plan)
	assert.Equal(t, t0.Add(domain.PlanDuration), *u.PlanExpiresAt)

	// Client retry and a late webhook must not extend the expiry again.
	clock.Advance(time.Hour)
	act, err = svc.VerifyPayment(ctx, v, payment)
	require.NoError(t, err)
	assert.False(t, act.Activated)

	body := webhookBody(billing.RazorpayPaymentCaptured, orderID, "pay_1")
	res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
	require.NoError(t, err)
	assert.Equal(t, "replayed", res.Result)

	u, err = store.GetUserByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(domain.PlanDuration), *u.PlanExpiresAt)

	order, err := store.GetOrderByProviderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	assert.Equal(t, "pay_1", order.PaymentID)
}

func TestBillingService_VerifyPayment_BadSignature(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	v := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	orderID := checkout(t, svc, v, domain.PlanVolunteerPlus)

	_, err := svc.VerifyPayment(ctx, v, billing.ClientPayment{
		OrderID:   orderID,
		PaymentID: "pay_1",
		Signature: billing.PaymentSignature("wrong", orderID, "pay_1"),
	})
	assert.Equal(t, domain.ReasonInvalidSignature, domain.ErrorReason(err))

	order, err := store.GetOrderByProviderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status)
	u, err := store.GetUserByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanVolunteerFree, u.Plan)
}

func TestBillingService_VerifyPayment_UnknownOrForeignOrder(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	owner := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	other := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	orderID := checkout(t, svc, owner, domain.PlanVolunteerPlus)

	_, err := svc.VerifyPayment(ctx, owner, billing.ClientPayment{
		OrderID: "order_missing", PaymentID: "pay_1",
		Signature: billing.PaymentSignature(testSecret, "order_missing", "pay_1"),
	})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = svc.VerifyPayment(ctx, other, billing.ClientPayment{
		OrderID: orderID, PaymentID: "pay_1",
		Signature: billing.PaymentSignature(testSecret, orderID, "pay_1"),
	})
	assert.Equal(t, domain.ReasonOrderNotFound, domain.ErrorReason(err))
}

func TestBillingService_ConcurrentConfirmations(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	n := seedUser(t, store, domain.FreeState(domain.RoleNGO, t0))
	orderID := checkout(t, svc, n, domain.PlanNGOPlus)

	var wg sync.WaitGroup
	var mu sync.Mutex
	activated := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			act, err := svc.Activate(context.Background(), domain.PaymentConfirmation{
				ProviderOrderID: orderID, PaymentID: "pay_1", Source: domain.PaymentSourceWebhook,
			})
			if err == nil && act.Activated {
				mu.Lock()
				activated++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, activated)
}

type failingPlanStore struct {
	*memory.Store
}

func (f failingPlanStore) UpdatePlanState(ctx context.Context, id uuid.UUID, state domain.PlanState) error {
	return errors.New("write failed")
}

func TestBillingService_Activate_RollsBackOrder(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, failingPlanStore{store}, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	v := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	orderID := checkout(t, svc, v, domain.PlanVolunteerPlus)

	_, err := svc.Activate(ctx, domain.PaymentConfirmation{ProviderOrderID: orderID, PaymentID: "pay_1"})
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))

	order, err := store.GetOrderByProviderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCreated, order.Status, "order reopened for a retry")
	assert.Empty(t, order.PaymentID)

	// The retry succeeds once the store recovers.
	svc.repo = store
	act, err := svc.Activate(ctx, domain.PaymentConfirmation{ProviderOrderID: orderID, PaymentID: "pay_1"})
	require.NoError(t, err)
	assert.True(t, act.Activated)
}

func TestBillingService_Activate_RoleChangedMidFlow(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	u := seedUser(t, store, domain.FreeState(domain.RoleNGO, t0))
	orderID := checkout(t, svc, u, domain.PlanNGOPlus)

	require.NoError(t, store.UpdatePlanState(ctx, u.ID, domain.FreeState(domain.RoleVolunteer, t0)))

	act, err := svc.Activate(ctx, domain.PaymentConfirmation{ProviderOrderID: orderID, PaymentID: "pay_1"})
	require.NoError(t, err)
	assert.True(t, act.Activated)
	assert.False(t, act.UserUpdated)

	got, err := store.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanVolunteerFree, got.Plan)
}

func TestBillingService_HandleWebhook(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	n := seedUser(t, store, domain.FreeState(domain.RoleNGO, t0))
	orderID := checkout(t, svc, n, domain.PlanNGOPlus)

	t.Run("invalid signature", func(t *testing.T) {
		body := webhookBody(billing.RazorpayPaymentCaptured, orderID, "pay_1")
		h := http.Header{}
		h.Set(billing.RazorpaySignatureHeader, hmacHex("wrong", body))

		_, err := svc.HandleWebhook(ctx, body, h)
		assert.Equal(t, domain.ReasonInvalidSignature, domain.ErrorReason(err))
	})

	t.Run("missing signature is acknowledged", func(t *testing.T) {
		res, err := svc.HandleWebhook(ctx, webhookBody(billing.RazorpayPaymentCaptured, orderID, "pay_1"), http.Header{})
		require.NoError(t, err)
		assert.Equal(t, "missing_signature", res.Result)
	})

	t.Run("malformed body is acknowledged", func(t *testing.T) {
		body := []byte(`{not json`)
		res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
		require.NoError(t, err)
		assert.Equal(t, "malformed", res.Result)
	})

	t.Run("unknown order leaves state alone", func(t *testing.T) {
		body := webhookBody(billing.RazorpayPaymentCaptured, "order_unknown", "pay_9")
		res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
		require.NoError(t, err)
		assert.Equal(t, "unknown_order", res.Result)

		got, err := store.GetUserByID(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanNGOBase, got.Plan)
	})

	t.Run("unrelated event is ignored", func(t *testing.T) {
		body := webhookBody("refund.created", orderID, "pay_1")
		res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
		require.NoError(t, err)
		assert.Equal(t, "ignored", res.Result)
	})

	t.Run("order paid activates", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"event":"order.paid","payload":{"order":{"entity":{"id":%q}}}}`, orderID))
		res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
		require.NoError(t, err)
		assert.Equal(t, "activated", res.Result)

		got, err := store.GetUserByID(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.PlanNGOPlus, got.Plan)
	})
}

func TestBillingService_HandleWebhook_PaymentFailed(t *testing.T) {
	store := memory.New()
	svc, _ := newBillingService(t, store, billing.NewMock(testSecret, nil))
	ctx := context.Background()
	v := seedUser(t, store, domain.FreeState(domain.RoleVolunteer, t0))
	orderID := checkout(t, svc, v, domain.PlanVolunteerPlus)

	body := webhookBody(billing.RazorpayPaymentFailed, orderID, "pay_x")
	res, err := svc.HandleWebhook(ctx, body, signedHeader(body))
	require.NoError(t, err)
	assert.Equal(t, "failed", res.Result)

	order, err := store.GetOrderByProviderID(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFailed, order.Status)

	u, err := store.GetUserByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanVolunteerFree, u.Plan)

	// A later successful attempt on the same order still activates.
	body = webhookBody(billing.RazorpayPaymentCaptured, orderID, "pay_y")
	res, err = svc.HandleWebhook(ctx, body, signedHeader(body))
	require.NoError(t, err)
	assert.Equal(t, "activated", res.Result)
}
