package billing

import (
	"fmt"
	"sync"
)

// MockOrders stands in for the Razorpay orders API. Orders are numbered
// sequentially; setting Err makes the next Create calls fail.
type MockOrders struct {
	mu  sync.Mutex
	n   int
	Err error
}

func (m *MockOrders) Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	m.n++

	resp := map[string]interface{}{
		"id":       fmt.Sprintf("order_mock_%04d", m.n),
		"currency": data["currency"],
		"receipt":  data["receipt"],
		"status":   "created",
	}
	if amount, ok := data["amount"].(int64); ok {
		resp["amount"] = float64(amount)
	}
	return resp, nil
}

// NewMock returns a gateway that behaves like Razorpay, including signature
// checks with secret, without any network calls. Used for local development
// and tests. A nil orders gets a fresh MockOrders.
func NewMock(secret string, orders *MockOrders) Gateway {
	if orders == nil {
		orders = &MockOrders{}
	}
	return &razorpayGateway{
		name:          "mock",
		keyID:         "rzp_test_mock",
		keySecret:     secret,
		webhookSecret: secret,
		orders:        orders,
	}
}
