package domain

import (
	"time"

	"github.com/google/uuid"
)

// OrderStatus represents the lifecycle state of a payment order.
//
// Valid transitions:
// - created -> paid   (verified payment, exactly once)
// - created -> failed (provider reported a failure)
// - paid -> created   (only to undo a paid transition whose plan activation failed)
type OrderStatus string

const (
	OrderStatusCreated OrderStatus = "created"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

// IsValid returns true if the status is a recognized value.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusFailed:
		return true
	}
	return false
}

// Order records one checkout attempt with the payment provider.
type Order struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	PlanTarget      Plan // Authoritative plan to activate on payment
	Provider        string
	ProviderOrderID string
	Amount          int64 // Minor currency units (paise, cents)
	Currency        string
	Receipt         string
	Status          OrderStatus
	PaymentID       string
	PaidAt          *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsPaid returns true once the order has been settled.
func (o *Order) IsPaid() bool {
	return o.Status == OrderStatusPaid
}

// PaymentSource identifies which path confirmed a payment.
type PaymentSource string

const (
	PaymentSourceClient  PaymentSource = "client"
	PaymentSourceWebhook PaymentSource = "webhook"
	PaymentSourceAdmin   PaymentSource = "admin"
)

// PaymentConfirmation carries what a verified payment callback proved.
type PaymentConfirmation struct {
	ProviderOrderID string
	PaymentID       string
	Source          PaymentSource
}

// Activation is the result of applying a payment confirmation.
type Activation struct {
	Order       *Order
	Activated   bool // False when the order was already paid (replay)
	ExpiresAt   *time.Time
	UserUpdated bool
}
