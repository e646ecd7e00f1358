package models

import "time"

const (
	EventOrderCreated     = "order_created"
	EventOrderDelivered   = "order_delivered"
	EventPaymentInitiated = "payment_initiated"
	EventPaymentFailed    = "payment_failed"
	EventPaymentCompleted = "payment_completed"
	EventPaymentRefunded  = "payment_refunded"
	EventEscrowReleased   = "escrow_released"
)

type OrderEvent struct {
	EventType      string             `json:"event_type"`
	OrderID        string             `json:"order_id"`
	BuyerID        string             `json:"buyer_id,omitempty"`
	TotalAmount    float64            `json:"total_amount,omitempty"`
	PaymentMethod  PaymentMethod      `json:"payment_method,omitempty"`
	PaymentStatus  OrderPaymentStatus `json:"payment_status,omitempty"`
	DeliveryStatus DeliveryStatus     `json:"delivery_status,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}

type PaymentEvent struct {
	EventType string        `json:"event_type"`
	PaymentID string        `json:"payment_id"`
	OrderID   string        `json:"order_id"`
	Method    PaymentMethod `json:"method,omitempty"`
	Amount    float64       `json:"amount,omitempty"`
	Status    PaymentStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}
