package models

import "time"

type PaymentMethod string

const (
	PaymentMethodMpesa PaymentMethod = "mpesa"
	PaymentMethodCash  PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentMethodMpesa || m == PaymentMethodCash
}

// OrderPaymentStatus is the escrow state of an order, distinct from the
// status of any individual payment record.
type OrderPaymentStatus string

const (
	OrderPaymentPending   OrderPaymentStatus = "pending"
	OrderPaymentComplete  OrderPaymentStatus = "complete"
	OrderPaymentCancelled OrderPaymentStatus = "cancelled"
)

func (s OrderPaymentStatus) Valid() bool {
	switch s {
	case OrderPaymentPending, OrderPaymentComplete, OrderPaymentCancelled:
		return true
	}
	return false
}

type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
)

func (s DeliveryStatus) Valid() bool {
	return s == DeliveryPending || s == DeliveryDelivered
}

// OrderItem is a cart line frozen at order creation.
type OrderItem struct {
	ProductID   string  `json:"product_id"`
	ProductName string  `json:"product_name"`
	Price       float64 `json:"price"`
	Quantity    int     `json:"quantity"`
	ImageURL    string  `json:"image_url,omitempty"`
}

type Order struct {
	ID             string             `json:"id"`
	BuyerID        string             `json:"buyer_id"`
	Items          []OrderItem        `json:"items"`
	TotalAmount    float64            `json:"total_amount"`
	PaymentMethod  PaymentMethod      `json:"payment_method"`
	PaymentStatus  OrderPaymentStatus `json:"payment_status"`
	DeliveryStatus DeliveryStatus     `json:"delivery_status"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// OrderUpdate is a partial update applied to an order in one write. Nil
// fields are left untouched.
type OrderUpdate struct {
	DeliveryStatus *DeliveryStatus
	PaymentStatus  *OrderPaymentStatus
}

func (u OrderUpdate) IsEmpty() bool {
	return u.DeliveryStatus == nil && u.PaymentStatus == nil
}

type UpdateDeliveryStatusRequest struct {
	Status DeliveryStatus `json:"status" binding:"required"`
}

type UpdateOrderPaymentStatusRequest struct {
	Status OrderPaymentStatus `json:"status" binding:"required"`
}

type CheckoutRequest struct {
	PaymentMethod PaymentMethod `json:"payment_method"`
	PhoneNumber   string        `json:"phone_number"`
}
