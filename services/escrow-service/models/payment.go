package models

import (
	"time"

	"github.com/google/uuid"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentComplete PaymentStatus = "complete"
	PaymentFailed   PaymentStatus = "failed"
	PaymentRefunded PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentComplete, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed out of s.
func (s PaymentStatus) IsTerminal() bool {
	return s == PaymentComplete || s == PaymentFailed || s == PaymentRefunded
}

// CanTransitionTo reports whether a payment in s may be written as next.
// Only pending payments move; pending to pending is a re-confirmation.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && next.Valid()
}

type Payment struct {
	ID                uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID           string        `gorm:"type:varchar(64);index;not null" json:"order_id"`
	Method            PaymentMethod `gorm:"type:varchar(20);not null" json:"method"`
	Amount            float64       `gorm:"type:numeric(12,2);not null" json:"amount"`
	Status            PaymentStatus `gorm:"type:varchar(20);index;not null" json:"status"`
	PhoneNumber       *string       `gorm:"type:varchar(20)" json:"phone_number,omitempty"`
	CheckoutRequestID *string       `gorm:"type:varchar(128);uniqueIndex" json:"checkout_request_id,omitempty"`
	GatewayMessage    *string       `gorm:"type:varchar(512)" json:"gateway_message,omitempty"`
	MpesaReceipt      *string       `gorm:"type:varchar(64)" json:"mpesa_receipt,omitempty"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	FailedAt          *time.Time    `json:"failed_at,omitempty"`
	CreatedAt         time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}
