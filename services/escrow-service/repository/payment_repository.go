package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StatusChange describes a payment status write. Message and Receipt are
// stored only when set.
type StatusChange struct {
	To      models.PaymentStatus
	Message string
	Receipt string
}

// PaymentRepository defines data-access operations for payments.
type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Payment, error)
	FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error)
	SetGatewayReference(ctx context.Context, id uuid.UUID, checkoutRequestID, message string) error
	TransitionFromPending(ctx context.Context, id uuid.UUID, change StatusChange) (bool, error)
}

// GormPaymentRepository implements PaymentRepository using GORM.
type GormPaymentRepository struct {
	db *gorm.DB
}

func NewGormPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &p, nil
}

func (r *GormPaymentRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.WithContext(ctx).
		Where("checkout_request_id = ?", checkoutRequestID).
		First(&p).Error; err != nil {
		return nil, mapGormError(err)
	}
	return &p, nil
}

func (r *GormPaymentRepository) FindByOrderID(ctx context.Context, orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// SetGatewayReference records the gateway's reply. An empty checkoutRequestID
// is stored as NULL, which the unique index ignores.
func (r *GormPaymentRepository) SetGatewayReference(ctx context.Context, id uuid.UUID, checkoutRequestID, message string) error {
	var ref interface{}
	if checkoutRequestID != "" {
		ref = checkoutRequestID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"checkout_request_id": ref,
			"gateway_message":     message,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionFromPending writes change only while the payment is still
// pending. It reports false when the row was not pending (or does not exist),
// which callers treat as an illegal transition.
func (r *GormPaymentRepository) TransitionFromPending(ctx context.Context, id uuid.UUID, change StatusChange) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{"status": change.To}
	switch change.To {
	case models.PaymentComplete:
		updates["completed_at"] = now
	case models.PaymentFailed:
		updates["failed_at"] = now
	}
	if change.Message != "" {
		updates["gateway_message"] = change.Message
	}
	if change.Receipt != "" {
		updates["mpesa_receipt"] = change.Receipt
	}

	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PaymentPending).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func mapGormError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
