package services

import (
	"context"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"go.uber.org/zap"
)

// EscrowService ties delivery confirmation to the release of held payments.
type EscrowService struct {
	orders   OrderService
	payments PaymentService
	logger   *zap.Logger
}

func NewEscrowService(orders OrderService, payments PaymentService, logger *zap.Logger) *EscrowService {
	return &EscrowService{orders: orders, payments: payments, logger: logger}
}

// ConfirmDelivery records the delivery status. On delivered, pending payments
// of the order are completed; a failed release is logged and the delivery
// update stands.
func (s *EscrowService) ConfirmDelivery(ctx context.Context, orderID string, status models.DeliveryStatus) error {
	if err := s.orders.UpdateDeliveryStatus(ctx, orderID, status); err != nil {
		return err
	}
	if status != models.DeliveryDelivered {
		return nil
	}

	released, err := s.payments.ReleaseEscrow(ctx, orderID)
	if err != nil {
		s.logger.Error("Escrow release incomplete",
			zap.String("order_id", orderID),
			zap.Int("released", released),
			zap.Error(err),
		)
		return nil
	}
	s.logger.Info("Escrow released", zap.String("order_id", orderID), zap.Int("released", released))
	return nil
}

// CancelPayment refunds a pending payment and marks its order's payment as cancelled.
func (s *EscrowService) CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	if err := s.payments.CancelPayment(ctx, paymentID); err != nil {
		return nil, err
	}
	payment, err := s.payments.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := s.orders.UpdatePaymentStatus(ctx, payment.OrderID, models.OrderPaymentCancelled); err != nil {
		s.logger.Warn("Payment refunded but order not marked cancelled",
			zap.String("payment_id", paymentID),
			zap.String("order_id", payment.OrderID),
			zap.Error(err),
		)
	}
	return payment, nil
}
