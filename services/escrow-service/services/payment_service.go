package services

import (
	"context"
	"errors"
	"time"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/providers"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PaymentService manages the payment leg of an order.
type PaymentService interface {
	CreatePayment(ctx context.Context, orderID string, method models.PaymentMethod, amount float64, phoneNumber string) (string, error)
	ProcessMobileMoneyPayment(ctx context.Context, phoneNumber string, amount float64, orderID string) (string, error)
	ProcessCashPayment(ctx context.Context, orderID string, amount float64) (string, error)
	UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error
	CancelPayment(ctx context.Context, paymentID string) error
	GetPayment(ctx context.Context, paymentID string) (*models.Payment, error)
	HandleGatewayCallback(ctx context.Context, callback models.GatewayCallback) error
	CheckPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error)
	ReleaseEscrow(ctx context.Context, orderID string) (int, error)
}

type paymentServiceImpl struct {
	repo    repository.PaymentRepository
	gateway providers.PushGateway
	events  *EventPublisher
	metrics MetricsRecorder
	timeout time.Duration
	logger  *zap.Logger
}

func NewPaymentService(
	repo repository.PaymentRepository,
	gateway providers.PushGateway,
	events *EventPublisher,
	metrics MetricsRecorder,
	timeout time.Duration,
	logger *zap.Logger,
) PaymentService {
	return &paymentServiceImpl{
		repo:    repo,
		gateway: gateway,
		events:  events,
		metrics: metricsOrNoop(metrics),
		timeout: timeout,
		logger:  logger,
	}
}

// CreatePayment persists a pending payment. The phone number is stored as
// given for mobile-money payments; the caller has already checked it.
func (s *paymentServiceImpl) CreatePayment(ctx context.Context, orderID string, method models.PaymentMethod, amount float64, phoneNumber string) (string, error) {
	payment, err := s.createPayment(ctx, orderID, method, amount, phoneNumber)
	if err != nil {
		return "", err
	}
	return payment.ID.String(), nil
}

func (s *paymentServiceImpl) createPayment(ctx context.Context, orderID string, method models.PaymentMethod, amount float64, phoneNumber string) (*models.Payment, error) {
	payment := &models.Payment{
		OrderID: orderID,
		Method:  method,
		Amount:  amount,
		Status:  models.PaymentPending,
	}
	if method == models.PaymentMethodMpesa && phoneNumber != "" {
		payment.PhoneNumber = &phoneNumber
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(pctx, payment); err != nil {
		s.logger.Error("Failed to create payment", zap.String("order_id", orderID), zap.Error(err))
		return nil, persistenceError("Failed to create payment record", err)
	}

	s.logger.Info("Payment created",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", orderID),
		zap.String("method", string(method)),
		zap.Float64("amount", amount),
	)
	_ = s.metrics.RecordCount(ctx, awspkg.MetricPaymentsInitiated, map[string]string{"Method": string(method)})
	s.publish(ctx, models.EventPaymentInitiated, payment, "")
	return payment, nil
}

// ProcessMobileMoneyPayment creates the payment and makes one push attempt.
// A rejected push fails the payment; an accepted one leaves it pending until
// the gateway calls back or the order is delivered.
func (s *paymentServiceImpl) ProcessMobileMoneyPayment(ctx context.Context, phoneNumber string, amount float64, orderID string) (string, error) {
	payment, err := s.createPayment(ctx, orderID, models.PaymentMethodMpesa, amount, phoneNumber)
	if err != nil {
		return "", err
	}
	paymentID := payment.ID.String()

	start := time.Now()
	result, err := s.gateway.InitiatePush(ctx, models.PushRequest{
		PhoneNumber: phoneNumber,
		Amount:      amount,
		OrderID:     orderID,
		PaymentID:   paymentID,
	})
	_ = s.metrics.RecordLatency(ctx, awspkg.MetricGatewayLatency, time.Since(start), nil)

	if err != nil {
		msg := MessageOr(err, "Payment processing failed")
		s.logger.Warn("STK push failed",
			zap.String("payment_id", paymentID),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
		if terr := s.transition(ctx, payment.ID, repository.StatusChange{To: models.PaymentFailed, Message: msg}); terr != nil {
			s.logger.Error("Failed to mark payment failed", zap.String("payment_id", paymentID), zap.Error(terr))
		} else {
			s.recordSettlement(ctx, payment, models.PaymentFailed, msg)
		}
		return "", gatewayError(msg, err)
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.SetGatewayReference(pctx, payment.ID, result.CorrelationToken, result.Message); err != nil {
		s.logger.Error("Failed to store checkout request id",
			zap.String("payment_id", paymentID),
			zap.String("checkout_request_id", result.CorrelationToken),
			zap.Error(err),
		)
	}
	return paymentID, nil
}

// ProcessCashPayment records a cash payment, which stays pending until delivery.
func (s *paymentServiceImpl) ProcessCashPayment(ctx context.Context, orderID string, amount float64) (string, error) {
	payment, err := s.createPayment(ctx, orderID, models.PaymentMethodCash, amount, "")
	if err != nil {
		return "", err
	}
	if err := s.transition(ctx, payment.ID, repository.StatusChange{To: models.PaymentPending}); err != nil {
		return "", err
	}
	return payment.ID.String(), nil
}

func (s *paymentServiceImpl) UpdatePaymentStatus(ctx context.Context, paymentID string, status models.PaymentStatus) error {
	id, err := uuid.Parse(paymentID)
	if err != nil {
		return ErrPaymentNotFound
	}
	return s.transition(ctx, id, repository.StatusChange{To: status})
}

func (s *paymentServiceImpl) CancelPayment(ctx context.Context, paymentID string) error {
	if err := s.UpdatePaymentStatus(ctx, paymentID, models.PaymentRefunded); err != nil {
		return err
	}
	s.logger.Info("Payment refunded", zap.String("payment_id", paymentID))
	_ = s.metrics.RecordCount(ctx, awspkg.MetricPaymentRefunded, nil)
	if p, err := s.GetPayment(ctx, paymentID); err == nil {
		s.publish(ctx, models.EventPaymentRefunded, p, "")
	}
	return nil
}

func (s *paymentServiceImpl) GetPayment(ctx context.Context, paymentID string) (*models.Payment, error) {
	id, err := uuid.Parse(paymentID)
	if err != nil {
		return nil, ErrPaymentNotFound
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	p, err := s.repo.FindByID(pctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, persistenceError("Failed to load payment", err)
	}
	return p, nil
}

// HandleGatewayCallback settles a push: success completes the payment,
// anything else fails it. Repeated callbacks with the same outcome are no-ops.
func (s *paymentServiceImpl) HandleGatewayCallback(ctx context.Context, callback models.GatewayCallback) error {
	payment, err := s.findForCallback(ctx, callback)
	if err != nil {
		return err
	}

	change := repository.StatusChange{To: models.PaymentFailed, Message: callback.ResultDesc}
	if callback.Succeeded() {
		change = repository.StatusChange{To: models.PaymentComplete, Message: callback.ResultDesc, Receipt: callback.Receipt}
	}

	if err := s.transition(ctx, payment.ID, change); err != nil {
		s.logger.Warn("Gateway callback not applied",
			zap.String("payment_id", payment.ID.String()),
			zap.String("checkout_request_id", callback.CorrelationToken),
			zap.Int("result_code", callback.ResultCode),
			zap.Error(err),
		)
		return err
	}

	s.logger.Info("Gateway callback applied",
		zap.String("payment_id", payment.ID.String()),
		zap.String("order_id", payment.OrderID),
		zap.String("status", string(change.To)),
	)
	s.recordSettlement(ctx, payment, change.To, callback.ResultDesc)
	return nil
}

func (s *paymentServiceImpl) findForCallback(ctx context.Context, callback models.GatewayCallback) (*models.Payment, error) {
	if callback.CorrelationToken != "" {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		p, err := s.repo.FindByCheckoutRequestID(pctx, callback.CorrelationToken)
		cancel()
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, persistenceError("Failed to load payment", err)
		}
	}
	if callback.PaymentID != "" {
		return s.GetPayment(ctx, callback.PaymentID)
	}
	return nil, ErrPaymentNotFound
}

// CheckPaymentStatus asks the gateway about a pending push and applies a
// settled answer. Payments that are not pending, or were never pushed, are
// returned as stored.
func (s *paymentServiceImpl) CheckPaymentStatus(ctx context.Context, paymentID string) (*models.Payment, error) {
	payment, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentPending || payment.CheckoutRequestID == nil || *payment.CheckoutRequestID == "" {
		return payment, nil
	}

	status, err := s.gateway.QueryStatus(ctx, *payment.CheckoutRequestID)
	if err != nil {
		return nil, gatewayError(MessageOr(err, "Failed to check payment status"), err)
	}
	if status.Status == models.PaymentPending {
		return payment, nil
	}

	change := repository.StatusChange{To: status.Status, Message: status.ResultDesc, Receipt: status.Receipt}
	if err := s.transition(ctx, payment.ID, change); err != nil && !errors.Is(err, ErrIllegalTransition) {
		return nil, err
	}
	s.recordSettlement(ctx, payment, status.Status, status.ResultDesc)
	return s.GetPayment(ctx, paymentID)
}

// ReleaseEscrow completes every pending payment of a delivered order and
// returns how many were released.
func (s *paymentServiceImpl) ReleaseEscrow(ctx context.Context, orderID string) (int, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	payments, err := s.repo.FindByOrderID(pctx, orderID)
	cancel()
	if err != nil {
		return 0, persistenceError("Failed to load payments", err)
	}

	released := 0
	var firstErr error
	for i := range payments {
		p := &payments[i]
		if p.Status != models.PaymentPending {
			continue
		}
		err := s.transition(ctx, p.ID, repository.StatusChange{To: models.PaymentComplete, Message: "Released on delivery"})
		if err != nil {
			s.logger.Warn("Failed to release payment", zap.String("payment_id", p.ID.String()), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		released++
		_ = s.metrics.RecordCount(ctx, awspkg.MetricEscrowReleased, map[string]string{"Method": string(p.Method)})
		p.Status = models.PaymentComplete
		s.publish(ctx, models.EventEscrowReleased, p, "")
	}
	return released, firstErr
}

// transition applies a status change that is only legal out of pending.
// Re-applying a payment's current status succeeds without a write.
func (s *paymentServiceImpl) transition(ctx context.Context, id uuid.UUID, change repository.StatusChange) error {
	if !change.To.Valid() {
		return ErrInvalidStatus
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	applied, err := s.repo.TransitionFromPending(pctx, id, change)
	if err != nil {
		return persistenceError("Failed to update payment", err)
	}
	if applied {
		return nil
	}

	current, err := s.repo.FindByID(pctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrPaymentNotFound
		}
		return persistenceError("Failed to load payment", err)
	}
	if current.Status == change.To {
		return nil
	}
	return ErrIllegalTransition
}

func (s *paymentServiceImpl) recordSettlement(ctx context.Context, p *models.Payment, status models.PaymentStatus, message string) {
	switch status {
	case models.PaymentComplete:
		_ = s.metrics.RecordCount(ctx, awspkg.MetricPaymentSucceeded, map[string]string{"Method": string(p.Method)})
		p.Status = status
		s.publish(ctx, models.EventPaymentCompleted, p, message)
	case models.PaymentFailed:
		_ = s.metrics.RecordCount(ctx, awspkg.MetricPaymentFailed, map[string]string{"Method": string(p.Method)})
		p.Status = status
		s.publish(ctx, models.EventPaymentFailed, p, message)
	}
}

func (s *paymentServiceImpl) publish(ctx context.Context, eventType string, p *models.Payment, message string) {
	s.events.PublishPayment(ctx, models.PaymentEvent{
		EventType: eventType,
		PaymentID: p.ID.String(),
		OrderID:   p.OrderID,
		Method:    p.Method,
		Amount:    p.Amount,
		Status:    p.Status,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}, p.OrderID)
}
