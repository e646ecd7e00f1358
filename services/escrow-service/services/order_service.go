package services

import (
	"context"
	"errors"
	"time"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"go.uber.org/zap"
)

// MetricsRecorder is the part of the CloudWatch metrics client the services use.
type MetricsRecorder interface {
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// IdempotencyStore maps checkout tokens to the order they created.
type IdempotencyStore interface {
	GetIdempotency(ctx context.Context, key string) (string, error)
	SetIdempotency(ctx context.Context, key, orderID string, ttl time.Duration) (string, error)
}

// OrderService snapshots carts into orders and drives their status fields.
type OrderService interface {
	CreateOrder(ctx context.Context, lines []models.CartLine, buyerID string, method models.PaymentMethod, idempotencyKey string) (string, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID string) ([]models.Order, error)
	WatchOrder(ctx context.Context, orderID string) (<-chan models.Order, error)
	UpdateDeliveryStatus(ctx context.Context, orderID string, status models.DeliveryStatus) error
	UpdatePaymentStatus(ctx context.Context, orderID string, status models.OrderPaymentStatus) error
}

type orderServiceImpl struct {
	repo    repository.OrderRepository
	idem    IdempotencyStore
	idemTTL time.Duration
	events  *EventPublisher
	metrics MetricsRecorder
	timeout time.Duration
	logger  *zap.Logger
}

// NewOrderService creates an OrderService. idem may be nil, which disables
// checkout de-duplication.
func NewOrderService(
	repo repository.OrderRepository,
	idem IdempotencyStore,
	idemTTL time.Duration,
	events *EventPublisher,
	metrics MetricsRecorder,
	timeout time.Duration,
	logger *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		repo:    repo,
		idem:    idem,
		idemTTL: idemTTL,
		events:  events,
		metrics: metricsOrNoop(metrics),
		timeout: timeout,
		logger:  logger,
	}
}

// CreateOrder persists a pending order built from lines. The lines are
// copied, so later cart edits never reach the order. A previously seen
// idempotency key returns the order it created instead of inserting again.
func (s *orderServiceImpl) CreateOrder(ctx context.Context, lines []models.CartLine, buyerID string, method models.PaymentMethod, idempotencyKey string) (string, error) {
	if len(lines) == 0 {
		return "", ErrEmptyCart
	}

	if existing := s.lookupIdempotency(ctx, idempotencyKey); existing != "" {
		s.logger.Info("Reusing order for idempotency key",
			zap.String("order_id", existing),
			zap.String("buyer_id", buyerID),
		)
		return existing, nil
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItem{
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			Price:       l.Price,
			Quantity:    l.Quantity,
			ImageURL:    l.ImageURL,
		})
	}

	now := time.Now().UTC()
	order := &models.Order{
		BuyerID:        buyerID,
		Items:          items,
		TotalAmount:    models.LinesTotal(lines),
		PaymentMethod:  method,
		PaymentStatus:  models.OrderPaymentPending,
		DeliveryStatus: models.DeliveryPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.repo.Create(pctx, order); err != nil {
		s.logger.Error("Failed to create order", zap.String("buyer_id", buyerID), zap.Error(err))
		return "", persistenceError("Failed to create order", err)
	}

	orderID := s.recordIdempotency(ctx, idempotencyKey, order.ID)

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("buyer_id", buyerID),
		zap.Float64("total_amount", order.TotalAmount),
		zap.String("payment_method", string(method)),
	)
	_ = s.metrics.RecordCount(ctx, awspkg.MetricOrdersCreated, map[string]string{"PaymentMethod": string(method)})
	s.events.PublishOrder(ctx, models.OrderEvent{
		EventType:      models.EventOrderCreated,
		OrderID:        order.ID,
		BuyerID:        buyerID,
		TotalAmount:    order.TotalAmount,
		PaymentMethod:  method,
		PaymentStatus:  order.PaymentStatus,
		DeliveryStatus: order.DeliveryStatus,
		Timestamp:      now,
	}, order.ID)

	return orderID, nil
}

func (s *orderServiceImpl) lookupIdempotency(ctx context.Context, key string) string {
	if key == "" || s.idem == nil {
		return ""
	}
	id, err := s.idem.GetIdempotency(ctx, key)
	if err != nil {
		s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		return ""
	}
	return id
}

// recordIdempotency stores orderID under key and returns the id the key
// resolves to. A concurrent checkout with the same key may have won.
func (s *orderServiceImpl) recordIdempotency(ctx context.Context, key, orderID string) string {
	if key == "" || s.idem == nil {
		return orderID
	}
	stored, err := s.idem.SetIdempotency(ctx, key, orderID, s.idemTTL)
	if err != nil {
		s.logger.Warn("Failed to record idempotency key", zap.String("order_id", orderID), zap.Error(err))
		return orderID
	}
	if stored != "" && stored != orderID {
		s.logger.Warn("Concurrent checkout with same idempotency key, keeping first order",
			zap.String("order_id", stored),
			zap.String("orphaned_order_id", orderID),
		)
		return stored
	}
	return orderID
}

func (s *orderServiceImpl) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	order, err := s.repo.FindByID(pctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("Failed to load order", err)
	}
	return order, nil
}

func (s *orderServiceImpl) ListBuyerOrders(ctx context.Context, buyerID string) ([]models.Order, error) {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	orders, err := s.repo.FindByBuyerID(pctx, buyerID)
	if err != nil {
		return nil, persistenceError("Failed to load orders", err)
	}
	return orders, nil
}

// WatchOrder streams order snapshots until ctx is done.
func (s *orderServiceImpl) WatchOrder(ctx context.Context, orderID string) (<-chan models.Order, error) {
	ch, err := s.repo.Watch(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceError("Failed to watch order", err)
	}
	return ch, nil
}

// UpdateDeliveryStatus sets the delivery status. Delivered also completes the
// order's payment status in the same write, which is the escrow release.
func (s *orderServiceImpl) UpdateDeliveryStatus(ctx context.Context, orderID string, status models.DeliveryStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}

	update := models.OrderUpdate{DeliveryStatus: &status}
	if status == models.DeliveryDelivered {
		complete := models.OrderPaymentComplete
		update.PaymentStatus = &complete
	}
	if err := s.update(ctx, orderID, update); err != nil {
		return err
	}

	s.logger.Info("Order delivery status updated",
		zap.String("order_id", orderID),
		zap.String("delivery_status", string(status)),
	)
	if status == models.DeliveryDelivered {
		_ = s.metrics.RecordCount(ctx, awspkg.MetricOrdersDelivered, nil)
		s.events.PublishOrder(ctx, models.OrderEvent{
			EventType:      models.EventOrderDelivered,
			OrderID:        orderID,
			PaymentStatus:  models.OrderPaymentComplete,
			DeliveryStatus: status,
			Timestamp:      time.Now().UTC(),
		}, orderID)
	}
	return nil
}

func (s *orderServiceImpl) UpdatePaymentStatus(ctx context.Context, orderID string, status models.OrderPaymentStatus) error {
	if !status.Valid() {
		return ErrInvalidStatus
	}
	if err := s.update(ctx, orderID, models.OrderUpdate{PaymentStatus: &status}); err != nil {
		return err
	}
	s.logger.Info("Order payment status updated",
		zap.String("order_id", orderID),
		zap.String("payment_status", string(status)),
	)
	return nil
}

func (s *orderServiceImpl) update(ctx context.Context, orderID string, update models.OrderUpdate) error {
	pctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.repo.Update(pctx, orderID, update); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrOrderNotFound
		}
		s.logger.Error("Failed to update order", zap.String("order_id", orderID), zap.Error(err))
		return persistenceError("Failed to update order", err)
	}
	return nil
}
