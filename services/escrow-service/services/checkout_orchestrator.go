package services

import (
	"context"
	"strconv"
	"strings"
	"sync"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlaceholderBuyerID stands in for a buyer whose identity is unknown.
const PlaceholderBuyerID = "placeholder_user_id"

type PaymentMethodOption struct {
	ID   models.PaymentMethod `json:"id"`
	Name string               `json:"name"`
}

// DefaultPaymentMethods lists the selectable methods, M-Pesa first.
func DefaultPaymentMethods() []PaymentMethodOption {
	return []PaymentMethodOption{
		{ID: models.PaymentMethodMpesa, Name: "M-Pesa"},
		{ID: models.PaymentMethodCash, Name: "Cash on Delivery"},
	}
}

// CartSource is the read side of a cart the orchestrator snapshots.
type CartSource interface {
	Lines() []models.CartLine
	Version() uint64
}

// CheckoutState is what a client observes of a checkout session.
type CheckoutState struct {
	Methods        []PaymentMethodOption `json:"payment_methods"`
	SelectedMethod models.PaymentMethod  `json:"selected_method"`
	PhoneNumber    string                `json:"phone_number,omitempty"`
	Processing     bool                  `json:"processing"`
	Error          string                `json:"error,omitempty"`
}

// PaymentOrchestrator runs one buyer's checkout: it snapshots the cart into
// an order, then takes payment by the selected method. It never clears the
// cart; the owner does that in onSuccess.
type PaymentOrchestrator struct {
	mu sync.Mutex

	cart     CartSource
	orders   OrderService
	payments PaymentService
	buyerID  string
	metrics  MetricsRecorder
	logger   *zap.Logger

	methods    []PaymentMethodOption
	selected   models.PaymentMethod
	phone      string
	processing bool
	errMsg     string

	token        string
	tokenVersion uint64
	clientKey    string
}

func NewPaymentOrchestrator(cart CartSource, orders OrderService, payments PaymentService, buyerID string, metrics MetricsRecorder, logger *zap.Logger) *PaymentOrchestrator {
	return &PaymentOrchestrator{
		cart:     cart,
		orders:   orders,
		payments: payments,
		buyerID:  buyerID,
		metrics:  metricsOrNoop(metrics),
		logger:   logger,
		methods:  DefaultPaymentMethods(),
		selected: models.PaymentMethodMpesa,
	}
}

func (o *PaymentOrchestrator) SelectPaymentMethod(method models.PaymentMethod) {
	o.mu.Lock()
	o.selected = method
	o.mu.Unlock()
}

func (o *PaymentOrchestrator) SetPhoneNumber(phone string) {
	o.mu.Lock()
	o.phone = phone
	o.mu.Unlock()
}

// SetIdempotencyKey bases the checkout token on a client-supplied key. The
// token still follows the cart version, so a changed cart never resolves to
// an order built from the old one. The key is kept until a checkout succeeds.
func (o *PaymentOrchestrator) SetIdempotencyKey(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if key == "" {
		return
	}
	o.clientKey = key
}

func (o *PaymentOrchestrator) IsProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

// Error returns the message of the last failed checkout, or "".
func (o *PaymentOrchestrator) Error() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.errMsg
}

func (o *PaymentOrchestrator) ClearError() {
	o.mu.Lock()
	o.errMsg = ""
	o.mu.Unlock()
}

func (o *PaymentOrchestrator) State() CheckoutState {
	o.mu.Lock()
	defer o.mu.Unlock()
	methods := make([]PaymentMethodOption, len(o.methods))
	copy(methods, o.methods)
	return CheckoutState{
		Methods:        methods,
		SelectedMethod: o.selected,
		PhoneNumber:    o.phone,
		Processing:     o.processing,
		Error:          o.errMsg,
	}
}

// ProcessPayment runs a checkout with method, or the selected method when
// method is empty. Exactly one of onSuccess or onCancel is called. The
// returned error carries the failure for callers that need its kind.
func (o *PaymentOrchestrator) ProcessPayment(ctx context.Context, method models.PaymentMethod, onSuccess func(orderID string), onCancel func()) error {
	o.mu.Lock()
	if o.processing {
		o.mu.Unlock()
		onCancel()
		return ErrCheckoutInProgress
	}
	if method == "" {
		method = o.selected
	}
	if method == "" {
		o.errMsg = ErrNoPaymentMethod.Message
		o.mu.Unlock()
		onCancel()
		return ErrNoPaymentMethod
	}

	o.processing = true
	o.errMsg = ""
	phone := strings.TrimSpace(o.phone)
	buyerID := o.buyerID
	if buyerID == "" {
		buyerID = PlaceholderBuyerID
	}
	lines := o.cart.Lines()
	token := o.tokenFor(o.cart.Version())
	o.mu.Unlock()

	// Validation happens before anything is persisted.
	switch method {
	case models.PaymentMethodMpesa:
		if phone == "" {
			return o.cancel(ctx, ErrMissingPhoneNumber, "", onCancel)
		}
	case models.PaymentMethodCash:
	default:
		return o.cancel(ctx, ErrInvalidPaymentMethod, "", onCancel)
	}

	orderID, err := o.orders.CreateOrder(ctx, lines, buyerID, method, token)
	if err != nil {
		return o.cancel(ctx, err, "Failed to create order", onCancel)
	}

	amount := models.LinesTotal(lines)
	switch method {
	case models.PaymentMethodMpesa:
		_, err = o.payments.ProcessMobileMoneyPayment(ctx, phone, amount, orderID)
	case models.PaymentMethodCash:
		_, err = o.payments.ProcessCashPayment(ctx, orderID, amount)
	}
	if err != nil {
		o.logger.Warn("Payment failed, order left pending",
			zap.String("order_id", orderID),
			zap.String("method", string(method)),
			zap.Error(err),
		)
		return o.cancel(ctx, err, "Payment processing failed", onCancel)
	}

	o.mu.Lock()
	o.processing = false
	o.token = ""
	o.clientKey = ""
	o.mu.Unlock()

	o.logger.Info("Checkout succeeded",
		zap.String("order_id", orderID),
		zap.String("buyer_id", buyerID),
		zap.String("method", string(method)),
	)
	_ = o.metrics.RecordCount(ctx, awspkg.MetricCheckoutsSucceeded, map[string]string{"Method": string(method)})
	onSuccess(orderID)
	return nil
}

// tokenFor returns the idempotency token for a cart at version. A generated
// token is replaced when the cart has changed since it was issued; a client
// key is suffixed with the version. Callers hold o.mu.
func (o *PaymentOrchestrator) tokenFor(version uint64) string {
	if o.clientKey != "" {
		return o.clientKey + ":" + strconv.FormatUint(version, 16)
	}
	if o.token == "" || o.tokenVersion != version {
		o.token = uuid.NewString()
		o.tokenVersion = version
	}
	return o.token
}

func (o *PaymentOrchestrator) cancel(ctx context.Context, err error, fallback string, onCancel func()) error {
	msg := MessageOr(err, fallback)

	o.mu.Lock()
	o.processing = false
	o.errMsg = msg
	o.mu.Unlock()

	_ = o.metrics.RecordCount(ctx, awspkg.MetricCheckoutsCancelled, nil)
	onCancel()
	return err
}
