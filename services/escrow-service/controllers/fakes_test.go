package controllers_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cjsinari/marikiti-backend/services/common/auth"
	apperrors "github.com/cjsinari/marikiti-backend/services/common/errors"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(apperrors.ErrorMiddleware())
	r.Use(middleware.BuyerIdentity(auth.NewTokenParser("")))
	return r
}

func newCartService(t *testing.T, products map[string]models.Product) *services.CartService {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return services.NewCartService(repository.NewCartRepository(client, time.Hour), fakeProducts(products), time.Second, zap.NewNop())
}

type fakeProducts map[string]models.Product

func (f fakeProducts) FindByID(_ context.Context, id string) (*models.Product, error) {
	p, ok := f[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

// ---- order service ----

type fakeOrders struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	created     [][]models.CartLine
	keys        []string
	createErr   error
	paymentSets map[string]models.OrderPaymentStatus
	watch       chan models.Order
}

func newFakeOrders() *fakeOrders {
	return &fakeOrders{orders: map[string]*models.Order{}, paymentSets: map[string]models.OrderPaymentStatus{}}
}

func (f *fakeOrders) CreateOrder(_ context.Context, lines []models.CartLine, buyerID string, method models.PaymentMethod, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	if f.createErr != nil {
		return "", f.createErr
	}
	if len(lines) == 0 {
		return "", services.ErrEmptyCart
	}
	f.created = append(f.created, lines)
	id := "order-new"
	f.orders[id] = &models.Order{ID: id, BuyerID: buyerID, PaymentMethod: method, TotalAmount: models.LinesTotal(lines)}
	return id, nil
}

func (f *fakeOrders) GetOrder(_ context.Context, id string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return nil, services.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (f *fakeOrders) ListBuyerOrders(_ context.Context, buyerID string) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Order
	for _, o := range f.orders {
		if o.BuyerID == buyerID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeOrders) WatchOrder(_ context.Context, id string) (<-chan models.Order, error) {
	if _, err := f.GetOrder(context.Background(), id); err != nil {
		return nil, err
	}
	return f.watch, nil
}

func (f *fakeOrders) UpdateDeliveryStatus(_ context.Context, id string, status models.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return services.ErrOrderNotFound
	}
	o.DeliveryStatus = status
	return nil
}

func (f *fakeOrders) UpdatePaymentStatus(_ context.Context, id string, status models.OrderPaymentStatus) error {
	if !status.Valid() {
		return services.ErrInvalidStatus
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[id]
	if !ok {
		return services.ErrOrderNotFound
	}
	o.PaymentStatus = status
	f.paymentSets[id] = status
	return nil
}

// ---- payment service ----

type fakePayments struct {
	mu          sync.Mutex
	payments    map[string]*models.Payment
	pushErr     error
	pushes      int
	callbacks   []models.GatewayCallback
	callbackErr error
}

func newFakePayments() *fakePayments {
	return &fakePayments{payments: map[string]*models.Payment{}}
}

func (f *fakePayments) CreatePayment(context.Context, string, models.PaymentMethod, float64, string) (string, error) {
	return "pay-new", nil
}

func (f *fakePayments) ProcessMobileMoneyPayment(_ context.Context, _ string, _ float64, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pushes++
	if f.pushErr != nil {
		return "", f.pushErr
	}
	return "pay-new", nil
}

func (f *fakePayments) ProcessCashPayment(context.Context, string, float64) (string, error) {
	return "pay-new", nil
}

func (f *fakePayments) UpdatePaymentStatus(context.Context, string, models.PaymentStatus) error {
	return nil
}

func (f *fakePayments) CancelPayment(context.Context, string) error { return nil }

func (f *fakePayments) GetPayment(_ context.Context, id string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.payments[id]
	if !ok {
		return nil, services.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakePayments) HandleGatewayCallback(_ context.Context, cb models.GatewayCallback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callbacks = append(f.callbacks, cb)
	return f.callbackErr
}

func (f *fakePayments) CheckPaymentStatus(ctx context.Context, id string) (*models.Payment, error) {
	p, err := f.GetPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Status = models.PaymentComplete
	return p, nil
}

func (f *fakePayments) ReleaseEscrow(context.Context, string) (int, error) { return 0, nil }

// ---- escrow ----

type fakeEscrow struct {
	mu        sync.Mutex
	delivered []string
	cancelled []string
	err       error
}

func (f *fakeEscrow) ConfirmDelivery(_ context.Context, orderID string, status models.DeliveryStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if !status.Valid() {
		return services.ErrInvalidStatus
	}
	f.delivered = append(f.delivered, orderID+":"+string(status))
	return nil
}

func (f *fakeEscrow) CancelPayment(_ context.Context, paymentID string) (*models.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.cancelled = append(f.cancelled, paymentID)
	return &models.Payment{Status: models.PaymentRefunded}, nil
}
