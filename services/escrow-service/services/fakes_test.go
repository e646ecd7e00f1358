package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/repository"
	"github.com/google/uuid"
)

// ---- order repository ----

type fakeOrderRepo struct {
	mu          sync.Mutex
	orders      map[string]models.Order
	seq         int
	createCalls int
	updates     []models.OrderUpdate
	createErr   error
	updateErr   error
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: map[string]models.Order{}}
}

func (r *fakeOrderRepo) Create(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	r.seq++
	o.ID = fmt.Sprintf("order-%d", r.seq)
	stored := *o
	stored.Items = append([]models.OrderItem(nil), o.Items...)
	r.orders[o.ID] = stored
	return nil
}

func (r *fakeOrderRepo) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &o, nil
}

func (r *fakeOrderRepo) FindByBuyerID(_ context.Context, buyerID string) ([]models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Order
	for _, o := range r.orders {
		if o.BuyerID == buyerID {
			out = append(out, o)
		}
	}
	return out, nil
}

// Update applies the whole update under one lock, like a single $set.
func (r *fakeOrderRepo) Update(_ context.Context, id string, u models.OrderUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	o, ok := r.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.updates = append(r.updates, u)
	if u.DeliveryStatus != nil {
		o.DeliveryStatus = *u.DeliveryStatus
	}
	if u.PaymentStatus != nil {
		o.PaymentStatus = *u.PaymentStatus
	}
	r.orders[id] = o
	return nil
}

func (r *fakeOrderRepo) Watch(ctx context.Context, id string) (<-chan models.Order, error) {
	o, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := make(chan models.Order, 1)
	ch <- *o
	close(ch)
	return ch, nil
}

func (r *fakeOrderRepo) get(id string) models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.orders[id]
}

// ---- payment repository ----

type fakePaymentRepo struct {
	mu          sync.Mutex
	payments    map[uuid.UUID]*models.Payment
	createCalls int
	createErr   error
}

func newFakePaymentRepo() *fakePaymentRepo {
	return &fakePaymentRepo{payments: map[uuid.UUID]*models.Payment{}}
}

func (r *fakePaymentRepo) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.createCalls++
	if r.createErr != nil {
		return r.createErr
	}
	p.ID = uuid.New()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakePaymentRepo) FindByID(_ context.Context, id uuid.UUID) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *fakePaymentRepo) FindByCheckoutRequestID(_ context.Context, token string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.CheckoutRequestID != nil && *p.CheckoutRequestID == token {
			cp := *p
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *fakePaymentRepo) FindByOrderID(_ context.Context, orderID string) ([]models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Payment
	for _, p := range r.payments {
		if p.OrderID == orderID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakePaymentRepo) SetGatewayReference(_ context.Context, id uuid.UUID, token, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return repository.ErrNotFound
	}
	p.CheckoutRequestID = &token
	p.GatewayMessage = &message
	return nil
}

func (r *fakePaymentRepo) TransitionFromPending(_ context.Context, id uuid.UUID, change repository.StatusChange) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.Status != models.PaymentPending {
		return false, nil
	}
	p.Status = change.To
	if change.Message != "" {
		p.GatewayMessage = &change.Message
	}
	if change.Receipt != "" {
		p.MpesaReceipt = &change.Receipt
	}
	return true, nil
}

func (r *fakePaymentRepo) only() *models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		cp := *p
		return &cp
	}
	return nil
}

// ---- gateway ----

type fakeGateway struct {
	mu         sync.Mutex
	pushCalls  int
	lastPush   models.PushRequest
	pushResult models.PushResult
	pushErr    error
	status     models.PushStatus
	statusErr  error
}

func (g *fakeGateway) InitiatePush(_ context.Context, req models.PushRequest) (models.PushResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pushCalls++
	g.lastPush = req
	return g.pushResult, g.pushErr
}

func (g *fakeGateway) QueryStatus(_ context.Context, token string) (models.PushStatus, error) {
	st := g.status
	st.CorrelationToken = token
	return st, g.statusErr
}

// ---- idempotency ----

type fakeIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func newFakeIdem() *fakeIdem { return &fakeIdem{keys: map[string]string{}} }

func (f *fakeIdem) GetIdempotency(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[key], nil
}

func (f *fakeIdem) SetIdempotency(_ context.Context, key, orderID string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.keys[key]; ok {
		return existing, nil
	}
	f.keys[key] = orderID
	return orderID, nil
}

// ---- event sink ----

type fakeSink struct {
	mu     sync.Mutex
	topics []string
	bodies [][]byte
	err    error
}

func (s *fakeSink) Publish(_ context.Context, topic, _ string, message []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append(s.topics, topic)
	s.bodies = append(s.bodies, message)
	return s.err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.topics)
}

// ---- services ----

type fakeOrderService struct {
	createCalls int
	createID    string
	createErr   error
	lastLines   []models.CartLine
	lastBuyer   string
	lastKey     string

	deliveryErr   error
	deliveryCalls []models.DeliveryStatus
	paymentStatus []models.OrderPaymentStatus
	block         chan struct{}
}

func (f *fakeOrderService) CreateOrder(_ context.Context, lines []models.CartLine, buyerID string, _ models.PaymentMethod, key string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.createCalls++
	f.lastLines = lines
	f.lastBuyer = buyerID
	f.lastKey = key
	return f.createID, f.createErr
}

func (f *fakeOrderService) GetOrder(context.Context, string) (*models.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeOrderService) ListBuyerOrders(context.Context, string) ([]models.Order, error) {
	return nil, nil
}

func (f *fakeOrderService) WatchOrder(context.Context, string) (<-chan models.Order, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeOrderService) UpdateDeliveryStatus(_ context.Context, _ string, status models.DeliveryStatus) error {
	f.deliveryCalls = append(f.deliveryCalls, status)
	return f.deliveryErr
}

func (f *fakeOrderService) UpdatePaymentStatus(_ context.Context, _ string, status models.OrderPaymentStatus) error {
	f.paymentStatus = append(f.paymentStatus, status)
	return nil
}

type fakePaymentService struct {
	mobileCalls int
	cashCalls   int
	mobileErr   error
	cashErr     error
	releaseN    int
	releaseErr  error
	releases    []string
	cancelErr   error
	payment     *models.Payment
	callbackErr error
	callbacks   []models.GatewayCallback
}

func (f *fakePaymentService) CreatePayment(context.Context, string, models.PaymentMethod, float64, string) (string, error) {
	return "", nil
}

func (f *fakePaymentService) ProcessMobileMoneyPayment(context.Context, string, float64, string) (string, error) {
	f.mobileCalls++
	return "pay-1", f.mobileErr
}

func (f *fakePaymentService) ProcessCashPayment(context.Context, string, float64) (string, error) {
	f.cashCalls++
	return "pay-1", f.cashErr
}

func (f *fakePaymentService) UpdatePaymentStatus(context.Context, string, models.PaymentStatus) error {
	return nil
}

func (f *fakePaymentService) CancelPayment(context.Context, string) error { return f.cancelErr }

func (f *fakePaymentService) GetPayment(context.Context, string) (*models.Payment, error) {
	return f.payment, nil
}

func (f *fakePaymentService) HandleGatewayCallback(_ context.Context, cb models.GatewayCallback) error {
	f.callbacks = append(f.callbacks, cb)
	return f.callbackErr
}

func (f *fakePaymentService) CheckPaymentStatus(context.Context, string) (*models.Payment, error) {
	return f.payment, nil
}

func (f *fakePaymentService) ReleaseEscrow(_ context.Context, orderID string) (int, error) {
	f.releases = append(f.releases, orderID)
	return f.releaseN, f.releaseErr
}
