package controllers

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sessionCart is the orchestrator's view of a buyer's cart across requests.
// Its version is a fingerprint of the lines, so a changed cart gets a fresh
// idempotency token even though every request loads a new CartStore.
type sessionCart struct {
	mu      sync.RWMutex
	lines   []models.CartLine
	version uint64
}

func (s *sessionCart) set(lines []models.CartLine) {
	h := fnv.New64a()
	var buf [8]byte
	for _, l := range lines {
		h.Write([]byte(l.ProductID))
		binary.LittleEndian.PutUint64(buf[:], uint64(l.Quantity))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(l.Price))
		h.Write(buf[:])
	}

	s.mu.Lock()
	s.lines = lines
	s.version = h.Sum64()
	s.mu.Unlock()
}

func (s *sessionCart) Lines() []models.CartLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *sessionCart) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

type checkoutSession struct {
	cart         *sessionCart
	orchestrator *services.PaymentOrchestrator
	lastUsed     time.Time
}

// sessionIdleTTL is how long a failed checkout is kept for a retry.
const sessionIdleTTL = 30 * time.Minute

// CheckoutController keeps one orchestrator per buyer until a checkout
// succeeds, so retries after a failed payment reuse the same order.
type CheckoutController struct {
	carts    CartService
	orders   services.OrderService
	payments services.PaymentService
	metrics  services.MetricsRecorder
	logger   *zap.Logger

	mu       sync.Mutex
	sessions map[string]*checkoutSession
}

func NewCheckoutController(carts CartService, orders services.OrderService, payments services.PaymentService, metrics services.MetricsRecorder, logger *zap.Logger) *CheckoutController {
	return &CheckoutController{
		carts:    carts,
		orders:   orders,
		payments: payments,
		metrics:  metrics,
		logger:   logger,
		sessions: make(map[string]*checkoutSession),
	}
}

func (cc *CheckoutController) session(buyerID string) *checkoutSession {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	now := time.Now()
	cc.evictIdleLocked(now, sessionIdleTTL)

	s, ok := cc.sessions[buyerID]
	if !ok {
		cart := &sessionCart{}
		s = &checkoutSession{
			cart:         cart,
			orchestrator: services.NewPaymentOrchestrator(cart, cc.orders, cc.payments, buyerID, cc.metrics, cc.logger),
		}
		cc.sessions[buyerID] = s
	}
	s.lastUsed = now
	return s
}

// EvictIdleSessions drops sessions unused for longer than maxIdle and
// reports how many went. Sessions mid-checkout are kept.
func (cc *CheckoutController) EvictIdleSessions(maxIdle time.Duration) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.evictIdleLocked(time.Now(), maxIdle)
}

func (cc *CheckoutController) evictIdleLocked(now time.Time, maxIdle time.Duration) int {
	evicted := 0
	for id, s := range cc.sessions {
		if now.Sub(s.lastUsed) > maxIdle && !s.orchestrator.IsProcessing() {
			delete(cc.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (cc *CheckoutController) endSession(buyerID string, s *checkoutSession) {
	cc.mu.Lock()
	if cc.sessions[buyerID] == s {
		delete(cc.sessions, buyerID)
	}
	cc.mu.Unlock()
}

// PaymentMethods handles GET /checkout/payment-methods
func (cc *CheckoutController) PaymentMethods(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"payment_methods": services.DefaultPaymentMethods(),
		"selected":        models.PaymentMethodMpesa,
	})
}

// Checkout handles POST /checkout
func (cc *CheckoutController) Checkout(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	var req models.CheckoutRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	store, err := cc.carts.Load(ctx.Request.Context(), buyer)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	s := cc.session(buyer)
	o := s.orchestrator
	if o.IsProcessing() {
		abortWithError(ctx, services.ErrCheckoutInProgress)
		return
	}
	s.cart.set(store.Lines())
	if req.PaymentMethod != "" {
		o.SelectPaymentMethod(req.PaymentMethod)
	}
	o.SetPhoneNumber(req.PhoneNumber)
	o.SetIdempotencyKey(ctx.GetHeader("Idempotency-Key"))

	var orderID string
	err = o.ProcessPayment(ctx.Request.Context(), "",
		func(id string) { orderID = id },
		func() {},
	)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	cc.endSession(buyer, s)
	store.Clear()
	if err := cc.carts.Save(ctx.Request.Context(), buyer, store); err != nil {
		cc.logger.Warn("Checkout succeeded but cart not cleared",
			zap.String("buyer_id", buyer),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}

	ctx.JSON(http.StatusCreated, gin.H{
		"order_id":       orderID,
		"payment_method": o.State().SelectedMethod,
	})
}
