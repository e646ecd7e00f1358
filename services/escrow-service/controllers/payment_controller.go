package controllers

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PaymentCanceller refunds a payment and cancels its order's payment status.
type PaymentCanceller interface {
	CancelPayment(ctx context.Context, paymentID string) (*models.Payment, error)
}

type PaymentController struct {
	payments       services.PaymentService
	orders         services.OrderService
	escrow         PaymentCanceller
	callbackSecret string
	logger         *zap.Logger
}

func NewPaymentController(payments services.PaymentService, orders services.OrderService, escrow PaymentCanceller, callbackSecret string, logger *zap.Logger) *PaymentController {
	return &PaymentController{
		payments:       payments,
		orders:         orders,
		escrow:         escrow,
		callbackSecret: callbackSecret,
		logger:         logger,
	}
}

// authorizePayment checks that the caller owns the order the payment belongs to.
func (pc *PaymentController) authorizePayment(ctx *gin.Context) (string, bool) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return "", false
	}
	paymentID := ctx.Param("id")
	if middleware.IsStaff(ctx) {
		return paymentID, true
	}

	payment, err := pc.payments.GetPayment(ctx.Request.Context(), paymentID)
	if err != nil {
		abortWithError(ctx, err)
		return "", false
	}
	order, err := pc.orders.GetOrder(ctx.Request.Context(), payment.OrderID)
	if err != nil {
		abortWithError(ctx, err)
		return "", false
	}
	if order.BuyerID != buyer {
		abortWithError(ctx, services.ErrPaymentNotFound)
		return "", false
	}
	return paymentID, true
}

// CancelPayment handles POST /payments/:id/cancel
func (pc *PaymentController) CancelPayment(ctx *gin.Context) {
	paymentID, ok := pc.authorizePayment(ctx)
	if !ok {
		return
	}
	payment, err := pc.escrow.CancelPayment(ctx.Request.Context(), paymentID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, payment)
}

// GetPaymentStatus handles GET /payments/:id/status
func (pc *PaymentController) GetPaymentStatus(ctx *gin.Context) {
	paymentID, ok := pc.authorizePayment(ctx)
	if !ok {
		return
	}
	payment, err := pc.payments.CheckPaymentStatus(ctx.Request.Context(), paymentID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, payment)
}

// MpesaCallback handles POST /payments/mpesa/callback. The gateway only
// needs an acknowledgement; callbacks for unknown or settled payments are
// acknowledged so they are not redelivered.
func (pc *PaymentController) MpesaCallback(ctx *gin.Context) {
	if pc.callbackSecret != "" {
		got := ctx.GetHeader("X-Callback-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(pc.callbackSecret)) != 1 {
			ctx.JSON(http.StatusUnauthorized, gin.H{"ResultCode": 1, "ResultDesc": "Unauthorized"})
			return
		}
	}

	body, err := ctx.GetRawData()
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "Unreadable body"})
		return
	}
	cb, err := services.ParseGatewayCallback(body)
	if err != nil {
		pc.logger.Warn("Rejected malformed M-Pesa callback", zap.Error(err))
		ctx.JSON(http.StatusBadRequest, gin.H{"ResultCode": 1, "ResultDesc": "Malformed callback"})
		return
	}

	err = pc.payments.HandleGatewayCallback(ctx.Request.Context(), cb)
	switch {
	case err == nil:
	case errors.Is(err, services.ErrPaymentNotFound), errors.Is(err, services.ErrIllegalTransition):
		pc.logger.Warn("Ignoring M-Pesa callback",
			zap.String("checkout_request_id", cb.CorrelationToken),
			zap.Error(err),
		)
	default:
		pc.logger.Error("Failed to apply M-Pesa callback",
			zap.String("checkout_request_id", cb.CorrelationToken),
			zap.Error(err),
		)
		ctx.JSON(http.StatusInternalServerError, gin.H{"ResultCode": 1, "ResultDesc": "Temporary failure"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ResultCode": 0, "ResultDesc": "Accepted"})
}
