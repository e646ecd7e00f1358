package controllers

import (
	"context"
	"net/http"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// DeliveryConfirmer records delivery and releases escrow on delivered.
type DeliveryConfirmer interface {
	ConfirmDelivery(ctx context.Context, orderID string, status models.DeliveryStatus) error
}

type OrderController struct {
	orders services.OrderService
	escrow DeliveryConfirmer
	logger *zap.Logger
}

func NewOrderController(orders services.OrderService, escrow DeliveryConfirmer, logger *zap.Logger) *OrderController {
	return &OrderController{orders: orders, escrow: escrow, logger: logger}
}

// authorizedOrder loads the order and checks that the caller owns it or is staff.
func (oc *OrderController) authorizedOrder(ctx *gin.Context) (*models.Order, bool) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return nil, false
	}
	order, err := oc.orders.GetOrder(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		abortWithError(ctx, err)
		return nil, false
	}
	if order.BuyerID != buyer && !middleware.IsStaff(ctx) {
		// Hide other buyers' orders.
		abortWithError(ctx, services.ErrOrderNotFound)
		return nil, false
	}
	return order, true
}

// ListOrders handles GET /orders
func (oc *OrderController) ListOrders(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	orders, err := oc.orders.ListBuyerOrders(ctx.Request.Context(), buyer)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": orders})
}

// GetOrder handles GET /orders/:id
func (oc *OrderController) GetOrder(ctx *gin.Context) {
	order, ok := oc.authorizedOrder(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, order)
}

// StreamOrder handles GET /orders/:id/stream as server-sent events. Each
// event carries the full order.
func (oc *OrderController) StreamOrder(ctx *gin.Context) {
	order, ok := oc.authorizedOrder(ctx)
	if !ok {
		return
	}

	reqCtx := ctx.Request.Context()
	updates, err := oc.orders.WatchOrder(reqCtx, order.ID)
	if err != nil {
		abortWithError(ctx, err)
		return
	}

	ctx.Header("Cache-Control", "no-cache")
	ctx.Header("X-Accel-Buffering", "no")
	ctx.Status(http.StatusOK)
	for {
		select {
		case <-reqCtx.Done():
			return
		case o, ok := <-updates:
			if !ok {
				oc.logger.Debug("Order stream closed", zap.String("order_id", order.ID))
				return
			}
			ctx.SSEvent("order", o)
			ctx.Writer.Flush()
		}
	}
}

// UpdateDeliveryStatus handles PATCH /orders/:id/delivery-status
func (oc *OrderController) UpdateDeliveryStatus(ctx *gin.Context) {
	order, ok := oc.authorizedOrder(ctx)
	if !ok {
		return
	}
	var req models.UpdateDeliveryStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	if err := oc.escrow.ConfirmDelivery(ctx.Request.Context(), order.ID, req.Status); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order_id": order.ID, "delivery_status": req.Status})
}

// UpdatePaymentStatus handles PATCH /orders/:id/payment-status
func (oc *OrderController) UpdatePaymentStatus(ctx *gin.Context) {
	var req models.UpdateOrderPaymentStatusRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	orderID := ctx.Param("id")
	if err := oc.orders.UpdatePaymentStatus(ctx.Request.Context(), orderID, req.Status); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order_id": orderID, "payment_status": req.Status})
}
