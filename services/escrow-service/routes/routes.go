package routes

import (
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/controllers"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/gin-gonic/gin"
)

const requestTimeout = 30 * time.Second

type Controllers struct {
	Cart     *controllers.CartController
	Checkout *controllers.CheckoutController
	Order    *controllers.OrderController
	Payment  *controllers.PaymentController
	Upload   *controllers.UploadController
}

// RegisterRoutes mounts the escrow API. identity authenticates buyers and
// checkoutLimit throttles POST /checkout; either may be nil. checkoutTimeout
// bounds POST /checkout, which waits on the payment gateway; zero means the
// default request timeout.
func RegisterRoutes(r *gin.Engine, c Controllers, identity, checkoutLimit gin.HandlerFunc, checkoutTimeout time.Duration) {
	timeout := middleware.RequestTimeout(requestTimeout)
	if checkoutTimeout <= 0 {
		checkoutTimeout = requestTimeout
	}
	checkoutBound := middleware.RequestTimeout(checkoutTimeout)

	authed := r.Group("/")
	if identity != nil {
		authed.Use(identity)
	}

	cart := authed.Group("/cart", timeout)
	cart.GET("", c.Cart.GetCart)
	cart.DELETE("", c.Cart.ClearCart)
	cart.POST("/items", c.Cart.AddItem)
	cart.PATCH("/items/:product_id", c.Cart.UpdateItem)
	cart.DELETE("/items/:product_id", c.Cart.RemoveItem)

	checkout := authed.Group("/checkout")
	checkout.GET("/payment-methods", timeout, c.Checkout.PaymentMethods)
	if checkoutLimit != nil {
		checkout.POST("", checkoutBound, checkoutLimit, c.Checkout.Checkout)
	} else {
		checkout.POST("", checkoutBound, c.Checkout.Checkout)
	}

	orders := authed.Group("/orders")
	// Long-lived; no request timeout.
	orders.GET("/:id/stream", c.Order.StreamOrder)
	orders.GET("", timeout, c.Order.ListOrders)
	orders.GET("/:id", timeout, c.Order.GetOrder)
	orders.PATCH("/:id/delivery-status", timeout, c.Order.UpdateDeliveryStatus)
	orders.PATCH("/:id/payment-status", timeout, middleware.RequireRole(middleware.AdminRole), c.Order.UpdatePaymentStatus)

	payments := authed.Group("/payments", timeout)
	payments.POST("/:id/cancel", c.Payment.CancelPayment)
	payments.GET("/:id/status", c.Payment.GetPaymentStatus)

	authed.POST("/uploads", timeout, middleware.RequireRole(middleware.SellerRole, middleware.AdminRole), c.Upload.UploadImage)

	// Gateway callback carries its own shared secret.
	r.POST("/payments/mpesa/callback", timeout, c.Payment.MpesaCallback)
}
