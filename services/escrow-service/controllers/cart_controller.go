package controllers

import (
	"context"
	"net/http"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
)

// CartService is the session-cart API the HTTP layer needs.
type CartService interface {
	Load(ctx context.Context, buyerID string) (*services.CartStore, error)
	Save(ctx context.Context, buyerID string, store *services.CartStore) error
	AddItem(ctx context.Context, buyerID, productID string, quantity int) (*services.CartStore, error)
	UpdateQuantity(ctx context.Context, buyerID, productID string, quantity int) (*services.CartStore, error)
	RemoveItem(ctx context.Context, buyerID, productID string) (*services.CartStore, error)
	Clear(ctx context.Context, buyerID string) error
}

type CartController struct {
	carts CartService
}

func NewCartController(carts CartService) *CartController {
	return &CartController{carts: carts}
}

func cartResponse(store *services.CartStore) models.CartResponse {
	return models.CartResponse{
		Items:      store.Lines(),
		TotalPrice: store.TotalPrice(),
		ItemCount:  store.ItemCount(),
	}
}

// GetCart handles GET /cart
func (cc *CartController) GetCart(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	store, err := cc.carts.Load(ctx.Request.Context(), buyer)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(store))
}

// AddItem handles POST /cart/items
func (cc *CartController) AddItem(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	var req models.AddCartItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	store, err := cc.carts.AddItem(ctx.Request.Context(), buyer, req.ProductID, req.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(store))
}

// UpdateItem handles PATCH /cart/items/:product_id
func (cc *CartController) UpdateItem(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	var req models.UpdateCartItemRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		bindError(ctx, err)
		return
	}

	store, err := cc.carts.UpdateQuantity(ctx.Request.Context(), buyer, ctx.Param("product_id"), *req.Quantity)
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(store))
}

// RemoveItem handles DELETE /cart/items/:product_id
func (cc *CartController) RemoveItem(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	store, err := cc.carts.RemoveItem(ctx.Request.Context(), buyer, ctx.Param("product_id"))
	if err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, cartResponse(store))
}

// ClearCart handles DELETE /cart
func (cc *CartController) ClearCart(ctx *gin.Context) {
	buyer, ok := buyerID(ctx)
	if !ok {
		return
	}
	if err := cc.carts.Clear(ctx.Request.Context(), buyer); err != nil {
		abortWithError(ctx, err)
		return
	}
	ctx.Status(http.StatusNoContent)
}
