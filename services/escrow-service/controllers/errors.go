package controllers

import (
	"errors"

	apperrors "github.com/cjsinari/marikiti-backend/services/common/errors"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/middleware"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/services"
	"github.com/gin-gonic/gin"
)

// abortWithError hands a service failure to the error middleware.
func abortWithError(ctx *gin.Context, err error) {
	var se *services.ServiceError
	if !errors.As(err, &se) {
		_ = ctx.Error(apperrors.Internal(err))
		ctx.Abort()
		return
	}
	_ = ctx.Error(apperrors.New(services.StatusCode(err), se.Message, err))
	ctx.Abort()
}

func bindError(ctx *gin.Context, err error) {
	_ = ctx.Error(apperrors.BadRequest("Invalid request", err))
	ctx.Abort()
}

// buyerID returns the authenticated buyer, aborting with 401 when absent.
func buyerID(ctx *gin.Context) (string, bool) {
	id, err := middleware.GetBuyerID(ctx)
	if err != nil {
		_ = ctx.Error(apperrors.Unauthorized("unauthorized"))
		ctx.Abort()
		return "", false
	}
	return id, true
}
