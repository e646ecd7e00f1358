package controllers

import (
	"context"
	"io"
	"net/http"

	apperrors "github.com/cjsinari/marikiti-backend/services/common/errors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxUploadSize = 5 << 20

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Uploader stores a blob and returns where it can be fetched from.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type UploadController struct {
	uploader Uploader
	logger   *zap.Logger
}

func NewUploadController(uploader Uploader, logger *zap.Logger) *UploadController {
	return &UploadController{uploader: uploader, logger: logger}
}

// UploadImage handles POST /uploads
func (uc *UploadController) UploadImage(ctx *gin.Context) {
	if uc.uploader == nil {
		_ = ctx.Error(apperrors.New(http.StatusServiceUnavailable, "Uploads are not configured", nil))
		return
	}

	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, maxUploadSize+1024)
	fh, err := ctx.FormFile("file")
	if err != nil {
		_ = ctx.Error(apperrors.BadRequest("file is required", err))
		return
	}
	if fh.Size > maxUploadSize {
		_ = ctx.Error(apperrors.New(http.StatusRequestEntityTooLarge, "File too large", nil))
		return
	}

	f, err := fh.Open()
	if err != nil {
		_ = ctx.Error(apperrors.BadRequest("file is unreadable", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadSize+1))
	if err != nil {
		_ = ctx.Error(apperrors.BadRequest("file is unreadable", err))
		return
	}
	if len(data) == 0 || len(data) > maxUploadSize {
		_ = ctx.Error(apperrors.BadRequest("file must be between 1 byte and 5 MB", nil))
		return
	}

	contentType := http.DetectContentType(data)
	if !allowedImageTypes[contentType] {
		_ = ctx.Error(apperrors.New(http.StatusUnsupportedMediaType, "Only JPEG, PNG, WebP and GIF images are accepted", nil))
		return
	}

	url, err := uc.uploader.Upload(ctx.Request.Context(), data, contentType)
	if err != nil {
		uc.logger.Error("Upload failed", zap.Error(err))
		_ = ctx.Error(apperrors.New(http.StatusBadGateway, "Upload failed", err))
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"url": url})
}
