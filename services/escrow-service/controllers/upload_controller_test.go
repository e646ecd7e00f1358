package controllers_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/controllers"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeUploader struct {
	contentType string
	size        int
	err         error
}

func (f *fakeUploader) Upload(_ context.Context, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.contentType = contentType
	f.size = len(data)
	return "https://cdn.example.com/listings/abc.png", nil
}

// pngHeader is enough for content sniffing to report image/png.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func multipartRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/uploads", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-User-ID", "seller-1")
	return req
}

func setupUploadRouter(uploader controllers.Uploader) *gin.Engine {
	r := newRouter()
	uc := controllers.NewUploadController(uploader, zap.NewNop())
	r.POST("/uploads", uc.UploadImage)
	return r
}

func TestUploadController_Image(t *testing.T) {
	up := &fakeUploader{}
	r := setupUploadRouter(up)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "file", pngHeader))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"url":"https://cdn.example.com/listings/abc.png"}`, w.Body.String())
	assert.Equal(t, "image/png", up.contentType)
	assert.Equal(t, len(pngHeader), up.size)
}

func TestUploadController_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		uploader controllers.Uploader
		field    string
		data     []byte
		code     int
	}{
		{"not an image", &fakeUploader{}, "file", []byte("hello, plain text"), http.StatusUnsupportedMediaType},
		{"missing file field", &fakeUploader{}, "other", pngHeader, http.StatusBadRequest},
		{"storage failure", &fakeUploader{err: errors.New("s3 down")}, "file", pngHeader, http.StatusBadGateway},
		{"not configured", nil, "file", pngHeader, http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			setupUploadRouter(tc.uploader).ServeHTTP(w, multipartRequest(t, tc.field, tc.data))
			assert.Equal(t, tc.code, w.Code)
		})
	}
}
