package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"go.uber.org/zap"
)

const (
	stkPushPath    = "/api/mpesa/stk-push"
	pushStatusPath = "/api/mpesa/status/"
)

// MpesaProvider implements PushGateway against the marketplace's own
// M-Pesa backend, which fronts the Daraja STK push API.
type MpesaProvider struct {
	baseURL       string
	pushTimeout   time.Duration
	statusTimeout time.Duration
	httpClient    *http.Client
	logger        *zap.Logger
}

func NewMpesaProvider(baseURL string, pushTimeout, statusTimeout time.Duration, logger *zap.Logger) *MpesaProvider {
	return &MpesaProvider{
		baseURL:       strings.TrimRight(baseURL, "/"),
		pushTimeout:   pushTimeout,
		statusTimeout: statusTimeout,
		httpClient:    &http.Client{},
		logger:        logger,
	}
}

type stkPushRequest struct {
	PhoneNumber string  `json:"phoneNumber"`
	Amount      float64 `json:"amount"`
	OrderID     string  `json:"orderId"`
	PaymentID   string  `json:"paymentId"`
}

type stkPushResponse struct {
	Success           bool   `json:"success"`
	CheckoutRequestID string `json:"checkoutRequestID"`
	MerchantRequestID string `json:"merchantRequestID"`
	ResponseCode      string `json:"responseCode"`
	Message           string `json:"message"`
	Error             string `json:"error"`
}

type stkStatusResponse struct {
	Status     string `json:"status"`
	ResultCode *int   `json:"resultCode"`
	ResultDesc string `json:"resultDesc"`
	Receipt    string `json:"mpesaReceiptNumber"`
}

// InitiatePush makes exactly one STK push attempt.
func (m *MpesaProvider) InitiatePush(ctx context.Context, req models.PushRequest) (models.PushResult, error) {
	ctx, cancel := context.WithTimeout(ctx, m.pushTimeout)
	defer cancel()

	body := stkPushRequest{
		PhoneNumber: req.PhoneNumber,
		Amount:      req.Amount,
		OrderID:     req.OrderID,
		PaymentID:   req.PaymentID,
	}

	status, raw, err := m.doRequest(ctx, http.MethodPost, stkPushPath, body)
	if err != nil {
		return models.PushResult{}, &GatewayError{Message: "Network error: " + err.Error(), Err: err}
	}

	var resp stkPushResponse
	decodeErr := json.Unmarshal(raw, &resp)

	if status < 200 || status >= 300 {
		if decodeErr == nil && resp.Error != "" {
			return models.PushResult{}, &GatewayError{Message: resp.Error}
		}
		return models.PushResult{}, &GatewayError{Message: fmt.Sprintf("HTTP %d: %s", status, statusText(status, raw))}
	}
	if decodeErr != nil {
		return models.PushResult{}, &GatewayError{Message: "Network error: " + decodeErr.Error(), Err: decodeErr}
	}
	if !resp.Success {
		msg := resp.Error
		if msg == "" {
			msg = "STK Push failed"
		}
		return models.PushResult{}, &GatewayError{Message: msg}
	}

	m.logger.Info("STK push accepted",
		zap.String("order_id", req.OrderID),
		zap.String("payment_id", req.PaymentID),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
	)

	return models.PushResult{
		CorrelationToken:  resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Message:           resp.Message,
	}, nil
}

// QueryStatus polls the push status. The backend answers either with a JSON
// object or with a bare status word.
func (m *MpesaProvider) QueryStatus(ctx context.Context, correlationToken string) (models.PushStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, m.statusTimeout)
	defer cancel()

	status, raw, err := m.doRequest(ctx, http.MethodGet, pushStatusPath+url.PathEscape(correlationToken), nil)
	if err != nil {
		return models.PushStatus{}, &GatewayError{Message: "Network error: " + err.Error(), Err: err}
	}
	if status < 200 || status >= 300 {
		return models.PushStatus{}, &GatewayError{Message: "Failed to check payment status"}
	}

	out := models.PushStatus{CorrelationToken: correlationToken, Status: models.PaymentPending}

	var resp stkStatusResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		var word string
		if json.Unmarshal(raw, &word) != nil {
			word = string(raw)
		}
		out.Status = statusFromWord(word)
		return out, nil
	}

	out.ResultDesc = resp.ResultDesc
	out.Receipt = resp.Receipt
	switch {
	case resp.ResultCode != nil:
		out.ResultCode = *resp.ResultCode
		if *resp.ResultCode == 0 {
			out.Status = models.PaymentComplete
		} else {
			out.Status = models.PaymentFailed
		}
	default:
		out.Status = statusFromWord(resp.Status)
	}
	return out, nil
}

func statusFromWord(word string) models.PaymentStatus {
	switch strings.ToLower(strings.TrimSpace(word)) {
	case "complete", "completed", "success", "successful", "paid":
		return models.PaymentComplete
	case "failed", "cancelled", "canceled", "timeout":
		return models.PaymentFailed
	}
	return models.PaymentPending
}

func statusText(status int, body []byte) string {
	if s := strings.TrimSpace(string(body)); s != "" {
		return s
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return strconv.Itoa(status)
}

// ---- HTTP helper ----

func (m *MpesaProvider) doRequest(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, respBytes, nil
}
