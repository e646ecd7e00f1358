package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
	"go.uber.org/zap"
)

// darajaCallback is the envelope Safaricom posts for an STK push result.
type darajaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string      `json:"Name"`
					Value interface{} `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

// ParseGatewayCallback accepts either the flat callback the M-Pesa backend
// forwards or the raw Daraja stkCallback envelope.
func ParseGatewayCallback(body []byte) (models.GatewayCallback, error) {
	var raw darajaCallback
	if err := json.Unmarshal(body, &raw); err == nil && raw.Body.StkCallback.CheckoutRequestID != "" {
		stk := raw.Body.StkCallback
		cb := models.GatewayCallback{
			CorrelationToken: stk.CheckoutRequestID,
			ResultCode:       stk.ResultCode,
			ResultDesc:       stk.ResultDesc,
		}
		for _, item := range stk.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				cb.Receipt = fmt.Sprint(item.Value)
			}
		}
		return cb, nil
	}

	var cb models.GatewayCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return models.GatewayCallback{}, fmt.Errorf("invalid callback payload: %w", err)
	}
	if cb.CorrelationToken == "" && cb.PaymentID == "" {
		return models.GatewayCallback{}, errors.New("callback has neither checkoutRequestID nor paymentId")
	}
	return cb, nil
}

// PaymentCallbackConsumer applies gateway callbacks delivered through SQS,
// either raw or wrapped in an SNS envelope.
type PaymentCallbackConsumer struct {
	sqsConsumer *awspkg.SQSConsumer
	payments    PaymentService
	metrics     MetricsRecorder
	logger      *zap.Logger
}

func NewPaymentCallbackConsumer(sqsConsumer *awspkg.SQSConsumer, payments PaymentService, metrics MetricsRecorder, logger *zap.Logger) *PaymentCallbackConsumer {
	return &PaymentCallbackConsumer{
		sqsConsumer: sqsConsumer,
		payments:    payments,
		metrics:     metricsOrNoop(metrics),
		logger:      logger,
	}
}

// Start polls until ctx is cancelled.
func (c *PaymentCallbackConsumer) Start(ctx context.Context) {
	c.logger.Info("Starting payment callback consumer")

	err := c.sqsConsumer.StartPolling(ctx, c.HandleMessage)
	if err != nil && !errors.Is(err, context.Canceled) {
		c.logger.Error("Payment callback polling stopped", zap.Error(err))
	}
}

// HandleMessage returns an error only for failures worth redelivering.
// Malformed payloads, unknown payments and settled payments are dropped.
func (c *PaymentCallbackConsumer) HandleMessage(ctx context.Context, body string) error {
	var envelope struct {
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &envelope); err == nil && envelope.Message != "" {
		body = envelope.Message
	}

	cb, err := ParseGatewayCallback([]byte(body))
	if err != nil {
		c.logger.Warn("Dropping malformed payment callback", zap.Error(err))
		return nil
	}
	_ = c.metrics.RecordCount(ctx, awspkg.MetricSQSMessages, map[string]string{"Queue": "payment-callbacks"})

	err = c.payments.HandleGatewayCallback(ctx, cb)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrPaymentNotFound), errors.Is(err, ErrIllegalTransition):
		c.logger.Warn("Dropping payment callback",
			zap.String("checkout_request_id", cb.CorrelationToken),
			zap.Error(err),
		)
		return nil
	default:
		return err
	}
}
