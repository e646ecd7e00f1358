package providers

import (
	"context"

	"github.com/cjsinari/marikiti-backend/services/escrow-service/models"
)

// PushGateway defines the interface a mobile-money push integration must implement.
type PushGateway interface {
	// InitiatePush prompts the buyer's phone to authorise a charge. A nil
	// error means the prompt was accepted, not that the charge succeeded.
	InitiatePush(ctx context.Context, req models.PushRequest) (models.PushResult, error)

	// QueryStatus returns the gateway's current view of an earlier push.
	QueryStatus(ctx context.Context, correlationToken string) (models.PushStatus, error)
}

// GatewayError carries the human-readable reason a gateway call failed.
type GatewayError struct {
	Message string
	Err     error
}

func (e *GatewayError) Error() string { return e.Message }

func (e *GatewayError) Unwrap() error { return e.Err }
