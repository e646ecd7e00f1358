package models

// PushRequest asks the mobile-money gateway to prompt the buyer's phone.
type PushRequest struct {
	PhoneNumber string
	Amount      float64
	OrderID     string
	PaymentID   string
}

// PushResult is an accepted push; the charge itself is still outstanding.
type PushResult struct {
	CorrelationToken  string
	MerchantRequestID string
	Message           string
}

// PushStatus is the gateway's current view of a push. Status is pending
// while the buyer has not answered the prompt.
type PushStatus struct {
	CorrelationToken string
	Status           PaymentStatus
	ResultCode       int
	ResultDesc       string
	Receipt          string
}

// GatewayCallback is the settlement notice for a push, delivered either to
// the webhook or through the callback queue.
type GatewayCallback struct {
	CorrelationToken string `json:"checkoutRequestID"`
	PaymentID        string `json:"paymentId,omitempty"`
	ResultCode       int    `json:"resultCode"`
	ResultDesc       string `json:"resultDesc"`
	Receipt          string `json:"mpesaReceiptNumber,omitempty"`
}

// Succeeded follows the M-Pesa convention of result code 0 for success.
func (c GatewayCallback) Succeeded() bool {
	return c.ResultCode == 0
}
