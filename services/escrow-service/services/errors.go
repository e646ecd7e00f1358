package services

import (
	"errors"
	"net/http"
)

type ErrorKind string

const (
	KindValidation  ErrorKind = "validation"
	KindPersistence ErrorKind = "persistence"
	KindGateway     ErrorKind = "gateway"
	KindNotFound    ErrorKind = "not_found"
	KindConflict    ErrorKind = "conflict"
)

// ServiceError is a domain failure with the HTTP status it maps to. Message
// is safe to show to the buyer.
type ServiceError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string { return e.Message }

func (e *ServiceError) Unwrap() error { return e.Err }

var (
	ErrEmptyCart            = &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: "Cart is empty"}
	ErrNoPaymentMethod      = &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: "Please select a payment method"}
	ErrMissingPhoneNumber   = &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: "Please enter your M-Pesa phone number"}
	ErrInvalidPaymentMethod = &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: "Invalid payment method"}
	ErrInvalidStatus        = &ServiceError{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: "Invalid status"}
	ErrCheckoutInProgress   = &ServiceError{Kind: KindConflict, StatusCode: http.StatusConflict, Message: "Checkout already in progress"}
	ErrIllegalTransition    = &ServiceError{Kind: KindConflict, StatusCode: http.StatusConflict, Message: "Payment is no longer pending"}
	ErrOrderNotFound        = &ServiceError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: "Order not found"}
	ErrPaymentNotFound      = &ServiceError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: "Payment not found"}
	ErrProductNotFound      = &ServiceError{Kind: KindNotFound, StatusCode: http.StatusNotFound, Message: "Product not found"}
	ErrProductOutOfStock    = &ServiceError{Kind: KindConflict, StatusCode: http.StatusConflict, Message: "Product is out of stock"}
)

func persistenceError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindPersistence, StatusCode: http.StatusInternalServerError, Message: message, Err: err}
}

func gatewayError(message string, err error) *ServiceError {
	return &ServiceError{Kind: KindGateway, StatusCode: http.StatusBadGateway, Message: message, Err: err}
}

// StatusCode returns the HTTP status carried by err, or 500.
func StatusCode(err error) int {
	var se *ServiceError
	if errors.As(err, &se) && se.StatusCode != 0 {
		return se.StatusCode
	}
	return http.StatusInternalServerError
}

// MessageOr returns err's buyer-facing message, or fallback when err has none.
func MessageOr(err error, fallback string) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err != nil && err.Error() != "" {
		return err.Error()
	}
	return fallback
}
