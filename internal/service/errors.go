package service

import "fmt"

// ErrorCode classifies the five fatal outcomes of a payment request.
// Everything after an approved charge degrades instead of erroring.
type ErrorCode string

const (
	ErrInvalidInput ErrorCode = "invalid_input"
	ErrCompliance   ErrorCode = "compliance_rejected"
	ErrNotFound     ErrorCode = "order_not_found"
	ErrDeclined     ErrorCode = "gateway_declined"
	ErrConflict     ErrorCode = "settlement_in_progress"
	ErrInternal     ErrorCode = "internal_error"
)

// PaymentError is the typed failure returned by the orchestrator. The
// HTTP layer maps Code to a status and the remaining fields to the
// response body.
type PaymentError struct {
	Code          ErrorCode
	Message       string
	MissingFields []string
	GatewayStatus int
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
