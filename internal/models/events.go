package models

import "time"

// Event types
const (
	EventTypeOrderSettled    = "ORDER_SETTLED"
	EventTypePaymentDeclined = "PAYMENT_DECLINED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderSettledEvent published after an approved charge is written back
// to the order. Consumed by the audit worker and back-office tooling.
type OrderSettledEvent struct {
	BaseEvent
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	Category      OrderCategory `json:"category"`
	Email         string        `json:"email"`
	Amount        int64         `json:"amount"`
	TransactionID string        `json:"transaction_id"`
}

// PaymentDeclinedEvent published when the gateway refuses a charge.
type PaymentDeclinedEvent struct {
	BaseEvent
	OrderID       string        `json:"order_id"`
	Category      OrderCategory `json:"category"`
	GatewayStatus int           `json:"gateway_status"`
	Reason        string        `json:"reason"`
}
