package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"studio-payments/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing payment domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishOrderSettled publishes an OrderSettled event
func (ep *EventPublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishPaymentDeclined publishes a PaymentDeclined event
func (ep *EventPublisher) PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error {
	key := fmt.Sprintf("order-%s", event.OrderID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming payment events
type EventHandler struct {
	onOrderSettled    func(context.Context, *models.OrderSettledEvent) error
	onPaymentDeclined func(context.Context, *models.PaymentDeclinedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnOrderSettled registers a handler for OrderSettled events
func (eh *EventHandler) OnOrderSettled(handler func(context.Context, *models.OrderSettledEvent) error) {
	eh.onOrderSettled = handler
}

// OnPaymentDeclined registers a handler for PaymentDeclined events
func (eh *EventHandler) OnPaymentDeclined(handler func(context.Context, *models.PaymentDeclinedEvent) error) {
	eh.onPaymentDeclined = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeOrderSettled:
		if eh.onOrderSettled != nil {
			var event models.OrderSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal OrderSettled event: %w", err)
			}
			return eh.onOrderSettled(ctx, &event)
		}

	case models.EventTypePaymentDeclined:
		if eh.onPaymentDeclined != nil {
			var event models.PaymentDeclinedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentDeclined event: %w", err)
			}
			return eh.onPaymentDeclined(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
