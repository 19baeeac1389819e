package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"studio-payments/internal/broker"
	"studio-payments/internal/models"
	"studio-payments/internal/store"

	"go.uber.org/zap"
)

// AuditWorker consumes payment events and records them in the
// payment_events audit table for back-office reconciliation. Events
// are deduplicated through processed_events so a redelivered message
// never produces a second audit row.
type AuditWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	store        *store.Store
	logger       *zap.Logger
}

// NewAuditWorker creates a new audit worker
func NewAuditWorker(consumer *broker.Consumer, st *store.Store, logger *zap.Logger) *AuditWorker {
	w := &AuditWorker{
		consumer: consumer,
		store:    st,
		logger:   logger,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderSettled(w.handleOrderSettled)
	eventHandler.OnPaymentDeclined(w.handlePaymentDeclined)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *AuditWorker) Start(ctx context.Context) error {
	log.Println("Starting audit worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *AuditWorker) Stop() error {
	log.Println("Stopping audit worker...")
	return w.consumer.Close()
}

func (w *AuditWorker) handleOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	payload, _ := json.Marshal(event)
	if err := w.store.InsertPaymentEvent(ctx, &models.PaymentEvent{
		EventID:   event.EventID,
		EventType: event.EventType,
		OrderID:   event.OrderID,
		Category:  string(event.Category),
		Amount:    event.Amount,
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	w.logger.Info("Settlement recorded",
		zap.String("order_id", event.OrderID),
		zap.String("category", string(event.Category)),
		zap.String("tx_id", event.TransactionID))
	return nil
}

func (w *AuditWorker) handlePaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error {
	processed, err := w.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		w.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	payload, _ := json.Marshal(event)
	if err := w.store.InsertPaymentEvent(ctx, &models.PaymentEvent{
		EventID:   event.EventID,
		EventType: event.EventType,
		OrderID:   event.OrderID,
		Category:  string(event.Category),
		Payload:   payload,
	}); err != nil {
		return fmt.Errorf("failed to insert audit row: %w", err)
	}

	if err := w.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		w.logger.Error("Failed to mark event processed", zap.Error(err))
	}

	w.logger.Info("Decline recorded",
		zap.String("order_id", event.OrderID),
		zap.Int("gateway_status", event.GatewayStatus))
	return nil
}
