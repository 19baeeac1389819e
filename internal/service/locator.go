package service

import (
	"context"
	"errors"

	"studio-payments/internal/models"
	"studio-payments/internal/util"

	"go.uber.org/zap"
)

// ErrOrderNotFound is returned when no table holds the order and no
// usable client hint was supplied. Fatal and non-retryable for the
// request.
var ErrOrderNotFound = errors.New("order not found in any table")

// OrderStore is the persistence surface the workflow needs: one read
// per category plus the two settlement writes.
type OrderStore interface {
	GetVoiceOrderByID(ctx context.Context, id string) (*models.VoiceOrder, error)
	GetMusicOrderByID(ctx context.Context, id string) (*models.MusicOrder, error)
	GetOrchestraOrderByID(ctx context.Context, id string) (*models.OrchestraOrder, error)
	SettleStudioOrder(ctx context.Context, table string, st *models.StudioSettlement) error
	SettleOrchestraOrder(ctx context.Context, st *models.OrchestraSettlement) error
}

// ClientHint is the caller-supplied minimal order description used
// when the primary store cannot produce the row (read-after-write lag,
// transient lookup failure). Callers are trusted not to hint at orders
// that were never created upstream.
type ClientHint struct {
	Email       string
	OrderNumber string
	OrderType   string
}

// LocatedOrder is the locator's result: the order, the table it came
// from (or is destined for, when synthetic), and the effective order
// type string used by notifications.
type LocatedOrder struct {
	Order     models.Order
	Table     string
	OrderType string
	Synthetic bool
}

// OrderLocator searches the three category tables in fixed priority
// order: voice, then music, then orchestra. The order must not change;
// ids are globally unique upstream, so the first hit is the order.
type OrderLocator struct {
	store  OrderStore
	logger *zap.Logger
}

// NewOrderLocator creates a new order locator
func NewOrderLocator(store OrderStore) *OrderLocator {
	return &OrderLocator{
		store:  store,
		logger: util.GetLogger(),
	}
}

// Locate finds the order for an opaque id. Lookup errors on one table
// fall through to the next; a miss everywhere falls back to a
// synthetic order when the hint carries both an email and an order
// number.
func (l *OrderLocator) Locate(ctx context.Context, orderID string, hint *ClientHint) (*LocatedOrder, error) {
	ctx, span := util.StartSpan(ctx, "OrderLocator.Locate")
	defer span.End()

	voice, err := l.store.GetVoiceOrderByID(ctx, orderID)
	if err != nil {
		l.logger.Warn("Voice order lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if voice != nil {
		orderType := voice.OrderType
		if orderType == "" {
			orderType = string(models.CategoryVoice)
		}
		return &LocatedOrder{Order: voice, Table: models.TableVoiceOrders, OrderType: orderType}, nil
	}

	music, err := l.store.GetMusicOrderByID(ctx, orderID)
	if err != nil {
		l.logger.Warn("Music order lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if music != nil {
		return &LocatedOrder{Order: music, Table: models.TableMusicOrders, OrderType: string(models.CategoryMusic)}, nil
	}

	orchestra, err := l.store.GetOrchestraOrderByID(ctx, orderID)
	if err != nil {
		l.logger.Warn("Orchestra order lookup failed", zap.String("order_id", orderID), zap.Error(err))
	}
	if orchestra != nil {
		return &LocatedOrder{Order: orchestra, Table: models.TableOrchestraOrders, OrderType: string(models.CategoryOrchestra)}, nil
	}

	if hint != nil && hint.Email != "" && hint.OrderNumber != "" {
		l.logger.Info("Order not in any table, using client hint",
			zap.String("order_id", orderID),
			zap.String("order_type", hint.OrderType))
		return l.syntheticOrder(orderID, hint), nil
	}

	return nil, ErrOrderNotFound
}

// syntheticOrder builds the minimal fallback record. Unrecognized hint
// types route to the voice table.
func (l *OrderLocator) syntheticOrder(orderID string, hint *ClientHint) *LocatedOrder {
	core := models.OrderCore{
		ID:          orderID,
		OrderNumber: hint.OrderNumber,
		Email:       hint.Email,
		Status:      models.OrderStatusPendingPayment,
	}

	switch hint.OrderType {
	case string(models.CategoryMusic):
		return &LocatedOrder{
			Order:     &models.MusicOrder{OrderCore: core},
			Table:     models.TableMusicOrders,
			OrderType: string(models.CategoryMusic),
			Synthetic: true,
		}
	case string(models.CategoryOrchestra):
		return &LocatedOrder{
			Order:     &models.OrchestraOrder{OrderCore: core},
			Table:     models.TableOrchestraOrders,
			OrderType: string(models.CategoryOrchestra),
			Synthetic: true,
		}
	default:
		return &LocatedOrder{
			Order:     &models.VoiceOrder{OrderCore: core},
			Table:     models.TableVoiceOrders,
			OrderType: string(models.CategoryVoice),
			Synthetic: true,
		}
	}
}
