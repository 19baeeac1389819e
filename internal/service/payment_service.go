package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"studio-payments/config"
	"studio-payments/internal/gateway"
	"studio-payments/internal/mailer"
	"studio-payments/internal/models"
	"studio-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const settlementLockTTL = 2 * time.Minute

// GatewayClient makes exactly one charge attempt per call.
type GatewayClient interface {
	Charge(ctx context.Context, req *gateway.ChargeRequest) (*gateway.ChargeResult, error)
}

// MailSender delivers one email; the dispatcher implementation
// throttles to the provider's rate cap.
type MailSender interface {
	Send(ctx context.Context, msg *mailer.Message) error
}

// EventPublisher streams settlement outcomes to the back office.
type EventPublisher interface {
	PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error
	PublishPaymentDeclined(ctx context.Context, event *models.PaymentDeclinedEvent) error
}

// PayRequest is the body of POST /api/payment/pay. OrderEmail,
// OrderNumber and OrderType form the client hint for the locator
// fallback.
type PayRequest struct {
	Prime           string                  `json:"prime"`
	OrderID         string                  `json:"orderId"`
	Amount          float64                 `json:"amount"`
	Cardholder      *CardholderInfo         `json:"cardholder,omitempty"`
	OrderEmail      string                  `json:"orderEmail,omitempty"`
	OrderNumber     string                  `json:"orderNumber,omitempty"`
	OrderType       string                  `json:"orderType,omitempty"`
	BillingDetails  *models.BillingDetails  `json:"billingDetails,omitempty"`
	LicenseeDetails *models.LicenseeDetails `json:"licenseeDetails,omitempty"`
}

// CardholderInfo is the card name submitted alongside the prime token.
type CardholderInfo struct {
	Name string `json:"name"`
}

// PayResponse is the success body.
type PayResponse struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transactionId"`
	OrderID       string `json:"orderId"`
	OrderNumber   string `json:"orderNumber"`
	Message       string `json:"message"`
}

// PaymentService orchestrates the settlement pipeline: compliance
// gate, locator, charge, settlement write, identity provisioning and
// the notification fan-out. Failures before the charge are fatal;
// failures after it degrade.
type PaymentService struct {
	store    OrderStore
	locator  *OrderLocator
	gateway  GatewayClient
	identity *IdentityProvisioner
	mail     MailSender
	events   EventPublisher
	tokens   TokenVault
	mailCfg  config.MailConfig
	guard    bool
	logger   *zap.Logger
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	store OrderStore,
	gatewayClient GatewayClient,
	identity *IdentityProvisioner,
	mail MailSender,
	events EventPublisher,
	tokens TokenVault,
	cfg *config.Config,
) *PaymentService {
	return &PaymentService{
		store:    store,
		locator:  NewOrderLocator(store),
		gateway:  gatewayClient,
		identity: identity,
		mail:     mail,
		events:   events,
		tokens:   tokens,
		mailCfg:  cfg.Mail,
		guard:    cfg.Business.IdempotencyGuard,
		logger:   util.GetLogger(),
	}
}

// ProcessPayment runs one checkout request end to end. The returned
// error is always a *PaymentError; once the gateway approves, the
// method is committed to returning success no matter which downstream
// steps degrade.
func (s *PaymentService) ProcessPayment(ctx context.Context, req *PayRequest) (*PayResponse, error) {
	ctx, span := util.StartSpan(ctx, "PaymentService.ProcessPayment")
	defer span.End()

	if perr := validatePayRequest(req); perr != nil {
		util.PaymentsRejectedTotal.WithLabelValues("validation").Inc()
		return nil, perr
	}

	// Compliance runs before any lookup or charge.
	if req.BillingDetails != nil {
		if perr := CheckCompliance(req.BillingDetails.Country); perr != nil {
			util.PaymentsRejectedTotal.WithLabelValues("compliance").Inc()
			s.logger.Warn("Compliance rejection",
				zap.String("order_id", req.OrderID),
				zap.String("country", req.BillingDetails.Country))
			return nil, perr
		}
	}

	located, err := s.locator.Locate(ctx, req.OrderID, clientHintFrom(req))
	if err != nil {
		util.PaymentsRejectedTotal.WithLabelValues("not_found").Inc()
		return nil, &PaymentError{Code: ErrNotFound, Message: "Order not found in any table"}
	}
	core := located.Order.Core()

	lockHeld := false
	if s.guard && s.tokens != nil {
		acquired, lockErr := s.tokens.AcquireSettlementLock(ctx, req.OrderID, settlementLockTTL)
		if lockErr != nil {
			s.logger.Warn("Settlement lock unavailable, proceeding unguarded", zap.Error(lockErr))
		} else if !acquired {
			util.PaymentsRejectedTotal.WithLabelValues("in_progress").Inc()
			return nil, &PaymentError{Code: ErrConflict, Message: "A payment for this order is already in progress"}
		} else {
			lockHeld = true
		}
	}

	amount := int64(math.Round(req.Amount))
	util.PaymentsAttemptedTotal.Inc()

	result, err := s.gateway.Charge(ctx, &gateway.ChargeRequest{
		Prime:           req.Prime,
		Amount:          amount,
		Details:         fmt.Sprintf("Order #%s", orderLabel(core)),
		CardholderName:  cardholderName(req, core),
		CardholderEmail: core.Email,
	})
	if err != nil {
		// Transport or unexpected gateway failure: this is not a
		// decline. Alert operators and fail the request.
		s.logger.Error("Gateway call failed", zap.String("order_id", req.OrderID), zap.Error(err))
		if lockHeld {
			_ = s.tokens.ReleaseSettlementLock(ctx, req.OrderID)
		}
		s.alertOperators(ctx, req.OrderID, err)
		return nil, &PaymentError{Code: ErrInternal, Message: "Internal server error"}
	}

	if !result.Approved {
		util.PaymentsDeclinedTotal.Inc()
		if lockHeld {
			_ = s.tokens.ReleaseSettlementLock(ctx, req.OrderID)
		}
		s.degrade(ctx, "publish_decline", func() error {
			if s.events == nil {
				return nil
			}
			return s.events.PublishPaymentDeclined(ctx, &models.PaymentDeclinedEvent{
				BaseEvent:     newBaseEvent(models.EventTypePaymentDeclined),
				OrderID:       core.ID,
				Category:      located.Order.Category(),
				GatewayStatus: result.Status,
				Reason:        result.Message,
			})
		})
		return nil, &PaymentError{
			Code:          ErrDeclined,
			Message:       result.Message,
			GatewayStatus: result.Status,
		}
	}

	util.PaymentsApprovedTotal.Inc()
	s.logger.Info("Charge approved, settling",
		zap.String("order_id", core.ID),
		zap.String("tx_id", result.TransactionID),
		zap.Int64("amount", amount))

	// From here on every step degrades: the customer has been charged
	// and must receive a success response.

	var userID *string
	s.degrade(ctx, "identity", func() error {
		userID = s.identity.EnsureIdentity(ctx, core.Email)
		return nil
	})

	s.degrade(ctx, "settlement_write", func() error {
		return s.settle(ctx, located, result, amount, req, userID)
	})

	s.degrade(ctx, "publish_settled", func() error {
		if s.events == nil {
			return nil
		}
		return s.events.PublishOrderSettled(ctx, &models.OrderSettledEvent{
			BaseEvent:     newBaseEvent(models.EventTypeOrderSettled),
			OrderID:       core.ID,
			OrderNumber:   core.OrderNumber,
			Category:      located.Order.Category(),
			Email:         core.Email,
			Amount:        amount,
			TransactionID: result.TransactionID,
		})
	})

	accessLink := s.identity.MintAccessLink(ctx, core.Email, "/dashboard")
	s.notify(ctx, located, result, amount, req.BillingDetails, accessLink)

	util.OrdersSettledTotal.WithLabelValues(string(located.Order.Category())).Inc()

	return &PayResponse{
		Success:       true,
		TransactionID: result.TransactionID,
		OrderID:       core.ID,
		OrderNumber:   core.OrderNumber,
		Message:       "Payment processed successfully",
	}, nil
}

// settle writes the paid state back into the table the order came
// from. The persisted price is always the charged amount, not the
// original quote.
func (s *PaymentService) settle(
	ctx context.Context,
	located *LocatedOrder,
	result *gateway.ChargeResult,
	amount int64,
	req *PayRequest,
	userID *string,
) error {
	core := located.Order.Core()

	switch located.Order.(type) {
	case *models.OrchestraOrder:
		// Orchestra rows have no paid_at/transaction_id columns and
		// their billing details are managed upstream.
		return s.store.SettleOrchestraOrder(ctx, &models.OrchestraSettlement{
			OrderID:         core.ID,
			Price:           amount,
			PaymentRef:      result.TransactionID,
			LicenseeDetails: req.LicenseeDetails,
			UserID:          userID,
		})
	case *models.VoiceOrder, *models.MusicOrder:
		return s.store.SettleStudioOrder(ctx, located.Table, &models.StudioSettlement{
			OrderID:         core.ID,
			Price:           amount,
			TransactionID:   result.TransactionID,
			PaidAt:          time.Now(),
			BillingDetails:  req.BillingDetails,
			LicenseeDetails: req.LicenseeDetails,
			UserID:          userID,
		})
	default:
		return fmt.Errorf("unknown order category %q", located.Order.Category())
	}
}

// notify fans out the three settlement emails in strict sequence. Each
// send degrades on its own; one failure never stops the others.
func (s *PaymentService) notify(
	ctx context.Context,
	located *LocatedOrder,
	result *gateway.ChargeResult,
	amount int64,
	billing *models.BillingDetails,
	accessLink string,
) {
	messages := []*mailer.Message{
		BuildOrderConfirmation(located, accessLink),
		BuildPaymentReceipt(located, result, amount, billing),
		BuildNewOrderAlert(located, amount, s.mailCfg.ProductionTeam),
	}

	for _, msg := range messages {
		msg := msg
		s.degrade(ctx, "email_"+msg.Category, func() error {
			if err := s.mail.Send(ctx, msg); err != nil {
				util.EmailsFailedTotal.WithLabelValues(msg.Category).Inc()
				return err
			}
			util.EmailsSentTotal.WithLabelValues(msg.Category).Inc()
			return nil
		})
	}
}

// degrade runs a post-charge side effect, logging and counting any
// failure without letting it reach the caller.
func (s *PaymentService) degrade(ctx context.Context, step string, fn func() error) {
	if err := fn(); err != nil {
		util.SettlementFailuresTotal.WithLabelValues(step).Inc()
		s.logger.Error("Post-charge step degraded",
			zap.String("step", step),
			zap.Error(err))
	}
}

// alertOperators sends a best-effort internal alert when the gateway
// call itself fails.
func (s *PaymentService) alertOperators(ctx context.Context, orderID string, cause error) {
	if s.mail == nil || s.mailCfg.OpsAlertAddress == "" {
		return
	}
	msg := &mailer.Message{
		To:       s.mailCfg.OpsAlertAddress,
		Subject:  fmt.Sprintf("Payment gateway failure for order %s", orderID),
		HTML:     fmt.Sprintf("<p>Charge attempt for order <strong>%s</strong> failed before a gateway verdict:</p><pre>%s</pre>", orderID, cause.Error()),
		Category: "ops_alert",
	}
	if err := s.mail.Send(ctx, msg); err != nil {
		s.logger.Error("Operator alert failed", zap.Error(err))
	}
}

func validatePayRequest(req *PayRequest) *PaymentError {
	var missing []string
	if req.Prime == "" {
		missing = append(missing, "prime")
	}
	if req.OrderID == "" {
		missing = append(missing, "orderId")
	}
	if len(missing) > 0 {
		return &PaymentError{
			Code:          ErrInvalidInput,
			Message:       "Missing required fields",
			MissingFields: missing,
		}
	}

	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return &PaymentError{
			Code:          ErrInvalidInput,
			Message:       "Amount must be a positive number",
			MissingFields: []string{"amount"},
		}
	}
	return nil
}

func clientHintFrom(req *PayRequest) *ClientHint {
	if req.OrderEmail == "" && req.OrderNumber == "" && req.OrderType == "" {
		return nil
	}
	return &ClientHint{
		Email:       req.OrderEmail,
		OrderNumber: req.OrderNumber,
		OrderType:   req.OrderType,
	}
}

func cardholderName(req *PayRequest, core *models.OrderCore) string {
	if req.Cardholder != nil && req.Cardholder.Name != "" {
		return req.Cardholder.Name
	}
	if req.BillingDetails != nil && req.BillingDetails.FullName != "" {
		return req.BillingDetails.FullName
	}
	return core.Email
}

func orderLabel(core *models.OrderCore) string {
	if core.OrderNumber != "" {
		return core.OrderNumber
	}
	return core.ID
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
	}
}
