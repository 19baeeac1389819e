package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studio-payments/config"
	"studio-payments/internal/util"

	"go.uber.org/zap"
)

const (
	sandboxBaseURL    = "https://sandbox.tappaysdk.com"
	productionBaseURL = "https://prod.tappaysdk.com"

	payByPrimePath = "/tpc/payment/pay-by-prime"

	// StatusSuccess is the gateway's only approval sentinel. Every
	// other status, including values we have never seen, is a decline.
	StatusSuccess = 0
)

// ChargeRequest is the adapter-level charge input. Amount is in whole
// minor units.
type ChargeRequest struct {
	Prime           string
	Amount          int64
	Details         string
	CardholderName  string
	CardholderEmail string
}

// ChargeResult is the interpreted gateway response. Approved is true
// only for StatusSuccess; Message carries the gateway's own wording
// for user display on decline.
type ChargeResult struct {
	Approved      bool
	TransactionID string
	Status        int
	Message       string
}

type payByPrimeRequest struct {
	Prime      string     `json:"prime"`
	PartnerKey string     `json:"partner_key"`
	MerchantID string     `json:"merchant_id"`
	Amount     int64      `json:"amount"`
	Currency   string     `json:"currency"`
	Details    string     `json:"details"`
	Cardholder cardholder `json:"cardholder"`
	Remember   bool       `json:"remember"`
}

type cardholder struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone_number"`
}

// Status is a pointer so an out-of-contract body with no status field
// is distinguishable from a genuine status 0 approval.
type payByPrimeResponse struct {
	Status            *int   `json:"status"`
	Msg               string `json:"msg"`
	RecTradeID        string `json:"rec_trade_id"`
	BankTransactionID string `json:"bank_transaction_id"`
}

// Client talks to the TapPay pay-by-prime endpoint.
type Client struct {
	cfg        config.GatewayConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a gateway client for the configured environment.
func NewClient(cfg config.GatewayConfig) *Client {
	baseURL := sandboxBaseURL
	if cfg.Environment == "production" {
		baseURL = productionBaseURL
	}

	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// Charge makes exactly one charge attempt. A transport failure, a
// non-2xx response, or a body outside the pay-by-prime contract is
// returned as an error and must not be read as a decline or an
// approval; declines come back as a ChargeResult with Approved=false.
func (c *Client) Charge(ctx context.Context, req *ChargeRequest) (*ChargeResult, error) {
	ctx, span := util.StartSpan(ctx, "gateway.Charge")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ChargeLatency.Observe(time.Since(start).Seconds())
	}()

	body := payByPrimeRequest{
		Prime:      req.Prime,
		PartnerKey: c.cfg.PartnerKey,
		MerchantID: c.cfg.MerchantID,
		Amount:     req.Amount,
		Currency:   "TWD",
		Details:    req.Details,
		Cardholder: cardholder{
			Name:  req.CardholderName,
			Email: req.CardholderEmail,
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal charge request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+payByPrimePath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.PartnerKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, detail)
	}

	var gw payByPrimeResponse
	if err := json.NewDecoder(resp.Body).Decode(&gw); err != nil {
		return nil, fmt.Errorf("failed to decode gateway response: %w", err)
	}
	if gw.Status == nil {
		return nil, fmt.Errorf("gateway response carries no status field")
	}

	result := &ChargeResult{
		Approved:      *gw.Status == StatusSuccess,
		TransactionID: gw.RecTradeID,
		Status:        *gw.Status,
		Message:       gw.Msg,
	}

	if result.Approved {
		c.logger.Info("Charge approved",
			zap.String("trade_id", gw.RecTradeID),
			zap.Int64("amount", req.Amount))
	} else {
		c.logger.Warn("Charge declined",
			zap.Int("status", *gw.Status),
			zap.String("msg", gw.Msg))
	}

	return result, nil
}
