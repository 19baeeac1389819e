package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"studio-payments/internal/service"
	"studio-payments/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PaymentProcessor runs one checkout request end to end.
type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, req *service.PayRequest) (*service.PayResponse, error)
}

// OrderFinder resolves an order id across the category tables.
type OrderFinder interface {
	Locate(ctx context.Context, orderID string, hint *service.ClientHint) (*service.LocatedOrder, error)
}

// TokenRedeemer redeems single-use dashboard login tokens.
type TokenRedeemer interface {
	ConsumeLoginToken(ctx context.Context, token string) (string, error)
}

// Handler contains HTTP handlers
type Handler struct {
	payments     PaymentProcessor
	orders       OrderFinder
	tokens       TokenRedeemer
	dashboardURL string
}

// NewHandler creates a new HTTP handler
func NewHandler(payments PaymentProcessor, orders OrderFinder, tokens TokenRedeemer, dashboardURL string) *Handler {
	return &Handler{
		payments:     payments,
		orders:       orders,
		tokens:       tokens,
		dashboardURL: dashboardURL,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/auth/link/:token", h.redeemLoginLink)

	api := router.Group("/api")
	{
		api.POST("/payment/pay", h.pay)
		api.GET("/orders/:id", h.getOrder)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// pay handles the checkout settlement request
func (h *Handler) pay(c *gin.Context) {
	var req service.PayRequest

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.payments.ProcessPayment(c.Request.Context(), &req)
	if err != nil {
		h.writePaymentError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// writePaymentError maps the orchestrator's error taxonomy onto the
// HTTP contract the checkout UI expects.
func (h *Handler) writePaymentError(c *gin.Context, err error) {
	var perr *service.PaymentError
	if !errors.As(err, &perr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	switch perr.Code {
	case service.ErrInvalidInput:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":         perr.Message,
			"missingFields": perr.MissingFields,
		})
	case service.ErrCompliance:
		c.JSON(http.StatusForbidden, gin.H{
			"error":   "Service unavailable in your region",
			"message": perr.Message,
		})
	case service.ErrNotFound:
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found in any table",
		})
	case service.ErrDeclined:
		c.JSON(http.StatusBadRequest, gin.H{
			"error":        "Payment declined",
			"message":      perr.Message,
			"tappayStatus": perr.GatewayStatus,
		})
	case service.ErrConflict:
		c.JSON(http.StatusConflict, gin.H{
			"error":   "Payment already in progress",
			"message": perr.Message,
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
	}
}

// getOrder is the dashboard's order-tracking lookup. It reuses the
// locator's fixed-priority search but never the synthetic fallback.
func (h *Handler) getOrder(c *gin.Context) {
	located, err := h.orders.Locate(c.Request.Context(), c.Param("id"), nil)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Order not found in any table",
		})
		return
	}

	core := located.Order.Core()
	c.JSON(http.StatusOK, gin.H{
		"orderId":        core.ID,
		"orderNumber":    core.OrderNumber,
		"orderType":      located.OrderType,
		"status":         core.Status,
		"payment_status": core.PaymentStatus,
		"price":          core.Price,
	})
}

// redeemLoginLink consumes a single-use dashboard login token. Expired
// or already-used tokens get 410 so the dashboard can offer a fresh
// login instead of a broken redirect.
func (h *Handler) redeemLoginLink(c *gin.Context) {
	email, err := h.tokens.ConsumeLoginToken(c.Request.Context(), c.Param("token"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if email == "" {
		c.JSON(http.StatusGone, gin.H{"error": "Link expired or already used"})
		return
	}

	util.MagicLinksConsumedTotal.Inc()
	c.Redirect(http.StatusFound, h.redirectTarget(c.Query("next")))
}

// redirectTarget resolves the post-login destination encoded in the
// access link. Only rooted paths are honored; anything else falls back
// to the dashboard so the link can never redirect off-site.
func (h *Handler) redirectTarget(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return h.dashboardURL
	}

	base, err := url.Parse(h.dashboardURL)
	if err != nil {
		return h.dashboardURL
	}
	base.Path = next
	base.RawQuery = ""
	return base.String()
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
