package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsAttemptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_attempted_total",
		Help: "Total number of gateway charge attempts",
	})

	PaymentsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_approved_total",
		Help: "Total number of approved charges",
	})

	PaymentsDeclinedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_declined_total",
		Help: "Total number of gateway declines",
	})

	PaymentsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_rejected_total",
		Help: "Total number of requests rejected before the charge",
	}, []string{"reason"})

	ChargeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_charge_latency_seconds",
		Help:    "Latency of gateway charge calls",
		Buckets: prometheus.DefBuckets,
	})

	OrdersSettledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_settled_total",
		Help: "Total number of orders marked paid",
	}, []string{"category"})

	SettlementFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_failures_total",
		Help: "Total number of degraded post-charge steps",
	}, []string{"step"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_sent_total",
		Help: "Total number of notification emails sent",
	}, []string{"kind"})

	EmailsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "emails_failed_total",
		Help: "Total number of notification emails that failed to send",
	}, []string{"kind"})

	MagicLinksIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magic_links_issued_total",
		Help: "Total number of single-use dashboard links minted",
	})

	MagicLinksConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "magic_links_consumed_total",
		Help: "Total number of single-use dashboard links redeemed",
	})

	UsersProvisionedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "users_provisioned_total",
		Help: "Total number of customer accounts created at settlement",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
