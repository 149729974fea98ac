package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_committed_total",
		Help: "Total number of orders committed",
	})

	CommitsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "commits_failed_total",
		Help: "Total number of failed commit attempts",
	}, []string{"reason"})

	InventoryConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "inventory_conflicts_total",
		Help: "Total number of commits aborted on insufficient stock under lock",
	})

	PaymentMismatchTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_mismatch_total",
		Help: "Total number of commits aborted on gateway amount or status mismatch",
	})

	SnapshotsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_snapshots_created_total",
		Help: "Total number of price snapshots reserved",
	})

	SnapshotsStaleTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "price_snapshots_stale_total",
		Help: "Total number of commits rejected on a missing or stale snapshot",
	})

	DiscountsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discounts_applied_total",
		Help: "Total number of discount codes applied",
	}, []string{"kind"})

	DiscountsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discounts_rejected_total",
		Help: "Total number of discount codes rejected",
	}, []string{"reason"})

	CommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "commit_latency_seconds",
		Help:    "Latency of the locked commit transaction",
		Buckets: prometheus.DefBuckets,
	})

	GatewayVerifyLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_verify_latency_seconds",
		Help:    "Latency of payment gateway verification calls",
		Buckets: prometheus.DefBuckets,
	})

	FulfillmentFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fulfillment_failed_total",
		Help: "Total number of failed post-commit fulfillment side effects",
	}, []string{"effect"})

	LicensesIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "licenses_issued_total",
		Help: "Total number of license keys issued",
	})

	DownloadsGrantedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "downloads_granted_total",
		Help: "Total number of download grants created",
	})

	WebhookEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Total number of payment gateway webhook events received",
	}, []string{"type"})

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
