package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrderIntakeFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_intake_failed_total",
		Help: "Total number of rejected order intake attempts",
	}, []string{"reason"})

	OrdersDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_delivered_total",
		Help: "Total number of orders marked delivered",
	})

	OrderReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_reserve_latency_seconds",
		Help:    "Latency of the reserve-and-create transaction",
		Buckets: prometheus.DefBuckets,
	})

	SettlementsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlements_created_total",
		Help: "Total number of settlements created",
	})

	SettlementOrdersClaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "settlement_orders_claimed_total",
		Help: "Total number of orders attached to settlements",
	})

	SettlementRunLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "settlement_run_latency_seconds",
		Help:    "Latency of a full settlement generation run",
		Buckets: prometheus.DefBuckets,
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
