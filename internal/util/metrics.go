package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atelier_orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_orders_failed_total",
		Help: "Total number of failed order creations",
	}, []string{"reason"})

	OrdersCancelledTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_orders_cancelled_total",
		Help: "Total number of cancelled orders",
	}, []string{"by"})

	OrderStatusChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_order_status_changes_total",
		Help: "Order status transitions applied by admins",
	}, []string{"status"})

	OrderCreateLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "atelier_order_create_latency_seconds",
		Help:    "Latency of the order creation transaction",
		Buckets: prometheus.DefBuckets,
	})

	CartMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_cart_mutations_total",
		Help: "Cart mutations by operation and owner kind",
	}, []string{"op", "owner"})

	PaymentQRGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atelier_payment_qr_generated_total",
		Help: "Total number of payment QR payloads generated",
	})

	PaymentVerifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_payment_verified_total",
		Help: "Manual payment reconciliations by outcome",
	}, []string{"status"})

	ChatbotResponsesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_chatbot_responses_total",
		Help: "Chatbot responses by provider and whether the fallback was used",
	}, []string{"provider", "fallback"})

	ChatbotLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atelier_chatbot_latency_seconds",
		Help:    "Latency of chatbot response generation",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
	}, []string{"provider"})

	EmailsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_emails_sent_total",
		Help: "Emails sent by template and outcome",
	}, []string{"template", "status"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atelier_events_publish_failed_total",
		Help: "Domain events that could not be published",
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
