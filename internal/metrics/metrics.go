package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// Database metrics
	// ============================================
	DBConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_db_connection_status",
		Help: "Database connection status (1=healthy, 0=unhealthy)",
	})

	// ============================================
	// Chain watcher metrics
	// ============================================
	BlocksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_blocks_processed_total",
			Help: "Total number of blocks scanned for payments",
		},
		[]string{"chain"},
	)

	WatcherTipHeight = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_watcher_tip_height",
			Help: "Latest chain tip height seen by the watcher",
		},
		[]string{"chain"},
	)

	WatcherWatermark = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_watcher_watermark",
			Help: "Last block height fully ingested by the watcher",
		},
		[]string{"chain"},
	)

	RPCErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_rpc_errors_total",
			Help: "Total number of chain RPC errors",
		},
		[]string{"chain"},
	)

	// ============================================
	// Payment and invoice metrics
	// ============================================
	PaymentsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_payments_observed_total",
			Help: "Total number of payments ingested as confirming",
		},
		[]string{"chain"},
	)

	PaymentsConfirmed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_payments_confirmed_total",
			Help: "Total number of payments promoted to confirmed",
		},
		[]string{"chain"},
	)

	PaymentsRetracted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_payments_retracted_total",
			Help: "Total number of payments retracted after a reorg",
		},
		[]string{"chain"},
	)

	InvoicesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_invoices_created_total",
			Help: "Total number of invoices issued",
		},
		[]string{"chain"},
	)

	InvoicesPaid = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_invoices_paid_total",
			Help: "Total number of invoices settled as paid",
		},
		[]string{"chain"},
	)

	InvoicesExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_invoices_expired_total",
		Help: "Total number of invoices expired by the janitor",
	})

	// ============================================
	// Webhook dispatcher metrics
	// ============================================
	WebhooksEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhooks_enqueued_total",
			Help: "Total number of webhooks enqueued for delivery",
		},
		[]string{"event_type"},
	)

	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_webhook_deliveries_total",
			Help: "Total number of webhook delivery attempts by result",
		},
		[]string{"result"},
	)

	WebhookDeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "gateway_webhook_delivery_duration_seconds",
		Help:    "Webhook delivery duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	WebhooksReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_webhooks_reclaimed_total",
		Help: "Total number of abandoned webhook claims returned to pending",
	})

	// ============================================
	// NATS and websocket metrics
	// ============================================
	NATSConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_nats_connection_status",
		Help: "NATS connection status (1=connected, 0=disconnected)",
	})

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_events_published_total",
			Help: "Total number of gateway events published to NATS",
		},
		[]string{"event_type"},
	)

	WSClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gateway_ws_clients_connected",
		Help: "Number of websocket clients subscribed to the event feed",
	})
)
