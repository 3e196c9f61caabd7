package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered with the default registry by promauto.
var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	BookingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_booking_transitions_total",
			Help: "Booking lifecycle transitions by target state and reason",
		},
		[]string{"status", "reason"},
	)

	SeatAdjustments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_seat_adjustments_total",
			Help: "Seats moved by committed adjustments",
		},
		[]string{"class", "direction"},
	)

	InventoryRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_inventory_rejections_total",
			Help: "Requests rejected because not enough seats remained",
		},
		[]string{"class", "stage"},
	)

	Anomalies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_ledger_anomalies_total",
			Help: "Ledger inconsistencies detected at commit",
		},
		[]string{"kind"},
	)

	DBTxDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "inv_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	DBTxRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_db_tx_retries_total",
			Help: "Transactions retried after a serialization failure",
		},
		[]string{"op"},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "inv_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last pass",
		},
	)

	RabbitPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inv_rabbit_publish_retries_total",
			Help: "Total rabbit publish retries",
		},
	)

	NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inv_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full",
		},
	)

	SinkFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inv_notification_sink_failures_total",
			Help: "Notification deliveries that failed in a sink",
		},
		[]string{"sink"},
	)

	ExpiredBookings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inv_expired_bookings_total",
			Help: "Pending bookings expired by the sweeper",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "inv_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
