package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counsel_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "counsel_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"method", "path"},
	)

	// Conversation metrics
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "counsel_sessions_active",
			Help: "Counseling sessions currently open",
		},
	)

	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counsel_turns_total",
			Help: "Completed turns by outcome",
		},
		[]string{"outcome"}, // "completed", "failed" or "cancelled"
	)

	TurnsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counsel_turns_rejected_total",
			Help: "Submissions rejected before a turn started",
		},
		[]string{"reason"}, // "empty" or "busy"
	)

	FragmentsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counsel_fragments_total",
			Help: "Text fragments folded into model messages",
		},
	)

	StaleUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counsel_stale_updates_total",
			Help: "Updates addressed to a message no longer in the transcript",
		},
	)

	DuplicateAppends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counsel_duplicate_appends_total",
			Help: "Appends dropped because the message id was already in the transcript",
		},
	)

	RelaysDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "counsel_relays_dropped_total",
			Help: "Live client streams cut off because the client fell behind",
		},
	)

	SafetyFlags = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counsel_safety_flags_total",
			Help: "User submissions flagged by crisis screening",
		},
		[]string{"category"},
	)
)
