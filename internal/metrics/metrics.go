package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cracoe_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cracoe_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cracoe_users_registered_total",
			Help: "Total users registered",
		},
	)

	ConversationsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cracoe_conversations_resolved_total",
			Help: "Total conversation find-or-create resolutions",
		},
		[]string{"outcome"}, // "found" or "created"
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cracoe_messages_sent_total",
			Help: "Total direct messages sent",
		},
	)

	MessagesMarkedRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cracoe_messages_marked_read_total",
			Help: "Total messages transitioned to read",
		},
	)

	// Live bridge metrics
	LiveConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cracoe_live_connections",
			Help: "Currently attached WebSocket connections",
		},
	)

	LiveSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cracoe_live_subscriptions",
			Help: "Currently active channel subscriptions",
		},
	)

	LiveEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cracoe_live_events_published_total",
			Help: "Total live events published",
		},
		[]string{"table"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cracoe_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
