package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_http_requests_total",
			Help: "Total admin API requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guildbridge_http_request_duration_seconds",
			Help:    "Admin API request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 5, 10},
		},
		[]string{"method", "route"},
	)

	// Upstream metrics
	LinesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_lines_classified_total",
			Help: "Upstream lines by classifier outcome",
		},
		[]string{"outcome"}, // event, buffered, suppressed, ignored, abandoned
	)

	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_events_published_total",
			Help: "Domain events published on the bus",
		},
		[]string{"type"},
	)

	UpstreamConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildbridge_upstream_connected",
			Help: "1 while the upstream connection is ready",
		},
	)

	// Command metrics
	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_commands_total",
			Help: "Correlated commands by name and outcome",
		},
		[]string{"command", "outcome"}, // success, rejected, timeout, send_failed
	)

	CommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "guildbridge_command_duration_seconds",
			Help:    "Time from send to confirmation",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"command"},
	)

	AntispamResends = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildbridge_antispam_resends_total",
			Help: "Messages resent with an anti-spam suffix",
		},
	)

	InviteQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildbridge_invite_queue_depth",
			Help: "Invitations waiting for the invite worker",
		},
	)

	// RPC metrics
	RPCRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_rpc_requests_total",
			Help: "Inbound RPC requests by endpoint and result",
		},
		[]string{"endpoint", "result"},
	)

	RPCDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_rpc_dropped_total",
			Help: "Inbound envelopes dropped before dispatch",
		},
		[]string{"reason"},
	)

	RPCOutboundTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_rpc_outbound_total",
			Help: "Outbound RPC requests by endpoint and result",
		},
		[]string{"endpoint", "result"}, // ok, timeout, error
	)

	RPCPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "guildbridge_rpc_pending",
			Help: "Outbound RPC requests awaiting a response",
		},
	)

	// Infrastructure metrics
	TransportRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "guildbridge_transport_restarts_total",
			Help: "Serving loop restarts after connection loss",
		},
	)

	TransportLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "guildbridge_transport_publish_latency_seconds",
			Help:    "Pub/sub publish latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "guildbridge_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)
)
