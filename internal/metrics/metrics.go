package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Channel metrics
	ChannelConnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_channel_connects_total",
			Help: "Successful chat channel connections, including reconnects",
		},
	)

	ChannelDialFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_channel_dial_failures_total",
			Help: "Failed chat channel dial attempts",
		},
	)

	ChannelEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_channel_events_total",
			Help: "Channel events by direction and name",
		},
		[]string{"direction", "event"}, // "in" or "out"
	)

	// Stream metrics
	MessagesAppended = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_messages_appended_total",
			Help: "Messages appended to the active stream",
		},
		[]string{"origin"}, // "local", "push", "history"
	)

	MessagesDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_messages_deduplicated_total",
			Help: "Incoming messages dropped as duplicates",
		},
	)

	UnreadRouted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_unread_routed_total",
			Help: "Messages for inactive rooms routed to the unread tally",
		},
	)

	Resyncs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_resyncs_total",
			Help: "History resyncs after reconnect",
		},
		[]string{"result"},
	)

	// Gateway metrics
	GatewayRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lostfound_gateway_refreshes_total",
			Help: "Session refresh calls by outcome",
		},
		[]string{"result"}, // "ok" or "failed"
	)

	GatewayQueued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lostfound_gateway_queued_total",
			Help: "Requests that waited on an in-flight refresh",
		},
	)

	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lostfound_gateway_request_duration_seconds",
			Help:    "Backend request duration including refresh and replay",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method"},
	)
)
