// Package metrics holds the process Prometheus collectors.
//
// HTTP collectors are labelled by method, registered route and status so
// cardinality stays bounded. Realtime collectors are unlabelled except for the
// inbound event type, which is a closed set.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpReqs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpLat = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_inflight",
			Help: "Current number of in-flight HTTP requests.",
		},
	)

	// ActiveSessions is the number of live sessions in the Active state.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_sessions_active",
			Help: "Live sessions joined to a broadcast group.",
		},
	)

	// RejectedSessions counts connection attempts refused before upgrade, by reason.
	RejectedSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_sessions_rejected_total",
			Help: "Connection attempts rejected before upgrade.",
		},
		[]string{"reason"},
	)

	// InboundFrames counts decoded frames by event type.
	InboundFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_frames_inbound_total",
			Help: "Inbound frames by event type.",
		},
		[]string{"type"},
	)

	// BroadcastDeliveries counts payloads queued to group members.
	BroadcastDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_deliveries_total",
			Help: "Payloads queued to broadcast group members.",
		},
	)

	// BroadcastDrops counts payloads dropped because a member's queue was full.
	BroadcastDrops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_drops_total",
			Help: "Payloads dropped for slow broadcast group members.",
		},
	)

	// OutboxForwarded counts notification events forwarded from the outbox.
	OutboxForwarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notify_outbox_forwarded_total",
			Help: "Message-created events forwarded from the outbox.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpReqs, httpLat, httpInflight,
		ActiveSessions, RejectedSessions, InboundFrames,
		BroadcastDeliveries, BroadcastDrops, OutboxForwarded,
	)
}

// HTTP instruments requests. The path label is the registered route, or the
// raw path when nothing matched.
func HTTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		httpInflight.Inc()
		defer httpInflight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		method := c.Request.Method

		httpReqs.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		httpLat.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
