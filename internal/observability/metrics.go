package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	datagramsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "transport",
			Name:      "datagrams_received_total",
			Help:      "Datagrams read from the socket.",
		},
		[]string{"role"},
	)
	datagramsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "transport",
			Name:      "datagrams_sent_total",
			Help:      "Datagrams written to the socket.",
		},
		[]string{"role"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "transport",
			Name:      "decode_errors_total",
			Help:      "Datagrams that did not decode into a message.",
		},
		[]string{"role", "stage"},
	)
	invalidSignatures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "transport",
			Name:      "invalid_signatures_total",
			Help:      "Decoded messages whose signature did not verify.",
		},
		[]string{"role"},
	)
	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "transport",
			Name:      "rate_limited_total",
			Help:      "Datagrams dropped by the per-peer limiter.",
		},
		[]string{"role"},
	)
	messagesHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "filesync",
			Name:      "messages_handled_total",
			Help:      "Messages routed to a file sync handler.",
		},
		[]string{"type", "subtype", "success"},
	)
	chunksServed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "filesync",
			Name:      "chunks_served_total",
			Help:      "File chunks sent in retrieve responses.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotesync",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotesync",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			datagramsReceived,
			datagramsSent,
			decodeErrors,
			invalidSignatures,
			rateLimited,
			messagesHandled,
			chunksServed,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordDatagramReceived(role string) {
	RegisterMetrics()
	datagramsReceived.WithLabelValues(role).Inc()
}

func RecordDatagramSent(role string) {
	RegisterMetrics()
	datagramsSent.WithLabelValues(role).Inc()
}

func RecordDecodeError(role, stage string) {
	RegisterMetrics()
	decodeErrors.WithLabelValues(role, stage).Inc()
}

func RecordInvalidSignature(role string) {
	RegisterMetrics()
	invalidSignatures.WithLabelValues(role).Inc()
}

func RecordRateLimited(role string) {
	RegisterMetrics()
	rateLimited.WithLabelValues(role).Inc()
}

func RecordMessageHandled(msgType, subtype string, success bool) {
	RegisterMetrics()
	messagesHandled.WithLabelValues(msgType, subtype, strconv.FormatBool(success)).Inc()
}

func RecordChunksServed(n int) {
	RegisterMetrics()
	chunksServed.Add(float64(n))
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
