package observability

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "netcore"

var (
	registerOnce sync.Once

	connEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "connection_events_total",
			Help:      "Connection lifecycle events (accepted, dialed, closed, reaped, forced).",
		},
		[]string{"transport", "event"},
	)
	activeConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "active_connections",
			Help:      "Connections currently registered with a server.",
		},
		[]string{"transport"},
	)
	frames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frames_total",
			Help:      "Frames moved over the wire.",
		},
		[]string{"transport", "direction"},
	)
	frameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frame_bytes_total",
			Help:      "Framed bytes moved over the wire.",
		},
		[]string{"transport", "direction"},
	)
	frameErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "transport",
			Name:      "frame_errors_total",
			Help:      "Inbound frames rejected, by error class.",
		},
		[]string{"transport", "class"},
	)
	handlerPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "handler_panics_total",
			Help:      "Recovered handler panics by pipeline stage.",
		},
		[]string{"stage"},
	)
	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "dispatch_total",
			Help:      "Dispatched commands by outcome.",
		},
		[]string{"command", "outcome"},
	)
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "command",
			Name:      "duration_seconds",
			Help:      "Command callback duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "requests_total",
			Help:      "Admin HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connEvents, activeConns, frames, frameBytes, frameErrors,
			handlerPanics, commands, commandDuration, httpRequests, httpDuration,
		)
	})
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}

func RecordConnEvent(transport, event string) {
	RegisterMetrics()
	connEvents.WithLabelValues(transport, event).Inc()
}

func SetActiveConns(transport string, n int) {
	RegisterMetrics()
	activeConns.WithLabelValues(transport).Set(float64(n))
}

func RecordFrame(transport, direction string, size int) {
	RegisterMetrics()
	frames.WithLabelValues(transport, direction).Inc()
	frameBytes.WithLabelValues(transport, direction).Add(float64(size))
}

func RecordFrameError(transport, class string) {
	RegisterMetrics()
	frameErrors.WithLabelValues(transport, class).Inc()
}

func RecordHandlerPanic(stage string) {
	RegisterMetrics()
	handlerPanics.WithLabelValues(stage).Inc()
}

func RecordCommand(name, outcome string, duration time.Duration) {
	RegisterMetrics()
	commands.WithLabelValues(name, outcome).Inc()
	commandDuration.WithLabelValues(name).Observe(duration.Seconds())
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
