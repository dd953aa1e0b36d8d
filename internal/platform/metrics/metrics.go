package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mvdash/internal/client"
)

// Metrics holds Prometheus counters and gauges for simulated sessions and
// the status API.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal prometheus.Counter
	errorsTotal   prometheus.Counter
	lookupsTotal  *prometheus.CounterVec

	segmentRequestsTotal    prometheus.Counter
	upgradeRequestsTotal    prometheus.Counter
	segmentsDownloadedTotal prometheus.Counter
	bytesReceivedTotal      prometheus.Counter
	underrunsTotal          prometheus.Counter
	switchesTotal           prometheus.Counter
	sessionsCompletedTotal  prometheus.Counter

	activeSessions prometheus.Gauge
	bufferSeconds  *prometheus.GaugeVec
	quality        *prometheus.GaugeVec
}

// New creates and registers the mvdash metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_http_requests_total",
			Help: "Total number of HTTP requests received by the status API",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mvdash_session_lookups_total",
			Help: "Total number of status API session lookups by result",
		}, []string{"result"}),
		segmentRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_segment_requests_total",
			Help: "Total number of segment requests sent by clients",
		}),
		upgradeRequestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_upgrade_requests_total",
			Help: "Total number of hybrid single-viewpoint upgrade requests",
		}),
		segmentsDownloadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_segments_downloaded_total",
			Help: "Total number of completed segment requests",
		}),
		bytesReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_bytes_received_total",
			Help: "Total number of segment bytes received by clients",
		}),
		underrunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_buffer_underruns_total",
			Help: "Total number of playback stalls",
		}),
		switchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_viewpoint_switches_total",
			Help: "Total number of viewpoint changes during playback",
		}),
		sessionsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mvdash_sessions_completed_total",
			Help: "Total number of sessions that reached the terminal state",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mvdash_active_sessions",
			Help: "Number of sessions that are not finished",
		}),
		bufferSeconds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mvdash_buffer_seconds",
			Help: "Buffer level of the watched viewpoint",
		}, []string{"session"}),
		quality: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mvdash_playback_quality",
			Help: "Representation index playing on the watched viewpoint",
		}, []string{"session"}),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.lookupsTotal,
		m.segmentRequestsTotal,
		m.upgradeRequestsTotal,
		m.segmentsDownloadedTotal,
		m.bytesReceivedTotal,
		m.underrunsTotal,
		m.switchesTotal,
		m.sessionsCompletedTotal,
		m.activeSessions,
		m.bufferSeconds,
		m.quality,
	)
	return m
}

// Observe updates the session metrics from a controller trace.
func (m *Metrics) Observe(tr client.Trace) {
	m.bufferSeconds.WithLabelValues(tr.Session).Set(float64(tr.Buffer) / 1e6)

	switch tr.Type {
	case client.TraceSendRequest:
		m.segmentRequestsTotal.Inc()
		if tr.Upgrade {
			m.upgradeRequestsTotal.Inc()
		}
	case client.TraceDownloaded:
		m.segmentsDownloadedTotal.Inc()
		m.bytesReceivedTotal.Add(float64(tr.Bytes))
	case client.TraceStartPlayback:
		m.quality.WithLabelValues(tr.Session).Set(float64(tr.Quality))
	case client.TraceBufferUnderrun:
		m.underrunsTotal.Inc()
	case client.TraceViewpointSwitch:
		m.switchesTotal.Inc()
	case client.TraceTerminated:
		m.sessionsCompletedTotal.Inc()
	}
}

// IncRequests increments the HTTP request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the HTTP error counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionLookups counts a status API lookup; result is "list", "found"
// or "missing".
func (m *Metrics) IncSessionLookups(result string) {
	m.lookupsTotal.WithLabelValues(result).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
