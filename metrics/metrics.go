// Package metrics exposes protocore's counters and histograms through
// github.com/prometheus/client_golang, grounded on the teacher's
// internal/metrics.go hand-rolled text-exposition surface but upgraded to
// real vector types registered against a prometheus.Registerer. The metric
// surface is kept identical: upstream selection/failure/health counts, WS
// frame counts and bytes, and dial latency — now joined by HTTP/2 stream and
// Postgres query observations named in spec.md's engine sections.
package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the engine-facing metric vectors behind one
// prometheus.Registerer, the way the teacher bundles its hand-rolled
// counters behind the package-level telemetry struct.
type Registry struct {
	reg prometheus.Registerer

	UpstreamSelected *prometheus.CounterVec
	UpstreamFailures *prometheus.CounterVec
	UpstreamHealthy  *prometheus.GaugeVec
	DialDuration     *prometheus.HistogramVec

	WSFrames *prometheus.CounterVec
	WSBytes  *prometheus.CounterVec

	H2StreamsOpened *prometheus.CounterVec
	H2StreamErrors  *prometheus.CounterVec

	PgQueries     *prometheus.CounterVec
	PgQueryErrors *prometheus.CounterVec
	PgQueryLatency *prometheus.HistogramVec
}

// New constructs a Registry and registers every vector against reg. Pass
// prometheus.NewRegistry() for an isolated test registry, or
// prometheus.DefaultRegisterer for the process-wide default the way
// promhttp.Handler() reads from by default.
func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		reg: reg,
		UpstreamSelected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_upstream_selected_total",
			Help: "Count of upstream selections by protocol.",
		}, []string{"upstream", "proto"}),
		UpstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_upstream_failures_total",
			Help: "Count of upstream dial/request failures by reason.",
		}, []string{"upstream", "proto", "reason"}),
		UpstreamHealthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "protocore_upstream_healthy",
			Help: "1 if the upstream is currently considered healthy, else 0.",
		}, []string{"upstream", "proto"}),
		DialDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "protocore_dial_duration_seconds",
			Help:    "Dial latency to an upstream.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "proto"}),
		WSFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_ws_frames_total",
			Help: "WebSocket frames processed by direction and opcode.",
		}, []string{"direction", "opcode"}),
		WSBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_ws_bytes_total",
			Help: "WebSocket payload bytes processed by direction.",
		}, []string{"direction"}),
		H2StreamsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_h2_streams_opened_total",
			Help: "HTTP/2 streams opened by side.",
		}, []string{"side"}),
		H2StreamErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_h2_stream_errors_total",
			Help: "HTTP/2 stream-level errors by RST_STREAM error code name.",
		}, []string{"code"}),
		PgQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_pg_queries_total",
			Help: "Postgres queries executed by protocol path (simple/extended).",
		}, []string{"path"}),
		PgQueryErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "protocore_pg_query_errors_total",
			Help: "Postgres query errors by SQLSTATE class.",
		}, []string{"class"}),
		PgQueryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "protocore_pg_query_duration_seconds",
			Help:    "Postgres query latency by protocol path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
	reg.MustRegister(
		r.UpstreamSelected,
		r.UpstreamFailures,
		r.UpstreamHealthy,
		r.DialDuration,
		r.WSFrames,
		r.WSBytes,
		r.H2StreamsOpened,
		r.H2StreamErrors,
		r.PgQueries,
		r.PgQueryErrors,
		r.PgQueryLatency,
	)
	return r
}

// Handler returns the http.Handler to mount at /metrics, the Prometheus
// replacement for the teacher's hand-written metricsHandler.
func (r *Registry) Handler() http.Handler {
	if g, ok := r.reg.(prometheus.Gatherer); ok {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
	}
	return promhttp.Handler()
}

// ObserveDial records a dial attempt's latency and, on failure, bumps the
// failures counter classified by reason.
func (r *Registry) ObserveDial(upstream, proto string, d time.Duration, err error) {
	r.DialDuration.WithLabelValues(upstream, proto).Observe(d.Seconds())
	if err != nil {
		r.UpstreamFailures.WithLabelValues(upstream, proto, failureReason(err)).Inc()
		return
	}
	r.UpstreamSelected.WithLabelValues(upstream, proto).Inc()
}

// SetHealthy records the current health of an upstream.
func (r *Registry) SetHealthy(upstream, proto string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1
	}
	r.UpstreamHealthy.WithLabelValues(upstream, proto).Set(v)
}

// ObserveWSFrame records one WebSocket frame.
func (r *Registry) ObserveWSFrame(direction, opcode string, payloadBytes int) {
	r.WSFrames.WithLabelValues(direction, opcode).Inc()
	r.WSBytes.WithLabelValues(direction).Add(float64(payloadBytes))
}

// ObserveH2StreamOpened records a stream opened by side ("local" or
// "remote").
func (r *Registry) ObserveH2StreamOpened(side string) {
	r.H2StreamsOpened.WithLabelValues(side).Inc()
}

// ObserveH2StreamError records a stream-level RST_STREAM by error code name.
func (r *Registry) ObserveH2StreamError(codeName string) {
	r.H2StreamErrors.WithLabelValues(codeName).Inc()
}

// ObservePgQuery records a completed Postgres query.
func (r *Registry) ObservePgQuery(path string, d time.Duration, errClass string) {
	r.PgQueries.WithLabelValues(path).Inc()
	r.PgQueryLatency.WithLabelValues(path).Observe(d.Seconds())
	if errClass != "" {
		r.PgQueryErrors.WithLabelValues(errClass).Inc()
	}
}

func failureReason(err error) string {
	if err == nil {
		return "unknown"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "tls") || strings.Contains(msg, "x509") || strings.Contains(msg, "certificate"):
		return "tls"
	case strings.Contains(msg, "dns") || strings.Contains(msg, "no such host"):
		return "dns"
	case strings.Contains(msg, "refused"):
		return "refused"
	default:
		return "other"
	}
}
