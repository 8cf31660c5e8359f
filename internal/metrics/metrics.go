package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rgeddes/contentd/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// content metrics
	contentReadsTotal     *prometheus.CounterVec
	contentWritesTotal    *prometheus.CounterVec
	snapshotFailuresTotal *prometheus.CounterVec
	updateStatusPollTotal *prometheus.CounterVec
	loginTotal            *prometheus.CounterVec
	externalEditsTotal    *prometheus.CounterVec
}

// New returns a fresh registry + standard collectors + HTTP metrics
// safe labels only (method, route, code) to avoid path/cardinality explosions
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		contentReadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_reads_total",
			Help: "Total content document reads by type",
		}, []string{"type"}),
		contentWritesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_writes_total",
			Help: "Total content document writes by type (updates, deletes, restores)",
		}, []string{"type"}),
		snapshotFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_snapshot_failures_total",
			Help: "Total pre-write backup snapshot failures by type",
		}, []string{"type"}),
		updateStatusPollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_update_status_polls_total",
			Help: "Total update-status poll requests by type",
		}, []string{"type"}),
		loginTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Total login attempts by result",
		}, []string{"result"}),
		externalEditsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "content_external_edits_total",
			Help: "Total on-disk content changes observed outside the API by type",
		}, []string{"type"}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.errorsTotal,
		m.profilingActive,
		m.contentReadsTotal,
		m.contentWritesTotal,
		m.snapshotFailuresTotal,
		m.updateStatusPollTotal,
		m.loginTotal,
		m.externalEditsTotal,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi *version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

func (m *ServerMetrics) IncContentRead(typ string) {
	m.contentReadsTotal.WithLabelValues(typ).Inc()
}

func (m *ServerMetrics) IncContentWrite(typ string) {
	m.contentWritesTotal.WithLabelValues(typ).Inc()
}

func (m *ServerMetrics) IncSnapshotFailure(typ string) {
	m.snapshotFailuresTotal.WithLabelValues(typ).Inc()
}

func (m *ServerMetrics) IncUpdateStatusPoll(typ string) {
	m.updateStatusPollTotal.WithLabelValues(typ).Inc()
}

func (m *ServerMetrics) IncLogin(result string) {
	m.loginTotal.WithLabelValues(result).Inc()
}

func (m *ServerMetrics) IncExternalEdit(typ string) {
	m.externalEditsTotal.WithLabelValues(typ).Inc()
}
