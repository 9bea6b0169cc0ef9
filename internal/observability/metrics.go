package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the monitor's collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	refreshTotal      *prometheus.CounterVec
	refreshDuration   prometheus.Histogram
	readings          prometheus.Gauge
	connectionState   prometheus.Gauge
	setpointCommits   *prometheus.CounterVec
	streamClients     prometheus.Gauge
}

// NewMetrics registers the collectors on reg. Pass prometheus.NewRegistry()
// in tests.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total count of HTTP requests processed by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request durations by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		refreshTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_refresh_total",
			Help: "Total poll cycles by trigger and result.",
		}, []string{"trigger", "result"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledger_refresh_duration_seconds",
			Help:    "Histogram of full series fetch durations.",
			Buckets: prometheus.DefBuckets,
		}),
		readings: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_readings",
			Help: "Number of readings in the last complete series.",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_connection_state",
			Help: "Connection state (0 disconnected, 1 connecting, 2 connected, 3 failed).",
		}),
		setpointCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "setpoint_commits_total",
			Help: "Setpoint commits by result.",
		}, []string{"result"}),
		streamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Connected snapshot stream clients.",
		}),
	}

	reg.MustRegister(
		m.httpRequestsTotal,
		m.httpDuration,
		m.refreshTotal,
		m.refreshDuration,
		m.readings,
		m.connectionState,
		m.setpointCommits,
		m.streamClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and their durations under route.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Refresh records one poll cycle. count is ignored on failure.
func (m *Metrics) Refresh(trigger string, duration time.Duration, count int, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.refreshTotal.WithLabelValues(trigger, result).Inc()
	m.refreshDuration.Observe(duration.Seconds())
	if err == nil {
		m.readings.Set(float64(count))
	}
}

func (m *Metrics) SetConnectionState(state int) {
	if m == nil {
		return
	}
	m.connectionState.Set(float64(state))
}

func (m *Metrics) SetpointCommit(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.setpointCommits.WithLabelValues("partial").Inc()
		return
	}
	m.setpointCommits.WithLabelValues("ok").Inc()
}

func (m *Metrics) StreamClientAdded() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *Metrics) StreamClientRemoved() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}
