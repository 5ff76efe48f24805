// Package metrics exposes Prometheus metrics for trend runs and the admin API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item outcomes
const (
	OutcomeWritten = "written"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Recorder holds every collector. A nil *Recorder records nothing.
// ⭐ SSOT: 메트릭 정의는 여기서만
type Recorder struct {
	namespace string
	buckets   []float64
	registry  *prometheus.Registry

	runsTotal       *prometheus.CounterVec
	itemsTotal      *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	lastSuccessUnix *prometheus.GaugeVec
	runsInFlight    prometheus.Gauge

	jobRunsTotal *prometheus.CounterVec

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// Option configures a Recorder
type Option func(*Recorder)

// WithNamespace sets the metric namespace
func WithNamespace(namespace string) Option {
	return func(r *Recorder) {
		if namespace != "" {
			r.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets run duration buckets, in seconds
func WithHistogramBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// WithRegistry registers collectors on registry instead of a fresh one
func WithRegistry(registry *prometheus.Registry) Option {
	return func(r *Recorder) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// New creates a Recorder on its own registry so Go runtime collectors stay out
func New(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "camps",
		buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		registry:  prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)

	r.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "trends",
		Name:      "runs_total",
		Help:      "Trend runs by window type and outcome",
	}, []string{"window_type", "status"})

	r.itemsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "trends",
		Name:      "items_total",
		Help:      "Trend items by scope and outcome",
	}, []string{"scope", "outcome"})

	r.runDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "trends",
		Name:      "run_duration_seconds",
		Help:      "Wall time of executed trend runs",
		Buckets:   r.buckets,
	}, []string{"window_type"})

	r.lastSuccessUnix = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: "trends",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last completed run",
	}, []string{"window_type"})

	r.runsInFlight = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: "trends",
		Name:      "runs_in_flight",
		Help:      "Trend runs currently executing in this process",
	})

	r.jobRunsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "scheduler",
		Name:      "job_runs_total",
		Help:      "Scheduled job executions by job and outcome",
	}, []string{"job", "status"})

	r.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route, method and status code",
	}, []string{"route", "method", "code"})

	r.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route", "method"})

	return r
}

// RunStarted marks a run as executing
func (r *Recorder) RunStarted() {
	if r == nil {
		return
	}
	r.runsInFlight.Inc()
}

// RunFinished records a run outcome. Skipped runs carry no duration.
func (r *Recorder) RunFinished(windowType, status string, executed bool, d time.Duration) {
	if r == nil {
		return
	}
	r.runsTotal.WithLabelValues(windowType, status).Inc()
	if !executed {
		return
	}
	r.runsInFlight.Dec()
	r.runDuration.WithLabelValues(windowType).Observe(d.Seconds())
}

// RunSucceeded stamps the last success time
func (r *Recorder) RunSucceeded(windowType string, at time.Time) {
	if r == nil {
		return
	}
	r.lastSuccessUnix.WithLabelValues(windowType).Set(float64(at.Unix()))
}

// Item counts one item outcome
func (r *Recorder) Item(scope, outcome string) {
	if r == nil {
		return
	}
	r.itemsTotal.WithLabelValues(scope, outcome).Inc()
}

// JobRun counts one scheduled job execution
func (r *Recorder) JobRun(job string, success bool) {
	if r == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	r.jobRunsTotal.WithLabelValues(job, status).Inc()
}

// HTTPRequest records one served request
func (r *Recorder) HTTPRequest(route, method string, code int, d time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	r.httpRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
