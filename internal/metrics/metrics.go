package metrics

import (
	"encoding/json"
	"net/http"

	"github.com/callcron/scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Queue metrics

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "queue_depth",
		Help:      "Number of entries currently held in the priority queue.",
	})

	DispatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "dispatch_latency_seconds",
		Help:      "Time from an entry becoming due to being submitted to the worker pool.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
	})

	DriftSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "drift_seconds",
		Help:      "actual_start_time - scheduled_time for each attempt.",
		Buckets:   []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
	})

	// Execution metrics

	ExecutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "executions_total",
		Help:      "Total executions finished, by terminal status.",
	}, []string{"status"})

	ExecutionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "execution_duration_seconds",
		Help:      "Duration of a single HTTP attempt.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"error_kind"})

	RetriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "retries_total",
		Help:      "Total attempts enqueued as a retry of a prior failed attempt.",
	})

	PoolSaturatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "pool_saturated_total",
		Help:      "Total submissions refused because the worker pool backlog was full.",
	})

	// Refresh / lifecycle metrics

	RefreshCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "refresh_cycle_duration_seconds",
		Help:      "Time taken for one store-reconciliation refresh cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	SchedulerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "start_time_seconds",
		Help:      "Unix timestamp when the scheduler loop started.",
	})

	SchedulerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "shutdowns_total",
		Help:      "Number of times the scheduler loop has shut down.",
	})

	// HTTP metrics (control API)

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		QueueDepth,
		DispatchLatency,
		DriftSeconds,
		ExecutionsTotal,
		ExecutionDuration,
		RetriesTotal,
		PoolSaturatedTotal,
		RefreshCycleDuration,
		SchedulerStartTime,
		SchedulerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer builds the /metrics, /healthz and /readyz server. checker may be
// nil, in which case the health routes are omitted.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if checker != nil {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			writeHealth(w, checker.Liveness(r.Context()))
		})
		mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
			result := checker.Readiness(r.Context())
			if result.Status != "up" {
				w.WriteHeader(http.StatusServiceUnavailable)
			}
			writeHealth(w, result)
		})
	}
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}
