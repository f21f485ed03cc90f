package metrics

import (
	"net/http"

	"github.com/ErlanBelekov/task-scheduler/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Scheduler loop metrics

	PollCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "poll_cycle_duration_seconds",
		Help:      "Time taken for one poll cycle, dispatches included.",
		Buckets:   []float64{.005, .01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
	})

	DueTasks = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "due_tasks",
		Help:      "Number of due tasks found by the last poll cycle.",
	})

	DispatchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of outbound task HTTP calls.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})

	DispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "dispatches_total",
		Help:      "Total dispatches, by task type and outcome.",
	}, []string{"type", "outcome"})

	DispatchesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "dispatches_in_flight",
		Help:      "Number of task dispatches currently running.",
	})

	TaskFaultsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "task_faults_total",
		Help:      "Per-task faults caught by the scheduler loop.",
	}, []string{"reason"})

	StoreConflictsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "store_conflicts_total",
		Help:      "Scheduler writes that lost to a concurrent API change.",
	}, []string{"op"})

	// Reaper metrics

	ReaperPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "reaper_pruned_attempts_total",
		Help:      "Total attempt-log rows removed by the reaper.",
	})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "scheduler",
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Worker lifecycle

	WorkerStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scheduler",
		Name:      "worker_start_time_seconds",
		Help:      "Unix timestamp when the worker started.",
	})

	WorkerShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "scheduler",
		Name:      "worker_shutdowns_total",
		Help:      "Number of times the worker has shut down.",
	})

	// HTTP metrics

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
		PollCycleDuration,
		DueTasks,
		DispatchDuration,
		DispatchesTotal,
		DispatchesInFlight,
		TaskFaultsTotal,
		StoreConflictsTotal,
		ReaperPrunedTotal,
		ReaperCycleDuration,
		WorkerStartTime,
		WorkerShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics and the health probes on their own listener.
func NewServer(addr string, checker *health.Checker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/livez", checker.ServeLiveness)
	mux.HandleFunc("/readyz", checker.ServeReadiness)
	return &http.Server{Addr: addr, Handler: mux}
}
