// Package swarmmetrics exposes the Prometheus instrumentation for the
// swarm core: Gauge/Counter/Histogram series and a Timer helper covering
// workflow-run/task/sync concerns.
package swarmmetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "swarmcore_tasks_by_status",
			Help: "Current number of tasks in the run by status code",
		},
		[]string{"status"},
	)

	ReadyQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "swarmcore_ready_queue_depth",
			Help: "Current depth of the ready-to-run queue",
		},
	)

	HeartbeatsSentTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmcore_heartbeats_sent_total",
			Help: "Total number of heartbeat RPCs sent",
		},
	)

	HeartbeatFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmcore_heartbeat_failures_total",
			Help: "Total number of heartbeat RPCs that failed",
		},
	)

	SyncCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "swarmcore_sync_cycles_total",
			Help: "Total number of sync cycles by kind (full, incremental)",
		},
		[]string{"kind"},
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "swarmcore_sync_duration_seconds",
			Help:    "Time taken for a sync cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmcore_scheduler_tick_duration_seconds",
			Help:    "Time taken for a scheduler tick in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	BatchesQueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmcore_batches_queued_total",
			Help: "Total number of task batches queued",
		},
	)

	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmcore_batch_size",
			Help:    "Size of queued task batches",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	TasksDoneTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmcore_tasks_done_total",
			Help: "Total number of tasks that reached DONE",
		},
	)

	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "swarmcore_tasks_failed_total",
			Help: "Total number of tasks that reached ERROR_FATAL",
		},
	)

	OrchestratorLoopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "swarmcore_orchestrator_loop_duration_seconds",
			Help:    "Time taken for one Orchestrator main-loop iteration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		TasksByStatus,
		ReadyQueueDepth,
		HeartbeatsSentTotal,
		HeartbeatFailuresTotal,
		SyncCyclesTotal,
		SyncDuration,
		SchedulerTickDuration,
		BatchesQueuedTotal,
		BatchSize,
		TasksDoneTotal,
		TasksFailedTotal,
		OrchestratorLoopDuration,
	)
}

// Handler returns the Prometheus HTTP handler for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later observation against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
