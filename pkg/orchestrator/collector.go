package orchestrator

import (
	"time"

	"github.com/cuemby/swarmcore/pkg/swarmmetrics"
	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// MetricsCollector refreshes the gauges that reflect a live snapshot of
// SwarmState (as opposed to the counters the Orchestrator and its
// services update inline as events happen). SwarmState carries no lock
// — it is owned exclusively by the driver goroutine — so unlike the
// teacher's metrics_collector.go this has no ticker goroutine of its
// own. SampleIfDue must only ever be called from that same driver
// goroutine, which the Orchestrator does once per main-loop iteration.
type MetricsCollector struct {
	interval     time.Duration
	lastSampleAt time.Time
}

// NewMetricsCollector constructs a collector that samples at most once
// per interval.
func NewMetricsCollector(interval time.Duration) *MetricsCollector {
	return &MetricsCollector{interval: interval}
}

// SampleIfDue refreshes the gauges from state if interval has elapsed
// since the last sample (or this is the first call).
func (c *MetricsCollector) SampleIfDue(state *swarmstate.SwarmState, now time.Time) {
	if !c.lastSampleAt.IsZero() && now.Sub(c.lastSampleAt) < c.interval {
		return
	}
	c.lastSampleAt = now
	c.collect(state)
}

func (c *MetricsCollector) collect(state *swarmstate.SwarmState) {
	for _, status := range swarmtypes.AllTaskStatuses {
		swarmmetrics.TasksByStatus.WithLabelValues(string(status)).Set(float64(len(state.TasksInStatus(status))))
	}
	swarmmetrics.ReadyQueueDepth.Set(float64(state.ReadyLen()))
}
