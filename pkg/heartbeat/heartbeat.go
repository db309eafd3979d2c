package heartbeat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarmcore/pkg/gateway"
	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// Heartbeat periodically reports a workflow-run's status to the server
// from its own goroutine. Callers read CurrentStatus and
// TimeSinceLastHeartbeat; nothing about it ever reaches into SwarmState.
type Heartbeat struct {
	gw            *gateway.Gateway
	workflowRunID int64
	interval      time.Duration
	reportBuffer  float64
	logger        zerolog.Logger

	mu              sync.RWMutex
	currentStatus   swarmtypes.WorkflowRunStatus
	lastHeartbeatAt time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a Heartbeat for one workflow-run. initialStatus seeds
// CurrentStatus until the first tick completes.
func New(gw *gateway.Gateway, workflowRunID int64, interval time.Duration, reportBuffer float64, initialStatus swarmtypes.WorkflowRunStatus) *Heartbeat {
	return &Heartbeat{
		gw:            gw,
		workflowRunID: workflowRunID,
		interval:      interval,
		reportBuffer:  reportBuffer,
		logger:        swarmlog.WithComponent("heartbeat").With().Int64("workflow_run_id", workflowRunID).Logger(),
		currentStatus: initialStatus,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the background ticker. Safe to call once.
func (h *Heartbeat) Start(ctx context.Context) {
	go h.run(ctx)
}

// Stop cancels the ticker and blocks until the goroutine has exited.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stopCh) })
	<-h.doneCh
}

// CurrentStatus returns the most recently confirmed status, as reported
// back by the server (which may differ from what was last sent, e.g. a
// server-driven stop).
func (h *Heartbeat) CurrentStatus() swarmtypes.WorkflowRunStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.currentStatus
}

// TimeSinceLastHeartbeat reports how long it has been since a heartbeat
// last succeeded (zero before the first success). Used by the
// Orchestrator to time its next sync.
func (h *Heartbeat) TimeSinceLastHeartbeat() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.lastHeartbeatAt.IsZero() {
		return 0
	}
	return time.Since(h.lastHeartbeatAt)
}

func (h *Heartbeat) run(ctx context.Context) {
	defer close(h.doneCh)
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.logger.Info().Dur("interval", h.interval).Msg("heartbeat started")

	for {
		select {
		case <-ticker.C:
			h.tick(ctx)
		case <-h.stopCh:
			h.logger.Info().Msg("heartbeat stopped")
			return
		case <-ctx.Done():
			h.logger.Info().Msg("heartbeat stopped by context cancellation")
			return
		}
	}
}

func (h *Heartbeat) tick(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, h.interval)
	defer cancel()

	reportBy := time.Duration(float64(h.interval) * h.reportBuffer)
	status, err := h.gw.LogHeartbeat(callCtx, h.workflowRunID, h.CurrentStatus(), reportBy)
	if err != nil {
		// A failed heartbeat is logged and retried next tick; it does
		// not by itself abort the run.
		h.logger.Warn().Err(err).Msg("heartbeat rpc failed")
		return
	}

	h.mu.Lock()
	h.currentStatus = status
	h.lastHeartbeatAt = time.Now()
	h.mu.Unlock()
}
