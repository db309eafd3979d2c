package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/swarmmetrics"
	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// statusGateway is the slice of Gateway the Orchestrator calls directly
// (everything else goes through Synchronizer/Scheduler). Expressed as an
// interface so tests can substitute a fake without standing up an HTTP
// server.
type statusGateway interface {
	UpdateStatus(ctx context.Context, workflowRunID int64, status swarmtypes.WorkflowRunStatus) (swarmtypes.WorkflowRunStatus, error)
	TerminateTaskInstances(ctx context.Context, workflowRunID int64) error
}

// heartbeatSource is the read side of Heartbeat the Orchestrator polls
// each loop iteration.
type heartbeatSource interface {
	CurrentStatus() swarmtypes.WorkflowRunStatus
	TimeSinceLastHeartbeat() time.Duration
}

// lifecycleHeartbeat is the subset of Heartbeat's lifecycle the
// Orchestrator drives directly.
type lifecycleHeartbeat interface {
	heartbeatSource
	Start(ctx context.Context)
	Stop()
}

// syncTicker is the Synchronizer surface the Orchestrator drives.
type syncTicker interface {
	Tick(ctx context.Context, fullSync bool, lastSync string, lookupPrior func(int64) (swarmtypes.TaskStatus, bool)) (swarmtypes.StateUpdate, error)
}

// schedulerTicker is the Scheduler surface the Orchestrator drives.
type schedulerTicker interface {
	Tick(ctx context.Context, state *swarmstate.SwarmState, timeout time.Duration) swarmtypes.StateUpdate
}

// Orchestrator drives one workflow-run's main loop to completion. Its
// SwarmState is only ever touched from the driver goroutine (by the
// Orchestrator itself and by the Scheduler tick it calls, which pops and
// restores ready-queue entries); there is no locking because nothing
// touches it concurrently (the Heartbeat goroutine communicates back
// only through its own mutex-guarded fields).
type Orchestrator struct {
	state *swarmstate.SwarmState
	gw    statusGateway
	hb    lifecycleHeartbeat
	sync  syncTicker
	sched schedulerTicker
	cfg   swarmtypes.Config

	distributorAlive func(ctx context.Context) bool

	lastFullSyncAt time.Time
	metrics        *MetricsCollector
	logger         zerolog.Logger
}

// New constructs an Orchestrator. distributorAlive is typically
// probe.AliveFunc wrapping a probe.ProcessChecker for the distributor
// subprocess's pid.
func New(
	state *swarmstate.SwarmState,
	gw statusGateway,
	hb lifecycleHeartbeat,
	sync syncTicker,
	sched schedulerTicker,
	cfg swarmtypes.Config,
	distributorAlive func(ctx context.Context) bool,
) *Orchestrator {
	return &Orchestrator{
		state:            state,
		gw:               gw,
		hb:               hb,
		sync:             sync,
		sched:            sched,
		cfg:              cfg,
		distributorAlive: distributorAlive,
		metrics:          NewMetricsCollector(cfg.HeartbeatInterval),
		logger:           swarmlog.WithComponent("orchestrator").With().Int64("workflow_run_id", state.WorkflowRunID).Logger(),
	}
}

// Run drives the workflow-run to completion: initialization, the main
// loop, and finalization. It always returns an OrchestratorResult
// describing the run's end state, even when it also returns an error —
// the error identifies why the run ended abnormally, the result is
// still as complete as the state at that point allows.
func (o *Orchestrator) Run(ctx context.Context) (*swarmtypes.OrchestratorResult, error) {
	start := time.Now()
	o.hb.Start(ctx)
	defer o.hb.Stop()

	if err := o.init(ctx); err != nil {
		return o.handleError(ctx, start, err)
	}

	if err := o.mainLoop(ctx, start); err != nil {
		if errors.Is(err, context.Canceled) {
			// A user interrupt propagates as-is: no ERROR transition, and
			// the run's status is left untouched.
			return o.buildResult(o.state.Status, time.Since(start)), err
		}
		return o.handleError(ctx, start, err)
	}

	return o.finalize(ctx, start)
}

// init performs the fringe computation (validating/adjusting any task
// that is already runnable at construction time, e.g. on a resumed run)
// and requests the RUNNING transition.
func (o *Orchestrator) init(ctx context.Context) error {
	for _, taskID := range o.sortedTaskIDs() {
		task := o.state.Tasks[taskID]
		switch task.Status {
		case swarmtypes.TaskAdjustingResources:
			o.adjustTaskResources(task)
			o.state.ReadyEnqueueBack(task.TaskID)
		case swarmtypes.TaskRegistering:
			if task.AllUpstreamsDone() {
				if err := o.validateTaskResources(task); err != nil {
					return err
				}
				o.state.ReadyEnqueueBack(task.TaskID)
			}
		}
	}

	if o.state.Status == swarmtypes.WFRRunning {
		return nil
	}
	actual, err := o.gw.UpdateStatus(ctx, o.state.WorkflowRunID, swarmtypes.WFRRunning)
	if err != nil {
		return fmt.Errorf("orchestrator init: %w", err)
	}
	if actual != swarmtypes.WFRRunning {
		return &swarmtypes.TransitionError{
			WorkflowRunID: o.state.WorkflowRunID,
			From:          o.state.Status,
			Requested:     swarmtypes.WFRRunning,
			Actual:        actual,
		}
	}
	o.state.Status = actual
	return nil
}

// shouldContinue reports whether the main loop has more work to do.
func (o *Orchestrator) shouldContinue() bool {
	if o.state.Status.IsServerStop() {
		return false
	}
	return !o.state.AllTasksFinal() && o.state.HasPendingWork()
}

// mainLoop runs the numbered step sequence from the Orchestrator's
// design until shouldContinue reports done or a fatal condition is
// reached. On normal exit it performs one last forced-full sync if any
// task remains non-final, so finalize never has to guess at stale
// state.
func (o *Orchestrator) mainLoop(ctx context.Context, start time.Time) error {
	for o.shouldContinue() {
		loopTimer := swarmmetrics.NewTimer()

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if o.cfg.Timeout > 0 && time.Since(start) >= o.cfg.Timeout {
			return swarmtypes.ErrWorkflowTimeout
		}

		if !o.distributorAlive(ctx) {
			return swarmtypes.ErrDistributorNotAlive
		}

		if hbStatus := o.hb.CurrentStatus(); hbStatus != "" && hbStatus != o.state.Status {
			o.state.Status = hbStatus
		}

		if o.state.Status.IsServerStop() {
			break
		}

		startNewWork := true
		if o.state.Status.IsTerminating() {
			done, err := o.handleTermination(ctx)
			if err != nil {
				return err
			}
			if done {
				break
			}
			startNewWork = false
		}

		if o.cfg.FailFast && o.state.FailedCount() > 0 {
			return swarmtypes.ErrFailFast
		}

		timeTillNextSync := o.cfg.HeartbeatInterval - o.hb.TimeSinceLastHeartbeat()
		if timeTillNextSync < 0 {
			timeTillNextSync = 0
		}

		var schedElapsed time.Duration
		if startNewWork && o.state.Status == swarmtypes.WFRRunning {
			tickStart := time.Now()
			update := o.sched.Tick(ctx, o.state, timeTillNextSync)
			if err := o.applyAndPropagate(update); err != nil {
				return err
			}
			schedElapsed = time.Since(tickStart)
		}

		if remaining := timeTillNextSync - schedElapsed; remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		forceFull := o.lastFullSyncAt.IsZero() ||
			(o.cfg.WedgedWorkflowSyncInterval > 0 && time.Since(o.lastFullSyncAt) > o.cfg.WedgedWorkflowSyncInterval)
		update, err := o.sync.Tick(ctx, forceFull, o.state.LastSync, o.lookupPrior)
		if err != nil {
			return err
		}
		if forceFull {
			o.lastFullSyncAt = time.Now()
		}
		if err := o.applyAndPropagate(update); err != nil {
			return err
		}

		loopTimer.ObserveDuration(swarmmetrics.OrchestratorLoopDuration)
		o.metrics.SampleIfDue(o.state, time.Now())

		if o.cfg.FailAfterNExecutions > 0 && o.state.NExecutions >= o.cfg.FailAfterNExecutions {
			return swarmtypes.ErrFailAfterNExecutions
		}
	}

	if !o.state.AllTasksFinal() && !o.state.Status.IsServerStop() {
		update, err := o.sync.Tick(ctx, true, o.state.LastSync, o.lookupPrior)
		if err != nil {
			return err
		}
		o.lastFullSyncAt = time.Now()
		return o.applyAndPropagate(update)
	}
	return nil
}

// handleTermination asks the server to terminate any in-flight task
// instances and reports whether the run has fully drained (no task
// remains instantiating, launched, or running).
func (o *Orchestrator) handleTermination(ctx context.Context) (done bool, err error) {
	for _, st := range []swarmtypes.TaskStatus{swarmtypes.TaskInstantiating, swarmtypes.TaskLaunched, swarmtypes.TaskRunning} {
		if len(o.state.TasksInStatus(st)) > 0 {
			if err := o.gw.TerminateTaskInstances(ctx, o.state.WorkflowRunID); err != nil {
				return false, fmt.Errorf("terminate task instances: %w", err)
			}
			return false, nil
		}
	}
	return true, nil
}

// lookupPrior reports a task's currently-cached status, used by
// Synchronizer to suppress no-op repeats.
func (o *Orchestrator) lookupPrior(taskID int64) (swarmtypes.TaskStatus, bool) {
	task, ok := o.state.Tasks[taskID]
	if !ok {
		return "", false
	}
	return task.Status, true
}

// applyAndPropagate funnels a StateUpdate through SwarmState and runs
// DAG propagation against exactly the tasks that changed.
func (o *Orchestrator) applyAndPropagate(update swarmtypes.StateUpdate) error {
	changed := o.state.ApplyUpdate(update)
	return o.processChangedTasks(changed)
}

// processChangedTasks implements the per-target-status propagation
// rules: a task reaching DONE increments the execution counter and
// offers its downstreams a chance to become runnable; ERROR_FATAL is
// counted only; a task that becomes runnable by reaching REGISTERING
// with all upstreams done is validated and enqueued, unless it was
// already enqueued via an upstream's DONE propagation in this same
// batch; ADJUSTING_RESOURCES is scaled and requeued at the front so it
// is retried before newly-ready work. When any task newly reached DONE,
// a percent-complete progress line is logged.
func (o *Orchestrator) processChangedTasks(changed []*swarmstate.SwarmTask) error {
	enqueuedViaPropagation := make(map[int64]struct{})
	newlyDone := 0

	for _, task := range changed {
		switch task.Status {
		case swarmtypes.TaskDone:
			o.state.NExecutions++
			newlyDone++
			swarmmetrics.TasksDoneTotal.Inc()
			for downstreamID := range task.DownstreamTaskIDs {
				downstream, ok := o.state.Tasks[downstreamID]
				if !ok {
					continue
				}
				downstream.NumUpstreamsDone++
				if downstream.Status == swarmtypes.TaskRegistering && downstream.AllUpstreamsDone() {
					if err := o.validateTaskResources(downstream); err != nil {
						return err
					}
					o.state.ReadyEnqueueBack(downstream.TaskID)
					enqueuedViaPropagation[downstream.TaskID] = struct{}{}
				}
			}

		case swarmtypes.TaskErrorFatal:
			swarmmetrics.TasksFailedTotal.Inc()

		case swarmtypes.TaskRegistering:
			if _, already := enqueuedViaPropagation[task.TaskID]; already {
				continue
			}
			if task.AllUpstreamsDone() {
				if err := o.validateTaskResources(task); err != nil {
					return err
				}
				o.state.ReadyEnqueueBack(task.TaskID)
			}

		case swarmtypes.TaskAdjustingResources:
			o.adjustTaskResources(task)
			o.state.ReadyEnqueueFront(task.TaskID)
		}
	}

	if total := len(o.state.Tasks); newlyDone > 0 && total > 0 {
		done := o.state.DoneCount()
		o.logger.Info().Int("done", done).Int("total", total).
			Msgf("%.1f%% of tasks complete", 100*float64(done)/float64(total))
	}
	return nil
}

// handleError attempts a best-effort transition to ERROR — swallowing
// any failure of that attempt, since the run is already failing for a
// different reason — then returns the original error alongside
// whatever result the state allows.
func (o *Orchestrator) handleError(ctx context.Context, start time.Time, cause error) (*swarmtypes.OrchestratorResult, error) {
	o.logger.Error().Err(cause).Msg("orchestrator run failed")

	var transitionErr *swarmtypes.TransitionError
	if !errors.As(cause, &transitionErr) {
		if _, err := o.gw.UpdateStatus(ctx, o.state.WorkflowRunID, swarmtypes.WFRError); err != nil {
			o.logger.Warn().Err(err).Msg("best-effort ERROR transition failed")
		}
	}
	o.state.Status = swarmtypes.WFRError

	return o.buildResult(swarmtypes.WFRError, time.Since(start)), cause
}

// finalize decides the run's terminal status from its final task mix
// and requests the matching transition, then builds the result.
func (o *Orchestrator) finalize(ctx context.Context, start time.Time) (*swarmtypes.OrchestratorResult, error) {
	final := o.state.Status
	switch {
	case o.state.DoneCount() == len(o.state.Tasks):
		final = swarmtypes.WFRDone
	case o.state.Status.IsTerminating():
		final = swarmtypes.WFRTerminated
	case o.state.Status.IsServerStop():
		final = o.state.Status
	default:
		final = swarmtypes.WFRError
	}

	if final != o.state.Status {
		if _, err := o.gw.UpdateStatus(ctx, o.state.WorkflowRunID, final); err != nil {
			o.logger.Warn().Err(err).Msg("finalize transition failed; reporting result anyway")
		}
	}
	o.state.Status = final

	return o.buildResult(final, time.Since(start)), nil
}

// buildResult snapshots SwarmState into the value returned to callers.
func (o *Orchestrator) buildResult(final swarmtypes.WorkflowRunStatus, elapsed time.Duration) *swarmtypes.OrchestratorResult {
	result := &swarmtypes.OrchestratorResult{
		FinalStatus:           final,
		ElapsedTime:           elapsed,
		TotalTasks:            len(o.state.Tasks),
		DoneCount:             o.state.DoneCount(),
		FailedCount:           o.state.FailedCount(),
		NumPreviouslyComplete: o.state.NumPreviouslyComplete,
		TaskFinalStatuses:     make(map[int64]swarmtypes.TaskStatus, len(o.state.Tasks)),
		DoneTaskIDs:           make(map[int64]struct{}),
		FailedTaskIDs:         make(map[int64]struct{}),
	}
	for id, task := range o.state.Tasks {
		result.TaskFinalStatuses[id] = task.Status
		switch task.Status {
		case swarmtypes.TaskDone:
			result.DoneTaskIDs[id] = struct{}{}
		case swarmtypes.TaskErrorFatal:
			result.FailedTaskIDs[id] = struct{}{}
		}
	}
	return result
}

// sortedTaskIDs returns task ids in ascending order, for deterministic
// iteration during init (server-assigned ids, so plain numeric order is
// enough to make replayed runs reproducible in tests).
func (o *Orchestrator) sortedTaskIDs() []int64 {
	ids := make([]int64, 0, len(o.state.Tasks))
	for id := range o.state.Tasks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
