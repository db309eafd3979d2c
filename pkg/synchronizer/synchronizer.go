package synchronizer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarmcore/pkg/gateway"
	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/swarmmetrics"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// Synchronizer performs sync ticks against the server. It is stateless
// beyond the known task/array id sets it was constructed with.
type Synchronizer struct {
	gw         *gateway.Gateway
	workflowID int64

	knownTaskIDs  map[int64]struct{}
	knownArrayIDs []int64

	logger zerolog.Logger
}

// New constructs a Synchronizer scoped to one workflow. knownTaskIDs and
// knownArrayIDs bound which ids from the server response are honored;
// everything else is a foreign id and is dropped.
func New(gw *gateway.Gateway, workflowID int64, knownTaskIDs []int64, knownArrayIDs []int64) *Synchronizer {
	ids := make(map[int64]struct{}, len(knownTaskIDs))
	for _, id := range knownTaskIDs {
		ids[id] = struct{}{}
	}
	return &Synchronizer{
		gw:            gw,
		workflowID:    workflowID,
		knownTaskIDs:  ids,
		knownArrayIDs: knownArrayIDs,
		logger:        swarmlog.WithComponent("synchronizer").With().Int64("workflow_id", workflowID).Logger(),
	}
}

// priorStatus reports the cached status of a task, used to suppress
// no-op repeats in the returned StateUpdate.
type priorStatus func(taskID int64) (swarmtypes.TaskStatus, bool)

// Tick performs one sync: fetches task-status deltas (full or
// incremental) plus the workflow and per-array concurrency caps, and
// folds everything into a StateUpdate. lookupPrior supplies each task's
// currently-cached status so only genuine changes are carried forward.
func (s *Synchronizer) Tick(ctx context.Context, fullSync bool, lastSync string, lookupPrior priorStatus) (swarmtypes.StateUpdate, error) {
	kind := "incremental"
	if fullSync {
		kind = "full"
	}
	timer := swarmmetrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(swarmmetrics.SyncDuration, kind)
		swarmmetrics.SyncCyclesTotal.WithLabelValues(kind).Inc()
	}()

	raw, err := s.gw.GetTaskStatusUpdates(ctx, s.workflowID, lastSync, fullSync)
	if err != nil {
		return swarmtypes.StateUpdate{}, fmt.Errorf("synchronizer tick: %w", err)
	}

	update := swarmtypes.StateUpdate{
		TaskStatuses: make(map[int64]swarmtypes.TaskStatus),
		SyncTime:     raw.SyncTime,
		ArrayLimits:  make(map[int64]int),
	}

	for taskID, newStatus := range raw.TaskStatuses {
		if _, known := s.knownTaskIDs[taskID]; !known {
			continue
		}
		if prior, ok := lookupPrior(taskID); ok && prior == newStatus {
			continue
		}
		update.TaskStatuses[taskID] = newStatus
	}

	workflowCap, err := s.gw.GetWorkflowConcurrency(ctx, s.workflowID)
	if err != nil {
		return swarmtypes.StateUpdate{}, fmt.Errorf("synchronizer tick: %w", err)
	}
	update.MaxConcurrentlyRunning = &workflowCap

	for _, arrayID := range s.knownArrayIDs {
		limit, err := s.gw.GetArrayConcurrency(ctx, arrayID)
		if err != nil {
			return swarmtypes.StateUpdate{}, fmt.Errorf("synchronizer tick: array %d: %w", arrayID, err)
		}
		update.ArrayLimits[arrayID] = limit
	}

	s.logger.Debug().Str("kind", kind).Int("changed_tasks", len(update.TaskStatuses)).Msg("sync tick complete")
	return update, nil
}
