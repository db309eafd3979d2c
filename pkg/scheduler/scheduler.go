package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/swarmcore/pkg/gateway"
	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/swarmmetrics"
	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

const maxBatchSize = 500

// Scheduler batches and queues ready-to-run tasks against the server.
// It carries no state of its own across ticks beyond the run identity
// it was constructed with; all scheduling decisions are read from the
// SwarmState passed into Tick.
type Scheduler struct {
	gw            *gateway.Gateway
	workflowRunID int64
	clusterID     string
	logger        zerolog.Logger
}

// New constructs a Scheduler for one workflow-run.
func New(gw *gateway.Gateway, workflowRunID int64, clusterID string) *Scheduler {
	return &Scheduler{
		gw:            gw,
		workflowRunID: workflowRunID,
		clusterID:     clusterID,
		logger:        swarmlog.WithComponent("scheduler").With().Int64("workflow_run_id", workflowRunID).Logger(),
	}
}

// capacityBook tracks the remaining workflow and per-array capacity for
// one tick, computed once from SwarmState at tick entry.
type capacityBook struct {
	workflow int
	array    map[int64]int
}

func newCapacityBook(state *swarmstate.SwarmState) *capacityBook {
	cb := &capacityBook{
		workflow: state.MaxConcurrentlyRunning - state.ActiveCount(),
		array:    make(map[int64]int, len(state.Arrays)),
	}
	for id, a := range state.Arrays {
		cb.array[id] = a.MaxConcurrentlyRunning - state.ActiveCountInArray(id)
	}
	return cb
}

func (cb *capacityBook) hasRoom(arrayID int64) bool {
	return cb.workflow > 0 && cb.array[arrayID] > 0
}

func (cb *capacityBook) consume(arrayID int64) {
	cb.workflow--
	cb.array[arrayID]--
}

// Tick processes ready-to-run work until the queue drains, capacity is
// exhausted, the context is cancelled, or elapsed time reaches timeout
// (timeout < 0 means unlimited). It returns a StateUpdate merging every
// batch's server-assigned statuses.
func (s *Scheduler) Tick(ctx context.Context, state *swarmstate.SwarmState, timeout time.Duration) swarmtypes.StateUpdate {
	timer := swarmmetrics.NewTimer()
	defer timer.ObserveDuration(swarmmetrics.SchedulerTickDuration)

	start := time.Now()
	capBook := newCapacityBook(state)
	update := swarmtypes.StateUpdate{TaskStatuses: make(map[int64]swarmtypes.TaskStatus)}

	var unschedulable []int64
	defer func() {
		// Restore in original relative order: the first-popped
		// unschedulable task must end up frontmost again.
		for i := len(unschedulable) - 1; i >= 0; i-- {
			state.ReadyEnqueueFront(unschedulable[i])
		}
	}()

	for state.ReadyLen() > 0 {
		if timeout >= 0 && time.Since(start) >= timeout {
			break
		}
		select {
		case <-ctx.Done():
			return update
		default:
		}

		taskID, ok := state.ReadyPopFront()
		if !ok {
			break
		}
		task, ok := state.Tasks[taskID]
		if !ok {
			continue
		}
		if !capBook.hasRoom(task.ArrayID) {
			unschedulable = append(unschedulable, taskID)
			continue
		}

		batchArrayID := task.ArrayID
		batchResources := task.CurrentTaskResources
		batchTaskIDs := []int64{taskID}
		capBook.consume(batchArrayID)

		examine := state.ReadyLen()
		for i := 0; i < examine && len(batchTaskIDs) < maxBatchSize; i++ {
			nextID, ok := state.ReadyPopFront()
			if !ok {
				break
			}
			nextTask, ok := state.Tasks[nextID]
			if !ok {
				continue
			}
			compatible := nextTask.ArrayID == batchArrayID &&
				nextTask.CurrentTaskResources != nil && batchResources != nil &&
				nextTask.CurrentTaskResources.Equal(*batchResources) &&
				len(batchTaskIDs) < maxBatchSize &&
				capBook.hasRoom(nextTask.ArrayID)
			if !compatible {
				state.ReadyEnqueueBack(nextID)
				continue
			}
			batchTaskIDs = append(batchTaskIDs, nextID)
			capBook.consume(nextTask.ArrayID)
		}

		if !s.flushBatch(ctx, state, batchArrayID, batchTaskIDs, batchResources, &update) {
			return update
		}
	}

	return update
}

// flushBatch binds the batch's resources if needed and queues it.
// Returns false if a queueing or binding error occurred (the caller
// should stop the tick); the batch's tasks are restored to the front
// whenever they weren't successfully queued.
func (s *Scheduler) flushBatch(ctx context.Context, state *swarmstate.SwarmState, arrayID int64, taskIDs []int64, resources *swarmtypes.TaskResources, update *swarmtypes.StateUpdate) bool {
	resourcesID := fmt.Sprintf("%d", resources.ID)
	if !resources.IsBound {
		bound, err := s.gw.BindTaskResources(ctx, *resources)
		if err != nil {
			s.logger.Warn().Err(err).Msg("resource binding failed, restoring batch to front")
			for i := len(taskIDs) - 1; i >= 0; i-- {
				state.ReadyEnqueueFront(taskIDs[i])
			}
			return false
		}
		resourcesID = bound
		resources.IsBound = true
	}

	statuses, err := s.gw.QueueTaskBatch(ctx, arrayID, taskIDs, resourcesID, s.workflowRunID, s.clusterID)
	if err != nil {
		s.logger.Warn().Err(err).Int("batch_size", len(taskIDs)).Msg("queue_task_batch failed, restoring batch to front")
		for i := len(taskIDs) - 1; i >= 0; i-- {
			state.ReadyEnqueueFront(taskIDs[i])
		}
		return false
	}

	for taskID, status := range statuses {
		update.TaskStatuses[taskID] = status
	}
	swarmmetrics.BatchesQueuedTotal.Inc()
	swarmmetrics.BatchSize.Observe(float64(len(taskIDs)))
	s.logger.Debug().Int64("array_id", arrayID).Int("batch_size", len(taskIDs)).Msg("batch queued")
	return true
}
