package swarmstate

import "github.com/cuemby/swarmcore/pkg/swarmtypes"

// SwarmState is the aggregate root for one workflow-run. It is owned by
// the Orchestrator's single driver goroutine; no locking is required
// because it is only ever touched from that goroutine. Task statuses
// change only through ApplyUpdate; the Scheduler, called on the same
// goroutine, also pops and restores ready-queue entries directly.
type SwarmState struct {
	WorkflowRunID int64
	WorkflowID    int64
	Status        swarmtypes.WorkflowRunStatus

	Tasks  map[int64]*SwarmTask
	Arrays map[int64]*SwarmArray

	taskStatusMap map[swarmtypes.TaskStatus]map[int64]*SwarmTask
	ready         *readyQueue

	resourceCache map[string]*swarmtypes.TaskResources

	LastSync               string
	MaxConcurrentlyRunning int

	// NumPreviouslyComplete snapshots the DONE count at build time, for
	// resumed runs where some tasks were already finished in a prior
	// attempt.
	NumPreviouslyComplete int

	// NExecutions is a test-hook counter incremented once per task that
	// transitions to DONE.
	NExecutions int
}

// NewSwarmState creates an empty aggregate. Callers populate Tasks/Arrays
// via AddTask/AddArray before the run starts.
func NewSwarmState(workflowRunID, workflowID int64, maxConcurrentlyRunning int) *SwarmState {
	s := &SwarmState{
		WorkflowRunID:          workflowRunID,
		WorkflowID:             workflowID,
		Status:                 swarmtypes.WFRBound,
		Tasks:                  make(map[int64]*SwarmTask),
		Arrays:                 make(map[int64]*SwarmArray),
		taskStatusMap:          make(map[swarmtypes.TaskStatus]map[int64]*SwarmTask),
		ready:                  newReadyQueue(),
		resourceCache:          make(map[string]*swarmtypes.TaskResources),
		MaxConcurrentlyRunning: maxConcurrentlyRunning,
	}
	for _, st := range swarmtypes.AllTaskStatuses {
		s.taskStatusMap[st] = make(map[int64]*SwarmTask)
	}
	return s
}

// AddTask registers a task and buckets it by its current status.
func (s *SwarmState) AddTask(t *SwarmTask) {
	s.Tasks[t.TaskID] = t
	s.taskStatusMap[t.Status][t.TaskID] = t
	if t.Status == swarmtypes.TaskDone {
		s.NumPreviouslyComplete++
	}
}

// AddArray registers an array.
func (s *SwarmState) AddArray(a *SwarmArray) {
	s.Arrays[a.ArrayID] = a
}

// TasksInStatus returns the live bucket for a status; callers must not
// mutate the returned map directly (use ApplyUpdate).
func (s *SwarmState) TasksInStatus(status swarmtypes.TaskStatus) map[int64]*SwarmTask {
	return s.taskStatusMap[status]
}

// ActiveCount sums the task buckets counted against concurrency caps.
func (s *SwarmState) ActiveCount() int {
	n := 0
	for _, st := range swarmtypes.ActiveTaskStatuses {
		n += len(s.taskStatusMap[st])
	}
	return n
}

// ActiveCountInArray sums the active buckets restricted to one array's
// tasks.
func (s *SwarmState) ActiveCountInArray(arrayID int64) int {
	n := 0
	for _, st := range swarmtypes.ActiveTaskStatuses {
		for id := range s.taskStatusMap[st] {
			if s.Tasks[id].ArrayID == arrayID {
				n++
			}
		}
	}
	return n
}

// DoneCount returns the number of tasks that reached DONE.
func (s *SwarmState) DoneCount() int { return len(s.taskStatusMap[swarmtypes.TaskDone]) }

// FailedCount returns the number of tasks that reached ERROR_FATAL.
func (s *SwarmState) FailedCount() int { return len(s.taskStatusMap[swarmtypes.TaskErrorFatal]) }

// AllTasksFinal reports whether every task has reached a terminal status.
func (s *SwarmState) AllTasksFinal() bool {
	return s.DoneCount()+s.FailedCount() == len(s.Tasks)
}

// HasPendingWork reports whether there is in-flight or ready-to-run work.
func (s *SwarmState) HasPendingWork() bool {
	return s.ActiveCount() > 0 || s.ready.Len() > 0
}

// ReadyEnqueueBack pushes a task id to the tail of ready_to_run.
func (s *SwarmState) ReadyEnqueueBack(taskID int64) { s.ready.PushBack(taskID) }

// ReadyEnqueueFront pushes a task id to the head of ready_to_run.
func (s *SwarmState) ReadyEnqueueFront(taskID int64) { s.ready.PushFront(taskID) }

// ReadyPopFront pops the head of ready_to_run.
func (s *SwarmState) ReadyPopFront() (int64, bool) { return s.ready.PopFront() }

// ReadyLen returns the current ready-to-run depth.
func (s *SwarmState) ReadyLen() int { return s.ready.Len() }

// ReadySnapshot returns the current ready-to-run contents, head first.
func (s *SwarmState) ReadySnapshot() []int64 { return s.ready.Snapshot() }

// InternResources returns the cached TaskResources equal by value to r,
// registering r itself if no equal value is cached yet. Many tasks
// requesting identical resources end up sharing one *TaskResources.
func (s *SwarmState) InternResources(r swarmtypes.TaskResources) *swarmtypes.TaskResources {
	h := r.Hash()
	if cached, ok := s.resourceCache[h]; ok {
		return cached
	}
	cp := r
	s.resourceCache[h] = &cp
	return &cp
}

// ApplyUpdate is the single funnel through which a service's StateUpdate
// becomes a mutation. It is idempotent: re-applying the same update after
// it has already taken effect changes nothing and returns an empty
// changed-set. It returns the tasks whose status actually changed, in
// the order their ids were iterated from the update — callers
// (Orchestrator) run DAG propagation against exactly this set.
func (s *SwarmState) ApplyUpdate(u swarmtypes.StateUpdate) []*SwarmTask {
	var changed []*SwarmTask

	for taskID, newStatus := range u.TaskStatuses {
		task, ok := s.Tasks[taskID]
		if !ok {
			// Foreign id (not part of this run's graph); ignore.
			continue
		}
		if task.Status == newStatus || task.Status.IsTerminal() {
			// No-op repeat, or a task already terminal for this run.
			continue
		}
		delete(s.taskStatusMap[task.Status], taskID)
		task.Status = newStatus
		s.taskStatusMap[newStatus][taskID] = task
		changed = append(changed, task)
	}

	if u.WorkflowRunStatus != "" {
		s.Status = u.WorkflowRunStatus
	}
	if u.SyncTime != "" {
		s.LastSync = u.SyncTime
	}
	if u.MaxConcurrentlyRunning != nil {
		s.MaxConcurrentlyRunning = *u.MaxConcurrentlyRunning
	}
	for arrayID, limit := range u.ArrayLimits {
		if a, ok := s.Arrays[arrayID]; ok {
			a.MaxConcurrentlyRunning = limit
		}
	}

	return changed
}
