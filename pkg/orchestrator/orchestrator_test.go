package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// --- fakes -----------------------------------------------------------

type fakeGateway struct {
	mu                sync.Mutex
	updateStatusCalls []swarmtypes.WorkflowRunStatus
	updateStatusFunc  func(status swarmtypes.WorkflowRunStatus) (swarmtypes.WorkflowRunStatus, error)
	terminateCalls    int
	terminateErr      error
}

func (f *fakeGateway) UpdateStatus(ctx context.Context, workflowRunID int64, status swarmtypes.WorkflowRunStatus) (swarmtypes.WorkflowRunStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateStatusCalls = append(f.updateStatusCalls, status)
	if f.updateStatusFunc != nil {
		return f.updateStatusFunc(status)
	}
	return status, nil
}

func (f *fakeGateway) TerminateTaskInstances(ctx context.Context, workflowRunID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminateCalls++
	return f.terminateErr
}

type fakeHeartbeat struct {
	mu        sync.Mutex
	status    swarmtypes.WorkflowRunStatus
	sinceLast time.Duration
	started   bool
	stopped   bool
}

func (f *fakeHeartbeat) Start(ctx context.Context) { f.started = true }
func (f *fakeHeartbeat) Stop()                     { f.stopped = true }

func (f *fakeHeartbeat) CurrentStatus() swarmtypes.WorkflowRunStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeHeartbeat) TimeSinceLastHeartbeat() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sinceLast
}

func (f *fakeHeartbeat) setStatus(s swarmtypes.WorkflowRunStatus) {
	f.mu.Lock()
	f.status = s
	f.mu.Unlock()
}

// fakeSync replays a fixed sequence of StateUpdates, one per call;
// calls past the end of the sequence return an empty update.
type fakeSync struct {
	mu        sync.Mutex
	updates   []swarmtypes.StateUpdate
	ticks     []bool
	callCount int
	err       error
}

func (f *fakeSync) Tick(ctx context.Context, fullSync bool, lastSync string, lookupPrior func(int64) (swarmtypes.TaskStatus, bool)) (swarmtypes.StateUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks = append(f.ticks, fullSync)
	if f.err != nil {
		return swarmtypes.StateUpdate{}, f.err
	}
	var update swarmtypes.StateUpdate
	if f.callCount < len(f.updates) {
		update = f.updates[f.callCount]
	}
	f.callCount++
	return update, nil
}

// fakeScheduler immediately marks every ready task QUEUED, simulating a
// scheduler tick that always has room.
type fakeScheduler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeScheduler) Tick(ctx context.Context, state *swarmstate.SwarmState, timeout time.Duration) swarmtypes.StateUpdate {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	update := swarmtypes.StateUpdate{TaskStatuses: make(map[int64]swarmtypes.TaskStatus)}
	for state.ReadyLen() > 0 {
		id, ok := state.ReadyPopFront()
		if !ok {
			break
		}
		update.TaskStatuses[id] = swarmtypes.TaskQueued
	}
	return update
}

// --- test fixtures -----------------------------------------------------

func linearState() *swarmstate.SwarmState {
	s := swarmstate.NewSwarmState(1, 10, 10)
	s.Status = swarmtypes.WFRBound
	arr := swarmstate.NewSwarmArray(100, "a", 10)
	s.AddArray(arr)

	resources := &swarmtypes.TaskResources{Requested: map[string]any{"cores": 1.0}}
	t1 := swarmstate.NewSwarmTask(1, 100)
	t1.CurrentTaskResources = resources
	t2 := swarmstate.NewSwarmTask(2, 100)
	t2.CurrentTaskResources = resources
	t3 := swarmstate.NewSwarmTask(3, 100)
	t3.CurrentTaskResources = resources
	t1.AddDownstream(t2)
	t2.AddDownstream(t3)

	for _, t := range []*swarmstate.SwarmTask{t1, t2, t3} {
		arr.AddTask(t.TaskID)
		s.AddTask(t)
	}
	return s
}

func forkJoinState() *swarmstate.SwarmState {
	s := swarmstate.NewSwarmState(1, 10, 10)
	s.Status = swarmtypes.WFRBound
	arr := swarmstate.NewSwarmArray(100, "a", 10)
	s.AddArray(arr)

	resources := &swarmtypes.TaskResources{Requested: map[string]any{"cores": 1.0}}
	t1 := swarmstate.NewSwarmTask(1, 100)
	t2 := swarmstate.NewSwarmTask(2, 100)
	t3 := swarmstate.NewSwarmTask(3, 100)
	t4 := swarmstate.NewSwarmTask(4, 100)
	for _, t := range []*swarmstate.SwarmTask{t1, t2, t3, t4} {
		t.CurrentTaskResources = resources
	}
	t1.AddDownstream(t2)
	t1.AddDownstream(t3)
	t2.AddDownstream(t4)
	t3.AddDownstream(t4)

	for _, t := range []*swarmstate.SwarmTask{t1, t2, t3, t4} {
		arr.AddTask(t.TaskID)
		s.AddTask(t)
	}
	return s
}

func baseConfig() swarmtypes.Config {
	return swarmtypes.Config{
		HeartbeatInterval:          0,
		HeartbeatReportByBuffer:    1.5,
		WedgedWorkflowSyncInterval: 0,
		Timeout:                    time.Minute,
	}
}

func alwaysAlive(ctx context.Context) bool { return true }

// --- scenarios ---------------------------------------------------------

func TestRunDrivesLinearDAGToCompletion(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{updates: []swarmtypes.StateUpdate{
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskDone}},
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{2: swarmtypes.TaskDone}},
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{3: swarmtypes.TaskDone}},
	}}
	sched := &fakeScheduler{}

	o := New(state, gw, hb, sync, sched, baseConfig(), alwaysAlive)
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.WFRDone, result.FinalStatus)
	assert.Equal(t, 3, result.DoneCount)
	assert.Equal(t, 3, state.NExecutions)
	assert.True(t, hb.started)
	assert.True(t, hb.stopped)
}

func TestRunFinalizesAsErrorWhenATaskFailsWithoutFailFast(t *testing.T) {
	s := swarmstate.NewSwarmState(1, 10, 10)
	s.Status = swarmtypes.WFRBound
	arr := swarmstate.NewSwarmArray(100, "a", 10)
	s.AddArray(arr)
	t1 := swarmstate.NewSwarmTask(1, 100)
	t1.CurrentTaskResources = &swarmtypes.TaskResources{Requested: map[string]any{"cores": 1.0}}
	arr.AddTask(t1.TaskID)
	s.AddTask(t1)

	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{updates: []swarmtypes.StateUpdate{
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskErrorFatal}},
	}}
	sched := &fakeScheduler{}

	cfg := baseConfig()
	cfg.FailFast = false
	o := New(s, gw, hb, sync, sched, cfg, alwaysAlive)
	result, err := o.Run(context.Background())
	require.NoError(t, err)

	// All tasks are final (done+failed == total) but none is DONE, so the
	// run must report ERROR, not DONE.
	assert.Equal(t, swarmtypes.WFRError, result.FinalStatus)
	assert.Equal(t, 0, result.DoneCount)
	assert.Equal(t, 1, result.FailedCount)
}

func TestRunStopsOnFailFastAfterTaskFails(t *testing.T) {
	state := forkJoinState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{updates: []swarmtypes.StateUpdate{
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskDone}},
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{2: swarmtypes.TaskErrorFatal, 3: swarmtypes.TaskRunning}},
	}}
	sched := &fakeScheduler{}

	cfg := baseConfig()
	cfg.FailFast = true
	o := New(state, gw, hb, sync, sched, cfg, alwaysAlive)

	result, err := o.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, swarmtypes.ErrFailFast))
	assert.Equal(t, swarmtypes.WFRError, result.FinalStatus)
	assert.Equal(t, 1, result.FailedCount)
	assert.Contains(t, gw.updateStatusCalls, swarmtypes.WFRError)
}

func TestRunHandlesServerDrivenTerminationWithNoActiveTasks(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRColdResume}
	sync := &fakeSync{}
	sched := &fakeScheduler{}

	o := New(state, gw, hb, sync, sched, baseConfig(), alwaysAlive)
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, swarmtypes.WFRTerminated, result.FinalStatus)
	assert.Equal(t, 0, gw.terminateCalls)
	assert.Contains(t, gw.updateStatusCalls, swarmtypes.WFRTerminated)
}

func TestRunTerminatesActiveInstancesBeforeReportingDone(t *testing.T) {
	state := linearState()
	state.ApplyUpdate(swarmtypes.StateUpdate{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskRunning}})

	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRColdResume}
	sync := &fakeSync{updates: []swarmtypes.StateUpdate{
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskDone}},
	}}
	sched := &fakeScheduler{}

	o := New(state, gw, hb, sync, sched, baseConfig(), alwaysAlive)
	result, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gw.terminateCalls)
	assert.Equal(t, swarmtypes.WFRTerminated, result.FinalStatus)
}

func TestRunForcesFullSyncRepeatedlyWhenWedgedIntervalIsTiny(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{updates: []swarmtypes.StateUpdate{
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{1: swarmtypes.TaskDone}},
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{2: swarmtypes.TaskDone}},
		{TaskStatuses: map[int64]swarmtypes.TaskStatus{3: swarmtypes.TaskDone}},
	}}
	sched := &fakeScheduler{}

	cfg := baseConfig()
	cfg.WedgedWorkflowSyncInterval = time.Nanosecond
	o := New(state, gw, hb, sync, sched, cfg, alwaysAlive)

	_, err := o.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sync.ticks, 3)
	for i, forced := range sync.ticks {
		assert.Truef(t, forced, "tick %d should have been forced full given a near-zero wedged interval", i)
	}
}

func TestRunPropagatesDistributorNotAlive(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{}
	sched := &fakeScheduler{}

	o := New(state, gw, hb, sync, sched, baseConfig(), func(ctx context.Context) bool { return false })
	_, err := o.Run(context.Background())
	assert.True(t, errors.Is(err, swarmtypes.ErrDistributorNotAlive))
	assert.Contains(t, gw.updateStatusCalls, swarmtypes.WFRError)
}

func TestRunPropagatesWorkflowTimeout(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	hb := &fakeHeartbeat{status: swarmtypes.WFRRunning}
	sync := &fakeSync{}
	sched := &fakeScheduler{}

	cfg := baseConfig()
	cfg.Timeout = time.Nanosecond
	o := New(state, gw, hb, sync, sched, cfg, alwaysAlive)

	time.Sleep(time.Millisecond)
	_, err := o.Run(context.Background())
	assert.True(t, errors.Is(err, swarmtypes.ErrWorkflowTimeout))
}

// --- unit-level coverage of the propagation/resource helpers -----------

func TestProcessChangedTasksAvoidsDoubleEnqueueFromPropagation(t *testing.T) {
	state := linearState()
	o := New(state, &fakeGateway{}, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	// Task 1 finishes and task 2 should become runnable via DOWNSTREAM
	// propagation; a same-batch REGISTERING entry for task 2 must not
	// enqueue it a second time.
	state.Tasks[1].Status = swarmtypes.TaskDone
	changed := []*swarmstate.SwarmTask{state.Tasks[1], state.Tasks[2]}
	require.NoError(t, o.processChangedTasks(changed))

	assert.Equal(t, 1, state.ReadyLen())
	assert.Equal(t, 1, state.NExecutions)
}

func TestProcessChangedTasksReEnqueuesAdjustingResourcesAtFront(t *testing.T) {
	state := linearState()
	o := New(state, &fakeGateway{}, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	state.ReadyEnqueueBack(1)
	state.Tasks[2].Status = swarmtypes.TaskAdjustingResources
	state.Tasks[2].ResourceScales = map[string]swarmtypes.ResourceScale{"cores": {Factor: 0.5}}

	require.NoError(t, o.processChangedTasks([]*swarmstate.SwarmTask{state.Tasks[2]}))

	front, ok := state.ReadyPopFront()
	require.True(t, ok)
	assert.Equal(t, int64(2), front)
	assert.Equal(t, 0.5, state.Tasks[2].CurrentTaskResources.Requested["cores"])
}

func TestValidateTaskResourcesRejectsInvalidCallable(t *testing.T) {
	state := linearState()
	o := New(state, &fakeGateway{}, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	state.Tasks[1].ComputeResourcesCallable = func() (map[string]any, error) { return nil, nil }
	err := o.validateTaskResources(state.Tasks[1])
	assert.True(t, errors.Is(err, swarmtypes.ErrCallableInvalid))
}

func TestValidateTaskResourcesMergesCallableOverridesOnce(t *testing.T) {
	state := linearState()
	o := New(state, &fakeGateway{}, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	calls := 0
	state.Tasks[1].ComputeResourcesCallable = func() (map[string]any, error) {
		calls++
		return map[string]any{"memory_gb": 4.0}, nil
	}
	require.NoError(t, o.validateTaskResources(state.Tasks[1]))
	assert.Nil(t, state.Tasks[1].ComputeResourcesCallable)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 4.0, state.Tasks[1].CurrentTaskResources.Requested["memory_gb"])
	assert.Equal(t, 1.0, state.Tasks[1].CurrentTaskResources.Requested["cores"])
}

func TestInitEnqueuesAlreadyRunnableTasksAndRequestsRunning(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{}
	o := New(state, gw, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	require.NoError(t, o.init(context.Background()))
	assert.Equal(t, 1, state.ReadyLen())
	assert.Equal(t, []swarmtypes.WorkflowRunStatus{swarmtypes.WFRRunning}, gw.updateStatusCalls)
	assert.Equal(t, swarmtypes.WFRRunning, state.Status)
}

func TestInitReturnsTransitionErrorWhenServerRefusesRunning(t *testing.T) {
	state := linearState()
	gw := &fakeGateway{updateStatusFunc: func(swarmtypes.WorkflowRunStatus) (swarmtypes.WorkflowRunStatus, error) {
		return swarmtypes.WFRStopped, nil
	}}
	o := New(state, gw, &fakeHeartbeat{}, &fakeSync{}, &fakeScheduler{}, baseConfig(), alwaysAlive)

	err := o.init(context.Background())
	var transitionErr *swarmtypes.TransitionError
	require.True(t, errors.As(err, &transitionErr))
	assert.Equal(t, swarmtypes.WFRStopped, transitionErr.Actual)
}
