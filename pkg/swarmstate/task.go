package swarmstate

import "github.com/cuemby/swarmcore/pkg/swarmtypes"

// ResourcesCallable is invoked at most once, at validation time, to
// produce dynamic resource overrides. It must return a mapping; any other
// outcome is ErrCallableInvalid.
type ResourcesCallable func() (map[string]any, error)

// SwarmTask is a single unit of work inside the run. TaskID is the
// opaque identifier the server assigned; all graph edges are expressed
// as ids, resolved through SwarmState.Tasks.
type SwarmTask struct {
	TaskID  int64
	ArrayID int64
	Status  swarmtypes.TaskStatus

	NumUpstreams     int
	NumUpstreamsDone int

	// DownstreamTaskIDs are forward edges only; the build step (external
	// to this core) is responsible for rejecting cycles.
	DownstreamTaskIDs map[int64]struct{}

	MaxAttempts int

	CurrentTaskResources *swarmtypes.TaskResources

	// ComputeResourcesCallable is consumed at-most-once by resource
	// validation; nil once invoked.
	ComputeResourcesCallable ResourcesCallable

	ResourceScales map[string]swarmtypes.ResourceScale
	FallbackQueues []swarmtypes.QueueHandle

	Cluster string
}

// AllUpstreamsDone reports whether every upstream of this task has
// reached DONE.
func (t *SwarmTask) AllUpstreamsDone() bool {
	return t.NumUpstreamsDone >= t.NumUpstreams
}

// NewSwarmTask constructs a task with its downstream set initialized and
// status defaulted to REGISTERING, as tasks are built by the (external)
// client DAG builder.
func NewSwarmTask(taskID, arrayID int64) *SwarmTask {
	return &SwarmTask{
		TaskID:            taskID,
		ArrayID:           arrayID,
		Status:            swarmtypes.TaskRegistering,
		DownstreamTaskIDs: make(map[int64]struct{}),
	}
}

// AddDownstream records a forward edge to another task, incrementing the
// downstream task's upstream counter — mirroring how the client builder
// wires num_upstreams while constructing the graph.
func (t *SwarmTask) AddDownstream(downstream *SwarmTask) {
	t.DownstreamTaskIDs[downstream.TaskID] = struct{}{}
	downstream.NumUpstreams++
}
