package swarmstate

// SwarmArray groups tasks sharing a template and an independent
// concurrency cap. The cap may be revised downward by the server mid-run
// via a StateUpdate's ArrayLimits.
type SwarmArray struct {
	ArrayID               int64
	ArrayName             string
	MaxConcurrentlyRunning int
	TaskIDs               map[int64]struct{}
}

// NewSwarmArray constructs an empty array with the given cap.
func NewSwarmArray(arrayID int64, name string, maxConcurrentlyRunning int) *SwarmArray {
	return &SwarmArray{
		ArrayID:                arrayID,
		ArrayName:              name,
		MaxConcurrentlyRunning: maxConcurrentlyRunning,
		TaskIDs:                make(map[int64]struct{}),
	}
}

// AddTask registers a task as a member of this array.
func (a *SwarmArray) AddTask(taskID int64) {
	a.TaskIDs[taskID] = struct{}{}
}
