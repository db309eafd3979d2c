package swarmtypes

// StateUpdate is the immutable message every service produces and that
// SwarmState.ApplyUpdate consumes. Any field may be empty/absent; applying
// an update with no fields set is a documented no-op.
type StateUpdate struct {
	// TaskStatuses maps task id to its new status. Only entries whose
	// status actually differs from the task's current status need be
	// present; ApplyUpdate re-checks regardless.
	TaskStatuses map[int64]TaskStatus

	// WorkflowRunStatus, if non-empty, is the workflow run's new status.
	WorkflowRunStatus WorkflowRunStatus

	// SyncTime, if non-empty, is the server-issued token to store as the
	// new last-sync watermark.
	SyncTime string

	// MaxConcurrentlyRunning, if non-nil, replaces the workflow-wide
	// concurrency cap.
	MaxConcurrentlyRunning *int

	// ArrayLimits maps array id to a revised per-array concurrency cap.
	ArrayLimits map[int64]int
}

// IsEmpty reports whether applying this update would be a no-op.
func (u StateUpdate) IsEmpty() bool {
	return len(u.TaskStatuses) == 0 &&
		u.WorkflowRunStatus == "" &&
		u.SyncTime == "" &&
		u.MaxConcurrentlyRunning == nil &&
		len(u.ArrayLimits) == 0
}
