package swarmtypes

import "time"

// OrchestratorResult is the value returned to the caller when a run's
// main loop exits (possibly with FinalStatus == WFRError). Run returns
// one alongside an error too, when the run ended abnormally.
type OrchestratorResult struct {
	FinalStatus           WorkflowRunStatus
	ElapsedTime           time.Duration
	TotalTasks            int
	DoneCount             int
	FailedCount           int
	NumPreviouslyComplete int
	TaskFinalStatuses     map[int64]TaskStatus
	DoneTaskIDs           map[int64]struct{}
	FailedTaskIDs         map[int64]struct{}
}
