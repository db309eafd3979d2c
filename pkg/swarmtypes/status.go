package swarmtypes

// TaskStatus is one of the single-letter task status codes the server
// speaks. The core never interprets these beyond the constants below.
type TaskStatus string

const (
	TaskRegistering        TaskStatus = "G"
	TaskQueued             TaskStatus = "Q"
	TaskInstantiating      TaskStatus = "I"
	TaskLaunched           TaskStatus = "O"
	TaskRunning            TaskStatus = "R"
	TaskDone               TaskStatus = "D"
	TaskAdjustingResources TaskStatus = "A"
	TaskErrorFatal         TaskStatus = "F"
)

// AllTaskStatuses enumerates every bucket SwarmState's taskStatusMap keeps,
// in no particular order.
var AllTaskStatuses = []TaskStatus{
	TaskRegistering,
	TaskQueued,
	TaskInstantiating,
	TaskLaunched,
	TaskRunning,
	TaskDone,
	TaskAdjustingResources,
	TaskErrorFatal,
}

// ActiveTaskStatuses are counted against workflow and array concurrency
// caps.
var ActiveTaskStatuses = []TaskStatus{TaskQueued, TaskInstantiating, TaskLaunched, TaskRunning}

// TerminalTaskStatuses are statuses a task never leaves once reached.
var TerminalTaskStatuses = []TaskStatus{TaskDone, TaskErrorFatal}

// IsTerminal reports whether a task in this status may not transition
// further for the lifetime of the run.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskErrorFatal
}

// WorkflowRunStatus is one of the single-letter workflow-run status codes.
type WorkflowRunStatus string

const (
	WFRBound       WorkflowRunStatus = "B"
	WFRRunning     WorkflowRunStatus = "R"
	WFRDone        WorkflowRunStatus = "D"
	WFRError       WorkflowRunStatus = "E"
	WFRTerminated  WorkflowRunStatus = "T"
	WFRStopped     WorkflowRunStatus = "S"
	WFRColdResume  WorkflowRunStatus = "C"
	WFRHotResume   WorkflowRunStatus = "H"
)

// ServerStopStatuses are statuses the server has already decided; the
// orchestrator must not attempt to transition away from them.
var ServerStopStatuses = map[WorkflowRunStatus]bool{
	WFRError:      true,
	WFRTerminated: true,
	WFRStopped:    true,
}

// TerminatingStatuses indicate a resume signal was delivered out-of-band
// by the server (typically via a heartbeat response).
var TerminatingStatuses = map[WorkflowRunStatus]bool{
	WFRColdResume: true,
	WFRHotResume:  true,
}

// IsServerStop reports whether the server has already decided this run
// must stop.
func (s WorkflowRunStatus) IsServerStop() bool { return ServerStopStatuses[s] }

// IsTerminating reports whether a resume signal is in effect.
func (s WorkflowRunStatus) IsTerminating() bool { return TerminatingStatuses[s] }
