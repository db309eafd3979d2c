package swarmtypes

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal conditions the orchestrator's main loop
// can raise. Each mirrors a distinct exception type in the source system
// rather than a single generic error, so callers can tell a transition
// refusal from a dead distributor from a test-only abort.
var (
	// ErrDistributorNotAlive is raised when the injected liveness probe
	// reports the distributor process is no longer running.
	ErrDistributorNotAlive = errors.New("distributor process unexpectedly stopped")

	// ErrWorkflowTimeout is raised when the main loop exceeds its
	// configured wall-clock timeout. Tasks already submitted keep running
	// on the remote cluster; the run itself must be restarted.
	ErrWorkflowTimeout = errors.New("workflow run exceeded its timeout; submitted tasks will keep running remotely")

	// ErrFailFast is raised when fail_fast is enabled and at least one
	// task has reached ERROR_FATAL.
	ErrFailFast = errors.New("fail-fast: stopping after first task failure")

	// ErrTransition is raised when the server refuses a requested
	// workflow-run status transition (returns a status other than the
	// one requested).
	ErrTransition = errors.New("workflow run status transition refused by server")

	// ErrCallableInvalid is raised when a task's compute_resources_callable
	// returns something other than a resource-override mapping.
	ErrCallableInvalid = errors.New("compute resources callable returned an invalid object")

	// ErrFailAfterNExecutions is a test-only hook abort.
	ErrFailAfterNExecutions = errors.New("workflow run asked to fail after n executions")
)

// TransitionError carries the attempted and server-returned statuses
// alongside ErrTransition so callers can log both without re-parsing a
// formatted string.
type TransitionError struct {
	WorkflowRunID int64
	From          WorkflowRunStatus
	Requested     WorkflowRunStatus
	Actual        WorkflowRunStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("workflow run %d: cannot transition from %s to %s (server set %s)",
		e.WorkflowRunID, e.From, e.Requested, e.Actual)
}

func (e *TransitionError) Unwrap() error { return ErrTransition }
