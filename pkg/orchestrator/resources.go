package orchestrator

import (
	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// validateTaskResources prepares a task's resources the moment it
// becomes runnable: invoking its compute_resources_callable at most
// once, merging any overrides over what was requested, coercing the
// result, and interning it so tasks sharing identical resources share
// one cached value (and therefore one bind_task_resources call).
func (o *Orchestrator) validateTaskResources(task *swarmstate.SwarmTask) error {
	if task.ComputeResourcesCallable != nil {
		overrides, err := task.ComputeResourcesCallable()
		if err != nil || overrides == nil {
			return swarmtypes.ErrCallableInvalid
		}

		merged := make(map[string]any, len(task.CurrentTaskResources.Requested)+len(overrides))
		for k, v := range task.CurrentTaskResources.Requested {
			merged[k] = v
		}
		for k, v := range overrides {
			merged[k] = v
		}
		fresh := swarmtypes.TaskResources{Requested: merged, Queue: task.CurrentTaskResources.Queue}
		task.CurrentTaskResources = &fresh
		task.ComputeResourcesCallable = nil
	}

	coerced := task.CurrentTaskResources.CoerceResources()
	task.CurrentTaskResources = o.state.InternResources(coerced)
	return nil
}

// adjustTaskResources scales a task's resources after a failed attempt
// and interns the result, same as validateTaskResources.
func (o *Orchestrator) adjustTaskResources(task *swarmstate.SwarmTask) {
	adjusted := task.CurrentTaskResources.AdjustResources(task.ResourceScales, task.FallbackQueues)
	task.CurrentTaskResources = o.state.InternResources(adjusted)
}
