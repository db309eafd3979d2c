/*
Package swarmstate holds the in-memory model of a single workflow-run: the
task graph, per-status buckets, the ready-to-run queue, the resource
cache, and the scalar run attributes the Orchestrator mutates on every
tick.

# Ownership

SwarmState exclusively owns every SwarmTask, SwarmArray, and cached
TaskResources for the run. Services (heartbeat, synchronizer, scheduler)
communicate status changes back as swarmtypes.StateUpdate values;
SwarmState.ApplyUpdate is the single funnel through which those values
become status mutations, the same way a replicated state machine accepts
one typed command and applies it under lock. The one exception is the
ready-to-run queue, which the scheduler pops and restores directly
during its tick on the driver goroutine.

	update := sched.Tick(ctx, state, timeout)
	changed := state.ApplyUpdate(update)
	// changed is exactly the set of tasks whose status differs from
	// before the call — propagation (DAG completions, newly-ready
	// enqueues) always runs against this set, never against the whole
	// task map.

# Arena-indexed DAG

Downstream edges are stored as task-id sets, not live pointers: a
SwarmTask's DownstreamTaskIDs is a map[int64]struct{}, and SwarmState.Tasks
is the one place an id resolves to a *SwarmTask. This makes the graph
impossible to leak a reference cycle through, unlike a set-of-pointers
model.
*/
package swarmstate
