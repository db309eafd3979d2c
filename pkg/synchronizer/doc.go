/*
Package synchronizer performs one stateless sync tick against the
server: fetch task-status deltas (or a full snapshot), fetch concurrency
caps, and fold the result into a swarmtypes.StateUpdate for SwarmState to
apply. It holds no mutable run state of its own beyond the set of known
task and array ids it was built with, which it uses to drop foreign ids
and to filter out no-op status repeats before they ever reach
ApplyUpdate.

Tick is a metrics-timed function invoked synchronously by its owner
rather than an independent ticker goroutine; the polling loop itself is
left to the caller (the Orchestrator).
*/
package synchronizer
