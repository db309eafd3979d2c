/*
Package orchestrator is the per-workflow-run driver: it owns SwarmState,
runs the Heartbeat's background goroutine, and drives Synchronizer and
Scheduler ticks from a single cooperative main loop.

There is no Orchestrator-side concurrency beyond the Heartbeat goroutine;
everything else happens on the caller's goroutine inside Run. Control
flow that the original implementation expressed with exceptions
(timeout, distributor-dead, fail-fast, an invalid resource callable) is
expressed here as typed errors returned up through the call stack, the
idiomatic-Go stand-in for a tagged continue/stop outcome.

It is the object that owns the run's mutable aggregate and drives its
lifecycle end to end, composing the synchronous metrics-timed ticks of
Synchronizer and Scheduler into one driver loop with its own step
ordering and propagation rules.
*/
package orchestrator
