// Command swarmcore drives a single workflow-run to completion: it loads
// a YAML run file describing the run's identity and already-built task
// graph, wires the gateway/heartbeat/synchronizer/scheduler/orchestrator
// stack together, and serves health and Prometheus endpoints alongside
// the main loop.
package main
