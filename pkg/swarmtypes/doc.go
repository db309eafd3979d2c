// Package swarmtypes holds the domain types shared by every swarm core
// package: task and workflow-run status codes, the TaskResources value
// type, the StateUpdate message produced by services, and the run
// configuration consumed by the orchestrator.
package swarmtypes
