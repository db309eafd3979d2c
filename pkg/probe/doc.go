/*
Package probe provides the liveness checkers the Orchestrator uses for
its distributor-alive check. It offers a Checker/Result vocabulary
trimmed of container-exec special casing (no containerd runtime exists
in this core) and a ProcessChecker that mirrors a subprocess's own
liveness test — polling a PID rather than inspecting a container.
*/
package probe
