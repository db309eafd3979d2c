/*
Package gateway implements the typed RPC surface the Orchestrator uses to
talk to the server: heartbeat, status transitions, task-status sync,
concurrency queries, batch queueing, termination, and resource binding.

It owns the only I/O the core performs. Every method takes a context,
marshals a JSON body with resty, and retries transient failures with
cenkalti/backoff before giving up and returning an error: one struct
wrapping a connection, one timeout-bearing method per RPC, with HTTP+JSON
in place of gRPC since the server speaks a JSON request/response
contract rather than a protobuf service, and no .proto sources were
available to generate a typed client from.
*/
package gateway
