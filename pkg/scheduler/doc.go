/*
Package scheduler batches ready-to-run tasks and queues them with the
server, respecting workflow- and array-level concurrency caps.

# Algorithm

Tick pops tasks from the front of the ready-to-run queue one at a time.
A task is schedulable only if both the workflow's remaining capacity and
its array's remaining capacity are positive; a schedulable task seeds a
new batch. Tick then examines further queued tasks for compatibility
with the batch's seed: same array, value-equal TaskResources, a batch
size under 500, and remaining capacity. Compatible tasks join the batch
and consume capacity; incompatible tasks go back to the tail of the
queue so their relative order with the rest of the tail is preserved.

Once no further compatible task is found (or capacity is exhausted), the
batch's TaskResources is bound with the server if not already bound, and
the batch is queued via a single RPC. The response's per-task statuses
are merged into the StateUpdate the tick returns.

Tasks found unschedulable at pop time (capacity already zero) are
collected and restored to the front of the queue when the tick exits, in
their original relative order — ordering across ticks is never
disturbed by a tick that ran out of capacity partway through. A queueing
RPC failure restores that batch's tasks to the front as well, and the
tick returns with whatever was successfully queued before the failure;
the Orchestrator retries the rest on its next iteration.

Scheduler is a stateless struct invoked on a cadence, instrumented with
a Prometheus timer per cycle; its decisions are capacity-and-compatibility
batching rather than node/volume placement affinity.
*/
package scheduler
