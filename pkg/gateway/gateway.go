package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// Gateway is the typed RPC client to the server. It holds no state of its
// own beyond a shared HTTP session; every method is safe for concurrent
// use.
type Gateway struct {
	http       *resty.Client
	logger     zerolog.Logger
	maxRetries uint64
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

// WithTimeout overrides the per-request timeout (default 10s, one
// context deadline per call).
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.http.SetTimeout(d) }
}

// WithMaxRetries bounds the number of backoff attempts (default 5).
func WithMaxRetries(n uint64) Option {
	return func(g *Gateway) { g.maxRetries = n }
}

// New constructs a Gateway talking to baseURL.
func New(baseURL string, opts ...Option) *Gateway {
	g := &Gateway{
		http:       resty.New().SetBaseURL(baseURL).SetTimeout(10 * time.Second),
		logger:     swarmlog.WithComponent("gateway"),
		maxRetries: 5,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(b, g.maxRetries), ctx)
}

// do runs fn under the Gateway's retry policy, logging each retry. fn
// should wrap non-retryable failures (4xx, decode errors) in
// backoff.Permanent.
func (g *Gateway) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := fn()
		if err != nil && attempt > 1 {
			g.logger.Warn().Str("op", op).Int("attempt", attempt).Err(err).Msg("gateway call retrying")
		}
		return err
	}
	if err := backoff.Retry(wrapped, g.retryPolicy(ctx)); err != nil {
		return fmt.Errorf("gateway %s: %w", op, err)
	}
	return nil
}

// newRequest builds a request tagged with a fresh X-Request-ID
// correlation id. It is called once per attempt, so every retry of an
// operation carries its own id; the attempts of one operation do not
// share an id.
func (g *Gateway) newRequest(ctx context.Context) *resty.Request {
	return g.http.R().
		SetContext(ctx).
		SetHeader("X-Request-ID", uuid.New().String())
}

// LogHeartbeat reports the run's current status and the increment (in
// seconds) the server should wait before treating the run as dead. The
// server's echoed status is returned as-is; the caller decides how to
// react to a server-stop status.
func (g *Gateway) LogHeartbeat(ctx context.Context, workflowRunID int64, status swarmtypes.WorkflowRunStatus, nextReportIncrement time.Duration) (swarmtypes.WorkflowRunStatus, error) {
	var resp logHeartbeatResponse
	err := g.do(ctx, "log_heartbeat", func() error {
		r, err := g.newRequest(ctx).
			SetBody(logHeartbeatRequest{Status: status, NextReportIncrement: nextReportIncrement.Seconds()}).
			SetResult(&resp).
			Post(fmt.Sprintf("/workflow_run/%d/log_heartbeat", workflowRunID))
		return classify(r, err)
	})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// UpdateStatus requests a WFR status transition. The server may refuse
// and echo back a different status than requested; the caller is
// responsible for raising swarmtypes.TransitionError when that happens.
func (g *Gateway) UpdateStatus(ctx context.Context, workflowRunID int64, status swarmtypes.WorkflowRunStatus) (swarmtypes.WorkflowRunStatus, error) {
	var resp updateStatusResponse
	err := g.do(ctx, "update_status", func() error {
		r, err := g.newRequest(ctx).
			SetBody(updateStatusRequest{Status: status}).
			SetResult(&resp).
			Put(fmt.Sprintf("/workflow_run/%d/update_status", workflowRunID))
		return classify(r, err)
	})
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

// GetTaskStatusUpdates performs a sync: incremental if lastSync is
// non-empty and fullSync is false, otherwise a full sync. It returns the
// server's sync timestamp and a StateUpdate ready for SwarmState.ApplyUpdate.
func (g *Gateway) GetTaskStatusUpdates(ctx context.Context, workflowID int64, lastSync string, fullSync bool) (swarmtypes.StateUpdate, error) {
	var resp taskStatusUpdatesResponse
	req := taskStatusUpdatesRequest{}
	if !fullSync {
		req.LastSync = lastSync
	}
	err := g.do(ctx, "task_status_updates", func() error {
		r, err := g.newRequest(ctx).
			SetBody(req).
			SetResult(&resp).
			Post(fmt.Sprintf("/workflow/%d/task_status_updates", workflowID))
		return classify(r, err)
	})
	if err != nil {
		return swarmtypes.StateUpdate{}, err
	}

	update := swarmtypes.StateUpdate{
		TaskStatuses: make(map[int64]swarmtypes.TaskStatus),
		SyncTime:     resp.Time,
	}
	for code, ids := range resp.TasksByStatus {
		for _, id := range ids {
			update.TaskStatuses[id] = swarmtypes.TaskStatus(code)
		}
	}
	return update, nil
}

// GetWorkflowConcurrency fetches the workflow-level concurrency cap.
func (g *Gateway) GetWorkflowConcurrency(ctx context.Context, workflowID int64) (int, error) {
	var resp maxConcurrentlyRunningResponse
	err := g.do(ctx, "get_workflow_concurrency", func() error {
		r, err := g.newRequest(ctx).
			SetResult(&resp).
			Get(fmt.Sprintf("/workflow/%d/get_max_concurrently_running", workflowID))
		return classify(r, err)
	})
	return resp.MaxConcurrentlyRunning, err
}

// GetArrayConcurrency fetches an array-level concurrency cap.
func (g *Gateway) GetArrayConcurrency(ctx context.Context, arrayID int64) (int, error) {
	var resp maxConcurrentlyRunningResponse
	err := g.do(ctx, "get_array_concurrency", func() error {
		r, err := g.newRequest(ctx).
			SetResult(&resp).
			Get(fmt.Sprintf("/array/%d/get_max_concurrently_running", arrayID))
		return classify(r, err)
	})
	return resp.MaxConcurrentlyRunning, err
}

// QueueTaskBatch submits a compatible batch of task ids sharing one bound
// TaskResources id. It returns the statuses the server assigned, keyed by
// task id.
func (g *Gateway) QueueTaskBatch(ctx context.Context, arrayID int64, taskIDs []int64, taskResourcesID string, workflowRunID int64, clusterID string) (map[int64]swarmtypes.TaskStatus, error) {
	var resp queueTaskBatchResponse
	err := g.do(ctx, "queue_task_batch", func() error {
		r, err := g.newRequest(ctx).
			SetBody(queueTaskBatchRequest{
				TaskIDs:         taskIDs,
				TaskResourcesID: taskResourcesID,
				WorkflowRunID:   workflowRunID,
				ClusterID:       clusterID,
			}).
			SetResult(&resp).
			Post(fmt.Sprintf("/array/%d/queue_task_batch", arrayID))
		return classify(r, err)
	})
	if err != nil {
		return nil, err
	}

	out := make(map[int64]swarmtypes.TaskStatus)
	for code, ids := range resp.TasksByStatus {
		for _, id := range ids {
			out[id] = swarmtypes.TaskStatus(code)
		}
	}
	return out, nil
}

// TerminateTaskInstances asks the server to terminate all task instances
// for a run, in response to a server-driven resume signal.
func (g *Gateway) TerminateTaskInstances(ctx context.Context, workflowRunID int64) error {
	return g.do(ctx, "terminate_task_instances", func() error {
		r, err := g.newRequest(ctx).
			Put(fmt.Sprintf("/workflow_run/%d/terminate_task_instances", workflowRunID))
		return classify(r, err)
	})
}

// BindTaskResources registers a TaskResources value with the server ahead
// of queueing, returning the opaque id the server assigned.
func (g *Gateway) BindTaskResources(ctx context.Context, resources swarmtypes.TaskResources) (string, error) {
	var resp bindTaskResourcesResponse
	err := g.do(ctx, "bind_task_resources", func() error {
		r, err := g.newRequest(ctx).
			SetBody(resources).
			SetResult(&resp).
			Post("/task_resources/bind")
		return classify(r, err)
	})
	return resp.ID, err
}

// classify turns a resty response/error pair into a retry decision: 4xx
// responses and decode failures are permanent, everything else (network
// errors, 5xx) is retried.
func classify(r *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if r.StatusCode() >= 400 && r.StatusCode() < 500 {
		return backoff.Permanent(fmt.Errorf("server rejected request: %s", r.Status()))
	}
	if r.IsError() {
		return fmt.Errorf("server error: %s", r.Status())
	}
	return nil
}
