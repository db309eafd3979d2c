package gateway

import "github.com/cuemby/swarmcore/pkg/swarmtypes"

type logHeartbeatRequest struct {
	Status              swarmtypes.WorkflowRunStatus `json:"status"`
	NextReportIncrement float64                      `json:"next_report_increment"`
}

type logHeartbeatResponse struct {
	Status swarmtypes.WorkflowRunStatus `json:"status"`
}

type updateStatusRequest struct {
	Status swarmtypes.WorkflowRunStatus `json:"status"`
}

type updateStatusResponse struct {
	Status swarmtypes.WorkflowRunStatus `json:"status"`
}

type taskStatusUpdatesRequest struct {
	LastSync string `json:"last_sync,omitempty"`
}

type taskStatusUpdatesResponse struct {
	Time         string             `json:"time"`
	TasksByStatus map[string][]int64 `json:"tasks_by_status"`
}

type maxConcurrentlyRunningResponse struct {
	MaxConcurrentlyRunning int `json:"max_concurrently_running"`
}

type queueTaskBatchRequest struct {
	TaskIDs         []int64 `json:"task_ids"`
	TaskResourcesID string  `json:"task_resources_id"`
	WorkflowRunID   int64   `json:"workflow_run_id"`
	ClusterID       string  `json:"cluster_id"`
}

type queueTaskBatchResponse struct {
	TasksByStatus map[string][]int64 `json:"tasks_by_status"`
}

type bindTaskResourcesResponse struct {
	ID string `json:"id"`
}
