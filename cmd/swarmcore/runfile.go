package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/swarmcore/pkg/swarmstate"
	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

// runFile is the on-disk description of one workflow-run: identity,
// gateway/distributor coordinates, run options, and the already-built
// task graph (construction of the graph itself is the external DAG
// builder's job; this core only consumes it).
type runFile struct {
	WorkflowRunID          int64              `yaml:"workflow_run_id"`
	WorkflowID             int64              `yaml:"workflow_id"`
	ClusterID              string             `yaml:"cluster_id"`
	GatewayURL             string             `yaml:"gateway_url"`
	MaxConcurrentlyRunning int                `yaml:"max_concurrently_running"`
	DistributorPID         int                `yaml:"distributor_pid"`
	InitialStatus          string             `yaml:"initial_status"`
	Config                 runFileConfig      `yaml:"config"`
	Arrays                 []runFileArray     `yaml:"arrays"`
	Tasks                  []runFileTask      `yaml:"tasks"`
}

type runFileConfig struct {
	HeartbeatInterval          string   `yaml:"heartbeat_interval"`
	HeartbeatReportByBuffer    *float64 `yaml:"heartbeat_report_by_buffer"`
	WedgedWorkflowSyncInterval string   `yaml:"wedged_workflow_sync_interval"`
	FailFast                   bool     `yaml:"fail_fast"`
	Timeout                    string   `yaml:"timeout"`
	FailAfterNExecutions       int      `yaml:"fail_after_n_executions"`
}

type runFileArray struct {
	ArrayID                int64  `yaml:"array_id"`
	Name                   string `yaml:"name"`
	MaxConcurrentlyRunning int    `yaml:"max_concurrently_running"`
}

type runFileTask struct {
	TaskID           int64                   `yaml:"task_id"`
	ArrayID          int64                   `yaml:"array_id"`
	Status           string                  `yaml:"status"`
	MaxAttempts      int                     `yaml:"max_attempts"`
	Cluster          string                  `yaml:"cluster"`
	Downstream       []int64                 `yaml:"downstream"`
	NumUpstreamsDone int                     `yaml:"num_upstreams_done"`
	Resources        *runFileResources       `yaml:"resources"`
	ResourceScales   map[string]runFileScale `yaml:"resource_scales"`
	FallbackQueues   []string                `yaml:"fallback_queues"`
}

type runFileResources struct {
	Queue     string         `yaml:"queue"`
	Requested map[string]any `yaml:"requested"`
}

type runFileScale struct {
	Factor   float64   `yaml:"factor"`
	Sequence []float64 `yaml:"sequence"`
}

// loadRunFile reads and parses path into a runFile.
func loadRunFile(path string) (*runFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run file: %w", err)
	}
	var rf runFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse run file: %w", err)
	}
	if rf.WorkflowRunID == 0 {
		return nil, fmt.Errorf("run file: workflow_run_id is required")
	}
	if rf.GatewayURL == "" {
		return nil, fmt.Errorf("run file: gateway_url is required")
	}
	return &rf, nil
}

// config resolves the recognized run options, falling back to the
// documented defaults for anything left unset.
func (rf *runFile) config() (swarmtypes.Config, error) {
	cfg := swarmtypes.DefaultConfig()
	cfg.FailFast = rf.Config.FailFast
	cfg.FailAfterNExecutions = rf.Config.FailAfterNExecutions

	if rf.Config.HeartbeatReportByBuffer != nil {
		cfg.HeartbeatReportByBuffer = *rf.Config.HeartbeatReportByBuffer
	}
	var err error
	if cfg.HeartbeatInterval, err = parseDurationOr(rf.Config.HeartbeatInterval, cfg.HeartbeatInterval); err != nil {
		return cfg, fmt.Errorf("config.heartbeat_interval: %w", err)
	}
	if cfg.WedgedWorkflowSyncInterval, err = parseDurationOr(rf.Config.WedgedWorkflowSyncInterval, cfg.WedgedWorkflowSyncInterval); err != nil {
		return cfg, fmt.Errorf("config.wedged_workflow_sync_interval: %w", err)
	}
	if cfg.Timeout, err = parseDurationOr(rf.Config.Timeout, cfg.Timeout); err != nil {
		return cfg, fmt.Errorf("config.timeout: %w", err)
	}
	return cfg, nil
}

func parseDurationOr(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	return time.ParseDuration(s)
}

// buildState materializes the task graph described by the run file into
// a fresh SwarmState. Edges are wired before tasks are bucketed by
// status, since AddTask snapshots the status a task is in at that point.
func (rf *runFile) buildState() (*swarmstate.SwarmState, error) {
	state := swarmstate.NewSwarmState(rf.WorkflowRunID, rf.WorkflowID, rf.MaxConcurrentlyRunning)
	if rf.InitialStatus != "" {
		state.Status = swarmtypes.WorkflowRunStatus(rf.InitialStatus)
	}

	for _, a := range rf.Arrays {
		state.AddArray(swarmstate.NewSwarmArray(a.ArrayID, a.Name, a.MaxConcurrentlyRunning))
	}

	tasks := make(map[int64]*swarmstate.SwarmTask, len(rf.Tasks))
	for _, rt := range rf.Tasks {
		t := swarmstate.NewSwarmTask(rt.TaskID, rt.ArrayID)
		t.MaxAttempts = rt.MaxAttempts
		t.Cluster = rt.Cluster
		if rt.Status != "" {
			t.Status = swarmtypes.TaskStatus(rt.Status)
		}
		requested := map[string]any{}
		var queue swarmtypes.QueueHandle
		if rt.Resources != nil {
			requested = rt.Resources.Requested
			queue = swarmtypes.QueueHandle(rt.Resources.Queue)
		}
		t.CurrentTaskResources = state.InternResources(swarmtypes.TaskResources{Requested: requested, Queue: queue})
		if len(rt.ResourceScales) > 0 {
			t.ResourceScales = make(map[string]swarmtypes.ResourceScale, len(rt.ResourceScales))
			for name, s := range rt.ResourceScales {
				t.ResourceScales[name] = swarmtypes.ResourceScale{Factor: s.Factor, Sequence: s.Sequence}
			}
		}
		for _, q := range rt.FallbackQueues {
			t.FallbackQueues = append(t.FallbackQueues, swarmtypes.QueueHandle(q))
		}
		tasks[rt.TaskID] = t
	}

	for _, rt := range rf.Tasks {
		t := tasks[rt.TaskID]
		for _, downID := range rt.Downstream {
			down, ok := tasks[downID]
			if !ok {
				return nil, fmt.Errorf("task %d: downstream id %d is not defined", rt.TaskID, downID)
			}
			t.AddDownstream(down)
		}
	}
	for _, rt := range rf.Tasks {
		tasks[rt.TaskID].NumUpstreamsDone = rt.NumUpstreamsDone
	}

	for _, rt := range rf.Tasks {
		t := tasks[rt.TaskID]
		state.AddTask(t)
		if a, ok := state.Arrays[t.ArrayID]; ok {
			a.AddTask(t.TaskID)
		}
	}

	return state, nil
}
