package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/swarmcore/pkg/swarmtypes"
)

const sampleRunFile = `
workflow_run_id: 100
workflow_id: 7
cluster_id: cluster-a
gateway_url: http://localhost:8000
max_concurrently_running: 4
distributor_pid: 4242
config:
  heartbeat_interval: 5s
  fail_fast: true
  timeout: 1h
arrays:
  - array_id: 1
    name: preprocess
    max_concurrently_running: 2
tasks:
  - task_id: 1
    array_id: 1
    status: G
    max_attempts: 3
    downstream: [2, 3]
    resources:
      queue: cpu
      requested:
        cpus: 2
  - task_id: 2
    array_id: 1
    status: G
  - task_id: 3
    array_id: 1
    status: G
`

func writeTempRunFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadRunFileParsesIdentityAndTasks(t *testing.T) {
	path := writeTempRunFile(t, sampleRunFile)

	rf, err := loadRunFile(path)
	require.NoError(t, err)

	assert.Equal(t, int64(100), rf.WorkflowRunID)
	assert.Equal(t, int64(7), rf.WorkflowID)
	assert.Equal(t, 4242, rf.DistributorPID)
	assert.Len(t, rf.Tasks, 3)
}

func TestRunFileConfigAppliesOverridesAndDefaults(t *testing.T) {
	path := writeTempRunFile(t, sampleRunFile)
	rf, err := loadRunFile(path)
	require.NoError(t, err)

	cfg, err := rf.config()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.HeartbeatInterval)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, time.Hour, cfg.Timeout)
	// Left unset in the run file, so the documented default survives.
	assert.Equal(t, swarmtypes.DefaultConfig().WedgedWorkflowSyncInterval, cfg.WedgedWorkflowSyncInterval)
}

func TestBuildStateWiresDownstreamEdgesAndBucketsByStatus(t *testing.T) {
	path := writeTempRunFile(t, sampleRunFile)
	rf, err := loadRunFile(path)
	require.NoError(t, err)

	state, err := rf.buildState()
	require.NoError(t, err)

	require.Len(t, state.Tasks, 3)
	task1 := state.Tasks[1]
	assert.Equal(t, swarmtypes.TaskRegistering, task1.Status)
	assert.Len(t, task1.DownstreamTaskIDs, 2)
	assert.Equal(t, 1, state.Tasks[2].NumUpstreams)
	assert.Equal(t, 1, state.Tasks[3].NumUpstreams)
	assert.NotNil(t, task1.CurrentTaskResources)
	assert.Equal(t, swarmtypes.QueueHandle("cpu"), task1.CurrentTaskResources.Queue)

	assert.Len(t, state.TasksInStatus(swarmtypes.TaskRegistering), 3)

	arr, ok := state.Arrays[1]
	require.True(t, ok)
	assert.Len(t, arr.TaskIDs, 3)
}

func TestBuildStateRejectsUnknownDownstreamID(t *testing.T) {
	path := writeTempRunFile(t, `
workflow_run_id: 1
gateway_url: http://localhost:8000
tasks:
  - task_id: 1
    downstream: [99]
`)
	rf, err := loadRunFile(path)
	require.NoError(t, err)

	_, err = rf.buildState()
	assert.Error(t, err)
}

func TestLoadRunFileRequiresWorkflowRunID(t *testing.T) {
	path := writeTempRunFile(t, "gateway_url: http://localhost:8000\n")
	_, err := loadRunFile(path)
	assert.Error(t, err)
}
