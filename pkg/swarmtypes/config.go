package swarmtypes

import "time"

// Config holds the orchestrator's recognized run options. Populated from
// the YAML run file's config block by cmd/swarmcore.
type Config struct {
	HeartbeatInterval        time.Duration `yaml:"heartbeat_interval"`
	HeartbeatReportByBuffer  float64       `yaml:"heartbeat_report_by_buffer"`
	WedgedWorkflowSyncInterval time.Duration `yaml:"wedged_workflow_sync_interval"`
	FailFast                 bool          `yaml:"fail_fast"`
	Timeout                  time.Duration `yaml:"timeout"`

	// FailAfterNExecutions is a test hook; zero disables it.
	FailAfterNExecutions int `yaml:"fail_after_n_executions"`
}

// DefaultConfig returns the documented default run options.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:          30 * time.Second,
		HeartbeatReportByBuffer:    1.5,
		WedgedWorkflowSyncInterval: 600 * time.Second,
		FailFast:                   false,
		Timeout:                    36000 * time.Second,
	}
}
