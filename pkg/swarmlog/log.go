// Package swarmlog provides the process-wide zerolog logger and the
// component/domain child-logger helpers used throughout the swarm core,
// with workflow-run/task/array fields for tagging.
package swarmlog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance; Init configures it once at
// process startup.
var Logger zerolog.Logger

// Level names a configured log level.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger tagged with the owning component.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorkflowRun creates a child logger tagged with a workflow-run id.
func WithWorkflowRun(workflowRunID int64) zerolog.Logger {
	return Logger.With().Int64("workflow_run_id", workflowRunID).Logger()
}

// WithTask creates a child logger tagged with a task id.
func WithTask(taskID int64) zerolog.Logger {
	return Logger.With().Int64("task_id", taskID).Logger()
}

// WithArray creates a child logger tagged with an array id.
func WithArray(arrayID int64) zerolog.Logger {
	return Logger.With().Int64("array_id", arrayID).Logger()
}
