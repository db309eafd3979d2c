package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/swarmcore/pkg/gateway"
	"github.com/cuemby/swarmcore/pkg/heartbeat"
	"github.com/cuemby/swarmcore/pkg/orchestrator"
	"github.com/cuemby/swarmcore/pkg/probe"
	"github.com/cuemby/swarmcore/pkg/scheduler"
	"github.com/cuemby/swarmcore/pkg/swarmlog"
	"github.com/cuemby/swarmcore/pkg/synchronizer"
)

var (
	// Version is set via ldflags at build time.
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "swarmcore",
	Short:   "swarmcore drives a single workflow-run to completion",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("swarmcore version %s (%s)\n", Version, Commit))
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	swarmlog.Init(swarmlog.Config{Level: swarmlog.Level(level), JSONOutput: jsonOutput})
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Drive one workflow-run to completion from a run file",
	Long: `run loads a YAML run file describing a workflow-run's identity,
gateway coordinates and already-built task graph, then drives it through
the swarm core's main loop until it reaches a terminal status.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Run file to load (required)")
	runCmd.Flags().String("health-addr", "127.0.0.1:9090", "Health/metrics HTTP listen address")
	_ = runCmd.MarkFlagRequired("file")
}

func runRun(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	healthAddr, _ := cmd.Flags().GetString("health-addr")

	rf, err := loadRunFile(filename)
	if err != nil {
		return err
	}
	cfg, err := rf.config()
	if err != nil {
		return err
	}
	state, err := rf.buildState()
	if err != nil {
		return fmt.Errorf("build task graph: %w", err)
	}

	gw := gateway.New(rf.GatewayURL)

	hb := heartbeat.New(gw, rf.WorkflowRunID, cfg.HeartbeatInterval, cfg.HeartbeatReportByBuffer, state.Status)

	taskIDs := make([]int64, 0, len(state.Tasks))
	for id := range state.Tasks {
		taskIDs = append(taskIDs, id)
	}
	arrayIDs := make([]int64, 0, len(state.Arrays))
	for id := range state.Arrays {
		arrayIDs = append(arrayIDs, id)
	}
	sync := synchronizer.New(gw, rf.WorkflowID, taskIDs, arrayIDs)
	sched := scheduler.New(gw, rf.WorkflowRunID, rf.ClusterID)

	var distributorAlive func(ctx context.Context) bool
	if rf.DistributorPID > 0 {
		distributorAlive = probe.AliveFunc(probe.NewProcessChecker(rf.DistributorPID))
	} else {
		distributorAlive = func(ctx context.Context) bool { return true }
	}

	orch := orchestrator.New(state, gw, hb, sync, sched, cfg, distributorAlive)

	hs := newHealthServer(distributorAlive)
	go func() {
		if err := hs.listenAndServe(healthAddr); err != nil {
			swarmlog.WithComponent("swarmcore").Warn().Err(err).Msg("health server exited")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := swarmlog.WithWorkflowRun(rf.WorkflowRunID)
	logger.Info().Int("total_tasks", len(state.Tasks)).Msg("starting workflow run")

	result, runErr := orch.Run(ctx)

	logger.Info().
		Str("final_status", string(result.FinalStatus)).
		Int("done", result.DoneCount).
		Int("failed", result.FailedCount).
		Dur("elapsed", result.ElapsedTime).
		Msg("workflow run finished")

	if runErr != nil {
		return fmt.Errorf("workflow run ended abnormally: %w", runErr)
	}
	return nil
}
