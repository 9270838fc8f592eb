package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/heartbeat"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/telemetry"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Force one manual heartbeat tick and print what it did",
	Long: `Run a single heartbeat tick outside the daemon loop: one pass of
health reconciliation, review advancement, and free-slot pickup across
every registered project, then exit. Useful for debugging a stuck
project without leaving taskctl serve running.`,
	RunE: runDispatch,
}

func init() {
	dispatchCmd.Flags().StringVar(&serveTrackerBin, "tracker-bin", "gh", "issue tracker CLI binary (gh or glab)")
	dispatchCmd.Flags().StringVar(&serveTrackerRepo, "tracker-repo", "", "owner/repo (or group/project) the tracker CLI operates against")
	dispatchCmd.Flags().StringVar(&serveSessionGateway, "session-gateway", "", "base URL of the LLM session gateway (empty uses an in-memory fake)")
	dispatchCmd.Flags().StringVar(&serveAuditSQLitePath, "audit-sqlite", "", "path to an optional SQLite audit sink, in addition to the default JSONL file sink")
	rootCmd.AddCommand(dispatchCmd)
}

func runDispatch(cmd *cobra.Command, _ []string) error {
	workspace := workspaceFlag

	trackerProvider := buildTrackerProvider()
	sessionRegistry := buildSessionRegistry()

	auditSink, closeAudit, err := buildAuditSink(workspace)
	if err != nil {
		return err
	}
	defer closeAudit()

	telemetryProvider, err := telemetry.NewProvider(telemetry.Config{Exporter: "none"})
	if err != nil {
		return fmt.Errorf("creating telemetry provider: %w", err)
	}
	defer func() {
		if err := telemetryProvider.Shutdown(context.Background()); err != nil {
			log.Warn(log.CatConfig, "telemetry shutdown failed", "error", err)
		}
	}()

	engine := heartbeat.NewEngine(heartbeat.Deps{
		Workspace:     workspace,
		Tracker:       trackerProvider,
		Sessions:      sessionRegistry,
		Notifier:      notify.NewConsoleNotifier(),
		Audit:         auditSink,
		Telemetry:     telemetryProvider,
		AutoFixHealth: true,
	})

	result, err := engine.Tick(context.Background())
	if err != nil {
		return fmt.Errorf("tick failed: %w", err)
	}

	fmt.Printf("tick #%d: %d projects ticked, %d skipped\n", result.Seq, result.ProjectsTicked, result.ProjectsSkipped)
	fmt.Printf("  anomalies: %d found, %d fixed\n", result.AnomaliesFound, result.AnomaliesFixed)
	fmt.Printf("  reviews advanced: %d\n", result.ReviewsAdvanced)
	fmt.Printf("  dispatched: %d\n", result.Dispatched)
	fmt.Printf("  orphan sessions reclaimed: %d\n", result.OrphanSessionsGC)
	return nil
}
