package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/audit"
	"github.com/flowforge/taskctl/internal/heartbeat"
	"github.com/flowforge/taskctl/internal/log"
	"github.com/flowforge/taskctl/internal/notify"
	"github.com/flowforge/taskctl/internal/sessions"
	"github.com/flowforge/taskctl/internal/telemetry"
	"github.com/flowforge/taskctl/internal/tracker"
)

var (
	serveTrackerBin      string
	serveTrackerRepo     string
	serveSessionGateway  string
	serveAuditSQLitePath string
	serveTelemetry       string
	serveOTLPEndpoint    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the heartbeat daemon in the foreground",
	Long: `Run the heartbeat engine as a foreground daemon: every tick it
reconciles health, polls PR review state, and fills free worker slots
across every project registered in the workspace. Stops gracefully on
SIGINT/SIGTERM, letting an in-flight tick finish.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveTrackerBin, "tracker-bin", "gh", "issue tracker CLI binary (gh or glab)")
	serveCmd.Flags().StringVar(&serveTrackerRepo, "tracker-repo", "", "owner/repo (or group/project) the tracker CLI operates against")
	serveCmd.Flags().StringVar(&serveSessionGateway, "session-gateway", "", "base URL of the LLM session gateway (empty uses an in-memory fake, for local trials)")
	serveCmd.Flags().StringVar(&serveAuditSQLitePath, "audit-sqlite", "", "path to an optional SQLite audit sink, in addition to the default JSONL file sink")
	serveCmd.Flags().StringVar(&serveTelemetry, "telemetry", "none", "tracing exporter: none, stdout, or otlp")
	serveCmd.Flags().StringVar(&serveOTLPEndpoint, "otlp-endpoint", "", "OTLP collector endpoint, when --telemetry=otlp")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	workspace := workspaceFlag

	trackerProvider := buildTrackerProvider()
	sessionRegistry := buildSessionRegistry()

	auditSink, closeAudit, err := buildAuditSink(workspace)
	if err != nil {
		return err
	}
	defer closeAudit()

	telemetryProvider, err := telemetry.NewProvider(telemetry.Config{
		Enabled:      serveTelemetry != "none",
		Exporter:     serveTelemetry,
		OTLPEndpoint: serveOTLPEndpoint,
		SampleRate:   1.0,
		ServiceName:  "taskctl",
	})
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("taskctl daemon started, press Ctrl+C to stop")
	log.Info(log.CatHeartbeat, "serve starting", "workspace", workspace)

	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()

	<-ctx.Done()
	fmt.Println("\nshutting down...")
	engine.Stop()
	<-done
	fmt.Println("taskctl daemon stopped")
	return nil
}

func buildTrackerProvider() tracker.Provider {
	if serveTrackerRepo == "" {
		log.Warn(log.CatTracker, "no --tracker-repo given, running against an in-memory fake tracker")
		return tracker.NewFakeProvider()
	}
	return tracker.NewCLIProvider(serveTrackerBin, serveTrackerRepo, "")
}

func buildSessionRegistry() sessions.Registry {
	if serveSessionGateway == "" {
		log.Warn(log.CatSession, "no --session-gateway given, running against an in-memory fake session registry")
		return sessions.NewFakeRegistry()
	}
	return sessions.NewGatewayRegistry(serveSessionGateway, &http.Client{})
}

func buildAuditSink(workspace string) (audit.Sink, func(), error) {
	filePath := filepath.Join(workspace, "audit.jsonl")
	fileSink, err := audit.NewFileSink(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening audit file sink: %w", err)
	}

	sinks := []audit.Sink{fileSink}
	closers := []func() error{fileSink.Close}

	if serveAuditSQLitePath != "" {
		sqliteSink, err := audit.NewSQLiteSink(serveAuditSQLitePath)
		if err != nil {
			_ = fileSink.Close()
			return nil, nil, fmt.Errorf("opening audit sqlite sink: %w", err)
		}
		sinks = append(sinks, sqliteSink)
		closers = append(closers, sqliteSink.Close)
	}

	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Warn(log.CatAudit, "closing audit sink failed", "error", err)
			}
		}
	}

	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return audit.MultiSink{Sinks: sinks}, closeAll, nil
}
