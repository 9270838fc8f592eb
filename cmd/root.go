// Package cmd implements the taskctl command-line surface: serve (run the
// heartbeat daemon), status (print a snapshot), dispatch (run one heartbeat
// tick by hand), project (registry bootstrap), and watch (a live dashboard),
// mirroring the teacher's cobra command tree (cmd/root.go, cmd/daemon.go).
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/flowforge/taskctl/internal/log"
)

func init() {
	// Force lipgloss/termenv to query the terminal background color before
	// status's table render or watch's bubbletea program starts, so the
	// OSC 11 response can't race a later input loop and show up as garbage.
	// See: https://github.com/charmbracelet/bubbletea/issues/1036
	_ = lipgloss.HasDarkBackground()
}

var (
	version = "dev"

	workspaceFlag string
	debugFlag     bool
)

var rootCmd = &cobra.Command{
	Use:     "taskctl",
	Short:   "A headless control-plane daemon for AI coding-agent task dispatch",
	Long:    `taskctl reconciles an issue tracker, a worker-slot registry, and an LLM session layer on a heartbeat, dispatching structured task briefs and auto-repairing drift between them.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspaceFlag, "workspace", "w", ".",
		"workspace directory (holds worker-state.json, config.yaml, projects/)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false,
		"enable debug logging (also: TASKCTL_DEBUG=1)")
}

func initLogging() error {
	debug := os.Getenv("TASKCTL_DEBUG") != "" || debugFlag
	if !debug {
		return nil
	}
	logPath := os.Getenv("TASKCTL_LOG")
	if logPath == "" {
		logPath = "taskctl-debug.log"
	}
	if _, err := log.Init(logPath); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	log.Info(log.CatConfig, "taskctl starting", "version", version, "workspace", workspaceFlag)
	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string, called from main with ldflags.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
