// Package main provides the CLI entry point for sentineld, a long-lived
// personal agent daemon.
//
// sentineld keeps one multi-round session loop, a heartbeat scheduler, a
// cron scheduler, and a small set of channel pollers running continuously,
// fronted by a loopback-only HTTP control panel.
//
// # Basic Usage
//
// Start the daemon:
//
//	sentineld serve --config sentineld.yaml
//
// Validate configuration without starting anything:
//
//	sentineld config validate
//
// Inspect persisted state:
//
//	sentineld session ls
//	sentineld cron list
//
// Grounded on cmd/nexus/main.go's cobra root-command tree, narrowed to
// this daemon's four in-scope subsystems.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentineld/internal/observability"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := observability.New(observability.LogConfig{Level: "info", Format: "json"})
	slog.SetDefault(logger.Logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sentineld",
		Short: "sentineld - a long-lived personal agent daemon",
		Long: `sentineld runs a multi-round provider-agnostic session loop, a
three-tier heartbeat scheduler, a cron scheduler, and channel pollers
(Telegram, Slack) behind a loopback-only HTTP control panel.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	root.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
		buildSessionCmd(),
		buildCronCmd(),
	)
	return root
}
