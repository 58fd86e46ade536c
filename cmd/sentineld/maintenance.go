package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/sentineld/internal/config"
	"github.com/haasonsaas/sentineld/internal/cron"
	"github.com/haasonsaas/sentineld/internal/session"
)

func buildConfigCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{Use: "config", Short: "Inspect and validate configuration"}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load configuration and report errors without starting the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			for role, pc := range cfg.LLM.Roles {
				if pc.Kind != "anthropic" && pc.Kind != "openai" {
					return fmt.Errorf("role %q: unknown provider kind %q", role, pc.Kind)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	validate.Flags().StringVarP(&configPath, "config", "c", "sentineld.yaml", "Path to YAML configuration file")
	cmd.AddCommand(validate)
	return cmd
}

func buildSessionCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{Use: "session", Short: "Inspect persisted sessions"}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List persisted session IDs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := session.NewStore(dataDir)
			ids, err := store.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, id := range ids {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}
	ls.Flags().StringVar(&dataDir, "data-dir", ".sentineld", "Workspace data directory")
	cmd.AddCommand(ls)
	return cmd
}

func buildCronCmd() *cobra.Command {
	var dataDir string
	cmd := &cobra.Command{Use: "cron", Short: "Inspect cron jobs"}

	list := &cobra.Command{
		Use:   "list",
		Short: "List registered cron jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := cron.NewStore(dataDir)
			jobs, _, err := store.Load()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, job := range jobs {
				fmt.Fprintf(out, "%s\t%s\t%s\tenabled=%t\n", job.ID, job.Name, job.Schedule, job.Enabled)
			}
			return nil
		},
	}
	list.Flags().StringVar(&dataDir, "data-dir", ".sentineld", "Workspace data directory")
	cmd.AddCommand(list)
	return cmd
}
