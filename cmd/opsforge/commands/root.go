// Package commands implements the opsforge CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	verbose    bool
	jsonOutput bool
)

// Execute runs the root command.
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "opsforge",
		Short: "opsforge - cloud provisioning and remote execution",
		Long: `opsforge provisions cloud instances through staged workflows and runs
ad-hoc commands and automation playbooks against managed hosts.

Every host, task, and workflow is tracked in a local SQLite ledger with
host credentials encrypted at rest.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newHostsCommand())
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newPlaybookCommand())
	rootCmd.AddCommand(newTasksCommand())
	rootCmd.AddCommand(newProvisionCommand())

	return rootCmd
}
