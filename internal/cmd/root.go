package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for selfheal
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "selfheal",
		Short: "Self-healing Playwright test generation and execution",
		Long: `Selfheal turns user stories into Playwright tests, runs them and
repairs failing tests by classifying the failure and regenerating the
script, up to a bounded number of attempts.

Stories come from Jira or from a local markdown file. Manual test cases
and results can be synchronized with TestRail, and every run is
recorded in a local SQLite history.`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	addConfigFlags(cmd)

	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewHealCommand())
	cmd.AddCommand(NewClassifyCommand())
	cmd.AddCommand(NewResolveURLCommand())
	cmd.AddCommand(NewHistoryCommand())
	cmd.AddCommand(NewValidateConfigCommand())

	return cmd
}
