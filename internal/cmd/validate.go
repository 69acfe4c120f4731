package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/config"
)

// NewValidateConfigCommand creates the validate-config command
func NewValidateConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the configuration and show what is enabled",
		Long: `Load .selfheal/config.yaml (or --config), apply environment overrides
and flags, validate the result and print a summary of the integrations
that are configured.

Exit code: 0 if valid, 1 if errors found`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			printConfigSummary(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	return cmd
}

func printConfigSummary(w io.Writer, cfg *config.Config) {
	enabled := func(ok bool) string {
		if ok {
			return "enabled"
		}
		return "disabled"
	}

	fmt.Fprintf(w, "Configuration is valid\n\n")
	fmt.Fprintf(w, "  Log level: %s\n", cfg.LogLevel)
	fmt.Fprintf(w, "  Generator: %s\n", cfg.Generator.Provider)
	fmt.Fprintf(w, "  Max attempts: %d\n", cfg.Healing.MaxAttempts)
	fmt.Fprintf(w, "  Runner: %s (timeout %s)\n", cfg.Runner.Command, cfg.Runner.Timeout)
	fmt.Fprintf(w, "  Tests dir: %s\n", cfg.Runner.TestsDir)
	fmt.Fprintf(w, "  Jira: %s\n", enabled(cfg.Jira.Enabled()))
	fmt.Fprintf(w, "  TestRail: %s\n", enabled(cfg.TestRail.Enabled()))
	if cfg.Inspector.Enabled {
		fmt.Fprintf(w, "  Inspector: %s\n", cfg.Inspector.Backend)
	} else {
		fmt.Fprintf(w, "  Inspector: disabled\n")
	}
	if cfg.Store.Enabled {
		fmt.Fprintf(w, "  History: %s\n", cfg.Store.DBPath)
	} else {
		fmt.Fprintf(w, "  History: disabled\n")
	}
}
