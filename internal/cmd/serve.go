package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workflow HTTP API",
		Long: `Serve the seven workflow stages as a JSON API:

  POST /api/workflow/create-story
  POST /api/workflow/fetch-jira
  POST /api/workflow/generate-tests
  POST /api/workflow/push-testrail
  POST /api/workflow/generate-scripts
  POST /api/workflow/execute-tests
  POST /api/workflow/update-results
  GET  /api/health

The server shuts down gracefully on SIGINT or SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}
	cmd.Flags().String("addr", "", "Listen address (default from server.addr)")
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if !cfg.Jira.Enabled() {
		a.log.LogWarn("Jira is not configured; stories must be supplied inline")
	}
	if !cfg.TestRail.Enabled() {
		a.log.LogWarn("TestRail is not configured; push-testrail and update-results are disabled")
	}

	srv := server.New(a.service, cfg.Server, a.log)
	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	a.log.LogInfo("Server stopped")
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
