package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/store"
)

// NewHistoryCommand creates the history command
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [story-key]",
		Short: "Show recorded healing runs",
		Long: `List healing runs recorded in the history database, newest first.

With a story key only that story's runs are listed. With --run the
attempt-by-attempt history of one run is shown.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum runs to list (0 = all)")
	cmd.Flags().String("run", "", "Show the attempts of one run id")
	cmd.Flags().Bool("json", false, "Print runs as JSON")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if !cfg.Store.Enabled {
		return fmt.Errorf("history store is disabled (store.enabled: false)")
	}
	if _, err := os.Stat(cfg.Store.DBPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "No runs recorded yet\n")
		fmt.Fprintf(out, "Database path: %s\n", cfg.Store.DBPath)
		return nil
	}

	history, err := store.NewStore(cfg.Store.DBPath)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer history.Close()

	ctx := commandContext(cmd)
	asJSON, _ := cmd.Flags().GetBool("json")

	if runID, _ := cmd.Flags().GetString("run"); runID != "" {
		run, err := history.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(out, run)
		}
		printRun(out, run)
		return nil
	}

	var storyID string
	if len(args) == 1 {
		storyID = args[0]
	}
	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := history.ListRuns(ctx, storyID, limit)
	if err != nil {
		return err
	}
	if asJSON {
		if runs == nil {
			runs = []*store.RunRecord{}
		}
		return writeJSON(out, runs)
	}
	if len(runs) == 0 {
		if storyID != "" {
			fmt.Fprintf(out, "No runs recorded for %s\n", storyID)
		} else {
			fmt.Fprintf(out, "No runs recorded yet\n")
		}
		return nil
	}

	fmt.Fprintf(out, "%-19s  %-12s  %-12s  %-8s  %-6s  %s\n", "STARTED", "STORY", "STATUS", "ATTEMPTS", "TESTS", "RUN ID")
	for _, r := range runs {
		fmt.Fprintf(out, "%-19s  %-12s  %s  %-8s  %-6s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.StoryID,
			statusColor(r.Status).Sprintf("%-12s", r.Status),
			fmt.Sprintf("%d/%d", r.Attempts, r.MaxAttempts),
			fmt.Sprintf("%d/%d", r.Result.Passed, r.Result.Total),
			r.RunID,
		)
	}
	return nil
}

func printRun(w io.Writer, r *store.RunRecord) {
	fmt.Fprintf(w, "Run %s\n", r.RunID)
	fmt.Fprintf(w, "  Story: %s\n", r.StoryID)
	fmt.Fprintf(w, "  Status: %s\n", statusColor(r.Status).Sprint(r.Status))
	fmt.Fprintf(w, "  Started: %s\n", r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  Duration: %.1fs\n", r.FinishedAt.Sub(r.StartedAt).Seconds())
	fmt.Fprintf(w, "  Attempts: %d/%d\n", r.Attempts, r.MaxAttempts)
	if r.TargetURL != "" {
		fmt.Fprintf(w, "  Target: %s\n", r.TargetURL)
	}
	if r.ErrorType != "" {
		fmt.Fprintf(w, "  Error type: %s\n", r.ErrorType)
	}
	if r.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", r.Reason)
	}
	if r.TestRailRunID > 0 {
		fmt.Fprintf(w, "  TestRail run: %d\n", r.TestRailRunID)
	}

	if len(r.History) > 0 {
		fmt.Fprintf(w, "\nAttempts:\n")
		for _, a := range r.History {
			verdict := "failed"
			if a.Success {
				verdict = "passed"
			}
			fmt.Fprintf(w, "  #%d %s (%d passed, %d failed)", a.AttemptNumber, verdict, a.Passed, a.Failed)
			if a.ErrorType != "" {
				fmt.Fprintf(w, " %s", a.ErrorType)
			}
			fmt.Fprintf(w, "\n")
			if len(a.FixesApplied) > 0 {
				fmt.Fprintf(w, "     fixes: %s\n", strings.Join(a.FixesApplied, "; "))
			}
		}
	}
}

func statusColor(status string) *color.Color {
	switch status {
	case models.OutcomePassed:
		return color.New(color.FgGreen)
	case models.OutcomeFailed:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgYellow)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
