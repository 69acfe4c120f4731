package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/reporter"
)

// ErrRunFailed is returned when the healing loop ends without a pass, so
// the process exits non-zero.
var ErrRunFailed = errors.New("tests did not pass")

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <story-key>",
		Short: "Generate a story's test and run it with self-healing",
		Long: `Generate a Playwright test for a story, then execute it with the
self-healing loop.

The story is fetched from Jira unless --story-file supplies it as
markdown. With --with-cases, manual test cases are generated first and
fed into the script generation prompt.

Examples:
  selfheal run ED-123
  selfheal run LOCAL-1 --story-file story.md --max-attempts 5
  selfheal run ED-123 --json > result.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStory(cmd, args[0], true)
		},
	}
	addStoryFlags(cmd)
	addRunFlags(cmd)
	cmd.Flags().Bool("with-cases", false, "Generate manual test cases before the script")
	return cmd
}

// NewHealCommand creates the heal command
func NewHealCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "heal <story-key>",
		Short: "Run a story's existing test with self-healing",
		Long: `Execute the test already written for a story and heal it on failure.
The artifact must exist under runner.tests_dir; use 'selfheal run' to
generate it first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStory(cmd, args[0], false)
		},
	}
	addStoryFlags(cmd)
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().Bool("no-comment", false, "Do not post the status comment to Jira")
}

func runStory(cmd *cobra.Command, key string, generate bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	a, err := newApp(ctx, cmd, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if noComment, _ := cmd.Flags().GetBool("no-comment"); noComment {
		a.service.PostComments = false
	}

	st, err := loadStory(ctx, cmd, a.service, key)
	if err != nil {
		return err
	}
	a.log.LogInfo(fmt.Sprintf("Story %s: %s (%s)", st.ID, st.Title, st.Type()))

	if generate {
		if withCases, _ := cmd.Flags().GetBool("with-cases"); withCases {
			if _, err := a.service.GenerateTests(ctx, st.ID); err != nil {
				return err
			}
		}
		res, err := a.service.GenerateScripts(ctx, st.ID)
		if err != nil {
			return err
		}
		if res.Artifact != nil {
			a.log.LogInfo(fmt.Sprintf("Wrote %s (target %s via %s)", res.Artifact.Path, res.Target.URL(), res.Target.Source()))
		}
	}

	resp, runErr := a.service.ExecuteTests(ctx, st.ID)
	if resp.RunID != "" {
		asJSON, _ := cmd.Flags().GetBool("json")
		if err := printResponse(cmd.OutOrStdout(), resp, asJSON); err != nil {
			return err
		}
	}
	if runErr != nil {
		return runErr
	}
	if !resp.Success {
		return fmt.Errorf("%s: %w", st.ID, ErrRunFailed)
	}
	return nil
}

// printResponse writes the run verdict as JSON or as a short report.
func printResponse(w io.Writer, resp reporter.Response, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	verdict := color.New(color.FgGreen, color.Bold).Sprint(strings.ToUpper(resp.Status))
	if !resp.Success {
		verdict = color.New(color.FgRed, color.Bold).Sprint(strings.ToUpper(resp.Status))
	}

	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Run %s: %s\n", resp.RunID, verdict)
	fmt.Fprintf(w, "  %s\n", resp.Message)
	fmt.Fprintf(w, "  Attempts: %d/%d\n", resp.Attempts, resp.MaxAttempts)
	fmt.Fprintf(w, "  Tests: %d passed, %d failed, %d skipped\n", resp.Results.Passed, resp.Results.Failed, resp.Results.Skipped)
	if resp.Results.Flaky > 0 || resp.Results.Interrupted > 0 {
		fmt.Fprintf(w, "  Also: %d flaky, %d interrupted\n", resp.Results.Flaky, resp.Results.Interrupted)
	}
	if resp.TargetURL != "" {
		fmt.Fprintf(w, "  Target: %s\n", resp.TargetURL)
	}
	if len(resp.FixesApplied) > 0 {
		fmt.Fprintf(w, "  Fixes applied:\n")
		for _, fix := range resp.FixesApplied {
			fmt.Fprintf(w, "    - %s\n", fix)
		}
	}
	if resp.Status != models.OutcomePassed && resp.ErrorType != "" {
		fmt.Fprintf(w, "  Error type: %s\n", resp.ErrorType)
	}
	if resp.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", resp.Reason)
	}
	for _, v := range resp.Videos {
		fmt.Fprintf(w, "  Video: %s\n", v)
	}
	return nil
}
