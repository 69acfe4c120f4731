package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/jira"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/restclient"
	"github.com/harrison/selfheal/internal/store"
	"github.com/harrison/selfheal/internal/target"
)

// NewResolveURLCommand creates the resolve-url command
func NewResolveURLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve-url <story-key>",
		Short: "Show which target URL a story's test would run against",
		Long: `Run the target URL resolution chain for a story and print every
candidate with the strategy that produced it:

  story-urls, story-text, id-prefix, artifact-goto, test-cases,
  brand-keyword, placeholder

The existing artifact and stored test cases are consulted when present.`,
		Args: cobra.ExactArgs(1),
		RunE: runResolveURL,
	}
	addStoryFlags(cmd)
	cmd.Flags().Bool("json", false, "Print the resolution as JSON")
	return cmd
}

type resolveReport struct {
	StoryID     string                  `json:"storyId"`
	StoryType   models.StoryType        `json:"storyType"`
	Resolution  models.TargetResolution `json:"resolution"`
	URL         string                  `json:"url"`
	Source      string                  `json:"source"`
	Credentials models.Credentials      `json:"credentials"`
}

func runResolveURL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	key := args[0]

	st, err := storyFromFlags(cmd, key)
	if err != nil {
		return err
	}
	if st == nil {
		client := jira.NewClient(cfg.Jira)
		if !client.Enabled() {
			return fmt.Errorf("load story %s (use --story-file without a tracker): %w", key, restclient.ErrNotConfigured)
		}
		if st, err = client.GetStory(ctx, key); err != nil {
			return fmt.Errorf("load story %s: %w", key, err)
		}
	}

	in := target.Input{Story: *st}
	if art, err := artifact.NewStore(cfg.Runner.TestsDir).Read(st.ID); err == nil {
		in.ArtifactSource = art.Source
	}
	if cfg.Store.Enabled {
		if _, err := os.Stat(cfg.Store.DBPath); err == nil {
			history, err := store.NewStore(cfg.Store.DBPath)
			if err != nil {
				return fmt.Errorf("open history store: %w", err)
			}
			defer history.Close()
			if cases, err := history.LoadTestCases(ctx, st.ID); err == nil {
				in.TestCases = cases
			}
		}
	}

	res := target.NewURLResolver(cfg.Target, nil).Resolve(in)
	report := resolveReport{
		StoryID:     st.ID,
		StoryType:   st.Type(),
		Resolution:  res,
		URL:         res.URL(),
		Source:      res.Source(),
		Credentials: target.NewCredentialResolver(cfg.Target).Resolve(in),
	}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Story %s (%s)\n", report.StoryID, report.StoryType)
	fmt.Fprintf(out, "Target: %s (via %s)\n", report.URL, report.Source)
	if res.Placeholder {
		fmt.Fprintf(out, "Warning: no strategy matched, the placeholder URL was chosen\n")
	}
	fmt.Fprintf(out, "\nCandidates:\n")
	for i, c := range res.Candidates {
		marker := " "
		if i == res.Chosen {
			marker = "*"
		}
		fmt.Fprintf(out, " %s %-14s %s\n", marker, c.Source, c.URL)
	}
	if !report.Credentials.Empty() {
		fmt.Fprintf(out, "\nCredentials: %s (from %s)\n", report.Credentials.Username, report.Credentials.Source)
	}
	return nil
}
