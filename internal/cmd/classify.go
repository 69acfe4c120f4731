package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/classifier"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/runner"
)

// NewClassifyCommand creates the classify command
func NewClassifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <log-file|->",
		Short: "Classify Playwright failure output",
		Long: `Classify the failure output of a Playwright run into the buckets the
healing loop uses: selector, text, navigation, strict mode, CSS, URL,
consent dialog and logic error.

Read from a file, or from stdin with "-". The logic-error bucket only
fires for ADD stories, so pass --story-type and --content to reproduce
what the healing loop would decide.

Examples:
  selfheal classify test-results/output.log
  npx playwright test | selfheal classify - --json`,
		Args: cobra.ExactArgs(1),
		RunE: runClassify,
	}
	cmd.Flags().String("story-type", "verify", "Story type: verify, add, modify or remove")
	cmd.Flags().StringSlice("content", nil, "Story content terms the test must not assert on yet")
	cmd.Flags().Bool("json", false, "Print the classification as JSON")
	return cmd
}

// classifyReport is the JSON shape of the classify command.
type classifyReport struct {
	ErrorType      string                       `json:"errorType"`
	Summary        string                       `json:"summary"`
	Classification models.FailureClassification `json:"classification"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	raw, err := readInput(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	typeName, _ := cmd.Flags().GetString("story-type")
	storyType, err := parseStoryType(typeName)
	if err != nil {
		return err
	}
	terms, _ := cmd.Flags().GetStringSlice("content")

	c := classifier.Classify(runner.StripANSI(raw), classifier.Hint{Type: storyType, ContentTerms: terms})
	report := classifyReport{ErrorType: c.ErrorType(), Summary: c.Summary(), Classification: c}

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Error type: %s\n", report.ErrorType)
	fmt.Fprintf(out, "%s\n", report.Summary)
	printBucket(out, "Strict mode violations", c.StrictModeViolations)
	printBucket(out, "Selector issues", c.SelectorIssues)
	printBucket(out, "Text mismatches", c.TextMismatches)
	printBucket(out, "CSS issues", c.CSSIssues)
	printBucket(out, "URL issues", c.URLIssues)
	return nil
}

func printBucket(w io.Writer, name string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s (%d):\n", name, len(lines))
	for _, l := range lines {
		fmt.Fprintf(w, "  %s\n", strings.TrimSpace(l))
	}
}

// readInput reads a named file, or stdin when name is "-".
func readInput(stdin io.Reader, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", name, err)
	}
	return string(data), nil
}

func parseStoryType(name string) (models.StoryType, error) {
	for _, t := range []models.StoryType{models.StoryVerify, models.StoryAdd, models.StoryModify, models.StoryRemove} {
		if strings.EqualFold(name, t.String()) {
			return t, nil
		}
	}
	return models.StoryVerify, fmt.Errorf("invalid story type %q, must be one of: verify, add, modify, remove", name)
}
