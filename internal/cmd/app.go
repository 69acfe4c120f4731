package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/generator"
	"github.com/harrison/selfheal/internal/healer"
	"github.com/harrison/selfheal/internal/inspector"
	"github.com/harrison/selfheal/internal/jira"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/orchestrator"
	"github.com/harrison/selfheal/internal/runner"
	"github.com/harrison/selfheal/internal/store"
	"github.com/harrison/selfheal/internal/story"
	"github.com/harrison/selfheal/internal/target"
	"github.com/harrison/selfheal/internal/testrail"
	"github.com/harrison/selfheal/internal/workflow"
)

// addConfigFlags registers the flags every command merges over the config file.
func addConfigFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("config", "", "Path to config file (default: .selfheal/config.yaml)")
	f.String("log-level", "", "Log level: trace, debug, info, warn, error")
	f.String("log-dir", "", "Directory for JSON run logs (empty string disables)")
	f.String("provider", "", "Generation provider: claude or gemini")
	f.Int("max-attempts", 0, "Total executions per run, including the first")
	f.String("timeout", "", "Hard limit for one runner execution (e.g. 3m, 180s)")
}

// loadConfig reads the config file, relocates the home directory, merges
// the flags that were set and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
		}
	} else {
		cfg, err = config.LoadConfigFromDir(".")
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if os.Getenv("SELFHEAL_HOME") != "" {
		home, err := config.GetHome()
		if err != nil {
			return nil, err
		}
		cfg.RelocateHome(home)
	}

	var (
		maxAttempts *int
		timeout     *time.Duration
		logDir      *string
		logLevel    *string
		provider    *string
	)
	flags := cmd.Flags()
	if flags.Changed("max-attempts") {
		v, _ := flags.GetInt("max-attempts")
		maxAttempts = &v
	}
	if flags.Changed("timeout") {
		raw, _ := flags.GetString("timeout")
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format: %w", err)
		}
		timeout = &d
	}
	if flags.Changed("log-dir") {
		v, _ := flags.GetString("log-dir")
		logDir = &v
	}
	if flags.Changed("log-level") {
		v, _ := flags.GetString("log-level")
		v = strings.ToLower(v)
		logLevel = &v
	}
	if flags.Changed("provider") {
		v, _ := flags.GetString("provider")
		provider = &v
	}
	cfg.MergeWithFlags(maxAttempts, timeout, logDir, logLevel, provider)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// app holds the collaborators built from one configuration.
type app struct {
	cfg       *config.Config
	log       logger.Logger
	fileLog   *logger.FileLogger
	history   *store.Store
	inspector inspector.Inspector
	artifacts *artifact.Store
	service   *workflow.Service
}

// newApp wires every component. Trackers that are not configured stay
// attached but report themselves disabled.
func newApp(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}

	// JSON output owns stdout.
	out := cmd.OutOrStdout()
	if asJSON, err := cmd.Flags().GetBool("json"); err == nil && asJSON {
		out = cmd.ErrOrStderr()
	}
	console := logger.NewConsoleLogger(out, cfg.LogLevel)
	a.log = console
	if cfg.LogDir != "" {
		fl, err := logger.NewFileLogger(cfg.LogDir, cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		a.fileLog = fl
		a.log = logger.NewMultiLogger(console, fl)
		a.log.LogDebug(fmt.Sprintf("Run log: %s", fl.RunFile()))
	}

	gen, err := generator.New(ctx, cfg.Generator)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create generator: %w", err)
	}

	a.artifacts = artifact.NewStore(cfg.Runner.TestsDir)
	regen := healer.NewRegenerator(gen, a.artifacts, cfg.Generator, a.log)
	orch := orchestrator.New(runner.NewPlaywrightRunner(cfg.Runner, nil), regen, a.artifacts, cfg.Healing.MaxAttempts, a.log)
	orch.ResultsDir = cfg.Runner.ResultsDir

	svc := &workflow.Service{
		Jira:         jira.NewClient(cfg.Jira),
		TestRail:     testrail.NewClient(cfg.TestRail),
		Generator:    gen,
		GenConfig:    cfg.Generator,
		Author:       regen,
		Executor:     orch,
		Artifacts:    a.artifacts,
		URLs:         target.NewURLResolver(cfg.Target, a.log),
		Credentials:  target.NewCredentialResolver(cfg.Target),
		Logger:       a.log,
		PostComments: true,
	}

	if cfg.Store.Enabled {
		st, err := store.NewStore(cfg.Store.DBPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open history store: %w", err)
		}
		a.history = st
		svc.History = st
		orch.History = st
	}

	if cfg.Inspector.Enabled {
		insp, err := inspector.New(cfg.Inspector)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.inspector = insp
		svc.Inspector = insp
		if cfg.Healing.InspectOnFailure {
			orch.Snapshot = workflow.SnapshotFunc(insp)
		}
	}

	a.service = svc
	return a, nil
}

// Close releases the browser, the database and the run log.
func (a *app) Close() error {
	var errs []error
	if a.inspector != nil {
		errs = append(errs, a.inspector.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	if a.fileLog != nil {
		errs = append(errs, a.fileLog.Close())
	}
	return errors.Join(errs...)
}

// addStoryFlags registers the flags that supply a story without a tracker.
func addStoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("story-file", "", "Markdown file describing the story (skips the tracker)")
	cmd.Flags().String("title", "", "Story title when --story-file has no leading heading")
}

// storyFromFlags builds a story from --story-file, or returns nil when the
// flag is unset.
func storyFromFlags(cmd *cobra.Command, key string) (*models.Story, error) {
	path, _ := cmd.Flags().GetString("story-file")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read story file: %w", err)
	}
	title, body := splitTitle(string(data))
	if t, _ := cmd.Flags().GetString("title"); t != "" {
		title = t
	}
	if title == "" {
		title = key
	}
	st := story.FromMarkdown(key, title, body)
	return &st, nil
}

// splitTitle takes a leading "# Heading" line off a markdown document.
func splitTitle(doc string) (string, string) {
	trimmed := strings.TrimLeft(doc, "\r\n\t ")
	if !strings.HasPrefix(trimmed, "# ") {
		return "", doc
	}
	line, rest, _ := strings.Cut(trimmed, "\n")
	return strings.TrimSpace(strings.TrimPrefix(line, "# ")), strings.TrimLeft(rest, "\r\n")
}

// loadStory registers the story from --story-file, or fetches it from the
// tracker.
func loadStory(ctx context.Context, cmd *cobra.Command, svc *workflow.Service, key string) (models.Story, error) {
	st, err := storyFromFlags(cmd, key)
	if err != nil {
		return models.Story{}, err
	}
	if st != nil {
		if err := svc.UseStory(*st); err != nil {
			return models.Story{}, err
		}
		return *st, nil
	}
	fetched, err := svc.FetchStory(ctx, key)
	if err != nil {
		return models.Story{}, fmt.Errorf("load story %s (use --story-file without a tracker): %w", key, err)
	}
	return *fetched, nil
}
