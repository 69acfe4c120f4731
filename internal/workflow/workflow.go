// Package workflow implements the seven stages that take a story from the
// tracker to executed, self-healed tests with results pushed back.
//
// Each stage is independent: it loads what it needs (story, test cases,
// artifact, latest run) from the tracker, the history store or the
// artifact directory, and fails with a wrapped error the HTTP layer maps
// onto a status code.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/generator"
	"github.com/harrison/selfheal/internal/healer"
	"github.com/harrison/selfheal/internal/inspector"
	"github.com/harrison/selfheal/internal/jira"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/orchestrator"
	"github.com/harrison/selfheal/internal/reporter"
	"github.com/harrison/selfheal/internal/restclient"
	"github.com/harrison/selfheal/internal/store"
	"github.com/harrison/selfheal/internal/story"
	"github.com/harrison/selfheal/internal/target"
	"github.com/harrison/selfheal/internal/testrail"
)

var (
	// ErrInvalidInput marks a request the caller must fix.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing story, artifact, run or test case set.
	ErrNotFound = errors.New("not found")
)

// StoryTracker is the story-tracking system.
type StoryTracker interface {
	Enabled() bool
	GetStory(ctx context.Context, key string) (*models.Story, error)
	CreateStory(ctx context.Context, req jira.CreateRequest) (string, error)
	AddComment(ctx context.Context, key, text string) error
	Ping(ctx context.Context) error
}

// CaseTracker is the test-case tracking system.
type CaseTracker interface {
	Enabled() bool
	UpsertCases(ctx context.Context, cases []models.TestCase, refs string) ([]models.TestCase, error)
	AddRun(ctx context.Context, name string, caseIDs []int) (*testrail.Run, error)
	AddResults(ctx context.Context, runID int, results []testrail.Result) error
	Ping(ctx context.Context) error
}

// History persists runs and generated test cases.
type History interface {
	SaveTestCases(ctx context.Context, storyID string, cases []models.TestCase) error
	LoadTestCases(ctx context.Context, storyID string) ([]models.TestCase, error)
	LatestRun(ctx context.Context, storyID string) (*store.RunRecord, error)
	SetTestRailRun(ctx context.Context, runID string, testRailRunID int) error
	Ping(ctx context.Context) error
}

// Author writes the first artifact for a story.
type Author interface {
	Author(ctx context.Context, story models.Story, storyType models.StoryType, targetURL string, cases []models.TestCase, snapshot string) (*healer.Result, error)
}

// Executor runs the healing loop.
type Executor interface {
	Run(ctx context.Context, req orchestrator.Request) (models.HealingOutcome, error)
}

// Service wires the stages together. Nil collaborators disable the stages
// that need them.
type Service struct {
	Jira        StoryTracker
	TestRail    CaseTracker
	Generator   generator.Generator
	GenConfig   config.GeneratorConfig
	Author      Author
	Executor    Executor
	History     History
	Artifacts   *artifact.Store
	URLs        *target.URLResolver
	Credentials *target.CredentialResolver
	Inspector   inspector.Inspector
	Logger      logger.Logger

	// PostComments posts the status comment to the tracker after execution.
	PostComments bool

	mu      sync.RWMutex
	stories map[string]models.Story
}

// CreateStoryRequest is the input of the create-story stage.
type CreateStoryRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	IssueType   string   `json:"issueType,omitempty"`
	Labels      []string `json:"labels,omitempty"`
	ProjectKey  string   `json:"projectKey,omitempty"`
}

// CreateStory creates the story in the tracker and caches its parsed form.
func (s *Service) CreateStory(ctx context.Context, req CreateStoryRequest) (*models.Story, error) {
	if strings.TrimSpace(req.Summary) == "" {
		return nil, fmt.Errorf("%w: summary is required", ErrInvalidInput)
	}
	if s.Jira == nil || !s.Jira.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	key, err := s.Jira.CreateStory(ctx, jira.CreateRequest{
		Summary:     req.Summary,
		Description: req.Description,
		IssueType:   req.IssueType,
		Labels:      req.Labels,
		ProjectKey:  req.ProjectKey,
	})
	if err != nil {
		return nil, err
	}
	s.log().LogInfo(fmt.Sprintf("Created story %s", key))

	st := story.FromMarkdown(key, req.Summary, req.Description)
	st.Labels = req.Labels
	s.remember(st)
	return &st, nil
}

// FetchStory loads a story from the tracker, replacing any cached copy.
func (s *Service) FetchStory(ctx context.Context, key string) (*models.Story, error) {
	if key = strings.TrimSpace(key); key == "" {
		return nil, fmt.Errorf("%w: story key is required", ErrInvalidInput)
	}
	if s.Jira == nil || !s.Jira.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	st, err := s.Jira.GetStory(ctx, key)
	if err != nil {
		if restclient.IsNotFound(err) {
			return nil, fmt.Errorf("%w: story %s: %v", ErrNotFound, key, err)
		}
		return nil, err
	}
	s.remember(*st)
	return st, nil
}

// UseStory registers a story supplied inline by the caller, for runs
// without a tracker.
func (s *Service) UseStory(st models.Story) error {
	if strings.TrimSpace(st.ID) == "" {
		return fmt.Errorf("%w: story id is required", ErrInvalidInput)
	}
	story.Enrich(&st, story.ParseMarkdown(st.Description))
	s.remember(st)
	return nil
}

// GenerateTests produces manual test cases for a story and stores them.
func (s *Service) GenerateTests(ctx context.Context, key string) ([]models.TestCase, error) {
	st, err := s.story(ctx, key)
	if err != nil {
		return nil, err
	}

	var cases []models.TestCase
	if s.Generator == nil {
		s.log().LogWarn(fmt.Sprintf("%s: no generator configured, deriving test cases from acceptance criteria", st.ID))
		cases = FallbackTestCases(st)
	} else {
		text, err := s.Generator.Generate(ctx, generator.WithDefaults(generator.Request{
			System: testCaseSystemPrompt,
			Prompt: BuildTestCasePrompt(st, st.Type()),
		}, s.GenConfig))
		if err != nil {
			return nil, fmt.Errorf("generate test cases for %s: %w", st.ID, err)
		}
		cases, err = ParseTestCases(text)
		if err != nil {
			return nil, fmt.Errorf("generate test cases for %s: %w", st.ID, err)
		}
	}

	if s.History != nil {
		if err := s.History.SaveTestCases(ctx, st.ID, cases); err != nil {
			return nil, fmt.Errorf("save test cases for %s: %w", st.ID, err)
		}
	}
	s.log().LogInfo(fmt.Sprintf("%s: %d test case(s) generated", st.ID, len(cases)))
	return cases, nil
}

// PushTestRail upserts the story's stored test cases and records their ids.
func (s *Service) PushTestRail(ctx context.Context, key string) ([]models.TestCase, error) {
	if s.TestRail == nil || !s.TestRail.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	cases, err := s.testCases(ctx, key)
	if err != nil {
		return nil, err
	}

	saved, err := s.TestRail.UpsertCases(ctx, cases, key)
	if err != nil {
		return nil, fmt.Errorf("push test cases for %s: %w", key, err)
	}
	if s.History != nil {
		if err := s.History.SaveTestCases(ctx, key, saved); err != nil {
			return nil, fmt.Errorf("save test case ids for %s: %w", key, err)
		}
	}
	s.log().LogInfo(fmt.Sprintf("%s: %d test case(s) pushed to TestRail", key, len(saved)))
	return saved, nil
}

// ScriptResult is the output of the generate-scripts stage.
type ScriptResult struct {
	StoryID      string                  `json:"storyId"`
	StoryType    models.StoryType        `json:"storyType"`
	Artifact     *models.TestArtifact    `json:"artifact"`
	Target       models.TargetResolution `json:"target"`
	FixesApplied []string                `json:"fixesApplied"`
}

// GenerateScripts writes the story's Playwright test.
func (s *Service) GenerateScripts(ctx context.Context, key string) (*ScriptResult, error) {
	if s.Author == nil {
		return nil, fmt.Errorf("%w: no test author configured", restclient.ErrNotConfigured)
	}
	st, err := s.story(ctx, key)
	if err != nil {
		return nil, err
	}
	cases := s.optionalTestCases(ctx, st.ID)

	storyType := st.Type()
	resolution := s.resolveURL(target.Input{Story: st, TestCases: cases})
	snapshot := s.snapshot(ctx, resolution.URL())

	res, err := s.Author.Author(ctx, st, storyType, resolution.URL(), cases, snapshot)
	if err != nil {
		return nil, fmt.Errorf("generate script for %s: %w", st.ID, err)
	}
	fixes := res.FixesApplied
	if fixes == nil {
		fixes = []string{}
	}
	return &ScriptResult{
		StoryID:      st.ID,
		StoryType:    storyType,
		Artifact:     res.Artifact,
		Target:       resolution,
		FixesApplied: fixes,
	}, nil
}

// ExecuteTests runs the healing loop and posts the status comment. The
// response is returned even when err is set, so callers can report the
// partial outcome.
func (s *Service) ExecuteTests(ctx context.Context, key string) (reporter.Response, error) {
	if s.Executor == nil {
		return reporter.Response{}, fmt.Errorf("%w: no executor configured", restclient.ErrNotConfigured)
	}
	st, err := s.story(ctx, key)
	if err != nil {
		return reporter.Response{}, err
	}
	if s.Artifacts != nil && !s.Artifacts.Exists(st.ID) {
		return reporter.Response{}, fmt.Errorf("%w: %s for %s, run generate-scripts first", ErrNotFound, orchestrator.ErrNoArtifact, st.ID)
	}

	in := target.Input{Story: st, TestCases: s.optionalTestCases(ctx, st.ID)}
	if s.Artifacts != nil {
		if art, err := s.Artifacts.Read(st.ID); err == nil {
			in.ArtifactSource = art.Source
		}
	}
	resolution := s.resolveURL(in)
	var creds models.Credentials
	if s.Credentials != nil {
		creds = s.Credentials.Resolve(in)
	}

	outcome, runErr := s.Executor.Run(ctx, orchestrator.Request{
		Story:       st,
		TargetURL:   resolution.URL(),
		Credentials: creds,
	})

	if runErr == nil && s.PostComments && s.Jira != nil && s.Jira.Enabled() {
		reporter.PostStatus(ctx, s.Jira, s.log(), st.ID, outcome)
	}
	return reporter.BuildResponse(outcome), runErr
}

// UpdateResult is the output of the update-results stage.
type UpdateResult struct {
	StoryID       string `json:"storyId"`
	RunID         string `json:"runId"`
	Status        string `json:"status"`
	TestRailRunID int    `json:"testRailRunId"`
	TestRailURL   string `json:"testRailUrl,omitempty"`
	ResultsPosted int    `json:"resultsPosted"`
}

// UpdateResults pushes the latest run's verdict to TestRail, one result per
// stored test case.
func (s *Service) UpdateResults(ctx context.Context, key string) (*UpdateResult, error) {
	if s.TestRail == nil || !s.TestRail.Enabled() {
		return nil, restclient.ErrNotConfigured
	}
	if s.History == nil {
		return nil, fmt.Errorf("%w: history store disabled", restclient.ErrNotConfigured)
	}
	run, err := s.History.LatestRun(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		return nil, err
	}
	cases, err := s.testCases(ctx, key)
	if err != nil {
		return nil, err
	}

	var ids []int
	for _, tc := range cases {
		if tc.ID > 0 {
			ids = append(ids, tc.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: test cases for %s have no TestRail ids, run push-testrail first", ErrInvalidInput, key)
	}

	trRun, err := s.TestRail.AddRun(ctx, fmt.Sprintf("%s automated run %s", key, run.StartedAt.Format(time.DateTime)), ids)
	if err != nil {
		return nil, err
	}

	status := testrail.OutcomeStatus(run.Status)
	comment := resultComment(run)
	results := make([]testrail.Result, 0, len(ids))
	for _, id := range ids {
		results = append(results, testrail.Result{
			CaseID:   id,
			StatusID: status,
			Comment:  comment,
			Elapsed:  elapsed(run.Result.DurationSeconds),
		})
	}
	if err := s.TestRail.AddResults(ctx, trRun.ID, results); err != nil {
		return nil, err
	}
	if err := s.History.SetTestRailRun(ctx, run.RunID, trRun.ID); err != nil {
		s.log().LogWarn(fmt.Sprintf("%s: failed to link run %s to TestRail run %d: %v", key, run.RunID, trRun.ID, err))
	}

	return &UpdateResult{
		StoryID:       key,
		RunID:         run.RunID,
		Status:        run.Status,
		TestRailRunID: trRun.ID,
		TestRailURL:   trRun.URL,
		ResultsPosted: len(results),
	}, nil
}

// Health reports which subsystems are reachable.
type Health struct {
	Status    string          `json:"status"`
	Subsystem map[string]bool `json:"subsystems"`
}

// Health probes every configured subsystem concurrently. Probes that fail
// mark their subsystem false; Health itself never errors.
func (s *Service) Health(ctx context.Context) Health {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	var mu sync.Mutex
	flags := map[string]bool{
		"jira":      false,
		"testrail":  false,
		"generator": s.Generator != nil,
		"store":     false,
		"inspector": s.Inspector != nil,
		"executor":  s.Executor != nil,
	}
	set := func(name string, ok bool) {
		mu.Lock()
		flags[name] = ok
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(4)
	if s.Jira != nil && s.Jira.Enabled() {
		g.Go(func() error { set("jira", s.Jira.Ping(ctx) == nil); return nil })
	}
	if s.TestRail != nil && s.TestRail.Enabled() {
		g.Go(func() error { set("testrail", s.TestRail.Ping(ctx) == nil); return nil })
	}
	if s.History != nil {
		g.Go(func() error { set("store", s.History.Ping(ctx) == nil); return nil })
	}
	_ = g.Wait()

	return Health{Status: "ok", Subsystem: flags}
}

// SnapshotFunc adapts an inspector to the orchestrator's snapshot hook.
func SnapshotFunc(insp inspector.Inspector) orchestrator.SnapshotFunc {
	if insp == nil {
		return nil
	}
	return func(ctx context.Context, url string) (string, error) {
		snap, err := insp.Inspect(ctx, url)
		if err != nil {
			return "", err
		}
		return inspector.Render(snap), nil
	}
}

func (s *Service) story(ctx context.Context, key string) (models.Story, error) {
	if key = strings.TrimSpace(key); key == "" {
		return models.Story{}, fmt.Errorf("%w: story key is required", ErrInvalidInput)
	}
	s.mu.RLock()
	st, ok := s.stories[key]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}
	if s.Jira == nil || !s.Jira.Enabled() {
		return models.Story{}, fmt.Errorf("%w: story %s is not loaded and no tracker is configured", ErrNotFound, key)
	}
	fetched, err := s.FetchStory(ctx, key)
	if err != nil {
		return models.Story{}, err
	}
	return *fetched, nil
}

func (s *Service) remember(st models.Story) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stories == nil {
		s.stories = make(map[string]models.Story)
	}
	s.stories[st.ID] = st
}

func (s *Service) testCases(ctx context.Context, key string) ([]models.TestCase, error) {
	if s.History == nil {
		return nil, fmt.Errorf("%w: history store disabled", restclient.ErrNotConfigured)
	}
	cases, err := s.History.LoadTestCases(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("%w: no test cases for %s, run generate-tests first", ErrNotFound, key)
	}
	return cases, nil
}

func (s *Service) optionalTestCases(ctx context.Context, key string) []models.TestCase {
	if s.History == nil {
		return nil
	}
	cases, err := s.History.LoadTestCases(ctx, key)
	if err != nil {
		s.log().LogWarn(fmt.Sprintf("%s: could not load test cases: %v", key, err))
		return nil
	}
	return cases
}

func (s *Service) resolveURL(in target.Input) models.TargetResolution {
	if s.URLs == nil {
		return models.TargetResolution{}
	}
	return s.URLs.Resolve(in)
}

func (s *Service) snapshot(ctx context.Context, url string) string {
	if s.Inspector == nil || url == "" {
		return ""
	}
	snap, err := s.Inspector.Inspect(ctx, url)
	if err != nil {
		s.log().LogWarn(fmt.Sprintf("page snapshot of %s failed: %v", url, err))
		return ""
	}
	return inspector.Render(snap)
}

func (s *Service) log() logger.Logger {
	if s.Logger == nil {
		return logger.NewNoOpLogger()
	}
	return s.Logger
}

func resultComment(run *store.RunRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Automated run %s: %s after %d/%d attempt(s). %d passed, %d failed, %d skipped.",
		run.RunID, strings.ToUpper(run.Status), run.Attempts, run.MaxAttempts,
		run.Result.Passed, run.Result.Failed, run.Result.Skipped)
	if run.HealingApplied {
		fmt.Fprintf(&sb, " Fixes applied: %s.", strings.Join(run.FixesApplied, "; "))
	}
	if run.Reason != "" {
		fmt.Fprintf(&sb, " Reason: %s.", run.Reason)
	}
	return sb.String()
}

// elapsed formats seconds the way TestRail accepts them ("1m 5s").
func elapsed(seconds float64) string {
	secs := int(seconds + 0.5)
	if secs < 1 {
		return ""
	}
	if secs < 60 {
		return fmt.Sprintf("%ds", secs)
	}
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}
