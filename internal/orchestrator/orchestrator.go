// Package orchestrator drives the execute, classify, regenerate loop for
// one story's test artifact.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/classifier"
	"github.com/harrison/selfheal/internal/evidence"
	"github.com/harrison/selfheal/internal/healer"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
	"github.com/harrison/selfheal/internal/runner"
)

// State is a position in the healing state machine.
type State string

const (
	StateRunning        State = "running"
	StatePassed         State = "passed"
	StateFailed         State = "failed"
	StateHealing        State = "healing"
	StateTerminalPassed State = "terminal-passed"
	StateTerminalFailed State = "terminal-failed"
	StateCannotHeal     State = "cannot-heal"
)

// ErrNoArtifact is returned when the story has no artifact to execute.
var ErrNoArtifact = errors.New("no test artifact for story")

// TestRunner executes one artifact.
type TestRunner interface {
	Run(ctx context.Context, artifactPath string) (*runner.Execution, error)
}

// Healer regenerates a failing artifact.
type Healer interface {
	Regenerate(ctx context.Context, in healer.Input) (*healer.Result, error)
}

// HistoryRecorder persists finished outcomes.
type HistoryRecorder interface {
	RecordOutcome(ctx context.Context, outcome models.HealingOutcome) error
}

// SnapshotFunc renders a live DOM snapshot of url for healing prompts.
type SnapshotFunc func(ctx context.Context, url string) (string, error)

// Request identifies one healing run.
type Request struct {
	Story       models.Story
	TargetURL   string
	Credentials models.Credentials
}

// Orchestrator owns the retry loop. It is safe for concurrent use across
// different stories; runs on the same story are serialized by a file lock.
type Orchestrator struct {
	Runner     TestRunner
	Healer     Healer
	Store      *artifact.Store
	History    HistoryRecorder
	Snapshot   SnapshotFunc
	Logger     logger.Logger
	ResultsDir string

	// MaxAttempts is the total number of executions, including the first.
	MaxAttempts int

	now   func() time.Time
	newID func() string
}

// New creates an Orchestrator with the required collaborators.
func New(r TestRunner, h Healer, store *artifact.Store, maxAttempts int, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Orchestrator{
		Runner:      r,
		Healer:      h,
		Store:       store,
		Logger:      log,
		MaxAttempts: maxAttempts,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
	}
}

// Run executes the story's artifact until it passes, the attempts run out or
// the regenerator gives up. The returned outcome is always populated; an
// error is returned alongside it only when the loop could not continue
// (lock held, missing artifact, runner infrastructure failure or a
// cancelled context).
func (o *Orchestrator) Run(ctx context.Context, req Request) (models.HealingOutcome, error) {
	story := req.Story
	outcome := models.HealingOutcome{
		RunID:       o.newID(),
		StoryID:     story.ID,
		MaxAttempts: o.MaxAttempts,
		TargetURL:   req.TargetURL,
		StartedAt:   o.now(),
	}

	lock, err := o.Store.TryLockRun(story.ID)
	if err != nil {
		return o.abort(outcome, err)
	}
	defer lock.Release()

	if !o.Store.Exists(story.ID) {
		return o.abort(outcome, fmt.Errorf("%w %s", ErrNoArtifact, story.ID))
	}
	outcome.ArtifactPath = o.Store.Path(story.ID)

	storyType := story.Type()
	hint := classifier.HintFor(story, storyType)

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			outcome.Reason = fmt.Sprintf("cancelled before attempt %d", attempt)
			return o.finish(ctx, outcome, StateTerminalFailed), err
		}

		o.transition(story.ID, attempt, StateRunning, "executing artifact")
		o.Logger.LogAttemptStart(story.ID, attempt, o.MaxAttempts)

		ex, err := o.Runner.Run(ctx, outcome.ArtifactPath)
		outcome.Attempts = attempt
		if err != nil {
			if ex != nil {
				outcome.LastOutput = ex.Output
			}
			outcome.Reason = fmt.Sprintf("runner failed on attempt %d: %v", attempt, err)
			return o.finish(ctx, outcome, StateTerminalFailed), err
		}

		result, perr := runner.ParseExecution(ex)
		if perr != nil {
			o.Logger.LogWarn(fmt.Sprintf("%s attempt %d: %v", story.ID, attempt, perr))
		}
		outcome.Result = result
		outcome.LastOutput = ex.Output
		o.Logger.LogAttemptResult(story.ID, attempt, result)

		if result.Succeeded() && !ex.TimedOut {
			o.transition(story.ID, attempt, StatePassed, fmt.Sprintf("%d passed", result.Passed))
			outcome.History = append(outcome.History, models.HealingAttempt{
				AttemptNumber: attempt,
				Success:       true,
				Result:        result,
			})
			outcome.Reason = ""
			return o.finish(ctx, outcome, StateTerminalPassed), nil
		}

		classification := classifier.Classify(ex.Output, hint)
		outcome.LastClassification = &classification
		o.transition(story.ID, attempt, StateFailed, failureReason(ex, result, classification))

		record := models.HealingAttempt{
			AttemptNumber:  attempt,
			Classification: classification,
			ErrorType:      classification.ErrorType(),
			Result:         result,
		}

		if attempt >= o.MaxAttempts {
			outcome.History = append(outcome.History, record)
			outcome.Reason = fmt.Sprintf("failed after %d attempts (%s)", attempt, classification.ErrorType())
			return o.finish(ctx, outcome, StateTerminalFailed), nil
		}

		o.transition(story.ID, attempt, StateHealing, classification.ErrorType())
		o.Logger.LogHealing(story.ID, attempt, classification)

		res, err := o.heal(ctx, req, storyType, classification, ex.Output, attempt)
		if err != nil {
			outcome.History = append(outcome.History, record)
			if ctxErr := ctx.Err(); ctxErr != nil {
				outcome.Reason = fmt.Sprintf("cancelled while healing after attempt %d", attempt)
				return o.finish(ctx, outcome, StateTerminalFailed), ctxErr
			}
			outcome.Reason = fmt.Sprintf("cannot heal after attempt %d: %v", attempt, err)
			return o.finish(ctx, outcome, StateCannotHeal), nil
		}

		record.FixesApplied = res.FixesApplied
		record.RegeneratedArtifact = res.Artifact.Source
		outcome.History = append(outcome.History, record)
		outcome.HealingApplied = true
		outcome.FixesApplied = append(outcome.FixesApplied, res.FixesApplied...)
	}
}

func (o *Orchestrator) heal(ctx context.Context, req Request, storyType models.StoryType, c models.FailureClassification, output string, attempt int) (*healer.Result, error) {
	current, err := o.Store.Read(req.Story.ID)
	if err != nil {
		return nil, err
	}

	in := healer.Input{
		FailingArtifact: current.Source,
		RawFailure:      output,
		Classification:  c,
		Story:           req.Story,
		StoryType:       storyType,
		TargetURL:       req.TargetURL,
		Credentials:     req.Credentials,
		Attempt:         attempt,
	}
	if o.Snapshot != nil && req.TargetURL != "" {
		snap, err := o.Snapshot(ctx, req.TargetURL)
		if err != nil {
			o.Logger.LogWarn(fmt.Sprintf("%s: page snapshot failed: %v", req.Story.ID, err))
		} else {
			in.Snapshot = snap
		}
	}
	return o.Healer.Regenerate(ctx, in)
}

func (o *Orchestrator) transition(storyID string, attempt int, state State, reason string) {
	o.Logger.LogInfo(fmt.Sprintf("%s attempt %d -> %s: %s", storyID, attempt, state, reason))
}

// abort finishes an outcome that never reached the loop. It is not
// recorded in history.
func (o *Orchestrator) abort(outcome models.HealingOutcome, err error) (models.HealingOutcome, error) {
	outcome.Status = models.OutcomeFailed
	outcome.Reason = err.Error()
	outcome.FinishedAt = o.now()
	return outcome, err
}

// finish stamps the terminal state, attaches evidence and records history.
func (o *Orchestrator) finish(ctx context.Context, outcome models.HealingOutcome, state State) models.HealingOutcome {
	switch state {
	case StateTerminalPassed:
		outcome.Status = models.OutcomePassed
		outcome.Success = true
	case StateCannotHeal:
		outcome.Status = models.OutcomeCannotHeal
	default:
		outcome.Status = models.OutcomeFailed
	}
	outcome.FinishedAt = o.now()

	reason := outcome.Reason
	if reason == "" {
		reason = outcome.Status
	}
	o.transition(outcome.StoryID, outcome.Attempts, state, reason)

	if o.ResultsDir != "" {
		ev, err := evidence.Collect(o.ResultsDir)
		if err != nil {
			o.Logger.LogWarn(fmt.Sprintf("evidence collection incomplete: %v", err))
		}
		outcome.Evidence = ev
	}

	if o.History != nil {
		// A cancelled request context must not lose the record.
		if err := o.History.RecordOutcome(context.WithoutCancel(ctx), outcome); err != nil {
			o.Logger.LogWarn(fmt.Sprintf("failed to record run %s: %v", outcome.RunID, err))
		}
	}

	o.Logger.LogOutcome(outcome)
	return outcome
}

func failureReason(ex *runner.Execution, result models.ExecutionResult, c models.FailureClassification) string {
	if ex.TimedOut {
		return fmt.Sprintf("%s, %s", ex.Summary(), c.ErrorType())
	}
	return fmt.Sprintf("%d failed, %d passed, %s", result.Failed, result.Passed, c.ErrorType())
}
