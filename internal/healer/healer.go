// Package healer rewrites a failing Playwright test using the failure
// classification, the story and an external text generator.
package healer

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/selfheal/internal/artifact"
	"github.com/harrison/selfheal/internal/config"
	"github.com/harrison/selfheal/internal/generator"
	"github.com/harrison/selfheal/internal/logger"
	"github.com/harrison/selfheal/internal/models"
)

// ErrCannotHeal is returned when no executable artifact could be produced.
var ErrCannotHeal = errors.New("cannot heal")

// Fix label recorded when the structural template replaces generation.
const FixStructuralTemplate = "replaced content assertions with structural checks"

// Input is everything one healing cycle knows about the failure.
type Input struct {
	FailingArtifact string
	RawFailure      string
	Classification  models.FailureClassification
	Story           models.Story
	StoryType       models.StoryType
	TargetURL       string
	Credentials     models.Credentials
	Attempt         int

	// Snapshot is an optional rendered DOM snapshot of the target.
	Snapshot string
}

// Result is the artifact written by one healing cycle.
type Result struct {
	Artifact        *models.TestArtifact
	FixesApplied    []string
	GenerationCalls int
}

// Regenerator produces replacement artifacts.
type Regenerator struct {
	gen   generator.Generator
	store *artifact.Store
	cfg   config.GeneratorConfig
	log   logger.Logger
}

// NewRegenerator creates a Regenerator writing through store.
func NewRegenerator(gen generator.Generator, store *artifact.Store, cfg config.GeneratorConfig, log logger.Logger) *Regenerator {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Regenerator{gen: gen, store: store, cfg: cfg, log: log}
}

// Regenerate writes a corrected artifact for the story. Logic errors skip
// generation entirely. Otherwise at most two generation calls are made: the
// corrective prompt and, if its answer is not an executable test, one
// stricter retry. A second rejection returns ErrCannotHeal.
func (r *Regenerator) Regenerate(ctx context.Context, in Input) (*Result, error) {
	if in.Classification.IsLogicError {
		r.log.LogInfo(fmt.Sprintf("%s: logic error on attempt %d, writing structural test", in.Story.ID, in.Attempt))
		art, err := r.store.Write(in.Story.ID, StructuralTest(in.Story, in.TargetURL))
		if err != nil {
			return nil, err
		}
		return &Result{Artifact: art, FixesApplied: []string{FixStructuralTemplate}}, nil
	}

	directives := Directives(in.Classification)
	source, calls, err := r.generateValidated(ctx, BuildPrompt(in, directives))
	if err != nil {
		return &Result{GenerationCalls: calls}, fmt.Errorf("%s attempt %d: %w", in.Story.ID, in.Attempt, err)
	}

	art, err := r.store.Write(in.Story.ID, source)
	if err != nil {
		return nil, err
	}

	fixes := make([]string, 0, len(directives))
	for _, d := range directives {
		fixes = append(fixes, d.Fix)
	}
	return &Result{Artifact: art, FixesApplied: fixes, GenerationCalls: calls}, nil
}

// Author writes the first artifact for a story. With no generator configured
// an Add story falls back to the structural template; otherwise the artifact
// is generated with the story type's strategy and validated the same way a
// regeneration is.
func (r *Regenerator) Author(ctx context.Context, story models.Story, storyType models.StoryType, targetURL string, cases []models.TestCase, snapshot string) (*Result, error) {
	if storyType == models.StoryAdd && r.gen == nil {
		art, err := r.store.Write(story.ID, StructuralTest(story, targetURL))
		if err != nil {
			return nil, err
		}
		return &Result{Artifact: art, FixesApplied: []string{FixStructuralTemplate}}, nil
	}

	source, calls, err := r.generateValidated(ctx, BuildAuthorPrompt(story, storyType, targetURL, cases, snapshot))
	if err != nil {
		return &Result{GenerationCalls: calls}, fmt.Errorf("%s: %w", story.ID, err)
	}
	art, err := r.store.Write(story.ID, source)
	if err != nil {
		return nil, err
	}
	return &Result{Artifact: art, GenerationCalls: calls}, nil
}

// generateValidated runs the prompt, and one stricter retry when the first
// answer is not an executable test. Provider failures are not retried.
func (r *Regenerator) generateValidated(ctx context.Context, prompt string) (string, int, error) {
	if r.gen == nil {
		return "", 0, fmt.Errorf("%w: no generator configured", ErrCannotHeal)
	}

	calls := 0
	source, err := r.generate(ctx, prompt)
	calls++
	if err != nil {
		return "", calls, fmt.Errorf("%w: %w", ErrCannotHeal, err)
	}
	verr := generator.ValidateTestSource(source)
	if verr == nil {
		return source, calls, nil
	}

	r.log.LogWarn(fmt.Sprintf("Generated artifact rejected (%v), retrying with stricter instructions", verr))
	source, err = r.generate(ctx, StrictPrompt(prompt, verr))
	calls++
	if err != nil {
		return "", calls, fmt.Errorf("%w: %w", ErrCannotHeal, err)
	}
	if verr := generator.ValidateTestSource(source); verr != nil {
		return "", calls, fmt.Errorf("%w: regenerated artifact still invalid: %w", ErrCannotHeal, verr)
	}
	return source, calls, nil
}

func (r *Regenerator) generate(ctx context.Context, prompt string) (string, error) {
	req := generator.WithDefaults(generator.Request{System: SystemPrompt, Prompt: prompt}, r.cfg)
	text, err := r.gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	code := generator.ExtractCode(text)
	if generator.LooksLikeAnalysisJSON(code) {
		return code, nil
	}
	return EnsurePlaywrightImport(code), nil
}
