// Package generator wraps the external text-generation providers used to
// write and repair Playwright tests. The providers are opaque: a prompt goes
// in, a text blob comes out.
package generator

import (
	"context"
	"errors"
	"fmt"

	"github.com/harrison/selfheal/internal/config"
)

// Request is one generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Generator produces text for a prompt.
type Generator interface {
	Name() string
	Generate(ctx context.Context, req Request) (string, error)
}

// ErrEmptyResponse is returned when a provider answers with no text.
var ErrEmptyResponse = errors.New("empty response from generator")

// ProviderError wraps a provider failure with the provider's name.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s generation failed: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error for error wrapping support.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// New builds the configured provider.
func New(ctx context.Context, cfg config.GeneratorConfig) (Generator, error) {
	switch cfg.Provider {
	case "", "claude":
		g := NewClaudeGenerator(cfg.ClaudePath, cfg.Timeout)
		g.Model = cfg.Model
		return g, nil
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown generator provider %q", cfg.Provider)
	}
}

// WithDefaults fills unset request parameters from configuration.
func WithDefaults(req Request, cfg config.GeneratorConfig) Request {
	if req.MaxTokens <= 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if req.Temperature == 0 {
		req.Temperature = cfg.Temperature
	}
	return req
}
