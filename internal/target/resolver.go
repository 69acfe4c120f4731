// Package target resolves the system-under-test URL and login credentials
// from loosely structured story data.
//
// Both resolutions are an ordered list of named strategies evaluated by
// one generic Resolver. Precedence is the list order: explicit data first,
// then mined text, conventions, salvage from generated code, and guesses.
package target

import (
	"github.com/harrison/selfheal/internal/models"
)

// Input is everything a strategy may look at.
type Input struct {
	Story          models.Story
	ArtifactSource string            // Currently failing artifact, if any
	TestCases      []models.TestCase // Associated manual test cases
}

// Strategy is one named way of finding a value.
type Strategy[T any] struct {
	Name string
	Find func(in Input) (T, bool)
}

// Candidate is a value together with the strategy that produced it.
type Candidate[T any] struct {
	Value  T
	Source string
}

// Resolver evaluates strategies in order.
type Resolver[T any] struct {
	Strategies []Strategy[T]
}

// Candidates returns every strategy hit, in precedence order.
func (r Resolver[T]) Candidates(in Input) []Candidate[T] {
	var out []Candidate[T]
	for _, s := range r.Strategies {
		if v, ok := s.Find(in); ok {
			out = append(out, Candidate[T]{Value: v, Source: s.Name})
		}
	}
	return out
}

// Resolve returns the first hit.
func (r Resolver[T]) Resolve(in Input) (Candidate[T], bool) {
	for _, s := range r.Strategies {
		if v, ok := s.Find(in); ok {
			return Candidate[T]{Value: v, Source: s.Name}, true
		}
	}
	var zero Candidate[T]
	return zero, false
}
