package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionResultNormalizeExcludesSkipped(t *testing.T) {
	r := ExecutionResult{Passed: 3, Failed: 1, Skipped: 2, Total: 99}
	r.Normalize()
	assert.Equal(t, 4, r.Total)
}

func TestExecutionResultSucceeded(t *testing.T) {
	tests := []struct {
		name string
		r    ExecutionResult
		want bool
	}{
		{name: "all passed", r: ExecutionResult{Passed: 2}, want: true},
		{name: "one failure", r: ExecutionResult{Passed: 2, Failed: 1}, want: false},
		{name: "nothing ran", r: ExecutionResult{}, want: false},
		{name: "only skipped", r: ExecutionResult{Skipped: 3}, want: false},
		{name: "only flaky", r: ExecutionResult{Flaky: 1}, want: true},
		{name: "interrupted", r: ExecutionResult{Passed: 2, Interrupted: 1}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Succeeded())
		})
	}
}

func TestExecutionResultJSONShape(t *testing.T) {
	r := ExecutionResult{Passed: 1, Total: 1, DurationSeconds: 5}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{"passed":1,"failed":0,"skipped":0,"total":1,"duration":5}`, string(data))
}

func TestHealingOutcomeDuration(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	o := HealingOutcome{StartedAt: start}
	assert.Zero(t, o.Duration())

	o.FinishedAt = start.Add(42 * time.Second)
	assert.Equal(t, 42*time.Second, o.Duration())
}

func TestEvidenceEmpty(t *testing.T) {
	assert.True(t, Evidence{}.Empty())
	assert.False(t, Evidence{Traces: []string{"a/trace.zip"}}.Empty())
}
