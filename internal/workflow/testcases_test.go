package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrison/selfheal/internal/inspector"
	"github.com/harrison/selfheal/internal/models"
)

func TestParseTestCases(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantCount int
		wantErr   error
	}{
		{name: "bare array", text: `[{"title":"A"},{"title":"B"}]`, wantCount: 2},
		{name: "fenced with prose", text: "Here you go:\n```json\n[{\"title\":\"A\"}]\n```\nEnjoy.", wantCount: 1},
		{name: "wrapped object", text: `{"testCases":[{"title":"A"},{"title":"B"},{"title":"C"}]}`, wantCount: 3},
		{name: "duplicates and blanks dropped", text: `[{"title":"A"},{"title":" A "},{"title":""}]`, wantCount: 1},
		{name: "empty array", text: `[]`, wantErr: ErrNoTestCases},
		{name: "not json", text: "I cannot help with that.", wantErr: ErrNoTestCases},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cases, err := ParseTestCases(tt.text)
			if tt.wantErr != nil {
				require.True(t, errors.Is(err, tt.wantErr), "err = %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, cases, tt.wantCount)
		})
	}
}

func TestParseTestCasesClearsIDs(t *testing.T) {
	cases, err := ParseTestCases(`[{"id":99,"title":"A","steps":[{"content":"Open","expected":"Loads"}]}]`)
	require.NoError(t, err)
	assert.Equal(t, 0, cases[0].ID)
	assert.Equal(t, []models.TestStep{{Content: "Open", Expected: "Loads"}}, cases[0].Steps)
}

func TestBuildTestCasePrompt(t *testing.T) {
	st := models.Story{
		ID:                 "ED-42",
		Title:              "Remove the legacy footer",
		AcceptanceCriteria: []string{"Footer is gone"},
		TestScenarios:      []string{"Mobile layout"},
	}
	prompt := BuildTestCasePrompt(st, models.StoryRemove)

	assert.Contains(t, prompt, "Story ED-42: Remove the legacy footer")
	assert.Contains(t, prompt, "Story type: REMOVE")
	assert.Contains(t, prompt, "1. Footer is gone")
	assert.Contains(t, prompt, "- Mobile layout")
}

func TestFallbackTestCases(t *testing.T) {
	cases := FallbackTestCases(models.Story{ID: "ED-1", Title: "Banner"})
	require.Len(t, cases, 1)
	assert.Equal(t, "ED-1 AC1: Banner", cases[0].Title)
	assert.Len(t, cases[0].Steps, 2)
}

func TestSnapshotFuncNil(t *testing.T) {
	assert.Nil(t, SnapshotFunc(nil))
}

func TestSnapshotFuncRenders(t *testing.T) {
	fn := SnapshotFunc(stubInspector{})
	out, err := fn(context.Background(), "https://www.edx.org")
	require.NoError(t, err)
	assert.Contains(t, out, "edX")
}

type stubInspector struct{}

func (stubInspector) Inspect(ctx context.Context, url string) (*inspector.Snapshot, error) {
	return &inspector.Snapshot{URL: url, Title: "edX | Online courses"}, nil
}

func (stubInspector) Close() error { return nil }
