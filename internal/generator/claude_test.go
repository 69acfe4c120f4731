package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClaudeOutput(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "result envelope", raw: `{"type":"result","subtype":"success","is_error":false,"result":"test('x', () => {})","session_id":"s1"}`, want: "test('x', () => {})"},
		{name: "content envelope", raw: `{"content":"hello","session_id":"s2"}`, want: "hello"},
		{name: "warning before envelope", raw: "Warning: slow network\n" + `{"type":"result","result":"ok"}`, want: "ok"},
		{name: "plain text passthrough", raw: "just text", want: "just text"},
		{name: "json that is not an envelope", raw: `{"analysis":"x"}`, want: `{"analysis":"x"}`},
		{name: "error envelope", raw: `{"type":"result","subtype":"error_max_turns","is_error":true,"result":"limit"}`, wantErr: true},
		{name: "empty output", raw: "  ", wantErr: true},
		{name: "empty result", raw: `{"type":"result","result":""}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseClaudeOutput([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClaudeGeneratorArgsAndEnv(t *testing.T) {
	var gotName string
	var gotArgs, gotEnv []string
	g := NewClaudeGenerator("", time.Minute)
	g.Model = "sonnet"
	g.exec = func(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
		gotName, gotArgs, gotEnv = name, args, env
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline)
		return []byte(`{"type":"result","result":"test('ok', async () => {})"}`), nil
	}

	out, err := g.Generate(context.Background(), Request{System: "be terse", Prompt: "write a test"})
	require.NoError(t, err)
	assert.Equal(t, "test('ok', async () => {})", out)
	assert.Equal(t, "claude", gotName)

	joined := strings.Join(gotArgs, " ")
	assert.Contains(t, joined, "--system-prompt be terse")
	assert.Contains(t, joined, "--model sonnet")
	assert.Contains(t, joined, "-p write a test")
	assert.Contains(t, joined, "--output-format json")
	assert.Contains(t, gotEnv, "TMPDIR="+cleanTmpDir)
}

func TestClaudeGeneratorFailure(t *testing.T) {
	g := NewClaudeGenerator("claude", 0)
	g.exec = func(ctx context.Context, name string, args []string, env []string) ([]byte, error) {
		return []byte("boom"), errors.New("exit status 1")
	}

	_, err := g.Generate(context.Background(), Request{Prompt: "p"})
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "claude", perr.Provider)
	assert.Contains(t, err.Error(), "boom")
}

func TestClaudeGeneratorRequiresPrompt(t *testing.T) {
	g := NewClaudeGenerator("claude", 0)
	_, err := g.Generate(context.Background(), Request{})
	assert.Error(t, err)
}
