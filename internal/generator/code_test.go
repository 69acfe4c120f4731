package generator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractCode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "typescript fence with prose",
			in:   "Here is the fixed test:\n```typescript\nimport { test } from '@playwright/test';\ntest('a', async () => {});\n```\nLet me know!",
			want: "import { test } from '@playwright/test';\ntest('a', async () => {});",
		},
		{
			name: "first block with a test wins",
			in:   "```bash\nnpx playwright test\n```\n\n```ts\ntest('b', async () => {});\n```",
			want: "test('b', async () => {});",
		},
		{
			name: "longest block when none declares a test",
			in:   "```\nshort\n```\n```\nmuch longer content\n```",
			want: "much longer content",
		},
		{
			name: "unfenced with leading prose",
			in:   "Sure, the selectors were wrong.\nimport { test } from '@playwright/test';\ntest('c', async () => {});",
			want: "import { test } from '@playwright/test';\ntest('c', async () => {});",
		},
		{
			name: "plain code untouched",
			in:   "  test('d', async () => {});  ",
			want: "test('d', async () => {});",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractCode(tt.in))
		})
	}
}

func TestValidateTestSource(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		wantErr error
	}{
		{name: "test call", source: "test('loads', async ({ page }) => {});"},
		{name: "describe block", source: "test.describe('suite', () => {});"},
		{name: "it call", source: "it('works', () => {})"},
		{name: "analysis json", source: `{"analysis": "selector changed", "rootCause": "strict mode", "recommendation": "use getByRole"}`, wantErr: ErrAnalysisResponse},
		{name: "prose", source: "The test failed because the button moved.", wantErr: ErrNotExecutable},
		{name: "word test without call", source: "this test is fine", wantErr: ErrNotExecutable},
		{name: "test with details object", source: "test('tagged', { tag: '@smoke' }, async ({ page }) => {});"},
		{name: "escaped quote in title", source: `test('doesn\'t crash', async () => {});`},
		{name: "template literal title", source: "test(`row ${i}`, async ({ page }) => {});"},
		{name: "serial describe", source: "test.describe.serial('checkout', () => {});"},
		{name: "prose with it and parenthesis", source: "I could not fix it (the selectors are unknown). Please share the page markup.", wantErr: ErrNotExecutable},
		{name: "prose with test and parenthesis", source: "The test (above) fails because the enroll button moved.", wantErr: ErrNotExecutable},
		{name: "call without a title", source: "test(async ({ page }) => {});", wantErr: ErrNotExecutable},
		{name: "title without a callback", source: "test('loads')", wantErr: ErrNotExecutable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTestSource(tt.source)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestExtractedProseIsNotExecutable(t *testing.T) {
	for _, reply := range []string{
		"I could not fix it (the selectors are unknown). Can you share the DOM?",
		"The test (above) fails because the banner is not deployed yet.",
	} {
		err := ValidateTestSource(ExtractCode(reply))
		assert.ErrorIs(t, err, ErrNotExecutable, reply)
	}
}

func TestLooksLikeAnalysisJSON(t *testing.T) {
	assert.True(t, LooksLikeAnalysisJSON(` {"issues": []} `))
	assert.False(t, LooksLikeAnalysisJSON(`{ test('x') }`))
	assert.False(t, LooksLikeAnalysisJSON(`import x`))
}
