package jira

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/harrison/selfheal/internal/story"
)

func TestFromMarkdownRoundTrip(t *testing.T) {
	src := "# Banner\nSee [mockup](https://figma.com/x).\n\n1. Open home\n2. Check banner\n\n```ts\nawait page.goto('/')\n```\n"
	doc := FromMarkdown(src)

	want := []story.Block{
		{Kind: story.BlockHeading, Level: 1, Text: "Banner"},
		{Kind: story.BlockParagraph, Text: "See mockup. https://figma.com/x", Links: []string{"https://figma.com/x"}},
		{Kind: story.BlockOrdered, Items: []string{"Open home", "Check banner"}},
		{Kind: story.BlockCode, Text: "await page.goto('/')"},
	}
	if diff := cmp.Diff(want, Blocks(&doc)); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%s", diff)
	}
}

func TestFromMarkdownEmpty(t *testing.T) {
	doc := FromMarkdown("")
	assert.Equal(t, "doc", doc.Type)
	assert.Len(t, doc.Content, 1)
	assert.Nil(t, Blocks(&doc))
}

func TestBlocksInlineCardsAndMentions(t *testing.T) {
	doc := Doc(Node{Type: "paragraph", Content: []Node{
		{Type: "mention", Attrs: map[string]interface{}{"text": "@Sam"}},
		{Type: "text", Text: " check "},
		{Type: "inlineCard", Attrs: map[string]interface{}{"url": "https://www.edx.org/sale"}},
	}})
	blocks := Blocks(&doc)
	assert.Equal(t, "@Sam check https://www.edx.org/sale", blocks[0].Text)
	assert.Equal(t, []string{"https://www.edx.org/sale"}, blocks[0].Links)
}
