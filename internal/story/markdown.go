// Package story turns loosely structured story descriptions into the
// sections the rest of selfheal works with.
package story

import (
	"bytes"
	"regexp"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/harrison/selfheal/internal/models"
)

// BlockKind identifies a top-level description block.
type BlockKind string

const (
	BlockHeading   BlockKind = "heading"
	BlockParagraph BlockKind = "paragraph"
	BlockBullets   BlockKind = "bulletList"
	BlockOrdered   BlockKind = "orderedList"
	BlockCode      BlockKind = "codeBlock"
)

// Block is a flattened description block. Markdown and Jira's document
// format both reduce to a sequence of these.
type Block struct {
	Kind  BlockKind
	Level int      // Heading level
	Text  string   // Heading, paragraph or code text
	Items []string // List items, nested items flattened in order
	Links []string // Link targets found inside the block
}

var md = goldmark.New(goldmark.WithExtensions(extension.Linkify))

// ParseMarkdown flattens a markdown document into blocks.
func ParseMarkdown(src string) []Block {
	source := []byte(src)
	doc := md.Parser().Parse(text.NewReader(source))
	return parseBlocks(doc, source)
}

func parseBlocks(parent ast.Node, source []byte) []Block {
	var blocks []Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			blocks = append(blocks, Block{
				Kind:  BlockHeading,
				Level: node.Level,
				Text:  inlineText(node, source),
				Links: links(node, source),
			})
		case *ast.Paragraph, *ast.TextBlock:
			blocks = append(blocks, Block{
				Kind:  BlockParagraph,
				Text:  inlineText(node, source),
				Links: links(node, source),
			})
		case *ast.List:
			kind := BlockBullets
			if node.IsOrdered() {
				kind = BlockOrdered
			}
			blocks = append(blocks, Block{
				Kind:  kind,
				Items: listItems(node, source),
				Links: links(node, source),
			})
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			blocks = append(blocks, Block{Kind: BlockCode, Text: codeText(node, source)})
		case *ast.Blockquote:
			blocks = append(blocks, parseBlocks(node, source)...)
		}
	}
	return blocks
}

// inlineText concatenates the text of n's inline descendants.
func inlineText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch t := c.(type) {
			case *ast.Text:
				buf.Write(t.Segment.Value(source))
				if t.SoftLineBreak() || t.HardLineBreak() {
					buf.WriteByte(' ')
				}
			case *ast.String:
				buf.Write(t.Value)
			case *ast.AutoLink:
				buf.Write(t.URL(source))
			case *ast.List:
				// Nested lists are flattened separately.
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func listItems(list *ast.List, source []byte) []string {
	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		var parts []string
		var nested []string
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			if sub, ok := c.(*ast.List); ok {
				nested = append(nested, listItems(sub, source)...)
				continue
			}
			if t := inlineText(c, source); t != "" {
				parts = append(parts, t)
			}
		}
		if len(parts) > 0 {
			items = append(items, strings.Join(parts, " "))
		}
		items = append(items, nested...)
	}
	return items
}

func links(n ast.Node, source []byte) []string {
	var out []string
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch l := c.(type) {
		case *ast.Link:
			out = append(out, string(l.Destination))
		case *ast.AutoLink:
			if l.AutoLinkType == ast.AutoLinkURL {
				out = append(out, string(l.URL(source)))
			}
		}
		return ast.WalkContinue, nil
	})
	return out
}

func codeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Section headings recognized in descriptions.
var (
	AcceptanceCriteriaHeadings = []string{"acceptance criteria", "acceptance criterion", "ac"}
	TestScenarioHeadings       = []string{"test scenarios", "test scenario", "scenarios", "test cases"}
)

var bulletPrefix = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)

// SectionItems returns the list items under the first heading whose text
// matches one of names. A paragraph ending in ":" counts as a heading, so
// "Acceptance Criteria:" followed by a list is recognized too. The section
// ends at the next heading of the same or a higher level.
func SectionItems(blocks []Block, names ...string) []string {
	for i, b := range blocks {
		level, ok := sectionStart(b, names)
		if !ok {
			continue
		}
		var items []string
		for _, next := range blocks[i+1:] {
			if next.Kind == BlockHeading && next.Level <= level {
				break
			}
			if next.Kind == BlockParagraph && level == labelLevel && strings.HasSuffix(next.Text, ":") {
				break
			}
			switch next.Kind {
			case BlockBullets, BlockOrdered:
				items = append(items, next.Items...)
			case BlockParagraph:
				items = append(items, paragraphItems(next.Text)...)
			}
		}
		return items
	}
	return nil
}

// labelLevel ranks a "Label:" paragraph below every real heading.
const labelLevel = 7

func sectionStart(b Block, names []string) (int, bool) {
	var title string
	level := b.Level
	switch b.Kind {
	case BlockHeading:
		title = b.Text
	case BlockParagraph:
		if !strings.HasSuffix(b.Text, ":") {
			return 0, false
		}
		title = b.Text
		level = labelLevel
	default:
		return 0, false
	}
	title = strings.ToLower(strings.Trim(strings.TrimSpace(title), ":*_ "))
	for _, name := range names {
		if title == name {
			return level, true
		}
	}
	return 0, false
}

// paragraphItems splits a paragraph into items when it carries inline
// bullets, otherwise the paragraph is one item.
func paragraphItems(p string) []string {
	p = strings.TrimSpace(p)
	if p == "" {
		return nil
	}
	return []string{bulletPrefix.ReplaceAllString(p, "")}
}

// AllLinks returns every link target in the blocks, in order, without duplicates.
func AllLinks(blocks []Block) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range blocks {
		for _, l := range b.Links {
			if l == "" || seen[l] {
				continue
			}
			seen[l] = true
			out = append(out, l)
		}
	}
	return out
}

// Enrich fills the story's acceptance criteria, test scenarios and URLs
// from its blocks, keeping anything already set.
func Enrich(s *models.Story, blocks []Block) {
	if len(s.AcceptanceCriteria) == 0 {
		s.AcceptanceCriteria = SectionItems(blocks, AcceptanceCriteriaHeadings...)
	}
	if len(s.TestScenarios) == 0 {
		s.TestScenarios = SectionItems(blocks, TestScenarioHeadings...)
	}
	seen := make(map[string]bool, len(s.URLs))
	for _, u := range s.URLs {
		seen[u] = true
	}
	for _, u := range AllLinks(blocks) {
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			if !seen[u] {
				seen[u] = true
				s.URLs = append(s.URLs, u)
			}
		}
	}
}

// FromMarkdown builds a story from a markdown description.
func FromMarkdown(id, title, description string) models.Story {
	s := models.Story{ID: id, Title: title, Description: description}
	Enrich(&s, ParseMarkdown(description))
	return s
}

// PlainText renders blocks back to readable text, one block per paragraph.
func PlainText(blocks []Block) string {
	var parts []string
	for _, b := range blocks {
		switch b.Kind {
		case BlockBullets:
			var lines []string
			for _, it := range b.Items {
				lines = append(lines, "- "+it)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		case BlockOrdered:
			var lines []string
			for i, it := range b.Items {
				lines = append(lines, strconv.Itoa(i+1)+". "+it)
			}
			parts = append(parts, strings.Join(lines, "\n"))
		default:
			if b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}
