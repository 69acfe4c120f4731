package jira

import (
	"strings"

	"github.com/harrison/selfheal/internal/story"
)

// Node is one node of an Atlassian Document Format tree.
type Node struct {
	Type    string                 `json:"type"`
	Version int                    `json:"version,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Marks   []Mark                 `json:"marks,omitempty"`
	Content []Node                 `json:"content,omitempty"`
}

// Mark decorates a text node.
type Mark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// Doc wraps block nodes in a version 1 document.
func Doc(content ...Node) Node {
	return Node{Type: "doc", Version: 1, Content: content}
}

// Paragraph builds a paragraph holding plain text.
func Paragraph(text string) Node {
	p := Node{Type: "paragraph"}
	if text != "" {
		p.Content = []Node{{Type: "text", Text: text}}
	}
	return p
}

// Blocks flattens a document into description blocks.
func Blocks(doc *Node) []story.Block {
	if doc == nil {
		return nil
	}
	var out []story.Block
	for _, n := range doc.Content {
		out = append(out, nodeBlocks(n)...)
	}
	return out
}

func nodeBlocks(n Node) []story.Block {
	switch n.Type {
	case "heading":
		return []story.Block{{Kind: story.BlockHeading, Level: headingLevel(n), Text: inlineText(n), Links: nodeLinks(n)}}
	case "paragraph":
		text := inlineText(n)
		if text == "" {
			return nil
		}
		return []story.Block{{Kind: story.BlockParagraph, Text: text, Links: nodeLinks(n)}}
	case "bulletList", "orderedList":
		kind := story.BlockBullets
		if n.Type == "orderedList" {
			kind = story.BlockOrdered
		}
		return []story.Block{{Kind: kind, Items: listItems(n), Links: nodeLinks(n)}}
	case "codeBlock":
		return []story.Block{{Kind: story.BlockCode, Text: rawText(n)}}
	case "rule":
		return nil
	default:
		// panel, blockquote, expand, table, layoutSection and friends
		var out []story.Block
		for _, c := range n.Content {
			out = append(out, nodeBlocks(c)...)
		}
		return out
	}
}

func headingLevel(n Node) int {
	switch v := n.Attrs["level"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 1
}

func listItems(list Node) []string {
	var items []string
	for _, item := range list.Content {
		var parts []string
		var nested []string
		for _, c := range item.Content {
			if c.Type == "bulletList" || c.Type == "orderedList" {
				nested = append(nested, listItems(c)...)
				continue
			}
			if t := inlineText(c); t != "" {
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

// inlineText joins the text of n's descendants, skipping nested lists.
func inlineText(n Node) string {
	var sb strings.Builder
	var walk func(Node)
	walk = func(n Node) {
		switch n.Type {
		case "text":
			sb.WriteString(n.Text)
			return
		case "hardBreak":
			sb.WriteByte(' ')
			return
		case "inlineCard":
			if u, ok := n.Attrs["url"].(string); ok {
				sb.WriteString(u)
			}
			return
		case "mention", "emoji":
			if t, ok := n.Attrs["text"].(string); ok {
				sb.WriteString(t)
			}
			return
		case "bulletList", "orderedList":
			return
		}
		for i, c := range n.Content {
			if i > 0 && isBlock(c) {
				sb.WriteByte(' ')
			}
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}

func isBlock(n Node) bool {
	switch n.Type {
	case "paragraph", "heading", "codeBlock":
		return true
	}
	return false
}

func rawText(n Node) string {
	var sb strings.Builder
	for _, c := range n.Content {
		sb.WriteString(c.Text)
	}
	return sb.String()
}

func nodeLinks(n Node) []string {
	var out []string
	var walk func(Node)
	walk = func(n Node) {
		for _, m := range n.Marks {
			if m.Type == "link" {
				if href, ok := m.Attrs["href"].(string); ok {
					out = append(out, href)
				}
			}
		}
		if n.Type == "inlineCard" {
			if u, ok := n.Attrs["url"].(string); ok {
				out = append(out, u)
			}
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(n)
	return out
}

// FromMarkdown converts a markdown description into a document.
func FromMarkdown(src string) Node {
	var content []Node
	for _, b := range story.ParseMarkdown(src) {
		switch b.Kind {
		case story.BlockHeading:
			h := Node{Type: "heading", Attrs: map[string]interface{}{"level": b.Level}}
			h.Content = textWithLinks(b.Text, b.Links)
			content = append(content, h)
		case story.BlockParagraph:
			content = append(content, Node{Type: "paragraph", Content: textWithLinks(b.Text, b.Links)})
		case story.BlockBullets, story.BlockOrdered:
			list := Node{Type: "bulletList"}
			if b.Kind == story.BlockOrdered {
				list.Type = "orderedList"
			}
			for _, item := range b.Items {
				list.Content = append(list.Content, Node{Type: "listItem", Content: []Node{Paragraph(item)}})
			}
			content = append(content, list)
		case story.BlockCode:
			content = append(content, Node{Type: "codeBlock", Content: []Node{{Type: "text", Text: b.Text}}})
		}
	}
	if len(content) == 0 {
		content = []Node{Paragraph("")}
	}
	return Doc(content...)
}

// textWithLinks renders text plus any link targets it does not already
// spell out, each as a link-marked text node.
func textWithLinks(text string, links []string) []Node {
	var nodes []Node
	if text != "" {
		nodes = append(nodes, Node{Type: "text", Text: text})
	}
	for _, l := range links {
		if strings.Contains(text, l) {
			continue
		}
		if len(nodes) > 0 {
			nodes = append(nodes, Node{Type: "text", Text: " "})
		}
		nodes = append(nodes, Node{
			Type:  "text",
			Text:  l,
			Marks: []Mark{{Type: "link", Attrs: map[string]interface{}{"href": l}}},
		})
	}
	return nodes
}
