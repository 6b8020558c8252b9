package rewrite

import (
	"encoding/json"
	"fmt"
	"strings"
)

// adfNode is one node of Atlassian Document Format tree, decoded loosely
// since ADF nesting depth and node vocabulary vary by field (description,
// comment body, ...). Generalizes the teacher's DescriptionToPlainText,
// which only peels two fixed levels of nesting, into a full walk.
type adfNode struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Content []adfNode       `json:"content"`
	Marks   []adfMark       `json:"marks"`
	Attrs   json.RawMessage `json:"attrs"`
}

type adfMark struct {
	Type  string          `json:"type"`
	Attrs json.RawMessage `json:"attrs"`
}

// adfToMarkdown walks an ADF document recursively; list nesting depth is
// passed down as a parameter, and each list item is rendered by a nested
// walk.
func adfToMarkdown(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("rewrite: decode ADF: %w", err)
	}

	w := &adfWalker{}
	w.walkChildren(doc.Content, 0)
	return strings.TrimRight(w.buf.String(), "\n") + "\n", nil
}

type adfWalker struct {
	buf strings.Builder
}

func (w *adfWalker) walkChildren(nodes []adfNode, listDepth int) {
	for i, n := range nodes {
		w.walkNode(n, listDepth, i)
	}
}

func (w *adfWalker) walkNode(n adfNode, listDepth int, index int) {
	switch n.Type {
	case "paragraph":
		w.walkInline(n.Content)
		w.buf.WriteString("\n\n")
	case "heading":
		level := adfHeadingLevel(n.Attrs)
		w.buf.WriteString(strings.Repeat("#", level) + " ")
		w.walkInline(n.Content)
		w.buf.WriteString("\n\n")
	case "blockquote":
		inner := &adfWalker{}
		inner.walkChildren(n.Content, listDepth)
		for _, line := range strings.Split(strings.TrimRight(inner.buf.String(), "\n"), "\n") {
			w.buf.WriteString("> " + line + "\n")
		}
		w.buf.WriteString("\n")
	case "codeBlock":
		w.buf.WriteString("```\n")
		w.walkInline(n.Content)
		w.buf.WriteString("\n```\n\n")
	case "rule":
		w.buf.WriteString("---\n\n")
	case "bulletList":
		w.walkList(n.Content, listDepth, false)
	case "orderedList":
		w.walkList(n.Content, listDepth, true)
	case "listItem":
		w.walkChildren(n.Content, listDepth)
	case "table":
		w.walkTable(n.Content)
	case "mediaSingle", "mediaGroup":
		w.walkChildren(n.Content, listDepth)
	case "media":
		w.buf.WriteString(adfMediaPlaceholder(n.Attrs))
		w.buf.WriteString("\n\n")
	default:
		// Unknown block node: recurse into its children so text isn't lost.
		w.walkChildren(n.Content, listDepth)
	}
}

func (w *adfWalker) walkList(items []adfNode, depth int, ordered bool) {
	for i, item := range items {
		prefix := strings.Repeat("  ", depth)
		if ordered {
			prefix += fmt.Sprintf("%d. ", i+1)
		} else {
			prefix += "- "
		}
		inner := &adfWalker{}
		inner.walkChildren(item.Content, depth+1)
		text := strings.TrimRight(inner.buf.String(), "\n")
		lines := strings.Split(text, "\n")
		for j, line := range lines {
			if j == 0 {
				w.buf.WriteString(prefix + line + "\n")
			} else if line != "" {
				w.buf.WriteString(strings.Repeat("  ", depth+1) + line + "\n")
			}
		}
	}
	w.buf.WriteString("\n")
}

func (w *adfWalker) walkTable(rows []adfNode) {
	for ri, row := range rows {
		var cells []string
		for _, cell := range row.Content {
			inner := &adfWalker{}
			inner.walkChildren(cell.Content, 0)
			cells = append(cells, strings.TrimSpace(strings.ReplaceAll(inner.buf.String(), "\n", " ")))
		}
		w.buf.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		if ri == 0 {
			sep := make([]string, len(cells))
			for i := range sep {
				sep[i] = "---"
			}
			w.buf.WriteString("| " + strings.Join(sep, " | ") + " |\n")
		}
	}
	w.buf.WriteString("\n")
}

func (w *adfWalker) walkInline(nodes []adfNode) {
	for _, n := range nodes {
		switch n.Type {
		case "text":
			w.buf.WriteString(applyMarks(n.Text, n.Marks))
		case "hardBreak":
			w.buf.WriteString("  \n")
		case "mention":
			w.buf.WriteString(adfMentionText(n.Attrs))
		case "inlineCard":
			w.buf.WriteString(adfInlineCardText(n.Attrs))
		case "emoji":
			w.buf.WriteString(adfEmojiText(n.Attrs))
		default:
			w.walkInline(n.Content)
		}
	}
}

func applyMarks(text string, marks []adfMark) string {
	for _, m := range marks {
		switch m.Type {
		case "strong":
			text = "**" + text + "**"
		case "em":
			text = "_" + text + "_"
		case "code":
			text = "`" + text + "`"
		case "strike":
			text = "~~" + text + "~~"
		case "link":
			if href := adfLinkHref(m.Attrs); href != "" {
				text = fmt.Sprintf("[%s](%s)", text, href)
			}
		}
	}
	return text
}

func adfHeadingLevel(attrs json.RawMessage) int {
	var a struct {
		Level int `json:"level"`
	}
	if err := json.Unmarshal(attrs, &a); err != nil || a.Level < 1 {
		return 3
	}
	if a.Level > 6 {
		return 6
	}
	return a.Level
}

func adfLinkHref(attrs json.RawMessage) string {
	var a struct {
		Href string `json:"href"`
	}
	json.Unmarshal(attrs, &a)
	return a.Href
}

func adfMentionText(attrs json.RawMessage) string {
	var a struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	}
	json.Unmarshal(attrs, &a)
	if a.Text != "" {
		return a.Text
	}
	return "@" + a.ID
}

func adfInlineCardText(attrs json.RawMessage) string {
	var a struct {
		URL string `json:"url"`
	}
	json.Unmarshal(attrs, &a)
	return a.URL
}

func adfEmojiText(attrs json.RawMessage) string {
	var a struct {
		Text string `json:"text"`
	}
	json.Unmarshal(attrs, &a)
	return a.Text
}

func adfMediaPlaceholder(attrs json.RawMessage) string {
	var a struct {
		ID   string `json:"id"`
		Type string `json:"type"`
	}
	json.Unmarshal(attrs, &a)
	return fmt.Sprintf("[attachment:%s]", a.ID)
}

// adfPlainText flattens an ADF document to plain text when structured
// conversion fails, preserving paragraph breaks, hard breaks, and list item
// boundaries per spec.md §4.5 rule 1's fallback.
func adfPlainText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var doc adfNode
	if err := json.Unmarshal(raw, &doc); err != nil {
		return ""
	}
	var b strings.Builder
	flattenPlain(&b, doc.Content)
	return strings.TrimRight(b.String(), "\n")
}

func flattenPlain(b *strings.Builder, nodes []adfNode) {
	for _, n := range nodes {
		switch n.Type {
		case "text":
			b.WriteString(n.Text)
		case "hardBreak":
			b.WriteString("\n")
		case "paragraph", "heading", "listItem":
			flattenPlain(b, n.Content)
			b.WriteString("\n")
		default:
			flattenPlain(b, n.Content)
		}
	}
}
