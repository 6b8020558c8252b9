package rewrite

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// macroPlaceholderMarkers are substrings Jira's HTML renderer leaves behind
// for macros it cannot render server-side (tables built from Confluence-style
// macros, panels, etc). Their presence means the HTML rendering is lossy
// compared to the ADF source, so the caller should prefer ADF instead —
// spec.md §4.5 rule 1.
var macroPlaceholderMarkers = []string{
	"<!-- macro",
	"class=\"macro-placeholder\"",
	"data-macro-name",
}

// hasMacroPlaceholders reports whether raw HTML contains a marker left by an
// unrenderable Jira macro.
func hasMacroPlaceholders(rawHTML string) bool {
	lower := strings.ToLower(rawHTML)
	for _, m := range macroPlaceholderMarkers {
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}

var htmlSanitizer = newHTMLSanitizer()

func newHTMLSanitizer() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowAttrs("href").OnElements("a")
	p.AllowAttrs("src", "alt").OnElements("img")
	return p
}

// htmlToMarkdown converts sanitized Jira-rendered HTML to Markdown by
// walking the parsed node tree, mirroring adfToMarkdown's block/inline
// split so both converters produce the same Markdown dialect.
func htmlToMarkdown(rawHTML string) (string, error) {
	clean := htmlSanitizer.Sanitize(rawHTML)
	doc, err := html.Parse(strings.NewReader(clean))
	if err != nil {
		return "", err
	}
	w := &htmlWalker{}
	w.walkBlock(doc)
	return strings.TrimRight(w.buf.String(), "\n") + "\n", nil
}

type htmlWalker struct {
	buf strings.Builder
}

func (w *htmlWalker) walkBlock(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.visitBlock(c)
	}
}

func (w *htmlWalker) visitBlock(n *html.Node) {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			w.buf.WriteString(text)
		}
		return
	}
	if n.Type != html.ElementNode {
		w.walkBlock(n)
		return
	}

	switch n.Data {
	case "p", "div":
		w.walkInline(n)
		w.buf.WriteString("\n\n")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		w.buf.WriteString(strings.Repeat("#", level) + " ")
		w.walkInline(n)
		w.buf.WriteString("\n\n")
	case "ul":
		w.walkListHTML(n, false)
	case "ol":
		w.walkListHTML(n, true)
	case "blockquote":
		inner := &htmlWalker{}
		inner.walkBlock(n)
		for _, line := range strings.Split(strings.TrimRight(inner.buf.String(), "\n"), "\n") {
			w.buf.WriteString("> " + line + "\n")
		}
		w.buf.WriteString("\n")
	case "pre", "code":
		w.buf.WriteString("```\n")
		w.walkInline(n)
		w.buf.WriteString("\n```\n\n")
	case "br":
		w.buf.WriteString("  \n")
	case "img":
		w.buf.WriteString(htmlImageMarkdown(n))
	default:
		w.walkBlock(n)
	}
}

func (w *htmlWalker) walkListHTML(n *html.Node, ordered bool) {
	i := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "li" {
			continue
		}
		i++
		prefix := "- "
		if ordered {
			prefix = itoaDot(i)
		}
		inner := &htmlWalker{}
		inner.walkInline(c)
		w.buf.WriteString(prefix + strings.TrimSpace(inner.buf.String()) + "\n")
	}
	w.buf.WriteString("\n")
}

func itoaDot(i int) string {
	digits := []byte{}
	for i > 0 {
		digits = append([]byte{byte('0' + i%10)}, digits...)
		i /= 10
	}
	return string(digits) + ". "
}

func (w *htmlWalker) walkInline(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			w.buf.WriteString(c.Data)
		case html.ElementNode:
			switch c.Data {
			case "strong", "b":
				w.buf.WriteString("**")
				w.walkInline(c)
				w.buf.WriteString("**")
			case "em", "i":
				w.buf.WriteString("_")
				w.walkInline(c)
				w.buf.WriteString("_")
			case "code":
				w.buf.WriteString("`")
				w.walkInline(c)
				w.buf.WriteString("`")
			case "a":
				href := htmlAttr(c, "href")
				inner := &htmlWalker{}
				inner.walkInline(c)
				w.buf.WriteString("[" + inner.buf.String() + "](" + href + ")")
			case "br":
				w.buf.WriteString("  \n")
			case "img":
				w.buf.WriteString(htmlImageMarkdown(c))
			default:
				w.walkInline(c)
			}
		}
	}
}

func htmlImageMarkdown(n *html.Node) string {
	alt := htmlAttr(n, "alt")
	src := htmlAttr(n, "src")
	return "![" + alt + "](" + src + ")"
}

func htmlAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
