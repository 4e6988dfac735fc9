// Package content sanitizes note markup and derives plain-text views of it.
package content

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// skippedElements contribute no text to PlainText.
var skippedElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Iframe:   true,
	atom.Object:   true,
	atom.Embed:    true,
	atom.Template: true,
	atom.Noscript: true,
	atom.Svg:      true,
	atom.Math:     true,
}

// inlineElements do not separate words in PlainText.
var inlineElements = map[atom.Atom]bool{
	atom.A: true, atom.B: true, atom.I: true, atom.U: true, atom.S: true,
	atom.Em: true, atom.Strong: true, atom.Span: true, atom.Code: true,
	atom.Sub: true, atom.Sup: true, atom.Mark: true, atom.Small: true,
}

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// policy allows the user-generated-content set plus the inline formatting
// the editor produces. Anything not listed is dropped.
var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("u", "s", "strike", "mark", "small", "sub", "sup", "span", "div")
	p.AllowStyles("color", "background-color", "text-align", "text-decoration",
		"font-weight", "font-style").Globally()
	p.AllowDataURIImages()
	return p
}

// IsBlank reports whether content has nothing but whitespace.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// Sanitize reduces rich-text markup to an allow-list of formatting
// elements, attributes and URL schemes. Whitespace-only input is returned
// unchanged.
func Sanitize(s string) (string, error) {
	if IsBlank(s) {
		return s, nil
	}
	var b strings.Builder
	if err := policy.SanitizeReaderToWriter(strings.NewReader(s), &b); err != nil {
		return "", err
	}
	return b.String(), nil
}

// PlainText returns the text nodes of markup joined by single spaces.
func PlainText(s string) string {
	nodes, err := html.ParseFragment(strings.NewReader(s), bodyContext)
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			b.WriteString(n.Data)
			return
		case n.Type == html.ElementNode && skippedElements[n.DataAtom]:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && !inlineElements[n.DataAtom] {
			b.WriteByte(' ')
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Excerpt returns at most n runes of the plain text of s, ending in "…"
// when truncated.
func Excerpt(s string, n int) string {
	text := PlainText(s)
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:n])) + "…"
}
