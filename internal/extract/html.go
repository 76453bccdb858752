package extract

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// Elements whose subtrees never contribute article text.
var skippedElements = map[string]struct{}{
	"script":   {},
	"style":    {},
	"noscript": {},
	"template": {},
	"nav":      {},
	"header":   {},
	"footer":   {},
	"aside":    {},
	"form":     {},
	"iframe":   {},
	"svg":      {},
}

// extractHTML walks the DOM collecting article body text, preferring
// <article>/<main> content when present, and pulls title/description from
// the head. Parse errors degrade to a tag-stripped text pass rather than
// failing the resource.
func extractHTML(raw []byte) (title, description, text string) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", "", collapseWhitespace(stripTags(string(raw)))
	}

	title = findTitle(doc)
	description = findMetaDescription(doc)

	// Prefer semantic article containers; fall back to <body>.
	root := findFirst(doc, "article")
	if root == nil {
		root = findFirst(doc, "main")
	}
	if root == nil {
		root = findFirst(doc, "body")
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	collectText(root, &b)
	text = collapseWhitespace(b.String())

	if title == "" {
		if h1 := findFirst(doc, "h1"); h1 != nil {
			var hb strings.Builder
			collectText(h1, &hb)
			title = collapseWhitespace(hb.String())
		}
	}
	return title, description, text
}

func collectText(n *html.Node, b *strings.Builder) {
	if n.Type == html.ElementNode {
		if _, skip := skippedElements[n.Data]; skip {
			return
		}
	}
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode {
		switch n.Data {
		case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "h5", "h6", "tr":
			b.WriteByte(' ')
		}
	}
}

func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func findTitle(doc *html.Node) string {
	t := findFirst(doc, "title")
	if t == nil {
		return ""
	}
	var b strings.Builder
	collectText(t, &b)
	return collapseWhitespace(b.String())
}

func findMetaDescription(doc *html.Node) string {
	head := findFirst(doc, "head")
	if head == nil {
		return ""
	}
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != "meta" {
			continue
		}
		var name, content string
		for _, a := range c.Attr {
			switch strings.ToLower(a.Key) {
			case "name", "property":
				name = strings.ToLower(a.Val)
			case "content":
				content = a.Val
			}
		}
		if name == "description" || name == "og:description" {
			return collapseWhitespace(content)
		}
	}
	return ""
}

func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
			b.WriteByte(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Anchor is a harvested link with its surrounding text window, consumed by
// the citation engine.
type Anchor struct {
	Href    string
	Context string
	Text    string
}

// ExtractAnchors returns every href anchor in document order with ±window
// characters of surrounding text.
func ExtractAnchors(raw []byte, window int) []Anchor {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	var full strings.Builder
	collectText(doc, &full)
	fullText := collapseWhitespace(full.String())

	var anchors []Anchor
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := ""
			for _, a := range n.Attr {
				if a.Key == "href" {
					href = strings.TrimSpace(a.Val)
					break
				}
			}
			if href != "" && (strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://")) {
				var tb strings.Builder
				collectText(n, &tb)
				anchorText := collapseWhitespace(tb.String())
				anchors = append(anchors, Anchor{
					Href:    href,
					Text:    anchorText,
					Context: contextWindow(fullText, anchorText, window),
				})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return anchors
}

func contextWindow(text, around string, window int) string {
	if around == "" || text == "" {
		return around
	}
	idx := strings.Index(text, around)
	if idx < 0 {
		return around
	}
	start := idx - window
	if start < 0 {
		start = 0
	}
	end := idx + len(around) + window
	if end > len(text) {
		end = len(text)
	}
	return text[start:end]
}
