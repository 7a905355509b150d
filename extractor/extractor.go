// Package extractor reduces an HTML document to clean, reading-order text
// plus its anchor targets. Extraction is pure: the same document always
// yields the same result.
package extractor

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/matthewmueller/scrape/fetcher"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Result holds the extracted content. Links are absolute URLs in document
// order; duplicates are kept because order carries meaning for callers.
type Result struct {
	Text        string
	Title       string
	Description string
	Links       []string
}

// skipElements are subtrees that never contribute content or links.
var skipElements = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Iframe:   true,
	atom.Svg:      true,
	atom.Object:   true,
	atom.Embed:    true,
}

// boilerplateElements are page chrome whose text is dropped best-effort.
// Their anchors are still collected: "all anchor targets" means all.
var boilerplateElements = map[atom.Atom]bool{
	atom.Nav:    true,
	atom.Header: true,
	atom.Footer: true,
	atom.Aside:  true,
}

var boilerplateRoles = map[string]bool{
	"navigation":  true,
	"banner":      true,
	"contentinfo": true,
}

var collapseSpaceRe = regexp.MustCompile(`[ \t\r\f\v]+`)

// Extract turns a decoded document into clean text, a title, and absolute
// links. Non-HTML content passes through as text unchanged. Extraction
// never fails: an unparseable document degrades to its raw text.
func Extract(doc *fetcher.Document) *Result {
	if !strings.Contains(strings.ToLower(doc.ContentType), "html") {
		return &Result{Text: strings.TrimSpace(doc.Text)}
	}

	root, err := html.Parse(strings.NewReader(doc.Text))
	if err != nil {
		return &Result{Text: strings.TrimSpace(doc.Text)}
	}

	base, err := url.Parse(doc.FinalURL)
	if err != nil {
		base = nil
	}

	w := &walker{base: base}
	w.walk(root, false)

	return &Result{
		Text:        normalize(w.text.String()),
		Title:       strings.TrimSpace(collapseSpaceRe.ReplaceAllString(w.title, " ")),
		Description: strings.TrimSpace(w.desc),
		Links:       w.links,
	}
}

type walker struct {
	base  *url.URL
	text  strings.Builder
	title string
	desc  string
	links []string
}

// walk visits the tree in document order. suppressed marks boilerplate
// regions: their text is dropped but their anchors are still recorded.
func (w *walker) walk(n *html.Node, suppressed bool) {
	switch n.Type {
	case html.TextNode:
		if !suppressed {
			w.text.WriteString(n.Data)
		}
		return

	case html.ElementNode:
		if skipElements[n.DataAtom] {
			return
		}
		if n.DataAtom == atom.Title && w.title == "" {
			w.title = textContent(n)
			return
		}
		if n.DataAtom == atom.Meta && w.desc == "" &&
			strings.EqualFold(attr(n, "name"), "description") {
			w.desc = attr(n, "content")
		}
		if n.DataAtom == atom.A {
			w.collectLink(n)
		}
		if boilerplateElements[n.DataAtom] || boilerplateRoles[attr(n, "role")] {
			suppressed = true
		}

		block := isBlock(n.DataAtom)
		if block && !suppressed {
			w.text.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, suppressed)
		}
		if !suppressed && (block || n.DataAtom == atom.Br || n.DataAtom == atom.Hr) {
			w.text.WriteString("\n")
		}

	default:
		// Document and doctype nodes: walk children. Comments have none.
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			w.walk(c, suppressed)
		}
	}
}

func (w *walker) collectLink(n *html.Node) {
	href := strings.TrimSpace(attr(n, "href"))
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return
	}
	u, err := url.Parse(href)
	if err != nil {
		return
	}
	if !u.IsAbs() {
		if w.base == nil {
			return
		}
		u = w.base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return
	}
	w.links = append(w.links, u.String())
}

// normalize collapses inline whitespace runs to single spaces and block
// boundaries to single newlines, preserving reading order.
func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(collapseSpaceRe.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.Div, atom.P, atom.Section, atom.Article, atom.Main,
		atom.Figure, atom.Figcaption, atom.Blockquote, atom.Pre,
		atom.Ul, atom.Ol, atom.Li, atom.Dl, atom.Dt, atom.Dd,
		atom.Table, atom.Tr, atom.Td, atom.Th, atom.Thead, atom.Tbody,
		atom.Tfoot, atom.Caption, atom.H1, atom.H2, atom.H3, atom.H4,
		atom.H5, atom.H6, atom.Details, atom.Summary, atom.Fieldset,
		atom.Legend, atom.Address, atom.Form:
		return true
	}
	return false
}
