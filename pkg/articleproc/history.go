package articleproc

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"stadiumhq/pkg/sanitize"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HistoryKeyword is the heading text that marks the history section.
const HistoryKeyword = "history"

// PickHistoryHTML locates the history section of a rendered article and returns
// it sanitized. It returns nil when the article has no such section or the
// section is empty once sanitized.
//
// Parsoid output wraps each section in <section>; that container is used when
// present. Otherwise the content following the history heading is collected up
// to the next heading of the same or a higher level.
func PickHistoryHTML(r io.Reader) (*string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse article html: %w", err)
	}

	root := findParserOutput(doc)
	if root == nil {
		root = doc
	}
	pruneNoise(root)

	raw := historyFromSection(root)
	if raw == "" {
		raw = historyFromHeading(root)
	}
	if raw == "" {
		return nil, nil
	}

	clean := sanitize.HTML(raw)
	if clean == "" {
		return nil, nil
	}
	return &clean, nil
}

// historyFromSection returns the inner HTML of the first <section> whose own
// heading mentions history. The heading itself is left out.
func historyFromSection(root *html.Node) string {
	var found, heading *html.Node
	walk(root, func(n *html.Node) bool {
		if found != nil {
			return false
		}
		if isElement(n, atom.Section) {
			if h, wrapper := ownHeading(n); h != nil && mentionsHistory(h) {
				found, heading = n, wrapper
				return false
			}
		}
		return true
	})
	if found == nil {
		return ""
	}

	var buf bytes.Buffer
	for c := found.FirstChild; c != nil; c = c.NextSibling {
		if c == heading {
			continue
		}
		_ = html.Render(&buf, c)
	}
	return buf.String()
}

// ownHeading returns the first h2/h3 that is a direct child of section, or sits
// in a direct mw-heading wrapper, along with the child node that holds it.
// Headings of nested subsections are not considered.
func ownHeading(section *html.Node) (heading, holder *html.Node) {
	for c := section.FirstChild; c != nil; c = c.NextSibling {
		if isElement(c, atom.H2) || isElement(c, atom.H3) {
			return c, c
		}
		if isElement(c, atom.Div) && hasClass(c, "mw-heading") {
			for h := c.FirstChild; h != nil; h = h.NextSibling {
				if isElement(h, atom.H2) || isElement(h, atom.H3) {
					return h, c
				}
			}
		}
		if headingLevel(c) > 0 {
			return nil, nil
		}
	}
	return nil, nil
}

// historyFromHeading walks the siblings after the first history heading.
func historyFromHeading(root *html.Node) string {
	heading := findFirst(root, func(n *html.Node) bool {
		return headingLevel(n) > 0 && mentionsHistory(n)
	})
	if heading == nil {
		return ""
	}
	level := headingLevel(heading)

	// Current skins wrap headings in <div class="mw-heading mw-headingN">.
	start := heading
	if p := heading.Parent; p != nil && isElement(p, atom.Div) && hasClass(p, "mw-heading") {
		start = p
	}

	var buf bytes.Buffer
	for n := start.NextSibling; n != nil; n = n.NextSibling {
		if l := sectionBreakLevel(n); l > 0 && l <= level {
			break
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) == "" {
			continue
		}
		_ = html.Render(&buf, n)
	}
	return buf.String()
}

// sectionBreakLevel reports the heading level a sibling starts, looking through
// the mw-heading wrapper. Zero means the node is not a heading.
func sectionBreakLevel(n *html.Node) int {
	if l := headingLevel(n); l > 0 {
		return l
	}
	if isElement(n, atom.Div) && hasClass(n, "mw-heading") {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if l := headingLevel(c); l > 0 {
				return l
			}
		}
	}
	return 0
}

func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func mentionsHistory(n *html.Node) bool {
	return strings.Contains(strings.ToLower(textOf(n)), HistoryKeyword)
}

// pruneNoise removes citation markers, edit links and embedded styles so they do
// not leak into the fragment as stray text.
func pruneNoise(root *html.Node) {
	var doomed []*html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch {
		case n.DataAtom == atom.Style, n.DataAtom == atom.Script, n.DataAtom == atom.Link:
			doomed = append(doomed, n)
			return false
		case n.DataAtom == atom.Sup && hasClass(n, "reference"):
			doomed = append(doomed, n)
			return false
		case hasClass(n, "mw-editsection"), hasClass(n, "mw-empty-elt"):
			doomed = append(doomed, n)
			return false
		}
		return true
	})
	for _, n := range doomed {
		if n.Parent != nil {
			n.Parent.RemoveChild(n)
		}
	}
}

func findParserOutput(n *html.Node) *html.Node {
	return findFirst(n, func(c *html.Node) bool {
		return isElement(c, atom.Div) && hasClass(c, "mw-parser-output")
	})
}

// walk visits n and its descendants in document order; returning false from
// visit skips the node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if c != n && match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func isElement(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && n.DataAtom == a
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key == "class" {
			for _, c := range strings.Fields(a.Val) {
				if c == class {
					return true
				}
			}
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
