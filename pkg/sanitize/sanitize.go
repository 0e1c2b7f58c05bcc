// Package sanitize reduces untrusted article HTML to a fixed display subset.
//
// Only the tags and attributes listed in the policy survive. Disallowed
// elements are unwrapped with their text kept, and the contents of executable
// or embedding elements are discarded entirely.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	anchorRel    = "noopener noreferrer"
	anchorTarget = "_blank"
)

var policy = newPolicy()

func newPolicy() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"p", "ul", "ol", "li", "a", "b", "strong", "i", "em", "blockquote", "h3", "h4",
		"table", "thead", "tbody", "tr", "th", "td", "figure", "figcaption",
	)
	p.AllowAttrs("href", "title").OnElements("a")
	// rel and target are forced afterwards, so an anchor must survive bare.
	p.AllowNoAttrs().OnElements("a")
	p.AllowAttrs("colspan", "rowspan").Matching(bluemonday.Integer).OnElements("td", "th")
	p.AllowAttrs("class").OnElements("figure")

	p.AllowURLSchemes("http", "https", "ftp", "mailto", "tel")
	p.AllowRelativeURLs(true)

	p.SkipElementsContent(
		"script", "style", "iframe", "noscript", "template", "object", "embed",
		"svg", "math", "textarea", "select", "title",
	)
	return p
}

// HTML returns fragment restricted to the allow-list, with every anchor opening
// in a new browsing context. The result is trimmed of surrounding whitespace.
func HTML(fragment string) string {
	clean := policy.Sanitize(fragment)
	return strings.TrimSpace(rewriteAnchors(clean))
}

// rewriteAnchors sets rel and target on every anchor to the fixed values,
// replacing whatever the anchor carried.
func rewriteAnchors(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))

	var b strings.Builder
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		tok := z.Token()
		if (tt == html.StartTagToken || tt == html.SelfClosingTagToken) && tok.DataAtom == atom.A {
			attrs := make([]html.Attribute, 0, len(tok.Attr)+2)
			for _, a := range tok.Attr {
				if a.Key != "rel" && a.Key != "target" {
					attrs = append(attrs, a)
				}
			}
			tok.Attr = append(attrs,
				html.Attribute{Key: "rel", Val: anchorRel},
				html.Attribute{Key: "target", Val: anchorTarget},
			)
		}
		b.WriteString(tok.String())
	}
	return b.String()
}
