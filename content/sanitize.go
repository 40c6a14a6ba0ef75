package content

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxRemoteContentBytes caps the content field of inbound federated posts.
// Oversized content is rejected outright, never truncated.
const MaxRemoteContentBytes = 50 * 1024

// allowedTags maps each permitted element to the attributes that survive on
// it. Everything else is either dropped with its subtree (droppedTags) or
// unwrapped so only its inner text remains.
var allowedTags = map[string][]string{
	"p":          nil,
	"br":         nil,
	"a":          {"href", "rel", "class"},
	"span":       {"class"},
	"em":         nil,
	"strong":     nil,
	"i":          nil,
	"b":          nil,
	"u":          nil,
	"s":          nil,
	"del":        nil,
	"code":       nil,
	"pre":        nil,
	"blockquote": nil,
	"ul":         nil,
	"ol":         nil,
	"li":         nil,
}

var droppedTags = map[string]bool{
	"script": true,
	"style":  true,
	"iframe": true,
	"object": true,
	"embed":  true,
}

// Sanitize filters untrusted HTML down to the allowed subset. Disallowed
// tags outside droppedTags are unwrapped so their text survives; dropped
// tags disappear with their entire subtree. Unparseable input comes back
// empty.
func Sanitize(input string) string {
	if input == "" {
		return ""
	}

	nodes, err := parseFragment(input)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, n := range nodes {
		renderSafe(&b, n)
	}
	return b.String()
}

// TextContent strips all markup and returns the decoded text, with block
// boundaries turned into newlines. Hashtag and mention extraction runs on
// this form, never on raw HTML.
func TextContent(input string) string {
	if input == "" {
		return ""
	}

	nodes, err := parseFragment(input)
	if err != nil {
		return ""
	}

	var b strings.Builder
	for _, n := range nodes {
		collectText(&b, n)
	}
	return strings.TrimRight(b.String(), "\n")
}

// TruncateRunes cuts s to at most max runes, never splitting a codepoint.
func TruncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func parseFragment(input string) ([]*html.Node, error) {
	ctx := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
	}
	return html.ParseFragment(strings.NewReader(input), ctx)
}

func renderSafe(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(html.EscapeString(n.Data))
	case html.ElementNode:
		name := n.Data
		if droppedTags[name] {
			return
		}

		attrs, ok := allowedTags[name]
		if !ok {
			// Unwrap: the tag goes, the children stay.
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				renderSafe(b, c)
			}
			return
		}

		b.WriteByte('<')
		b.WriteString(name)
		for _, attr := range n.Attr {
			key := strings.ToLower(attr.Key)
			if !lo.Contains(attrs, key) {
				continue
			}
			if key == "href" && !safeHref(attr.Val) {
				continue
			}
			b.WriteString(" ")
			b.WriteString(key)
			b.WriteString(`="`)
			b.WriteString(html.EscapeString(attr.Val))
			b.WriteString(`"`)
		}
		b.WriteByte('>')

		if name == "br" {
			return
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			renderSafe(b, c)
		}
		b.WriteString("</")
		b.WriteString(name)
		b.WriteByte('>')
	}
}

var blockTags = map[string]bool{
	"p":          true,
	"div":        true,
	"blockquote": true,
	"pre":        true,
	"ul":         true,
	"ol":         true,
	"li":         true,
}

func collectText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		if droppedTags[n.Data] {
			return
		}
		if n.Data == "br" {
			b.WriteByte('\n')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collectText(b, c)
		}
		if blockTags[n.Data] {
			b.WriteByte('\n')
		}
	}
}

// safeHref rejects href values with an active scheme. Relative links and
// http/https/mailto pass; javascript:, data: and anything else are cut.
func safeHref(val string) bool {
	u, err := url.Parse(strings.TrimSpace(val))
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "", "http", "https", "mailto":
		return true
	}
	return false
}
