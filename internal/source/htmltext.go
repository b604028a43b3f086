package source

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StripTagsPolicy()
	blockEndRe  = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/li|/tr|/h[1-6]|/blockquote|/section|/article)\s*>`)
)

// HTMLToText turns an HTML fragment into plain text, keeping block boundaries as line breaks.
// Script and style bodies are dropped along with every tag; entities are decoded.
func HTMLToText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	s = blockEndRe.ReplaceAllString(s, "$0\n")
	return html.UnescapeString(stripPolicy.Sanitize(s))
}
