package summary

import (
	"strings"
	"unicode/utf8"

	"newsletterbot/internal/content"
)

const (
	header      = "🤖 <b>AI Newsletter Summary</b>\n\n"
	footer      = "\n\n🇿🇦 <i>Curated for South African professionals</i>\n⚡ <i>Powered by AI Newsletter Bot SA</i>"
	cutMarker   = "..."
	maxTitleLen = 200
)

// Formatter renders Telegram HTML and keeps every message within Max code points.
// Body text may use **bold** markers; everything else is escaped.
type Formatter struct {
	Max int
}

func NewFormatter(maxLen int) *Formatter {
	if maxLen <= 0 {
		maxLen = content.MaxMessageLen
	}
	return &Formatter{Max: maxLen}
}

// Format lays out header, title, body, optional source link and footer.
// Only the body is shortened when the total would exceed Max.
func (f *Formatter) Format(title, body, link string) string {
	var pre strings.Builder
	pre.WriteString(header)
	if t := strings.TrimSpace(title); t != "" {
		pre.WriteString("📰 <b>")
		pre.WriteString(escape(clip(t, maxTitleLen)))
		pre.WriteString("</b>\n\n")
	}

	var post strings.Builder
	if l := strings.TrimSpace(link); strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		post.WriteString("\n\n🔗 <a href=\"")
		post.WriteString(escape(l))
		post.WriteString("\">Read Full Newsletter</a>")
	}
	post.WriteString(footer)

	fixed := utf8.RuneCountInString(pre.String()) + utf8.RuneCountInString(post.String())
	budget := f.Max - fixed
	if budget < 0 {
		// an absurd link; drop it rather than exceed the limit
		post.Reset()
		post.WriteString(footer)
		budget = f.Max - utf8.RuneCountInString(pre.String()) - utf8.RuneCountInString(footer)
	}
	return pre.String() + renderBody(normalizeBullets(strings.TrimSpace(body)), budget) + post.String()
}

// renderBody escapes s, turns **x** into <b>x</b> and fits the result into budget code points.
func renderBody(s string, budget int) string {
	if full := renderUpTo(s, -1); utf8.RuneCountInString(full) <= budget {
		return full
	}
	// reserve room for a closing tag and the marker
	limit := budget - len("</b>") - len(cutMarker)
	if limit < 0 {
		if budget < len(cutMarker) {
			return ""
		}
		return cutMarker
	}
	return renderUpTo(s, limit) + cutMarker
}

// renderUpTo renders s, stopping before the output would pass limit code points (limit < 0: no limit).
func renderUpTo(s string, limit int) string {
	var b strings.Builder
	n := 0
	bold := false
	rs := []rune(s)
	for i := 0; i < len(rs); i++ {
		var piece string
		toggle := false
		if rs[i] == '*' && i+1 < len(rs) && rs[i+1] == '*' {
			toggle = true
			if bold {
				piece = "</b>"
			} else {
				piece = "<b>"
			}
		} else {
			piece = escapeRune(rs[i])
		}
		pn := utf8.RuneCountInString(piece)
		if limit >= 0 && n+pn > limit {
			break
		}
		b.WriteString(piece)
		n += pn
		if toggle {
			bold = !bold
			i++
		}
	}
	if bold {
		b.WriteString("</b>")
	}
	return b.String()
}

func escapeRune(r rune) string {
	switch r {
	case '<':
		return "&lt;"
	case '>':
		return "&gt;"
	case '&':
		return "&amp;"
	case '"':
		return "&quot;"
	}
	return string(r)
}

func escape(s string) string {
	var b strings.Builder
	for _, r := range s {
		b.WriteString(escapeRune(r))
	}
	return b.String()
}

// normalizeBullets rewrites "- " and "* " list markers to "• ".
func normalizeBullets(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		trimmed := strings.TrimLeft(l, " \t")
		if strings.HasPrefix(trimmed, "- ") || (strings.HasPrefix(trimmed, "* ") && !strings.HasPrefix(trimmed, "**")) {
			lines[i] = "• " + strings.TrimSpace(trimmed[2:])
		}
	}
	return strings.Join(lines, "\n")
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-len(cutMarker)]) + cutMarker
}
