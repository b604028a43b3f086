package content

import (
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"unicode/utf8"
)

// TruncationMarker is appended when Clean cuts the text.
const TruncationMarker = "..."

// DefaultDenylist lists boilerplate footer phrases dropped line by line.
var DefaultDenylist = []string{
	`unsubscribe`,
	`privacy policy`,
	`terms of service`,
	`copyright`,
	`all rights reserved`,
	`subscribe to .*newsletter`,
	`follow us on`,
	`powered by`,
	`this email was sent to`,
	`you received this email because`,
	`click here to`,
	`manage your preferences`,
	`update your email preferences`,
	`view (this email )?in (your )?browser`,
}

var (
	tagRe   = regexp.MustCompile(`<[^>]+>`)
	urlRe   = regexp.MustCompile(`https?://[^\s<>"]+`)
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
)

// Normalizer cleans raw adapter text. One value is shared by every adapter; Replace swaps
// its rules for later Clean calls.
type Normalizer struct {
	rules atomic.Pointer[ruleSet]
}

type ruleSet struct {
	deny   []*regexp.Regexp
	maxLen int
}

// NewNormalizer compiles the denylist patterns case-insensitively.
// maxLen <= 0 selects MaxBodyLen.
func NewNormalizer(denylist []string, maxLen int) (*Normalizer, error) {
	if maxLen <= 0 {
		maxLen = MaxBodyLen
	}
	if maxLen <= utf8.RuneCountInString(TruncationMarker) {
		return nil, fmt.Errorf("content: max length %d too small", maxLen)
	}
	rs := &ruleSet{maxLen: maxLen}
	for _, p := range denylist {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("content: denylist pattern %q: %w", p, err)
		}
		rs.deny = append(rs.deny, re)
	}
	n := &Normalizer{}
	n.rules.Store(rs)
	return n, nil
}

// MustNormalizer is NewNormalizer for static pattern lists.
func MustNormalizer(denylist []string, maxLen int) *Normalizer {
	n, err := NewNormalizer(denylist, maxLen)
	if err != nil {
		panic(err)
	}
	return n
}

// MaxLen returns the configured upper bound in code points.
func (n *Normalizer) MaxLen() int { return n.rules.Load().maxLen }

// Replace adopts the rules of next.
func (n *Normalizer) Replace(next *Normalizer) {
	if next != nil {
		n.rules.Store(next.rules.Load())
	}
}

// Clean strips markup, collapses whitespace, drops boilerplate lines, removes URLs and
// e-mail addresses and truncates to MaxLen. Line breaks survive as single "\n".
//
// Clean(Clean(x)) == Clean(x) whenever the first call did not truncate.
func (n *Normalizer) Clean(raw string) string {
	rs := n.rules.Load()
	s := stripTags(raw)
	s = strings.ReplaceAll(s, "\r\n", "\n")

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = collapse(line)
		if line == "" {
			continue
		}
		visible := collapse(stripAddresses(line))
		if visible == "" || rs.denied(visible) {
			continue
		}
		out = append(out, visible)
	}
	return truncate(strings.Join(out, "\n"), rs.maxLen)
}

func (rs *ruleSet) denied(line string) bool {
	for _, re := range rs.deny {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}

// stripTags removes tags until none remain, so nested leftovers like "<<b>i>" disappear too.
func stripTags(s string) string {
	for tagRe.MatchString(s) {
		s = tagRe.ReplaceAllString(s, " ")
	}
	return s
}

func stripAddresses(s string) string {
	s = urlRe.ReplaceAllString(s, " ")
	return emailRe.ReplaceAllString(s, " ")
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	cut := strings.TrimRight(string(r[:maxLen-utf8.RuneCountInString(TruncationMarker)]), " \n")
	return cut + TruncationMarker
}
