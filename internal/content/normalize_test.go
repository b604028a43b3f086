package content

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestCleanRules(t *testing.T) {
	t.Parallel()

	n := MustNormalizer(DefaultDenylist, 0)
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"tags", "<p>Hello <b>world</b></p>", "Hello world"},
		{"nested tag leftovers", "a <<b>i> z", "a i> z"},
		{"whitespace", "  many\t\tspaces   here  ", "many spaces here"},
		{"keeps line breaks", "first line\r\n\r\n\n second   line ", "first line\nsecond line"},
		{"denylist line", "Real content here\nClick to UNSUBSCRIBE now\nMore content", "Real content here\nMore content"},
		{"denylist regex", "Subscribe to our weekly newsletter!\nBody", "Body"},
		{"urls", "Read https://example.com/a?b=c now", "Read now"},
		{"emails", "Write to editor@example.co.za today", "Write to today"},
		{"line of only url", "Intro\nhttps://example.com/only\nOutro", "Intro\nOutro"},
		{"empty", "   \n\t", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := n.Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q)=%q want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanTruncates(t *testing.T) {
	t.Parallel()

	n := MustNormalizer(nil, 20)
	got := n.Clean(strings.Repeat("é", 50))
	if utf8.RuneCountInString(got) != 20 {
		t.Fatalf("len=%d want 20 (%q)", utf8.RuneCountInString(got), got)
	}
	if !strings.HasSuffix(got, TruncationMarker) {
		t.Fatalf("missing marker: %q", got)
	}

	short := n.Clean("just fine")
	if short != "just fine" {
		t.Fatalf("short input changed: %q", short)
	}
}

func TestCleanIdempotent(t *testing.T) {
	t.Parallel()

	n := MustNormalizer(DefaultDenylist, 0)
	inputs := []string{
		"<html><body><h1>AI Weekly</h1><p>Models got cheaper.</p></body></html>",
		"Contact a@b@c.com or x@a.co@b.com for info",
		"Visit http://x.com/<tag>y and https://z.io\"q\"",
		"<div>a <</div> b > c",
		"line one  \n\n  unsubscribe https://x.com \n privacy@example.com policy",
		"View this email in your browser\nNews: AI tools cut costs by 30% for SA firms.",
		"Text with\u00a0non-breaking\u2003spaces and\ttabs",
		"a < b and c > d",
		"<<<>>>",
	}
	for _, in := range inputs {
		once := n.Clean(in)
		twice := n.Clean(once)
		if once != twice {
			t.Fatalf("not idempotent for %q:\n once=%q\ntwice=%q", in, once, twice)
		}
	}
}

func TestNewNormalizerRejectsBadPattern(t *testing.T) {
	t.Parallel()

	if _, err := NewNormalizer([]string{"("}, 0); err == nil {
		t.Fatalf("expected error for invalid pattern")
	}
	if _, err := NewNormalizer(nil, 2); err == nil {
		t.Fatalf("expected error for tiny max length")
	}
}

func TestReplaceSwapsRules(t *testing.T) {
	t.Parallel()

	n := MustNormalizer(nil, 0)
	in := "Big model launch\nSponsored by Acme"
	if got := n.Clean(in); got != in {
		t.Fatalf("Clean=%q", got)
	}
	n.Replace(MustNormalizer([]string{`sponsored by`}, 20))
	if got := n.Clean(in); got != "Big model launch" {
		t.Fatalf("after Replace Clean=%q", got)
	}
	if n.MaxLen() != 20 {
		t.Fatalf("MaxLen=%d", n.MaxLen())
	}
}

func TestSourceTagValid(t *testing.T) {
	t.Parallel()

	for _, tag := range []SourceTag{SourceFeed, SourceScrape, SourceMailbox, SourceFallback} {
		if !tag.Valid() {
			t.Fatalf("%q should be valid", tag)
		}
	}
	if SourceTag("carrier-pigeon").Valid() {
		t.Fatalf("unknown tag accepted")
	}
}
