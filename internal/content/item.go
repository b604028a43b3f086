package content

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxBodyLen bounds Item.Body, in code points.
	MaxBodyLen = 4000
	// MaxMessageLen bounds Message.Text, in code points.
	MaxMessageLen = 4000
)

// SourceTag names the adapter family an Item came from.
type SourceTag string

const (
	SourceFeed     SourceTag = "feed"
	SourceScrape   SourceTag = "scrape"
	SourceMailbox  SourceTag = "mailbox"
	SourceFallback SourceTag = "fallback-mock"
)

func (t SourceTag) Valid() bool {
	switch t {
	case SourceFeed, SourceScrape, SourceMailbox, SourceFallback:
		return true
	}
	return false
}

// Item is one piece of newsletter content produced by a single adapter.
// Treat it as immutable once returned.
type Item struct {
	ID        string
	Title     string
	Body      string
	Link      string
	Published time.Time
	Source    SourceTag
}

// NewID returns a random identifier for items whose origin has none.
func NewID() string { return uuid.NewString() }

// Len returns the body length in code points.
func (it Item) Len() int { return utf8.RuneCountInString(it.Body) }

// Origin tells how a Message body was produced.
type Origin string

const (
	OriginAI         Origin = "ai"
	OriginExtractive Origin = "extractive"
	OriginTemplate   Origin = "template"
)

// Fallback reports whether the message was produced without the summarization service.
func (o Origin) Fallback() bool { return o != OriginAI }

// Message is the final text handed to the broadcaster.
type Message struct {
	Text   string
	Origin Origin
}

func (m Message) Len() int { return utf8.RuneCountInString(m.Text) }
