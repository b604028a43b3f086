// Package feed reads the newest entry of an RSS or Atom feed.
package feed

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	logx "newsletterbot/pkg/logx"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

type Adapter struct {
	cfg    Config
	parser *gofeed.Parser
	norm   *content.Normalizer
	log    logx.Logger
}

func New(cfg Config, norm *content.Normalizer, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("feed: url is required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: cfg.Timeout}
	p.UserAgent = cfg.UserAgent
	return &Adapter{cfg: cfg, parser: p, norm: norm, log: log.With(logx.String("adapter", "feed"))}, nil
}

func (a *Adapter) Name() string { return "feed" }

func (a *Adapter) Fetch(ctx context.Context) ([]source.Candidate, error) {
	f, err := a.parser.ParseURLWithContext(a.cfg.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: parse %s: %w", a.cfg.URL, err)
	}
	it := newest(f.Items)
	if it == nil {
		return nil, source.ErrNoContent
	}

	raw := firstNonEmpty(it.Content, it.Description)
	body := a.norm.Clean(source.HTMLToText(raw))
	if body == "" {
		return nil, source.ErrNoContent
	}
	a.log.Debug("feed entry parsed", logx.String("title", it.Title), logx.Int("items", len(f.Items)), logx.Int("length", len([]rune(body))))

	item := content.Item{
		ID:     firstNonEmpty(it.GUID, it.Link),
		Title:  strings.TrimSpace(source.HTMLToText(it.Title)),
		Body:   body,
		Link:   it.Link,
		Source: content.SourceFeed,
	}
	if item.ID == "" {
		item.ID = content.NewID()
	}
	if ts := published(it); ts != nil {
		item.Published = *ts
	} else {
		item.Published = time.Now()
	}
	sender := ""
	if len(it.Authors) > 0 && it.Authors[0] != nil {
		sender = it.Authors[0].Email
	}
	return []source.Candidate{{Item: item, Sender: sender}}, nil
}

// newest prefers the latest dated entry; undated feeds fall back to document order.
func newest(items []*gofeed.Item) *gofeed.Item {
	var best *gofeed.Item
	var bestTS time.Time
	for _, it := range items {
		if it == nil {
			continue
		}
		if best == nil {
			best = it
			if ts := published(it); ts != nil {
				bestTS = *ts
			}
			continue
		}
		if ts := published(it); ts != nil && ts.After(bestTS) {
			best, bestTS = it, *ts
		}
	}
	return best
}

func published(it *gofeed.Item) *time.Time {
	if it.PublishedParsed != nil {
		return it.PublishedParsed
	}
	return it.UpdatedParsed
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
