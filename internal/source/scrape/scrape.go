// Package scrape extracts the main article from newsletter archive pages.
package scrape

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	logx "newsletterbot/pkg/logx"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	defaultTitle     = "Latest AI Newsletter"
	maxPageBytes     = 4 << 20

	minParagraph = 20
	minArticle   = 200
	minLooseArea = 500
)

var (
	articleSelectors = []string{"article", ".post", ".entry", ".content-area article", `[class*="post"]`, "main article"}
	areaSelectors    = []string{"main", "div.content"}
	titleSelectors   = []string{"h1", "h2", ".entry-title", ".post-title"}
	looseSelector    = `article[class*="post"], article[class*="content"], article[class*="article"], article[class*="entry"], div[class*="post"], div[class*="content"], div[class*="article"], div[class*="entry"]`
	topicKeywords    = []string{"ai", "artificial intelligence", "machine learning", "technology"}
)

type Config struct {
	// Pages are tried in order; the first one yielding an article wins.
	Pages     []string
	UserAgent string
	Timeout   time.Duration
}

type Adapter struct {
	cfg    Config
	client *http.Client
	norm   *content.Normalizer
	log    logx.Logger
}

func New(cfg Config, norm *content.Normalizer, log logx.Logger) (*Adapter, error) {
	if len(cfg.Pages) == 0 {
		return nil, errors.New("scrape: at least one page is required")
	}
	for _, p := range cfg.Pages {
		if _, err := url.ParseRequestURI(p); err != nil {
			return nil, fmt.Errorf("scrape: page %q: %w", p, err)
		}
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
	return &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		norm:   norm,
		log:    log.With(logx.String("adapter", "scrape")),
	}, nil
}

func (a *Adapter) Name() string { return "scrape" }

func (a *Adapter) Fetch(ctx context.Context) ([]source.Candidate, error) {
	var errs []error
	for _, page := range a.cfg.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		it, err := a.scrape(ctx, page)
		if err != nil {
			a.log.Debug("page skipped", logx.String("page", page), logx.Err(err))
			errs = append(errs, err)
			continue
		}
		return []source.Candidate{{Item: it}}, nil
	}
	if len(errs) > 0 && allNoContent(errs) {
		return nil, source.ErrNoContent
	}
	return nil, errors.Join(errs...)
}

func (a *Adapter) scrape(ctx context.Context, page string) (content.Item, error) {
	raw, err := a.get(ctx, page)
	if err != nil {
		return content.Item{}, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return content.Item{}, fmt.Errorf("scrape: parse %s: %w", page, err)
	}

	title, text, how := extractArticle(doc)
	if text == "" {
		title, text, how = extractLoose(doc)
	}
	if text == "" {
		title, text, how = extractReadable(raw, page)
	}
	body := a.norm.Clean(text)
	if body == "" {
		return content.Item{}, fmt.Errorf("scrape: %s: %w", page, source.ErrNoContent)
	}
	if strings.TrimSpace(title) == "" {
		title = defaultTitle
	}
	a.log.Debug("article extracted", logx.String("page", page), logx.String("method", how), logx.Int("length", utf8.RuneCountInString(body)))
	return content.Item{
		ID:        content.NewID(),
		Title:     strings.TrimSpace(title),
		Body:      body,
		Link:      page,
		Published: time.Now(),
		Source:    content.SourceScrape,
	}, nil
}

func (a *Adapter) get(ctx context.Context, page string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scrape: get %s: %w", page, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape: get %s: status %d", page, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// extractArticle tries the article selectors, then the broader content areas.
func extractArticle(doc *goquery.Document) (title, text, how string) {
	var node *goquery.Selection
	for _, sel := range append(append([]string(nil), articleSelectors...), areaSelectors...) {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			node, how = s, sel
			break
		}
	}
	if node == nil {
		return "", "", ""
	}
	for _, sel := range titleSelectors {
		if t := strings.TrimSpace(node.Find(sel).First().Text()); t != "" {
			title = t
			break
		}
	}
	var parts []string
	node.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); utf8.RuneCountInString(t) > minParagraph {
			parts = append(parts, t)
		}
	})
	joined := strings.Join(parts, "\n")
	if utf8.RuneCountInString(joined) <= minArticle {
		return "", "", ""
	}
	return title, joined, how
}

// extractLoose accepts any large post-like block that talks about AI.
func extractLoose(doc *goquery.Document) (title, text, how string) {
	doc.Find(looseSelector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		t := strings.TrimSpace(s.Text())
		if utf8.RuneCountInString(t) <= minLooseArea || !mentionsTopic(t) {
			return true
		}
		text, how = t, "loose"
		return false
	})
	if text == "" {
		return "", "", ""
	}
	return "Latest AI Content", text, how
}

func extractReadable(raw []byte, page string) (title, text, how string) {
	u, _ := url.Parse(page)
	art, err := readability.FromReader(bytes.NewReader(raw), u)
	if err != nil || utf8.RuneCountInString(strings.TrimSpace(art.TextContent)) <= minArticle {
		return "", "", ""
	}
	return art.Title, art.TextContent, "readability"
}

func mentionsTopic(s string) bool {
	s = strings.ToLower(s)
	for _, k := range topicKeywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func allNoContent(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, source.ErrNoContent) {
			return false
		}
	}
	return true
}
