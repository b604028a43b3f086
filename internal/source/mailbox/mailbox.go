// Package mailbox reads newsletter e-mails from a Gmail inbox.
//
// Messages matching the configured searches are fetched in raw RFC 5322 form through the
// Gmail API client and parsed locally with enmime. Access tokens are refreshed from a
// long-lived refresh token and cached for their lifetime.
package mailbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jhillyerd/enmime"
	"golang.org/x/oauth2"

	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	logx "newsletterbot/pkg/logx"
)

const (
	DefaultTokenURL = "https://oauth2.googleapis.com/token"
	readonlyScope   = "https://www.googleapis.com/auth/gmail.readonly"

	minRawBody = 50
)

// DefaultQueries are Gmail search expressions for newsletter-like mail.
var DefaultQueries = []string{
	`subject:newsletter OR subject:digest OR subject:update`,
	`from:newsletter OR from:digest OR from:update`,
	`subject:AI OR subject:"artificial intelligence" OR subject:"machine learning"`,
	`from:openai.com OR from:anthropic.com OR from:deepmind.com`,
	`subject:"tech news" OR subject:"technology update"`,
	`from:techcrunch.com OR from:wired.com OR from:arstechnica.com`,
}

type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string

	TokenURL string
	// Endpoint overrides the Gmail API root. Empty uses the client library default.
	Endpoint string

	Queries    []string
	DaysBack   int
	MaxResults int
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if len(c.Queries) == 0 {
		c.Queries = DefaultQueries
	}
	if c.DaysBack <= 0 {
		c.DaysBack = 3
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 5
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

type Adapter struct {
	cfg  Config
	api  *inbox
	norm *content.Normalizer
	log  logx.Logger
	now  func() time.Time
}

func New(cfg Config, norm *content.Normalizer, log logx.Logger) (*Adapter, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("mailbox: client id, client secret and refresh token are required")
	}
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}

	oc := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		Scopes:       []string{readonlyScope},
	}
	base := &http.Client{Timeout: cfg.Timeout}
	// The token source keeps this context for every refresh.
	tokCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	ts := oc.TokenSource(tokCtx, &oauth2.Token{RefreshToken: cfg.RefreshToken})

	hc := oauth2.NewClient(tokCtx, ts)
	hc.Timeout = cfg.Timeout

	api, err := newInbox(context.Background(), hc, cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		cfg:  cfg,
		api:  api,
		norm: norm,
		log:  log.With(logx.String("adapter", "mailbox")),
		now:  time.Now,
	}, nil
}

func (a *Adapter) Name() string { return "mailbox" }

type message struct {
	cand source.Candidate
	date time.Time
}

// Fetch returns up to MaxResults recent matching messages, newest first.
// A failing query is logged and skipped; the call fails only when every query fails.
func (a *Adapter) Fetch(ctx context.Context) ([]source.Candidate, error) {
	after := "after:" + a.now().AddDate(0, 0, -a.cfg.DaysBack).Format("2006/01/02")

	seen := map[string]bool{}
	var msgs []message
	var failed int
	var lastErr error
	for _, q := range a.cfg.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		full := q + " " + after
		ids, err := a.api.list(ctx, full, a.cfg.MaxResults)
		if err != nil {
			failed++
			lastErr = err
			a.log.Warn("mailbox search failed", logx.String("query", full), logx.Err(err))
			continue
		}
		a.log.Debug("mailbox search", logx.String("query", full), logx.Int("found", len(ids)))
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			m, err := a.load(ctx, id)
			if err != nil {
				a.log.Debug("message skipped", logx.String("id", id), logx.Err(err))
				continue
			}
			msgs = append(msgs, m)
		}
	}
	if failed == len(a.cfg.Queries) {
		return nil, fmt.Errorf("mailbox: all searches failed: %w", lastErr)
	}
	if len(msgs) == 0 {
		return nil, source.ErrNoContent
	}

	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].date.After(msgs[j].date) })
	if len(msgs) > a.cfg.MaxResults {
		msgs = msgs[:a.cfg.MaxResults]
	}
	out := make([]source.Candidate, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.cand)
	}
	return out, nil
}

func (a *Adapter) load(ctx context.Context, id string) (message, error) {
	raw, err := a.api.raw(ctx, id)
	if err != nil {
		return message{}, err
	}
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return message{}, fmt.Errorf("mailbox: parse %s: %w", id, err)
	}

	text := env.Text
	if strings.TrimSpace(text) == "" {
		text = source.HTMLToText(env.HTML)
	}
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minRawBody {
		return message{}, fmt.Errorf("mailbox: message %s: %w", id, source.ErrNoContent)
	}

	subject := strings.TrimSpace(env.GetHeader("Subject"))
	if subject == "" {
		subject = "No Subject"
	}
	date, err := mail.ParseDate(env.GetHeader("Date"))
	if err != nil {
		date = a.now()
	}
	return message{
		cand: source.Candidate{
			Item: content.Item{
				ID:        id,
				Title:     subject,
				Body:      a.norm.Clean(text),
				Link:      "https://mail.google.com/mail/u/0/#all/" + id,
				Published: date,
				Source:    content.SourceMailbox,
			},
			Sender: sender(env),
		},
		date: date,
	}, nil
}

func sender(env *enmime.Envelope) string {
	from := env.GetHeader("From")
	if addrs, err := env.AddressList("From"); err == nil && len(addrs) > 0 {
		if addrs[0].Name != "" {
			return addrs[0].Name + " <" + addrs[0].Address + ">"
		}
		return addrs[0].Address
	}
	if from == "" {
		return "Unknown Sender"
	}
	return from
}
