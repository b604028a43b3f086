package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"newsletterbot/internal/content"
	logx "newsletterbot/pkg/logx"
)

var errUnusable = errors.New("summary: response too short")

type Config struct {
	// MaxAttempts counts calls to the client, first one included.
	MaxAttempts   int
	RateLimitBase time.Duration
	TransientWait time.Duration
	// MinResponse is the shortest usable response, in code points.
	MinResponse int
	MinInput    int
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RateLimitBase <= 0 {
		c.RateLimitBase = time.Second
	}
	if c.TransientWait <= 0 {
		c.TransientWait = time.Second
	}
	if c.MinResponse <= 0 {
		c.MinResponse = 50
	}
	if c.MinInput <= 0 {
		c.MinInput = 50
	}
	return c
}

type Generator struct {
	client Client
	cfg    Config
	format *Formatter
	log    logx.Logger
}

// NewGenerator accepts a nil client; every message then takes the fallback path.
func NewGenerator(cfg Config, client Client, format *Formatter, log logx.Logger) *Generator {
	if format == nil {
		format = NewFormatter(0)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Generator{client: client, cfg: cfg.withDefaults(), format: format, log: log.With(logx.String("component", "summary"))}
}

// Summarize never fails. Cancelling ctx stops retries and yields the fallback message.
func (g *Generator) Summarize(ctx context.Context, it content.Item) content.Message {
	start := time.Now()
	text, err := g.generate(ctx, it)
	if err == nil {
		msg := content.Message{Text: g.format.Format(it.Title, text, it.Link), Origin: content.OriginAI}
		g.log.Info("summary generated", logx.String("summary_origin", string(msg.Origin)), logx.Int("length", msg.Len()), logx.Duration("took", time.Since(start)))
		return msg
	}

	body, origin := extractive(it.Body)
	title := it.Title
	if strings.TrimSpace(title) == "" {
		title = fallbackTitle
	}
	msg := content.Message{Text: g.format.Format(title, body, it.Link), Origin: origin}
	g.log.Warn("summary fallback used", logx.String("summary_origin", string(origin)), logx.Int("length", msg.Len()), logx.Err(err))
	return msg
}

func (g *Generator) generate(ctx context.Context, it content.Item) (string, error) {
	if g.client == nil {
		return "", errors.New("summary: no client configured")
	}
	body := strings.TrimSpace(it.Body)
	if utf8.RuneCountInString(body) < g.cfg.MinInput {
		return "", fmt.Errorf("summary: content too short (%d characters)", utf8.RuneCountInString(body))
	}
	prompt := buildPrompt(it.Title, body)

	backoff := g.cfg.RateLimitBase
	var last error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		out, err := g.client.Complete(ctx, systemPrompt, prompt)
		if err == nil {
			out = strings.TrimSpace(out)
			if utf8.RuneCountInString(out) > g.cfg.MinResponse {
				return out, nil
			}
			err = errUnusable
		}
		last = err

		var wait time.Duration
		switch {
		case errors.Is(err, ErrRateLimited):
			wait = backoff
			backoff *= 2
		case errors.Is(err, ErrTransient):
			wait = g.cfg.TransientWait
		default:
			return "", fmt.Errorf("attempt %d: %w", attempt, err)
		}
		if attempt == g.cfg.MaxAttempts {
			break
		}
		g.log.Debug("summary retry scheduled", logx.Int("attempt", attempt+1), logx.Duration("delay", wait), logx.Err(err))
		if err := sleep(ctx, wait); err != nil {
			return "", fmt.Errorf("summary retry interrupted: %w", err)
		}
	}
	return "", fmt.Errorf("summary: %d attempts exhausted: %w", g.cfg.MaxAttempts, last)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
