package source

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"newsletterbot/internal/content"
	logx "newsletterbot/pkg/logx"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultMinLength = 100
)

// Outcome classifies what happened to one adapter during a fetch.
type Outcome string

const (
	OutcomeAccepted    Outcome = "accepted"
	OutcomeUnavailable Outcome = "adapter_unavailable"
	OutcomeEmpty       Outcome = "no_content"
	OutcomeTooShort    Outcome = "content_too_short"
	OutcomeTooLong     Outcome = "content_too_long"
)

// Attempt records one adapter invocation.
type Attempt struct {
	Adapter    string
	Outcome    Outcome
	Err        error
	Candidates int
	Score      int
	Length     int
	Took       time.Duration
}

// Report describes a completed FetchReport call.
type Report struct {
	Item     content.Item
	Attempts []Attempt
	Fallback bool
}

type ChainConfig struct {
	Timeout   time.Duration
	MinLength int
	// Normalizer cleans the winning body before it is measured. Nil uses the default rules.
	Normalizer *content.Normalizer
}

// Chain tries adapters in order. It never fails: the fallback item is returned when nothing else qualifies.
type Chain struct {
	adapters []Adapter
	fallback *Mock
	timeout  time.Duration
	minLen   int
	norm     *content.Normalizer
	scorer   atomic.Pointer[Scorer]
	log      logx.Logger
}

func NewChain(cfg ChainConfig, adapters []Adapter, fallback *Mock, scorer *Scorer, log logx.Logger) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinLength <= 0 {
		cfg.MinLength = DefaultMinLength
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = content.MustNormalizer(content.DefaultDenylist, 0)
	}
	if fallback == nil {
		fallback = NewMock(cfg.Normalizer)
	}
	if scorer == nil {
		scorer = NewScorer(DefaultWeights())
	}
	c := &Chain{
		adapters: append([]Adapter(nil), adapters...),
		fallback: fallback,
		timeout:  cfg.Timeout,
		minLen:   cfg.MinLength,
		norm:     cfg.Normalizer,
		log:      log.With(logx.String("component", "source_chain")),
	}
	c.scorer.Store(scorer)
	return c
}

// SetScorer swaps the relevance weights used by later fetches.
func (c *Chain) SetScorer(s *Scorer) {
	if s != nil {
		c.scorer.Store(s)
	}
}

// Adapters returns the configured adapter names in priority order.
func (c *Chain) Adapters() []string {
	out := make([]string, 0, len(c.adapters))
	for _, a := range c.adapters {
		out = append(out, a.Name())
	}
	return out
}

// FetchBest returns the first acceptable item, or the fallback sample.
func (c *Chain) FetchBest(ctx context.Context) content.Item {
	return c.FetchReport(ctx).Item
}

// FetchReport is FetchBest plus a per-adapter account of how the item was chosen.
func (c *Chain) FetchReport(ctx context.Context) Report {
	var rep Report
	for i, a := range c.adapters {
		if ctx.Err() != nil {
			c.log.Warn("fetch interrupted", logx.Int("remaining", len(c.adapters)-i), logx.Err(ctx.Err()))
			break
		}
		at, item, ok := c.try(ctx, a)
		rep.Attempts = append(rep.Attempts, at)
		fields := []logx.Field{
			logx.String("adapter", at.Adapter),
			logx.String("outcome", string(at.Outcome)),
			logx.Int("candidates", at.Candidates),
			logx.Duration("took", at.Took),
		}
		if ok {
			c.log.Info("source accepted", append(fields, logx.Int("score", at.Score), logx.Int("length", at.Length))...)
			rep.Item = item
			return rep
		}
		c.log.Warn("source skipped", append(fields, logx.Int("length", at.Length), logx.Err(at.Err))...)
	}

	c.log.Warn("all sources failed, using fallback sample", logx.Int("tried", len(rep.Attempts)))
	rep.Item = c.fallback.Item()
	rep.Fallback = true
	return rep
}

func (c *Chain) try(ctx context.Context, a Adapter) (Attempt, content.Item, bool) {
	at := Attempt{Adapter: a.Name()}
	start := time.Now()
	cands, err := c.fetch(ctx, a)
	at.Took = time.Since(start)
	at.Candidates = len(cands)

	switch {
	case errors.Is(err, ErrNoContent):
		at.Outcome, at.Err = OutcomeEmpty, err
		return at, content.Item{}, false
	case err != nil:
		at.Outcome, at.Err = OutcomeUnavailable, err
		return at, content.Item{}, false
	case len(cands) == 0:
		at.Outcome = OutcomeEmpty
		return at, content.Item{}, false
	}

	idx, score := c.scorer.Load().Best(cands)
	best := cands[idx].Item
	at.Score = score

	// An adapter must hand over cleaned text; a body past the cap never came out of Clean.
	if raw, maxLen := best.Len(), c.norm.MaxLen(); raw > maxLen {
		at.Length = raw
		at.Outcome = OutcomeTooLong
		at.Err = fmt.Errorf("body has %d characters, limit is %d", raw, maxLen)
		return at, content.Item{}, false
	}
	best.Body = c.norm.Clean(best.Body)
	at.Length = best.Len()
	if at.Length <= c.minLen {
		at.Outcome = OutcomeTooShort
		at.Err = fmt.Errorf("body has %d characters, need more than %d", at.Length, c.minLen)
		return at, content.Item{}, false
	}
	at.Outcome = OutcomeAccepted
	return at, best, true
}

// fetch bounds one adapter call by the chain timeout, even if the adapter ignores ctx.
func (c *Chain) fetch(parent context.Context, a Adapter) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	type result struct {
		cands []Candidate
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.log.Error("adapter panic", logx.String("adapter", a.Name()), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				ch <- result{err: fmt.Errorf("adapter %s panicked: %v", a.Name(), r)}
			}
		}()
		cands, err := a.Fetch(ctx)
		ch <- result{cands: cands, err: err}
	}()

	select {
	case r := <-ch:
		return r.cands, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("adapter %s: %w", a.Name(), ctx.Err())
	}
}
