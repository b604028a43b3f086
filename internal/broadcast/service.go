package broadcast

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"newsletterbot/internal/content"
	"newsletterbot/internal/storage"
	kit "newsletterbot/internal/transport"
	logx "newsletterbot/pkg/logx"
)

func New(cfg Config, sender kit.Sender, store Recipients, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = withDefaults(cfg)
	return &Service{
		cfg:     cfg,
		sender:  sender,
		store:   store,
		log:     log.With(logx.String("comp", "broadcast")),
		limiter: newLimiter(cfg.Gap),
	}
}

func withDefaults(cfg Config) Config {
	if cfg.Gap <= 0 {
		cfg.Gap = DefaultGap
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	return cfg
}

func newLimiter(gap time.Duration) *rate.Limiter {
	return rate.NewLimiter(rate.Every(gap), 1)
}

// Apply swaps pacing settings. A Send in progress keeps the settings it started with.
func (s *Service) Apply(cfg Config) {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.limiter = newLimiter(cfg.Gap)
}

// Send delivers msg to every active recipient and returns how many were reached.
func (s *Service) Send(ctx context.Context, msg content.Message) (int, error) {
	res, err := s.SendReport(ctx, msg)
	return res.Reached, err
}

// SendReport is Send with per-run counters. The recipient set is snapshotted once; a
// recipient failure never stops the loop. Only a store read failure or a cancelled ctx
// returns an error, together with the counters reached so far.
func (s *Service) SendReport(ctx context.Context, msg content.Message) (Result, error) {
	start := time.Now()
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	recipients, err := s.store.ActiveRecipients(ctx)
	if err != nil {
		return Result{}, err
	}
	s.log.Info("broadcast started", logx.Int("recipients", len(recipients)), logx.Int("len", msg.Len()))

	opt := &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: cfg.DisablePreview}
	var res Result
	for _, r := range recipients {
		if err := lim.Wait(ctx); err != nil {
			res.Took = time.Since(start)
			s.log.Warn("broadcast interrupted", logx.Int("reached", res.Reached), logx.Int("remaining", len(recipients)-res.Attempted), logx.Err(err))
			return res, ctx.Err()
		}
		res.Attempted++

		_, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: r.ID}, msg.Text, opt)
		switch {
		case err == nil:
			res.Reached++
		case errors.Is(err, kit.ErrRecipientBlocked), errors.Is(err, kit.ErrRecipientNotFound):
			s.deactivate(ctx, r, err, &res)
		default:
			res.Failed++
			s.log.Warn("delivery failed", logx.Int64("recipient", r.ID), logx.Err(err))
			if err := sleep(ctx, cfg.ErrorBackoff); err != nil {
				res.Took = time.Since(start)
				return res, err
			}
		}
	}
	res.Took = time.Since(start)

	fields := []logx.Field{
		logx.Int("attempted", res.Attempted),
		logx.Int("reached", res.Reached),
		logx.Int("deactivated", res.Deactivated),
		logx.Int("failed", res.Failed),
		logx.Duration("dur", res.Took),
	}
	if res.Failed > 0 {
		s.log.Warn("broadcast finished with failures", fields...)
	} else {
		s.log.Info("broadcast finished", fields...)
	}
	return res, nil
}

func (s *Service) deactivate(ctx context.Context, r storage.Recipient, cause error, res *Result) {
	// The store write must land even if ctx was cancelled during the send.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.store.SetRecipientActive(wctx, r.ID, false); err != nil {
		res.Failed++
		s.log.Error("deactivate recipient failed", logx.Int64("recipient", r.ID), logx.Err(err))
		return
	}
	res.Deactivated++
	s.log.Info("recipient deactivated", logx.Int64("recipient", r.ID), logx.String("reason", cause.Error()))
}

func sleep(ctx context.Context, d time.Duration) error {
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}
