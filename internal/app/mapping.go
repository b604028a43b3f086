package app

import (
	"time"

	"newsletterbot/internal/broadcast"
	"newsletterbot/internal/config"
	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	"newsletterbot/internal/storage"
	"newsletterbot/internal/summary"
	logx "newsletterbot/pkg/logx"
)

// defaultSourceOrder tries the inbox first, then the public feed, then the archive page.
var defaultSourceOrder = []string{"mailbox", "feed", "scrape"}

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		JSON:    cfg.Logging.JSON,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     cfg.Telegram.AlertChatID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path, BusyTimeout: busy}, nil
}

func mapBroadcastConfig(cfg *config.Config) (broadcast.Config, error) {
	gap, err := config.ParseDurationOrDefault("broadcast.gap", cfg.Broadcast.Gap, broadcast.DefaultGap)
	if err != nil {
		return broadcast.Config{}, err
	}
	backoff, err := config.ParseDurationOrDefault("broadcast.error_backoff", cfg.Broadcast.ErrorBackoff, broadcast.DefaultErrorBackoff)
	if err != nil {
		return broadcast.Config{}, err
	}
	return broadcast.Config{Gap: gap, ErrorBackoff: backoff, DisablePreview: cfg.Broadcast.DisablePreview}, nil
}

// newNormalizer builds the cleaning rules. An empty denylist keeps the built-in phrases.
func newNormalizer(cfg *config.Config) (*content.Normalizer, error) {
	deny := cfg.Sources.Denylist
	if len(deny) == 0 {
		deny = content.DefaultDenylist
	}
	return content.NewNormalizer(deny, cfg.Sources.MaxBodyLength)
}

func newScorer(cfg *config.Config) (*source.Scorer, error) {
	sc := cfg.Sources.Scoring
	if sc == nil {
		return source.NewScorer(source.DefaultWeights()), nil
	}
	w := source.Weights{LongBodyLen: sc.LongBodyLength, LongBodyWeight: sc.LongBodyWeight}
	for _, r := range sc.Rules {
		w.Rules = append(w.Rules, source.Rule{Field: source.Field(r.Field), Keywords: r.Keywords, Weight: r.Weight})
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return source.NewScorer(w), nil
}

func mapSummaryConfig(cfg *config.Config) (summary.Config, summary.OpenAIConfig, error) {
	sc := cfg.Summary
	rateBase, err := config.ParseDurationField("summary.rate_limit_base", sc.RateLimitBase)
	if err != nil {
		return summary.Config{}, summary.OpenAIConfig{}, err
	}
	transient, err := config.ParseDurationField("summary.transient_wait", sc.TransientWait)
	if err != nil {
		return summary.Config{}, summary.OpenAIConfig{}, err
	}
	timeout, err := config.ParseDurationField("summary.timeout", sc.Timeout)
	if err != nil {
		return summary.Config{}, summary.OpenAIConfig{}, err
	}
	oc := summary.OpenAIConfig{
		APIKey:    sc.APIKey,
		BaseURL:   sc.BaseURL,
		Model:     sc.Model,
		MaxTokens: sc.MaxTokens,
		Timeout:   timeout,
	}
	if sc.Temperature != nil {
		oc.Temperature = *sc.Temperature
	}
	return summary.Config{
		MaxAttempts:   sc.MaxAttempts,
		RateLimitBase: rateBase,
		TransientWait: transient,
		MinResponse:   sc.MinResponse,
	}, oc, nil
}

func stopTimeout(cfg *config.Config) time.Duration {
	d, err := config.ParseDurationOrDefault("scheduler.stop_timeout", cfg.Scheduler.StopTimeout, 10*time.Second)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
