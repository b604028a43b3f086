package app

import (
	"newsletterbot/internal/config"
	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	"newsletterbot/internal/source/feed"
	"newsletterbot/internal/source/mailbox"
	"newsletterbot/internal/source/scrape"
	logx "newsletterbot/pkg/logx"
)

// buildChain instantiates the configured adapters in priority order. Adapters without
// credentials or targets are skipped; the chain still ends in the mock sample.
func buildChain(cfg *config.Config, norm *content.Normalizer, scorer *source.Scorer, log logx.Logger) (*source.Chain, error) {
	timeout, err := config.ParseDurationOrDefault("sources.adapter_timeout", cfg.Sources.AdapterTimeout, source.DefaultTimeout)
	if err != nil {
		return nil, err
	}
	order := cfg.Sources.Order
	if len(order) == 0 {
		order = defaultSourceOrder
	}

	var adapters []source.Adapter
	for _, name := range order {
		a, err := buildAdapter(name, cfg, norm, log)
		if err != nil {
			log.Warn("source adapter disabled", logx.String("adapter", name), logx.Err(err))
			continue
		}
		adapters = append(adapters, a)
	}

	chain := source.NewChain(source.ChainConfig{Timeout: timeout, MinLength: cfg.Sources.MinLength, Normalizer: norm},
		adapters, source.NewMock(norm), scorer, log)
	log.Info("source chain ready", logx.Any("adapters", chain.Adapters()))
	return chain, nil
}

func buildAdapter(name string, cfg *config.Config, norm *content.Normalizer, log logx.Logger) (source.Adapter, error) {
	sc := cfg.Sources
	switch name {
	case "mailbox":
		return mailbox.New(mailbox.Config{
			ClientID:     sc.Mailbox.ClientID,
			ClientSecret: sc.Mailbox.ClientSecret,
			RefreshToken: sc.Mailbox.RefreshToken,
			Queries:      sc.Mailbox.Queries,
			DaysBack:     sc.Mailbox.DaysBack,
			MaxResults:   sc.Mailbox.MaxResults,
		}, norm, log)
	case "feed":
		return feed.New(feed.Config{URL: sc.Feed.URL, UserAgent: sc.Feed.UserAgent}, norm, log)
	default:
		return scrape.New(scrape.Config{Pages: sc.Scrape.Pages, UserAgent: sc.Scrape.UserAgent}, norm, log)
	}
}
