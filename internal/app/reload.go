package app

import (
	"context"
	"slices"

	"newsletterbot/internal/config"
	logx "newsletterbot/pkg/logx"
)

// reloadLoop applies the hot-reloadable sections of every committed config.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts.
			for len(sub) > 0 {
				if newer := <-sub; newer != nil {
					next = newer
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, _ := config.SummarizeConfigChange(prev, next)
	has := func(s string) bool { return slices.Contains(changed, s) }

	if has("logging") || next.Telegram.AlertChatID != prev.Telegram.AlertChatID {
		a.logs.Apply(mapLogConfig(next))
	}
	if has("sources.denylist") || next.Sources.MaxBodyLength != prev.Sources.MaxBodyLength {
		if n, err := newNormalizer(next); err != nil {
			a.log.Warn("denylist not applied", logx.Err(err))
		} else {
			a.norm.Replace(n)
			a.log.Info("denylist applied", logx.Int("patterns", len(next.Sources.Denylist)))
		}
	}
	if has("sources.scoring") {
		if s, err := newScorer(next); err != nil {
			a.log.Warn("scoring weights not applied", logx.Err(err))
		} else {
			a.chain.SetScorer(s)
			a.log.Info("scoring weights applied")
		}
	}
	if has("broadcast") {
		if bc, err := mapBroadcastConfig(next); err != nil {
			a.log.Warn("broadcast config not applied", logx.Err(err))
		} else {
			a.bcast.Apply(bc)
		}
	}
	a.router.SetAdmins(next.Telegram.AdminUserIDs)
}
