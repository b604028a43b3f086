package config

import (
	"reflect"
	"sort"
	"strings"

	logx "newsletterbot/pkg/logx"
)

// Sections applied without restart. Everything else is read once at startup.
var hotSections = map[string]bool{
	"logging":          true,
	"sources.denylist": true,
	"sources.scoring":  true,
	"broadcast":        true,
}

// SummarizeConfigChange returns (1) a sorted list of changed sections and
// (2) safe structured attrs for logging (never includes tokens or keys).
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log token)
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		!reflect.DeepEqual(oldCfg.Telegram.AdminUserIDs, newCfg.Telegram.AdminUserIDs) ||
		oldCfg.Telegram.AlertChatID != newCfg.Telegram.AlertChatID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.admin_count", len(newCfg.Telegram.AdminUserIDs)),
			logx.Bool("telegram.alert_chat_set", newCfg.Telegram.AlertChatID != 0),
			logx.Bool("telegram.token_changed", oldCfg.Telegram.Token != newCfg.Telegram.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Scheduler, newCfg.Scheduler) {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.String("scheduler.daily_at", newCfg.Scheduler.DailyAt),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}

	if !reflect.DeepEqual(oldCfg.Sources.Denylist, newCfg.Sources.Denylist) {
		changed = append(changed, "sources.denylist")
		attrs = append(attrs, logx.Int("sources.denylist_count", len(newCfg.Sources.Denylist)))
	}
	if !reflect.DeepEqual(oldCfg.Sources.Scoring, newCfg.Sources.Scoring) {
		changed = append(changed, "sources.scoring")
		rules := 0
		if newCfg.Sources.Scoring != nil {
			rules = len(newCfg.Sources.Scoring.Rules)
		}
		attrs = append(attrs, logx.Int("sources.scoring_rules", rules))
	}
	oldSrc, newSrc := oldCfg.Sources, newCfg.Sources
	oldSrc.Denylist, newSrc.Denylist = nil, nil
	oldSrc.Scoring, newSrc.Scoring = nil, nil
	if !reflect.DeepEqual(oldSrc, newSrc) {
		changed = append(changed, "sources")
		attrs = append(attrs, logx.String("sources.order", strings.Join(newCfg.Sources.Order, ",")))
	}

	// Summary (never log api key)
	if !reflect.DeepEqual(oldCfg.Summary, newCfg.Summary) {
		changed = append(changed, "summary")
		attrs = append(attrs, logx.String("summary.model", newCfg.Summary.Model))
	}

	if oldCfg.Broadcast != newCfg.Broadcast {
		changed = append(changed, "broadcast")
		attrs = append(attrs,
			logx.String("broadcast.gap", newCfg.Broadcast.Gap),
			logx.String("broadcast.error_backoff", newCfg.Broadcast.ErrorBackoff),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired returns the changed sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !hotSections[s] {
			out = append(out, s)
		}
	}
	return out
}
