package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variables that fill empty secrets.
const (
	EnvTelegramToken     = "TELEGRAM_BOT_TOKEN"
	EnvAdminUserID       = "ADMIN_USER_ID"
	EnvOpenAIKey         = "OPENAI_API_KEY"
	EnvGmailClientID     = "GMAIL_CLIENT_ID"
	EnvGmailClientSecret = "GMAIL_CLIENT_SECRET"
	EnvGmailRefreshToken = "GMAIL_REFRESH_TOKEN"
	EnvNewsletterFeedURL = "NEWSLETTER_FEED_URL"
)

// ApplyEnv fills empty secret fields from the environment. Values in the file win.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	fill := func(dst *string, key string) {
		if strings.TrimSpace(*dst) == "" {
			*dst = strings.TrimSpace(getenv(key))
		}
	}
	fill(&cfg.Telegram.Token, EnvTelegramToken)
	fill(&cfg.Summary.APIKey, EnvOpenAIKey)
	fill(&cfg.Sources.Mailbox.ClientID, EnvGmailClientID)
	fill(&cfg.Sources.Mailbox.ClientSecret, EnvGmailClientSecret)
	fill(&cfg.Sources.Mailbox.RefreshToken, EnvGmailRefreshToken)
	fill(&cfg.Sources.Feed.URL, EnvNewsletterFeedURL)

	if len(cfg.Telegram.AdminUserIDs) == 0 {
		if id, err := strconv.ParseInt(strings.TrimSpace(getenv(EnvAdminUserID)), 10, 64); err == nil && id != 0 {
			cfg.Telegram.AdminUserIDs = []int64{id}
		}
	}
}
