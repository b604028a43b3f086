package config

// Config is the root of config.yaml (or config.json).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m"). Empty means default.
// Secrets may be left empty and supplied through the environment (see ApplyEnv).
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Storage   StorageConfig   `json:"storage"`
	Sources   SourcesConfig   `json:"sources"`
	Summary   SummaryConfig   `json:"summary"`
	Broadcast BroadcastConfig `json:"broadcast"`
}

type TelegramConfig struct {
	Token string `json:"token,omitempty"`
	// AdminUserIDs may use /run and /test.
	AdminUserIDs []int64 `json:"admin_user_ids,omitempty"`
	// AlertChatID receives run failure alerts and, if enabled, error logs. 0 disables both.
	AlertChatID int64  `json:"alert_chat_id,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	JSON     bool            `json:"json,omitempty"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to telegram.alert_chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// SchedulerConfig controls the daily and weekly triggers.
//
// Defaults: timezone Africa/Johannesburg, daily_at "09:00", weekly friday at "17:00".
type SchedulerConfig struct {
	Enabled     bool         `json:"enabled"`
	Timezone    string       `json:"timezone,omitempty"`
	DailyAt     string       `json:"daily_at,omitempty"`
	Weekly      WeeklyConfig `json:"weekly"`
	StopTimeout string       `json:"stop_timeout,omitempty"`
}

type WeeklyConfig struct {
	Enabled bool   `json:"enabled"`
	Day     string `json:"day,omitempty"`
	At      string `json:"at,omitempty"`
}

// StorageConfig selects the persistence backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/newsletterbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// SourcesConfig configures the adapter chain. Order lists adapter names
// ("mailbox", "feed", "scrape"); unconfigured adapters are skipped. The mock
// sample is always last.
type SourcesConfig struct {
	Order          []string       `json:"order,omitempty"`
	AdapterTimeout string         `json:"adapter_timeout,omitempty"`
	MinLength      int            `json:"min_length,omitempty"`
	MaxBodyLength  int            `json:"max_body_length,omitempty"`
	Denylist       []string       `json:"denylist,omitempty"`
	Scoring        *ScoringConfig `json:"scoring,omitempty"`

	Feed    FeedConfig    `json:"feed"`
	Scrape  ScrapeConfig  `json:"scrape"`
	Mailbox MailboxConfig `json:"mailbox"`
}

// ScoringConfig replaces the built-in relevance weights when present.
type ScoringConfig struct {
	Rules          []ScoringRule `json:"rules"`
	LongBodyLength int           `json:"long_body_length,omitempty"`
	LongBodyWeight int           `json:"long_body_weight,omitempty"`
}

// ScoringRule adds Weight for every keyword found in Field (subject, sender or body).
type ScoringRule struct {
	Field    string   `json:"field"`
	Keywords []string `json:"keywords"`
	Weight   int      `json:"weight"`
}

type FeedConfig struct {
	URL       string `json:"url,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type ScrapeConfig struct {
	Pages     []string `json:"pages,omitempty"`
	UserAgent string   `json:"user_agent,omitempty"`
}

type MailboxConfig struct {
	ClientID     string   `json:"client_id,omitempty"`
	ClientSecret string   `json:"client_secret,omitempty"`
	RefreshToken string   `json:"refresh_token,omitempty"`
	Queries      []string `json:"queries,omitempty"`
	DaysBack     int      `json:"days_back,omitempty"`
	MaxResults   int      `json:"max_results,omitempty"`
}

type SummaryConfig struct {
	APIKey        string   `json:"api_key,omitempty"`
	BaseURL       string   `json:"base_url,omitempty"`
	Model         string   `json:"model,omitempty"`
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	Timeout       string   `json:"timeout,omitempty"`
	MaxAttempts   int      `json:"max_attempts,omitempty"`
	RateLimitBase string   `json:"rate_limit_base,omitempty"`
	TransientWait string   `json:"transient_wait,omitempty"`
	MinResponse   int      `json:"min_response,omitempty"`
}

type BroadcastConfig struct {
	Gap            string `json:"gap,omitempty"`
	ErrorBackoff   string `json:"error_backoff,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}
