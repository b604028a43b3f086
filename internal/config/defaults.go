package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimezone    = "Africa/Johannesburg"
	DefaultDailyAt     = "09:00"
	DefaultWeeklyDay   = "friday"
	DefaultWeeklyAt    = "17:00"
	DefaultStoragePath = "./data/newsletterbot.db"
)

// ApplyDefaults fills fields whose zero value is not meaningful.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Scheduler.Timezone) == "" {
		c.Scheduler.Timezone = DefaultTimezone
	}
	if strings.TrimSpace(c.Scheduler.DailyAt) == "" {
		c.Scheduler.DailyAt = DefaultDailyAt
	}
	if strings.TrimSpace(c.Scheduler.Weekly.Day) == "" {
		c.Scheduler.Weekly.Day = DefaultWeeklyDay
	}
	if strings.TrimSpace(c.Scheduler.Weekly.At) == "" {
		c.Scheduler.Weekly.At = DefaultWeeklyAt
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
}

// Validate reports every structural problem at once. It does not check credentials.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token is required (or set " + EnvTelegramToken + ")"))
	}
	_, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout)
	add(err)

	if _, err := time.LoadLocation(c.Scheduler.Timezone); err != nil {
		add(fmt.Errorf("scheduler.timezone: %w", err))
	}
	_, _, err = ParseClock("scheduler.daily_at", c.Scheduler.DailyAt)
	add(err)
	_, _, err = ParseClock("scheduler.weekly.at", c.Scheduler.Weekly.At)
	add(err)
	_, err = ParseWeekday("scheduler.weekly.day", c.Scheduler.Weekly.Day)
	add(err)
	_, err = ParseDurationField("scheduler.stop_timeout", c.Scheduler.StopTimeout)
	add(err)

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite", "sqlite3", "file":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	_, err = ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout)
	add(err)

	for _, name := range c.Sources.Order {
		switch name {
		case "mailbox", "feed", "scrape":
		default:
			add(fmt.Errorf("sources.order: unknown adapter %q", name))
		}
	}
	_, err = ParseDurationField("sources.adapter_timeout", c.Sources.AdapterTimeout)
	add(err)
	if c.Sources.MinLength < 0 || c.Sources.MaxBodyLength < 0 {
		add(errors.New("sources.min_length and sources.max_body_length must be >= 0"))
	}
	for i, p := range c.Sources.Denylist {
		if _, err := regexp.Compile("(?i)" + p); err != nil {
			add(fmt.Errorf("sources.denylist[%d]: %w", i, err))
		}
	}
	if sc := c.Sources.Scoring; sc != nil {
		for i, r := range sc.Rules {
			switch r.Field {
			case "subject", "sender", "body":
			default:
				add(fmt.Errorf("sources.scoring.rules[%d].field: unknown field %q", i, r.Field))
			}
		}
	}

	for _, f := range []struct{ path, raw string }{
		{"summary.timeout", c.Summary.Timeout},
		{"summary.rate_limit_base", c.Summary.RateLimitBase},
		{"summary.transient_wait", c.Summary.TransientWait},
		{"broadcast.gap", c.Broadcast.Gap},
		{"broadcast.error_backoff", c.Broadcast.ErrorBackoff},
	} {
		_, err := ParseDurationField(f.path, f.raw)
		add(err)
	}
	if c.Summary.MaxAttempts < 0 {
		add(errors.New("summary.max_attempts must be >= 0"))
	}

	return errors.Join(errs...)
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(path, raw string) (hour, minute int, err error) {
	s := strings.TrimSpace(raw)
	h, m, ok := strings.Cut(s, ":")
	if ok {
		hour, err = strconv.Atoi(h)
		if err == nil {
			minute, err = strconv.Atoi(m)
		}
	}
	if !ok || err != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%s: invalid time %q (want HH:MM)", path, raw)
	}
	return hour, minute, nil
}

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

func ParseWeekday(path, raw string) (time.Weekday, error) {
	d, ok := weekdays[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return 0, fmt.Errorf("%s: invalid weekday %q", path, raw)
	}
	return d, nil
}
