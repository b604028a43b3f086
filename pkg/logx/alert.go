package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "newsletterbot/internal/transport"
)

const (
	alertQueue      = 128
	alertSendWait   = 10 * time.Second
	alertMaxRunes   = 3500
	alertValueRunes = 600
)

// alertSink is a zerolog writer that forwards high-severity lines to an admin
// chat. Writes never block: lines over the rate limit or beyond a full queue
// are dropped.
type alertSink struct {
	queue chan string

	mu       sync.Mutex
	sender   kit.Sender
	chatID   int64
	minLevel zerolog.Level
	limiter  *rate.Limiter
	stopFn   func()
	stopped  bool
}

func newAlertSink(sender kit.Sender) *alertSink {
	return &alertSink{
		queue:    make(chan string, alertQueue),
		sender:   sender,
		minLevel: zerolog.Disabled,
	}
}

func (a *alertSink) setSender(sender kit.Sender) {
	a.mu.Lock()
	a.sender = sender
	a.mu.Unlock()
}

func (a *alertSink) configure(chatID int64, minLevel zerolog.Level, lim *rate.Limiter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.chatID = chatID
	a.minLevel = minLevel
	a.limiter = lim
	if chatID != 0 && a.stopFn == nil && !a.stopped {
		a.stopFn = startWorker(a.run)
	}
}

func (a *alertSink) stop() {
	a.mu.Lock()
	stop := a.stopFn
	a.stopFn = nil
	a.stopped = true
	a.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (a *alertSink) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.queue:
			a.mu.Lock()
			sender, chatID := a.sender, a.chatID
			a.mu.Unlock()
			if sender == nil || chatID == 0 {
				continue
			}
			sendCtx, cancel := context.WithTimeout(ctx, alertSendWait)
			_, _ = sender.SendText(sendCtx, kit.ChatTarget{ChatID: chatID}, text,
				&kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
			cancel()
		}
	}
}

func (a *alertSink) Write(p []byte) (int, error) {
	return a.WriteLevel(zerolog.NoLevel, p)
}

func (a *alertSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	a.mu.Lock()
	ok := a.chatID != 0 && level != zerolog.NoLevel && level >= a.minLevel &&
		a.limiter != nil && a.limiter.Allow()
	a.mu.Unlock()
	if !ok {
		return len(p), nil
	}
	if text := formatAlert(p); text != "" {
		select {
		case a.queue <- text:
		default:
		}
	}
	return len(p), nil
}

// formatAlert renders a zerolog JSON line as Telegram HTML: the level and
// message on the first line, then one "key: value" line per field, sorted.
func formatAlert(p []byte) string {
	line := strings.TrimSpace(string(p))
	var m map[string]any
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		return html.EscapeString(clipRunes(line, alertMaxRunes))
	}
	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("🚨 ")
	if lvl != "" {
		b.WriteString("<b>" + html.EscapeString(strings.ToUpper(lvl)) + "</b> ")
	}
	b.WriteString(html.EscapeString(msg))
	for _, k := range keys {
		v := clipRunes(fmt.Sprint(m[k]), alertValueRunes)
		b.WriteString("\n<code>" + html.EscapeString(k) + "</code>: " + html.EscapeString(v))
		if utf8.RuneCountInString(b.String()) > alertMaxRunes {
			b.WriteString("\n…")
			break
		}
	}
	return b.String()
}

func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
