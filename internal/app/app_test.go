package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"newsletterbot/internal/config"
	kit "newsletterbot/internal/transport"
)

type fakeAdapter struct {
	mu      sync.Mutex
	out     chan<- kit.Update
	sent    map[int64][]string
	stopped bool
}

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sent == nil {
		f.sent = map[int64][]string{}
	}
	f.sent[to.ChatID] = append(f.sent[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) push(from int64, text string) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, FromName: "Sipho", Text: text}}
}

func (f *fakeAdapter) replies(chat int64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[chat]...)
}

const testConfig = `
telegram:
  token: test-token
  admin_user_ids: [99]
logging:
  level: error
scheduler:
  enabled: true
  timezone: UTC
  daily_at: "09:00"
  weekly:
    enabled: true
storage:
  driver: file
  path: %DIR%/bot.json
`

func newTestApp(t *testing.T) (*App, *fakeAdapter) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(strings.ReplaceAll(testConfig, "%DIR%", dir)), 0o600); err != nil {
		t.Fatal(err)
	}
	cfgm := config.NewConfigManager(path)
	cfg, err := cfgm.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ad := &fakeAdapter{}
	a, err := assemble(cfgm, cfg, ad)
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	return a, ad
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestAppServesCommandsEndToEnd(t *testing.T) {
	a, ad := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ad.push(7, "/subscribe")
	waitUntil(t, "subscription", func() bool {
		r, err := a.store.Recipient(context.Background(), 7)
		return err == nil && r.Active
	})
	waitUntil(t, "reply", func() bool { return len(ad.replies(7)) == 1 })
	if got := ad.replies(7)[0]; !strings.Contains(got, "Successfully subscribed") {
		t.Fatalf("reply=%q", got)
	}

	if _, ok := a.sched.Next(jobDaily); !ok {
		t.Fatalf("daily job not scheduled")
	}
	if _, ok := a.sched.Next(jobWeekly); !ok {
		t.Fatalf("weekly job not scheduled")
	}

	if err := a.Stop(context.Background(), StopSignal); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !ad.stopped {
		t.Fatalf("adapter not stopped")
	}
	select {
	case <-a.Done():
	default:
		t.Fatalf("app context still live after Stop")
	}
}

func TestManualRunDeliversFallbackIssue(t *testing.T) {
	a, ad := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopSignal) }()

	ad.push(7, "/subscribe")
	waitUntil(t, "subscription", func() bool { return len(ad.replies(7)) == 1 })

	ad.push(99, "/run")
	// Admin gets "started" then the outcome; the subscriber gets the issue.
	waitUntil(t, "run outcome", func() bool { return len(ad.replies(99)) == 2 })
	if got := ad.replies(99)[1]; !strings.Contains(got, "1 delivered") {
		t.Fatalf("outcome=%q", got)
	}
	if got := ad.replies(7); len(got) != 2 || !strings.Contains(got[1], "AI Newsletter Summary") {
		t.Fatalf("subscriber messages=%q", got)
	}

	ad.push(99, "/run")
	waitUntil(t, "second run outcome", func() bool { return len(ad.replies(99)) == 4 })
	if got := ad.replies(99)[3]; !strings.Contains(got, "already sent") {
		t.Fatalf("second outcome=%q", got)
	}
}

func TestApplyConfigHotSections(t *testing.T) {
	a, _ := newTestApp(t)
	defer func() { _ = a.store.Close() }()

	prev := a.cfgm.Get()
	next := *prev
	next.Sources.Denylist = []string{"sponsored"}
	next.Telegram.AdminUserIDs = []int64{5}
	a.applyConfig(prev, &next)

	if got := a.norm.Clean("Model news\nSponsored segment"); got != "Model news" {
		t.Fatalf("Clean=%q", got)
	}
	if !a.router.IsAdmin(5) || a.router.IsAdmin(99) {
		t.Fatalf("admin list not replaced")
	}
}

func TestGoBeforeStartIsDropped(t *testing.T) {
	a, _ := newTestApp(t)
	defer func() { _ = a.store.Close() }()

	ran := false
	a.Go("early", func(context.Context) error { ran = true; return nil })
	if ran {
		t.Fatalf("job ran without a supervisor")
	}
}
