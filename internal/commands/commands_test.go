package commands

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"newsletterbot/internal/broadcast"
	"newsletterbot/internal/pipeline"
	"newsletterbot/internal/storage"
	kit "newsletterbot/internal/transport"
	"newsletterbot/internal/transport/telegram/router"
	logx "newsletterbot/pkg/logx"
)

type chatLog struct {
	mu   sync.Mutex
	sent []string
}

func (c *chatLog) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, text)
	return kit.MessageRef{}, nil
}

func (c *chatLog) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type fakeRunner struct {
	running bool
	stats   pipeline.Stats
	out     pipeline.Outcome
	runErr  error
	runs    int
}

func (f *fakeRunner) Run(context.Context, pipeline.Trigger) (pipeline.Outcome, error) {
	f.runs++
	return f.out, f.runErr
}
func (f *fakeRunner) WeeklyReport(context.Context) (int, error)     { return 4, nil }
func (f *fakeRunner) TestBroadcast(context.Context) (int, error)    { return 2, errors.New("store down") }
func (f *fakeRunner) Stats(context.Context) (pipeline.Stats, error) { return f.stats, nil }
func (f *fakeRunner) Running() bool                                 { return f.running }

// inline runs spawned work synchronously.
type inline struct{}

func (inline) Go(_ string, fn func(ctx context.Context) error) { _ = fn(context.Background()) }

type fixture struct {
	h      *Handlers
	store  storage.Store
	runner *fakeRunner
	chat   *chatLog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	runner := &fakeRunner{}
	loc := time.FixedZone("SAST", 2*60*60)
	h, err := New(Deps{
		Recipients: st,
		Runner:     runner,
		Spawner:    inline{},
		NextRun:    func() (time.Time, bool) { return time.Date(2025, 10, 16, 7, 0, 0, 0, time.UTC), true },
		Location:   loc,
		Now:        func() time.Time { return time.Date(2025, 10, 15, 8, 30, 0, 0, time.UTC) },
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{h: h, store: st, runner: runner, chat: &chatLog{}}
}

func (f *fixture) call(t *testing.T, fn router.HandlerFunc, from int64) string {
	t.Helper()
	req := &router.Request{Chat: kit.ChatTarget{ChatID: from}, FromID: from, FromUsername: "lindiwe", FromName: "Lindiwe", Sender: f.chat}
	if err := fn(context.Background(), req); err != nil {
		t.Fatalf("handler: %v", err)
	}
	return f.chat.last()
}

func TestSubscribeLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.call(t, f.h.status, 7); !strings.Contains(got, "not subscribed") {
		t.Fatalf("status before subscribe=%q", got)
	}
	if got := f.call(t, f.h.subscribe, 7); !strings.Contains(got, "Successfully subscribed") || !strings.Contains(got, "What to expect") {
		t.Fatalf("subscribe=%q", got)
	}
	if got := f.call(t, f.h.status, 7); !strings.Contains(got, "Member since: 2025-10-15 10:30") {
		t.Fatalf("status=%q", got)
	}
	if got := f.call(t, f.h.unsubscribe, 7); !strings.Contains(got, "unsubscribed") {
		t.Fatalf("unsubscribe=%q", got)
	}
	if n, _ := f.store.CountActiveRecipients(context.Background()); n != 0 {
		t.Fatalf("active=%d after unsubscribe", n)
	}
	if got := f.call(t, f.h.subscribe, 7); !strings.Contains(got, "Welcome back") {
		t.Fatalf("resubscribe=%q", got)
	}
	r, _ := f.store.Recipient(context.Background(), 7)
	if !r.Active || r.Username != "lindiwe" || r.DisplayName != "Lindiwe" {
		t.Fatalf("recipient=%+v", r)
	}
}

func TestUnsubscribeUnknownUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.call(t, f.h.unsubscribe, 404); !strings.Contains(got, "unsubscribed") {
		t.Fatalf("unsubscribe=%q", got)
	}
}

func TestSubscribeFromGroupRedirects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := &router.Request{Chat: kit.ChatTarget{ChatID: -100}, FromID: 7, IsGroup: true, Sender: f.chat}
	if err := f.h.subscribe(context.Background(), req); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !strings.Contains(f.chat.last(), "message me directly") {
		t.Fatalf("reply=%q", f.chat.last())
	}
	if _, err := f.store.Recipient(context.Background(), 7); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("group subscribe enrolled recipient: %v", err)
	}
}

func TestStatsShowsCountsAndNextRun(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.runner.stats = pipeline.Stats{ActiveRecipients: 12, RunsLastWeek: 5}

	got := f.call(t, f.h.stats, 1)
	for _, want := range []string{"Active subscribers: 12", "(7 days): 5", "Thu 16 Oct 09:00 SAST", "Join 12 professionals"} {
		if !strings.Contains(got, want) {
			t.Fatalf("stats missing %q: %q", want, got)
		}
	}
}

func TestRunReportsOutcome(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		out  pipeline.Outcome
		err  error
		want string
	}{
		{"delivered", pipeline.Outcome{Success: true, Result: broadcast.Result{Reached: 3, Deactivated: 1}}, nil, "3 delivered, 1 deactivated"},
		{"already done", pipeline.Outcome{}, pipeline.ErrAlreadyDone, "already sent"},
		{"failed", pipeline.Outcome{}, errors.New("record outcome: disk full"), "Run failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			f.runner.out, f.runner.runErr = tc.out, tc.err
			if got := f.call(t, f.h.run, 99); !strings.Contains(got, tc.want) {
				t.Fatalf("reply=%q want %q", got, tc.want)
			}
			if f.runner.runs != 1 {
				t.Fatalf("runs=%d", f.runner.runs)
			}
		})
	}
}

func TestRunRefusedWhileRunning(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.runner.running = true

	if got := f.call(t, f.h.run, 99); !strings.Contains(got, "already in progress") {
		t.Fatalf("reply=%q", got)
	}
	if f.runner.runs != 0 {
		t.Fatalf("runner called while busy")
	}
}

func TestBroadcastCommands(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if got := f.call(t, f.h.weekly, 99); got != "📊 Weekly report delivered to 4 subscribers." {
		t.Fatalf("weekly=%q", got)
	}
	if got := f.call(t, f.h.test, 99); got != "🧪 Test failed after 2 deliveries." {
		t.Fatalf("test=%q", got)
	}
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}
