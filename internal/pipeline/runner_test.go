package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"newsletterbot/internal/broadcast"
	"newsletterbot/internal/content"
	"newsletterbot/internal/eventbus"
	"newsletterbot/internal/rungate"
	"newsletterbot/internal/source"
	"newsletterbot/internal/storage"
	kit "newsletterbot/internal/transport"
	logx "newsletterbot/pkg/logx"
)

var sast = time.FixedZone("SAST", 2*60*60)

type sourceFunc func(ctx context.Context) source.Report

func (f sourceFunc) FetchReport(ctx context.Context) source.Report { return f(ctx) }

type summarizerFunc func(ctx context.Context, it content.Item) content.Message

func (f summarizerFunc) Summarize(ctx context.Context, it content.Item) content.Message {
	return f(ctx, it)
}

type recordingSender struct {
	mu   sync.Mutex
	sent map[int64][]string
	fail map[int64]error
}

func (s *recordingSender) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail[to.ChatID]; err != nil {
		return kit.MessageRef{}, err
	}
	if s.sent == nil {
		s.sent = map[int64][]string{}
	}
	s.sent[to.ChatID] = append(s.sent[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *recordingSender) texts(id int64) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[id]...)
}

type fixture struct {
	store   storage.Store
	gate    *rungate.Gate
	sender  *recordingSender
	fetches atomic.Int32
	deps    Deps
}

func newFixture(t *testing.T, recipients ...int64) *fixture {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	for _, id := range recipients {
		if _, err := st.EnrollRecipient(context.Background(), storage.Recipient{ID: id, DisplayName: "r"}); err != nil {
			t.Fatalf("enroll: %v", err)
		}
	}
	now := func() time.Time { return time.Date(2025, 10, 15, 9, 0, 0, 0, sast) }
	gate, err := rungate.New(st, rungate.Config{Location: sast, Now: now}, logx.Nop())
	if err != nil {
		t.Fatalf("rungate.New: %v", err)
	}

	f := &fixture{store: st, gate: gate, sender: &recordingSender{}}
	f.deps = Deps{
		Gate: gate,
		Source: sourceFunc(func(ctx context.Context) source.Report {
			f.fetches.Add(1)
			return source.Report{Item: content.Item{Title: "Issue 42", Body: strings.Repeat("AI news ", 30), Source: content.SourceFeed}}
		}),
		Summarizer: summarizerFunc(func(ctx context.Context, it content.Item) content.Message {
			return content.Message{Text: "summary of " + it.Title, Origin: content.OriginAI}
		}),
		Broadcaster: broadcast.New(broadcast.Config{Gap: time.Millisecond, ErrorBackoff: time.Millisecond}, f.sender, st, logx.Nop()),
		Store:       st,
		Location:    sast,
		Now:         now,
	}
	return f
}

func (f *fixture) runner(t *testing.T) *Runner {
	t.Helper()
	r, err := New(f.deps, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func TestRunDeliversAndClosesDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 2, 3)
	f.sender.fail = map[int64]error{2: kit.ErrRecipientBlocked}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	f.deps.Bus = bus
	r := f.runner(t)
	ctx := context.Background()

	out, err := r.Run(ctx, TriggerSchedule)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !out.Success || out.Result.Reached != 2 || out.Title != "Issue 42" || out.Origin != content.OriginAI {
		t.Fatalf("outcome=%+v", out)
	}
	if got := f.sender.texts(1); len(got) != 1 || got[0] != "summary of Issue 42" {
		t.Fatalf("recipient 1 got %v", got)
	}
	last, err := f.store.LastRun(ctx)
	if err != nil || !last.Success || last.RecipientsReached != 2 || last.Title != "Issue 42" {
		t.Fatalf("last run=%+v err=%v", last, err)
	}

	if _, err := r.Run(ctx, TriggerManual); !errors.Is(err, ErrAlreadyDone) {
		t.Fatalf("second run err=%v", err)
	}
	if n := f.fetches.Load(); n != 1 {
		t.Fatalf("gate must be checked before fetching; fetches=%d", n)
	}

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	want := []string{EventRunStarted, EventRunCompleted, EventRunSkipped}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("events=%v want %v", types, want)
	}
}

func TestRunAcrossMidnightClosesStartDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	start := time.Date(2025, 10, 15, 23, 59, 58, 0, sast)
	var calls atomic.Int32
	// First call is the start stamp; every later read is past midnight.
	f.deps.Now = func() time.Time {
		if calls.Add(1) == 1 {
			return start
		}
		return start.Add(5 * time.Second)
	}
	gate, err := rungate.New(f.store, rungate.Config{Location: sast, Now: func() time.Time { return start.Add(5 * time.Second) }}, logx.Nop())
	if err != nil {
		t.Fatalf("rungate.New: %v", err)
	}
	f.gate, f.deps.Gate = gate, gate
	r := f.runner(t)
	ctx := context.Background()

	if _, err := r.Run(ctx, TriggerSchedule); err != nil {
		t.Fatalf("Run: %v", err)
	}
	last, err := f.store.LastRun(ctx)
	if err != nil || !last.Success || !last.RunAt.Equal(start) {
		t.Fatalf("last run=%+v err=%v, want success stamped %v", last, err, start)
	}
	if ok, _ := f.gate.ShouldRun(ctx, start); ok {
		t.Fatalf("start day still open")
	}
	if ok, _ := f.gate.ShouldRun(ctx, start.Add(time.Hour)); !ok {
		t.Fatalf("next day closed by a run that started the day before")
	}
}

func TestRunIsSingleFlight(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	entered := make(chan struct{})
	release := make(chan struct{})
	inner := f.deps.Source
	f.deps.Source = sourceFunc(func(ctx context.Context) source.Report {
		close(entered)
		<-release
		return inner.FetchReport(ctx)
	})
	r := f.runner(t)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(context.Background(), TriggerSchedule)
		done <- err
	}()
	<-entered
	if !r.Running() {
		t.Fatalf("Running() = false during a run")
	}
	if _, err := r.Run(context.Background(), TriggerManual); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("concurrent run err=%v", err)
	}
	if _, err := r.WeeklyReport(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("concurrent weekly err=%v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first run: %v", err)
	}
	if n, _ := f.store.CountRuns(context.Background(), storage.RunFilter{SuccessOnly: true}); n != 1 {
		t.Fatalf("successful runs=%d want 1", n)
	}
}

type failingBroadcaster struct{ err error }

func (b failingBroadcaster) SendReport(context.Context, content.Message) (broadcast.Result, error) {
	return broadcast.Result{}, b.err
}

type alertFunc func(ctx context.Context, text string) error

func (f alertFunc) Alert(ctx context.Context, text string) error { return f(ctx, text) }

func TestRunBookkeepingFailureRecordsFailedRun(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	boom := errors.New("database is locked")
	f.deps.Broadcaster = failingBroadcaster{err: boom}
	var alerts []string
	f.deps.Alert = alertFunc(func(ctx context.Context, text string) error {
		alerts = append(alerts, text)
		return nil
	})
	r := f.runner(t)
	ctx := context.Background()

	_, err := r.Run(ctx, TriggerSchedule)
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	last, err := f.store.LastRun(ctx)
	if err != nil || last.Title != FailedTitle || last.Success || last.RecipientsReached != 0 {
		t.Fatalf("last run=%+v err=%v", last, err)
	}
	if len(alerts) != 1 || !strings.Contains(alerts[0], "System Alert") || !strings.Contains(alerts[0], "database is locked") {
		t.Fatalf("alerts=%q", alerts)
	}
	if ok, _ := f.gate.ShouldRun(ctx, f.deps.Now()); !ok {
		t.Fatalf("a failed run must leave the day open")
	}
}

func TestRunRecoversPanic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1)
	f.deps.Summarizer = summarizerFunc(func(context.Context, content.Item) content.Message { panic("nil map") })
	r := f.runner(t)

	_, err := r.Run(context.Background(), TriggerSchedule)
	if err == nil || !strings.Contains(err.Error(), "nil map") {
		t.Fatalf("err=%v", err)
	}
	if r.Running() {
		t.Fatalf("run slot not released after panic")
	}
	last, _ := f.store.LastRun(context.Background())
	if last.Title != FailedTitle {
		t.Fatalf("last run=%+v", last)
	}
}

func TestRunInterruptedAfterPartialDelivery(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 2)
	ctx, cancel := context.WithCancel(context.Background())
	f.deps.Broadcaster = broadcasterFunc(func(context.Context, content.Message) (broadcast.Result, error) {
		cancel()
		return broadcast.Result{Attempted: 1, Reached: 1}, context.Canceled
	})
	r := f.runner(t)

	out, err := r.Run(ctx, TriggerSchedule)
	if !errors.Is(err, context.Canceled) || !out.Success {
		t.Fatalf("out=%+v err=%v", out, err)
	}
	if ok, _ := f.gate.ShouldRun(context.Background(), f.deps.Now()); ok {
		t.Fatalf("partial delivery should close the day")
	}
}

type broadcasterFunc func(ctx context.Context, msg content.Message) (broadcast.Result, error)

func (f broadcasterFunc) SendReport(ctx context.Context, msg content.Message) (broadcast.Result, error) {
	return f(ctx, msg)
}

func TestWeeklyReportAndStats(t *testing.T) {
	t.Parallel()

	f := newFixture(t, 1, 2)
	ctx := context.Background()
	now := f.deps.Now()
	for _, rec := range []storage.RunRecord{
		{RunAt: now.Add(-24 * time.Hour), Title: "a", RecipientsReached: 2, Success: true},
		{RunAt: now.Add(-48 * time.Hour), Title: FailedTitle},
		{RunAt: now.Add(-72 * time.Hour), Title: "b", RecipientsReached: 2, Success: true},
		{RunAt: now.Add(-10 * 24 * time.Hour), Title: "old", RecipientsReached: 2, Success: true},
	} {
		if err := f.store.AppendRun(ctx, rec); err != nil {
			t.Fatalf("AppendRun: %v", err)
		}
	}
	r := f.runner(t)

	st, err := r.Stats(ctx)
	if err != nil || st.ActiveRecipients != 2 || st.RunsLastWeek != 2 || st.LastRun == nil || st.LastRun.Title != "a" {
		t.Fatalf("stats=%+v err=%v", st, err)
	}

	reached, err := r.WeeklyReport(ctx)
	if err != nil || reached != 2 {
		t.Fatalf("reached=%d err=%v", reached, err)
	}
	got := f.sender.texts(2)
	if len(got) != 1 {
		t.Fatalf("texts=%v", got)
	}
	for _, want := range []string{"Weekly AI Newsletter Update", "<b>Newsletters processed:</b> 2", "<b>Active community:</b> 2 South African professionals"} {
		if !strings.Contains(got[0], want) {
			t.Fatalf("weekly message missing %q:\n%s", want, got[0])
		}
	}
	if ok, _ := f.gate.ShouldRun(ctx, now); !ok {
		t.Fatalf("weekly report must not close the day")
	}
}

func TestNewRequiresDeps(t *testing.T) {
	t.Parallel()

	if _, err := New(Deps{}, logx.Nop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestChatAlerter(t *testing.T) {
	t.Parallel()

	s := &recordingSender{}
	if err := (ChatAlerter{Sender: s}).Alert(context.Background(), "x"); err != nil {
		t.Fatalf("disabled alerter: %v", err)
	}
	if err := (ChatAlerter{Sender: s, ChatID: 7}).Alert(context.Background(), "boom"); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if got := s.texts(7); len(got) != 1 || got[0] != "boom" {
		t.Fatalf("admin got %v", got)
	}
}
