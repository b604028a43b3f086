package router

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	kit "newsletterbot/internal/transport"
	logx "newsletterbot/pkg/logx"
)

type replySender struct {
	mu      sync.Mutex
	replies map[int64][]string
}

func (s *replySender) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replies == nil {
		s.replies = map[int64][]string{}
	}
	s.replies[to.ChatID] = append(s.replies[to.ChatID], text)
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func (s *replySender) waitFor(t *testing.T, chat int64, n int) []string {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		got := append([]string(nil), s.replies[chat]...)
		s.mu.Unlock()
		if len(got) >= n {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("chat %d: timed out waiting for %d replies", chat, n)
	return nil
}

func msg(chat, from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chat, FromID: from, Text: text}}
}

func startRouter(t *testing.T, cmds []Command) (*replySender, chan kit.Update) {
	t.Helper()
	s := &replySender{}
	r := New(logx.Nop(), s, []int64{99})
	r.SetCommands(cmds, "<b>Newsletter Bot</b>")

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.DispatchLoop(ctx, updates)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return s, updates
}

func echo(ctx context.Context, req *Request) error {
	return req.Reply(ctx, "echo "+req.Command+" "+strings.Join(req.Args, ","))
}

func TestDispatchRoutesCommandsAndArgs(t *testing.T) {
	t.Parallel()

	s, updates := startRouter(t, []Command{{Name: "status", Aliases: []string{"st"}, Description: "Check status", Handle: echo}})
	updates <- msg(1, 1, "hello there")
	updates <- msg(1, 1, "/unknown")
	updates <- msg(1, 1, "/status@newsletter_bot a b")

	got := s.waitFor(t, 1, 1)
	if got[0] != "echo status a,b" {
		t.Fatalf("reply=%q", got[0])
	}
	updates <- msg(2, 1, "/ST")
	if got := s.waitFor(t, 2, 1); got[0] != "echo st " {
		t.Fatalf("alias reply=%q", got[0])
	}
}

func TestAdminOnlyCommands(t *testing.T) {
	t.Parallel()

	s, updates := startRouter(t, []Command{{Name: "run", Description: "Run now", Access: AccessAdminOnly, Handle: echo}})
	updates <- msg(5, 5, "/run")
	if got := s.waitFor(t, 5, 1); !strings.Contains(got[0], "restricted") {
		t.Fatalf("non-admin reply=%q", got[0])
	}
	updates <- msg(99, 99, "/run")
	if got := s.waitFor(t, 99, 1); got[0] != "echo run " {
		t.Fatalf("admin reply=%q", got[0])
	}
}

func TestHelpListsVisibleCommands(t *testing.T) {
	t.Parallel()

	s, updates := startRouter(t, []Command{
		{Name: "subscribe", Description: "Get summaries", Handle: echo},
		{Name: "run", Description: "Run now", Access: AccessAdminOnly, Handle: echo},
		{Name: "debug", Hidden: true, Handle: echo},
	})

	updates <- msg(1, 1, "/help")
	help := s.waitFor(t, 1, 1)[0]
	if !strings.HasPrefix(help, "<b>Newsletter Bot</b>") || !strings.Contains(help, "/subscribe - Get summaries") {
		t.Fatalf("help=%q", help)
	}
	if strings.Contains(help, "/run") || strings.Contains(help, "/debug") {
		t.Fatalf("help leaks restricted commands: %q", help)
	}

	updates <- msg(99, 99, "/help")
	if help := s.waitFor(t, 99, 1)[0]; !strings.Contains(help, "/run - Run now 🔒") {
		t.Fatalf("admin help=%q", help)
	}
}

func TestPanickingHandlerKeepsDispatcherAlive(t *testing.T) {
	t.Parallel()

	s, updates := startRouter(t, []Command{
		{Name: "boom", Handle: func(context.Context, *Request) error { panic("bad handler") }},
		{Name: "ok", Handle: echo},
	})
	updates <- msg(1, 1, "/boom")
	updates <- msg(1, 1, "/ok")
	if got := s.waitFor(t, 1, 1); got[0] != "echo ok " {
		t.Fatalf("reply=%q", got[0])
	}
}

func TestMenuSkipsAdminAndHidden(t *testing.T) {
	t.Parallel()

	r := New(logx.Nop(), &replySender{}, nil)
	r.SetCommands([]Command{
		{Name: "unsubscribe", Description: "Stop", Handle: echo},
		{Name: "run", Access: AccessAdminOnly, Handle: echo},
		{Name: "debug", Hidden: true, Handle: echo},
	}, "")

	menu := r.Menu()
	if len(menu) != 2 || menu[0].Command != "help" || menu[1].Command != "unsubscribe" {
		t.Fatalf("menu=%+v", menu)
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Weekly-Report": "weekly_report",
		"  stats ":      "stats",
		"9lives":        "cmd_9lives",
		"!!!":           "",
	}
	for in, want := range cases {
		if got := sanitizeTelegramCommand(in); got != want {
			t.Fatalf("sanitize(%q)=%q want %q", in, got, want)
		}
	}
}
