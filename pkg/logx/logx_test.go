package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	kit "newsletterbot/internal/transport"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestFormatAlertSortsFields(t *testing.T) {
	t.Parallel()

	got := formatAlert([]byte(`{"level":"error","message":"run failed","time":"x","run":"r1","err":"boom"}`))
	want := "🚨 <b>ERROR</b> run failed\n<code>err</code>: boom\n<code>run</code>: r1"
	if got != want {
		t.Fatalf("formatAlert=%q want %q", got, want)
	}
}

func TestFormatAlertNonJSON(t *testing.T) {
	t.Parallel()

	if got := formatAlert([]byte("  a < b \n")); got != "a &lt; b" {
		t.Fatalf("got %q", got)
	}
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("component", "test"))
	log.Info("hello", Int("n", 3), Err(nil))

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%s)", err, buf.String())
	}
	if m["component"] != "test" || m["message"] != "hello" || m["n"] != float64(3) {
		t.Fatalf("unexpected fields: %v", m)
	}
	if _, ok := m["err"]; ok {
		t.Fatalf("nil error should not be logged: %v", m)
	}
}

func TestAlertSinkRespectsMinLevel(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level: "debug",
		Alert: AlertConfig{Enabled: true, ChatID: 42, MinLevel: "error", RatePerSec: 100},
	}, sender)
	defer svc.Close()

	log.Warn("only a warning")
	log.Error("real problem", String("stage", "fetch"))

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.msgs) != 1 {
		t.Fatalf("alerts=%d want 1: %v", len(sender.msgs), sender.msgs)
	}
	if !strings.HasPrefix(sender.msgs[0], "🚨 <b>ERROR</b> real problem") || !strings.Contains(sender.msgs[0], "<code>stage</code>: fetch") {
		t.Fatalf("alert text=%q", sender.msgs[0])
	}
}

func TestApplyCreatesLogDir(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}}, nil)
	log.Info("written to file", String("run", "r1"))
	if err := svc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), `"message":"written to file"`) || !strings.Contains(string(b), `"run":"r1"`) {
		t.Fatalf("log file=%s", b)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in, LevelInfo); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}
