package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "newsletterbot/internal/transport"
)

type Config struct {
	Level   string
	Console bool
	JSON    bool
	File    FileConfig
	Alert   AlertConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// AlertConfig forwards log lines at or above MinLevel to an admin chat.
type AlertConfig struct {
	Enabled    bool
	ChatID     int64
	MinLevel   string
	RatePerSec int
}

const defaultLogFile = "./logs/newsletterbot.log"

var (
	osStdout io.Writer = os.Stdout
	osStderr io.Writer = os.Stderr
)

// Service owns the log sinks. Apply swaps them at runtime; loggers derived
// from the service pick up the change on their next write.
type Service struct {
	root atomic.Pointer[zerolog.Logger]

	mu     sync.Mutex
	file   *os.File
	alerts *alertSink
}

// New creates the logging service and applies cfg. sender may be nil until
// SetAlertSender is called.
func New(cfg Config, sender kit.Sender) (*Service, Logger) {
	s := &Service{alerts: newAlertSink(sender)}
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	if zl := s.root.Load(); zl != nil {
		return *zl
	}
	return zerolog.Nop()
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetAlertSender attaches the transport used for admin alerts.
func (s *Service) SetAlertSender(sender kit.Sender) { s.alerts.setSender(sender) }

// Close stops the alert worker and closes the log file.
func (s *Service) Close() error {
	s.alerts.stop()

	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f != nil {
		return f.Close()
	}
	return nil
}

// Apply rebuilds the sinks from cfg. Safe to call concurrently with logging.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		if cfg.JSON {
			writers = append(writers, osStdout)
		} else {
			writers = append(writers, consoleWriter(osStdout))
		}
	}

	old := s.file
	s.file = nil
	if cfg.File.Enabled {
		if f, err := openLogFile(cfg.File.Path); err != nil {
			fmt.Fprintf(osStderr, "logx: %v\n", err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}

	if cfg.Alert.Enabled {
		if cfg.Alert.ChatID == 0 {
			fmt.Fprintln(osStderr, "logx: alert sink enabled but alert chat id is not set")
		}
		rps := max(cfg.Alert.RatePerSec, 1)
		s.alerts.configure(cfg.Alert.ChatID, parseLevel(cfg.Alert.MinLevel, zerolog.ErrorLevel), rate.NewLimiter(rate.Limit(rps), rps))
		writers = append(writers, s.alerts)
	} else {
		s.alerts.configure(0, zerolog.Disabled, nil)
	}

	if len(writers) == 0 {
		writers = append(writers, consoleWriter(osStdout))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(parseLevel(cfg.Level, zerolog.InfoLevel)).
		With().Timestamp().Logger()
	s.root.Store(&zl)

	// Writers still holding the old file finish against the closed handle and drop the line.
	if old != nil {
		_ = old.Close()
	}
}

func openLogFile(path string) (*os.File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultLogFile
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir for %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %q: %w", path, err)
	}
	return f, nil
}

func consoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// worker lifecycle helper for the alert sink
func startWorker(fn func(ctx context.Context)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
