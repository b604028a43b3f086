// Package router dispatches Telegram slash commands to handlers on a bounded worker pool.
package router

import (
	"context"
	"html"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "newsletterbot/internal/runtime/supervisor"
	kit "newsletterbot/internal/transport"
	logx "newsletterbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

const defaultTimeout = 30 * time.Second

type Command struct {
	Name        string // without the leading slash
	Aliases     []string
	Description string
	Access      Access
	Hidden      bool          // keep out of /help and the menu
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Chat         kit.ChatTarget
	FromID       int64
	FromUsername string
	FromName     string
	IsGroup      bool
	Command      string
	Args         []string

	Sender kit.Sender
	Logger logx.Logger
}

// Reply sends an HTML message back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.Sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: kit.ParseModeHTML, DisablePreview: true})
	return err
}

type Router struct {
	mu       sync.RWMutex
	cmds     []Command
	byName   map[string]HandlerFunc
	admins   []int64
	helpHead string

	log     logx.Logger
	sender  kit.Sender
	workers int
	jobs    chan func()
}

func New(log logx.Logger, sender kit.Sender, admins []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		byName:  map[string]HandlerFunc{},
		admins:  slices.Clone(admins),
		log:     log,
		sender:  sender,
		workers: 4,
		jobs:    make(chan func(), 256),
	}
}

// SetAdmins replaces the admin list. Safe during hot reload.
func (m *Router) SetAdmins(admins []int64) {
	m.mu.Lock()
	m.admins = slices.Clone(admins)
	m.mu.Unlock()
}

func (m *Router) IsAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return id != 0 && slices.Contains(m.admins, id)
}

// SetCommands installs the command table. A /help command listing the public commands
// is added when none is given; helpHead is printed above that list.
func (m *Router) SetCommands(cmds []Command, helpHead string) {
	cmds = slices.Clone(cmds)
	if !slices.ContainsFunc(cmds, func(c Command) bool { return c.Name == "help" }) {
		cmds = append(cmds, Command{
			Name:        "help",
			Description: "Show this help message",
			Handle: func(ctx context.Context, req *Request) error {
				return req.Reply(ctx, m.helpText(req.FromID))
			},
		})
	}

	byName := make(map[string]HandlerFunc, len(cmds))
	base := []Middleware{MWPanicRecover(m.log), MWRequestLog(m.log)}
	for _, c := range cmds {
		if c.Handle == nil || c.Name == "" {
			continue
		}
		timeout := c.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		mw := append(slices.Clone(base), MWTimeout(timeout))
		if c.Access == AccessAdminOnly {
			mw = append(mw, MWAdminOnly(m.IsAdmin))
		}
		h := Chain(c.Handle, mw...)
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
				byName[name] = h
			}
		}
	}

	m.mu.Lock()
	m.cmds = cmds
	m.byName = byName
	m.helpHead = helpHead
	m.mu.Unlock()
}

// Menu returns the command menu entries for the registered public commands.
func (m *Router) Menu() []kit.BotCommand {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return buildMenu(m.cmds)
}

func (m *Router) helpText(from int64) string {
	m.mu.RLock()
	cmds, head := m.cmds, m.helpHead
	m.mu.RUnlock()

	admin := m.IsAdmin(from)
	var b strings.Builder
	if head != "" {
		b.WriteString(head)
		b.WriteString("\n\n")
	}
	b.WriteString("<b>Commands:</b>\n")
	for _, c := range cmds {
		if c.Hidden || (c.Access == AccessAdminOnly && !admin) {
			continue
		}
		b.WriteString("/" + c.Name + " - " + html.EscapeString(c.Description))
		if c.Access == AccessAdminOnly {
			b.WriteString(" 🔒")
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop reads updates until ctx is done and runs matching handlers on the worker pool.
func (m *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))))
	for i := 0; i < m.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					m.runJob(idx, job)
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	m.log.Info("command dispatcher started", logx.Int("workers", m.workers))

	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *Router) runJob(worker int, job func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("panic in command job", logx.Int("worker", worker), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
	}()
	job()
}

func (m *Router) route(ctx context.Context, up kit.Update) {
	req, h, ok := m.match(up)
	if !ok {
		return
	}
	select {
	case m.jobs <- func() { _ = h(ctx, req) }:
	default:
		m.log.Warn("command queue full; dropping", logx.String("cmd", req.Command), logx.Int64("from_id", req.FromID))
	}
}

// match resolves an update to a request and handler. Unknown commands and plain text are ignored.
func (m *Router) match(up kit.Update) (*Request, HandlerFunc, bool) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil, nil, false
	}
	msg := up.Message
	fields := strings.Fields(msg.Text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, nil, false
	}
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	name = strings.ToLower(name)

	m.mu.RLock()
	h, ok := m.byName[name]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	return &Request{
		Chat:         kit.ChatTarget{ChatID: msg.ChatID},
		FromID:       msg.FromID,
		FromUsername: msg.FromUsername,
		FromName:     msg.FromName,
		IsGroup:      msg.IsGroup,
		Command:      name,
		Args:         fields[1:],
		Sender:       m.sender,
		Logger:       m.log.With(logx.String("cmd", name)),
	}, h, true
}
