// Package commands implements the subscriber and operator slash commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"newsletterbot/internal/pipeline"
	"newsletterbot/internal/storage"
	"newsletterbot/internal/transport/telegram/router"
	logx "newsletterbot/pkg/logx"
)

type Recipients interface {
	EnrollRecipient(ctx context.Context, r storage.Recipient) (bool, error)
	SetRecipientActive(ctx context.Context, id int64, active bool) error
	Recipient(ctx context.Context, id int64) (storage.Recipient, error)
}

type Runner interface {
	Run(ctx context.Context, trigger pipeline.Trigger) (pipeline.Outcome, error)
	WeeklyReport(ctx context.Context) (int, error)
	TestBroadcast(ctx context.Context) (int, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
	Running() bool
}

// Spawner runs long operations past the handler timeout. *supervisor.Supervisor satisfies it.
type Spawner interface {
	Go(name string, fn func(ctx context.Context) error)
}

type Deps struct {
	Recipients Recipients
	Runner     Runner
	Spawner    Spawner
	// NextRun reports the next scheduled daily run, if any.
	NextRun  func() (time.Time, bool)
	Location *time.Location
	Now      func() time.Time
}

type Handlers struct {
	d   Deps
	log logx.Logger
}

func New(d Deps, log logx.Logger) (*Handlers, error) {
	switch {
	case d.Recipients == nil:
		return nil, errors.New("commands: recipients store is required")
	case d.Runner == nil:
		return nil, errors.New("commands: runner is required")
	case d.Spawner == nil:
		return nil, errors.New("commands: spawner is required")
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{d: d, log: log.With(logx.String("comp", "commands"))}, nil
}

// Install registers the command table on r.
func (h *Handlers) Install(r *router.Router) {
	r.SetCommands(h.Commands(), helpHead)
}

func (h *Handlers) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Welcome message and introduction", Handle: h.start},
		{Name: "subscribe", Description: "Subscribe to newsletter summaries", Handle: h.subscribe},
		{Name: "unsubscribe", Description: "Stop receiving summaries", Handle: h.unsubscribe},
		{Name: "status", Description: "Check subscription status", Handle: h.status},
		{Name: "stats", Description: "Community and delivery stats", Handle: h.stats},
		{Name: "run", Description: "Run the newsletter now", Access: router.AccessAdminOnly, Handle: h.run},
		{Name: "test", Description: "Send a test message to all subscribers", Access: router.AccessAdminOnly, Handle: h.test},
		{Name: "weekly", Description: "Send the weekly report now", Access: router.AccessAdminOnly, Handle: h.weekly},
	}
}

func (h *Handlers) start(ctx context.Context, req *router.Request) error {
	req.Logger.Info("user started bot", logx.Int64("user_id", req.FromID))
	return req.Reply(ctx, welcomeText)
}

func (h *Handlers) subscribe(ctx context.Context, req *router.Request) error {
	if req.IsGroup {
		return req.Reply(ctx, groupOnlyPrivate)
	}
	existed, err := h.d.Recipients.EnrollRecipient(ctx, storage.Recipient{
		ID:          req.FromID,
		Username:    req.FromUsername,
		DisplayName: req.FromName,
		EnrolledAt:  h.d.Now(),
	})
	if err != nil {
		_ = req.Reply(ctx, subscribeFailed)
		return fmt.Errorf("enroll %d: %w", req.FromID, err)
	}
	req.Logger.Info("recipient subscribed", logx.Int64("user_id", req.FromID), logx.String("username", req.FromUsername), logx.Bool("returning", existed))
	text := subscribedNew
	if existed {
		text = subscribedBack
	}
	return req.Reply(ctx, text+subscribedTail)
}

func (h *Handlers) unsubscribe(ctx context.Context, req *router.Request) error {
	err := h.d.Recipients.SetRecipientActive(ctx, req.FromID, false)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		_ = req.Reply(ctx, unsubscribeFailed)
		return fmt.Errorf("deactivate %d: %w", req.FromID, err)
	}
	req.Logger.Info("recipient unsubscribed", logx.Int64("user_id", req.FromID))
	return req.Reply(ctx, unsubscribedText)
}

func (h *Handlers) status(ctx context.Context, req *router.Request) error {
	r, err := h.d.Recipients.Recipient(ctx, req.FromID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return req.Reply(ctx, notSubscribedText)
	case err != nil:
		_ = req.Reply(ctx, statusFailed)
		return err
	case !r.Active:
		return req.Reply(ctx, notSubscribedText)
	}
	return req.Reply(ctx, "✅ <b>You're subscribed!</b>\n\n"+
		"📅 Member since: "+r.EnrolledAt.In(h.d.Location).Format("2006-01-02 15:04")+"\n"+
		"📰 Receiving AI newsletter summaries\n"+
		"🇿🇦 Optimized for South African professionals")
}

func (h *Handlers) stats(ctx context.Context, req *router.Request) error {
	st, err := h.d.Runner.Stats(ctx)
	if err != nil {
		_ = req.Reply(ctx, statsFailed)
		return err
	}
	n := strconv.Itoa(st.ActiveRecipients)
	runs := strconv.Itoa(st.RunsLastWeek)
	return req.Reply(ctx, "📊 <b>AI Newsletter Bot SA Stats</b>\n\n"+
		"👥 Active subscribers: "+n+"\n"+
		"📰 Newsletters processed (7 days): "+runs+"\n"+
		"🤖 AI summaries generated: "+runs+"\n"+
		"🇿🇦 Serving South African professionals\n\n"+
		"<b>Status:</b> "+h.statusLine()+"\n"+
		"<b>Next update:</b> "+h.nextRunLine()+"\n\n"+
		"💡 <i>Join "+n+" professionals staying ahead with AI!</i>")
}

func (h *Handlers) statusLine() string {
	if h.d.Runner.Running() {
		return "⏳ Processing a newsletter now"
	}
	return "✅ Active and processing"
}

func (h *Handlers) nextRunLine() string {
	if h.d.NextRun == nil {
		return "not scheduled"
	}
	next, ok := h.d.NextRun()
	if !ok || next.IsZero() {
		return "not scheduled"
	}
	return next.In(h.d.Location).Format("Mon 2 Jan 15:04 MST")
}

// run starts a manual run in the background and reports the outcome to the caller's chat.
func (h *Handlers) run(ctx context.Context, req *router.Request) error {
	if h.d.Runner.Running() {
		return req.Reply(ctx, "⏳ A run is already in progress.")
	}
	if err := req.Reply(ctx, "🚀 Manual run started."); err != nil {
		return err
	}
	h.d.Spawner.Go("commands.run", func(c context.Context) error {
		out, err := h.d.Runner.Run(c, pipeline.TriggerManual)
		_ = req.Reply(c, runReport(out, err))
		return nil
	})
	return nil
}

func runReport(out pipeline.Outcome, err error) string {
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		return "⏳ A run is already in progress."
	case errors.Is(err, pipeline.ErrAlreadyDone):
		return "✅ Today's newsletter was already sent."
	case err != nil && !out.Success:
		return "❌ Run failed. Check the logs for details."
	}
	return fmt.Sprintf("✅ Run finished: %d delivered, %d deactivated, %d failed.",
		out.Result.Reached, out.Result.Deactivated, out.Result.Failed)
}

func (h *Handlers) test(ctx context.Context, req *router.Request) error {
	return h.spawnBroadcast(ctx, req, "commands.test", "🧪 Test", h.d.Runner.TestBroadcast)
}

func (h *Handlers) weekly(ctx context.Context, req *router.Request) error {
	return h.spawnBroadcast(ctx, req, "commands.weekly", "📊 Weekly report", h.d.Runner.WeeklyReport)
}

func (h *Handlers) spawnBroadcast(ctx context.Context, req *router.Request, name, label string, fn func(context.Context) (int, error)) error {
	if h.d.Runner.Running() {
		return req.Reply(ctx, "⏳ A run is already in progress.")
	}
	if err := req.Reply(ctx, label+" started."); err != nil {
		return err
	}
	h.d.Spawner.Go(name, func(c context.Context) error {
		n, err := fn(c)
		if err != nil {
			_ = req.Reply(c, fmt.Sprintf("%s failed after %d deliveries.", label, n))
			return nil
		}
		_ = req.Reply(c, fmt.Sprintf("%s delivered to %d subscribers.", label, n))
		return nil
	})
	return nil
}
