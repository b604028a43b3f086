package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"newsletterbot/internal/eventbus"
	"newsletterbot/internal/storage"
	logx "newsletterbot/pkg/logx"
)

// bookkeepingTimeout bounds the failure record and alert written after a run fails,
// including during shutdown.
const bookkeepingTimeout = 5 * time.Second

type Deps struct {
	Gate        Gate
	Source      Source
	Summarizer  Summarizer
	Broadcaster Broadcaster
	Store       StatsStore

	Bus   eventbus.Bus // optional
	Alert Alerter      // optional

	Location *time.Location
	Now      func() time.Time
}

// Runner owns the run task. At most one Run or WeeklyReport executes at a time.
type Runner struct {
	d   Deps
	log logx.Logger

	running atomic.Bool
}

func New(d Deps, log logx.Logger) (*Runner, error) {
	switch {
	case d.Gate == nil:
		return nil, errors.New("pipeline: gate is required")
	case d.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case d.Summarizer == nil:
		return nil, errors.New("pipeline: summarizer is required")
	case d.Broadcaster == nil:
		return nil, errors.New("pipeline: broadcaster is required")
	case d.Store == nil:
		return nil, errors.New("pipeline: store is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &Runner{d: d, log: log.With(logx.String("comp", "pipeline"))}, nil
}

// Running reports whether a run is executing.
func (r *Runner) Running() bool { return r.running.Load() }

// Run executes one newsletter run. It returns ErrRunInProgress when another run holds the
// slot and ErrAlreadyDone when the gate closed today. Other errors come from bookkeeping
// (store unreachable) or cancellation; a failed RunRecord has been attempted before they return.
func (r *Runner) Run(ctx context.Context, trigger Trigger) (out Outcome, err error) {
	out.Trigger = trigger
	if !r.running.CompareAndSwap(false, true) {
		r.log.Info("run dropped, another run in progress", logx.String("trigger", string(trigger)))
		r.publish(EventRunSkipped, out)
		return out, ErrRunInProgress
	}
	defer r.running.Store(false)

	start := r.d.Now()
	log := r.log.With(logx.String("trigger", string(trigger)))
	defer func() {
		if p := recover(); p != nil {
			log.Error("run panicked", logx.Any("panic", p), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("pipeline: panic: %v", p)
			out.Success = false
			r.fail(ctx, log, out, err)
		}
	}()

	ok, err := r.d.Gate.ShouldRun(ctx, start)
	if err != nil {
		err = fmt.Errorf("check run gate: %w", err)
		r.fail(ctx, log, out, err)
		return out, err
	}
	if !ok {
		log.Info("newsletter already sent today, skipping", logx.String("day", start.In(r.d.Location).Format("2006-01-02")))
		r.publish(EventRunSkipped, out)
		return out, ErrAlreadyDone
	}

	log.Info("run started")
	r.publish(EventRunStarted, out)

	rep := r.d.Source.FetchReport(ctx)
	out.Title = rep.Item.Title
	out.Source = rep.Item.Source
	out.Fallback = rep.Fallback

	msg := r.d.Summarizer.Summarize(ctx, rep.Item)
	out.Origin = msg.Origin

	res, sendErr := r.d.Broadcaster.SendReport(ctx, msg)
	out.Result = res
	out.Took = time.Since(start)

	switch {
	case sendErr == nil:
		out.Success = true
	case ctx.Err() != nil && res.Reached > 0:
		// Interrupted mid-broadcast: the day is closed so reached recipients get no duplicate.
		out.Success = true
		log.Warn("broadcast interrupted, recording partial delivery", logx.Int("reached", res.Reached), logx.Err(sendErr))
	default:
		err = fmt.Errorf("broadcast: %w", sendErr)
		r.fail(ctx, log, out, err)
		return out, err
	}

	// Stamped with the start time: the day checked before fetch is the day that closes.
	if err := r.d.Gate.RecordOutcomeAt(detach(ctx), start, out.Title, res.Reached, true); err != nil {
		out.Success = false
		err = fmt.Errorf("record outcome: %w", err)
		r.fail(ctx, log, out, err)
		return out, err
	}

	log.Info("run completed",
		logx.String("title", out.Title),
		logx.String("source", string(out.Source)),
		logx.String("summary_origin", string(out.Origin)),
		logx.Bool("fallback", out.Fallback),
		logx.Int("reached", res.Reached),
		logx.Int("deactivated", res.Deactivated),
		logx.Int("failed", res.Failed),
		logx.Duration("took", out.Took),
	)
	r.publish(EventRunCompleted, out)
	if sendErr != nil {
		return out, sendErr
	}
	return out, nil
}

// fail writes the failed RunRecord and alerts operators. Both use a context detached from
// ctx so they still happen during shutdown.
func (r *Runner) fail(ctx context.Context, log logx.Logger, out Outcome, cause error) {
	log.Error("run failed", logx.Err(cause))
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	if err := r.d.Gate.RecordOutcomeAt(bctx, r.d.Now(), FailedTitle, 0, false); err != nil {
		log.Error("failed to record failed run", logx.Err(err))
	}
	if r.d.Alert != nil {
		if err := r.d.Alert.Alert(bctx, alertText(cause, r.d.Now().In(r.d.Location))); err != nil {
			log.Warn("admin alert not delivered", logx.Err(err))
		}
	}
	r.publish(EventRunFailed, out)
}

// WeeklyReport broadcasts the weekly aggregate. It shares the run slot and bypasses the gate.
func (r *Runner) WeeklyReport(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer r.running.Store(false)

	st, err := r.Stats(ctx)
	if err != nil {
		r.log.Error("weekly report stats failed", logx.Err(err))
		return 0, err
	}
	res, err := r.d.Broadcaster.SendReport(ctx, weeklyMessage(st))
	if err != nil {
		r.log.Error("weekly report broadcast failed", logx.Int("reached", res.Reached), logx.Err(err))
		return res.Reached, err
	}
	r.log.Info("weekly report sent", logx.Int("reached", res.Reached), logx.Int("runs", st.RunsLastWeek))
	r.publish(EventWeeklySent, res)
	return res.Reached, nil
}

// TestBroadcast sends a short liveness message to every active recipient.
func (r *Runner) TestBroadcast(ctx context.Context) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return 0, ErrRunInProgress
	}
	defer r.running.Store(false)

	res, err := r.d.Broadcaster.SendReport(ctx, testMessage(r.d.Now().In(r.d.Location)))
	r.log.Info("test message sent", logx.Int("reached", res.Reached), logx.Err(err))
	return res.Reached, err
}

// Stats counts active recipients and successful runs in the last seven days.
func (r *Runner) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	n, err := r.d.Store.CountActiveRecipients(ctx)
	if err != nil {
		return st, err
	}
	st.ActiveRecipients = n

	now := r.d.Now()
	runs, err := r.d.Store.CountRuns(ctx, storage.RunFilter{From: now.Add(-7 * 24 * time.Hour), SuccessOnly: true})
	if err != nil {
		return st, err
	}
	st.RunsLastWeek = runs

	last, err := r.d.Store.LastRun(ctx)
	switch {
	case err == nil:
		st.LastRun = &last
	case !errors.Is(err, storage.ErrNotFound):
		return st, err
	}
	return st, nil
}

func (r *Runner) publish(typ string, data any) {
	if r.d.Bus == nil {
		return
	}
	r.d.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}

func detach(ctx context.Context) context.Context {
	if ctx.Err() == nil {
		return ctx
	}
	return context.WithoutCancel(ctx)
}
