// Package app wires configuration, storage, the newsletter pipeline, the scheduler and the
// Telegram front end into one process and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"newsletterbot/internal/broadcast"
	"newsletterbot/internal/commands"
	"newsletterbot/internal/config"
	"newsletterbot/internal/content"
	"newsletterbot/internal/eventbus"
	"newsletterbot/internal/pipeline"
	"newsletterbot/internal/rungate"
	"newsletterbot/internal/runtime/supervisor"
	"newsletterbot/internal/source"
	"newsletterbot/internal/storage"
	"newsletterbot/internal/summary"
	"newsletterbot/internal/task/scheduler"
	kit "newsletterbot/internal/transport"
	telegram "newsletterbot/internal/transport/telegram/adapter"
	"newsletterbot/internal/transport/telegram/router"
	logx "newsletterbot/pkg/logx"
)

const (
	jobDaily  = "newsletter.daily"
	jobWeekly = "newsletter.weekly"
)

type StopReason string

const (
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.ConfigManager

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	norm    *content.Normalizer
	chain   *source.Chain
	bcast   *broadcast.Service
	runner  *pipeline.Runner
	sched   *scheduler.Service
	router  *router.Router

	sup     *supervisor.Supervisor
	updates chan kit.Update
}

// New loads cfgPath and builds every component. Nothing runs until Start.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout},
		logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	return assemble(cfgm, cfg, ad)
}

func assemble(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter) (*App, error) {
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	a := &App{
		cfgm:    cfgm,
		log:     log.With(logx.String("comp", "app")),
		logs:    logSvc,
		bus:     eventbus.New(),
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := a.build(cfg, log); err != nil {
		_ = a.store.Close()
		return nil, err
	}
	a.log.Info("app assembled", logx.String("storage", sc.Driver), logx.Any("sources", a.chain.Adapters()))
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	var err error
	if a.norm, err = newNormalizer(cfg); err != nil {
		return err
	}
	scorer, err := newScorer(cfg)
	if err != nil {
		return err
	}
	if a.chain, err = buildChain(cfg, a.norm, scorer, log.With(logx.String("comp", "source"))); err != nil {
		return err
	}

	genCfg, aiCfg, err := mapSummaryConfig(cfg)
	if err != nil {
		return err
	}
	var client summary.Client
	if aiCfg.APIKey != "" {
		if client, err = summary.NewOpenAIClient(aiCfg); err != nil {
			return err
		}
	} else {
		a.log.Warn("no OpenAI key configured; summaries use the fallback template")
	}
	gen := summary.NewGenerator(genCfg, client, summary.NewFormatter(0), log.With(logx.String("comp", "summary")))

	bc, err := mapBroadcastConfig(cfg)
	if err != nil {
		return err
	}
	a.bcast = broadcast.New(bc, a.adapter, a.store, log)

	if a.sched, err = scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone}, log.With(logx.String("comp", "scheduler")), a.bus); err != nil {
		return err
	}
	loc := a.sched.Location()

	gate, err := rungate.New(a.store, rungate.Config{Location: loc}, log.With(logx.String("comp", "rungate")))
	if err != nil {
		return err
	}
	a.runner, err = pipeline.New(pipeline.Deps{
		Gate:        gate,
		Source:      a.chain,
		Summarizer:  gen,
		Broadcaster: a.bcast,
		Store:       a.store,
		Bus:         a.bus,
		Alert:       pipeline.ChatAlerter{Sender: a.adapter, ChatID: cfg.Telegram.AlertChatID},
		Location:    loc,
	}, log)
	if err != nil {
		return err
	}
	if err := a.schedule(cfg); err != nil {
		return err
	}

	a.router = router.New(log.With(logx.String("comp", "commands")), a.adapter, cfg.Telegram.AdminUserIDs)
	h, err := commands.New(commands.Deps{
		Recipients: a.store,
		Runner:     a.runner,
		Spawner:    a,
		NextRun:    func() (time.Time, bool) { return a.sched.Next(jobDaily) },
		Location:   loc,
	}, log)
	if err != nil {
		return err
	}
	h.Install(a.router)
	return nil
}

// schedule registers the daily run and, when enabled, the weekly report.
func (a *App) schedule(cfg *config.Config) error {
	if !cfg.Scheduler.Enabled {
		a.log.Info("scheduler disabled; runs only start from /run")
		return nil
	}
	h, m, err := config.ParseClock("scheduler.daily_at", cfg.Scheduler.DailyAt)
	if err != nil {
		return err
	}
	if err := a.sched.AddDaily(jobDaily, h, m, 0, a.dailyJob); err != nil {
		return err
	}
	if !cfg.Scheduler.Weekly.Enabled {
		return nil
	}
	day, err := config.ParseWeekday("scheduler.weekly.day", cfg.Scheduler.Weekly.Day)
	if err != nil {
		return err
	}
	if h, m, err = config.ParseClock("scheduler.weekly.at", cfg.Scheduler.Weekly.At); err != nil {
		return err
	}
	return a.sched.AddWeekly(jobWeekly, day, h, m, 0, a.weeklyJob)
}

func (a *App) dailyJob(ctx context.Context) error {
	_, err := a.runner.Run(ctx, pipeline.TriggerSchedule)
	if errors.Is(err, pipeline.ErrAlreadyDone) || errors.Is(err, pipeline.ErrRunInProgress) {
		return nil
	}
	return err
}

func (a *App) weeklyJob(ctx context.Context) error {
	_, err := a.runner.WeeklyReport(ctx)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		a.log.Warn("weekly report skipped, a run is in progress")
		return nil
	}
	return err
}

// Go runs fn under the app supervisor. Command handlers use it for work that outlives
// the request timeout.
func (a *App) Go(name string, fn func(ctx context.Context) error) {
	if a.sup == nil {
		a.log.Warn("background job dropped, app not started", logx.String("name", name))
		return
	}
	a.sup.Go(name, fn)
}

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if up, ok := a.adapter.(kit.CommandMenuUpdater); ok {
		a.sup.Go("telegram.menu", func(c context.Context) error {
			mctx, cancel := context.WithTimeout(c, 10*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(mctx, a.router.Menu()); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	a.sched.Start(a.sup.Context())

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("eventbus.log", a.logEvents)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))

	if next, ok := a.sched.Next(jobDaily); ok {
		a.log.Info("app started", logx.Time("next_run", next))
	} else {
		a.log.Info("app started")
	}
	return nil
}

// logEvents records pipeline and scheduler events.
func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			switch d := e.Data.(type) {
			case scheduler.TaskEvent:
				if d.Error != "" {
					a.log.Warn("scheduled task failed", logx.String("task", d.Name), logx.String("err", d.Error), logx.Duration("took", d.Duration))
					continue
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.String("task", d.Name), logx.Duration("took", d.Duration))
			default:
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	}
}

// Stop shuts components down in dependency order, bounding each step.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, limit)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	// Scheduler first: it cancels an in-flight run, whose failure bookkeeping still needs the store.
	step("scheduler", stopTimeout(a.cfgm.Get()), func(c context.Context) error { a.sched.Stop(c); return nil })
	step("supervisor", 5*time.Second, func(c context.Context) error {
		err := a.sup.Stop(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}
