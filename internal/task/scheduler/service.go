package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"newsletterbot/internal/eventbus"
	logx "newsletterbot/pkg/logx"
)

func New(cfg Config, log logx.Logger, bus eventbus.Bus) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Service{
		log: log.With(logx.String("comp", "scheduler")),
		loc: loc,
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}, nil
}

func (s *Service) Location() *time.Location { return s.loc }

// Start begins triggering registered schedules. Jobs receive a context derived from ctx
// that is cancelled by Stop.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.loc))
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}
	s.c.Start()
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("schedules", len(s.defs)))
	for _, d := range s.defs {
		s.log.Info("next run", logx.String("name", d.name), logx.Time("at", s.nextLocked(d, time.Now())))
	}
}

// Stop stops triggering, cancels running jobs and waits for them until ctx is done.
// Schedule definitions remain so Start can resume them.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.runCancel
	s.c = nil
	s.runCancel = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return
	}

	// The cron stop context is done once running jobs have returned.
	stopped := c.Stop()
	if cancel != nil {
		cancel()
	}
	select {
	case <-stopped.Done():
		s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
	case <-ctx.Done():
		s.log.Warn("service stop timed out; jobs still running", logx.Duration("took", time.Since(start)))
	}
}

// nextLocked returns the first trigger of d after now. Call with s.mu held.
func (s *Service) nextLocked(d scheduleDef, now time.Time) time.Time {
	if s.c != nil && d.entryID != 0 {
		if e := s.c.Entry(d.entryID); e.Valid() && !e.Next.IsZero() {
			return e.Next
		}
	}
	sched, err := s.parser.Parse(d.spec)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now.In(s.loc))
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def := *d
	eid, err := s.c.AddFunc(d.spec, func() { s.trigger(def) })
	if err != nil {
		return err
	}
	d.entryID = eid
	return nil
}

// trigger runs on the cron goroutine for that entry.
func (s *Service) trigger(d scheduleDef) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("schedule skipped, previous run still executing", logx.String("name", d.name))
		s.publish(EventTaskSkipped, TaskEvent{Name: d.name, Started: time.Now()})
		return
	}
	defer d.running.Store(false)

	s.mu.Lock()
	parent := s.runCtx
	s.mu.Unlock()
	if parent == nil || parent.Err() != nil {
		return
	}
	ctx, cancel := parent, context.CancelFunc(func() {})
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(parent, d.timeout)
	}
	defer cancel()

	start := time.Now()
	err := s.run(ctx, d)
	ev := TaskEvent{Name: d.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		ev.Error = err.Error()
		s.log.Warn("scheduled job failed", logx.String("name", d.name), logx.Duration("dur", ev.Duration), logx.Err(err))
	} else {
		s.log.Info("scheduled job finished", logx.String("name", d.name), logx.Duration("dur", ev.Duration))
	}
	s.publish(EventTaskFinished, ev)
}

func (s *Service) run(ctx context.Context, d scheduleDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in %s: %v", d.name, r)
		}
	}()
	return d.job(ctx)
}

func (s *Service) publish(typ string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.Started, Data: ev})
}
