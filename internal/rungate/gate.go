// Package rungate decides whether the daily run may proceed: at most one successful
// run per civil day in the scheduler's time zone.
package rungate

import (
	"context"
	"errors"
	"sync"
	"time"

	"newsletterbot/internal/storage"
	logx "newsletterbot/pkg/logx"
)

const dayLayout = "2006-01-02"

// RunLog is the part of the store the gate needs.
type RunLog interface {
	AppendRun(ctx context.Context, r storage.RunRecord) error
	CountRuns(ctx context.Context, f storage.RunFilter) (int, error)
}

type Config struct {
	// Location defines the civil day boundary. Nil means time.Local.
	Location *time.Location
	// Now is the clock used by RecordOutcome. Nil means time.Now.
	Now func() time.Time
}

// Gate is safe for concurrent use.
type Gate struct {
	runs RunLog
	loc  *time.Location
	now  func() time.Time
	log  logx.Logger

	mu      sync.Mutex
	doneDay string
}

func New(runs RunLog, cfg Config, log logx.Logger) (*Gate, error) {
	if runs == nil {
		return nil, errors.New("rungate: run log is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Gate{runs: runs, loc: loc, now: now, log: log.With(logx.String("comp", "rungate"))}, nil
}

func (g *Gate) Location() *time.Location { return g.loc }

// Day returns the civil day of t as YYYY-MM-DD.
func (g *Gate) Day(t time.Time) string { return t.In(g.loc).Format(dayLayout) }

// Bounds returns [start, end) of the civil day containing t.
func (g *Gate) Bounds(t time.Time) (time.Time, time.Time) {
	t = t.In(g.loc)
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, g.loc)
	return start, start.AddDate(0, 0, 1)
}

// ShouldRun reports false once a successful run has been recorded for today's civil day.
// Failed attempts never close the day.
func (g *Gate) ShouldRun(ctx context.Context, today time.Time) (bool, error) {
	day := g.Day(today)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.doneDay == day {
		return false, nil
	}

	from, to := g.Bounds(today)
	n, err := g.runs.CountRuns(ctx, storage.RunFilter{From: from, To: to, SuccessOnly: true})
	if err != nil {
		return false, err
	}
	if n > 0 {
		g.doneDay = day
		return false, nil
	}
	return true, nil
}

// RecordOutcome appends a RunRecord stamped with the gate clock.
func (g *Gate) RecordOutcome(ctx context.Context, title string, reached int, success bool) error {
	return g.RecordOutcomeAt(ctx, g.now(), title, reached, success)
}

func (g *Gate) RecordOutcomeAt(ctx context.Context, at time.Time, title string, reached int, success bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	err := g.runs.AppendRun(ctx, storage.RunRecord{
		RunAt:             at,
		Title:             title,
		RecipientsReached: reached,
		Success:           success,
	})
	if err != nil {
		return err
	}
	if success {
		g.doneDay = g.Day(at)
	}
	g.log.Info("run recorded",
		logx.String("day", g.Day(at)),
		logx.String("title", title),
		logx.Int("reached", reached),
		logx.Bool("success", success),
	)
	return nil
}
