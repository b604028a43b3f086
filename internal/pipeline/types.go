// Package pipeline runs the daily newsletter task: gate, fetch, summarise, broadcast, record.
package pipeline

import (
	"context"
	"errors"
	"time"

	"newsletterbot/internal/broadcast"
	"newsletterbot/internal/content"
	"newsletterbot/internal/source"
	"newsletterbot/internal/storage"
)

var (
	// ErrRunInProgress is returned when a trigger arrives while a run is executing. The trigger is dropped.
	ErrRunInProgress = errors.New("pipeline: run already in progress")
	// ErrAlreadyDone is the gate's no-op outcome: today's newsletter was already delivered.
	ErrAlreadyDone = errors.New("pipeline: newsletter already sent today")
)

// FailedTitle is the RunRecord title written when a run fails.
const FailedTitle = "Processing Failed"

type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Event types published on the bus.
const (
	EventRunStarted   = "run.started"
	EventRunSkipped   = "run.skipped"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventWeeklySent   = "weekly.sent"
)

type Gate interface {
	ShouldRun(ctx context.Context, today time.Time) (bool, error)
	// RecordOutcomeAt stamps the record with at, which picks the civil day it closes.
	RecordOutcomeAt(ctx context.Context, at time.Time, title string, reached int, success bool) error
}

type Source interface {
	FetchReport(ctx context.Context) source.Report
}

type Summarizer interface {
	Summarize(ctx context.Context, it content.Item) content.Message
}

type Broadcaster interface {
	SendReport(ctx context.Context, msg content.Message) (broadcast.Result, error)
}

// StatsStore answers the counters used by reports.
type StatsStore interface {
	CountActiveRecipients(ctx context.Context) (int, error)
	CountRuns(ctx context.Context, f storage.RunFilter) (int, error)
	LastRun(ctx context.Context) (storage.RunRecord, error)
}

// Alerter notifies operators about a failed run.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Outcome describes one Run call.
type Outcome struct {
	Trigger  Trigger
	Title    string
	Source   content.SourceTag
	Origin   content.Origin
	Fallback bool
	Result   broadcast.Result
	Success  bool
	Took     time.Duration
}

// Stats is the aggregate view shown by /stats and the weekly report.
type Stats struct {
	ActiveRecipients int
	RunsLastWeek     int
	LastRun          *storage.RunRecord
}
