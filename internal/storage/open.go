package storage

import (
	"context"
	"errors"
	"strings"

	logx "newsletterbot/pkg/logx"
)

// Store persists recipients and run records. Implementations serialize their own writes.
type Store interface {
	// EnrollRecipient creates r as active, or reactivates an existing recipient and refreshes
	// its names. existed reports whether the recipient was already known.
	EnrollRecipient(ctx context.Context, r Recipient) (existed bool, err error)
	SetRecipientActive(ctx context.Context, id int64, active bool) error
	Recipient(ctx context.Context, id int64) (Recipient, error)
	// ActiveRecipients returns active recipients in enrolment order.
	ActiveRecipients(ctx context.Context) ([]Recipient, error)
	CountActiveRecipients(ctx context.Context) (int, error)

	AppendRun(ctx context.Context, r RunRecord) error
	CountRuns(ctx context.Context, f RunFilter) (int, error)
	LastRun(ctx context.Context) (RunRecord, error)

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "file":
		return openFile(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
